package scheduler

import (
	"time"
)

// Trigger computes the next firing strictly after a given instant.
type Trigger interface {
	Next(after time.Time) time.Time
}

// Daily fires every day at Hour:Minute in Location (UTC when nil).
type Daily struct {
	Hour     int
	Minute   int
	Location *time.Location
}

func (d Daily) Next(after time.Time) time.Time {
	loc := location(d.Location)
	t := after.In(loc)
	next := time.Date(t.Year(), t.Month(), t.Day(), d.Hour, d.Minute, 0, 0, loc)
	if !next.After(t) {
		next = time.Date(t.Year(), t.Month(), t.Day()+1, d.Hour, d.Minute, 0, 0, loc)
	}
	return next
}

// Monthly fires on Day of every month at Hour:Minute. Day should be 1-28 so
// every month has it.
type Monthly struct {
	Day      int
	Hour     int
	Minute   int
	Location *time.Location
}

func (m Monthly) Next(after time.Time) time.Time {
	loc := location(m.Location)
	t := after.In(loc)
	next := time.Date(t.Year(), t.Month(), m.Day, m.Hour, m.Minute, 0, 0, loc)
	if !next.After(t) {
		next = time.Date(t.Year(), t.Month()+1, m.Day, m.Hour, m.Minute, 0, 0, loc)
	}
	return next
}

// Delayed fires Delay after each firing of Base. Delay may carry a firing
// past midnight or into the next day of the month.
type Delayed struct {
	Base  Trigger
	Delay time.Duration
}

func (d Delayed) Next(after time.Time) time.Time {
	return d.Base.Next(after.Add(-d.Delay)).Add(d.Delay)
}

// Interval fires every Every, measured from the previous firing.
type Interval struct {
	Every time.Duration
}

func (i Interval) Next(after time.Time) time.Time { return after.Add(i.Every) }

func location(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
