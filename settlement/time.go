package settlement

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Calendar day used as the settlement key
// =============================================================================

const dateLayout = "2006-01-02"

// Date is a calendar day, always normalized to midnight UTC so two dates
// built from the same day compare equal with ==.
type Date struct {
	Time time.Time
}

// Constructors
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf takes the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return DateOf(t), nil
}

func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Comparison
func (d Date) Before(other Date) bool        { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool         { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool         { return d.Time.Equal(other.Time) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }

// Arithmetic
func (d Date) AddDays(n int) Date { return DateOf(d.Time.AddDate(0, 0, n)) }

// Properties
func (d Date) Year() int             { return d.Time.Year() }
func (d Date) Month() time.Month     { return d.Time.Month() }
func (d Date) Day() int              { return d.Time.Day() }
func (d Date) IsZero() bool          { return d.Time.IsZero() }
func (d Date) YearMonth() YearMonth  { return YearMonth{Year: d.Year(), Month: d.Month()} }
func (d Date) String() string        { return d.Time.Format(dateLayout) }

// DaysBetween counts whole days from one date to another (negative if to < from).
func DaysBetween(from, to Date) int { return int(to.Time.Sub(from.Time).Hours() / 24) }

// =============================================================================
// YEAR-MONTH - The rollup period
// =============================================================================

const yearMonthLayout = "2006-01"

type YearMonth struct {
	Year  int
	Month time.Month
}

func NewYearMonth(year int, month time.Month) YearMonth {
	return DateOf(time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)).YearMonth()
}

func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse(yearMonthLayout, s)
	if err != nil {
		return YearMonth{}, fmt.Errorf("invalid year-month %q (use YYYY-MM): %w", s, err)
	}
	return YearMonth{Year: t.Year(), Month: t.Month()}, nil
}

func (ym YearMonth) FirstDay() Date { return NewDate(ym.Year, ym.Month, 1) }
func (ym YearMonth) LastDay() Date  { return ym.Next().FirstDay().AddDays(-1) }
func (ym YearMonth) Days() int      { return ym.LastDay().Day() }
func (ym YearMonth) Next() YearMonth { return NewYearMonth(ym.Year, ym.Month+1) }
func (ym YearMonth) Prev() YearMonth { return NewYearMonth(ym.Year, ym.Month-1) }

func (ym YearMonth) Before(other YearMonth) bool {
	if ym.Year != other.Year {
		return ym.Year < other.Year
	}
	return ym.Month < other.Month
}

func (ym YearMonth) Contains(d Date) bool {
	return d.Year() == ym.Year && d.Month() == ym.Month
}

// Dates returns every calendar day of the month in order.
func (ym YearMonth) Dates() []Date {
	days := make([]Date, 0, ym.Days())
	for d := ym.FirstDay(); ym.Contains(d); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

func (ym YearMonth) IsZero() bool { return ym.Year == 0 }

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}
