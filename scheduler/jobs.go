package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/minefleet/settlement-engine/settlement"
)

// Task names, as reported by Status.
const (
	TaskDailySettlements   = "generate_daily_settlements"
	TaskMonthlySettlements = "generate_monthly_settlements"
	TaskAttendance         = "generate_attendance"
	TaskBaselines          = "calculate_analysis_baseline"
	TaskAnomalies          = "check_abnormal_data"
	TaskFuelBalances       = "calculate_fuel_balances"
)

type DailyGenerator interface {
	GenerateDaily(ctx context.Context, date settlement.Date) (*settlement.BatchResult, error)
}

type MonthlyGenerator interface {
	GenerateMonthly(ctx context.Context, ym settlement.YearMonth) (*settlement.BatchResult, error)
}

type AttendanceGenerator interface {
	Generate(ctx context.Context, ym settlement.YearMonth) (bool, error)
}

// DateSweeper runs a per-vehicle pass for one date (anomaly checks, fuel
// balances, baselines).
type DateSweeper interface {
	Sweep(ctx context.Context, date settlement.Date) (*settlement.BatchResult, error)
}

// Services are the jobs the production schedule drives.
type Services struct {
	Daily        DailyGenerator
	Monthly      MonthlyGenerator
	Attendance   AttendanceGenerator
	Baselines    DateSweeper
	Anomalies    DateSweeper
	FuelBalances DateSweeper
}

// Schedule sets when the production jobs fire. Every job hangs off the daily
// instant at DailyHour: anomaly checks and fuel balances run AnomalyDelay and
// FuelDelay after it, and the monthly chain runs MonthlyDelay after it on
// MonthlyDay. MonthlyDelay must exceed both daily delays so the month's last
// day is settled, checked and balanced before the rollup reads it.
type Schedule struct {
	DailyHour    int
	MonthlyDay   int
	AnomalyDelay time.Duration
	FuelDelay    time.Duration
	MonthlyDelay time.Duration
	Location     *time.Location
}

func DefaultSchedule() Schedule {
	return Schedule{
		DailyHour:    0,
		MonthlyDay:   1,
		AnomalyDelay: time.Hour,
		FuelDelay:    2 * time.Hour,
		MonthlyDelay: 3 * time.Hour,
		Location:     time.UTC,
	}
}

func (c Schedule) validate() error {
	if c.DailyHour < 0 || c.DailyHour > 23 {
		return fmt.Errorf("daily hour %d out of range 0-23", c.DailyHour)
	}
	if c.MonthlyDay < 1 || c.MonthlyDay > 28 {
		return fmt.Errorf("monthly day %d out of range 1-28", c.MonthlyDay)
	}
	if c.AnomalyDelay < 0 || c.FuelDelay < 0 {
		return errors.New("daily delays must not be negative")
	}
	if c.MonthlyDelay <= c.AnomalyDelay || c.MonthlyDelay <= c.FuelDelay {
		return fmt.Errorf("monthly delay %v must exceed anomaly delay %v and fuel delay %v",
			c.MonthlyDelay, c.AnomalyDelay, c.FuelDelay)
	}
	return nil
}

func (c Schedule) daily(delay time.Duration) Trigger {
	return Delayed{Base: Daily{Hour: c.DailyHour, Location: c.Location}, Delay: delay}
}

func (c Schedule) monthly() Trigger {
	return Delayed{Base: Monthly{Day: c.MonthlyDay, Hour: c.DailyHour, Location: c.Location}, Delay: c.MonthlyDelay}
}

// settledDay is the day the daily settlement firing delay before now wrote:
// the calendar day before that firing.
func settledDay(now time.Time, delay time.Duration) settlement.Date {
	return settlement.DateOf(now.Add(-delay)).AddDays(-1)
}

// RegisterDefaults registers the production jobs:
//
//	daily   DailyHour                generate_daily_settlements (yesterday)
//	daily   +AnomalyDelay            check_abnormal_data (the day just settled)
//	daily   +FuelDelay               calculate_fuel_balances (the day just settled)
//	monthly MonthlyDay +MonthlyDelay generate_monthly_settlements (last month),
//	                                 generate_attendance (this month),
//	                                 calculate_analysis_baseline (last month)
//
// Periods are taken from the daily instant each firing hangs off, so a delay
// that crosses midnight still targets the day the settlement run wrote.
func RegisterDefaults(s *Scheduler, svc Services, cfg Schedule) error {
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}
	s.Location = location(cfg.Location)
	s.daily = svc.Daily

	if err := s.Register(cfg.daily(0), Task{
		Name: TaskDailySettlements,
		Run: func(ctx context.Context, now time.Time) error {
			return logBatch(svc.Daily.GenerateDaily(ctx, settledDay(now, 0)))
		},
	}); err != nil {
		return err
	}

	if err := s.Register(cfg.daily(cfg.AnomalyDelay), Task{
		Name: TaskAnomalies,
		Run: func(ctx context.Context, now time.Time) error {
			return logBatch(svc.Anomalies.Sweep(ctx, settledDay(now, cfg.AnomalyDelay)))
		},
	}); err != nil {
		return err
	}

	if err := s.Register(cfg.daily(cfg.FuelDelay), Task{
		Name: TaskFuelBalances,
		Run: func(ctx context.Context, now time.Time) error {
			return logBatch(svc.FuelBalances.Sweep(ctx, settledDay(now, cfg.FuelDelay)))
		},
	}); err != nil {
		return err
	}

	// anchor is the daily instant this monthly firing hangs off.
	anchor := func(now time.Time) settlement.Date { return settlement.DateOf(now.Add(-cfg.MonthlyDelay)) }
	return s.Register(cfg.monthly(),
		Task{
			Name: TaskMonthlySettlements,
			Run: func(ctx context.Context, now time.Time) error {
				return logBatch(svc.Monthly.GenerateMonthly(ctx, anchor(now).YearMonth().Prev()))
			},
		},
		Task{
			Name: TaskAttendance,
			Run: func(ctx context.Context, now time.Time) error {
				ym := anchor(now).YearMonth()
				created, err := svc.Attendance.Generate(ctx, ym)
				if err != nil {
					return err
				}
				if !created {
					log.Printf("[Scheduler] Attendance for %s already exists", ym)
				}
				return nil
			},
		},
		Task{
			Name: TaskBaselines,
			Run: func(ctx context.Context, now time.Time) error {
				return logBatch(svc.Baselines.Sweep(ctx, anchor(now)))
			},
		},
	)
}

// logBatch logs the batch summary. Per-vehicle failures are already logged
// by the batch and do not fail the task; only a batch that could not start does.
func logBatch(res *settlement.BatchResult, err error) error {
	if err != nil {
		return err
	}
	log.Printf("[Scheduler] %s %s: %d total, %d succeeded, %d failed, %d skipped",
		res.Operation, res.Period, res.Total, res.Succeeded, res.Failed, res.Skipped)
	if res.Failed > 0 {
		log.Printf("[Scheduler] %s %s failures: %s", res.Operation, res.Period, fmt.Sprint(res.FailedVehicles()))
	}
	return nil
}
