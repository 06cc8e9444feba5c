/*
monthly.go - Monthly rollup of daily settlements

PURPOSE:
  Sums a month's DailySettlement rows per vehicle, charges the rental fee and
  stores the result for completed months.

RENTAL FEE:
  not rental      -> 0
  rental monthly  -> the flat fee
  rental daily    -> fee x number of daily rows found in the month

  Daily rentals are prorated by rows present, so a day without a daily row is
  not billed. MissingDays counts those days and is logged when non-zero.

  Rental is deducted from ActualBalance only; Balance stays the gross sum.

OPEN MONTHS:
  A month that has not ended yet is computed on request and marked
  Provisional. It is never written.
*/
package settlement

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
)

// Rollup builds MonthlySettlement rows from stored daily rows.
type Rollup struct {
	Settlements SettlementStore
	Roster      *Roster
	Concurrency int
	Now         func() time.Time
}

func NewRollup(store Store) *Rollup {
	return &Rollup{
		Settlements: store,
		Roster:      NewRoster(store),
		Concurrency: DefaultConcurrency,
		Now:         time.Now,
	}
}

// RentalFee is the month's rental charge for a vehicle with dayCount daily rows.
func RentalFee(v Vehicle, dayCount int) decimal.Decimal {
	if !v.IsRental {
		return decimal.Zero
	}
	switch v.RentalUnit {
	case RentalMonthly:
		return v.RentalFee
	case RentalDaily:
		return v.RentalFee.Mul(decimal.NewFromInt(int64(dayCount)))
	default:
		return decimal.Zero
	}
}

// SummarizeMonth folds daily rows into a monthly settlement. elapsedDays is
// the number of calendar days of the month that have passed, used for
// MissingDays.
func SummarizeMonth(ym YearMonth, v Vehicle, days []DailySettlement, elapsedDays int) MonthlySettlement {
	f := ZeroFigures()
	for _, d := range days {
		f = f.Add(d.Figures)
	}
	rental := RentalFee(v, len(days))
	f.ActualBalance = f.ActualBalance.Sub(rental)

	missing := elapsedDays - len(days)
	if missing < 0 {
		missing = 0
	}
	return MonthlySettlement{
		YearMonth:   ym,
		Vehicle:     v.VehicleRef,
		Figures:     f,
		RentalFee:   rental,
		DayCount:    len(days),
		MissingDays: missing,
	}
}

// IsCompleted reports whether ym ended before the month containing now.
func IsCompleted(ym YearMonth, now time.Time) bool {
	return ym.Before(DateOf(now).YearMonth())
}

// RollupMonth computes the month for one vehicle. Completed months are
// upserted; the open month is returned provisional and not stored.
func (r *Rollup) RollupMonth(ctx context.Context, ym YearMonth, ref VehicleRef) (MonthlySettlement, error) {
	v, err := r.Roster.VehicleInfo(ctx, ref)
	if err != nil {
		return MonthlySettlement{}, err
	}
	days, err := r.Settlements.DailyRange(ctx, ref, ym.FirstDay(), ym.LastDay())
	if err != nil {
		return MonthlySettlement{}, fmt.Errorf("load daily settlements %s %s: %w", ym, ref, err)
	}

	now := r.now()
	completed := IsCompleted(ym, now)
	elapsed := ym.Days()
	if !completed {
		elapsed = 0
		if today := DateOf(now); ym.Contains(today) {
			elapsed = today.Day()
		}
	}

	m := SummarizeMonth(ym, v, days, elapsed)
	if m.MissingDays > 0 && v.IsRental && v.RentalUnit == RentalDaily {
		log.Printf("[Settlement] %s %s: %d day(s) without a daily settlement, daily rental billed for %d day(s)",
			ym, ref, m.MissingDays, m.DayCount)
	}

	if !completed {
		m.Provisional = true
		return m, nil
	}

	m.CreatedAt = now
	m.UpdatedAt = now
	if _, err := r.Settlements.UpsertMonthly(ctx, m); err != nil {
		return MonthlySettlement{}, fmt.Errorf("save monthly settlement %s %s: %w", ym, ref, err)
	}
	return m, nil
}

// MonthlySettlement returns the stored row for a completed month when there
// is one, and computes it otherwise.
func (r *Rollup) MonthlySettlement(ctx context.Context, ym YearMonth, ref VehicleRef) (MonthlySettlement, error) {
	if IsCompleted(ym, r.now()) {
		stored, err := r.Settlements.FindMonthly(ctx, ym, ref)
		if err != nil {
			return MonthlySettlement{}, fmt.Errorf("load monthly settlement %s %s: %w", ym, ref, err)
		}
		if stored != nil {
			return *stored, nil
		}
	}
	return r.RollupMonth(ctx, ym, ref)
}

// GenerateMonthly rolls up every active vehicle for ym.
func (r *Rollup) GenerateMonthly(ctx context.Context, ym YearMonth) (*BatchResult, error) {
	vehicles, err := r.Roster.ActiveVehicles(ctx, "")
	if err != nil {
		return nil, err
	}
	if len(vehicles) == 0 {
		return nil, ErrNoActiveVehicles
	}

	log.Printf("[Settlement] Generating monthly settlements for %s (%d vehicles)", ym, len(vehicles))
	res := RunBatch(ctx, "monthly_settlement", ym.String(), vehicles, r.Concurrency,
		func(ctx context.Context, v Vehicle) (Outcome, error) {
			_, err := r.RollupMonth(ctx, ym, v.VehicleRef)
			return Outcome{}, err
		})
	log.Printf("[Settlement] Monthly %s: %d succeeded, %d failed", ym, res.Succeeded, res.Failed)
	return res, nil
}

func (r *Rollup) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
