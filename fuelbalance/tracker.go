/*
Package fuelbalance keeps the per-vehicle, per-day fuel ledger.

LEDGER:
  opening      = closing of the vehicle's latest earlier row (0 if none),
                 so a skipped day does not reset the chain
  refuel       = sum of the day's fuel purchases
  consumption  = the day's DailySettlement.oil_amount
  closing      = opening + refuel - consumption
  theoretical  = truck_count x LitersPerTrip
  difference   = consumption - theoretical

A row is written once per (date, vehicle) and never changed. A day whose
settlement does not exist yet is skipped. When difference / theoretical
exceeds VarianceThreshold a medium "refuel" alert is raised before the row
is written.
*/
package fuelbalance

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/minefleet/settlement-engine/settlement"
)

type Config struct {
	LitersPerTrip     decimal.Decimal
	VarianceThreshold decimal.Decimal // fraction of theoretical consumption
}

func DefaultConfig() Config {
	return Config{
		LitersPerTrip:     decimal.RequireFromString("4.5"),
		VarianceThreshold: decimal.RequireFromString("0.2"),
	}
}

// Calculate derives the day's balance row. It has no side effects.
func (c Config) Calculate(key settlement.Key, opening decimal.Decimal, purchases []settlement.FuelPurchase, day settlement.DailySettlement) settlement.FuelBalance {
	refuel, _ := settlement.SumFuel(purchases)
	consumption := day.OilAmount
	theoretical := c.LitersPerTrip.Mul(decimal.NewFromInt(int64(day.TruckCount)))
	return settlement.FuelBalance{
		Key:                    key,
		OpeningBalance:         opening,
		RefuelAmount:           refuel,
		ConsumptionAmount:      consumption,
		ClosingBalance:         opening.Add(refuel).Sub(consumption),
		TheoreticalConsumption: theoretical,
		ConsumptionDifference:  consumption.Sub(theoretical),
	}
}

// Excessive reports whether consumption exceeds theory by more than the threshold.
// A day with no theoretical consumption is never excessive.
func (c Config) Excessive(b settlement.FuelBalance) bool {
	if !b.TheoreticalConsumption.IsPositive() {
		return false
	}
	return b.ConsumptionDifference.Div(b.TheoreticalConsumption).GreaterThan(c.VarianceThreshold)
}

// Tracker writes fuel balance rows and refuel alerts.
type Tracker struct {
	Sources     settlement.SourceStore
	Settlements settlement.SettlementStore
	Balances    settlement.FuelBalanceStore
	Roster      *settlement.Roster
	Alerts      *settlement.AlertWriter
	Config      Config
	Concurrency int
	Now         func() time.Time
}

func NewTracker(store settlement.Store, alerts *settlement.AlertWriter, cfg Config) *Tracker {
	return &Tracker{
		Sources:     store,
		Settlements: store,
		Balances:    store,
		Roster:      settlement.NewRoster(store),
		Alerts:      alerts,
		Config:      cfg,
		Concurrency: settlement.DefaultConcurrency,
		Now:         time.Now,
	}
}

// Compute records the balance for one vehicle and day. It returns
// ErrSettlementMissing when the day has no settlement and ErrAlreadyRecorded
// when the row exists; both are skips for a sweep.
func (t *Tracker) Compute(ctx context.Context, key settlement.Key) (*settlement.FuelBalance, error) {
	existing, err := t.Balances.FindFuelBalance(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load fuel balance %s: %w", key, err)
	}
	if existing != nil {
		return existing, settlement.ErrAlreadyRecorded
	}

	day, err := t.Settlements.FindDaily(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load settlement %s: %w", key, err)
	}
	if day == nil {
		return nil, fmt.Errorf("%w: %s", settlement.ErrSettlementMissing, key)
	}

	opening := decimal.Zero
	prev, err := t.Balances.LatestFuelBalanceBefore(ctx, key.Vehicle, key.Date)
	if err != nil {
		return nil, fmt.Errorf("load previous fuel balance %s: %w", key, err)
	}
	if prev != nil {
		opening = prev.ClosingBalance
	}

	purchases, err := t.Sources.FuelPurchases(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load fuel purchases %s: %w", key, err)
	}

	b := t.Config.Calculate(key, opening, purchases, *day)
	b.CreatedAt = t.now()

	if t.Config.Excessive(b) && t.Alerts != nil {
		if _, err := t.Alerts.Emit(ctx, refuelAlert(b)); err != nil {
			return nil, err
		}
	}

	if err := t.Balances.InsertFuelBalance(ctx, b); err != nil {
		return nil, fmt.Errorf("save fuel balance %s: %w", key, err)
	}
	return &b, nil
}

// Sweep records balances for every active vehicle on date.
func (t *Tracker) Sweep(ctx context.Context, date settlement.Date) (*settlement.BatchResult, error) {
	vehicles, err := t.Roster.ActiveVehicles(ctx, "")
	if err != nil {
		return nil, err
	}
	if len(vehicles) == 0 {
		return nil, settlement.ErrNoActiveVehicles
	}

	res := settlement.RunBatch(ctx, "fuel_balance", date.String(), vehicles, t.Concurrency,
		func(ctx context.Context, v settlement.Vehicle) (settlement.Outcome, error) {
			_, err := t.Compute(ctx, settlement.Key{Date: date, Vehicle: v.VehicleRef})
			return settlement.Outcome{}, err
		})
	log.Printf("[FuelBalance] %s: %d recorded, %d skipped, %d failed", date, res.Succeeded, res.Skipped, res.Failed)
	return res, nil
}

func refuelAlert(b settlement.FuelBalance) settlement.Alert {
	return settlement.Alert{
		Type:        settlement.AlertRefuel,
		Vehicle:     b.Vehicle,
		Severity:    settlement.SeverityMedium,
		RelatedDate: b.Date,
		Content: fmt.Sprintf("fuel consumption %s L is well above the theoretical %s L",
			b.ConsumptionAmount, b.TheoreticalConsumption),
		Payload: map[string]any{
			"opening_balance":         b.OpeningBalance.String(),
			"refuel_amount":           b.RefuelAmount.String(),
			"consumption_amount":      b.ConsumptionAmount.String(),
			"closing_balance":         b.ClosingBalance.String(),
			"theoretical_consumption": b.TheoreticalConsumption.String(),
			"consumption_difference":  b.ConsumptionDifference.String(),
		},
	}
}

func (t *Tracker) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}
