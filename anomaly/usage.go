package anomaly

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/minefleet/settlement-engine/settlement"
)

// FuelUsage is the fuel a vehicle burned over a stretch of daily settlements.
type FuelUsage struct {
	Vehicle     settlement.VehicleRef
	From, To    settlement.Date
	Days        int
	TotalOil    decimal.Decimal
	TotalTrucks int
	// PerTruckOil is liters per truck trip, zero when no trips were logged.
	PerTruckOil decimal.Decimal
}

// SumFuelUsage folds daily rows into totals and the per-trip average.
func SumFuelUsage(rows []settlement.DailySettlement) FuelUsage {
	f := settlement.ZeroFigures()
	for _, row := range rows {
		f.OilAmount = f.OilAmount.Add(row.OilAmount)
		f.TruckCount += row.TruckCount
	}
	return FuelUsage{
		Days:        len(rows),
		TotalOil:    f.OilAmount,
		TotalTrucks: f.TruckCount,
		PerTruckOil: f.OilPerTruck(),
	}
}

// PerTruckOil reads the vehicle's daily settlements in [from, to] and
// returns its fuel per truck trip.
func PerTruckOil(ctx context.Context, store settlement.SettlementStore, ref settlement.VehicleRef, from, to settlement.Date) (FuelUsage, error) {
	if to.Before(from) {
		return FuelUsage{}, fmt.Errorf("%w: range %s to %s is reversed", settlement.ErrInvalidKey, from, to)
	}
	rows, err := store.DailyRange(ctx, ref, from, to)
	if err != nil {
		return FuelUsage{}, fmt.Errorf("load daily settlements %s: %w", ref, err)
	}
	u := SumFuelUsage(rows)
	u.Vehicle = ref
	u.From = from
	u.To = to
	return u, nil
}
