package settlement

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TRIP TOTALS
// =============================================================================

// TripTotals is the sum of one vehicle's trip lines for a day.
type TripTotals struct {
	TruckCount    int
	TotalCapacity decimal.Decimal
	TotalFee      decimal.Decimal
}

func SumTrips(trips []TripRecord) TripTotals {
	t := TripTotals{TotalCapacity: decimal.Zero, TotalFee: decimal.Zero}
	for _, tr := range trips {
		t.TruckCount += tr.TruckCount
		t.TotalCapacity = t.TotalCapacity.Add(tr.TotalCapacity)
		t.TotalFee = t.TotalFee.Add(tr.TotalFee)
	}
	return t
}

// =============================================================================
// INCOME STRATEGIES - One per machinery class
// =============================================================================

// IncomeStrategy turns a day's trip totals into income for one machinery class.
type IncomeStrategy interface {
	// Role is the trip-log column that identifies this class's vehicles.
	Role() TripRole
	Income(ctx context.Context, trips TripTotals, prices *PriceResolver, date Date) (decimal.Decimal, error)
}

// DirectFeeIncome is for haul-class machines: the trip log already carries the fee.
type DirectFeeIncome struct{}

func (DirectFeeIncome) Role() TripRole { return RoleTruck }

func (DirectFeeIncome) Income(_ context.Context, trips TripTotals, _ *PriceResolver, _ Date) (decimal.Decimal, error) {
	return trips.TotalFee, nil
}

// VolumeIncome pays by volume moved: total capacity times the excavator
// coefficient effective on the day.
type VolumeIncome struct{}

func (VolumeIncome) Role() TripRole { return RoleExcavator }

func (VolumeIncome) Income(ctx context.Context, trips TripTotals, prices *PriceResolver, date Date) (decimal.Decimal, error) {
	coef, err := prices.ExcavatorCoefficient(ctx, date)
	if err != nil {
		return decimal.Zero, err
	}
	return trips.TotalCapacity.Mul(coef), nil
}

// IncomeStrategies maps machinery types to their income rule.
type IncomeStrategies map[MachineryType]IncomeStrategy

func DefaultIncomeStrategies() IncomeStrategies {
	return IncomeStrategies{
		DumpTruck: DirectFeeIncome{},
		Excavator: VolumeIncome{},
		Bulldozer: DirectFeeIncome{},
		Loader:    DirectFeeIncome{},
	}
}

// For returns the strategy for mt, falling back to the direct-fee rule.
func (s IncomeStrategies) For(mt MachineryType) IncomeStrategy {
	if st, ok := s[mt]; ok {
		return st
	}
	return DirectFeeIncome{}
}
