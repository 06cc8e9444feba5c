package settlement

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PRICE CATEGORIES
// =============================================================================

type PriceKind string

const (
	PriceShift                PriceKind = "shift"                 // per-hour rate, keyed by machinery type
	PriceMeal                 PriceKind = "meal"                  // per-day price, keyed by meal status
	PriceExcavatorCoefficient PriceKind = "excavator_coefficient" // income per unit of volume, no key
	PriceOil                  PriceKind = "oil"                   // per-liter price, keyed by oil type
	PriceDistance             PriceKind = "distance"              // tiered haul price, keyed by load type
)

// PriceCategory selects one price table and the row key within it.
type PriceCategory struct {
	Kind PriceKind
	Key  string
}

func (c PriceCategory) String() string {
	if c.Key == "" {
		return string(c.Kind)
	}
	return string(c.Kind) + "/" + c.Key
}

func ShiftCategory(mt MachineryType) PriceCategory { return PriceCategory{Kind: PriceShift, Key: string(mt)} }
func MealCategory(status string) PriceCategory    { return PriceCategory{Kind: PriceMeal, Key: status} }
func OilCategory(oilType string) PriceCategory     { return PriceCategory{Kind: PriceOil, Key: oilType} }
func DistanceCategory(loadType string) PriceCategory {
	return PriceCategory{Kind: PriceDistance, Key: loadType}
}

var ExcavatorCoefficientCategory = PriceCategory{Kind: PriceExcavatorCoefficient}

// PriceRecord is one effective-dated price. Flat prices only use Price;
// distance tiers also carry the base distance and the per-step surcharge.
type PriceRecord struct {
	Category      PriceCategory
	EffectiveDate Date
	Price         decimal.Decimal
	BaseDistance  decimal.Decimal
	ExtraDistance decimal.Decimal
	ExtraPrice    decimal.Decimal
}

// Tiered prices an amount against the record's tiers: the base price covers
// up to BaseDistance, every started ExtraDistance beyond it adds ExtraPrice.
func (p PriceRecord) Tiered(amount decimal.Decimal) decimal.Decimal {
	if amount.LessThanOrEqual(p.BaseDistance) || !p.ExtraDistance.IsPositive() {
		return p.Price
	}
	steps := amount.Sub(p.BaseDistance).Div(p.ExtraDistance).Ceil()
	return p.Price.Add(steps.Mul(p.ExtraPrice))
}

// LatestEffective picks the record with the greatest effective date <= asOf.
// Future-dated records are never returned.
func LatestEffective(records []PriceRecord, asOf Date) (PriceRecord, bool) {
	var best PriceRecord
	found := false
	for _, r := range records {
		if r.EffectiveDate.After(asOf) {
			continue
		}
		if !found || r.EffectiveDate.After(best.EffectiveDate) {
			best = r
			found = true
		}
	}
	return best, found
}

// =============================================================================
// PRICE RESOLVER
// =============================================================================

// PriceResolver answers "what did this cost on that day". A missing price is
// always an error; fees are never silently zeroed.
type PriceResolver struct {
	Store PriceStore
}

func NewPriceResolver(store PriceStore) *PriceResolver {
	return &PriceResolver{Store: store}
}

func (r *PriceResolver) Resolve(ctx context.Context, category PriceCategory, asOf Date) (PriceRecord, error) {
	rec, err := r.Store.LatestPrice(ctx, category, asOf)
	if err != nil {
		return PriceRecord{}, fmt.Errorf("lookup %s price: %w", category, err)
	}
	if rec == nil {
		return PriceRecord{}, &PriceNotFoundError{Category: category, AsOf: asOf}
	}
	return *rec, nil
}

func (r *PriceResolver) price(ctx context.Context, category PriceCategory, asOf Date) (decimal.Decimal, error) {
	rec, err := r.Resolve(ctx, category, asOf)
	if err != nil {
		return decimal.Zero, err
	}
	return rec.Price, nil
}

// ShiftRate is the per-hour shift price for a machinery type.
func (r *PriceResolver) ShiftRate(ctx context.Context, mt MachineryType, asOf Date) (decimal.Decimal, error) {
	return r.price(ctx, ShiftCategory(mt), asOf)
}

func (r *PriceResolver) MealPrice(ctx context.Context, mealStatus string, asOf Date) (decimal.Decimal, error) {
	return r.price(ctx, MealCategory(mealStatus), asOf)
}

// ExcavatorCoefficient is the income per unit of volume moved by an excavator.
func (r *PriceResolver) ExcavatorCoefficient(ctx context.Context, asOf Date) (decimal.Decimal, error) {
	return r.price(ctx, ExcavatorCoefficientCategory, asOf)
}

func (r *PriceResolver) OilPrice(ctx context.Context, oilType string, asOf Date) (decimal.Decimal, error) {
	return r.price(ctx, OilCategory(oilType), asOf)
}

// DistancePrice prices one haul of the given distance for a load type.
func (r *PriceResolver) DistancePrice(ctx context.Context, loadType string, distance decimal.Decimal, asOf Date) (decimal.Decimal, error) {
	rec, err := r.Resolve(ctx, DistanceCategory(loadType), asOf)
	if err != nil {
		return decimal.Zero, err
	}
	return rec.Tiered(distance), nil
}
