/*
aggregate.go - Per-vehicle, per-day aggregators

PURPOSE:
  Each aggregator reads one kind of source record for a Key and folds it into
  a slice of Figures. They are independent of each other; the engine runs
  them in sequence and derives the balances last.

AGGREGATORS:
  trips      truck_count, total_capacity, income (via IncomeStrategy)
  fuel       oil_amount, oil_fee
  shift      work_hours, shift_fee (0 hours when no row)
  deduction  deduction
  meal       meal_fee (drivers x attendance meal status x meal price)
  misc       the six fixed misc-fee buckets
  salary     driver_salary
  repair     repair_fee, parts_fee

The Sum and Classify helpers are pure so the arithmetic can be tested without a store.
*/
package settlement

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PURE FOLDS
// =============================================================================

func SumFuel(purchases []FuelPurchase) (amount, fee decimal.Decimal) {
	amount, fee = decimal.Zero, decimal.Zero
	for _, p := range purchases {
		amount = amount.Add(p.OilAmount)
		fee = fee.Add(p.TotalFee)
	}
	return amount, fee
}

func SumDeductions(ds []Deduction) decimal.Decimal {
	total := decimal.Zero
	for _, d := range ds {
		total = total.Add(d.Amount)
	}
	return total
}

func SumRepairs(rs []RepairRecord) (repair, parts decimal.Decimal) {
	repair, parts = decimal.Zero, decimal.Zero
	for _, r := range rs {
		repair = repair.Add(r.RepairFee)
		parts = parts.Add(r.PartsFee)
	}
	return repair, parts
}

func SumSalaries(drivers []DriverAssignment) decimal.Decimal {
	total := decimal.Zero
	for _, d := range drivers {
		total = total.Add(d.DailySalary)
	}
	return total
}

// MiscFeeCategory is one of the six fixed misc-fee buckets.
type MiscFeeCategory string

const (
	FeeMedical         MiscFeeCategory = "medical"
	FeeWalkieTalkie    MiscFeeCategory = "walkie_talkie"
	FeeBluetoothCard   MiscFeeCategory = "bluetooth_card"
	FeeAmplifier       MiscFeeCategory = "amplifier"
	FeeReflectiveVest  MiscFeeCategory = "reflective_vest"
	FeeSafetyInsurance MiscFeeCategory = "safety_insurance"
)

// miscFeeLabels maps fee_type labels to buckets. Legacy data uses the
// Chinese labels from the paper forms.
var miscFeeLabels = map[string]MiscFeeCategory{
	"medical":          FeeMedical,
	"walkie_talkie":    FeeWalkieTalkie,
	"bluetooth_card":   FeeBluetoothCard,
	"amplifier":        FeeAmplifier,
	"reflective_vest":  FeeReflectiveVest,
	"safety_insurance": FeeSafetyInsurance,
	"体检费":              FeeMedical,
	"对讲机":              FeeWalkieTalkie,
	"蓝牙卡":              FeeBluetoothCard,
	"放大号":              FeeAmplifier,
	"反光衣":              FeeReflectiveVest,
	"安责险":              FeeSafetyInsurance,
}

// CategorizeFee returns the bucket for a fee_type label.
func CategorizeFee(label string) (MiscFeeCategory, bool) {
	c, ok := miscFeeLabels[label]
	return c, ok
}

type MiscFeeBreakdown struct {
	Medical         decimal.Decimal
	WalkieTalkie    decimal.Decimal
	BluetoothCard   decimal.Decimal
	Amplifier       decimal.Decimal
	ReflectiveVest  decimal.Decimal
	SafetyInsurance decimal.Decimal
	// Unrecognized holds rows whose label matched no bucket. They are not
	// part of any fee total.
	Unrecognized []MiscFee
}

func ClassifyMiscFees(fees []MiscFee) MiscFeeBreakdown {
	z := decimal.Zero
	b := MiscFeeBreakdown{
		Medical: z, WalkieTalkie: z, BluetoothCard: z,
		Amplifier: z, ReflectiveVest: z, SafetyInsurance: z,
	}
	for _, f := range fees {
		cat, ok := CategorizeFee(f.FeeType)
		if !ok {
			b.Unrecognized = append(b.Unrecognized, f)
			continue
		}
		switch cat {
		case FeeMedical:
			b.Medical = b.Medical.Add(f.Amount)
		case FeeWalkieTalkie:
			b.WalkieTalkie = b.WalkieTalkie.Add(f.Amount)
		case FeeBluetoothCard:
			b.BluetoothCard = b.BluetoothCard.Add(f.Amount)
		case FeeAmplifier:
			b.Amplifier = b.Amplifier.Add(f.Amount)
		case FeeReflectiveVest:
			b.ReflectiveVest = b.ReflectiveVest.Add(f.Amount)
		case FeeSafetyInsurance:
			b.SafetyInsurance = b.SafetyInsurance.Add(f.Amount)
		}
	}
	return b
}

func (b MiscFeeBreakdown) apply(f *Figures) {
	f.MedicalFee = b.Medical
	f.WalkieTalkieFee = b.WalkieTalkie
	f.BluetoothCardFee = b.BluetoothCard
	f.AmplifierFee = b.Amplifier
	f.ReflectiveVestFee = b.ReflectiveVest
	f.SafetyInsuranceFee = b.SafetyInsurance
}

// =============================================================================
// STORE-BACKED AGGREGATORS
// =============================================================================

func (e *Engine) aggregateTrips(ctx context.Context, key Key, f *Figures) error {
	strategy := e.Income.For(key.Vehicle.MachineryType)
	trips, err := e.Sources.TripRecords(ctx, key.Date, strategy.Role(), key.Vehicle.VehicleNo)
	if err != nil {
		return fmt.Errorf("load trips: %w", err)
	}
	totals := SumTrips(trips)
	income, err := strategy.Income(ctx, totals, e.Prices, key.Date)
	if err != nil {
		return fmt.Errorf("income: %w", err)
	}
	f.TruckCount = totals.TruckCount
	f.TotalCapacity = totals.TotalCapacity
	f.Income = income
	return nil
}

func (e *Engine) aggregateFuel(ctx context.Context, key Key, f *Figures) error {
	purchases, err := e.Sources.FuelPurchases(ctx, key)
	if err != nil {
		return fmt.Errorf("load fuel purchases: %w", err)
	}
	f.OilAmount, f.OilFee = SumFuel(purchases)
	return nil
}

// aggregateShift prices the day's work hours. The rate is resolved even for
// zero hours so a missing shift price always surfaces.
func (e *Engine) aggregateShift(ctx context.Context, key Key, f *Figures) error {
	rec, err := e.Sources.ShiftRecord(ctx, key)
	if err != nil {
		return fmt.Errorf("load shift: %w", err)
	}
	hours := decimal.Zero
	if rec != nil {
		hours = rec.WorkHours
	}
	rate, err := e.Prices.ShiftRate(ctx, key.Vehicle.MachineryType, key.Date)
	if err != nil {
		return fmt.Errorf("shift rate: %w", err)
	}
	f.WorkHours = hours
	f.ShiftFee = hours.Mul(rate)
	return nil
}

func (e *Engine) aggregateDeductions(ctx context.Context, key Key, f *Figures) error {
	ds, err := e.Sources.Deductions(ctx, key)
	if err != nil {
		return fmt.Errorf("load deductions: %w", err)
	}
	f.Deduction = SumDeductions(ds)
	return nil
}

// aggregateMeals sums the meal price of every assigned driver's meal status.
// A driver with no attendance row for the day contributes nothing.
func (e *Engine) aggregateMeals(ctx context.Context, key Key, drivers []DriverAssignment, f *Figures) error {
	total := decimal.Zero
	for _, d := range drivers {
		status, ok, err := e.Roster.MealStatus(ctx, d.PersonID, key.Date)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		price, err := e.Prices.MealPrice(ctx, status, key.Date)
		if err != nil {
			return fmt.Errorf("meal price for %s: %w", d.PersonID, err)
		}
		total = total.Add(price)
	}
	f.MealFee = total
	return nil
}

func (e *Engine) aggregateMisc(ctx context.Context, key Key, f *Figures) ([]MiscFee, error) {
	fees, err := e.Sources.MiscFees(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load misc fees: %w", err)
	}
	b := ClassifyMiscFees(fees)
	b.apply(f)
	return b.Unrecognized, nil
}

func (e *Engine) aggregateRepairs(ctx context.Context, key Key, f *Figures) error {
	rs, err := e.Sources.Repairs(ctx, key)
	if err != nil {
		return fmt.Errorf("load repairs: %w", err)
	}
	f.RepairFee, f.PartsFee = SumRepairs(rs)
	return nil
}
