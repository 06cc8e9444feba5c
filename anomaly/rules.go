/*
Package anomaly flags vehicles whose recent daily settlements look wrong.

RULES (each reads the newest N daily rows dated on or before the check date):
  fuel        7 rows, sum(oil) / sum(trucks) > 20 L           -> high
  profit      3 rows, every actual_balance < 0                  -> high
  truck_count 5 rows, 3 or more rows with truck_count == 0      -> medium

A rule with fewer rows than its window is skipped, not failed. Rules are
pure: given the rows they return the alert or nothing, so they are tested
without a store.

SEE ALSO:
  - detector.go: runs the rules per vehicle and across the fleet
  - baseline.go: monthly mean / standard deviation per indicator
  - usage.go:    fuel per truck trip over a date range
*/
package anomaly

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/minefleet/settlement-engine/settlement"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

type Config struct {
	FuelWindow         int
	FuelThreshold      decimal.Decimal // liters per truck trip
	ProfitWindow       int
	TruckCountWindow   int
	TruckCountZeroDays int
}

func DefaultConfig() Config {
	return Config{
		FuelWindow:         7,
		FuelThreshold:      decimal.NewFromInt(20),
		ProfitWindow:       3,
		TruckCountWindow:   5,
		TruckCountZeroDays: 3,
	}
}

// Rules builds the three rules from the config.
func (c Config) Rules() []Rule {
	return []Rule{
		FuelRule{Window: c.FuelWindow, Threshold: c.FuelThreshold},
		ProfitRule{Window: c.ProfitWindow},
		TruckCountRule{Window: c.TruckCountWindow, MinZeroDays: c.TruckCountZeroDays},
	}
}

// Rule is one stateless check over a vehicle's newest daily rows.
type Rule interface {
	Name() settlement.AlertType
	// WindowSize is the number of newest rows the rule needs.
	WindowSize() int
	// Evaluate receives rows newest first. It returns nil when there is
	// nothing to report or the window is short.
	Evaluate(ref settlement.VehicleRef, asOf settlement.Date, rows []settlement.DailySettlement) *settlement.Alert
}

// =============================================================================
// FUEL
// =============================================================================

type FuelRule struct {
	Window    int
	Threshold decimal.Decimal
}

func (FuelRule) Name() settlement.AlertType { return settlement.AlertFuel }
func (r FuelRule) WindowSize() int          { return r.Window }

func (r FuelRule) Evaluate(ref settlement.VehicleRef, asOf settlement.Date, rows []settlement.DailySettlement) *settlement.Alert {
	if len(rows) < r.Window {
		return nil
	}
	rows = rows[:r.Window]

	usage := SumFuelUsage(rows)
	oil, trucks, avg := usage.TotalOil, usage.TotalTrucks, usage.PerTruckOil
	if !avg.GreaterThan(r.Threshold) {
		return nil
	}

	return &settlement.Alert{
		Type:        settlement.AlertFuel,
		Vehicle:     ref,
		Severity:    settlement.SeverityHigh,
		RelatedDate: asOf,
		Content:     fmt.Sprintf("average fuel per truck trip over the last %d days is %s L, above %s L", r.Window, avg.StringFixed(2), r.Threshold),
		Payload: map[string]any{
			"avg_oil_per_truck": avg.StringFixed(4),
			"total_oil":         oil.String(),
			"total_trucks":      trucks,
			"window": windowRows(rows, func(s settlement.DailySettlement) map[string]any {
				return map[string]any{"oil_amount": s.OilAmount.String(), "truck_count": s.TruckCount}
			}),
		},
	}
}

// =============================================================================
// PROFIT
// =============================================================================

type ProfitRule struct {
	Window int
}

func (ProfitRule) Name() settlement.AlertType { return settlement.AlertProfit }
func (r ProfitRule) WindowSize() int          { return r.Window }

func (r ProfitRule) Evaluate(ref settlement.VehicleRef, asOf settlement.Date, rows []settlement.DailySettlement) *settlement.Alert {
	if len(rows) < r.Window {
		return nil
	}
	rows = rows[:r.Window]

	total := decimal.Zero
	for _, row := range rows {
		if !row.ActualBalance.IsNegative() {
			return nil
		}
		total = total.Add(row.ActualBalance)
	}

	return &settlement.Alert{
		Type:        settlement.AlertProfit,
		Vehicle:     ref,
		Severity:    settlement.SeverityHigh,
		RelatedDate: asOf,
		Content:     fmt.Sprintf("loss on each of the last %d days, total loss %s", r.Window, total.Abs().StringFixed(2)),
		Payload: map[string]any{
			"total_loss": total.String(),
			"window": windowRows(rows, func(s settlement.DailySettlement) map[string]any {
				return map[string]any{"actual_balance": s.ActualBalance.String()}
			}),
		},
	}
}

// TotalLoss reads the summed loss back out of a profit alert.
func TotalLoss(a settlement.Alert) (decimal.Decimal, error) {
	raw, ok := a.Payload["total_loss"].(string)
	if !ok {
		return decimal.Zero, fmt.Errorf("alert %s has no total_loss", a.ID)
	}
	return decimal.NewFromString(raw)
}

// =============================================================================
// TRUCK COUNT
// =============================================================================

type TruckCountRule struct {
	Window      int
	MinZeroDays int
}

func (TruckCountRule) Name() settlement.AlertType { return settlement.AlertTruckCount }
func (r TruckCountRule) WindowSize() int          { return r.Window }

func (r TruckCountRule) Evaluate(ref settlement.VehicleRef, asOf settlement.Date, rows []settlement.DailySettlement) *settlement.Alert {
	if len(rows) < r.Window {
		return nil
	}
	rows = rows[:r.Window]

	zero := 0
	for _, row := range rows {
		if row.TruckCount == 0 {
			zero++
		}
	}
	if zero < r.MinZeroDays {
		return nil
	}

	return &settlement.Alert{
		Type:        settlement.AlertTruckCount,
		Vehicle:     ref,
		Severity:    settlement.SeverityMedium,
		RelatedDate: asOf,
		Content:     fmt.Sprintf("no truck trips on %d of the last %d days, possible stoppage", zero, r.Window),
		Payload: map[string]any{
			"zero_days": zero,
			"window": windowRows(rows, func(s settlement.DailySettlement) map[string]any {
				return map[string]any{"truck_count": s.TruckCount}
			}),
		},
	}
}

func windowRows(rows []settlement.DailySettlement, fields func(settlement.DailySettlement) map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		m := fields(r)
		m["record_date"] = r.Date.String()
		out = append(out, m)
	}
	return out
}
