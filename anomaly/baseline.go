package anomaly

import (
	"context"
	"fmt"
	"log"
	"math"

	"github.com/shopspring/decimal"

	"github.com/minefleet/settlement-engine/settlement"
)

// BaselineCalculator records each vehicle's monthly mean and population
// standard deviation of the analysis indicators. Rows are upserted by
// (calculation date, vehicle, indicator), so a re-run replaces them.
type BaselineCalculator struct {
	Settlements settlement.SettlementStore
	Baselines   settlement.BaselineStore
	Roster      *settlement.Roster
	Concurrency int
}

func NewBaselineCalculator(store settlement.Store) *BaselineCalculator {
	return &BaselineCalculator{
		Settlements: store,
		Baselines:   store,
		Roster:      settlement.NewRoster(store),
		Concurrency: settlement.DefaultConcurrency,
	}
}

// Indicators are computed in this order.
var Indicators = []settlement.Indicator{
	settlement.IndicatorOilPerTruck,
	settlement.IndicatorActualBalance,
	settlement.IndicatorTruckCount,
}

func indicatorValue(ind settlement.Indicator, s settlement.DailySettlement) decimal.Decimal {
	switch ind {
	case settlement.IndicatorOilPerTruck:
		return s.OilPerTruck()
	case settlement.IndicatorActualBalance:
		return s.ActualBalance
	case settlement.IndicatorTruckCount:
		return decimal.NewFromInt(int64(s.TruckCount))
	}
	return decimal.Zero
}

// MeanStdDev returns the mean and population standard deviation, both
// rounded to 4 places. Empty input yields zeros.
func MeanStdDev(values []decimal.Decimal) (mean, stddev decimal.Decimal) {
	if len(values) == 0 {
		return decimal.Zero, decimal.Zero
	}
	n := decimal.NewFromInt(int64(len(values)))
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	mean = sum.Div(n)

	sq := decimal.Zero
	for _, v := range values {
		diff := v.Sub(mean)
		sq = sq.Add(diff.Mul(diff))
	}
	variance := sq.Div(n)
	stddev = decimal.NewFromFloat(math.Sqrt(variance.InexactFloat64()))
	return mean.Round(4), stddev.Round(4)
}

// ComputeBaselines writes one baseline per indicator for the vehicle over period.
func (c *BaselineCalculator) ComputeBaselines(ctx context.Context, ref settlement.VehicleRef, period settlement.YearMonth, calcDate settlement.Date) ([]settlement.AnalysisBaseline, error) {
	days, err := c.Settlements.DailyRange(ctx, ref, period.FirstDay(), period.LastDay())
	if err != nil {
		return nil, fmt.Errorf("load daily settlements %s %s: %w", period, ref, err)
	}

	out := make([]settlement.AnalysisBaseline, 0, len(Indicators))
	for _, ind := range Indicators {
		values := make([]decimal.Decimal, 0, len(days))
		for _, d := range days {
			values = append(values, indicatorValue(ind, d))
		}
		mean, sd := MeanStdDev(values)
		b := settlement.AnalysisBaseline{
			CalculationDate: calcDate,
			Vehicle:         ref,
			Indicator:       ind,
			Period:          period,
			Mean:            mean,
			StdDev:          sd,
			SampleSize:      len(values),
		}
		if err := c.Baselines.UpsertBaseline(ctx, b); err != nil {
			return nil, fmt.Errorf("save %s baseline for %s: %w", ind, ref, err)
		}
		out = append(out, b)
	}
	return out, nil
}

// Sweep computes baselines for every active vehicle over the month before calcDate.
func (c *BaselineCalculator) Sweep(ctx context.Context, calcDate settlement.Date) (*settlement.BatchResult, error) {
	vehicles, err := c.Roster.ActiveVehicles(ctx, "")
	if err != nil {
		return nil, err
	}
	if len(vehicles) == 0 {
		return nil, settlement.ErrNoActiveVehicles
	}

	period := calcDate.YearMonth().Prev()
	res := settlement.RunBatch(ctx, "analysis_baseline", period.String(), vehicles, c.Concurrency,
		func(ctx context.Context, v settlement.Vehicle) (settlement.Outcome, error) {
			_, err := c.ComputeBaselines(ctx, v.VehicleRef, period, calcDate)
			return settlement.Outcome{}, err
		})
	log.Printf("[Anomaly] Baselines for %s: %d vehicles, %d failure(s)", period, res.Succeeded, res.Failed)
	return res, nil
}
