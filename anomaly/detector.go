package anomaly

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/minefleet/settlement-engine/settlement"
)

// Detector runs the rules for one vehicle or the whole active fleet.
type Detector struct {
	Settlements settlement.SettlementStore
	Roster      *settlement.Roster
	Alerts      *settlement.AlertWriter
	Rules       []Rule
	Concurrency int
}

func NewDetector(store settlement.Store, alerts *settlement.AlertWriter, cfg Config) *Detector {
	return &Detector{
		Settlements: store,
		Roster:      settlement.NewRoster(store),
		Alerts:      alerts,
		Rules:       cfg.Rules(),
		Concurrency: settlement.DefaultConcurrency,
	}
}

// CheckResult lists what each rule did for one vehicle.
type CheckResult struct {
	Vehicle settlement.VehicleRef
	Raised  []settlement.Alert
	Skipped []settlement.AlertType // window too short
}

// Check evaluates every rule for the vehicle as of the given day. Rules are
// independent: a failing rule does not stop the others, and their errors are
// joined.
func (d *Detector) Check(ctx context.Context, ref settlement.VehicleRef, asOf settlement.Date) (*CheckResult, error) {
	res := &CheckResult{Vehicle: ref}
	var errs []error

	for _, rule := range d.Rules {
		rows, err := d.Settlements.RecentDaily(ctx, ref, asOf, rule.WindowSize())
		if err != nil {
			errs = append(errs, fmt.Errorf("%s rule: load window: %w", rule.Name(), err))
			continue
		}
		if len(rows) < rule.WindowSize() {
			res.Skipped = append(res.Skipped, rule.Name())
			continue
		}

		alert := rule.Evaluate(ref, asOf, rows)
		if alert == nil {
			continue
		}
		stored, err := d.Alerts.Emit(ctx, *alert)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s rule: %w", rule.Name(), err))
			continue
		}
		if stored {
			log.Printf("[Anomaly] %s: %s", ref, alert.Content)
			res.Raised = append(res.Raised, *alert)
		}
	}
	return res, errors.Join(errs...)
}

// Sweep checks every active vehicle as of the given day.
func (d *Detector) Sweep(ctx context.Context, asOf settlement.Date) (*settlement.BatchResult, error) {
	vehicles, err := d.Roster.ActiveVehicles(ctx, "")
	if err != nil {
		return nil, err
	}
	if len(vehicles) == 0 {
		return nil, settlement.ErrNoActiveVehicles
	}

	var raised atomic.Int64
	res := settlement.RunBatch(ctx, "anomaly_check", asOf.String(), vehicles, d.Concurrency,
		func(ctx context.Context, v settlement.Vehicle) (settlement.Outcome, error) {
			r, err := d.Check(ctx, v.VehicleRef, asOf)
			if r != nil {
				raised.Add(int64(len(r.Raised)))
			}
			return settlement.Outcome{}, err
		})
	log.Printf("[Anomaly] Checked %d vehicles for %s: %d alert(s), %d failure(s)", res.Total, asOf, raised.Load(), res.Failed)
	return res, nil
}
