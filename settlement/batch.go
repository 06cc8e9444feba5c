package settlement

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds how many vehicles one batch computes at once.
const DefaultConcurrency = 4

// BatchResult reports the outcome of a multi-vehicle run.
type BatchResult struct {
	Operation        string           `json:"operation"`
	Period           string           `json:"period"`
	Total            int              `json:"total"`
	Succeeded        int              `json:"succeeded"`
	Failed           int              `json:"failed"`
	Skipped          int              `json:"skipped"`
	Failures         []VehicleFailure `json:"-"`
	UnrecognizedFees int              `json:"unrecognized_fees"`
	StartedAt        time.Time        `json:"started_at"`
	FinishedAt       time.Time        `json:"finished_at"`
}

// Err returns a *BatchError when any vehicle failed, nil otherwise.
func (r *BatchResult) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	return &BatchError{Operation: r.Operation, Failures: r.Failures}
}

// Outcome is what a per-vehicle function reports back to the batch.
type Outcome struct {
	UnrecognizedFees int
}

// RunBatch calls fn for every vehicle on a bounded worker group. A failing
// vehicle is logged and recorded; it never cancels the others. Errors for
// which IsSkip holds count as skipped, not failed.
func RunBatch(ctx context.Context, operation, period string, vehicles []Vehicle, concurrency int,
	fn func(ctx context.Context, v Vehicle) (Outcome, error)) *BatchResult {

	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	res := &BatchResult{
		Operation: operation,
		Period:    period,
		Total:     len(vehicles),
		StartedAt: time.Now(),
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(concurrency)

	for _, v := range vehicles {
		g.Go(func() error {
			out, err := fn(ctx, v)

			mu.Lock()
			defer mu.Unlock()
			res.UnrecognizedFees += out.UnrecognizedFees
			switch {
			case err == nil:
				res.Succeeded++
			case IsSkip(err):
				res.Skipped++
			default:
				res.Failed++
				res.Failures = append(res.Failures, VehicleFailure{Vehicle: v.VehicleRef, Err: err})
				log.Printf("[Settlement] %s %s: %s failed: %v", operation, period, v.VehicleRef, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(res.Failures, func(i, j int) bool {
		return res.Failures[i].Vehicle.String() < res.Failures[j].Vehicle.String()
	})
	res.FinishedAt = time.Now()
	return res
}

// FailedVehicles lists the failing vehicles and their messages.
func (r *BatchResult) FailedVehicles() map[string]string {
	out := make(map[string]string, len(r.Failures))
	for _, f := range r.Failures {
		out[f.Vehicle.String()] = f.Err.Error()
	}
	return out
}

// IsBatchError reports whether err carries per-vehicle failures.
func IsBatchError(err error) bool {
	var be *BatchError
	return errors.As(err, &be)
}
