/*
engine.go - Daily settlement engine

PURPOSE:
  Combines the aggregators into one DailySettlement per (date, vehicle) and
  upserts it. GenerateDaily runs that for every active vehicle.

FLOW (per vehicle):
  1. trips -> truck_count, total_capacity, income
  2. fuel purchases -> oil_amount, oil_fee
  3. shift hours x shift rate -> shift_fee
  4. deductions, meal fees, misc fees, driver salary, repairs
  5. Recompute(): balance = income - oil_fee, actual_balance = balance - charges
  6. UpsertDaily by natural key

IDEMPOTENCE:
  Compute is a pure function of the stored source rows and prices. Running
  Settle twice with unchanged data writes the same row twice, in place.

CONCURRENCY:
  GenerateDaily holds the per-date lease "daily-settlement:<date>" for the
  whole batch, so a manual re-run and a scheduled run for the same day never
  interleave. Vehicles inside a batch run in parallel (see batch.go).

SEE ALSO:
  - aggregate.go: the aggregators
  - batch.go: RunBatch and BatchResult
  - monthly.go: rollups that read the rows written here
*/
package settlement

import (
	"context"
	"fmt"
	"log"
	"time"
)

// DefaultLeaseTTL bounds how long a crashed run can block a date.
const DefaultLeaseTTL = 30 * time.Minute

// Engine computes and persists daily settlements.
type Engine struct {
	Sources     SourceStore
	Settlements SettlementStore
	Prices      *PriceResolver
	Roster      *Roster
	Income      IncomeStrategies

	// Lease guards GenerateDaily per date. Nil disables the guard.
	Lease       Lease
	LeaseTTL    time.Duration
	Concurrency int
	Now         func() time.Time
}

// NewEngine wires an engine over a single store.
func NewEngine(store Store) *Engine {
	return &Engine{
		Sources:     store,
		Settlements: store,
		Prices:      NewPriceResolver(store),
		Roster:      NewRoster(store),
		Income:      DefaultIncomeStrategies(),
		LeaseTTL:    DefaultLeaseTTL,
		Concurrency: DefaultConcurrency,
		Now:         time.Now,
	}
}

// Computation is a computed settlement plus what the aggregators noticed.
type Computation struct {
	Settlement DailySettlement
	// UnrecognizedFees are misc-fee rows whose label matched no bucket.
	UnrecognizedFees []MiscFee
}

// Compute builds the settlement for key without writing it.
func (e *Engine) Compute(ctx context.Context, key Key) (*Computation, error) {
	if !key.Vehicle.MachineryType.Valid() || key.Vehicle.VehicleNo == "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidKey, key)
	}

	f := ZeroFigures()
	if err := e.aggregateTrips(ctx, key, &f); err != nil {
		return nil, err
	}
	if err := e.aggregateFuel(ctx, key, &f); err != nil {
		return nil, err
	}
	if err := e.aggregateShift(ctx, key, &f); err != nil {
		return nil, err
	}
	if err := e.aggregateDeductions(ctx, key, &f); err != nil {
		return nil, err
	}

	drivers, err := e.Roster.DriversForVehicle(ctx, key.Vehicle, key.Date)
	if err != nil {
		return nil, err
	}
	if err := e.aggregateMeals(ctx, key, drivers, &f); err != nil {
		return nil, err
	}
	unknown, err := e.aggregateMisc(ctx, key, &f)
	if err != nil {
		return nil, err
	}
	f.DriverSalary = SumSalaries(drivers)
	if err := e.aggregateRepairs(ctx, key, &f); err != nil {
		return nil, err
	}

	f.Recompute()

	for _, u := range unknown {
		log.Printf("[Settlement] %s: unrecognized misc fee type %q (%s) not counted", key, u.FeeType, u.Amount)
	}
	return &Computation{
		Settlement:       DailySettlement{Key: key, Figures: f},
		UnrecognizedFees: unknown,
	}, nil
}

// ComputeDailySettlement is Compute without the diagnostics.
func (e *Engine) ComputeDailySettlement(ctx context.Context, date Date, mt MachineryType, vehicleNo string) (DailySettlement, error) {
	c, err := e.Compute(ctx, NewKey(date, mt, vehicleNo))
	if err != nil {
		return DailySettlement{}, err
	}
	return c.Settlement, nil
}

// Settle computes the settlement for key and upserts it.
func (e *Engine) Settle(ctx context.Context, key Key) (*Computation, error) {
	c, err := e.Compute(ctx, key)
	if err != nil {
		return nil, err
	}
	now := e.now()
	c.Settlement.CreatedAt = now
	c.Settlement.UpdatedAt = now
	if _, err := e.Settlements.UpsertDaily(ctx, c.Settlement); err != nil {
		return nil, fmt.Errorf("save settlement %s: %w", key, err)
	}
	return c, nil
}

// GenerateDaily settles every active vehicle for date. The returned error is
// only for failures that stop the whole run (lease held, no vehicles, roster
// unreachable); per-vehicle failures are in the result.
func (e *Engine) GenerateDaily(ctx context.Context, date Date) (*BatchResult, error) {
	release, err := e.acquire(ctx, "daily-settlement:"+date.String())
	if err != nil {
		return nil, err
	}
	defer release()

	vehicles, err := e.Roster.ActiveVehicles(ctx, "")
	if err != nil {
		return nil, err
	}
	if len(vehicles) == 0 {
		return nil, ErrNoActiveVehicles
	}

	log.Printf("[Settlement] Generating daily settlements for %s (%d vehicles)", date, len(vehicles))
	res := RunBatch(ctx, "daily_settlement", date.String(), vehicles, e.Concurrency,
		func(ctx context.Context, v Vehicle) (Outcome, error) {
			c, err := e.Settle(ctx, Key{Date: date, Vehicle: v.VehicleRef})
			if err != nil {
				return Outcome{}, err
			}
			return Outcome{UnrecognizedFees: len(c.UnrecognizedFees)}, nil
		})
	log.Printf("[Settlement] Daily %s: %d succeeded, %d failed", date, res.Succeeded, res.Failed)
	return res, nil
}

func (e *Engine) acquire(ctx context.Context, key string) (Release, error) {
	if e.Lease == nil {
		return func() {}, nil
	}
	ttl := e.LeaseTTL
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return e.Lease.Acquire(ctx, key, ttl)
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}
