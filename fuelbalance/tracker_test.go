package fuelbalance_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minefleet/settlement-engine/fuelbalance"
	"github.com/minefleet/settlement-engine/settlement"
	"github.com/minefleet/settlement-engine/settlement/store"
)

var (
	truck1 = settlement.VehicleRef{MachineryType: settlement.DumpTruck, VehicleNo: "T1"}
	truck2 = settlement.VehicleRef{MachineryType: settlement.DumpTruck, VehicleNo: "T2"}
)

func d(s string) settlement.Date { return settlement.MustParseDate(s) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got.String())
}

// seedDay stores a settlement consuming oil liters over trucks trips, plus one purchase of refuel liters.
func seedDay(t *testing.T, mem *store.Memory, ref settlement.VehicleRef, date settlement.Date, refuel, oil string, trucks int) {
	t.Helper()
	key := settlement.Key{Date: date, Vehicle: ref}
	f := settlement.ZeroFigures()
	f.OilAmount = dec(oil)
	f.TruckCount = trucks
	_, err := mem.UpsertDaily(context.Background(), settlement.DailySettlement{Key: key, Figures: f})
	require.NoError(t, err)
	if refuel != "0" {
		mem.AddFuelPurchase(settlement.FuelPurchase{Key: key, OilAmount: dec(refuel), TotalFee: decimal.Zero})
	}
}

func newTracker(mem *store.Memory) *fuelbalance.Tracker {
	return fuelbalance.NewTracker(mem, settlement.NewAlertWriter(mem, nil), fuelbalance.DefaultConfig())
}

func TestTracker_Chaining(t *testing.T) {
	// GIVEN: Day 1 refuel 50 / consume 30, day 2 refuel 0 / consume 5
	// WHEN: Computing both days in order
	// THEN: Day 1 closes at 20 and day 2 opens at 20

	mem := store.NewMemory()
	seedDay(t, mem, truck1, d("2025-03-01"), "50", "30", 10)
	seedDay(t, mem, truck1, d("2025-03-02"), "0", "5", 2)
	tr := newTracker(mem)
	ctx := context.Background()

	day1, err := tr.Compute(ctx, settlement.Key{Date: d("2025-03-01"), Vehicle: truck1})
	require.NoError(t, err)
	assertDec(t, "0", day1.OpeningBalance)
	assertDec(t, "50", day1.RefuelAmount)
	assertDec(t, "30", day1.ConsumptionAmount)
	assertDec(t, "20", day1.ClosingBalance)
	assertDec(t, "45", day1.TheoreticalConsumption)
	assertDec(t, "-15", day1.ConsumptionDifference)

	day2, err := tr.Compute(ctx, settlement.Key{Date: d("2025-03-02"), Vehicle: truck1})
	require.NoError(t, err)
	assertDec(t, "20", day2.OpeningBalance)
	assertDec(t, "15", day2.ClosingBalance)
}

func TestTracker_GapKeepsChain(t *testing.T) {
	// GIVEN: Day 1 closes at 20, day 2 has no row, day 3 refuels 10 and consumes 5
	mem := store.NewMemory()
	seedDay(t, mem, truck1, d("2025-03-01"), "50", "30", 10)
	seedDay(t, mem, truck1, d("2025-03-03"), "10", "5", 2)
	tr := newTracker(mem)
	ctx := context.Background()

	_, err := tr.Compute(ctx, settlement.Key{Date: d("2025-03-01"), Vehicle: truck1})
	require.NoError(t, err)

	// WHEN: Day 3 is computed
	day3, err := tr.Compute(ctx, settlement.Key{Date: d("2025-03-03"), Vehicle: truck1})

	// THEN: It opens from day 1's closing
	require.NoError(t, err)
	assertDec(t, "20", day3.OpeningBalance)
	assertDec(t, "25", day3.ClosingBalance)
}

func TestTracker_ChainsArePerVehicle(t *testing.T) {
	mem := store.NewMemory()
	seedDay(t, mem, truck1, d("2025-03-01"), "50", "30", 10)
	seedDay(t, mem, truck2, d("2025-03-02"), "10", "0", 0)
	tr := newTracker(mem)
	ctx := context.Background()

	_, err := tr.Compute(ctx, settlement.Key{Date: d("2025-03-01"), Vehicle: truck1})
	require.NoError(t, err)

	other, err := tr.Compute(ctx, settlement.Key{Date: d("2025-03-02"), Vehicle: truck2})
	require.NoError(t, err)
	assertDec(t, "0", other.OpeningBalance)
	assertDec(t, "10", other.ClosingBalance)
}

func TestTracker_MissingSettlement_Skips(t *testing.T) {
	mem := store.NewMemory()

	_, err := newTracker(mem).Compute(context.Background(), settlement.Key{Date: d("2025-03-01"), Vehicle: truck1})
	assert.ErrorIs(t, err, settlement.ErrSettlementMissing)
	assert.True(t, settlement.IsSkip(err))
}

func TestTracker_AppendOnly(t *testing.T) {
	// GIVEN: A recorded day
	// WHEN: The settlement changes and the day is computed again
	// THEN: The stored row is unchanged

	mem := store.NewMemory()
	seedDay(t, mem, truck1, d("2025-03-01"), "50", "30", 10)
	tr := newTracker(mem)
	ctx := context.Background()
	key := settlement.Key{Date: d("2025-03-01"), Vehicle: truck1}

	_, err := tr.Compute(ctx, key)
	require.NoError(t, err)

	seedDay(t, mem, truck1, d("2025-03-01"), "0", "40", 10)
	existing, err := tr.Compute(ctx, key)
	assert.ErrorIs(t, err, settlement.ErrAlreadyRecorded)
	require.NotNil(t, existing)
	assertDec(t, "30", existing.ConsumptionAmount)
}

func TestTracker_RefuelAlert(t *testing.T) {
	// GIVEN: 10 trips (45 L theoretical) and 60 L consumed, 33% over
	// WHEN: Computing the day
	// THEN: One medium refuel alert is raised and the balance is still written

	mem := store.NewMemory()
	seedDay(t, mem, truck1, d("2025-03-01"), "100", "60", 10)

	b, err := newTracker(mem).Compute(context.Background(), settlement.Key{Date: d("2025-03-01"), Vehicle: truck1})
	require.NoError(t, err)
	assertDec(t, "15", b.ConsumptionDifference)

	alerts := mem.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, settlement.AlertRefuel, alerts[0].Type)
	assert.Equal(t, settlement.SeverityMedium, alerts[0].Severity)
	assert.Equal(t, "40", alerts[0].Payload["closing_balance"])
}

func TestConfig_Excessive(t *testing.T) {
	cfg := fuelbalance.DefaultConfig()
	key := settlement.Key{Date: d("2025-03-01"), Vehicle: truck1}

	tests := []struct {
		name   string
		oil    string
		trucks int
		want   bool
	}{
		{"exactly 20 percent over", "54", 10, false},
		{"above 20 percent", "54.1", 10, true},
		{"under theory", "10", 10, false},
		{"no trips", "100", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := settlement.ZeroFigures()
			f.OilAmount = dec(tt.oil)
			f.TruckCount = tt.trucks
			b := cfg.Calculate(key, decimal.Zero, nil, settlement.DailySettlement{Key: key, Figures: f})
			assert.Equal(t, tt.want, cfg.Excessive(b))
		})
	}
}

func TestTracker_Sweep(t *testing.T) {
	mem := store.NewMemory()
	mem.SaveVehicle(settlement.Vehicle{VehicleRef: truck1, Status: settlement.VehicleActive})
	mem.SaveVehicle(settlement.Vehicle{VehicleRef: truck2, Status: settlement.VehicleActive})
	seedDay(t, mem, truck1, d("2025-03-01"), "50", "30", 10)

	res, err := newTracker(mem).Sweep(context.Background(), d("2025-03-01"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, res.Failed)
}
