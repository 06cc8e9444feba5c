package settlement_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minefleet/settlement-engine/settlement"
	"github.com/minefleet/settlement-engine/settlement/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func d(s string) settlement.Date { return settlement.MustParseDate(s) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got.String())
}

var (
	truck1 = settlement.VehicleRef{MachineryType: settlement.DumpTruck, VehicleNo: "T1"}
	truck2 = settlement.VehicleRef{MachineryType: settlement.DumpTruck, VehicleNo: "T2"}
	exc1   = settlement.VehicleRef{MachineryType: settlement.Excavator, VehicleNo: "E1"}
	dozer1 = settlement.VehicleRef{MachineryType: settlement.Bulldozer, VehicleNo: "B1"}
)

func activeVehicle(ref settlement.VehicleRef) settlement.Vehicle {
	return settlement.Vehicle{VehicleRef: ref, Status: settlement.VehicleActive}
}

// seedPrices registers prices effective from 2025-01-01. Bulldozers get no
// shift rate so they fail to settle.
func seedPrices(mem *store.Memory) {
	eff := d("2025-01-01")
	mem.SavePrice(settlement.PriceRecord{Category: settlement.ShiftCategory(settlement.DumpTruck), EffectiveDate: eff, Price: dec("100")})
	mem.SavePrice(settlement.PriceRecord{Category: settlement.ShiftCategory(settlement.Excavator), EffectiveDate: eff, Price: dec("200")})
	mem.SavePrice(settlement.PriceRecord{Category: settlement.ExcavatorCoefficientCategory, EffectiveDate: eff, Price: dec("2")})
	mem.SavePrice(settlement.PriceRecord{Category: settlement.MealCategory(settlement.MealNormal), EffectiveDate: eff, Price: dec("30")})
}

// seedTruckDay loads one full day of source records for truck1.
func seedTruckDay(mem *store.Memory, date settlement.Date) {
	key := settlement.Key{Date: date, Vehicle: truck1}

	mem.AddTrip(settlement.TripRecord{Date: date, TruckNo: "T1", ExcavatorNo: "E1", TruckCount: 10, TotalCapacity: dec("100"), TotalFee: dec("1000")})
	mem.AddTrip(settlement.TripRecord{Date: date, TruckNo: "T1", ExcavatorNo: "E1", TruckCount: 5, TotalCapacity: dec("50"), TotalFee: dec("500")})
	mem.AddFuelPurchase(settlement.FuelPurchase{Key: key, OilType: "0#", OilAmount: dec("100"), TotalFee: dec("800")})
	mem.AddFuelPurchase(settlement.FuelPurchase{Key: key, OilType: "0#", OilAmount: dec("20"), TotalFee: dec("160")})
	mem.SaveShift(settlement.ShiftRecord{Key: key, WorkHours: dec("8")})
	mem.AddDeduction(settlement.Deduction{Key: key, Amount: dec("50"), Reason: "overload"})
	mem.AddMiscFee(settlement.MiscFee{Key: key, FeeType: "medical", Amount: dec("10")})
	mem.AddMiscFee(settlement.MiscFee{Key: key, FeeType: "对讲机", Amount: dec("5")})
	mem.AddMiscFee(settlement.MiscFee{Key: key, FeeType: "coffee", Amount: dec("7")})
	mem.AddRepair(settlement.RepairRecord{Key: key, RepairFee: dec("100"), PartsFee: dec("50")})

	mem.SaveAssignment(settlement.DriverAssignment{
		PersonID: "p1", PersonName: "Driver One", Vehicle: truck1,
		StartDate: d("2025-01-01"), DailySalary: dec("300"),
	})
	mem.SaveAttendanceMaster(settlement.AttendanceMaster{ID: "m-" + date.YearMonth().String(), YearMonth: date.YearMonth(), Status: settlement.AttendanceEditing})
	mem.SaveAttendanceDetail(settlement.AttendanceDetail{
		MasterID: "m-" + date.YearMonth().String(), PersonID: "p1", Date: date,
		AttendanceStatus: settlement.AttendancePresent, MealStatus: settlement.MealNormal,
	})
}

func newTestEngine(t *testing.T) (*settlement.Engine, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	seedPrices(mem)
	engine := settlement.NewEngine(mem)
	engine.Now = func() time.Time { return time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC) }
	return engine, mem
}

type heldLease struct{}

func (heldLease) Acquire(context.Context, string, time.Duration) (settlement.Release, error) {
	return nil, settlement.ErrLeaseHeld
}

// =============================================================================
// COMPUTATION TESTS
// =============================================================================

func TestCompute_DumpTruck_AllAggregators(t *testing.T) {
	// GIVEN: A dump truck with trips, fuel, shift, deduction, misc fees, a driver and repairs
	// WHEN: Computing the day's settlement
	// THEN: Every field matches the hand-computed value

	engine, mem := newTestEngine(t)
	day := d("2025-03-10")
	seedTruckDay(mem, day)

	c, err := engine.Compute(context.Background(), settlement.Key{Date: day, Vehicle: truck1})
	require.NoError(t, err)
	s := c.Settlement

	assert.Equal(t, 15, s.TruckCount)
	assertDec(t, "150", s.TotalCapacity)
	assertDec(t, "1500", s.Income)
	assertDec(t, "120", s.OilAmount)
	assertDec(t, "960", s.OilFee)
	assertDec(t, "8", s.WorkHours)
	assertDec(t, "800", s.ShiftFee)
	assertDec(t, "540", s.Balance)
	assertDec(t, "50", s.Deduction)
	assertDec(t, "30", s.MealFee)
	assertDec(t, "10", s.MedicalFee)
	assertDec(t, "5", s.WalkieTalkieFee)
	assertDec(t, "0", s.SafetyInsuranceFee)
	assertDec(t, "300", s.DriverSalary)
	assertDec(t, "100", s.RepairFee)
	assertDec(t, "50", s.PartsFee)

	// 540 - 800 - 50 - 15 - 300 - 100 - 50; meal fee is not deducted
	assertDec(t, "-775", s.ActualBalance)
	assert.True(t, s.Consistent())

	require.Len(t, c.UnrecognizedFees, 1)
	assert.Equal(t, "coffee", c.UnrecognizedFees[0].FeeType)
}

func TestCompute_Excavator_IncomeByVolume(t *testing.T) {
	// GIVEN: Trip lines naming excavator E1 with 150 capacity and a coefficient of 2
	// WHEN: Computing E1's settlement
	// THEN: Income is 300, and the per-trip fee is ignored

	engine, mem := newTestEngine(t)
	day := d("2025-03-10")
	mem.AddTrip(settlement.TripRecord{Date: day, TruckNo: "T1", ExcavatorNo: "E1", TruckCount: 10, TotalCapacity: dec("100"), TotalFee: dec("1000")})
	mem.AddTrip(settlement.TripRecord{Date: day, TruckNo: "T2", ExcavatorNo: "E1", TruckCount: 5, TotalCapacity: dec("50"), TotalFee: dec("500")})
	mem.AddTrip(settlement.TripRecord{Date: day, TruckNo: "T3", ExcavatorNo: "E2", TruckCount: 7, TotalCapacity: dec("70"), TotalFee: dec("700")})

	s, err := engine.ComputeDailySettlement(context.Background(), day, settlement.Excavator, "E1")
	require.NoError(t, err)

	assert.Equal(t, 15, s.TruckCount)
	assertDec(t, "150", s.TotalCapacity)
	assertDec(t, "300", s.Income)
	assertDec(t, "0", s.WorkHours)
	assertDec(t, "0", s.ShiftFee)
	assertDec(t, "300", s.ActualBalance)
}

func TestCompute_NoShiftRecord_ZeroHours(t *testing.T) {
	engine, _ := newTestEngine(t)

	s, err := engine.ComputeDailySettlement(context.Background(), d("2025-03-10"), settlement.DumpTruck, "T9")
	require.NoError(t, err)
	assertDec(t, "0", s.WorkHours)
	assertDec(t, "0", s.ActualBalance)
}

func TestCompute_MissingPrice_FailsLoudly(t *testing.T) {
	// GIVEN: No shift rate exists for bulldozers
	// WHEN: Computing a bulldozer's settlement
	// THEN: The computation fails with a price-not-found error naming the category

	engine, _ := newTestEngine(t)

	_, err := engine.Compute(context.Background(), settlement.Key{Date: d("2025-03-10"), Vehicle: dozer1})
	require.Error(t, err)
	assert.ErrorIs(t, err, settlement.ErrPriceNotFound)
	assert.True(t, settlement.IsNotFound(err))

	var pnf *settlement.PriceNotFoundError
	require.True(t, errors.As(err, &pnf))
	assert.Equal(t, settlement.ShiftCategory(settlement.Bulldozer), pnf.Category)
}

func TestCompute_PriceBeforeEffectiveDate_Fails(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.ComputeDailySettlement(context.Background(), d("2024-12-31"), settlement.DumpTruck, "T1")
	assert.ErrorIs(t, err, settlement.ErrPriceNotFound)
}

func TestCompute_InvalidKey(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.ComputeDailySettlement(context.Background(), d("2025-03-10"), "crane", "C1")
	assert.ErrorIs(t, err, settlement.ErrInvalidKey)

	_, err = engine.ComputeDailySettlement(context.Background(), d("2025-03-10"), settlement.DumpTruck, "")
	assert.ErrorIs(t, err, settlement.ErrInvalidKey)
}

func TestCompute_DriverWithoutAttendance_NoMealFee(t *testing.T) {
	// GIVEN: A driver assigned to the truck but no attendance master for the month
	// WHEN: Computing the settlement
	// THEN: Salary is charged, meal fee is zero, and no error is raised

	engine, mem := newTestEngine(t)
	mem.SaveAssignment(settlement.DriverAssignment{PersonID: "p2", Vehicle: truck2, StartDate: d("2025-01-01"), DailySalary: dec("250")})

	s, err := engine.ComputeDailySettlement(context.Background(), d("2025-03-10"), settlement.DumpTruck, "T2")
	require.NoError(t, err)
	assertDec(t, "0", s.MealFee)
	assertDec(t, "250", s.DriverSalary)
}

func TestCompute_DriverAssignmentCoverage(t *testing.T) {
	// GIVEN: One assignment that ended the day before, one that ends on the day
	// WHEN: Computing the settlement
	// THEN: Only the assignment covering the day contributes salary

	engine, mem := newTestEngine(t)
	before := d("2025-03-09")
	on := d("2025-03-10")
	mem.SaveAssignment(settlement.DriverAssignment{PersonID: "old", Vehicle: truck2, StartDate: d("2025-01-01"), EndDate: &before, DailySalary: dec("100")})
	mem.SaveAssignment(settlement.DriverAssignment{PersonID: "cur", Vehicle: truck2, StartDate: d("2025-03-01"), EndDate: &on, DailySalary: dec("200")})

	s, err := engine.ComputeDailySettlement(context.Background(), on, settlement.DumpTruck, "T2")
	require.NoError(t, err)
	assertDec(t, "200", s.DriverSalary)
}

// =============================================================================
// IDEMPOTENCE TESTS
// =============================================================================

func TestSettle_TwiceUpdatesInPlace(t *testing.T) {
	// GIVEN: A settled day
	// WHEN: Settling the same key again with unchanged data
	// THEN: One row exists and its figures are identical

	engine, mem := newTestEngine(t)
	ctx := context.Background()
	day := d("2025-03-10")
	seedTruckDay(mem, day)
	key := settlement.Key{Date: day, Vehicle: truck1}

	_, err := engine.Settle(ctx, key)
	require.NoError(t, err)
	first, err := mem.FindDaily(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, first)

	_, err = engine.Settle(ctx, key)
	require.NoError(t, err)
	second, err := mem.FindDaily(ctx, key)
	require.NoError(t, err)

	assert.Equal(t, first.Figures, second.Figures)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	rows, err := mem.ListDaily(ctx, day, day)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

// =============================================================================
// BATCH TESTS
// =============================================================================

func TestGenerateDaily_PartialFailure(t *testing.T) {
	// GIVEN: Three active vehicles, one of which has no shift price
	// WHEN: Generating the day's settlements
	// THEN: Two succeed and are stored, one fails and is reported

	engine, mem := newTestEngine(t)
	ctx := context.Background()
	day := d("2025-03-10")
	seedTruckDay(mem, day)
	mem.SaveVehicle(activeVehicle(truck1))
	mem.SaveVehicle(activeVehicle(exc1))
	mem.SaveVehicle(activeVehicle(dozer1))
	mem.SaveVehicle(settlement.Vehicle{VehicleRef: truck2, Status: settlement.VehicleStopped})

	res, err := engine.GenerateDaily(ctx, day)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.UnrecognizedFees)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, dozer1, res.Failures[0].Vehicle)
	assert.ErrorIs(t, res.Failures[0].Err, settlement.ErrPriceNotFound)

	batchErr := res.Err()
	require.Error(t, batchErr)
	assert.True(t, settlement.IsBatchError(batchErr))
	assert.Contains(t, res.FailedVehicles(), dozer1.String())

	for _, ref := range []settlement.VehicleRef{truck1, exc1} {
		row, err := mem.FindDaily(ctx, settlement.Key{Date: day, Vehicle: ref})
		require.NoError(t, err)
		require.NotNil(t, row, "missing settlement for %s", ref)
		assert.True(t, row.Consistent())
	}
	row, err := mem.FindDaily(ctx, settlement.Key{Date: day, Vehicle: dozer1})
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestGenerateDaily_NoActiveVehicles_Aborts(t *testing.T) {
	engine, _ := newTestEngine(t)

	res, err := engine.GenerateDaily(context.Background(), d("2025-03-10"))
	assert.ErrorIs(t, err, settlement.ErrNoActiveVehicles)
	assert.Nil(t, res)
}

func TestGenerateDaily_LeaseHeld(t *testing.T) {
	// GIVEN: Another run holds the lease for the date
	// WHEN: Generating the day's settlements
	// THEN: The run refuses to start

	engine, mem := newTestEngine(t)
	mem.SaveVehicle(activeVehicle(truck1))
	engine.Lease = heldLease{}

	_, err := engine.GenerateDaily(context.Background(), d("2025-03-10"))
	assert.ErrorIs(t, err, settlement.ErrLeaseHeld)
}
