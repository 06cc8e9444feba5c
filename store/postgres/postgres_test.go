package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minefleet/settlement-engine/settlement"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var truck1 = settlement.VehicleRef{MachineryType: settlement.DumpTruck, VehicleNo: "T1"}

// newStore connects to POSTGRES_TEST_DSN, skipping when it is unset.
func newStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	s, err := New(dsn)
	require.NoError(t, err)
	for _, table := range []string{"daily_settlements", "alerts", "fuel_balances", "attendance_details", "attendance_masters"} {
		require.NoError(t, s.db.Exec("DELETE FROM "+table).Error)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// =============================================================================
// MODEL MAPPING
// =============================================================================

func TestDailyModel_KeepsKeyAndFigures(t *testing.T) {
	// GIVEN: a settlement with non-trivial figures
	f := settlement.ZeroFigures()
	f.TruckCount = 12
	f.Income = dec("1600.25")
	f.OilFee = dec("640.25")
	f.MealFee = dec("30")
	f.Recompute()
	in := settlement.DailySettlement{
		Key:     settlement.NewKey(settlement.NewDate(2025, time.March, 4), settlement.DumpTruck, "T1"),
		Figures: f,
	}

	// WHEN: it goes through the table model
	out := toDaily(in).settlement()

	// THEN: key and every figure survive
	assert.True(t, in.Date.Equal(out.Date))
	assert.Equal(t, in.Vehicle, out.Vehicle)
	assert.Equal(t, 12, out.TruckCount)
	assert.True(t, dec("960").Equal(out.Balance))
	assert.True(t, out.Consistent())
}

func TestMonthlyModel_RejectsBadPeriod(t *testing.T) {
	m := MonthlySettlement{YearMonth: "2025-13", MachineryType: "dump_truck", VehicleNo: "T1"}

	_, err := m.settlement()

	assert.Error(t, err)
}

func TestAssignmentModel_OpenEnded(t *testing.T) {
	m := DriverAssignment{
		PersonID:      "p1",
		MachineryType: "dump_truck",
		VehicleNo:     "T1",
		StartDate:     time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	a := m.assignment()

	assert.Nil(t, a.EndDate)
	assert.True(t, a.Covers(settlement.NewDate(2030, time.January, 1)))
}

func TestAlertModel_CarriesPayloadAndHandling(t *testing.T) {
	at := time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)
	in := settlement.Alert{
		ID:          uuid.NewString(),
		Type:        settlement.AlertFuel,
		Vehicle:     truck1,
		Severity:    settlement.SeverityHigh,
		RelatedDate: settlement.NewDate(2025, time.March, 4),
		Payload:     map[string]any{"threshold": 20},
		Status:      settlement.AlertHandled,
		Remark:      "checked",
		HandledAt:   &at,
	}

	out := toAlert(in).alert()

	assert.Equal(t, in, out)
}

// =============================================================================
// AGAINST A LIVE DATABASE
// =============================================================================

func TestUpsertDaily_UpdatesInPlace(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	key := settlement.NewKey(settlement.NewDate(2025, time.March, 4), settlement.DumpTruck, "T1")

	// GIVEN: a stored row
	f := settlement.ZeroFigures()
	f.Income = dec("100")
	f.Recompute()
	created, err := s.UpsertDaily(ctx, settlement.DailySettlement{Key: key, Figures: f})
	require.NoError(t, err)
	assert.True(t, created)
	first, err := s.FindDaily(ctx, key)
	require.NoError(t, err)

	// WHEN: the same key is upserted with new figures
	f.Income = dec("1600.25")
	f.OilFee = dec("640.25")
	f.Recompute()
	created, err = s.UpsertDaily(ctx, settlement.DailySettlement{Key: key, Figures: f})
	require.NoError(t, err)

	// THEN: one row, updated, created_at kept
	assert.False(t, created)
	got, err := s.FindDaily(ctx, key)
	require.NoError(t, err)
	assert.True(t, dec("960").Equal(got.Balance))
	assert.True(t, first.CreatedAt.Equal(got.CreatedAt))

	rows, err := s.DailyRange(ctx, truck1, key.Date, key.Date)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestInsertAlert_DuplicateKey(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	a := settlement.Alert{
		ID:          uuid.NewString(),
		Type:        settlement.AlertProfit,
		Vehicle:     truck1,
		Severity:    settlement.SeverityMedium,
		RelatedDate: settlement.NewDate(2025, time.March, 4),
		Status:      settlement.AlertUnhandled,
		CreatedAt:   time.Now(),
	}
	require.NoError(t, s.InsertAlert(ctx, a))

	a.ID = uuid.NewString()
	err := s.InsertAlert(ctx, a)

	assert.ErrorIs(t, err, settlement.ErrAlreadyRecorded)
}

func TestUpdateAlertStatus_UnknownID(t *testing.T) {
	s := newStore(t)

	got, err := s.UpdateAlertStatus(context.Background(), uuid.NewString(), settlement.AlertHandled, "", time.Now())

	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestInsertFuelBalance_AppendOnly(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	b := settlement.FuelBalance{
		Key:            settlement.NewKey(settlement.NewDate(2025, time.March, 4), settlement.DumpTruck, "T1"),
		OpeningBalance: decimal.Zero,
		RefuelAmount:   dec("200"),
		ClosingBalance: dec("146"),
		CreatedAt:      time.Now(),
	}
	require.NoError(t, s.InsertFuelBalance(ctx, b))

	err := s.InsertFuelBalance(ctx, b)

	assert.ErrorIs(t, err, settlement.ErrAlreadyRecorded)
}
