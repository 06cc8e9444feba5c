/*
handlers_test.go - Unit tests for API handlers

Tests for:
- Daily compute / refresh / refresh-all and error status mapping
- Monthly rollup query
- Alert resolve and stats
- Fuel per truck trip
- Fuel balance calculation
- Monthly salary
- Spreadsheet export
- Scheduler status and manual trigger
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minefleet/settlement-engine/anomaly"
	"github.com/minefleet/settlement-engine/attendance"
	"github.com/minefleet/settlement-engine/report"
	"github.com/minefleet/settlement-engine/scheduler"
	"github.com/minefleet/settlement-engine/settlement"
	"github.com/minefleet/settlement-engine/settlement/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var (
	day    = settlement.MustParseDate("2025-03-10")
	truck1 = settlement.VehicleRef{MachineryType: settlement.DumpTruck, VehicleNo: "T1"}
	dozer1 = settlement.VehicleRef{MachineryType: settlement.Bulldozer, VehicleNo: "B1"}
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got.String())
}

// seedFleet loads one dump truck with a day of records. Income 1500, oil
// 960, 8 shift hours at 100: actual balance -260.
func seedFleet(mem *store.Memory) {
	key := settlement.Key{Date: day, Vehicle: truck1}
	mem.SaveVehicle(settlement.Vehicle{VehicleRef: truck1, Status: settlement.VehicleActive})
	mem.SavePrice(settlement.PriceRecord{
		Category:      settlement.ShiftCategory(settlement.DumpTruck),
		EffectiveDate: settlement.MustParseDate("2025-01-01"),
		Price:         dec("100"),
	})
	mem.AddTrip(settlement.TripRecord{Date: day, TruckNo: "T1", ExcavatorNo: "E1", TruckCount: 15, TotalCapacity: dec("150"), TotalFee: dec("1500")})
	mem.AddFuelPurchase(settlement.FuelPurchase{Key: key, OilType: "0#", OilAmount: dec("120"), TotalFee: dec("960")})
	mem.SaveShift(settlement.ShiftRecord{Key: key, WorkHours: dec("8")})
}

func newTestHandler(t *testing.T) (*Handler, *store.Memory, *chi.Mux) {
	t.Helper()
	mem := store.NewMemory()
	seedFleet(mem)
	h := NewHandler(mem, settlement.NewAlertWriter(mem, nil), nil)
	return h, mem, NewRouter(h)
}

func withScheduler(t *testing.T, h *Handler, mem *store.Memory) {
	t.Helper()
	s := scheduler.New()
	require.NoError(t, scheduler.RegisterDefaults(s, scheduler.Services{
		Daily:        h.Engine,
		Monthly:      h.Rollup,
		Attendance:   attendance.NewGenerator(mem),
		Baselines:    anomaly.NewBaselineCalculator(mem),
		Anomalies:    h.Detector,
		FuelBalances: h.FuelBalances,
	}, scheduler.DefaultSchedule()))
	h.Scheduler = s
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// =============================================================================
// DAILY SETTLEMENT TESTS
// =============================================================================

func TestComputeDaily_DoesNotStore(t *testing.T) {
	// GIVEN: A truck with a day of records
	_, mem, router := newTestHandler(t)

	// WHEN: Computing the day over HTTP
	rec := do(t, router, http.MethodGet, "/api/settlement/daily/?date=2025-03-10&machinery_type=dump_truck&vehicle_no=T1", nil)

	// THEN: The figures come back and nothing is written
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[DailySettlementDTO](t, rec)
	assert.Equal(t, "2025-03-10", got.RecordDate)
	assert.Equal(t, 15, got.TruckCount)
	assertDec(t, "1500", got.Income)
	assertDec(t, "540", got.Balance)
	assertDec(t, "-260", got.ActualBalance)

	stored, err := mem.FindDaily(context.Background(), settlement.Key{Date: day, Vehicle: truck1})
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestComputeDaily_Errors(t *testing.T) {
	_, _, router := newTestHandler(t)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"bad date", "/api/settlement/daily/?date=10-03-2025&machinery_type=dump_truck&vehicle_no=T1", http.StatusBadRequest},
		{"unknown machinery type", "/api/settlement/daily/?date=2025-03-10&machinery_type=crane&vehicle_no=C1", http.StatusBadRequest},
		{"missing shift price", "/api/settlement/daily/?date=2025-03-10&machinery_type=bulldozer&vehicle_no=B1", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[ErrorResponse](t, rec).Error)
		})
	}
}

func TestRefreshDaily_StoresRow(t *testing.T) {
	_, mem, router := newTestHandler(t)

	rec := do(t, router, http.MethodPost, "/api/settlement/daily/refresh",
		RefreshDailyRequest{Date: "2025-03-10", MachineryType: "dump_truck", VehicleNo: "T1"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stored, err := mem.FindDaily(context.Background(), settlement.Key{Date: day, Vehicle: truck1})
	require.NoError(t, err)
	require.NotNil(t, stored)
	assertDec(t, "-260", stored.ActualBalance)

	list := do(t, router, http.MethodGet, "/api/settlement/daily/list?from=2025-03-01&to=2025-03-31", nil)
	require.Equal(t, http.StatusOK, list.Code)
	assert.Len(t, decode[[]DailySettlementDTO](t, list), 1)
}

func TestRefreshAllDaily_ReportsPartialFailure(t *testing.T) {
	// GIVEN: A truck that settles and a bulldozer without a shift price
	_, mem, router := newTestHandler(t)
	mem.SaveVehicle(settlement.Vehicle{VehicleRef: dozer1, Status: settlement.VehicleActive})

	// WHEN: Refreshing every vehicle for the day
	rec := do(t, router, http.MethodPost, "/api/settlement/daily/refresh-all", DateRequest{Date: "2025-03-10"})

	// THEN: 200 with the failure listed
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got struct {
		Total          int               `json:"total"`
		Succeeded      int               `json:"succeeded"`
		Failed         int               `json:"failed"`
		FailedVehicles map[string]string `json:"failed_vehicles"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 2, got.Total)
	assert.Equal(t, 1, got.Succeeded)
	assert.Equal(t, 1, got.Failed)
	assert.Contains(t, got.FailedVehicles, dozer1.String())
}

func TestRefreshAllDaily_NoActiveVehicles(t *testing.T) {
	mem := store.NewMemory()
	router := NewRouter(NewHandler(mem, settlement.NewAlertWriter(mem, nil), nil))

	rec := do(t, router, http.MethodPost, "/api/settlement/daily/refresh-all", DateRequest{Date: "2025-03-10"})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

// =============================================================================
// MONTHLY SETTLEMENT TESTS
// =============================================================================

func TestGetMonthly_CompletedMonth(t *testing.T) {
	_, _, router := newTestHandler(t)
	require.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/api/settlement/daily/refresh",
		RefreshDailyRequest{Date: "2025-03-10", MachineryType: "dump_truck", VehicleNo: "T1"}).Code)

	rec := do(t, router, http.MethodGet, "/api/settlement/monthly/?year_month=2025-03&machinery_type=dump_truck&vehicle_no=T1", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[MonthlySettlementDTO](t, rec)
	assert.Equal(t, "2025-03", got.YearMonth)
	assert.Equal(t, 1, got.DayCount)
	assert.Equal(t, 30, got.MissingDays)
	assert.False(t, got.Provisional)
	assertDec(t, "-260", got.ActualBalance)

	list := do(t, router, http.MethodGet, "/api/settlement/monthly/list?year_month=2025-03", nil)
	require.Equal(t, http.StatusOK, list.Code)
	assert.Len(t, decode[[]MonthlySettlementDTO](t, list), 1)
}

func TestGenerateMonthly_BadMonth(t *testing.T) {
	_, _, router := newTestHandler(t)

	rec := do(t, router, http.MethodPost, "/api/settlement/monthly/generate", MonthRequest{YearMonth: "2025-3"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// ALERT TESTS
// =============================================================================

func emitAlert(t *testing.T, h *Handler, typ settlement.AlertType, sev settlement.Severity, related string) settlement.Alert {
	t.Helper()
	a := settlement.Alert{
		Type:        typ,
		Vehicle:     truck1,
		Severity:    sev,
		RelatedDate: settlement.MustParseDate(related),
		Content:     "test alert",
	}
	stored, err := h.Alerts.Emit(context.Background(), a)
	require.NoError(t, err)
	require.True(t, stored)

	alerts, err := h.Store.FindAlerts(context.Background(), settlement.AlertFilter{Type: typ, From: &a.RelatedDate, To: &a.RelatedDate})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	return alerts[0]
}

func TestResolveAlert(t *testing.T) {
	h, _, router := newTestHandler(t)
	a := emitAlert(t, h, settlement.AlertFuel, settlement.SeverityHigh, "2025-03-10")

	tests := []struct {
		name string
		id   string
		body ResolveAlertRequest
		want int
	}{
		{"handled", a.ID, ResolveAlertRequest{Status: "handled", HandleRemark: "driver retrained"}, http.StatusOK},
		{"bad status", a.ID, ResolveAlertRequest{Status: "closed"}, http.StatusBadRequest},
		{"unknown id", "missing", ResolveAlertRequest{Status: "handled"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPut, "/api/analysis/alerts/"+tt.id, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	rec := do(t, router, http.MethodGet, "/api/analysis/alerts?status=handled", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[[]AlertDTO](t, rec)
	require.Len(t, got, 1)
	assert.Equal(t, "driver retrained", got[0].HandleRemark)
	assert.NotNil(t, got[0].HandleTime)
}

func TestAlertStats(t *testing.T) {
	h, _, router := newTestHandler(t)
	emitAlert(t, h, settlement.AlertFuel, settlement.SeverityHigh, "2025-03-08")
	emitAlert(t, h, settlement.AlertFuel, settlement.SeverityHigh, "2025-03-09")
	emitAlert(t, h, settlement.AlertProfit, settlement.SeverityMedium, "2025-03-10")

	rec := do(t, router, http.MethodGet, "/api/analysis/alerts/stats?from=2025-03-09", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[AlertStatsDTO](t, rec)
	assert.Equal(t, 2, got.Total)
	assert.Equal(t, map[string]int{"fuel": 1, "profit": 1}, got.ByType)
	assert.Equal(t, map[string]int{"unhandled": 2}, got.ByStatus)
}

func TestPerTruckOil(t *testing.T) {
	// GIVEN: The seeded day settled: 120 L over 15 truck trips
	_, _, router := newTestHandler(t)
	require.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/api/settlement/daily/refresh",
		RefreshDailyRequest{Date: "2025-03-10", MachineryType: "dump_truck", VehicleNo: "T1"}).Code)

	// WHEN: Asking for fuel per truck trip over the month
	rec := do(t, router, http.MethodGet,
		"/api/analysis/per-truck-oil?machinery_type=dump_truck&vehicle_no=T1&from=2025-03-01&to=2025-03-31", nil)

	// THEN: 8 L per trip
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[FuelUsageDTO](t, rec)
	assert.Equal(t, 1, got.Days)
	assert.Equal(t, 15, got.TotalTrucks)
	assertDec(t, "8", got.PerTruckOil)

	reversed := do(t, router, http.MethodGet,
		"/api/analysis/per-truck-oil?machinery_type=dump_truck&vehicle_no=T1&from=2025-03-31&to=2025-03-01", nil)
	assert.Equal(t, http.StatusBadRequest, reversed.Code)
}

// =============================================================================
// FUEL BALANCE TESTS
// =============================================================================

func TestCalculateFuelBalance_OnceThenExisting(t *testing.T) {
	_, _, router := newTestHandler(t)
	body := RefreshDailyRequest{Date: "2025-03-10", MachineryType: "dump_truck", VehicleNo: "T1"}

	// No settlement yet: the prerequisite is missing
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodPost, "/api/fuel-balance/calculate", body).Code)

	require.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/api/settlement/daily/refresh", body).Code)

	first := do(t, router, http.MethodPost, "/api/fuel-balance/calculate", body)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	second := do(t, router, http.MethodPost, "/api/fuel-balance/calculate", body)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, decode[FuelBalanceDTO](t, first), decode[FuelBalanceDTO](t, second))

	rec := do(t, router, http.MethodGet, "/api/fuel-balance/?date=2025-03-10&machinery_type=dump_truck&vehicle_no=T1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assertDec(t, "120", decode[FuelBalanceDTO](t, rec).RefuelAmount)
}

// =============================================================================
// SALARY TESTS
// =============================================================================

func seedPayroll(mem *store.Memory) {
	mem.SavePerson(settlement.Person{ID: "p1", Name: "Driver One", Active: true, MonthlySalary: dec("6000")})
	mem.SavePerson(settlement.Person{ID: "p2", Name: "Gone", Active: false, MonthlySalary: dec("9000")})
	mem.SaveAttendanceMaster(settlement.AttendanceMaster{ID: "m1", YearMonth: day.YearMonth(), Status: settlement.AttendanceEditing})
	for i, status := range []string{settlement.AttendancePresent, settlement.AttendanceOvertime, settlement.AttendanceAbsent} {
		mem.SaveAttendanceDetail(settlement.AttendanceDetail{
			MasterID:         "m1",
			PersonID:         "p1",
			Date:             day.AddDays(i),
			AttendanceStatus: status,
		})
	}
}

func TestGetMonthlySalary(t *testing.T) {
	// GIVEN: A 6000 base salary and two paid days out of three marked
	_, mem, router := newTestHandler(t)
	seedPayroll(mem)

	// WHEN: Asking for the month
	rec := do(t, router, http.MethodGet, "/api/salary/monthly/?year_month=2025-03&person_id=p1", nil)

	// THEN: 6000 x 2 / 30
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[MonthlySalaryDTO](t, rec)
	assert.Equal(t, 2, got.AttendanceDays)
	assertDec(t, "400", got.ActualSalary)
	assertDec(t, "400", got.PayableSalary)
}

func TestGetMonthlySalary_Errors(t *testing.T) {
	_, mem, router := newTestHandler(t)
	seedPayroll(mem)

	tests := []struct {
		name   string
		query  string
		status int
	}{
		{"unknown person", "year_month=2025-03&person_id=nobody", http.StatusNotFound},
		{"missing person", "year_month=2025-03", http.StatusBadRequest},
		{"bad month", "year_month=2025-13&person_id=p1", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodGet, "/api/salary/monthly/?"+tt.query, nil)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestListMonthlySalaries_ActiveOnly(t *testing.T) {
	_, mem, router := newTestHandler(t)
	seedPayroll(mem)

	rec := do(t, router, http.MethodGet, "/api/salary/monthly/list?year_month=2025-03", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[[]MonthlySalaryDTO](t, rec)
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].PersonID)
}

// =============================================================================
// REPORT TESTS
// =============================================================================

func TestExportReport_Daily(t *testing.T) {
	_, _, router := newTestHandler(t)
	require.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/api/settlement/daily/refresh",
		RefreshDailyRequest{Date: "2025-03-10", MachineryType: "dump_truck", VehicleNo: "T1"}).Code)

	rec := do(t, router, http.MethodGet, "/api/report/export?type=daily&from=2025-03-01&to=2025-03-31", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "daily-settlements-2025-03-01-2025-03-31.xlsx")
	rows, err := report.ReadRows(rec.Body, report.DailySheet)
	require.NoError(t, err)
	assert.Len(t, rows, 2) // header + one vehicle-day
}

func TestExportReport_UnknownType(t *testing.T) {
	_, _, router := newTestHandler(t)

	rec := do(t, router, http.MethodGet, "/api/report/export?type=weekly", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// SCHEDULER TESTS
// =============================================================================

func TestScheduler_NotConfigured(t *testing.T) {
	_, _, router := newTestHandler(t)

	rec := do(t, router, http.MethodGet, "/api/scheduler/status", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestScheduler_StatusAndUnknownTask(t *testing.T) {
	h, mem, router := newTestHandler(t)
	withScheduler(t, h, mem)

	rec := do(t, router, http.MethodGet, "/api/scheduler/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]scheduler.TaskStatus](t, rec), 6)

	rec = do(t, router, http.MethodPost, "/api/scheduler/tasks/reticulate_splines/run", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScheduler_TriggerDaily(t *testing.T) {
	h, mem, router := newTestHandler(t)
	withScheduler(t, h, mem)

	rec := do(t, router, http.MethodPost, "/api/scheduler/daily", DateRequest{Date: "2025-03-10"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got struct {
		Operation string `json:"operation"`
		Period    string `json:"period"`
		Succeeded int    `json:"succeeded"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "daily_settlement", got.Operation)
	assert.Equal(t, "2025-03-10", got.Period)
	assert.Equal(t, 1, got.Succeeded)
}
