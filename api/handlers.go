/*
handlers.go - HTTP API handlers for the settlement engine

PURPOSE:
  Exposes settlement computation, monthly rollups, alerts, fuel balances,
  baselines, spreadsheet export and the scheduler over REST. Handles HTTP
  request/response and JSON, and delegates everything else to the domain
  packages.

ENDPOINTS:
  Daily settlements:
    GET    /api/settlement/daily              Compute one vehicle-day (not stored)
    GET    /api/settlement/daily/list         Stored rows in [from, to]
    POST   /api/settlement/daily/refresh      Recompute and store one vehicle-day
    POST   /api/settlement/daily/refresh-all  Recompute and store every active vehicle for a day

  Monthly settlements:
    GET    /api/settlement/monthly            One vehicle-month (provisional if open)
    GET    /api/settlement/monthly/list       Stored rows for a month
    POST   /api/settlement/monthly/generate   Roll up every active vehicle

  Analysis:
    GET    /api/analysis/alerts               Filter alerts
    GET    /api/analysis/alerts/stats         Counts by type, status, severity
    PUT    /api/analysis/alerts/{id}          Mark handled / unhandled
    POST   /api/analysis/check                Run the anomaly rules for a day
    GET    /api/analysis/baselines            Baselines for one vehicle
    GET    /api/analysis/per-truck-oil        Fuel per truck trip over [from, to]

  Fuel:
    GET    /api/fuel-balance                  One vehicle-day of the ledger
    POST   /api/fuel-balance/calculate        Record one vehicle-day

  Salary:
    GET    /api/salary/monthly                One person's prorated salary
    GET    /api/salary/monthly/list           Every active person for a month

  Reports:
    GET    /api/report/export                 .xlsx of daily or monthly rows

  Scheduler:
    GET    /api/scheduler/status              Task status table
    POST   /api/scheduler/tasks/{name}/run    Run a task in the background
    POST   /api/scheduler/daily               Manual daily settlement trigger

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Missing price, vehicle, person, prerequisite settlement or alert
  - 409: Lease held, task already running, row already recorded
  - 422: No active vehicles to process
  - 503: Scheduler not configured or shutting down
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. Deploy behind the site gateway.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/minefleet/settlement-engine/anomaly"
	"github.com/minefleet/settlement-engine/fuelbalance"
	"github.com/minefleet/settlement-engine/report"
	"github.com/minefleet/settlement-engine/scheduler"
	"github.com/minefleet/settlement-engine/settlement"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store        settlement.Store
	Engine       *settlement.Engine
	Rollup       *settlement.Rollup
	Alerts       *settlement.AlertWriter
	Detector     *anomaly.Detector
	FuelBalances *fuelbalance.Tracker
	Payroll      *settlement.Payroll
	Scheduler    *scheduler.Scheduler
}

// NewHandler wires the default services over one store. The scheduler is
// optional; without it the scheduler endpoints answer 503.
func NewHandler(store settlement.Store, alerts *settlement.AlertWriter, sched *scheduler.Scheduler) *Handler {
	return &Handler{
		Store:        store,
		Engine:       settlement.NewEngine(store),
		Rollup:       settlement.NewRollup(store),
		Alerts:       alerts,
		Detector:     anomaly.NewDetector(store, alerts, anomaly.DefaultConfig()),
		FuelBalances: fuelbalance.NewTracker(store, alerts, fuelbalance.DefaultConfig()),
		Payroll:      settlement.NewPayroll(store),
		Scheduler:    sched,
	}
}

// =============================================================================
// DAILY SETTLEMENT HANDLERS
// =============================================================================

// ComputeDaily returns the settlement for one vehicle-day without storing it.
func (h *Handler) ComputeDaily(w http.ResponseWriter, r *http.Request) {
	key, ok := keyFromQuery(w, r)
	if !ok {
		return
	}

	c, err := h.Engine.Compute(r.Context(), key)
	if err != nil {
		writeDomainError(w, "Failed to compute settlement", err)
		return
	}

	writeJSON(w, http.StatusOK, toComputationDTO(c))
}

// ListDaily returns stored daily settlements for every vehicle in [from, to].
func (h *Handler) ListDaily(w http.ResponseWriter, r *http.Request) {
	from, to, ok := rangeFromQuery(w, r)
	if !ok {
		return
	}

	rows, err := h.Store.ListDaily(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list daily settlements", err)
		return
	}

	writeJSON(w, http.StatusOK, toDailyDTOs(rows))
}

// RefreshDaily recomputes and stores one vehicle-day.
func (h *Handler) RefreshDaily(w http.ResponseWriter, r *http.Request) {
	var req RefreshDailyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := settlement.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	key := settlement.NewKey(date, settlement.MachineryType(req.MachineryType), req.VehicleNo)
	c, err := h.Engine.Settle(r.Context(), key)
	if err != nil {
		writeDomainError(w, "Failed to refresh settlement", err)
		return
	}

	log.Printf("[API] Refreshed daily settlement %s", key)
	writeJSON(w, http.StatusOK, toComputationDTO(c))
}

// RefreshAllDaily recomputes and stores every active vehicle for one day.
// Per-vehicle failures are reported in the body with status 200.
func (h *Handler) RefreshAllDaily(w http.ResponseWriter, r *http.Request) {
	date, ok := dateFromBody(w, r)
	if !ok {
		return
	}

	res, err := h.Engine.GenerateDaily(r.Context(), date)
	if err != nil {
		writeDomainError(w, "Failed to generate daily settlements", err)
		return
	}

	writeJSON(w, http.StatusOK, toBatchDTO(res))
}

// =============================================================================
// MONTHLY SETTLEMENT HANDLERS
// =============================================================================

// GetMonthly returns one vehicle-month. The open month is computed on the
// fly and flagged provisional.
func (h *Handler) GetMonthly(w http.ResponseWriter, r *http.Request) {
	ym, err := settlement.ParseYearMonth(r.URL.Query().Get("year_month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year_month format (use YYYY-MM)", err)
		return
	}
	ref, ok := vehicleFromQuery(w, r)
	if !ok {
		return
	}

	m, err := h.Rollup.MonthlySettlement(r.Context(), ym, ref)
	if err != nil {
		writeDomainError(w, "Failed to get monthly settlement", err)
		return
	}

	writeJSON(w, http.StatusOK, toMonthlyDTO(m))
}

// ListMonthly returns stored monthly settlements for one month.
func (h *Handler) ListMonthly(w http.ResponseWriter, r *http.Request) {
	ym, err := settlement.ParseYearMonth(r.URL.Query().Get("year_month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year_month format (use YYYY-MM)", err)
		return
	}

	rows, err := h.Store.ListMonthly(r.Context(), ym)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list monthly settlements", err)
		return
	}

	dtos := make([]MonthlySettlementDTO, len(rows))
	for i, m := range rows {
		dtos[i] = toMonthlyDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GenerateMonthly rolls up every active vehicle for one month.
func (h *Handler) GenerateMonthly(w http.ResponseWriter, r *http.Request) {
	var req MonthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	ym, err := settlement.ParseYearMonth(req.YearMonth)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year_month format (use YYYY-MM)", err)
		return
	}

	res, err := h.Rollup.GenerateMonthly(r.Context(), ym)
	if err != nil {
		writeDomainError(w, "Failed to generate monthly settlements", err)
		return
	}

	writeJSON(w, http.StatusOK, toBatchDTO(res))
}

// =============================================================================
// ALERT & ANALYSIS HANDLERS
// =============================================================================

// ListAlerts filters alerts by type, vehicle, status, severity and date range.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	filter, ok := alertFilterFromQuery(w, r)
	if !ok {
		return
	}

	alerts, err := h.Store.FindAlerts(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list alerts", err)
		return
	}

	dtos := make([]AlertDTO, len(alerts))
	for i, a := range alerts {
		dtos[i] = toAlertDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AlertStats counts the filtered alerts by type, status and severity.
func (h *Handler) AlertStats(w http.ResponseWriter, r *http.Request) {
	filter, ok := alertFilterFromQuery(w, r)
	if !ok {
		return
	}

	alerts, err := h.Store.FindAlerts(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count alerts", err)
		return
	}

	stats := AlertStatsDTO{
		Total:      len(alerts),
		ByType:     make(map[string]int),
		ByStatus:   make(map[string]int),
		BySeverity: make(map[string]int),
	}
	for _, a := range alerts {
		stats.ByType[string(a.Type)]++
		stats.ByStatus[string(a.Status)]++
		stats.BySeverity[string(a.Severity)]++
	}
	writeJSON(w, http.StatusOK, stats)
}

// ResolveAlert marks an alert handled (or reopens it) with a remark.
func (h *Handler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ResolveAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	status := settlement.AlertStatus(req.Status)
	if status != settlement.AlertHandled && status != settlement.AlertUnhandled {
		writeError(w, http.StatusBadRequest, "status must be 'handled' or 'unhandled'", nil)
		return
	}

	a, err := h.Alerts.Resolve(r.Context(), id, status, req.HandleRemark)
	if err != nil {
		writeDomainError(w, "Failed to update alert", err)
		return
	}

	writeJSON(w, http.StatusOK, toAlertDTO(*a))
}

// CheckAnomalies runs the anomaly rules for every active vehicle as of a day.
func (h *Handler) CheckAnomalies(w http.ResponseWriter, r *http.Request) {
	date, ok := dateFromBody(w, r)
	if !ok {
		return
	}

	res, err := h.Detector.Sweep(r.Context(), date)
	if err != nil {
		writeDomainError(w, "Failed to check anomalies", err)
		return
	}

	writeJSON(w, http.StatusOK, toBatchDTO(res))
}

// ListBaselines returns every stored baseline for one vehicle, newest first.
func (h *Handler) ListBaselines(w http.ResponseWriter, r *http.Request) {
	ref, ok := vehicleFromQuery(w, r)
	if !ok {
		return
	}

	baselines, err := h.Store.Baselines(r.Context(), ref)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list baselines", err)
		return
	}

	dtos := make([]BaselineDTO, len(baselines))
	for i, b := range baselines {
		dtos[i] = BaselineDTO{
			CalculationDate: b.CalculationDate.String(),
			Period:          b.Period.String(),
			Indicator:       string(b.Indicator),
			Mean:            b.Mean,
			StdDev:          b.StdDev,
			SampleSize:      b.SampleSize,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// PerTruckOil returns a vehicle's fuel per truck trip over [from, to].
func (h *Handler) PerTruckOil(w http.ResponseWriter, r *http.Request) {
	ref, ok := vehicleFromQuery(w, r)
	if !ok {
		return
	}
	from, to, ok := rangeFromQuery(w, r)
	if !ok {
		return
	}

	u, err := anomaly.PerTruckOil(r.Context(), h.Store, ref, from, to)
	if err != nil {
		writeDomainError(w, "Failed to compute fuel per truck", err)
		return
	}
	writeJSON(w, http.StatusOK, toFuelUsageDTO(u))
}

// =============================================================================
// SALARY HANDLERS
// =============================================================================

// GetMonthlySalary returns one person's salary for a month.
func (h *Handler) GetMonthlySalary(w http.ResponseWriter, r *http.Request) {
	ym, err := settlement.ParseYearMonth(r.URL.Query().Get("year_month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year_month format (use YYYY-MM)", err)
		return
	}
	personID := r.URL.Query().Get("person_id")
	if personID == "" {
		writeError(w, http.StatusBadRequest, "person_id is required", nil)
		return
	}

	s, err := h.Payroll.MonthlySalary(r.Context(), ym, personID)
	if err != nil {
		writeDomainError(w, "Failed to compute salary", err)
		return
	}
	writeJSON(w, http.StatusOK, toSalaryDTO(s))
}

// ListMonthlySalaries returns every active person's salary for a month.
func (h *Handler) ListMonthlySalaries(w http.ResponseWriter, r *http.Request) {
	ym, err := settlement.ParseYearMonth(r.URL.Query().Get("year_month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year_month format (use YYYY-MM)", err)
		return
	}

	salaries, err := h.Payroll.MonthlySalaries(r.Context(), ym)
	if err != nil {
		writeDomainError(w, "Failed to compute salaries", err)
		return
	}
	dtos := make([]MonthlySalaryDTO, len(salaries))
	for i, s := range salaries {
		dtos[i] = toSalaryDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// FUEL BALANCE HANDLERS
// =============================================================================

// GetFuelBalance returns the recorded ledger row for one vehicle-day.
func (h *Handler) GetFuelBalance(w http.ResponseWriter, r *http.Request) {
	key, ok := keyFromQuery(w, r)
	if !ok {
		return
	}

	b, err := h.Store.FindFuelBalance(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get fuel balance", err)
		return
	}
	if b == nil {
		writeError(w, http.StatusNotFound, "Fuel balance not found", nil)
		return
	}

	writeJSON(w, http.StatusOK, toFuelBalanceDTO(*b))
}

// CalculateFuelBalance records the ledger row for one vehicle-day. An
// existing row is returned unchanged with 200; a new one with 201.
func (h *Handler) CalculateFuelBalance(w http.ResponseWriter, r *http.Request) {
	var req RefreshDailyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := settlement.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	key := settlement.NewKey(date, settlement.MachineryType(req.MachineryType), req.VehicleNo)
	b, err := h.FuelBalances.Compute(r.Context(), key)
	switch {
	case errors.Is(err, settlement.ErrAlreadyRecorded):
		writeJSON(w, http.StatusOK, toFuelBalanceDTO(*b))
	case err != nil:
		writeDomainError(w, "Failed to calculate fuel balance", err)
	default:
		writeJSON(w, http.StatusCreated, toFuelBalanceDTO(*b))
	}
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportReport streams an .xlsx workbook.
//
//	?type=daily&from=YYYY-MM-DD&to=YYYY-MM-DD
//	?type=monthly&year_month=YYYY-MM
func (h *Handler) ExportReport(w http.ResponseWriter, r *http.Request) {
	switch kind := r.URL.Query().Get("type"); kind {
	case "", "daily":
		from, to, ok := rangeFromQuery(w, r)
		if !ok {
			return
		}
		rows, err := h.Store.ListDaily(r.Context(), from, to)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load daily settlements", err)
			return
		}
		setAttachment(w, fmt.Sprintf("daily-settlements-%s-%s.xlsx", from, to))
		if err := report.WriteDaily(w, rows); err != nil {
			log.Printf("[API] Daily export %s..%s failed: %v", from, to, err)
		}

	case "monthly":
		ym, err := settlement.ParseYearMonth(r.URL.Query().Get("year_month"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year_month format (use YYYY-MM)", err)
			return
		}
		rows, err := h.Store.ListMonthly(r.Context(), ym)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load monthly settlements", err)
			return
		}
		setAttachment(w, fmt.Sprintf("monthly-settlements-%s.xlsx", ym))
		if err := report.WriteMonthly(w, rows); err != nil {
			log.Printf("[API] Monthly export %s failed: %v", ym, err)
		}

	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown report type %q (use daily or monthly)", kind), nil)
	}
}

func setAttachment(w http.ResponseWriter, filename string) {
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
}

// =============================================================================
// SCHEDULER HANDLERS
// =============================================================================

// SchedulerStatus returns every task's last run, next run and state.
func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if !h.requireScheduler(w) {
		return
	}
	writeJSON(w, http.StatusOK, h.Scheduler.Status())
}

// RunTask starts a registered task in the background and answers 202.
func (h *Handler) RunTask(w http.ResponseWriter, r *http.Request) {
	if !h.requireScheduler(w) {
		return
	}
	name := chi.URLParam(r, "name")

	var found bool
	for _, st := range h.Scheduler.Status() {
		if st.Name != name {
			continue
		}
		found = true
		if st.Running {
			writeError(w, http.StatusConflict, "Task is already running", scheduler.ErrTaskRunning)
			return
		}
	}
	if !found {
		writeError(w, http.StatusNotFound, "Unknown task", fmt.Errorf("%w: %s", scheduler.ErrUnknownTask, name))
		return
	}

	// The task outlives the request that started it.
	go func() {
		if err := h.Scheduler.RunTask(context.Background(), name); err != nil && !errors.Is(err, scheduler.ErrTaskRunning) {
			log.Printf("[API] Task %s failed: %v", name, err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"task": name, "status": "started"})
}

// TriggerDaily runs the daily settlement for a day and waits for the result.
func (h *Handler) TriggerDaily(w http.ResponseWriter, r *http.Request) {
	if !h.requireScheduler(w) {
		return
	}
	date, ok := dateFromBody(w, r)
	if !ok {
		return
	}

	res, err := h.Scheduler.TriggerDailySettlement(r.Context(), date)
	if err != nil {
		writeDomainError(w, "Failed to trigger daily settlement", err)
		return
	}

	writeJSON(w, http.StatusOK, toBatchDTO(res))
}

func (h *Handler) requireScheduler(w http.ResponseWriter) bool {
	if h.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "Scheduler is not running", nil)
		return false
	}
	return true
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps settlement errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, settlement.ErrInvalidKey):
		writeError(w, http.StatusBadRequest, message, err)
	case settlement.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, settlement.ErrLeaseHeld),
		errors.Is(err, settlement.ErrAlreadyRecorded),
		errors.Is(err, scheduler.ErrTaskRunning):
		writeError(w, http.StatusConflict, message, err)
	case errors.Is(err, settlement.ErrNoActiveVehicles):
		writeError(w, http.StatusUnprocessableEntity, message, err)
	case errors.Is(err, scheduler.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func vehicleFromQuery(w http.ResponseWriter, r *http.Request) (settlement.VehicleRef, bool) {
	q := r.URL.Query()
	ref := settlement.VehicleRef{
		MachineryType: settlement.MachineryType(q.Get("machinery_type")),
		VehicleNo:     q.Get("vehicle_no"),
	}
	if !ref.MachineryType.Valid() || ref.VehicleNo == "" {
		writeError(w, http.StatusBadRequest, "machinery_type and vehicle_no are required", nil)
		return ref, false
	}
	return ref, true
}

func keyFromQuery(w http.ResponseWriter, r *http.Request) (settlement.Key, bool) {
	date, err := settlement.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return settlement.Key{}, false
	}
	ref, ok := vehicleFromQuery(w, r)
	if !ok {
		return settlement.Key{}, false
	}
	return settlement.Key{Date: date, Vehicle: ref}, true
}

func rangeFromQuery(w http.ResponseWriter, r *http.Request) (from, to settlement.Date, ok bool) {
	q := r.URL.Query()
	from, err := settlement.ParseDate(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date (use YYYY-MM-DD)", err)
		return from, to, false
	}
	to, err = settlement.ParseDate(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date (use YYYY-MM-DD)", err)
		return from, to, false
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to must not be before from", nil)
		return from, to, false
	}
	return from, to, true
}

func dateFromBody(w http.ResponseWriter, r *http.Request) (settlement.Date, bool) {
	var req DateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return settlement.Date{}, false
	}
	date, err := settlement.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return settlement.Date{}, false
	}
	return date, true
}

func alertFilterFromQuery(w http.ResponseWriter, r *http.Request) (settlement.AlertFilter, bool) {
	q := r.URL.Query()
	f := settlement.AlertFilter{
		Type:     settlement.AlertType(q.Get("alert_type")),
		Status:   settlement.AlertStatus(q.Get("status")),
		Severity: settlement.Severity(q.Get("severity")),
	}
	if no := q.Get("vehicle_no"); no != "" {
		f.Vehicle = &settlement.VehicleRef{MachineryType: settlement.MachineryType(q.Get("machinery_type")), VehicleNo: no}
	}
	for name, dst := range map[string]**settlement.Date{"from": &f.From, "to": &f.To} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		d, err := settlement.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s date (use YYYY-MM-DD)", name), err)
			return f, false
		}
		*dst = &d
	}
	return f, true
}
