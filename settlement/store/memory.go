// Package store provides an in-memory settlement.Store.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/minefleet/settlement-engine/settlement"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	vehicles    map[string]settlement.Vehicle
	assignments []settlement.DriverAssignment
	personnel   map[string]settlement.Person

	trips      []settlement.TripRecord
	fuel       map[string][]settlement.FuelPurchase
	shifts     map[string]settlement.ShiftRecord
	deductions map[string][]settlement.Deduction
	miscFees   map[string][]settlement.MiscFee
	repairs    map[string][]settlement.RepairRecord
	prices     map[string][]settlement.PriceRecord

	daily        map[string]settlement.DailySettlement
	monthly      map[string]settlement.MonthlySettlement
	alerts       []settlement.Alert
	fuelBalances map[string]settlement.FuelBalance
	baselines    map[string]settlement.AnalysisBaseline

	masters map[string]settlement.AttendanceMaster // by year-month
	details map[string]settlement.AttendanceDetail // by master/person/date
}

var _ settlement.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		vehicles:     make(map[string]settlement.Vehicle),
		personnel:    make(map[string]settlement.Person),
		fuel:         make(map[string][]settlement.FuelPurchase),
		shifts:       make(map[string]settlement.ShiftRecord),
		deductions:   make(map[string][]settlement.Deduction),
		miscFees:     make(map[string][]settlement.MiscFee),
		repairs:      make(map[string][]settlement.RepairRecord),
		prices:       make(map[string][]settlement.PriceRecord),
		daily:        make(map[string]settlement.DailySettlement),
		monthly:      make(map[string]settlement.MonthlySettlement),
		fuelBalances: make(map[string]settlement.FuelBalance),
		baselines:    make(map[string]settlement.AnalysisBaseline),
		masters:      make(map[string]settlement.AttendanceMaster),
		details:      make(map[string]settlement.AttendanceDetail),
	}
}

func monthKey(ym settlement.YearMonth, ref settlement.VehicleRef) string {
	return ym.String() + "/" + ref.String()
}

func detailKey(masterID, personID string, on settlement.Date) string {
	return masterID + "/" + personID + "/" + on.String()
}

func baselineKey(b settlement.AnalysisBaseline) string {
	return b.CalculationDate.String() + "/" + b.Vehicle.String() + "/" + string(b.Indicator)
}

// =============================================================================
// SEEDING
// =============================================================================

func (m *Memory) SaveVehicle(v settlement.Vehicle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vehicles[v.VehicleRef.String()] = v
}

func (m *Memory) SaveAssignment(a settlement.DriverAssignment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments = append(m.assignments, a)
}

func (m *Memory) SavePerson(p settlement.Person) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.personnel[p.ID] = p
}

func (m *Memory) AddTrip(t settlement.TripRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trips = append(m.trips, t)
}

func (m *Memory) AddFuelPurchase(p settlement.FuelPurchase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fuel[p.Key.String()] = append(m.fuel[p.Key.String()], p)
}

// SaveShift replaces the shift row for the key.
func (m *Memory) SaveShift(s settlement.ShiftRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shifts[s.Key.String()] = s
}

func (m *Memory) AddDeduction(d settlement.Deduction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deductions[d.Key.String()] = append(m.deductions[d.Key.String()], d)
}

func (m *Memory) AddMiscFee(f settlement.MiscFee) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.miscFees[f.Key.String()] = append(m.miscFees[f.Key.String()], f)
}

func (m *Memory) AddRepair(r settlement.RepairRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.repairs[r.Key.String()] = append(m.repairs[r.Key.String()], r)
}

func (m *Memory) SavePrice(p settlement.PriceRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[p.Category.String()] = append(m.prices[p.Category.String()], p)
}

// =============================================================================
// SOURCE RECORDS
// =============================================================================

func (m *Memory) TripRecords(_ context.Context, date settlement.Date, role settlement.TripRole, vehicleNo string) ([]settlement.TripRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []settlement.TripRecord
	for _, t := range m.trips {
		if !t.Date.Equal(date) {
			continue
		}
		no := t.TruckNo
		if role == settlement.RoleExcavator {
			no = t.ExcavatorNo
		}
		if no == vehicleNo {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *Memory) FuelPurchases(_ context.Context, key settlement.Key) ([]settlement.FuelPurchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]settlement.FuelPurchase(nil), m.fuel[key.String()]...), nil
}

func (m *Memory) ShiftRecord(_ context.Context, key settlement.Key) (*settlement.ShiftRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.shifts[key.String()]; ok {
		return &s, nil
	}
	return nil, nil
}

func (m *Memory) Deductions(_ context.Context, key settlement.Key) ([]settlement.Deduction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]settlement.Deduction(nil), m.deductions[key.String()]...), nil
}

func (m *Memory) MiscFees(_ context.Context, key settlement.Key) ([]settlement.MiscFee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]settlement.MiscFee(nil), m.miscFees[key.String()]...), nil
}

func (m *Memory) Repairs(_ context.Context, key settlement.Key) ([]settlement.RepairRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]settlement.RepairRecord(nil), m.repairs[key.String()]...), nil
}

// =============================================================================
// PRICES & ROSTER
// =============================================================================

func (m *Memory) LatestPrice(_ context.Context, category settlement.PriceCategory, asOf settlement.Date) (*settlement.PriceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := settlement.LatestEffective(m.prices[category.String()], asOf)
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *Memory) ActiveVehicles(_ context.Context, mt settlement.MachineryType) ([]settlement.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []settlement.Vehicle
	for _, v := range m.vehicles {
		if v.Status != settlement.VehicleActive {
			continue
		}
		if mt != "" && v.MachineryType != mt {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VehicleRef.String() < out[j].VehicleRef.String() })
	return out, nil
}

func (m *Memory) Vehicle(_ context.Context, ref settlement.VehicleRef) (*settlement.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.vehicles[ref.String()]; ok {
		return &v, nil
	}
	return nil, nil
}

func (m *Memory) DriverAssignments(_ context.Context, ref settlement.VehicleRef, on settlement.Date) ([]settlement.DriverAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []settlement.DriverAssignment
	for _, a := range m.assignments {
		if a.Vehicle == ref && a.Covers(on) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *Memory) AttendanceMaster(_ context.Context, ym settlement.YearMonth) (*settlement.AttendanceMaster, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if am, ok := m.masters[ym.String()]; ok {
		return &am, nil
	}
	return nil, nil
}

func (m *Memory) AttendanceDetail(_ context.Context, masterID, personID string, on settlement.Date) (*settlement.AttendanceDetail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.details[detailKey(masterID, personID, on)]; ok {
		return &d, nil
	}
	return nil, nil
}

// =============================================================================
// SETTLEMENTS
// =============================================================================

func (m *Memory) FindDaily(_ context.Context, key settlement.Key) (*settlement.DailySettlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.daily[key.String()]; ok {
		return &s, nil
	}
	return nil, nil
}

func (m *Memory) UpsertDaily(_ context.Context, s settlement.DailySettlement) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := s.Key.String()
	if existing, ok := m.daily[k]; ok {
		s.CreatedAt = existing.CreatedAt
		m.daily[k] = s
		return false, nil
	}
	m.daily[k] = s
	return true, nil
}

func (m *Memory) DailyRange(_ context.Context, ref settlement.VehicleRef, from, to settlement.Date) ([]settlement.DailySettlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []settlement.DailySettlement
	for _, s := range m.daily {
		if s.Vehicle == ref && s.Date.AfterOrEqual(from) && s.Date.BeforeOrEqual(to) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *Memory) RecentDaily(_ context.Context, ref settlement.VehicleRef, asOf settlement.Date, limit int) ([]settlement.DailySettlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []settlement.DailySettlement
	for _, s := range m.daily {
		if s.Vehicle == ref && s.Date.BeforeOrEqual(asOf) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ListDaily(_ context.Context, from, to settlement.Date) ([]settlement.DailySettlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []settlement.DailySettlement
	for _, s := range m.daily {
		if s.Date.AfterOrEqual(from) && s.Date.BeforeOrEqual(to) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Vehicle.String() < out[j].Vehicle.String()
	})
	return out, nil
}

func (m *Memory) FindMonthly(_ context.Context, ym settlement.YearMonth, ref settlement.VehicleRef) (*settlement.MonthlySettlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.monthly[monthKey(ym, ref)]; ok {
		return &s, nil
	}
	return nil, nil
}

func (m *Memory) UpsertMonthly(_ context.Context, s settlement.MonthlySettlement) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := monthKey(s.YearMonth, s.Vehicle)
	if existing, ok := m.monthly[k]; ok {
		s.CreatedAt = existing.CreatedAt
		m.monthly[k] = s
		return false, nil
	}
	m.monthly[k] = s
	return true, nil
}

func (m *Memory) ListMonthly(_ context.Context, ym settlement.YearMonth) ([]settlement.MonthlySettlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []settlement.MonthlySettlement
	for _, s := range m.monthly {
		if s.YearMonth == ym {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Vehicle.String() < out[j].Vehicle.String() })
	return out, nil
}

// =============================================================================
// ALERTS, FUEL BALANCES, BASELINES
// =============================================================================

func (m *Memory) InsertAlert(_ context.Context, a settlement.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, a)
	return nil
}

func (m *Memory) FindAlerts(_ context.Context, f settlement.AlertFilter) ([]settlement.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []settlement.Alert
	for _, a := range m.alerts {
		if f.Type != "" && a.Type != f.Type {
			continue
		}
		if f.Vehicle != nil && a.Vehicle != *f.Vehicle {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.Severity != "" && a.Severity != f.Severity {
			continue
		}
		if f.From != nil && a.RelatedDate.Before(*f.From) {
			continue
		}
		if f.To != nil && a.RelatedDate.After(*f.To) {
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RelatedDate.After(out[j].RelatedDate) })
	return out, nil
}

func (m *Memory) UpdateAlertStatus(_ context.Context, id string, status settlement.AlertStatus, remark string, at time.Time) (*settlement.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.alerts {
		if m.alerts[i].ID != id {
			continue
		}
		m.alerts[i].Status = status
		m.alerts[i].Remark = remark
		m.alerts[i].HandledAt = &at
		a := m.alerts[i]
		return &a, nil
	}
	return nil, nil
}

func (m *Memory) FindFuelBalance(_ context.Context, key settlement.Key) (*settlement.FuelBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if b, ok := m.fuelBalances[key.String()]; ok {
		return &b, nil
	}
	return nil, nil
}

func (m *Memory) LatestFuelBalanceBefore(_ context.Context, ref settlement.VehicleRef, before settlement.Date) (*settlement.FuelBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *settlement.FuelBalance
	for _, b := range m.fuelBalances {
		if b.Vehicle != ref || !b.Date.Before(before) {
			continue
		}
		if latest == nil || b.Date.After(latest.Date) {
			b := b
			latest = &b
		}
	}
	return latest, nil
}

func (m *Memory) InsertFuelBalance(_ context.Context, b settlement.FuelBalance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := b.Key.String()
	if _, ok := m.fuelBalances[k]; ok {
		return settlement.ErrAlreadyRecorded
	}
	m.fuelBalances[k] = b
	return nil
}

func (m *Memory) UpsertBaseline(_ context.Context, b settlement.AnalysisBaseline) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.baselines[baselineKey(b)] = b
	return nil
}

func (m *Memory) Baselines(_ context.Context, ref settlement.VehicleRef) ([]settlement.AnalysisBaseline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []settlement.AnalysisBaseline
	for _, b := range m.baselines {
		if b.Vehicle == ref {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CalculationDate.Equal(out[j].CalculationDate) {
			return out[i].CalculationDate.After(out[j].CalculationDate)
		}
		return out[i].Indicator < out[j].Indicator
	})
	return out, nil
}

// =============================================================================
// ATTENDANCE
// =============================================================================

func (m *Memory) Person(_ context.Context, id string) (*settlement.Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.personnel[id]; ok {
		return &p, nil
	}
	return nil, nil
}

func (m *Memory) ActivePersonnel(_ context.Context) ([]settlement.Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []settlement.Person
	for _, p := range m.personnel {
		if p.Active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreateAttendance(_ context.Context, master settlement.AttendanceMaster, details []settlement.AttendanceDetail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.masters[master.YearMonth.String()]; ok {
		return settlement.ErrAlreadyRecorded
	}
	m.masters[master.YearMonth.String()] = master
	for _, d := range details {
		m.details[detailKey(d.MasterID, d.PersonID, d.Date)] = d
	}
	return nil
}

// SaveAttendanceDetail sets one person's attendance row, for seeding meal statuses.
func (m *Memory) SaveAttendanceDetail(d settlement.AttendanceDetail) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.details[detailKey(d.MasterID, d.PersonID, d.Date)] = d
}

// SaveAttendanceMaster sets the month's master row, for seeding.
func (m *Memory) SaveAttendanceMaster(am settlement.AttendanceMaster) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.masters[am.YearMonth.String()] = am
}

// Alerts returns every stored alert in insertion order.
func (m *Memory) Alerts() []settlement.Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]settlement.Alert(nil), m.alerts...)
}
