/*
Package postgres provides a PostgreSQL implementation of settlement.Store
built on gorm.

PURPOSE:
  Multi-site deployments share one database between several server
  processes. This store backs them; the SQLite store covers single-site
  installs and tests.

SCHEMA:
  models.go declares one gorm model per table. New runs AutoMigrate, so a
  fresh database is usable immediately. Money and quantities are
  decimal(20,4) columns mapped to decimal.Decimal; dates are DATE columns
  holding midnight UTC.

UPSERT BY NATURAL KEY:
  UpsertDaily / UpsertMonthly look the row up by its composite primary key
  inside a transaction, then Save over it (keeping created_at) or Create it.

APPEND-ONLY TABLES:
  Alerts carry a unique index on (type, vehicle, related_date) and fuel
  balances a composite primary key. gorm's TranslateError turns the unique
  violation into gorm.ErrDuplicatedKey, reported as
  settlement.ErrAlreadyRecorded.

USAGE:
  store, err := postgres.New(os.Getenv("DATABASE_URL"))
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - settlement/store.go: Interface definitions
  - store/sqlite: SQLite implementation
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/minefleet/settlement-engine/settlement"
)

// Store implements settlement.Store on PostgreSQL.
type Store struct {
	db *gorm.DB
}

var _ settlement.Store = (*Store)(nil)

// New connects to the database at dsn and migrates the schema.
func New(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewWithDB(db)
}

// NewWithDB wraps an open gorm connection and migrates the schema.
func NewWithDB(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(allModels...); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func whereKey(db *gorm.DB, k settlement.Key) *gorm.DB {
	return db.Where("record_date = ? AND machinery_type = ? AND vehicle_no = ?",
		k.Date.Time, k.Vehicle.MachineryType, k.Vehicle.VehicleNo)
}

func whereVehicle(db *gorm.DB, ref settlement.VehicleRef) *gorm.DB {
	return db.Where("machinery_type = ? AND vehicle_no = ?", ref.MachineryType, ref.VehicleNo)
}

// first runs a single-row query, mapping "no rows" to found=false.
func first(q *gorm.DB, dest any) (bool, error) {
	err := q.First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return err == nil, err
}

// =============================================================================
// SEEDING - Writes to the operational tables other systems own
// =============================================================================

func (s *Store) SaveVehicle(ctx context.Context, v settlement.Vehicle) error {
	m := Vehicle{
		MachineryType: string(v.MachineryType),
		VehicleNo:     v.VehicleNo,
		Model:         v.Model,
		Capacity:      v.Capacity,
		OwningUnit:    v.OwningUnit,
		IsRental:      v.IsRental,
		RentalFee:     v.RentalFee,
		RentalUnit:    string(v.RentalUnit),
		Status:        string(v.Status),
	}
	return s.db.WithContext(ctx).Save(&m).Error
}

func (s *Store) SavePerson(ctx context.Context, p settlement.Person) error {
	return s.db.WithContext(ctx).Save(&Person{ID: p.ID, Name: p.Name, Active: p.Active, MonthlySalary: p.MonthlySalary}).Error
}

func (s *Store) SaveAssignment(ctx context.Context, a settlement.DriverAssignment) error {
	m := DriverAssignment{
		PersonID:      a.PersonID,
		PersonName:    a.PersonName,
		MachineryType: string(a.Vehicle.MachineryType),
		VehicleNo:     a.Vehicle.VehicleNo,
		StartDate:     a.StartDate.Time,
		DailySalary:   a.DailySalary,
	}
	if a.EndDate != nil {
		end := a.EndDate.Time
		m.EndDate = &end
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

func (s *Store) AddTrip(ctx context.Context, t settlement.TripRecord) error {
	return s.db.WithContext(ctx).Create(&TripRecord{
		RecordDate:    t.Date.Time,
		TruckNo:       t.TruckNo,
		ExcavatorNo:   t.ExcavatorNo,
		LoadType:      t.LoadType,
		TruckCount:    t.TruckCount,
		TotalCapacity: t.TotalCapacity,
		TotalFee:      t.TotalFee,
	}).Error
}

func (s *Store) AddFuelPurchase(ctx context.Context, p settlement.FuelPurchase) error {
	return s.db.WithContext(ctx).Create(&FuelPurchase{
		KeyColumns: toKeyColumns(p.Key),
		OilType:    p.OilType,
		OilAmount:  p.OilAmount,
		TotalFee:   p.TotalFee,
	}).Error
}

func (s *Store) SaveShift(ctx context.Context, r settlement.ShiftRecord) error {
	return s.db.WithContext(ctx).Save(&ShiftRecord{NaturalKey: toKey(r.Key), WorkHours: r.WorkHours}).Error
}

func (s *Store) AddDeduction(ctx context.Context, d settlement.Deduction) error {
	return s.db.WithContext(ctx).Create(&Deduction{KeyColumns: toKeyColumns(d.Key), Amount: d.Amount, Reason: d.Reason}).Error
}

func (s *Store) AddMiscFee(ctx context.Context, f settlement.MiscFee) error {
	return s.db.WithContext(ctx).Create(&MiscFee{KeyColumns: toKeyColumns(f.Key), FeeType: f.FeeType, Amount: f.Amount}).Error
}

func (s *Store) AddRepair(ctx context.Context, r settlement.RepairRecord) error {
	return s.db.WithContext(ctx).Create(&Repair{
		KeyColumns:  toKeyColumns(r.Key),
		RepairFee:   r.RepairFee,
		PartsFee:    r.PartsFee,
		Description: r.Description,
	}).Error
}

func (s *Store) SavePrice(ctx context.Context, p settlement.PriceRecord) error {
	return s.db.WithContext(ctx).Create(&Price{
		Kind:          string(p.Category.Kind),
		CategoryKey:   p.Category.Key,
		EffectiveDate: p.EffectiveDate.Time,
		Price:         p.Price,
		BaseDistance:  p.BaseDistance,
		ExtraDistance: p.ExtraDistance,
		ExtraPrice:    p.ExtraPrice,
	}).Error
}

// =============================================================================
// SOURCE STORE
// =============================================================================

func (s *Store) TripRecords(ctx context.Context, date settlement.Date, role settlement.TripRole, vehicleNo string) ([]settlement.TripRecord, error) {
	column := "truck_no"
	if role == settlement.RoleExcavator {
		column = "excavator_no"
	}

	var rows []TripRecord
	err := s.db.WithContext(ctx).
		Where("record_date = ? AND "+column+" = ?", date.Time, vehicleNo).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query trips: %w", err)
	}

	out := make([]settlement.TripRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, settlement.TripRecord{
			Date:          date,
			TruckNo:       r.TruckNo,
			ExcavatorNo:   r.ExcavatorNo,
			LoadType:      r.LoadType,
			TruckCount:    r.TruckCount,
			TotalCapacity: r.TotalCapacity,
			TotalFee:      r.TotalFee,
		})
	}
	return out, nil
}

func (s *Store) FuelPurchases(ctx context.Context, key settlement.Key) ([]settlement.FuelPurchase, error) {
	var rows []FuelPurchase
	if err := whereKey(s.db.WithContext(ctx), key).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query fuel purchases: %w", err)
	}
	out := make([]settlement.FuelPurchase, 0, len(rows))
	for _, r := range rows {
		out = append(out, settlement.FuelPurchase{Key: key, OilType: r.OilType, OilAmount: r.OilAmount, TotalFee: r.TotalFee})
	}
	return out, nil
}

func (s *Store) ShiftRecord(ctx context.Context, key settlement.Key) (*settlement.ShiftRecord, error) {
	var m ShiftRecord
	found, err := first(whereKey(s.db.WithContext(ctx), key), &m)
	if err != nil {
		return nil, fmt.Errorf("failed to get shift %s: %w", key, err)
	}
	if !found {
		return nil, nil
	}
	return &settlement.ShiftRecord{Key: key, WorkHours: m.WorkHours}, nil
}

func (s *Store) Deductions(ctx context.Context, key settlement.Key) ([]settlement.Deduction, error) {
	var rows []Deduction
	if err := whereKey(s.db.WithContext(ctx), key).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query deductions: %w", err)
	}
	out := make([]settlement.Deduction, 0, len(rows))
	for _, r := range rows {
		out = append(out, settlement.Deduction{Key: key, Amount: r.Amount, Reason: r.Reason})
	}
	return out, nil
}

func (s *Store) MiscFees(ctx context.Context, key settlement.Key) ([]settlement.MiscFee, error) {
	var rows []MiscFee
	if err := whereKey(s.db.WithContext(ctx), key).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query misc fees: %w", err)
	}
	out := make([]settlement.MiscFee, 0, len(rows))
	for _, r := range rows {
		out = append(out, settlement.MiscFee{Key: key, FeeType: r.FeeType, Amount: r.Amount})
	}
	return out, nil
}

func (s *Store) Repairs(ctx context.Context, key settlement.Key) ([]settlement.RepairRecord, error) {
	var rows []Repair
	if err := whereKey(s.db.WithContext(ctx), key).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query repairs: %w", err)
	}
	out := make([]settlement.RepairRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, settlement.RepairRecord{Key: key, RepairFee: r.RepairFee, PartsFee: r.PartsFee, Description: r.Description})
	}
	return out, nil
}

// =============================================================================
// PRICE STORE
// =============================================================================

func (s *Store) LatestPrice(ctx context.Context, category settlement.PriceCategory, asOf settlement.Date) (*settlement.PriceRecord, error) {
	var m Price
	found, err := first(s.db.WithContext(ctx).
		Where("kind = ? AND category_key = ? AND effective_date <= ?", category.Kind, category.Key, asOf.Time).
		Order("effective_date DESC, id DESC"), &m)
	if err != nil {
		return nil, fmt.Errorf("failed to get price %s: %w", category, err)
	}
	if !found {
		return nil, nil
	}
	return &settlement.PriceRecord{
		Category:      category,
		EffectiveDate: date(m.EffectiveDate),
		Price:         m.Price,
		BaseDistance:  m.BaseDistance,
		ExtraDistance: m.ExtraDistance,
		ExtraPrice:    m.ExtraPrice,
	}, nil
}

// =============================================================================
// ROSTER STORE
// =============================================================================

func (s *Store) ActiveVehicles(ctx context.Context, machineryType settlement.MachineryType) ([]settlement.Vehicle, error) {
	q := s.db.WithContext(ctx).Where("status = ?", settlement.VehicleActive)
	if machineryType != "" {
		q = q.Where("machinery_type = ?", machineryType)
	}

	var rows []Vehicle
	if err := q.Order("machinery_type, vehicle_no").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list vehicles: %w", err)
	}
	out := make([]settlement.Vehicle, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.vehicle())
	}
	return out, nil
}

func (s *Store) Vehicle(ctx context.Context, ref settlement.VehicleRef) (*settlement.Vehicle, error) {
	var m Vehicle
	found, err := first(whereVehicle(s.db.WithContext(ctx), ref), &m)
	if err != nil {
		return nil, fmt.Errorf("failed to get vehicle %s: %w", ref, err)
	}
	if !found {
		return nil, nil
	}
	v := m.vehicle()
	return &v, nil
}

func (s *Store) DriverAssignments(ctx context.Context, ref settlement.VehicleRef, on settlement.Date) ([]settlement.DriverAssignment, error) {
	var rows []DriverAssignment
	err := whereVehicle(s.db.WithContext(ctx), ref).
		Where("start_date <= ? AND (end_date IS NULL OR end_date >= ?)", on.Time, on.Time).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	out := make([]settlement.DriverAssignment, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.assignment())
	}
	return out, nil
}

func (s *Store) AttendanceMaster(ctx context.Context, ym settlement.YearMonth) (*settlement.AttendanceMaster, error) {
	var m AttendanceMaster
	found, err := first(s.db.WithContext(ctx).Where("year_month = ?", ym.String()), &m)
	if err != nil {
		return nil, fmt.Errorf("failed to get attendance master %s: %w", ym, err)
	}
	if !found {
		return nil, nil
	}
	return &settlement.AttendanceMaster{ID: m.ID, YearMonth: ym, Status: m.Status}, nil
}

func (s *Store) AttendanceDetail(ctx context.Context, masterID, personID string, on settlement.Date) (*settlement.AttendanceDetail, error) {
	var m AttendanceDetail
	found, err := first(s.db.WithContext(ctx).
		Where("master_id = ? AND person_id = ? AND record_date = ?", masterID, personID, on.Time), &m)
	if err != nil {
		return nil, fmt.Errorf("failed to get attendance detail: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &settlement.AttendanceDetail{
		MasterID:         m.MasterID,
		PersonID:         m.PersonID,
		Date:             on,
		AttendanceStatus: m.AttendanceStatus,
		MealStatus:       m.MealStatus,
	}, nil
}

// =============================================================================
// SETTLEMENT STORE
// =============================================================================

func (s *Store) FindDaily(ctx context.Context, key settlement.Key) (*settlement.DailySettlement, error) {
	var m DailySettlement
	found, err := first(whereKey(s.db.WithContext(ctx), key), &m)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily settlement %s: %w", key, err)
	}
	if !found {
		return nil, nil
	}
	d := m.settlement()
	return &d, nil
}

// UpsertDaily saves over the row for the key, or creates it.
func (s *Store) UpsertDaily(ctx context.Context, d settlement.DailySettlement) (bool, error) {
	var created bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		m := toDaily(d)
		m.UpdatedAt = now

		var existing DailySettlement
		found, err := first(whereKey(tx, d.Key).Clauses(clause.Locking{Strength: "UPDATE"}), &existing)
		if err != nil {
			return err
		}
		if found {
			m.CreatedAt = existing.CreatedAt
			return tx.Save(&m).Error
		}
		created = true
		m.CreatedAt = now
		return tx.Create(&m).Error
	})
	if err != nil {
		return false, fmt.Errorf("failed to upsert daily settlement %s: %w", d.Key, err)
	}
	return created, nil
}

func (s *Store) findDaily(q *gorm.DB) ([]settlement.DailySettlement, error) {
	var rows []DailySettlement
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query daily settlements: %w", err)
	}
	out := make([]settlement.DailySettlement, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.settlement())
	}
	return out, nil
}

func (s *Store) DailyRange(ctx context.Context, ref settlement.VehicleRef, from, to settlement.Date) ([]settlement.DailySettlement, error) {
	return s.findDaily(whereVehicle(s.db.WithContext(ctx), ref).
		Where("record_date >= ? AND record_date <= ?", from.Time, to.Time).
		Order("record_date ASC"))
}

func (s *Store) RecentDaily(ctx context.Context, ref settlement.VehicleRef, asOf settlement.Date, limit int) ([]settlement.DailySettlement, error) {
	q := whereVehicle(s.db.WithContext(ctx), ref).
		Where("record_date <= ?", asOf.Time).
		Order("record_date DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return s.findDaily(q)
}

func (s *Store) ListDaily(ctx context.Context, from, to settlement.Date) ([]settlement.DailySettlement, error) {
	return s.findDaily(s.db.WithContext(ctx).
		Where("record_date >= ? AND record_date <= ?", from.Time, to.Time).
		Order("record_date ASC, machinery_type ASC, vehicle_no ASC"))
}

func (s *Store) FindMonthly(ctx context.Context, ym settlement.YearMonth, ref settlement.VehicleRef) (*settlement.MonthlySettlement, error) {
	var m MonthlySettlement
	found, err := first(whereVehicle(s.db.WithContext(ctx), ref).Where("year_month = ?", ym.String()), &m)
	if err != nil {
		return nil, fmt.Errorf("failed to get monthly settlement %s/%s: %w", ym, ref, err)
	}
	if !found {
		return nil, nil
	}
	out, err := m.settlement()
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpsertMonthly saves over the row for (month, vehicle), or creates it.
func (s *Store) UpsertMonthly(ctx context.Context, ms settlement.MonthlySettlement) (bool, error) {
	var created bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		m := toMonthly(ms)
		m.UpdatedAt = now

		var existing MonthlySettlement
		found, err := first(whereVehicle(tx, ms.Vehicle).
			Where("year_month = ?", m.YearMonth).
			Clauses(clause.Locking{Strength: "UPDATE"}), &existing)
		if err != nil {
			return err
		}
		if found {
			m.CreatedAt = existing.CreatedAt
			return tx.Save(&m).Error
		}
		created = true
		m.CreatedAt = now
		return tx.Create(&m).Error
	})
	if err != nil {
		return false, fmt.Errorf("failed to upsert monthly settlement %s/%s: %w", ms.YearMonth, ms.Vehicle, err)
	}
	return created, nil
}

func (s *Store) ListMonthly(ctx context.Context, ym settlement.YearMonth) ([]settlement.MonthlySettlement, error) {
	var rows []MonthlySettlement
	err := s.db.WithContext(ctx).
		Where("year_month = ?", ym.String()).
		Order("machinery_type, vehicle_no").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query monthly settlements: %w", err)
	}
	out := make([]settlement.MonthlySettlement, 0, len(rows))
	for _, r := range rows {
		m, err := r.settlement()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// =============================================================================
// ALERT STORE
// =============================================================================

// InsertAlert returns settlement.ErrAlreadyRecorded for a duplicate
// (type, vehicle, related_date).
func (s *Store) InsertAlert(ctx context.Context, a settlement.Alert) error {
	m := toAlert(a)
	err := s.db.WithContext(ctx).Create(&m).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return settlement.ErrAlreadyRecorded
	}
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

func (s *Store) FindAlerts(ctx context.Context, f settlement.AlertFilter) ([]settlement.Alert, error) {
	q := s.db.WithContext(ctx)
	if f.Type != "" {
		q = q.Where("alert_type = ?", f.Type)
	}
	if f.Vehicle != nil {
		q = whereVehicle(q, *f.Vehicle)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Severity != "" {
		q = q.Where("severity = ?", f.Severity)
	}
	if f.From != nil {
		q = q.Where("related_date >= ?", f.From.Time)
	}
	if f.To != nil {
		q = q.Where("related_date <= ?", f.To.Time)
	}

	var rows []Alert
	if err := q.Order("related_date DESC, created_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	out := make([]settlement.Alert, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.alert())
	}
	return out, nil
}

func (s *Store) UpdateAlertStatus(ctx context.Context, id string, status settlement.AlertStatus, remark string, at time.Time) (*settlement.Alert, error) {
	var m Alert
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Alert{}).Where("id = ?", id).Updates(map[string]any{
			"status":     string(status),
			"remark":     remark,
			"handled_at": at,
		})
		if res.Error != nil || res.RowsAffected == 0 {
			return res.Error
		}
		return tx.Where("id = ?", id).First(&m).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update alert %s: %w", id, err)
	}
	if m.ID == "" {
		return nil, nil
	}
	a := m.alert()
	return &a, nil
}

// =============================================================================
// FUEL BALANCE STORE
// =============================================================================

func (s *Store) FindFuelBalance(ctx context.Context, key settlement.Key) (*settlement.FuelBalance, error) {
	var m FuelBalance
	found, err := first(whereKey(s.db.WithContext(ctx), key), &m)
	if err != nil {
		return nil, fmt.Errorf("failed to get fuel balance %s: %w", key, err)
	}
	if !found {
		return nil, nil
	}
	b := m.balance()
	return &b, nil
}

func (s *Store) LatestFuelBalanceBefore(ctx context.Context, ref settlement.VehicleRef, before settlement.Date) (*settlement.FuelBalance, error) {
	var m FuelBalance
	q := whereVehicle(s.db.WithContext(ctx), ref).
		Where("record_date < ?", before.Time).
		Order("record_date DESC")
	found, err := first(q, &m)
	if err != nil {
		return nil, fmt.Errorf("failed to get fuel balance before %s for %s: %w", before, ref, err)
	}
	if !found {
		return nil, nil
	}
	b := m.balance()
	return &b, nil
}

// InsertFuelBalance returns settlement.ErrAlreadyRecorded if the key exists.
func (s *Store) InsertFuelBalance(ctx context.Context, b settlement.FuelBalance) error {
	err := s.db.WithContext(ctx).Create(&FuelBalance{
		NaturalKey:             toKey(b.Key),
		OpeningBalance:         b.OpeningBalance,
		RefuelAmount:           b.RefuelAmount,
		ConsumptionAmount:      b.ConsumptionAmount,
		ClosingBalance:         b.ClosingBalance,
		TheoreticalConsumption: b.TheoreticalConsumption,
		ConsumptionDifference:  b.ConsumptionDifference,
		CreatedAt:              b.CreatedAt,
	}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return settlement.ErrAlreadyRecorded
	}
	if err != nil {
		return fmt.Errorf("failed to insert fuel balance %s: %w", b.Key, err)
	}
	return nil
}

// =============================================================================
// BASELINE STORE
// =============================================================================

func (s *Store) UpsertBaseline(ctx context.Context, b settlement.AnalysisBaseline) error {
	m := AnalysisBaseline{
		CalculationDate: b.CalculationDate.Time,
		MachineryType:   string(b.Vehicle.MachineryType),
		VehicleNo:       b.Vehicle.VehicleNo,
		Indicator:       string(b.Indicator),
		Period:          b.Period.String(),
		MeanValue:       b.Mean,
		StdDev:          b.StdDev,
		SampleSize:      b.SampleSize,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "calculation_date"}, {Name: "machinery_type"}, {Name: "vehicle_no"}, {Name: "indicator"}},
		DoUpdates: clause.AssignmentColumns([]string{"period", "mean_value", "std_dev", "sample_size"}),
	}).Create(&m).Error
	if err != nil {
		return fmt.Errorf("failed to upsert baseline: %w", err)
	}
	return nil
}

func (s *Store) Baselines(ctx context.Context, ref settlement.VehicleRef) ([]settlement.AnalysisBaseline, error) {
	var rows []AnalysisBaseline
	err := whereVehicle(s.db.WithContext(ctx), ref).
		Order("calculation_date DESC, indicator ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query baselines: %w", err)
	}

	out := make([]settlement.AnalysisBaseline, 0, len(rows))
	for _, r := range rows {
		period, err := settlement.ParseYearMonth(r.Period)
		if err != nil {
			return nil, err
		}
		out = append(out, settlement.AnalysisBaseline{
			CalculationDate: date(r.CalculationDate),
			Vehicle:         ref,
			Indicator:       settlement.Indicator(r.Indicator),
			Period:          period,
			Mean:            r.MeanValue,
			StdDev:          r.StdDev,
			SampleSize:      r.SampleSize,
		})
	}
	return out, nil
}

// =============================================================================
// ATTENDANCE STORE
// =============================================================================

func (s *Store) ActivePersonnel(ctx context.Context) ([]settlement.Person, error) {
	var rows []Person
	if err := s.db.WithContext(ctx).Where("active = ?", true).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list personnel: %w", err)
	}
	out := make([]settlement.Person, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.person())
	}
	return out, nil
}

func (s *Store) Person(ctx context.Context, id string) (*settlement.Person, error) {
	var m Person
	found, err := first(s.db.WithContext(ctx).Where("id = ?", id), &m)
	if err != nil {
		return nil, fmt.Errorf("failed to get person %s: %w", id, err)
	}
	if !found {
		return nil, nil
	}
	p := m.person()
	return &p, nil
}

// CreateAttendance writes the master and every detail row in one
// transaction. It returns settlement.ErrAlreadyRecorded if the month exists.
func (s *Store) CreateAttendance(ctx context.Context, master settlement.AttendanceMaster, details []settlement.AttendanceDetail) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&AttendanceMaster{
			ID:        master.ID,
			YearMonth: master.YearMonth.String(),
			Status:    master.Status,
		}).Error; err != nil {
			return err
		}
		if len(details) == 0 {
			return nil
		}

		rows := make([]AttendanceDetail, 0, len(details))
		for _, d := range details {
			rows = append(rows, AttendanceDetail{
				MasterID:         d.MasterID,
				PersonID:         d.PersonID,
				RecordDate:       d.Date.Time,
				AttendanceStatus: d.AttendanceStatus,
				MealStatus:       d.MealStatus,
			})
		}
		return tx.CreateInBatches(rows, 500).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return settlement.ErrAlreadyRecorded
	}
	if err != nil {
		return fmt.Errorf("failed to create attendance for %s: %w", master.YearMonth, err)
	}
	return nil
}
