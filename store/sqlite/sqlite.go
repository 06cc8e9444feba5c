/*
Package sqlite provides a SQLite-backed implementation of settlement.Store.

PURPOSE:
  Persists the operational source tables the engine reads (trips, fuel,
  shifts, deductions, misc fees, repairs, prices, roster, attendance) and
  the rows it writes (daily/monthly settlements, alerts, fuel balances,
  analysis baselines). Suitable for single-site deployments and tests.

INTERFACES IMPLEMENTED:
  settlement.Store (every sub-interface in settlement/store.go)

UPSERT BY NATURAL KEY:
  UpsertDaily / UpsertMonthly look the row up by its natural key inside a
  SQL transaction and UPDATE it in place when found, INSERT otherwise.
  created_at survives updates.

APPEND-ONLY TABLES:
  fuel_balances and alerts carry unique natural keys. A second insert for the
  same key returns settlement.ErrAlreadyRecorded.

NUMBERS:
  Decimals are stored as TEXT through decimal.Decimal's own sql.Scanner /
  driver.Valuer, so no precision is lost. Dates are TEXT "YYYY-MM-DD",
  which sorts and compares correctly.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. SQLite allows a single writer;
  the mutex keeps writers from contending for the database lock.

WAL MODE:
  File databases are opened with WAL (Write-Ahead Logging) so readers
  don't block the writer.

USAGE:
  store, err := sqlite.New("./data/settlement.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := settlement.NewEngine(store)

SEE ALSO:
  - settlement/store.go: Interface definitions
  - settlement/store/memory.go: In-memory implementation for testing
  - store/postgres: PostgreSQL implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/minefleet/settlement-engine/settlement"
)

// Store implements settlement.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ settlement.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// figureNames are the settlement.Figures columns, in struct order.
var figureNames = []string{
	"truck_count", "total_capacity", "income", "oil_amount", "oil_fee",
	"work_hours", "shift_fee", "balance", "deduction", "meal_fee",
	"medical_fee", "walkie_talkie_fee", "bluetooth_card_fee", "amplifier_fee",
	"reflective_vest_fee", "safety_insurance_fee", "driver_salary",
	"repair_fee", "parts_fee", "actual_balance",
}

var (
	figureCols        = strings.Join(figureNames, ", ")
	figureAssignments = strings.Join(figureNames, " = ?, ") + " = ?"
)

func figureDDL() string {
	cols := make([]string, len(figureNames))
	for i, name := range figureNames {
		if name == "truck_count" {
			cols[i] = name + " INTEGER NOT NULL DEFAULT 0"
			continue
		}
		cols[i] = name + " TEXT NOT NULL DEFAULT '0'"
	}
	return strings.Join(cols, ",\n\t\t")
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Roster
	CREATE TABLE IF NOT EXISTS vehicles (
		machinery_type TEXT NOT NULL,
		vehicle_no TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		capacity TEXT NOT NULL DEFAULT '0',
		owning_unit TEXT NOT NULL DEFAULT '',
		is_rental INTEGER NOT NULL DEFAULT 0,
		rental_fee TEXT NOT NULL DEFAULT '0',
		rental_unit TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		PRIMARY KEY (machinery_type, vehicle_no)
	);

	CREATE TABLE IF NOT EXISTS personnel (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		monthly_salary TEXT NOT NULL DEFAULT '0'
	);

	CREATE TABLE IF NOT EXISTS driver_assignments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		person_id TEXT NOT NULL,
		person_name TEXT NOT NULL DEFAULT '',
		machinery_type TEXT NOT NULL,
		vehicle_no TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT,
		daily_salary TEXT NOT NULL DEFAULT '0'
	);

	CREATE INDEX IF NOT EXISTS idx_assignments_vehicle
		ON driver_assignments(machinery_type, vehicle_no, start_date);

	-- Source records
	CREATE TABLE IF NOT EXISTS trip_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		record_date TEXT NOT NULL,
		truck_no TEXT NOT NULL DEFAULT '',
		excavator_no TEXT NOT NULL DEFAULT '',
		load_type TEXT NOT NULL DEFAULT '',
		truck_count INTEGER NOT NULL DEFAULT 0,
		total_capacity TEXT NOT NULL DEFAULT '0',
		total_fee TEXT NOT NULL DEFAULT '0'
	);

	CREATE INDEX IF NOT EXISTS idx_trips_truck ON trip_records(record_date, truck_no);
	CREATE INDEX IF NOT EXISTS idx_trips_excavator ON trip_records(record_date, excavator_no);

	CREATE TABLE IF NOT EXISTS fuel_purchases (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		record_date TEXT NOT NULL,
		machinery_type TEXT NOT NULL,
		vehicle_no TEXT NOT NULL,
		oil_type TEXT NOT NULL DEFAULT '',
		oil_amount TEXT NOT NULL DEFAULT '0',
		total_fee TEXT NOT NULL DEFAULT '0'
	);

	CREATE INDEX IF NOT EXISTS idx_fuel_key ON fuel_purchases(record_date, machinery_type, vehicle_no);

	CREATE TABLE IF NOT EXISTS shift_records (
		record_date TEXT NOT NULL,
		machinery_type TEXT NOT NULL,
		vehicle_no TEXT NOT NULL,
		work_hours TEXT NOT NULL DEFAULT '0',
		PRIMARY KEY (record_date, machinery_type, vehicle_no)
	);

	CREATE TABLE IF NOT EXISTS deductions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		record_date TEXT NOT NULL,
		machinery_type TEXT NOT NULL,
		vehicle_no TEXT NOT NULL,
		amount TEXT NOT NULL DEFAULT '0',
		reason TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_deductions_key ON deductions(record_date, machinery_type, vehicle_no);

	CREATE TABLE IF NOT EXISTS misc_fees (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		record_date TEXT NOT NULL,
		machinery_type TEXT NOT NULL,
		vehicle_no TEXT NOT NULL,
		fee_type TEXT NOT NULL,
		amount TEXT NOT NULL DEFAULT '0'
	);

	CREATE INDEX IF NOT EXISTS idx_misc_fees_key ON misc_fees(record_date, machinery_type, vehicle_no);

	CREATE TABLE IF NOT EXISTS repairs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		record_date TEXT NOT NULL,
		machinery_type TEXT NOT NULL,
		vehicle_no TEXT NOT NULL,
		repair_fee TEXT NOT NULL DEFAULT '0',
		parts_fee TEXT NOT NULL DEFAULT '0',
		description TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_repairs_key ON repairs(record_date, machinery_type, vehicle_no);

	-- Effective-dated prices
	CREATE TABLE IF NOT EXISTS prices (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		category_key TEXT NOT NULL DEFAULT '',
		effective_date TEXT NOT NULL,
		price TEXT NOT NULL DEFAULT '0',
		base_distance TEXT NOT NULL DEFAULT '0',
		extra_distance TEXT NOT NULL DEFAULT '0',
		extra_price TEXT NOT NULL DEFAULT '0'
	);

	-- Hot path for every fee lookup
	CREATE INDEX IF NOT EXISTS idx_prices_category_date
		ON prices(kind, category_key, effective_date DESC);

	-- Settlements
	CREATE TABLE IF NOT EXISTS daily_settlements (
		record_date TEXT NOT NULL,
		machinery_type TEXT NOT NULL,
		vehicle_no TEXT NOT NULL,
		` + figureDDL() + `,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (record_date, machinery_type, vehicle_no)
	);

	CREATE INDEX IF NOT EXISTS idx_daily_vehicle_date
		ON daily_settlements(machinery_type, vehicle_no, record_date DESC);

	CREATE TABLE IF NOT EXISTS monthly_settlements (
		year_month TEXT NOT NULL,
		machinery_type TEXT NOT NULL,
		vehicle_no TEXT NOT NULL,
		` + figureDDL() + `,
		rental_fee TEXT NOT NULL DEFAULT '0',
		day_count INTEGER NOT NULL DEFAULT 0,
		missing_days INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (year_month, machinery_type, vehicle_no)
	);

	-- Alerts: one per (type, vehicle, related_date)
	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		alert_type TEXT NOT NULL,
		machinery_type TEXT NOT NULL,
		vehicle_no TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		severity TEXT NOT NULL,
		related_date TEXT NOT NULL,
		payload_json TEXT,
		status TEXT NOT NULL DEFAULT 'unhandled',
		remark TEXT,
		handled_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_alerts_natural_key
		ON alerts(alert_type, machinery_type, vehicle_no, related_date);
	CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);

	-- Fuel ledger (append-only)
	CREATE TABLE IF NOT EXISTS fuel_balances (
		record_date TEXT NOT NULL,
		machinery_type TEXT NOT NULL,
		vehicle_no TEXT NOT NULL,
		opening_balance TEXT NOT NULL,
		refuel_amount TEXT NOT NULL,
		consumption_amount TEXT NOT NULL,
		closing_balance TEXT NOT NULL,
		theoretical_consumption TEXT NOT NULL,
		consumption_difference TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (record_date, machinery_type, vehicle_no)
	);

	CREATE TABLE IF NOT EXISTS analysis_baselines (
		calculation_date TEXT NOT NULL,
		machinery_type TEXT NOT NULL,
		vehicle_no TEXT NOT NULL,
		indicator TEXT NOT NULL,
		period TEXT NOT NULL,
		mean_value TEXT NOT NULL,
		std_dev TEXT NOT NULL,
		sample_size INTEGER NOT NULL,
		PRIMARY KEY (calculation_date, machinery_type, vehicle_no, indicator)
	);

	-- Attendance
	CREATE TABLE IF NOT EXISTS attendance_masters (
		id TEXT PRIMARY KEY,
		year_month TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS attendance_details (
		master_id TEXT NOT NULL REFERENCES attendance_masters(id),
		person_id TEXT NOT NULL,
		record_date TEXT NOT NULL,
		attendance_status TEXT NOT NULL,
		meal_status TEXT NOT NULL,
		PRIMARY KEY (master_id, person_id, record_date)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SEEDING - Operational tables owned by other services
// =============================================================================

// SaveVehicle inserts or replaces a vehicle.
func (s *Store) SaveVehicle(ctx context.Context, v settlement.Vehicle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO vehicles
		(machinery_type, vehicle_no, model, capacity, owning_unit, is_rental, rental_fee, rental_unit, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.MachineryType, v.VehicleNo, v.Model, v.Capacity, v.OwningUnit,
		v.IsRental, v.RentalFee, v.RentalUnit, v.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to save vehicle %s: %w", v.VehicleRef, err)
	}
	return nil
}

func (s *Store) SavePerson(ctx context.Context, p settlement.Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO personnel (id, name, active, monthly_salary) VALUES (?, ?, ?, ?)`,
		p.ID, p.Name, p.Active, p.MonthlySalary,
	)
	return err
}

func (s *Store) SaveAssignment(ctx context.Context, a settlement.DriverAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var end sql.NullString
	if a.EndDate != nil {
		end = nullString(a.EndDate.String())
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO driver_assignments
		(person_id, person_name, machinery_type, vehicle_no, start_date, end_date, daily_salary)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.PersonID, a.PersonName, a.Vehicle.MachineryType, a.Vehicle.VehicleNo,
		a.StartDate.String(), end, a.DailySalary,
	)
	return err
}

func (s *Store) AddTrip(ctx context.Context, t settlement.TripRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trip_records
		(record_date, truck_no, excavator_no, load_type, truck_count, total_capacity, total_fee)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.Date.String(), t.TruckNo, t.ExcavatorNo, t.LoadType, t.TruckCount, t.TotalCapacity, t.TotalFee,
	)
	return err
}

func (s *Store) AddFuelPurchase(ctx context.Context, p settlement.FuelPurchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fuel_purchases
		(record_date, machinery_type, vehicle_no, oil_type, oil_amount, total_fee)
		VALUES (?, ?, ?, ?, ?, ?)`,
		append(keyArgs(p.Key), p.OilType, p.OilAmount, p.TotalFee)...,
	)
	return err
}

// SaveShift replaces the shift row for the key.
func (s *Store) SaveShift(ctx context.Context, r settlement.ShiftRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO shift_records (record_date, machinery_type, vehicle_no, work_hours)
		VALUES (?, ?, ?, ?)`,
		append(keyArgs(r.Key), r.WorkHours)...,
	)
	return err
}

func (s *Store) AddDeduction(ctx context.Context, d settlement.Deduction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deductions (record_date, machinery_type, vehicle_no, amount, reason)
		VALUES (?, ?, ?, ?, ?)`,
		append(keyArgs(d.Key), d.Amount, d.Reason)...,
	)
	return err
}

func (s *Store) AddMiscFee(ctx context.Context, f settlement.MiscFee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO misc_fees (record_date, machinery_type, vehicle_no, fee_type, amount)
		VALUES (?, ?, ?, ?, ?)`,
		append(keyArgs(f.Key), f.FeeType, f.Amount)...,
	)
	return err
}

func (s *Store) AddRepair(ctx context.Context, r settlement.RepairRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO repairs (record_date, machinery_type, vehicle_no, repair_fee, parts_fee, description)
		VALUES (?, ?, ?, ?, ?, ?)`,
		append(keyArgs(r.Key), r.RepairFee, r.PartsFee, r.Description)...,
	)
	return err
}

func (s *Store) SavePrice(ctx context.Context, p settlement.PriceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prices
		(kind, category_key, effective_date, price, base_distance, extra_distance, extra_price)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.Category.Kind, p.Category.Key, p.EffectiveDate.String(),
		p.Price, p.BaseDistance, p.ExtraDistance, p.ExtraPrice,
	)
	return err
}

// =============================================================================
// SOURCE STORE
// =============================================================================

func (s *Store) TripRecords(ctx context.Context, date settlement.Date, role settlement.TripRole, vehicleNo string) ([]settlement.TripRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	column := "truck_no"
	if role == settlement.RoleExcavator {
		column = "excavator_no"
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT record_date, truck_no, excavator_no, load_type, truck_count, total_capacity, total_fee
		FROM trip_records
		WHERE record_date = ? AND `+column+` = ?
		ORDER BY id`,
		date.String(), vehicleNo,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query trips: %w", err)
	}
	defer rows.Close()

	var out []settlement.TripRecord
	for rows.Next() {
		var (
			t       settlement.TripRecord
			recDate string
		)
		if err := rows.Scan(&recDate, &t.TruckNo, &t.ExcavatorNo, &t.LoadType, &t.TruckCount, &t.TotalCapacity, &t.TotalFee); err != nil {
			return nil, fmt.Errorf("failed to scan trip: %w", err)
		}
		if t.Date, err = settlement.ParseDate(recDate); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) FuelPurchases(ctx context.Context, key settlement.Key) ([]settlement.FuelPurchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT oil_type, oil_amount, total_fee FROM fuel_purchases
		WHERE record_date = ? AND machinery_type = ? AND vehicle_no = ?
		ORDER BY id`, keyArgs(key)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query fuel purchases: %w", err)
	}
	defer rows.Close()

	var out []settlement.FuelPurchase
	for rows.Next() {
		p := settlement.FuelPurchase{Key: key}
		if err := rows.Scan(&p.OilType, &p.OilAmount, &p.TotalFee); err != nil {
			return nil, fmt.Errorf("failed to scan fuel purchase: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) ShiftRecord(ctx context.Context, key settlement.Key) (*settlement.ShiftRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r := settlement.ShiftRecord{Key: key}
	err := s.db.QueryRowContext(ctx, `
		SELECT work_hours FROM shift_records
		WHERE record_date = ? AND machinery_type = ? AND vehicle_no = ?`, keyArgs(key)...,
	).Scan(&r.WorkHours)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get shift: %w", err)
	}
	return &r, nil
}

func (s *Store) Deductions(ctx context.Context, key settlement.Key) ([]settlement.Deduction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT amount, reason FROM deductions
		WHERE record_date = ? AND machinery_type = ? AND vehicle_no = ?
		ORDER BY id`, keyArgs(key)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query deductions: %w", err)
	}
	defer rows.Close()

	var out []settlement.Deduction
	for rows.Next() {
		d := settlement.Deduction{Key: key}
		if err := rows.Scan(&d.Amount, &d.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan deduction: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) MiscFees(ctx context.Context, key settlement.Key) ([]settlement.MiscFee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT fee_type, amount FROM misc_fees
		WHERE record_date = ? AND machinery_type = ? AND vehicle_no = ?
		ORDER BY id`, keyArgs(key)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query misc fees: %w", err)
	}
	defer rows.Close()

	var out []settlement.MiscFee
	for rows.Next() {
		f := settlement.MiscFee{Key: key}
		if err := rows.Scan(&f.FeeType, &f.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan misc fee: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) Repairs(ctx context.Context, key settlement.Key) ([]settlement.RepairRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT repair_fee, parts_fee, description FROM repairs
		WHERE record_date = ? AND machinery_type = ? AND vehicle_no = ?
		ORDER BY id`, keyArgs(key)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query repairs: %w", err)
	}
	defer rows.Close()

	var out []settlement.RepairRecord
	for rows.Next() {
		r := settlement.RepairRecord{Key: key}
		if err := rows.Scan(&r.RepairFee, &r.PartsFee, &r.Description); err != nil {
			return nil, fmt.Errorf("failed to scan repair: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// PRICE STORE
// =============================================================================

func (s *Store) LatestPrice(ctx context.Context, category settlement.PriceCategory, asOf settlement.Date) (*settlement.PriceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		p   = settlement.PriceRecord{Category: category}
		eff string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT effective_date, price, base_distance, extra_distance, extra_price
		FROM prices
		WHERE kind = ? AND category_key = ? AND effective_date <= ?
		ORDER BY effective_date DESC, id DESC
		LIMIT 1`,
		category.Kind, category.Key, asOf.String(),
	).Scan(&eff, &p.Price, &p.BaseDistance, &p.ExtraDistance, &p.ExtraPrice)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get price %s: %w", category, err)
	}
	if p.EffectiveDate, err = settlement.ParseDate(eff); err != nil {
		return nil, err
	}
	return &p, nil
}

// =============================================================================
// ROSTER STORE
// =============================================================================

const vehicleSelect = `
	SELECT machinery_type, vehicle_no, model, capacity, owning_unit, is_rental, rental_fee, rental_unit, status
	FROM vehicles`

func scanVehicle(sc interface{ Scan(...any) error }) (settlement.Vehicle, error) {
	var v settlement.Vehicle
	err := sc.Scan(&v.MachineryType, &v.VehicleNo, &v.Model, &v.Capacity, &v.OwningUnit,
		&v.IsRental, &v.RentalFee, &v.RentalUnit, &v.Status)
	return v, err
}

func (s *Store) ActiveVehicles(ctx context.Context, machineryType settlement.MachineryType) ([]settlement.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := vehicleSelect + ` WHERE status = ?`
	args := []any{settlement.VehicleActive}
	if machineryType != "" {
		query += ` AND machinery_type = ?`
		args = append(args, machineryType)
	}
	query += ` ORDER BY machinery_type, vehicle_no`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list vehicles: %w", err)
	}
	defer rows.Close()

	var out []settlement.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vehicle: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) Vehicle(ctx context.Context, ref settlement.VehicleRef) (*settlement.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, err := scanVehicle(s.db.QueryRowContext(ctx,
		vehicleSelect+` WHERE machinery_type = ? AND vehicle_no = ?`, ref.MachineryType, ref.VehicleNo))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vehicle %s: %w", ref, err)
	}
	return &v, nil
}

func (s *Store) DriverAssignments(ctx context.Context, ref settlement.VehicleRef, on settlement.Date) ([]settlement.DriverAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day := on.String()
	rows, err := s.db.QueryContext(ctx, `
		SELECT person_id, person_name, start_date, end_date, daily_salary
		FROM driver_assignments
		WHERE machinery_type = ? AND vehicle_no = ?
		  AND start_date <= ? AND (end_date IS NULL OR end_date >= ?)
		ORDER BY id`,
		ref.MachineryType, ref.VehicleNo, day, day,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	var out []settlement.DriverAssignment
	for rows.Next() {
		var (
			a     = settlement.DriverAssignment{Vehicle: ref}
			start string
			end   sql.NullString
		)
		if err := rows.Scan(&a.PersonID, &a.PersonName, &start, &end, &a.DailySalary); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		if a.StartDate, err = settlement.ParseDate(start); err != nil {
			return nil, err
		}
		if end.Valid {
			e, err := settlement.ParseDate(end.String)
			if err != nil {
				return nil, err
			}
			a.EndDate = &e
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) AttendanceMaster(ctx context.Context, ym settlement.YearMonth) (*settlement.AttendanceMaster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := settlement.AttendanceMaster{YearMonth: ym}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, status FROM attendance_masters WHERE year_month = ?`, ym.String(),
	).Scan(&m.ID, &m.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attendance master %s: %w", ym, err)
	}
	return &m, nil
}

func (s *Store) AttendanceDetail(ctx context.Context, masterID, personID string, on settlement.Date) (*settlement.AttendanceDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d := settlement.AttendanceDetail{MasterID: masterID, PersonID: personID, Date: on}
	err := s.db.QueryRowContext(ctx, `
		SELECT attendance_status, meal_status FROM attendance_details
		WHERE master_id = ? AND person_id = ? AND record_date = ?`,
		masterID, personID, on.String(),
	).Scan(&d.AttendanceStatus, &d.MealStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attendance detail: %w", err)
	}
	return &d, nil
}

// SaveAttendanceMaster inserts or replaces a month's master row.
func (s *Store) SaveAttendanceMaster(ctx context.Context, m settlement.AttendanceMaster) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO attendance_masters (id, year_month, status) VALUES (?, ?, ?)`,
		m.ID, m.YearMonth.String(), m.Status,
	)
	return err
}

// SaveAttendanceDetail inserts or replaces one person-day row.
func (s *Store) SaveAttendanceDetail(ctx context.Context, d settlement.AttendanceDetail) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return insertDetail(ctx, s.db, d, "INSERT OR REPLACE")
}

func insertDetail(ctx context.Context, db execer, d settlement.AttendanceDetail, verb string) error {
	_, err := db.ExecContext(ctx, verb+` INTO attendance_details
		(master_id, person_id, record_date, attendance_status, meal_status)
		VALUES (?, ?, ?, ?, ?)`,
		d.MasterID, d.PersonID, d.Date.String(), d.AttendanceStatus, d.MealStatus,
	)
	return err
}

// =============================================================================
// SETTLEMENT STORE
// =============================================================================

var dailySelect = `SELECT record_date, machinery_type, vehicle_no, ` + figureCols + `, created_at, updated_at
	FROM daily_settlements`

func scanDaily(sc interface{ Scan(...any) error }) (settlement.DailySettlement, error) {
	var (
		d                      settlement.DailySettlement
		date, created, updated string
	)
	dest := append([]any{&date, &d.Vehicle.MachineryType, &d.Vehicle.VehicleNo}, figureDest(&d.Figures)...)
	dest = append(dest, &created, &updated)
	if err := sc.Scan(dest...); err != nil {
		return d, err
	}
	var err error
	if d.Date, err = settlement.ParseDate(date); err != nil {
		return d, err
	}
	d.CreatedAt = parseTime(created)
	d.UpdatedAt = parseTime(updated)
	return d, nil
}

func (s *Store) queryDaily(ctx context.Context, query string, args ...any) ([]settlement.DailySettlement, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily settlements: %w", err)
	}
	defer rows.Close()

	var out []settlement.DailySettlement
	for rows.Next() {
		d, err := scanDaily(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily settlement: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) FindDaily(ctx context.Context, key settlement.Key) (*settlement.DailySettlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, err := scanDaily(s.db.QueryRowContext(ctx,
		dailySelect+` WHERE record_date = ? AND machinery_type = ? AND vehicle_no = ?`, keyArgs(key)...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get daily settlement %s: %w", key, err)
	}
	return &d, nil
}

// UpsertDaily updates the row for the key in place, or inserts it.
func (s *Store) UpsertDaily(ctx context.Context, d settlement.DailySettlement) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(time.Now())
	var existing string
	err = tx.QueryRowContext(ctx, `
		SELECT created_at FROM daily_settlements
		WHERE record_date = ? AND machinery_type = ? AND vehicle_no = ?`, keyArgs(d.Key)...,
	).Scan(&existing)

	created := errors.Is(err, sql.ErrNoRows)
	switch {
	case created:
		args := append(keyArgs(d.Key), figureValues(d.Figures)...)
		args = append(args, now, now)
		_, err = tx.ExecContext(ctx, `INSERT INTO daily_settlements
			(record_date, machinery_type, vehicle_no, `+figureCols+`, created_at, updated_at)
			VALUES (`+placeholders(len(args))+`)`, args...)
	case err == nil:
		args := append(figureValues(d.Figures), now)
		args = append(args, keyArgs(d.Key)...)
		_, err = tx.ExecContext(ctx, `UPDATE daily_settlements SET `+figureAssignments+`, updated_at = ?
			WHERE record_date = ? AND machinery_type = ? AND vehicle_no = ?`, args...)
	}
	if err != nil {
		return false, fmt.Errorf("failed to upsert daily settlement %s: %w", d.Key, err)
	}

	return created, tx.Commit()
}

func (s *Store) DailyRange(ctx context.Context, ref settlement.VehicleRef, from, to settlement.Date) ([]settlement.DailySettlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryDaily(ctx, dailySelect+`
		WHERE machinery_type = ? AND vehicle_no = ? AND record_date >= ? AND record_date <= ?
		ORDER BY record_date ASC`,
		ref.MachineryType, ref.VehicleNo, from.String(), to.String())
}

func (s *Store) RecentDaily(ctx context.Context, ref settlement.VehicleRef, asOf settlement.Date, limit int) ([]settlement.DailySettlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	return s.queryDaily(ctx, dailySelect+`
		WHERE machinery_type = ? AND vehicle_no = ? AND record_date <= ?
		ORDER BY record_date DESC
		LIMIT ?`,
		ref.MachineryType, ref.VehicleNo, asOf.String(), limit)
}

func (s *Store) ListDaily(ctx context.Context, from, to settlement.Date) ([]settlement.DailySettlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryDaily(ctx, dailySelect+`
		WHERE record_date >= ? AND record_date <= ?
		ORDER BY record_date ASC, machinery_type ASC, vehicle_no ASC`,
		from.String(), to.String())
}

var monthlySelect = `SELECT year_month, machinery_type, vehicle_no, ` + figureCols + `,
	rental_fee, day_count, missing_days, created_at, updated_at
	FROM monthly_settlements`

func scanMonthly(sc interface{ Scan(...any) error }) (settlement.MonthlySettlement, error) {
	var (
		m                    settlement.MonthlySettlement
		ym, created, updated string
	)
	dest := append([]any{&ym, &m.Vehicle.MachineryType, &m.Vehicle.VehicleNo}, figureDest(&m.Figures)...)
	dest = append(dest, &m.RentalFee, &m.DayCount, &m.MissingDays, &created, &updated)
	if err := sc.Scan(dest...); err != nil {
		return m, err
	}
	var err error
	if m.YearMonth, err = settlement.ParseYearMonth(ym); err != nil {
		return m, err
	}
	m.CreatedAt = parseTime(created)
	m.UpdatedAt = parseTime(updated)
	return m, nil
}

func (s *Store) FindMonthly(ctx context.Context, ym settlement.YearMonth, ref settlement.VehicleRef) (*settlement.MonthlySettlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, err := scanMonthly(s.db.QueryRowContext(ctx,
		monthlySelect+` WHERE year_month = ? AND machinery_type = ? AND vehicle_no = ?`,
		ym.String(), ref.MachineryType, ref.VehicleNo))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get monthly settlement %s/%s: %w", ym, ref, err)
	}
	return &m, nil
}

// UpsertMonthly updates the row for (month, vehicle) in place, or inserts it.
func (s *Store) UpsertMonthly(ctx context.Context, m settlement.MonthlySettlement) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(time.Now())
	keys := []any{m.YearMonth.String(), m.Vehicle.MachineryType, m.Vehicle.VehicleNo}
	var existing string
	err = tx.QueryRowContext(ctx, `
		SELECT created_at FROM monthly_settlements
		WHERE year_month = ? AND machinery_type = ? AND vehicle_no = ?`, keys...,
	).Scan(&existing)

	created := errors.Is(err, sql.ErrNoRows)
	switch {
	case created:
		args := append(append([]any{}, keys...), figureValues(m.Figures)...)
		args = append(args, m.RentalFee, m.DayCount, m.MissingDays, now, now)
		_, err = tx.ExecContext(ctx, `INSERT INTO monthly_settlements
			(year_month, machinery_type, vehicle_no, `+figureCols+`,
			 rental_fee, day_count, missing_days, created_at, updated_at)
			VALUES (`+placeholders(len(args))+`)`, args...)
	case err == nil:
		args := append(figureValues(m.Figures), m.RentalFee, m.DayCount, m.MissingDays, now)
		args = append(args, keys...)
		_, err = tx.ExecContext(ctx, `UPDATE monthly_settlements SET `+figureAssignments+`,
			rental_fee = ?, day_count = ?, missing_days = ?, updated_at = ?
			WHERE year_month = ? AND machinery_type = ? AND vehicle_no = ?`, args...)
	}
	if err != nil {
		return false, fmt.Errorf("failed to upsert monthly settlement %s/%s: %w", m.YearMonth, m.Vehicle, err)
	}

	return created, tx.Commit()
}

func (s *Store) ListMonthly(ctx context.Context, ym settlement.YearMonth) ([]settlement.MonthlySettlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		monthlySelect+` WHERE year_month = ? ORDER BY machinery_type, vehicle_no`, ym.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query monthly settlements: %w", err)
	}
	defer rows.Close()

	var out []settlement.MonthlySettlement
	for rows.Next() {
		m, err := scanMonthly(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan monthly settlement: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// =============================================================================
// ALERT STORE
// =============================================================================

// InsertAlert returns settlement.ErrAlreadyRecorded for a duplicate
// (type, vehicle, related_date).
func (s *Store) InsertAlert(ctx context.Context, a settlement.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(a.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode alert payload: %w", err)
	}
	var handledAt sql.NullString
	if a.HandledAt != nil {
		handledAt = nullString(formatTime(*a.HandledAt))
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alerts
		(id, alert_type, machinery_type, vehicle_no, content, severity, related_date,
		 payload_json, status, remark, handled_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Type, a.Vehicle.MachineryType, a.Vehicle.VehicleNo, a.Content, a.Severity,
		a.RelatedDate.String(), string(payload), a.Status, nullString(a.Remark), handledAt,
		formatTime(a.CreatedAt),
	)
	if isUniqueConstraintError(err) {
		return settlement.ErrAlreadyRecorded
	}
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

const alertSelect = `
	SELECT id, alert_type, machinery_type, vehicle_no, content, severity, related_date,
	       payload_json, status, remark, handled_at, created_at
	FROM alerts`

func scanAlert(sc interface{ Scan(...any) error }) (settlement.Alert, error) {
	var (
		a                settlement.Alert
		related, created string
		payload, remark  sql.NullString
		handledAt        sql.NullString
	)
	err := sc.Scan(&a.ID, &a.Type, &a.Vehicle.MachineryType, &a.Vehicle.VehicleNo, &a.Content,
		&a.Severity, &related, &payload, &a.Status, &remark, &handledAt, &created)
	if err != nil {
		return a, err
	}
	if a.RelatedDate, err = settlement.ParseDate(related); err != nil {
		return a, err
	}
	if payload.Valid && payload.String != "" && payload.String != "null" {
		if err := json.Unmarshal([]byte(payload.String), &a.Payload); err != nil {
			return a, fmt.Errorf("failed to decode alert payload: %w", err)
		}
	}
	a.Remark = remark.String
	if handledAt.Valid {
		t := parseTime(handledAt.String)
		a.HandledAt = &t
	}
	a.CreatedAt = parseTime(created)
	return a, nil
}

func (s *Store) FindAlerts(ctx context.Context, f settlement.AlertFilter) ([]settlement.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if f.Type != "" {
		where = append(where, "alert_type = ?")
		args = append(args, f.Type)
	}
	if f.Vehicle != nil {
		where = append(where, "machinery_type = ? AND vehicle_no = ?")
		args = append(args, f.Vehicle.MachineryType, f.Vehicle.VehicleNo)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Severity != "" {
		where = append(where, "severity = ?")
		args = append(args, f.Severity)
	}
	if f.From != nil {
		where = append(where, "related_date >= ?")
		args = append(args, f.From.String())
	}
	if f.To != nil {
		where = append(where, "related_date <= ?")
		args = append(args, f.To.String())
	}

	query := alertSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY related_date DESC, created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var out []settlement.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) UpdateAlertStatus(ctx context.Context, id string, status settlement.AlertStatus, remark string, at time.Time) (*settlement.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET status = ?, remark = ?, handled_at = ? WHERE id = ?`,
		status, nullString(remark), formatTime(at), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update alert %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}

	a, err := scanAlert(s.db.QueryRowContext(ctx, alertSelect+` WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to reload alert %s: %w", id, err)
	}
	return &a, nil
}

// =============================================================================
// FUEL BALANCE STORE
// =============================================================================

const fuelBalanceSelect = `
	SELECT record_date, machinery_type, vehicle_no, opening_balance, refuel_amount, consumption_amount,
	       closing_balance, theoretical_consumption, consumption_difference, created_at
	FROM fuel_balances`

func scanFuelBalance(sc interface{ Scan(...any) error }) (settlement.FuelBalance, error) {
	var (
		b             settlement.FuelBalance
		date, created string
	)
	err := sc.Scan(&date, &b.Vehicle.MachineryType, &b.Vehicle.VehicleNo,
		&b.OpeningBalance, &b.RefuelAmount, &b.ConsumptionAmount, &b.ClosingBalance,
		&b.TheoreticalConsumption, &b.ConsumptionDifference, &created)
	if err != nil {
		return b, err
	}
	if b.Date, err = settlement.ParseDate(date); err != nil {
		return b, err
	}
	b.CreatedAt = parseTime(created)
	return b, nil
}

func (s *Store) FindFuelBalance(ctx context.Context, key settlement.Key) (*settlement.FuelBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, err := scanFuelBalance(s.db.QueryRowContext(ctx,
		fuelBalanceSelect+` WHERE record_date = ? AND machinery_type = ? AND vehicle_no = ?`, keyArgs(key)...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fuel balance %s: %w", key, err)
	}
	return &b, nil
}

func (s *Store) LatestFuelBalanceBefore(ctx context.Context, ref settlement.VehicleRef, before settlement.Date) (*settlement.FuelBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, err := scanFuelBalance(s.db.QueryRowContext(ctx, fuelBalanceSelect+`
		WHERE machinery_type = ? AND vehicle_no = ? AND record_date < ?
		ORDER BY record_date DESC
		LIMIT 1`, ref.MachineryType, ref.VehicleNo, before.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fuel balance before %s for %s: %w", before, ref, err)
	}
	return &b, nil
}

// InsertFuelBalance returns settlement.ErrAlreadyRecorded if the key exists.
func (s *Store) InsertFuelBalance(ctx context.Context, b settlement.FuelBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	args := append(keyArgs(b.Key), b.OpeningBalance, b.RefuelAmount, b.ConsumptionAmount,
		b.ClosingBalance, b.TheoreticalConsumption, b.ConsumptionDifference, formatTime(b.CreatedAt))
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fuel_balances
		(record_date, machinery_type, vehicle_no, opening_balance, refuel_amount, consumption_amount,
		 closing_balance, theoretical_consumption, consumption_difference, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if isUniqueConstraintError(err) {
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
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analysis_baselines
		(calculation_date, machinery_type, vehicle_no, indicator, period, mean_value, std_dev, sample_size)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (calculation_date, machinery_type, vehicle_no, indicator) DO UPDATE SET
			period = excluded.period,
			mean_value = excluded.mean_value,
			std_dev = excluded.std_dev,
			sample_size = excluded.sample_size`,
		b.CalculationDate.String(), b.Vehicle.MachineryType, b.Vehicle.VehicleNo, b.Indicator,
		b.Period.String(), b.Mean, b.StdDev, b.SampleSize,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert baseline: %w", err)
	}
	return nil
}

func (s *Store) Baselines(ctx context.Context, ref settlement.VehicleRef) ([]settlement.AnalysisBaseline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT calculation_date, indicator, period, mean_value, std_dev, sample_size
		FROM analysis_baselines
		WHERE machinery_type = ? AND vehicle_no = ?
		ORDER BY calculation_date DESC, indicator ASC`,
		ref.MachineryType, ref.VehicleNo)
	if err != nil {
		return nil, fmt.Errorf("failed to query baselines: %w", err)
	}
	defer rows.Close()

	var out []settlement.AnalysisBaseline
	for rows.Next() {
		var (
			b            = settlement.AnalysisBaseline{Vehicle: ref}
			calc, period string
		)
		if err := rows.Scan(&calc, &b.Indicator, &period, &b.Mean, &b.StdDev, &b.SampleSize); err != nil {
			return nil, fmt.Errorf("failed to scan baseline: %w", err)
		}
		if b.CalculationDate, err = settlement.ParseDate(calc); err != nil {
			return nil, err
		}
		if b.Period, err = settlement.ParseYearMonth(period); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// =============================================================================
// ATTENDANCE STORE
// =============================================================================

func (s *Store) ActivePersonnel(ctx context.Context) ([]settlement.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, active, monthly_salary FROM personnel WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list personnel: %w", err)
	}
	defer rows.Close()

	var out []settlement.Person
	for rows.Next() {
		var p settlement.Person
		if err := rows.Scan(&p.ID, &p.Name, &p.Active, &p.MonthlySalary); err != nil {
			return nil, fmt.Errorf("failed to scan person: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) Person(ctx context.Context, id string) (*settlement.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var p settlement.Person
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, active, monthly_salary FROM personnel WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.Active, &p.MonthlySalary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get person %s: %w", id, err)
	}
	return &p, nil
}

// CreateAttendance writes the master and every detail row in one
// transaction. It returns settlement.ErrAlreadyRecorded if the month exists.
func (s *Store) CreateAttendance(ctx context.Context, master settlement.AttendanceMaster, details []settlement.AttendanceDetail) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO attendance_masters (id, year_month, status) VALUES (?, ?, ?)`,
		master.ID, master.YearMonth.String(), master.Status)
	if isUniqueConstraintError(err) {
		return settlement.ErrAlreadyRecorded
	}
	if err != nil {
		return fmt.Errorf("failed to insert attendance master: %w", err)
	}

	for _, d := range details {
		if err := insertDetail(ctx, tx, d, "INSERT"); err != nil {
			return fmt.Errorf("failed to insert attendance detail: %w", err)
		}
	}

	return tx.Commit()
}

// =============================================================================
// HELPERS
// =============================================================================

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func keyArgs(k settlement.Key) []any {
	return []any{k.Date.String(), k.Vehicle.MachineryType, k.Vehicle.VehicleNo}
}

func figureValues(f settlement.Figures) []any {
	return []any{
		f.TruckCount, f.TotalCapacity, f.Income, f.OilAmount, f.OilFee,
		f.WorkHours, f.ShiftFee, f.Balance, f.Deduction, f.MealFee,
		f.MedicalFee, f.WalkieTalkieFee, f.BluetoothCardFee, f.AmplifierFee,
		f.ReflectiveVestFee, f.SafetyInsuranceFee, f.DriverSalary,
		f.RepairFee, f.PartsFee, f.ActualBalance,
	}
}

func figureDest(f *settlement.Figures) []any {
	return []any{
		&f.TruckCount, &f.TotalCapacity, &f.Income, &f.OilAmount, &f.OilFee,
		&f.WorkHours, &f.ShiftFee, &f.Balance, &f.Deduction, &f.MealFee,
		&f.MedicalFee, &f.WalkieTalkieFee, &f.BluetoothCardFee, &f.AmplifierFee,
		&f.ReflectiveVestFee, &f.SafetyInsuranceFee, &f.DriverSalary,
		&f.RepairFee, &f.PartsFee, &f.ActualBalance,
	}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
		se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
