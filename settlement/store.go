/*
store.go - Persistence and collaborator interfaces

PURPOSE:
  Defines the contract between the settlement core and the relational store
  that owns the operational tables. The core only reads source records by
  equality/range predicates and writes its own rows by natural key.

KEY INTERFACES:
  SourceStore:      trip, fuel, shift, deduction, misc-fee and repair records
  PriceStore:       latest price effective on or before a date
  RosterStore:      vehicles, driver assignments, attendance
  SettlementStore:  DailySettlement / MonthlySettlement rows
  AlertStore:       alert rows
  FuelBalanceStore: append-only fuel ledger
  BaselineStore:    monthly analysis baselines
  AttendanceStore:  personnel and attendance skeleton writes

UPSERT CONTRACT:
  UpsertDaily / UpsertMonthly / UpsertBaseline find the row by natural key and
  update it in place if found, otherwise insert. They never blind-insert.

NOT FOUND:
  Single-row lookups return (nil, nil) when the row does not exist. Callers
  decide whether absence is an error (prices) or a benign default (shift hours).

IMPLEMENTATIONS:
  - settlement/store/memory.go: in-memory, for tests and demos
  - store/sqlite/sqlite.go:     SQLite
  - store/postgres/postgres.go: PostgreSQL via gorm
*/
package settlement

import (
	"context"
	"time"
)

// TripRole selects which column of the trip log identifies the vehicle.
type TripRole string

const (
	RoleTruck     TripRole = "truck_no"
	RoleExcavator TripRole = "excavator_no"
)

type SourceStore interface {
	// TripRecords returns trip lines for the date where the role column equals vehicleNo.
	TripRecords(ctx context.Context, date Date, role TripRole, vehicleNo string) ([]TripRecord, error)
	FuelPurchases(ctx context.Context, key Key) ([]FuelPurchase, error)
	// ShiftRecord returns the single shift row for the key, or nil.
	ShiftRecord(ctx context.Context, key Key) (*ShiftRecord, error)
	Deductions(ctx context.Context, key Key) ([]Deduction, error)
	MiscFees(ctx context.Context, key Key) ([]MiscFee, error)
	Repairs(ctx context.Context, key Key) ([]RepairRecord, error)
}

type PriceStore interface {
	// LatestPrice returns the record with the greatest effective date <= asOf, or nil.
	LatestPrice(ctx context.Context, category PriceCategory, asOf Date) (*PriceRecord, error)
}

type RosterStore interface {
	// ActiveVehicles lists vehicles in active status. Empty machineryType means all types.
	ActiveVehicles(ctx context.Context, machineryType MachineryType) ([]Vehicle, error)
	Vehicle(ctx context.Context, ref VehicleRef) (*Vehicle, error)
	// DriverAssignments returns assignments for the vehicle whose interval covers on.
	DriverAssignments(ctx context.Context, ref VehicleRef, on Date) ([]DriverAssignment, error)
	AttendanceMaster(ctx context.Context, ym YearMonth) (*AttendanceMaster, error)
	AttendanceDetail(ctx context.Context, masterID, personID string, on Date) (*AttendanceDetail, error)
}

type SettlementStore interface {
	FindDaily(ctx context.Context, key Key) (*DailySettlement, error)
	// UpsertDaily reports created=true when a new row was inserted.
	UpsertDaily(ctx context.Context, s DailySettlement) (created bool, err error)
	// DailyRange returns rows for the vehicle in [from, to], ascending by date.
	DailyRange(ctx context.Context, ref VehicleRef, from, to Date) ([]DailySettlement, error)
	// RecentDaily returns up to limit rows with date <= asOf, newest first.
	RecentDaily(ctx context.Context, ref VehicleRef, asOf Date, limit int) ([]DailySettlement, error)
	// ListDaily returns all vehicles' rows in [from, to], ordered by date then vehicle.
	ListDaily(ctx context.Context, from, to Date) ([]DailySettlement, error)

	FindMonthly(ctx context.Context, ym YearMonth, ref VehicleRef) (*MonthlySettlement, error)
	UpsertMonthly(ctx context.Context, m MonthlySettlement) (created bool, err error)
	ListMonthly(ctx context.Context, ym YearMonth) ([]MonthlySettlement, error)
}

type AlertStore interface {
	InsertAlert(ctx context.Context, a Alert) error
	// FindAlerts returns matching alerts, newest related_date first.
	FindAlerts(ctx context.Context, filter AlertFilter) ([]Alert, error)
	// UpdateAlertStatus sets status, remark and handled time. It returns
	// (nil, nil) if the id does not exist.
	UpdateAlertStatus(ctx context.Context, id string, status AlertStatus, remark string, at time.Time) (*Alert, error)
}

type FuelBalanceStore interface {
	FindFuelBalance(ctx context.Context, key Key) (*FuelBalance, error)
	// LatestFuelBalanceBefore returns the newest row for ref dated before
	// the given day, or nil.
	LatestFuelBalanceBefore(ctx context.Context, ref VehicleRef, before Date) (*FuelBalance, error)
	// InsertFuelBalance returns ErrAlreadyRecorded if the key exists.
	InsertFuelBalance(ctx context.Context, b FuelBalance) error
}

type BaselineStore interface {
	UpsertBaseline(ctx context.Context, b AnalysisBaseline) error
	Baselines(ctx context.Context, ref VehicleRef) ([]AnalysisBaseline, error)
}

type AttendanceStore interface {
	ActivePersonnel(ctx context.Context) ([]Person, error)
	// Person returns one person, active or not, or nil.
	Person(ctx context.Context, id string) (*Person, error)
	// CreateAttendance writes the master and all detail rows atomically.
	CreateAttendance(ctx context.Context, master AttendanceMaster, details []AttendanceDetail) error
}

// Store is everything the host process wires into the engine and its jobs.
type Store interface {
	SourceStore
	PriceStore
	RosterStore
	SettlementStore
	AlertStore
	FuelBalanceStore
	BaselineStore
	AttendanceStore
}

// =============================================================================
// COORDINATION & FAN-OUT
// =============================================================================

// Release gives a lease back. Calling it more than once is harmless.
type Release func()

// Lease provides at-most-one holder per key until released or ttl elapses.
type Lease interface {
	// Acquire returns ErrLeaseHeld if another holder has the key.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error)
}

// AlertSink receives alerts after they are stored (push, message bus).
type AlertSink interface {
	Publish(ctx context.Context, a Alert) error
}
