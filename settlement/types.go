/*
Package settlement provides the daily settlement engine for the fleet.

PURPOSE:
  Turns a day's operational records for one machine (trips, fuel purchases,
  shift hours, deductions, misc fees, repairs, assigned drivers) into a single
  DailySettlement row, then rolls those rows up into MonthlySettlement rows.

KEY CONCEPTS IN THIS FILE (types.go):
  - VehicleRef: (machinery_type, vehicle_no), the identity of a machine
  - Key: (date, vehicle), the natural key of every per-day row
  - Figures: the numeric columns shared by daily and monthly settlements
  - DailySettlement / MonthlySettlement / Alert / FuelBalance: stored rows

DESIGN PRINCIPLES:
  1. Precision: money and quantities are decimal.Decimal, never float64
  2. Derived fields: Balance and ActualBalance are recomputed, never edited
  3. Natural keys: settlements are upserted by key, so re-runs don't duplicate

SEE ALSO:
  - engine.go: ComputeDailySettlement and batch generation
  - monthly.go: month rollup and rental proration
  - store.go: persistence and collaborator interfaces
*/
package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// VEHICLES
// =============================================================================

type MachineryType string

const (
	DumpTruck MachineryType = "dump_truck"
	Excavator MachineryType = "excavator"
	Bulldozer MachineryType = "bulldozer"
	Loader    MachineryType = "loader"
)

// MachineryTypes lists the known machinery classes in display order.
var MachineryTypes = []MachineryType{DumpTruck, Excavator, Bulldozer, Loader}

func (m MachineryType) Valid() bool {
	for _, t := range MachineryTypes {
		if t == m {
			return true
		}
	}
	return false
}

// VehicleRef identifies a machine. (MachineryType, VehicleNo) is unique.
type VehicleRef struct {
	MachineryType MachineryType
	VehicleNo     string
}

func (r VehicleRef) String() string { return string(r.MachineryType) + "-" + r.VehicleNo }

type RentalUnit string

const (
	RentalMonthly RentalUnit = "monthly"
	RentalDaily   RentalUnit = "daily"
)

type VehicleStatus string

const (
	VehicleActive      VehicleStatus = "active"
	VehicleStopped     VehicleStatus = "stopped"
	VehicleUnderRepair VehicleStatus = "under_repair"
)

type Vehicle struct {
	VehicleRef
	Model      string
	Capacity   decimal.Decimal
	OwningUnit string
	IsRental   bool
	RentalFee  decimal.Decimal
	RentalUnit RentalUnit
	Status     VehicleStatus
}

// DriverAssignment links a person to a vehicle from StartDate until EndDate.
// A nil EndDate means the person is still assigned.
type DriverAssignment struct {
	PersonID    string
	PersonName  string
	Vehicle     VehicleRef
	StartDate   Date
	EndDate     *Date
	DailySalary decimal.Decimal // monthly salary / 30, precomputed by personnel
}

// Covers reports whether the assignment is in effect on the given day.
// Both ends are inclusive.
func (a DriverAssignment) Covers(on Date) bool {
	if a.StartDate.After(on) {
		return false
	}
	return a.EndDate == nil || a.EndDate.AfterOrEqual(on)
}

// =============================================================================
// KEYS
// =============================================================================

// Key is the natural key of every per-vehicle, per-day row.
type Key struct {
	Date    Date
	Vehicle VehicleRef
}

func NewKey(date Date, machineryType MachineryType, vehicleNo string) Key {
	return Key{Date: date, Vehicle: VehicleRef{MachineryType: machineryType, VehicleNo: vehicleNo}}
}

func (k Key) String() string { return k.Date.String() + "/" + k.Vehicle.String() }

// =============================================================================
// SOURCE RECORDS - Operational data read by the aggregators
// =============================================================================

// TripRecord is one line of the truck-trip log. Haul machines are matched by
// TruckNo, excavators by ExcavatorNo.
type TripRecord struct {
	Date          Date
	TruckNo       string
	ExcavatorNo   string
	LoadType      string
	TruckCount    int
	TotalCapacity decimal.Decimal
	TotalFee      decimal.Decimal
}

type FuelPurchase struct {
	Key
	OilType   string
	OilAmount decimal.Decimal // liters
	TotalFee  decimal.Decimal
}

type ShiftRecord struct {
	Key
	WorkHours decimal.Decimal
}

type Deduction struct {
	Key
	Amount decimal.Decimal
	Reason string
}

type MiscFee struct {
	Key
	FeeType string
	Amount  decimal.Decimal
}

type RepairRecord struct {
	Key
	RepairFee   decimal.Decimal
	PartsFee    decimal.Decimal
	Description string
}

// =============================================================================
// FIGURES - Numeric columns shared by daily and monthly settlements
// =============================================================================

type Figures struct {
	TruckCount         int
	TotalCapacity      decimal.Decimal
	Income             decimal.Decimal
	OilAmount          decimal.Decimal
	OilFee             decimal.Decimal
	WorkHours          decimal.Decimal
	ShiftFee           decimal.Decimal
	Balance            decimal.Decimal // Income - OilFee
	Deduction          decimal.Decimal
	MealFee            decimal.Decimal
	MedicalFee         decimal.Decimal
	WalkieTalkieFee    decimal.Decimal
	BluetoothCardFee   decimal.Decimal
	AmplifierFee       decimal.Decimal
	ReflectiveVestFee  decimal.Decimal
	SafetyInsuranceFee decimal.Decimal
	DriverSalary       decimal.Decimal
	RepairFee          decimal.Decimal
	PartsFee           decimal.Decimal
	ActualBalance      decimal.Decimal
}

// ZeroFigures returns Figures with every decimal set to zero.
func ZeroFigures() Figures {
	z := decimal.Zero
	return Figures{
		TotalCapacity: z, Income: z, OilAmount: z, OilFee: z, WorkHours: z, ShiftFee: z,
		Balance: z, Deduction: z, MealFee: z, MedicalFee: z, WalkieTalkieFee: z,
		BluetoothCardFee: z, AmplifierFee: z, ReflectiveVestFee: z, SafetyInsuranceFee: z,
		DriverSalary: z, RepairFee: z, PartsFee: z, ActualBalance: z,
	}
}

// MiscTotal is the sum of the six fixed misc-fee categories.
func (f Figures) MiscTotal() decimal.Decimal {
	return f.MedicalFee.
		Add(f.WalkieTalkieFee).
		Add(f.BluetoothCardFee).
		Add(f.AmplifierFee).
		Add(f.ReflectiveVestFee).
		Add(f.SafetyInsuranceFee)
}

// Charges is everything subtracted from Balance to reach ActualBalance.
// Meal fee is reported separately and is not part of it.
func (f Figures) Charges() decimal.Decimal {
	return f.ShiftFee.
		Add(f.Deduction).
		Add(f.MiscTotal()).
		Add(f.DriverSalary).
		Add(f.RepairFee).
		Add(f.PartsFee)
}

// Recompute derives Balance and ActualBalance from the other fields.
func (f *Figures) Recompute() {
	f.Balance = f.Income.Sub(f.OilFee)
	f.ActualBalance = f.Balance.Sub(f.Charges())
}

// Consistent reports whether the derived fields match the inputs exactly.
func (f Figures) Consistent() bool {
	return f.Balance.Equal(f.Income.Sub(f.OilFee)) &&
		f.ActualBalance.Equal(f.Balance.Sub(f.Charges()))
}

// Add sums two sets of figures field by field. Derived fields are summed,
// not recomputed.
func (f Figures) Add(o Figures) Figures {
	return Figures{
		TruckCount:         f.TruckCount + o.TruckCount,
		TotalCapacity:      f.TotalCapacity.Add(o.TotalCapacity),
		Income:             f.Income.Add(o.Income),
		OilAmount:          f.OilAmount.Add(o.OilAmount),
		OilFee:             f.OilFee.Add(o.OilFee),
		WorkHours:          f.WorkHours.Add(o.WorkHours),
		ShiftFee:           f.ShiftFee.Add(o.ShiftFee),
		Balance:            f.Balance.Add(o.Balance),
		Deduction:          f.Deduction.Add(o.Deduction),
		MealFee:            f.MealFee.Add(o.MealFee),
		MedicalFee:         f.MedicalFee.Add(o.MedicalFee),
		WalkieTalkieFee:    f.WalkieTalkieFee.Add(o.WalkieTalkieFee),
		BluetoothCardFee:   f.BluetoothCardFee.Add(o.BluetoothCardFee),
		AmplifierFee:       f.AmplifierFee.Add(o.AmplifierFee),
		ReflectiveVestFee:  f.ReflectiveVestFee.Add(o.ReflectiveVestFee),
		SafetyInsuranceFee: f.SafetyInsuranceFee.Add(o.SafetyInsuranceFee),
		DriverSalary:       f.DriverSalary.Add(o.DriverSalary),
		RepairFee:          f.RepairFee.Add(o.RepairFee),
		PartsFee:           f.PartsFee.Add(o.PartsFee),
		ActualBalance:      f.ActualBalance.Add(o.ActualBalance),
	}
}

// OilPerTruck is liters per truck trip, zero when no trips were logged.
func (f Figures) OilPerTruck() decimal.Decimal {
	if f.TruckCount == 0 {
		return decimal.Zero
	}
	return f.OilAmount.Div(decimal.NewFromInt(int64(f.TruckCount)))
}

// =============================================================================
// SETTLEMENTS
// =============================================================================

// DailySettlement is one row per (record_date, machinery_type, vehicle_no).
type DailySettlement struct {
	Key
	Figures
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MonthlySettlement is one row per (year_month, machinery_type, vehicle_no).
type MonthlySettlement struct {
	YearMonth YearMonth
	Vehicle   VehicleRef
	Figures
	RentalFee   decimal.Decimal
	DayCount    int  // daily rows summed
	MissingDays int  // calendar days (so far) without a daily row
	Provisional bool // month still open; computed on request, never stored
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// =============================================================================
// ALERTS
// =============================================================================

type AlertType string

const (
	AlertFuel       AlertType = "fuel"
	AlertProfit     AlertType = "profit"
	AlertTruckCount AlertType = "truck_count"
	AlertRefuel     AlertType = "refuel"
)

type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
)

type AlertStatus string

const (
	AlertUnhandled AlertStatus = "unhandled"
	AlertHandled   AlertStatus = "handled"
)

type Alert struct {
	ID          string
	Type        AlertType
	Vehicle     VehicleRef
	Content     string
	Severity    Severity
	RelatedDate Date
	Payload     map[string]any // evidence: input window and computed metric
	Status      AlertStatus
	Remark      string
	HandledAt   *time.Time
	CreatedAt   time.Time
}

// AlertFilter narrows alert queries. Zero fields match everything.
type AlertFilter struct {
	Type     AlertType
	Vehicle  *VehicleRef
	Status   AlertStatus
	Severity Severity
	From     *Date // related_date >= From
	To       *Date // related_date <= To
}

// =============================================================================
// FUEL BALANCE - Append-only per-day fuel ledger
// =============================================================================

type FuelBalance struct {
	Key
	OpeningBalance         decimal.Decimal
	RefuelAmount           decimal.Decimal
	ConsumptionAmount      decimal.Decimal
	ClosingBalance         decimal.Decimal
	TheoreticalConsumption decimal.Decimal
	ConsumptionDifference  decimal.Decimal
	CreatedAt              time.Time
}

// =============================================================================
// ANALYSIS BASELINE - Monthly statistics per vehicle
// =============================================================================

type Indicator string

const (
	IndicatorOilPerTruck   Indicator = "oil_per_truck"
	IndicatorActualBalance Indicator = "actual_balance"
	IndicatorTruckCount    Indicator = "truck_count"
)

type AnalysisBaseline struct {
	CalculationDate Date
	Vehicle         VehicleRef
	Indicator       Indicator
	Period          YearMonth
	Mean            decimal.Decimal
	StdDev          decimal.Decimal
	SampleSize      int
}

// =============================================================================
// PERSONNEL & ATTENDANCE
// =============================================================================

type Person struct {
	ID     string
	Name   string
	Active bool
	// MonthlySalary is the base pay for a full month of attendance.
	MonthlySalary decimal.Decimal
}

type AttendanceMaster struct {
	ID        string
	YearMonth YearMonth
	Status    string
}

const (
	AttendanceEditing  = "editing"
	AttendancePresent  = "present"
	AttendanceOvertime = "overtime"
	AttendanceAbsent   = "absent"
	AttendanceLeave    = "leave"
	MealNormal         = "normal"
)

type AttendanceDetail struct {
	MasterID         string
	PersonID         string
	Date             Date
	AttendanceStatus string
	MealStatus       string
}
