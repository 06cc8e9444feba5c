package postgres

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/minefleet/settlement-engine/settlement"
)

// =============================================================================
// ROSTER
// =============================================================================

type Vehicle struct {
	MachineryType string          `gorm:"primaryKey;size:32"`
	VehicleNo     string          `gorm:"primaryKey;size:64"`
	Model         string          `gorm:"size:128"`
	Capacity      decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
	OwningUnit    string          `gorm:"size:128"`
	IsRental      bool            `gorm:"not null;default:false"`
	RentalFee     decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
	RentalUnit    string          `gorm:"size:16"`
	Status        string          `gorm:"size:16;index;not null"`
}

func (Vehicle) TableName() string { return "vehicles" }

type Person struct {
	ID            string          `gorm:"primaryKey;size:64"`
	Name          string          `gorm:"size:128;not null"`
	Active        bool            `gorm:"index;not null;default:true"`
	MonthlySalary decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
}

func (p Person) person() settlement.Person {
	return settlement.Person{ID: p.ID, Name: p.Name, Active: p.Active, MonthlySalary: p.MonthlySalary}
}

func (Person) TableName() string { return "personnel" }

type DriverAssignment struct {
	ID            uint            `gorm:"primaryKey"`
	PersonID      string          `gorm:"size:64;not null"`
	PersonName    string          `gorm:"size:128"`
	MachineryType string          `gorm:"size:32;index:idx_assignment_vehicle;not null"`
	VehicleNo     string          `gorm:"size:64;index:idx_assignment_vehicle;not null"`
	StartDate     time.Time       `gorm:"type:date;not null"`
	EndDate       *time.Time      `gorm:"type:date"`
	DailySalary   decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
}

func (DriverAssignment) TableName() string { return "driver_assignments" }

// =============================================================================
// SOURCE RECORDS
// =============================================================================

// KeyColumns is the (record_date, machinery_type, vehicle_no) triple shared
// by every per-vehicle, per-day table.
type KeyColumns struct {
	RecordDate    time.Time `gorm:"type:date;index:,composite:vehicle_day;not null"`
	MachineryType string    `gorm:"size:32;index:,composite:vehicle_day;not null"`
	VehicleNo     string    `gorm:"size:64;index:,composite:vehicle_day;not null"`
}

// NaturalKey is KeyColumns as a composite primary key.
type NaturalKey struct {
	RecordDate    time.Time `gorm:"type:date;primaryKey"`
	MachineryType string    `gorm:"size:32;primaryKey"`
	VehicleNo     string    `gorm:"size:64;primaryKey"`
}

type TripRecord struct {
	ID            uint            `gorm:"primaryKey"`
	RecordDate    time.Time       `gorm:"type:date;index:idx_trip_truck;index:idx_trip_excavator;not null"`
	TruckNo       string          `gorm:"size:64;index:idx_trip_truck"`
	ExcavatorNo   string          `gorm:"size:64;index:idx_trip_excavator"`
	LoadType      string          `gorm:"size:32"`
	TruckCount    int             `gorm:"not null;default:0"`
	TotalCapacity decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
	TotalFee      decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
}

func (TripRecord) TableName() string { return "trip_records" }

type FuelPurchase struct {
	ID uint `gorm:"primaryKey"`
	KeyColumns
	OilType   string          `gorm:"size:16"`
	OilAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
	TotalFee  decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
}

func (FuelPurchase) TableName() string { return "fuel_purchases" }

type ShiftRecord struct {
	NaturalKey
	WorkHours decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
}

func (ShiftRecord) TableName() string { return "shift_records" }

type Deduction struct {
	ID uint `gorm:"primaryKey"`
	KeyColumns
	Amount decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
	Reason string
}

func (Deduction) TableName() string { return "deductions" }

type MiscFee struct {
	ID uint `gorm:"primaryKey"`
	KeyColumns
	FeeType string          `gorm:"size:64;not null"`
	Amount  decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
}

func (MiscFee) TableName() string { return "misc_fees" }

type Repair struct {
	ID uint `gorm:"primaryKey"`
	KeyColumns
	RepairFee   decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
	PartsFee    decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
	Description string
}

func (Repair) TableName() string { return "repairs" }

type Price struct {
	ID            uint            `gorm:"primaryKey"`
	Kind          string          `gorm:"size:32;index:idx_price_lookup;not null"`
	CategoryKey   string          `gorm:"size:64;index:idx_price_lookup"`
	EffectiveDate time.Time       `gorm:"type:date;index:idx_price_lookup;not null"`
	Price         decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
	BaseDistance  decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
	ExtraDistance decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
	ExtraPrice    decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
}

func (Price) TableName() string { return "prices" }

// =============================================================================
// SETTLEMENTS
// =============================================================================

type FigureColumns struct {
	TruckCount         int             `gorm:"not null;default:0"`
	TotalCapacity      decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
	Income             decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
	OilAmount          decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
	OilFee             decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
	WorkHours          decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
	ShiftFee           decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
	Balance            decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
	Deduction          decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
	MealFee            decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
	MedicalFee         decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
	WalkieTalkieFee    decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
	BluetoothCardFee   decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
	AmplifierFee       decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
	ReflectiveVestFee  decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
	SafetyInsuranceFee decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
	DriverSalary       decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
	RepairFee          decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
	PartsFee           decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
	ActualBalance      decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
}

type DailySettlement struct {
	NaturalKey
	FigureColumns
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (DailySettlement) TableName() string { return "daily_settlements" }

type MonthlySettlement struct {
	YearMonth     string `gorm:"size:7;primaryKey"`
	MachineryType string `gorm:"size:32;primaryKey"`
	VehicleNo     string `gorm:"size:64;primaryKey"`
	FigureColumns
	RentalFee   decimal.Decimal `gorm:"type:decimal(20,4);default:0"`
	DayCount    int
	MissingDays int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (MonthlySettlement) TableName() string { return "monthly_settlements" }

// =============================================================================
// ALERTS, FUEL BALANCES, BASELINES
// =============================================================================

type Alert struct {
	ID            string         `gorm:"primaryKey;size:36"`
	AlertType     string         `gorm:"size:32;uniqueIndex:idx_alert_natural_key;not null"`
	MachineryType string         `gorm:"size:32;uniqueIndex:idx_alert_natural_key;not null"`
	VehicleNo     string         `gorm:"size:64;uniqueIndex:idx_alert_natural_key;not null"`
	RelatedDate   time.Time      `gorm:"type:date;uniqueIndex:idx_alert_natural_key;not null"`
	Content       string         `gorm:"type:text"`
	Severity      string         `gorm:"size:16;index"`
	Payload       map[string]any `gorm:"serializer:json;type:jsonb"`
	Status        string         `gorm:"size:16;index;default:unhandled"`
	Remark        string         `gorm:"type:text"`
	HandledAt     *time.Time
	CreatedAt     time.Time
}

func (Alert) TableName() string { return "alerts" }

type FuelBalance struct {
	NaturalKey
	OpeningBalance         decimal.Decimal `gorm:"type:decimal(20,4)"`
	RefuelAmount           decimal.Decimal `gorm:"type:decimal(20,4)"`
	ConsumptionAmount      decimal.Decimal `gorm:"type:decimal(20,4)"`
	ClosingBalance         decimal.Decimal `gorm:"type:decimal(20,4)"`
	TheoreticalConsumption decimal.Decimal `gorm:"type:decimal(20,4)"`
	ConsumptionDifference  decimal.Decimal `gorm:"type:decimal(20,4)"`
	CreatedAt              time.Time
}

func (FuelBalance) TableName() string { return "fuel_balances" }

type AnalysisBaseline struct {
	CalculationDate time.Time       `gorm:"type:date;primaryKey"`
	MachineryType   string          `gorm:"size:32;primaryKey"`
	VehicleNo       string          `gorm:"size:64;primaryKey"`
	Indicator       string          `gorm:"size:32;primaryKey"`
	Period          string          `gorm:"size:7;not null"`
	MeanValue       decimal.Decimal `gorm:"type:decimal(20,4)"`
	StdDev          decimal.Decimal `gorm:"type:decimal(20,4)"`
	SampleSize      int
}

func (AnalysisBaseline) TableName() string { return "analysis_baselines" }

// =============================================================================
// ATTENDANCE
// =============================================================================

type AttendanceMaster struct {
	ID        string `gorm:"primaryKey;size:36"`
	YearMonth string `gorm:"size:7;uniqueIndex;not null"`
	Status    string `gorm:"size:16;not null"`
}

func (AttendanceMaster) TableName() string { return "attendance_masters" }

type AttendanceDetail struct {
	MasterID         string    `gorm:"primaryKey;size:36"`
	PersonID         string    `gorm:"primaryKey;size:64"`
	RecordDate       time.Time `gorm:"type:date;primaryKey"`
	AttendanceStatus string    `gorm:"size:16;not null"`
	MealStatus       string    `gorm:"size:16;not null"`
}

func (AttendanceDetail) TableName() string { return "attendance_details" }

// allModels is the AutoMigrate set.
var allModels = []any{
	&Vehicle{}, &Person{}, &DriverAssignment{},
	&TripRecord{}, &FuelPurchase{}, &ShiftRecord{}, &Deduction{}, &MiscFee{}, &Repair{}, &Price{},
	&DailySettlement{}, &MonthlySettlement{},
	&Alert{}, &FuelBalance{}, &AnalysisBaseline{},
	&AttendanceMaster{}, &AttendanceDetail{},
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func date(t time.Time) settlement.Date { return settlement.DateOf(t.UTC()) }

func toKey(k settlement.Key) NaturalKey {
	return NaturalKey{RecordDate: k.Date.Time, MachineryType: string(k.Vehicle.MachineryType), VehicleNo: k.Vehicle.VehicleNo}
}

func toKeyColumns(k settlement.Key) KeyColumns {
	return KeyColumns{RecordDate: k.Date.Time, MachineryType: string(k.Vehicle.MachineryType), VehicleNo: k.Vehicle.VehicleNo}
}

func ref(mt, no string) settlement.VehicleRef {
	return settlement.VehicleRef{MachineryType: settlement.MachineryType(mt), VehicleNo: no}
}

func (k NaturalKey) key() settlement.Key {
	return settlement.Key{Date: date(k.RecordDate), Vehicle: ref(k.MachineryType, k.VehicleNo)}
}

func toFigures(f settlement.Figures) FigureColumns {
	return FigureColumns{
		TruckCount: f.TruckCount, TotalCapacity: f.TotalCapacity, Income: f.Income,
		OilAmount: f.OilAmount, OilFee: f.OilFee, WorkHours: f.WorkHours, ShiftFee: f.ShiftFee,
		Balance: f.Balance, Deduction: f.Deduction, MealFee: f.MealFee, MedicalFee: f.MedicalFee,
		WalkieTalkieFee: f.WalkieTalkieFee, BluetoothCardFee: f.BluetoothCardFee,
		AmplifierFee: f.AmplifierFee, ReflectiveVestFee: f.ReflectiveVestFee,
		SafetyInsuranceFee: f.SafetyInsuranceFee, DriverSalary: f.DriverSalary,
		RepairFee: f.RepairFee, PartsFee: f.PartsFee, ActualBalance: f.ActualBalance,
	}
}

func (c FigureColumns) figures() settlement.Figures {
	return settlement.Figures{
		TruckCount: c.TruckCount, TotalCapacity: c.TotalCapacity, Income: c.Income,
		OilAmount: c.OilAmount, OilFee: c.OilFee, WorkHours: c.WorkHours, ShiftFee: c.ShiftFee,
		Balance: c.Balance, Deduction: c.Deduction, MealFee: c.MealFee, MedicalFee: c.MedicalFee,
		WalkieTalkieFee: c.WalkieTalkieFee, BluetoothCardFee: c.BluetoothCardFee,
		AmplifierFee: c.AmplifierFee, ReflectiveVestFee: c.ReflectiveVestFee,
		SafetyInsuranceFee: c.SafetyInsuranceFee, DriverSalary: c.DriverSalary,
		RepairFee: c.RepairFee, PartsFee: c.PartsFee, ActualBalance: c.ActualBalance,
	}
}

func toDaily(s settlement.DailySettlement) DailySettlement {
	return DailySettlement{NaturalKey: toKey(s.Key), FigureColumns: toFigures(s.Figures), CreatedAt: s.CreatedAt, UpdatedAt: s.UpdatedAt}
}

func (m DailySettlement) settlement() settlement.DailySettlement {
	return settlement.DailySettlement{Key: m.key(), Figures: m.figures(), CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt}
}

func toMonthly(s settlement.MonthlySettlement) MonthlySettlement {
	return MonthlySettlement{
		YearMonth:     s.YearMonth.String(),
		MachineryType: string(s.Vehicle.MachineryType),
		VehicleNo:     s.Vehicle.VehicleNo,
		FigureColumns: toFigures(s.Figures),
		RentalFee:     s.RentalFee,
		DayCount:      s.DayCount,
		MissingDays:   s.MissingDays,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

func (m MonthlySettlement) settlement() (settlement.MonthlySettlement, error) {
	ym, err := settlement.ParseYearMonth(m.YearMonth)
	if err != nil {
		return settlement.MonthlySettlement{}, err
	}
	return settlement.MonthlySettlement{
		YearMonth:   ym,
		Vehicle:     ref(m.MachineryType, m.VehicleNo),
		Figures:     m.figures(),
		RentalFee:   m.RentalFee,
		DayCount:    m.DayCount,
		MissingDays: m.MissingDays,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}, nil
}

func toAlert(a settlement.Alert) Alert {
	return Alert{
		ID:            a.ID,
		AlertType:     string(a.Type),
		MachineryType: string(a.Vehicle.MachineryType),
		VehicleNo:     a.Vehicle.VehicleNo,
		RelatedDate:   a.RelatedDate.Time,
		Content:       a.Content,
		Severity:      string(a.Severity),
		Payload:       a.Payload,
		Status:        string(a.Status),
		Remark:        a.Remark,
		HandledAt:     a.HandledAt,
		CreatedAt:     a.CreatedAt,
	}
}

func (m Alert) alert() settlement.Alert {
	return settlement.Alert{
		ID:          m.ID,
		Type:        settlement.AlertType(m.AlertType),
		Vehicle:     ref(m.MachineryType, m.VehicleNo),
		Content:     m.Content,
		Severity:    settlement.Severity(m.Severity),
		RelatedDate: date(m.RelatedDate),
		Payload:     m.Payload,
		Status:      settlement.AlertStatus(m.Status),
		Remark:      m.Remark,
		HandledAt:   m.HandledAt,
		CreatedAt:   m.CreatedAt,
	}
}

func (m Vehicle) vehicle() settlement.Vehicle {
	return settlement.Vehicle{
		VehicleRef: ref(m.MachineryType, m.VehicleNo),
		Model:      m.Model,
		Capacity:   m.Capacity,
		OwningUnit: m.OwningUnit,
		IsRental:   m.IsRental,
		RentalFee:  m.RentalFee,
		RentalUnit: settlement.RentalUnit(m.RentalUnit),
		Status:     settlement.VehicleStatus(m.Status),
	}
}

func (m DriverAssignment) assignment() settlement.DriverAssignment {
	a := settlement.DriverAssignment{
		PersonID:    m.PersonID,
		PersonName:  m.PersonName,
		Vehicle:     ref(m.MachineryType, m.VehicleNo),
		StartDate:   date(m.StartDate),
		DailySalary: m.DailySalary,
	}
	if m.EndDate != nil {
		end := date(*m.EndDate)
		a.EndDate = &end
	}
	return a
}

func (m FuelBalance) balance() settlement.FuelBalance {
	return settlement.FuelBalance{
		Key:                    m.NaturalKey.key(),
		OpeningBalance:         m.OpeningBalance,
		RefuelAmount:           m.RefuelAmount,
		ConsumptionAmount:      m.ConsumptionAmount,
		ClosingBalance:         m.ClosingBalance,
		TheoreticalConsumption: m.TheoreticalConsumption,
		ConsumptionDifference:  m.ConsumptionDifference,
		CreatedAt:              m.CreatedAt,
	}
}
