/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the settlement model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

NUMBERS:
  Money and quantities are decimal.Decimal, which marshals as a JSON string
  ("1600.25") so clients never see binary floating point.

DATES:
  Days are "YYYY-MM-DD", months "YYYY-MM", timestamps RFC 3339.

SEE ALSO:
  - handlers.go: Uses these types
  - settlement/types.go: Domain model
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/minefleet/settlement-engine/anomaly"
	"github.com/minefleet/settlement-engine/settlement"
)

// =============================================================================
// SETTLEMENTS
// =============================================================================

// FiguresDTO is the numeric body shared by daily and monthly settlements.
type FiguresDTO struct {
	TruckCount         int             `json:"truck_count"`
	TotalCapacity      decimal.Decimal `json:"total_capacity"`
	Income             decimal.Decimal `json:"income"`
	OilAmount          decimal.Decimal `json:"oil_amount"`
	OilFee             decimal.Decimal `json:"oil_fee"`
	WorkHours          decimal.Decimal `json:"work_hours"`
	ShiftFee           decimal.Decimal `json:"shift_fee"`
	Balance            decimal.Decimal `json:"balance"`
	Deduction          decimal.Decimal `json:"deduction"`
	MealFee            decimal.Decimal `json:"meal_fee"`
	MedicalFee         decimal.Decimal `json:"medical_fee"`
	WalkieTalkieFee    decimal.Decimal `json:"walkie_talkie_fee"`
	BluetoothCardFee   decimal.Decimal `json:"bluetooth_card_fee"`
	AmplifierFee       decimal.Decimal `json:"amplifier_fee"`
	ReflectiveVestFee  decimal.Decimal `json:"reflective_vest_fee"`
	SafetyInsuranceFee decimal.Decimal `json:"safety_insurance_fee"`
	DriverSalary       decimal.Decimal `json:"driver_salary"`
	RepairFee          decimal.Decimal `json:"repair_fee"`
	PartsFee           decimal.Decimal `json:"parts_fee"`
	ActualBalance      decimal.Decimal `json:"actual_balance"`
}

// DailySettlementDTO represents one vehicle-day in API responses.
type DailySettlementDTO struct {
	RecordDate    string `json:"record_date"`
	MachineryType string `json:"machinery_type"`
	VehicleNo     string `json:"vehicle_no"`
	FiguresDTO
	UnrecognizedFees []MiscFeeDTO `json:"unrecognized_fees,omitempty"`
	CreatedAt        string       `json:"created_at,omitempty"`
	UpdatedAt        string       `json:"updated_at,omitempty"`
}

type MiscFeeDTO struct {
	FeeType string          `json:"fee_type"`
	Amount  decimal.Decimal `json:"amount"`
}

// MonthlySettlementDTO represents one vehicle-month in API responses.
type MonthlySettlementDTO struct {
	YearMonth     string `json:"year_month"`
	MachineryType string `json:"machinery_type"`
	VehicleNo     string `json:"vehicle_no"`
	FiguresDTO
	RentalFee   decimal.Decimal `json:"rental_fee"`
	DayCount    int             `json:"day_count"`
	MissingDays int             `json:"missing_days"`
	Provisional bool            `json:"provisional"`
}

// RefreshDailyRequest recomputes one vehicle-day.
type RefreshDailyRequest struct {
	Date          string `json:"date"`
	MachineryType string `json:"machinery_type"`
	VehicleNo     string `json:"vehicle_no"`
}

// DateRequest carries a single day for batch endpoints.
type DateRequest struct {
	Date string `json:"date"`
}

// MonthRequest carries a single month for batch endpoints.
type MonthRequest struct {
	YearMonth string `json:"year_month"`
}

// BatchResultDTO summarizes a multi-vehicle run.
type BatchResultDTO struct {
	*settlement.BatchResult
	FailedVehicles map[string]string `json:"failed_vehicles,omitempty"`
}

// =============================================================================
// ALERTS & ANALYSIS
// =============================================================================

// AlertDTO represents an alert in API responses.
type AlertDTO struct {
	ID            string         `json:"id"`
	AlertType     string         `json:"alert_type"`
	MachineryType string         `json:"machinery_type"`
	VehicleNo     string         `json:"vehicle_no"`
	Content       string         `json:"content"`
	Severity      string         `json:"severity"`
	RelatedDate   string         `json:"related_date"`
	Payload       map[string]any `json:"payload,omitempty"`
	Status        string         `json:"status"`
	HandleRemark  string         `json:"handle_remark,omitempty"`
	HandleTime    *string        `json:"handle_time,omitempty"`
	CreatedAt     string         `json:"created_at"`
}

// ResolveAlertRequest records how an operator handled an alert.
type ResolveAlertRequest struct {
	Status       string `json:"status"`
	HandleRemark string `json:"handle_remark"`
}

// AlertStatsDTO counts alerts along each dimension.
type AlertStatsDTO struct {
	Total      int            `json:"total"`
	ByType     map[string]int `json:"by_type"`
	ByStatus   map[string]int `json:"by_status"`
	BySeverity map[string]int `json:"by_severity"`
}

// BaselineDTO is one indicator's monthly statistics.
type BaselineDTO struct {
	CalculationDate string          `json:"calculation_date"`
	Period          string          `json:"period"`
	Indicator       string          `json:"indicator"`
	Mean            decimal.Decimal `json:"mean_value"`
	StdDev          decimal.Decimal `json:"std_dev"`
	SampleSize      int             `json:"sample_size"`
}

// FuelBalanceDTO is one day of the fuel ledger.
type FuelBalanceDTO struct {
	RecordDate             string          `json:"record_date"`
	MachineryType          string          `json:"machinery_type"`
	VehicleNo              string          `json:"vehicle_no"`
	OpeningBalance         decimal.Decimal `json:"opening_balance"`
	RefuelAmount           decimal.Decimal `json:"refuel_amount"`
	ConsumptionAmount      decimal.Decimal `json:"consumption_amount"`
	ClosingBalance         decimal.Decimal `json:"closing_balance"`
	TheoreticalConsumption decimal.Decimal `json:"theoretical_consumption"`
	ConsumptionDifference  decimal.Decimal `json:"consumption_difference"`
}

// FuelUsageDTO is fuel per truck trip over a date range.
type FuelUsageDTO struct {
	MachineryType string          `json:"machinery_type"`
	VehicleNo     string          `json:"vehicle_no"`
	From          string          `json:"from"`
	To            string          `json:"to"`
	Days          int             `json:"days"`
	TotalOil      decimal.Decimal `json:"total_oil"`
	TotalTrucks   int             `json:"total_trucks"`
	PerTruckOil   decimal.Decimal `json:"per_truck_oil"`
}

// MonthlySalaryDTO is one person's prorated salary.
type MonthlySalaryDTO struct {
	YearMonth      string          `json:"year_month"`
	PersonID       string          `json:"person_id"`
	PersonName     string          `json:"person_name"`
	BaseSalary     decimal.Decimal `json:"base_salary"`
	AttendanceDays int             `json:"attendance_days"`
	ActualSalary   decimal.Decimal `json:"actual_salary"`
	PayableSalary  decimal.Decimal `json:"payable_salary"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toFiguresDTO(f settlement.Figures) FiguresDTO {
	return FiguresDTO{
		TruckCount: f.TruckCount, TotalCapacity: f.TotalCapacity, Income: f.Income,
		OilAmount: f.OilAmount, OilFee: f.OilFee, WorkHours: f.WorkHours, ShiftFee: f.ShiftFee,
		Balance: f.Balance, Deduction: f.Deduction, MealFee: f.MealFee, MedicalFee: f.MedicalFee,
		WalkieTalkieFee: f.WalkieTalkieFee, BluetoothCardFee: f.BluetoothCardFee,
		AmplifierFee: f.AmplifierFee, ReflectiveVestFee: f.ReflectiveVestFee,
		SafetyInsuranceFee: f.SafetyInsuranceFee, DriverSalary: f.DriverSalary,
		RepairFee: f.RepairFee, PartsFee: f.PartsFee, ActualBalance: f.ActualBalance,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func toDailyDTO(s settlement.DailySettlement) DailySettlementDTO {
	return DailySettlementDTO{
		RecordDate:    s.Date.String(),
		MachineryType: string(s.Vehicle.MachineryType),
		VehicleNo:     s.Vehicle.VehicleNo,
		FiguresDTO:    toFiguresDTO(s.Figures),
		CreatedAt:     formatTime(s.CreatedAt),
		UpdatedAt:     formatTime(s.UpdatedAt),
	}
}

func toComputationDTO(c *settlement.Computation) DailySettlementDTO {
	dto := toDailyDTO(c.Settlement)
	for _, f := range c.UnrecognizedFees {
		dto.UnrecognizedFees = append(dto.UnrecognizedFees, MiscFeeDTO{FeeType: f.FeeType, Amount: f.Amount})
	}
	return dto
}

func toDailyDTOs(rows []settlement.DailySettlement) []DailySettlementDTO {
	dtos := make([]DailySettlementDTO, len(rows))
	for i, s := range rows {
		dtos[i] = toDailyDTO(s)
	}
	return dtos
}

func toMonthlyDTO(m settlement.MonthlySettlement) MonthlySettlementDTO {
	return MonthlySettlementDTO{
		YearMonth:     m.YearMonth.String(),
		MachineryType: string(m.Vehicle.MachineryType),
		VehicleNo:     m.Vehicle.VehicleNo,
		FiguresDTO:    toFiguresDTO(m.Figures),
		RentalFee:     m.RentalFee,
		DayCount:      m.DayCount,
		MissingDays:   m.MissingDays,
		Provisional:   m.Provisional,
	}
}

func toBatchDTO(res *settlement.BatchResult) BatchResultDTO {
	dto := BatchResultDTO{BatchResult: res}
	if res != nil && res.Failed > 0 {
		dto.FailedVehicles = res.FailedVehicles()
	}
	return dto
}

func toAlertDTO(a settlement.Alert) AlertDTO {
	dto := AlertDTO{
		ID:            a.ID,
		AlertType:     string(a.Type),
		MachineryType: string(a.Vehicle.MachineryType),
		VehicleNo:     a.Vehicle.VehicleNo,
		Content:       a.Content,
		Severity:      string(a.Severity),
		RelatedDate:   a.RelatedDate.String(),
		Payload:       a.Payload,
		Status:        string(a.Status),
		HandleRemark:  a.Remark,
		CreatedAt:     formatTime(a.CreatedAt),
	}
	if a.HandledAt != nil {
		s := a.HandledAt.Format(time.RFC3339)
		dto.HandleTime = &s
	}
	return dto
}

func toFuelBalanceDTO(b settlement.FuelBalance) FuelBalanceDTO {
	return FuelBalanceDTO{
		RecordDate:             b.Date.String(),
		MachineryType:          string(b.Vehicle.MachineryType),
		VehicleNo:              b.Vehicle.VehicleNo,
		OpeningBalance:         b.OpeningBalance,
		RefuelAmount:           b.RefuelAmount,
		ConsumptionAmount:      b.ConsumptionAmount,
		ClosingBalance:         b.ClosingBalance,
		TheoreticalConsumption: b.TheoreticalConsumption,
		ConsumptionDifference:  b.ConsumptionDifference,
	}
}

func toFuelUsageDTO(u anomaly.FuelUsage) FuelUsageDTO {
	return FuelUsageDTO{
		MachineryType: string(u.Vehicle.MachineryType),
		VehicleNo:     u.Vehicle.VehicleNo,
		From:          u.From.String(),
		To:            u.To.String(),
		Days:          u.Days,
		TotalOil:      u.TotalOil,
		TotalTrucks:   u.TotalTrucks,
		PerTruckOil:   u.PerTruckOil,
	}
}

func toSalaryDTO(s settlement.MonthlySalary) MonthlySalaryDTO {
	return MonthlySalaryDTO{
		YearMonth:      s.YearMonth.String(),
		PersonID:       s.PersonID,
		PersonName:     s.PersonName,
		BaseSalary:     s.BaseSalary,
		AttendanceDays: s.AttendanceDays,
		ActualSalary:   s.ActualSalary,
		PayableSalary:  s.PayableSalary,
	}
}
