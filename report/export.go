// Package report exports settlements as xlsx workbooks.
package report

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/minefleet/settlement-engine/settlement"
)

const (
	DailySheet   = "Daily Settlement"
	MonthlySheet = "Monthly Settlement"
)

type column struct {
	header string
	value  func(settlement.Figures) any
}

func money(d decimal.Decimal) any { return d.InexactFloat64() }

// figureColumns are shared by daily and monthly sheets, in display order.
var figureColumns = []column{
	{"Truck Count", func(f settlement.Figures) any { return f.TruckCount }},
	{"Total Capacity", func(f settlement.Figures) any { return money(f.TotalCapacity) }},
	{"Income", func(f settlement.Figures) any { return money(f.Income) }},
	{"Oil Amount", func(f settlement.Figures) any { return money(f.OilAmount) }},
	{"Oil Fee", func(f settlement.Figures) any { return money(f.OilFee) }},
	{"Work Hours", func(f settlement.Figures) any { return money(f.WorkHours) }},
	{"Shift Fee", func(f settlement.Figures) any { return money(f.ShiftFee) }},
	{"Balance", func(f settlement.Figures) any { return money(f.Balance) }},
	{"Deduction", func(f settlement.Figures) any { return money(f.Deduction) }},
	{"Meal Fee", func(f settlement.Figures) any { return money(f.MealFee) }},
	{"Medical Fee", func(f settlement.Figures) any { return money(f.MedicalFee) }},
	{"Walkie-Talkie Fee", func(f settlement.Figures) any { return money(f.WalkieTalkieFee) }},
	{"Bluetooth Card Fee", func(f settlement.Figures) any { return money(f.BluetoothCardFee) }},
	{"Amplifier Fee", func(f settlement.Figures) any { return money(f.AmplifierFee) }},
	{"Reflective Vest Fee", func(f settlement.Figures) any { return money(f.ReflectiveVestFee) }},
	{"Safety Insurance Fee", func(f settlement.Figures) any { return money(f.SafetyInsuranceFee) }},
	{"Driver Salary", func(f settlement.Figures) any { return money(f.DriverSalary) }},
	{"Repair Fee", func(f settlement.Figures) any { return money(f.RepairFee) }},
	{"Parts Fee", func(f settlement.Figures) any { return money(f.PartsFee) }},
}

// writeRow writes values starting at column A of the given 1-based row.
func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
	}
	return nil
}

func newSheet(name string, headers []string) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", name); err != nil {
		f.Close()
		return nil, err
	}
	values := make([]any, len(headers))
	for i, h := range headers {
		values[i] = h
	}
	if err := writeRow(f, name, 1, values); err != nil {
		f.Close()
		return nil, err
	}
	last, _ := excelize.ColumnNumberToName(len(headers))
	f.SetColWidth(name, "A", last, 16)
	return f, nil
}

func figureHeaders() []string {
	out := make([]string, 0, len(figureColumns))
	for _, c := range figureColumns {
		out = append(out, c.header)
	}
	return out
}

func figureValues(fig settlement.Figures) []any {
	out := make([]any, 0, len(figureColumns))
	for _, c := range figureColumns {
		out = append(out, c.value(fig))
	}
	return out
}

// WriteDaily writes one row per daily settlement to w.
func WriteDaily(w io.Writer, rows []settlement.DailySettlement) error {
	headers := append([]string{"Date", "Machinery Type", "Vehicle No"}, figureHeaders()...)
	headers = append(headers, "Actual Balance")

	f, err := newSheet(DailySheet, headers)
	if err != nil {
		return fmt.Errorf("create workbook: %w", err)
	}
	defer f.Close()

	for i, s := range rows {
		values := append([]any{s.Date.String(), string(s.Vehicle.MachineryType), s.Vehicle.VehicleNo}, figureValues(s.Figures)...)
		values = append(values, money(s.ActualBalance))
		if err := writeRow(f, DailySheet, i+2, values); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	return f.Write(w)
}

// WriteMonthly writes one row per monthly settlement to w.
func WriteMonthly(w io.Writer, rows []settlement.MonthlySettlement) error {
	headers := append([]string{"Month", "Machinery Type", "Vehicle No"}, figureHeaders()...)
	headers = append(headers, "Rental Fee", "Actual Balance", "Days", "Missing Days")

	f, err := newSheet(MonthlySheet, headers)
	if err != nil {
		return fmt.Errorf("create workbook: %w", err)
	}
	defer f.Close()

	for i, m := range rows {
		values := append([]any{m.YearMonth.String(), string(m.Vehicle.MachineryType), m.Vehicle.VehicleNo}, figureValues(m.Figures)...)
		values = append(values, money(m.RentalFee), money(m.ActualBalance), m.DayCount, m.MissingDays)
		if err := writeRow(f, MonthlySheet, i+2, values); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	return f.Write(w)
}

// ReadRows returns every row of a sheet as text, header included.
func ReadRows(r io.Reader, sheet string) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return f.GetRows(sheet)
}
