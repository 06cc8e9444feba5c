/*
salary.go - Monthly salary per person from the attendance sheet

PURPOSE:
  Prorates a person's monthly base salary by the days the attendance sheet
  marks present or overtime. The driver_salary column of the daily
  settlement is a per-vehicle cost; this is the per-person view of the month.

FORMULA:
  attendance_days = detail rows with status present or overtime
  actual_salary   = monthly_salary x attendance_days / 30, rounded to cents
  payable_salary  = actual_salary (overtime pay and deductions are applied
                    when the payroll sheet is produced)

A month with no attendance master pays nothing and counts no days.
*/
package settlement

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// SalaryDays is the fixed month length salaries are prorated over.
const SalaryDays = 30

type MonthlySalary struct {
	YearMonth      YearMonth
	PersonID       string
	PersonName     string
	BaseSalary     decimal.Decimal
	AttendanceDays int
	ActualSalary   decimal.Decimal
	PayableSalary  decimal.Decimal
}

// CountsAsWorked reports whether an attendance status is paid.
func CountsAsWorked(status string) bool {
	return status == AttendancePresent || status == AttendanceOvertime
}

// ProrateSalary is base x days / SalaryDays, rounded to cents.
func ProrateSalary(base decimal.Decimal, days int) decimal.Decimal {
	return base.Mul(decimal.NewFromInt(int64(days))).
		Div(decimal.NewFromInt(SalaryDays)).
		Round(2)
}

// Payroll reads people and attendance to produce monthly salaries.
type Payroll struct {
	Roster RosterStore
	People AttendanceStore
}

func NewPayroll(store Store) *Payroll {
	return &Payroll{Roster: store, People: store}
}

// MonthlySalary computes one person's salary for ym.
func (p *Payroll) MonthlySalary(ctx context.Context, ym YearMonth, personID string) (MonthlySalary, error) {
	person, err := p.People.Person(ctx, personID)
	if err != nil {
		return MonthlySalary{}, fmt.Errorf("load person %s: %w", personID, err)
	}
	if person == nil {
		return MonthlySalary{}, fmt.Errorf("%w: %s", ErrPersonNotFound, personID)
	}
	return p.salary(ctx, ym, *person)
}

// MonthlySalaries computes every active person's salary for ym, by id.
func (p *Payroll) MonthlySalaries(ctx context.Context, ym YearMonth) ([]MonthlySalary, error) {
	people, err := p.People.ActivePersonnel(ctx)
	if err != nil {
		return nil, fmt.Errorf("load personnel: %w", err)
	}
	out := make([]MonthlySalary, 0, len(people))
	for _, person := range people {
		s, err := p.salary(ctx, ym, person)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (p *Payroll) salary(ctx context.Context, ym YearMonth, person Person) (MonthlySalary, error) {
	out := MonthlySalary{
		YearMonth:     ym,
		PersonID:      person.ID,
		PersonName:    person.Name,
		BaseSalary:    person.MonthlySalary,
		ActualSalary:  decimal.Zero,
		PayableSalary: decimal.Zero,
	}

	master, err := p.Roster.AttendanceMaster(ctx, ym)
	if err != nil {
		return MonthlySalary{}, fmt.Errorf("load attendance %s: %w", ym, err)
	}
	if master == nil {
		return out, nil
	}

	for _, day := range ym.Dates() {
		detail, err := p.Roster.AttendanceDetail(ctx, master.ID, person.ID, day)
		if err != nil {
			return MonthlySalary{}, fmt.Errorf("load attendance %s %s: %w", person.ID, day, err)
		}
		if detail != nil && CountsAsWorked(detail.AttendanceStatus) {
			out.AttendanceDays++
		}
	}

	out.ActualSalary = ProrateSalary(person.MonthlySalary, out.AttendanceDays)
	out.PayableSalary = out.ActualSalary
	return out, nil
}
