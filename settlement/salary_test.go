package settlement_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minefleet/settlement-engine/settlement"
	"github.com/minefleet/settlement-engine/settlement/store"
)

func TestProrateSalary(t *testing.T) {
	assert.True(t, dec("6000").Equal(settlement.ProrateSalary(dec("6000"), 30)))
	assert.True(t, dec("4400").Equal(settlement.ProrateSalary(dec("6000"), 22)))
	assert.True(t, dec("3333.33").Equal(settlement.ProrateSalary(dec("5000"), 20)))
	assert.True(t, settlement.ProrateSalary(dec("6000"), 0).IsZero())
}

func TestPayroll_MonthlySalary(t *testing.T) {
	// GIVEN: A driver on 6000 a month with 2 present days, 1 overtime day,
	// 1 absence and 1 leave in March
	mem := store.NewMemory()
	mem.SavePerson(settlement.Person{ID: "p1", Name: "Driver A", Active: true, MonthlySalary: dec("6000")})
	ym := settlement.NewYearMonth(2025, time.March)
	mem.SaveAttendanceMaster(settlement.AttendanceMaster{ID: "m1", YearMonth: ym, Status: settlement.AttendanceEditing})
	for day, status := range map[string]string{
		"2025-03-03": settlement.AttendancePresent,
		"2025-03-04": settlement.AttendancePresent,
		"2025-03-05": settlement.AttendanceOvertime,
		"2025-03-06": settlement.AttendanceAbsent,
		"2025-03-07": settlement.AttendanceLeave,
	} {
		mem.SaveAttendanceDetail(settlement.AttendanceDetail{
			MasterID: "m1", PersonID: "p1", Date: settlement.MustParseDate(day), AttendanceStatus: status,
		})
	}

	// WHEN: The salary is computed
	s, err := settlement.NewPayroll(mem).MonthlySalary(context.Background(), ym, "p1")

	// THEN: 3 paid days of 6000/30
	require.NoError(t, err)
	assert.Equal(t, 3, s.AttendanceDays)
	assert.Equal(t, "Driver A", s.PersonName)
	assert.True(t, dec("6000").Equal(s.BaseSalary))
	assert.True(t, dec("600").Equal(s.ActualSalary), "actual %s", s.ActualSalary)
	assert.True(t, s.ActualSalary.Equal(s.PayableSalary))
}

func TestPayroll_NoAttendanceSheet(t *testing.T) {
	mem := store.NewMemory()
	mem.SavePerson(settlement.Person{ID: "p1", Active: true, MonthlySalary: dec("6000")})

	s, err := settlement.NewPayroll(mem).MonthlySalary(context.Background(), settlement.NewYearMonth(2025, time.April), "p1")
	require.NoError(t, err)
	assert.Zero(t, s.AttendanceDays)
	assert.True(t, dec("6000").Equal(s.BaseSalary))
	assert.True(t, s.ActualSalary.IsZero())
}

func TestPayroll_UnknownPerson(t *testing.T) {
	_, err := settlement.NewPayroll(store.NewMemory()).MonthlySalary(context.Background(), settlement.NewYearMonth(2025, time.March), "nobody")
	assert.ErrorIs(t, err, settlement.ErrPersonNotFound)
	assert.True(t, settlement.IsNotFound(err))
}

func TestPayroll_MonthlySalaries_ActiveOnly(t *testing.T) {
	mem := store.NewMemory()
	mem.SavePerson(settlement.Person{ID: "p1", Active: true, MonthlySalary: dec("3000")})
	mem.SavePerson(settlement.Person{ID: "p2", Active: false, MonthlySalary: dec("3000")})
	mem.SavePerson(settlement.Person{ID: "p3", Active: true, MonthlySalary: dec("4500")})

	out, err := settlement.NewPayroll(mem).MonthlySalaries(context.Background(), settlement.NewYearMonth(2025, time.March))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "p1", out[0].PersonID)
	assert.Equal(t, "p3", out[1].PersonID)
}
