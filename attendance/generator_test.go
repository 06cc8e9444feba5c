package attendance_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minefleet/settlement-engine/attendance"
	"github.com/minefleet/settlement-engine/settlement"
	"github.com/minefleet/settlement-engine/settlement/store"
)

func TestSkeleton(t *testing.T) {
	ym := settlement.NewYearMonth(2025, time.February)
	people := []settlement.Person{{ID: "p1", Active: true}, {ID: "p2", Active: true}}

	master, details := attendance.Skeleton(ym, people, "m1")

	assert.Equal(t, settlement.AttendanceEditing, master.Status)
	assert.Len(t, details, 2*28)
	for _, det := range details {
		assert.Equal(t, "m1", det.MasterID)
		assert.Equal(t, settlement.AttendancePresent, det.AttendanceStatus)
		assert.Equal(t, settlement.MealNormal, det.MealStatus)
		assert.True(t, ym.Contains(det.Date))
	}
}

func TestGenerate_Idempotent(t *testing.T) {
	// GIVEN: Two active people and one inactive
	// WHEN: Generating March twice
	// THEN: The first call creates the sheet, the second leaves it alone

	mem := store.NewMemory()
	mem.SavePerson(settlement.Person{ID: "p1", Name: "A", Active: true})
	mem.SavePerson(settlement.Person{ID: "p2", Name: "B", Active: true})
	mem.SavePerson(settlement.Person{ID: "p3", Name: "C", Active: false})
	gen := attendance.NewGenerator(mem)
	ctx := context.Background()
	ym := settlement.NewYearMonth(2025, time.March)

	created, err := gen.Generate(ctx, ym)
	require.NoError(t, err)
	assert.True(t, created)

	master, err := mem.AttendanceMaster(ctx, ym)
	require.NoError(t, err)
	require.NotNil(t, master)

	detail, err := mem.AttendanceDetail(ctx, master.ID, "p2", settlement.MustParseDate("2025-03-31"))
	require.NoError(t, err)
	require.NotNil(t, detail)
	assert.Equal(t, settlement.MealNormal, detail.MealStatus)

	missing, err := mem.AttendanceDetail(ctx, master.ID, "p3", settlement.MustParseDate("2025-03-01"))
	require.NoError(t, err)
	assert.Nil(t, missing)

	created, err = gen.Generate(ctx, ym)
	require.NoError(t, err)
	assert.False(t, created)

	again, err := mem.AttendanceMaster(ctx, ym)
	require.NoError(t, err)
	assert.Equal(t, master.ID, again.ID)
}
