package settlement_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minefleet/settlement-engine/settlement"
)

func TestClassifyMiscFees(t *testing.T) {
	// GIVEN: Fees under English labels, legacy labels and one unknown label
	// WHEN: Classifying
	// THEN: Each bucket sums its labels and the unknown row is reported, not counted

	fees := []settlement.MiscFee{
		{FeeType: "medical", Amount: dec("10")},
		{FeeType: "体检费", Amount: dec("5")},
		{FeeType: "walkie_talkie", Amount: dec("3")},
		{FeeType: "蓝牙卡", Amount: dec("2")},
		{FeeType: "放大号", Amount: dec("1")},
		{FeeType: "reflective_vest", Amount: dec("4")},
		{FeeType: "安责险", Amount: dec("6")},
		{FeeType: "parking", Amount: dec("99")},
	}

	b := settlement.ClassifyMiscFees(fees)

	assertDec(t, "15", b.Medical)
	assertDec(t, "3", b.WalkieTalkie)
	assertDec(t, "2", b.BluetoothCard)
	assertDec(t, "1", b.Amplifier)
	assertDec(t, "4", b.ReflectiveVest)
	assertDec(t, "6", b.SafetyInsurance)
	require.Len(t, b.Unrecognized, 1)
	assert.Equal(t, "parking", b.Unrecognized[0].FeeType)
}

func TestFigures_RecomputeExcludesMeal(t *testing.T) {
	f := settlement.ZeroFigures()
	f.Income = dec("1000")
	f.OilFee = dec("200")
	f.MealFee = dec("60")
	f.SafetyInsuranceFee = dec("20")
	f.Recompute()

	assertDec(t, "800", f.Balance)
	assertDec(t, "780", f.ActualBalance)
	assert.True(t, f.Consistent())

	f.ActualBalance = dec("1")
	assert.False(t, f.Consistent())
}

func TestFigures_OilPerTruck(t *testing.T) {
	f := settlement.ZeroFigures()
	f.OilAmount = dec("210")
	assertDec(t, "0", f.OilPerTruck())

	f.TruckCount = 10
	assertDec(t, "21", f.OilPerTruck())
}

func TestYearMonth_Calendar(t *testing.T) {
	ym := settlement.NewYearMonth(2024, time.February)
	assert.Equal(t, 29, ym.Days())
	assert.Equal(t, "2024-02-29", ym.LastDay().String())
	assert.Len(t, ym.Dates(), 29)
	assert.Equal(t, "2024-01", ym.Prev().String())

	december := settlement.NewYearMonth(2024, time.December)
	assert.Equal(t, "2025-01", december.Next().String())
	assert.True(t, december.Before(december.Next()))

	parsed, err := settlement.ParseYearMonth("2025-03")
	require.NoError(t, err)
	assert.Equal(t, settlement.NewYearMonth(2025, time.March), parsed)

	_, err = settlement.ParseDate("2025/03/01")
	assert.Error(t, err)
}
