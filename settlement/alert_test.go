package settlement_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minefleet/settlement-engine/settlement"
	"github.com/minefleet/settlement-engine/settlement/store"
)

type recordingSink struct {
	published []settlement.Alert
	err       error
}

func (s *recordingSink) Publish(_ context.Context, a settlement.Alert) error {
	s.published = append(s.published, a)
	return s.err
}

func profitAlert(on settlement.Date) settlement.Alert {
	return settlement.Alert{
		Type:        settlement.AlertProfit,
		Vehicle:     truck1,
		Severity:    settlement.SeverityHigh,
		RelatedDate: on,
		Content:     "loss",
	}
}

func TestAlertWriter_StoresAndPublishes(t *testing.T) {
	mem := store.NewMemory()
	sink := &recordingSink{}
	w := settlement.NewAlertWriter(mem, sink)

	stored, err := w.Emit(context.Background(), profitAlert(d("2025-03-10")))
	require.NoError(t, err)
	assert.True(t, stored)

	alerts := mem.Alerts()
	require.Len(t, alerts, 1)
	assert.NotEmpty(t, alerts[0].ID)
	assert.Equal(t, settlement.AlertUnhandled, alerts[0].Status)
	require.Len(t, sink.published, 1)
	assert.Equal(t, alerts[0].ID, sink.published[0].ID)
}

func TestAlertWriter_SameKeyNotStoredTwice(t *testing.T) {
	// GIVEN: A profit alert already raised for truck1 on Mar 10
	// WHEN: The sweep runs again for the same day
	// THEN: No second alert is stored

	mem := store.NewMemory()
	w := settlement.NewAlertWriter(mem, nil)
	ctx := context.Background()

	_, err := w.Emit(ctx, profitAlert(d("2025-03-10")))
	require.NoError(t, err)
	stored, err := w.Emit(ctx, profitAlert(d("2025-03-10")))
	require.NoError(t, err)

	assert.False(t, stored)
	assert.Len(t, mem.Alerts(), 1)
}

func TestAlertWriter_Cooldown(t *testing.T) {
	// GIVEN: A 2-day cooldown and an alert on Mar 10
	// WHEN: The same condition is raised on Mar 11, Mar 12 and Mar 13
	// THEN: Mar 11 and Mar 12 are suppressed, Mar 13 is stored

	mem := store.NewMemory()
	w := settlement.NewAlertWriter(mem, nil)
	w.Cooldown = 2
	ctx := context.Background()

	_, err := w.Emit(ctx, profitAlert(d("2025-03-10")))
	require.NoError(t, err)

	for _, day := range []string{"2025-03-11", "2025-03-12"} {
		stored, err := w.Emit(ctx, profitAlert(d(day)))
		require.NoError(t, err)
		assert.False(t, stored, day)
	}

	// Mar 12 was suppressed, so the last stored alert is still Mar 10.
	stored, err := w.Emit(ctx, profitAlert(d("2025-03-13")))
	require.NoError(t, err)
	assert.True(t, stored)
	assert.Len(t, mem.Alerts(), 2)
}

func TestAlertWriter_SinkFailureDoesNotFailEmit(t *testing.T) {
	mem := store.NewMemory()
	sink := &recordingSink{err: errors.New("broker down")}
	w := settlement.NewAlertWriter(mem, sink)

	stored, err := w.Emit(context.Background(), profitAlert(d("2025-03-10")))
	require.NoError(t, err)
	assert.True(t, stored)
	assert.Len(t, mem.Alerts(), 1)
}

func TestAlertWriter_DifferentTypeNotSuppressed(t *testing.T) {
	mem := store.NewMemory()
	w := settlement.NewAlertWriter(mem, nil)
	ctx := context.Background()

	_, err := w.Emit(ctx, profitAlert(d("2025-03-10")))
	require.NoError(t, err)

	fuel := profitAlert(d("2025-03-10"))
	fuel.Type = settlement.AlertFuel
	stored, err := w.Emit(ctx, fuel)
	require.NoError(t, err)
	assert.True(t, stored)
}

func TestAlertWriter_Resolve(t *testing.T) {
	// GIVEN: A stored alert
	mem := store.NewMemory()
	w := settlement.NewAlertWriter(mem, nil)
	handledAt := time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)
	w.Now = func() time.Time { return handledAt }
	ctx := context.Background()

	_, err := w.Emit(ctx, profitAlert(d("2025-03-10")))
	require.NoError(t, err)
	id := mem.Alerts()[0].ID

	// WHEN: An operator marks it handled
	a, err := w.Resolve(ctx, id, settlement.AlertHandled, "driver retrained")

	// THEN: Status, remark and time are recorded
	require.NoError(t, err)
	assert.Equal(t, settlement.AlertHandled, a.Status)
	assert.Equal(t, "driver retrained", a.Remark)
	require.NotNil(t, a.HandledAt)
	assert.Equal(t, handledAt, *a.HandledAt)
	assert.Equal(t, settlement.AlertHandled, mem.Alerts()[0].Status)
}

func TestAlertWriter_ResolveUnknown(t *testing.T) {
	w := settlement.NewAlertWriter(store.NewMemory(), nil)

	_, err := w.Resolve(context.Background(), "missing", settlement.AlertHandled, "")
	assert.ErrorIs(t, err, settlement.ErrAlertNotFound)
	assert.True(t, settlement.IsNotFound(err))

	_, err = w.Resolve(context.Background(), "missing", "closed", "")
	assert.Error(t, err)
}
