package lease_test

import (
	"bytes"
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minefleet/settlement-engine/lease"
	"github.com/minefleet/settlement-engine/settlement"
)

func TestLocal_AtMostOneHolder(t *testing.T) {
	l := lease.NewLocal()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "daily-settlement:2025-03-10", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "daily-settlement:2025-03-10", time.Minute)
	assert.ErrorIs(t, err, settlement.ErrLeaseHeld)

	other, err := l.Acquire(ctx, "daily-settlement:2025-03-11", time.Minute)
	require.NoError(t, err)
	other()

	release()
	release()

	again, err := l.Acquire(ctx, "daily-settlement:2025-03-10", time.Minute)
	require.NoError(t, err)
	again()
}

func TestLocal_ExpiredLeaseCanBeTaken(t *testing.T) {
	l := lease.NewLocal()
	ctx := context.Background()

	stale, err := l.Acquire(ctx, "k", time.Nanosecond)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	fresh, err := l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	// The stale holder must not release the new holder's lease.
	stale()
	_, err = l.Acquire(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, settlement.ErrLeaseHeld)
	fresh()
}

func newRedisLease(t *testing.T) (*lease.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return lease.NewRedis(client, "settlement:lease:"), mr
}

// captureLog redirects the standard logger for the rest of the test.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })
	return &buf
}

func TestRedis_AtMostOneHolder(t *testing.T) {
	// GIVEN: Two processes sharing one Redis
	// WHEN: Both try to take the lease for the same date
	// THEN: Only the first succeeds until it releases

	l, mr := newRedisLease(t)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "daily-settlement:2025-03-10", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("settlement:lease:daily-settlement:2025-03-10"))

	_, err = l.Acquire(ctx, "daily-settlement:2025-03-10", time.Minute)
	assert.ErrorIs(t, err, settlement.ErrLeaseHeld)

	release()
	assert.False(t, mr.Exists("settlement:lease:daily-settlement:2025-03-10"))

	again, err := l.Acquire(ctx, "daily-settlement:2025-03-10", time.Minute)
	require.NoError(t, err)
	again()
}

func TestRedis_ExpiredLeaseNotReleasedByOldHolder(t *testing.T) {
	l, mr := newRedisLease(t)
	ctx := context.Background()

	stale, err := l.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	logs := captureLog(t)
	stale()
	assert.True(t, mr.Exists("settlement:lease:k"))
	assert.Contains(t, logs.String(), "k expired before release")

	fresh()
	assert.False(t, mr.Exists("settlement:lease:k"))
}

func TestRedis_ReleaseFailureIsLogged(t *testing.T) {
	// GIVEN: A lease held while Redis goes away
	l, mr := newRedisLease(t)
	release, err := l.Acquire(context.Background(), "daily-settlement:2025-03-10", time.Minute)
	require.NoError(t, err)
	mr.Close()

	// WHEN: The holder releases
	logs := captureLog(t)
	release()

	// THEN: The failed release shows up in the log
	assert.Contains(t, logs.String(), "Failed to release daily-settlement:2025-03-10")
}

func TestRedis_GuardsEngine(t *testing.T) {
	l, _ := newRedisLease(t)
	ctx := context.Background()

	held, err := l.Acquire(ctx, "daily-settlement:2025-03-10", time.Minute)
	require.NoError(t, err)
	defer held()

	engine := &settlement.Engine{Lease: l}
	_, err = engine.GenerateDaily(ctx, settlement.MustParseDate("2025-03-10"))
	assert.ErrorIs(t, err, settlement.ErrLeaseHeld)
}
