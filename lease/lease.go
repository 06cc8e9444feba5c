/*
Package lease implements settlement.Lease.

  Local  - in-process map with held-until times. Enough for a single
           instance, and for tests.
  Redis  - SET NX PX on a shared Redis. Holds across processes, so two
           scheduler instances never run the same work at once.

Every holder gets a random token. Release only deletes the key while it
still carries that token, so a holder whose lease expired cannot release
somebody else's.
*/
package lease

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/minefleet/settlement-engine/settlement"
)

// =============================================================================
// LOCAL
// =============================================================================

type holder struct {
	token string
	until time.Time
}

type Local struct {
	mu   sync.Mutex
	held map[string]holder
	now  func() time.Time
}

func NewLocal() *Local {
	return &Local{held: make(map[string]holder), now: time.Now}
}

func (l *Local) Acquire(_ context.Context, key string, ttl time.Duration) (settlement.Release, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if h, ok := l.held[key]; ok && now.Before(h.until) {
		return nil, fmt.Errorf("%w: %s", settlement.ErrLeaseHeld, key)
	}
	token := uuid.NewString()
	l.held[key] = holder{token: token, until: now.Add(ttl)}

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if h, ok := l.held[key]; ok && h.token == token {
			delete(l.held, key)
		}
	}, nil
}

// =============================================================================
// REDIS
// =============================================================================

// releaseScript deletes the key only if it still holds our token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis stores leases under prefix + key.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (settlement.Release, error) {
	full := r.prefix + key
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lease %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", settlement.ErrLeaseHeld, key)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's context may already be cancelled by the time it releases.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			n, err := r.client.Eval(ctx, releaseScript, []string{full}, token).Int()
			if err != nil {
				log.Printf("[Lease] Failed to release %s, held until it expires: %v", key, err)
				return
			}
			if n == 0 {
				log.Printf("[Lease] WARN: %s expired before release", key)
			}
		})
	}, nil
}
