package redis

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/chunkjob/internal/core"
)

var _ core.Locker = (*Locker)(nil)

const (
	// DefaultLease bounds how long a crashed holder can block a job.
	DefaultLease = 5 * time.Minute

	lockRetryInterval = 25 * time.Millisecond
)

// releaseScript deletes the lock only if it still carries our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a distributed per-job lock built on SET NX PX.
type Locker struct {
	client  goredis.UniversalClient
	maxWait time.Duration
	lease   time.Duration
}

// NewLocker creates a locker that waits at most maxWait for a busy job.
func NewLocker(client goredis.UniversalClient, maxWait time.Duration) *Locker {
	if maxWait < 0 {
		maxWait = core.DefaultLockWait
	}
	return &Locker{client: client, maxWait: maxWait, lease: DefaultLease}
}

// WithLease sets the lock lease. It must outlast the longest chunk.
func (l *Locker) WithLease(d time.Duration) *Locker {
	if d > 0 {
		l.lease = d
	}
	return l
}

// Lock acquires the lock for key, polling until maxWait elapses.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	k := lockKey(key)
	deadline := time.Now().Add(l.maxWait)

	for {
		ok, err := l.client.SetNX(ctx, k, token, l.lease).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return l.release(k, token), nil
		}
		if !time.Now().Before(deadline) {
			return nil, core.ErrBusy
		}

		t := time.NewTimer(lockRetryInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func (l *Locker) release(k, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			// The request context may already be cancelled; release regardless.
			// A failed release leaves the lock to expire with its lease.
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, l.client, []string{k}, token).Err()
		})
	}
}
