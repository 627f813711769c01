package support

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultLeadershipTTL = 45 * time.Second

	leaderRetryDelay   = time.Second
	leaderCallTimeout  = 5 * time.Second
	minExtendInterval  = time.Second
	extendsPerLease    = 3
	leaderKeyNamespace = "dnshelper:leader:"
)

var (
	lockTokenCounter atomic.Uint64

	// Both scripts only touch the key while it still carries our token.
	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// LeaderKey namespaces a leadership lock name, e.g. LeaderKey("decay").
func LeaderKey(name string) string {
	return leaderKeyNamespace + name
}

// RunWithLeader runs run while this instance holds the redis lock key, so the decay,
// import and export routines execute on one instance at a time. The context given to
// run ends when the lease is lost or ctx is done; afterwards the lock is released and
// acquisition is retried. Without REDIS_URL run is called directly.
func RunWithLeader(ctx context.Context, key string, ttl time.Duration, run func(context.Context)) error {
	if run == nil {
		return errors.New("support: leader run function cannot be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	client, err := GetRedisClient()
	if errors.Is(err, ErrRedisDisabled) {
		run(ctx)
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("support: leader lock redis client: %w", err)
	}

	lock := newLeaderLock(client, key, ttl)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		acquired, err := lock.tryAcquire(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Warn("leader lock: acquire failed", "key", key, "error", err)
		case acquired:
			log.Debug("leader lock: acquired", "key", key)
			lock.hold(ctx, run)
			log.Debug("leader lock: released", "key", key)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(leaderRetryDelay):
		}
	}
}

// leaderLock is one named lease in redis. The token identifies this process and
// lock so that only the holder can extend or delete the key.
type leaderLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

func newLeaderLock(client *redis.Client, key string, ttl time.Duration) *leaderLock {
	if ttl <= 0 {
		ttl = DefaultLeadershipTTL
	}
	return &leaderLock{client: client, key: key, token: newLockToken(), ttl: ttl}
}

func (l *leaderLock) tryAcquire(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
}

// extend pushes the lease expiry out by ttl and reports whether we still hold it.
func (l *leaderLock) extend() (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), leaderCallTimeout)
	defer cancel()

	res, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (l *leaderLock) release() error {
	ctx, cancel := context.WithTimeout(context.Background(), leaderCallTimeout)
	defer cancel()

	err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

// hold runs run under the lease, extending it in the background, and releases the
// key once run returns.
func (l *leaderLock) hold(ctx context.Context, run func(context.Context)) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	kept := make(chan struct{})
	go func() {
		defer close(kept)
		l.keepAlive(runCtx, cancel)
	}()

	run(runCtx)
	cancel()
	<-kept

	if err := l.release(); err != nil {
		log.Warn("leader lock: release failed", "key", l.key, "error", err)
	}
}

// keepAlive extends the lease until ctx ends. A failed extension is retried on
// the next tick as long as the lease cannot have expired yet; losing the key or
// running out of lease calls lost.
func (l *leaderLock) keepAlive(ctx context.Context, lost context.CancelFunc) {
	interval := extendInterval(l.ttl)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastExtended := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		held, err := l.extend()
		switch {
		case err == nil && held:
			lastExtended = time.Now()
		case err == nil:
			log.Warn("leader lock: lease taken over", "key", l.key)
			lost()
			return
		case time.Since(lastExtended)+interval >= l.ttl:
			log.Warn("leader lock: lease expiring, stepping down", "key", l.key, "error", err)
			lost()
			return
		default:
			log.Warn("leader lock: extend failed, retrying", "key", l.key, "error", err)
		}
	}
}

func extendInterval(ttl time.Duration) time.Duration {
	interval := ttl / extendsPerLease
	if interval < minExtendInterval {
		interval = minExtendInterval
	}
	return interval
}

func newLockToken() string {
	host, _ := os.Hostname()
	return fmt.Sprintf("%s:%d:%d:%d", host, os.Getpid(), time.Now().UnixNano(), lockTokenCounter.Add(1))
}
