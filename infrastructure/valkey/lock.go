package valkey

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrLockTimeout is returned when every acquisition attempt found the key held.
var ErrLockTimeout = errors.New("lock acquisition timed out after max retries")

// LockOptions tunes the SET NX spin lock.
type LockOptions struct {
	TTL        time.Duration // lifetime of a held lock, bounds a crashed holder
	WaitTime   time.Duration // pause between attempts, plus up to 20ms jitter
	MaxRetries int
}

// DefaultLockOptions covers a thread write, a chat write and a compensation on a
// slow database. The lock is not extended while held, so an expired lock only
// costs serialization: the open-thread unique index and the thread version
// check still reject the conflicting write.
var DefaultLockOptions = LockOptions{
	TTL:        30 * time.Second,
	WaitTime:   50 * time.Millisecond,
	MaxRetries: 100,
}

// only delete if the token still matches
const releaseLockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// AcquireLock spins on SET key token NX PX ttl until it wins or runs out of retries.
func (c *Client) AcquireLock(ctx context.Context, key, token string, opts LockOptions) error {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}

	for i := 0; i < opts.MaxRetries; i++ {
		cmd := c.inner.B().Set().
			Key(key).
			Value(token).
			Nx().
			Px(opts.TTL).
			Build()

		err := c.inner.Do(ctx, cmd).Error()
		if err == nil {
			return nil
		}
		if !IsNil(err) {
			logrus.Debugf("[VALKEY] Lock attempt %d failed for %s: %v", i+1, key, err)
		}

		sleep := opts.WaitTime + time.Duration(rand.Intn(20))*time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}

	return ErrLockTimeout
}

// ReleaseLock deletes key only when it still holds token.
func (c *Client) ReleaseLock(ctx context.Context, key, token string) error {
	cmd := c.inner.B().Eval().
		Script(releaseLockScript).
		Numkeys(1).
		Key(key).
		Arg(token).
		Build()

	if err := c.inner.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
