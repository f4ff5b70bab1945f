package repository

import (
	"context"

	"github.com/AzielCF/az-wacloud/infrastructure/valkey"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ValkeyThreadLocker serializes thread resolution across gateway instances.
type ValkeyThreadLocker struct {
	client   *valkey.Client
	serverID string
	opts     valkey.LockOptions
}

func NewValkeyThreadLocker(client *valkey.Client, serverID string) *ValkeyThreadLocker {
	return &ValkeyThreadLocker{client: client, serverID: serverID, opts: valkey.DefaultLockOptions}
}

func (l *ValkeyThreadLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	lockKey := l.client.Key("lock", "thread", key)
	token := l.serverID + ":" + uuid.NewString()

	if err := l.client.AcquireLock(ctx, lockKey, token, l.opts); err != nil {
		return err
	}
	defer func() {
		// a fresh context: the caller's may already be cancelled
		if err := l.client.ReleaseLock(context.WithoutCancel(ctx), lockKey, token); err != nil {
			logrus.Warnf("[THREAD] Failed to release lock %s: %v", lockKey, err)
		}
	}()

	return fn(ctx)
}

// NoopLocker is used when Valkey is disabled; the unique index on open
// threads still rejects a duplicate and the resolver retries.
type NoopLocker struct{}

func (NoopLocker) WithLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
