package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Lock is a single-holder mutex shared by every instance through one key
type Lock struct {
	key string
}

// NewLock creates a lock stored under key
func NewLock(key string) *Lock {
	return &Lock{key: key}
}

// Key returns the redis key backing the lock
func (l *Lock) Key() string {
	return l.key
}

// Acquire takes the lock for ttl. ok is false when another holder owns it.
func (l *Lock) Acquire(ctx context.Context, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := SetNX(ctx, l.key, token, ttl)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release frees the lock if token still owns it
func (l *Lock) Release(ctx context.Context, token string) error {
	_, err := ReleaseLock(ctx, l.key, token)
	return err
}
