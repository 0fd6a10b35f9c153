package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrLockTimeout is returned when the lock could not be taken before the context ended.
var ErrLockTimeout = errors.New("ledger lock not acquired")

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock is a single-key mutex shared by every bot process writing the same ledger.
// The TTL bounds how long a crashed holder can block others.
type Lock struct {
	client *Client
	key    string
	ttl    time.Duration
	poll   time.Duration
}

// NewLock creates a lock on key. ttl should exceed the longest ledger operation.
func (c *Client) NewLock(key string, ttl time.Duration) *Lock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Lock{client: c, key: key, ttl: ttl, poll: 100 * time.Millisecond}
}

// Key returns the redis key guarded by the lock.
func (l *Lock) Key() string { return l.key }

// Lock blocks until the lock is held or ctx ends. The returned func releases it.
func (l *Lock) Lock(ctx context.Context) (func(), error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()
	for {
		ok, err := l.client.client.SetNX(ctx, l.key, token, l.ttl).Result()
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("set %s: %w", l.key, err)
		}
		if ok {
			return func() { l.release(token) }, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", ErrLockTimeout, l.key, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *Lock) release(token string) {
	// The caller's context may already be done; release on a short context of its own.
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, l.client.client, []string{l.key}, token).Err(); err != nil {
		l.client.logger.Warn("Failed to release ledger lock",
			zap.String("key", l.key),
			zap.Error(err))
	}
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
