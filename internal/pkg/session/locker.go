package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another holder owns the lock.
var ErrLockHeld = errors.New("lock is held")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out short-lived exclusive locks and remembers processed
// webhook events.
type Locker struct {
	client *redis.Client
}

func NewLocker(client *redis.Client) *Locker {
	return &Locker{client: client}
}

// Acquire takes the lock named key for ttl. The returned release func only
// deletes the key if this caller still owns it.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context), error) {
	token := ulid.Make().String()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	return func(ctx context.Context) {
		_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}, nil
}

// IsEventProcessed reports whether a webhook event id was already handled.
func (l *Locker) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	n, err := l.client.Exists(ctx, eventKey(eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check event %s: %w", eventID, err)
	}
	return n > 0, nil
}

// MarkEventProcessed records a handled webhook event id for ttl.
func (l *Locker) MarkEventProcessed(ctx context.Context, eventID string, ttl time.Duration) error {
	return l.client.Set(ctx, eventKey(eventID), "1", ttl).Err()
}

// CheckoutLockKey names the per-user checkout lock.
func CheckoutLockKey(userID string) string {
	return fmt.Sprintf("checkout:lock:%s", userID)
}

// RefundLockKey names the lock held while a refund request is decided.
func RefundLockKey(refundID string) string {
	return fmt.Sprintf("refund:lock:%s", refundID)
}

func eventKey(eventID string) string {
	return fmt.Sprintf("webhook:event:%s", eventID)
}
