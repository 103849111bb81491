package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"nesavent/internal/logger"

	"github.com/go-redis/redis/v8"
)

const (
	purchaseLockPrefix = "purchase_lock:"
	holdPrefix         = "order_hold:"
)

// releaseScript deletes the key only while it still holds our token, so a
// lock that expired and was re-acquired by someone else is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Redis struct {
	Client  *redis.Client
	Logger  *logger.Logger
	LockTTL time.Duration
}

func NewRedis(client *redis.Client, lockTTL time.Duration, log *logger.Logger) *Redis {
	return &Redis{
		Client:  client,
		Logger:  log,
		LockTTL: lockTTL,
	}
}

func purchaseLockKey(eventID, buyerID string) string {
	return purchaseLockPrefix + eventID + ":" + buyerID
}

// AcquirePurchaseLock serialises order creation per (event, buyer). It
// returns false when another request of the same buyer holds the lock.
func (r *Redis) AcquirePurchaseLock(ctx context.Context, eventID, buyerID, token string) (bool, error) {
	return r.Client.SetNX(ctx, purchaseLockKey(eventID, buyerID), token, r.LockTTL).Result()
}

func (r *Redis) ReleasePurchaseLock(ctx context.Context, eventID, buyerID, token string) error {
	return releaseScript.Run(ctx, r.Client, []string{purchaseLockKey(eventID, buyerID)}, token).Err()
}

// SetHold marks a pending order. The key expiring is the fast-path trigger
// for releasing its stock.
func (r *Redis) SetHold(ctx context.Context, orderID string, ttl time.Duration) error {
	return r.Client.Set(ctx, holdPrefix+orderID, "1", ttl).Err()
}

func (r *Redis) ClearHold(ctx context.Context, orderID string) error {
	return r.Client.Del(ctx, holdPrefix+orderID).Err()
}

// HoldOrderID extracts the order id from an expired hold key.
func HoldOrderID(key string) (string, bool) {
	if !strings.HasPrefix(key, holdPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(key, holdPrefix)
	return id, id != ""
}

// EnableKeyspaceEvents turns on expired-key notifications. Managed Redis
// often forbids CONFIG; the error is returned so callers can log and rely on
// the sweeper alone.
func (r *Redis) EnableKeyspaceEvents(ctx context.Context) error {
	return r.Client.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err()
}

// SubscribeHoldExpiry calls onExpire for every order hold that expires until
// ctx is done.
func (r *Redis) SubscribeHoldExpiry(ctx context.Context, db int, onExpire func(ctx context.Context, orderID string)) {
	channel := fmt.Sprintf("__keyevent@%d__:expired", db)
	sub := r.Client.Subscribe(ctx, channel)
	defer sub.Close()

	r.Logger.Info("REDIS", fmt.Sprintf("Listening for order hold expiry on %s", channel))
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if orderID, ok := HoldOrderID(msg.Payload); ok {
				onExpire(ctx, orderID)
			}
		}
	}
}
