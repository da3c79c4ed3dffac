package payment

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/cakeshop/internal/models"
)

// OnceNotifier forwards a paid-order notification only the first time it is seen
// for an order. Browsers replay the return URL on refresh and back navigation.
type OnceNotifier struct {
	rdb  *redis.Client
	next Notifier
	ttl  time.Duration
}

// NewOnceNotifier wraps next with a redis-backed seen set.
func NewOnceNotifier(rdb *redis.Client, next Notifier, ttl time.Duration) *OnceNotifier {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &OnceNotifier{rdb: rdb, next: next, ttl: ttl}
}

func (n *OnceNotifier) key(ref string) string {
	return fmt.Sprintf("payment:paid:%s", ref)
}

// Seen marks ref as notified and reports whether it already was.
func (n *OnceNotifier) Seen(ctx context.Context, ref string) (bool, error) {
	ok, err := n.rdb.SetNX(ctx, n.key(ref), "1", n.ttl).Result()
	if err != nil {
		return false, err
	}

	return !ok, nil
}

// NotifyOrderPaid implements Notifier. When redis is unavailable the notification
// is still sent.
func (n *OnceNotifier) NotifyOrderPaid(ctx context.Context, order models.Order) error {
	ref := order.Reference()
	if ref == "" {
		return nil
	}

	seen, err := n.Seen(ctx, ref)
	if err != nil {
		log.Printf("[Payment] dedup check for order %s failed: %v", ref, err)
	}
	if seen {
		return nil
	}
	return n.next.NotifyOrderPaid(ctx, order)
}
