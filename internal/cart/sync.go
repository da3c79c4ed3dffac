package cart

import (
	"context"
	"log"

	"github.com/example/cakeshop/internal/models"
)

// Sync reconciles stores with the backend after events that make local state
// suspect: a gateway round trip, a completed purchase, or a cart returned by
// another component.
type Sync struct {
	hub *Hub
}

// NewSync builds the synchronization layer over hub.
func NewSync(hub *Hub) *Sync {
	return &Sync{hub: hub}
}

// ReloadAfterReturn forces a non-cached reload once the buyer comes back from the
// gateway. Anything cached before departure is ignored; on error the store keeps
// its current state.
func (s *Sync) ReloadAfterReturn(ctx context.Context, userID string) (models.Cart, error) {
	return s.hub.Store(userID).Fetch(ctx, true)
}

// ClearAfterPurchase publishes an empty cart immediately, then reconciles with a
// forced reload. If the reload fails the empty cart stays: after a successful
// purchase a stale non-empty cart must never reappear.
func (s *Sync) ClearAfterPurchase(ctx context.Context, userID string) models.Cart {
	optimistic := s.Push(userID, models.EmptyCart(userID))

	confirmed, err := s.ReloadAfterReturn(ctx, userID)
	if err != nil {
		log.Printf("[Cart] reconcile after purchase failed for user %s, keeping empty cart: %v", userID, err)
		return optimistic
	}
	return confirmed
}

// Push adopts a cart that another component obtained from the backend.
func (s *Sync) Push(userID string, cart models.Cart) models.Cart {
	return s.hub.Store(userID).Adopt(cart)
}

// ReloadInBackground refreshes the cart without blocking the caller. Failures are
// logged only. The returned channel closes when the reload finishes.
func (s *Sync) ReloadInBackground(ctx context.Context, userID string) <-chan struct{} {
	done := make(chan struct{})
	bg := context.WithoutCancel(ctx)
	go func() {
		defer close(done)
		if _, err := s.ReloadAfterReturn(bg, userID); err != nil {
			log.Printf("[Cart] background reload failed for user %s: %v", userID, err)
		}
	}()
	return done
}
