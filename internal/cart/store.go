// Package cart keeps each user's cart in a single observable store. Surfaces read
// through Snapshot/Subscribe; every write goes through Mutate, Load or Adopt.
package cart

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/example/cakeshop/internal/marketplace"
	"github.com/example/cakeshop/internal/models"
)

// API is the part of the marketplace client the store uses.
type API interface {
	GetCart(ctx context.Context, userID string, fresh bool) (*models.Cart, error)
	AddItem(ctx context.Context, req marketplace.AddItemRequest) (*models.Cart, error)
	UpdateItem(ctx context.Context, req marketplace.UpdateItemRequest) (*models.Cart, error)
	RemoveItem(ctx context.Context, userID, productID string) (*models.Cart, error)
	ClearCart(ctx context.Context, userID string) (*models.Cart, error)
	GetVariant(ctx context.Context, variantID string) (*models.Variant, error)
}

// ErrInvalidOperation is returned for mutations rejected before any request.
var ErrInvalidOperation = errors.New("invalid cart operation")

// Op is a cart mutation issued to the backend.
type Op interface {
	apply(ctx context.Context, api API, userID string) (*models.Cart, error)
	String() string
}

// AddItem adds Quantity units of a product (and optional variant).
type AddItem struct {
	ProductID string
	VariantID string
	Quantity  int
}

func (op AddItem) apply(ctx context.Context, api API, userID string) (*models.Cart, error) {
	if op.ProductID == "" || op.Quantity <= 0 {
		return nil, fmt.Errorf("%w: add needs a product and a positive quantity", ErrInvalidOperation)
	}
	return api.AddItem(ctx, marketplace.AddItemRequest{
		UserID:    userID,
		ProductID: op.ProductID,
		VariantID: op.VariantID,
		Quantity:  op.Quantity,
	})
}

func (op AddItem) String() string { return "add " + op.ProductID }

// UpdateQuantity sets the quantity of a line; zero removes it.
type UpdateQuantity struct {
	ProductID string
	VariantID string
	Quantity  int
}

func (op UpdateQuantity) apply(ctx context.Context, api API, userID string) (*models.Cart, error) {
	if op.ProductID == "" || op.Quantity < 0 {
		return nil, fmt.Errorf("%w: update needs a product and a non-negative quantity", ErrInvalidOperation)
	}
	return api.UpdateItem(ctx, marketplace.UpdateItemRequest{
		UserID:    userID,
		ProductID: op.ProductID,
		VariantID: op.VariantID,
		Quantity:  op.Quantity,
	})
}

func (op UpdateQuantity) String() string { return "update " + op.ProductID }

// RemoveItem drops every line of a product.
type RemoveItem struct {
	ProductID string
}

func (op RemoveItem) apply(ctx context.Context, api API, userID string) (*models.Cart, error) {
	if op.ProductID == "" {
		return nil, fmt.Errorf("%w: remove needs a product", ErrInvalidOperation)
	}
	return api.RemoveItem(ctx, userID, op.ProductID)
}

func (op RemoveItem) String() string { return "remove " + op.ProductID }

// Clear empties the cart.
type Clear struct{}

func (Clear) apply(ctx context.Context, api API, userID string) (*models.Cart, error) {
	return api.ClearCart(ctx, userID)
}

func (Clear) String() string { return "clear" }

// Store is the single source of truth for one user's cart.
type Store struct {
	userID string
	api    API
	cache  Cache

	mutateMu sync.Mutex
	loads    singleflight.Group

	mu      sync.RWMutex
	cart    models.Cart
	loaded  bool
	version uint64
	subs    map[uint64]chan models.Cart
	nextSub uint64
}

// NewStore builds an empty, not yet loaded store. cache may be nil.
func NewStore(userID string, api API, cache Cache) *Store {
	return &Store{
		userID: userID,
		api:    api,
		cache:  cache,
		cart:   models.EmptyCart(userID),
		subs:   map[uint64]chan models.Cart{},
	}
}

// UserID returns the owner of the store.
func (s *Store) UserID() string {
	return s.userID
}

// Snapshot returns a copy of the current cart and whether it was ever loaded.
func (s *Store) Snapshot() (models.Cart, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.Clone(), s.loaded
}

// Version increments on every adopted cart.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Subscribe returns a channel that receives the latest cart after every write. A slow
// reader only ever sees the newest snapshot. The cancel func closes the channel.
func (s *Store) Subscribe() (<-chan models.Cart, func()) {
	ch := make(chan models.Cart, 1)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	if s.loaded {
		ch <- s.cart.Clone()
	}
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// idle reports whether the store has no subscribers and no mutation in flight.
func (s *Store) idle() bool {
	if !s.mutateMu.TryLock() {
		return false
	}
	defer s.mutateMu.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs) == 0
}

// Load fetches the authoritative cart. Failures are logged and yield an empty cart
// for the user so surfaces degrade to "empty" instead of failing.
func (s *Store) Load(ctx context.Context, fresh bool) models.Cart {
	cart, err := s.Fetch(ctx, fresh)
	if err != nil {
		log.Printf("[Cart] load failed for user %s: %v", s.userID, err)
		empty := models.EmptyCart(s.userID)
		s.adopt(empty, false)
		return empty
	}
	return cart
}

// Fetch loads the cart like Load but returns the error and leaves the store
// untouched on failure. fresh bypasses the snapshot cache and the backend cache.
func (s *Store) Fetch(ctx context.Context, fresh bool) (models.Cart, error) {
	if !fresh && s.cache != nil {
		cached, err := s.cache.Get(ctx, s.userID)
		if err == nil {
			cached.Recalculate()
			s.adopt(*cached, false)
			return cached.Clone(), nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			log.Printf("[Cart] cache get error for user %s: %v", s.userID, err)
		}
	}

	key := "cached"
	if fresh {
		key = "fresh"
	}
	v, err, _ := s.loads.Do(key, func() (interface{}, error) {
		remote, err := s.api.GetCart(ctx, s.userID, fresh)
		if err != nil {
			return nil, err
		}
		cart := s.normalize(ctx, remote)
		return cart, nil
	})
	if err != nil {
		return models.Cart{}, fmt.Errorf("fetch cart: %w", err)
	}

	cart := v.(models.Cart)
	s.adopt(cart, true)
	return cart.Clone(), nil
}

// Mutate issues op to the backend and replaces local state with the cart the
// backend returns. Mutations of one store run one at a time. On error the store
// is unchanged.
func (s *Store) Mutate(ctx context.Context, op Op) (models.Cart, error) {
	s.mutateMu.Lock()
	defer s.mutateMu.Unlock()

	remote, err := op.apply(ctx, s.api, s.userID)
	if err != nil {
		current, _ := s.Snapshot()
		return current, fmt.Errorf("cart %s: %w", op, err)
	}

	cart := s.normalize(ctx, remote)
	s.adopt(cart, true)
	return cart.Clone(), nil
}

// Adopt replaces local state with a cart obtained elsewhere, e.g. returned by
// another component's mutation. Totals are recomputed before publishing.
func (s *Store) Adopt(cart models.Cart) models.Cart {
	if cart.UserID == "" {
		cart.UserID = s.userID
	}
	if cart.Items == nil {
		cart.Items = []models.LineItem{}
	}
	cart.Recalculate()
	s.adopt(cart, true)
	return cart.Clone()
}

func (s *Store) adopt(cart models.Cart, writeCache bool) {
	s.mu.Lock()
	s.cart = cart.Clone()
	s.loaded = true
	s.version++
	for _, ch := range s.subs {
		publish(ch, s.cart.Clone())
	}
	s.mu.Unlock()

	if writeCache && s.cache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := s.cache.Set(ctx, s.userID, &cart); err != nil {
			log.Printf("[Cart] cache set error for user %s: %v", s.userID, err)
		}
	}
}

// publish delivers the newest snapshot, replacing an unread older one.
func publish(ch chan models.Cart, cart models.Cart) {
	select {
	case ch <- cart:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- cart:
	default:
	}
}

// normalize hydrates partial variants and recomputes the total.
func (s *Store) normalize(ctx context.Context, remote *models.Cart) models.Cart {
	cart := models.EmptyCart(s.userID)
	if remote != nil {
		cart = remote.Clone()
	}
	if cart.UserID == "" {
		cart.UserID = s.userID
	}
	if cart.Items == nil {
		cart.Items = []models.LineItem{}
	}

	resolved := map[string]*models.Variant{}
	for i := range cart.Items {
		item := &cart.Items[i]
		variantID := item.VariantID
		if item.Variant != nil && item.Variant.ID != "" {
			variantID = item.Variant.ID
			if !item.Variant.Partial() && item.Price.IsZero() {
				item.Price = item.Variant.Price
			}
		}
		if variantID == "" || !needsHydration(item) {
			continue
		}

		variant, ok := resolved[variantID]
		if !ok {
			v, err := s.api.GetVariant(ctx, variantID)
			if err != nil {
				log.Printf("[Cart] variant %s lookup failed: %v", variantID, err)
			}
			variant = v
			resolved[variantID] = v
		}
		if variant == nil {
			continue
		}

		item.Variant = variant
		item.VariantID = variant.ID
		if item.VariantName == "" {
			item.VariantName = variant.Name
		}
		if item.Price.IsZero() {
			item.Price = variant.Price
		}
		if item.Image == "" {
			item.Image = variant.Image
		}
	}

	cart.Recalculate()
	return cart
}

func needsHydration(item *models.LineItem) bool {
	if item.Variant != nil {
		return item.Variant.Partial()
	}
	return item.Price.IsZero()
}
