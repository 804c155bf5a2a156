// Package cart implements the locally persisted shopping cart: line
// items merged by product and variant selection, the undiscounted
// subtotal, and the applied-coupon lifecycle.
package cart

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/storefront-client/internal/api"
	"github.com/example/storefront-client/internal/infrastructure/storage"
)

const (
	itemsKey  = "cart_items"
	couponKey = "applied_coupon"
)

// LineItem is one product (plus variant selection) and its quantity.
type LineItem struct {
	ID               string            `json:"id"`
	ProductID        int64             `json:"product_id"`
	Name             string            `json:"name"`
	Image            string            `json:"image,omitempty"`
	UnitPrice        int64             `json:"unit_price"`
	Quantity         int               `json:"quantity"`
	SelectedVariants map[string]string `json:"selected_variants,omitempty"`
	AddedAt          time.Time         `json:"added_at"`
	CouponCode       string            `json:"coupon_code,omitempty"`
}

// AppliedCoupon pairs the coupon snapshot with the server's validation
// result. The discount is never recomputed locally; FinalAmount is the
// server's word.
type AppliedCoupon struct {
	Coupon     api.Coupon           `json:"coupon"`
	Validation api.CouponValidation `json:"validation"`
}

// Store is the persistent cart. Every mutation is written through to
// durable storage; a corrupt persisted record resets to an empty cart
// instead of failing.
//
// Any mutation of the line items invalidates an applied coupon: its
// validation was computed for a subtotal that no longer exists. The code
// is kept so the checkout flow can re-validate it against the new total.
type Store struct {
	mu      sync.Mutex
	storage storage.Store

	items          []LineItem
	coupon         *AppliedCoupon
	lastCouponCode string
}

// NewStore loads any persisted cart state.
func NewStore(ctx context.Context, st storage.Store) *Store {
	s := &Store{storage: st}

	var items []LineItem
	switch err := storage.GetJSON(ctx, st, itemsKey, &items); {
	case err == nil:
		s.items = items
	case errors.Is(err, storage.ErrNotFound):
	default:
		log.Printf("[Cart] Failed to load cart, resetting to empty: %v", err)
		_ = st.Delete(ctx, itemsKey)
	}

	var coupon AppliedCoupon
	switch err := storage.GetJSON(ctx, st, couponKey, &coupon); {
	case err == nil:
		s.coupon = &coupon
		s.lastCouponCode = coupon.Coupon.Code
	case errors.Is(err, storage.ErrNotFound):
	default:
		log.Printf("[Cart] Failed to load applied coupon, dropping it: %v", err)
		_ = st.Delete(ctx, couponKey)
	}

	return s
}

// AddItem puts an item in the cart. A line with the same product and an
// identical variant selection is merged by incrementing its quantity;
// otherwise a new line is appended with a fresh identifier. Returns the
// resulting line.
func (s *Store) AddItem(ctx context.Context, item LineItem) LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.Quantity < 1 {
		item.Quantity = 1
	}

	for i := range s.items {
		if s.items[i].ProductID == item.ProductID && variantsEqual(s.items[i].SelectedVariants, item.SelectedVariants) {
			s.items[i].Quantity += item.Quantity
			line := s.items[i]
			s.afterMutation(ctx)
			return line
		}
	}

	item.ID = uuid.New().String()
	item.AddedAt = time.Now()
	item.CouponCode = ""
	s.items = append(s.items, item)
	s.afterMutation(ctx)
	return item
}

// RemoveItem deletes the line with the given identifier; no-op when
// absent.
func (s *Store) RemoveItem(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			s.afterMutation(ctx)
			return
		}
	}
}

// UpdateQuantity sets a line's quantity. A quantity of zero or less
// removes the line.
func (s *Store) UpdateQuantity(ctx context.Context, id string, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ID != id {
			continue
		}
		if quantity <= 0 {
			s.items = append(s.items[:i], s.items[i+1:]...)
		} else {
			s.items[i].Quantity = quantity
		}
		s.afterMutation(ctx)
		return
	}
}

// Clear empties the cart and erases all persisted cart state, including
// any applied coupon.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
	s.coupon = nil
	s.lastCouponCode = ""
	if err := s.storage.Delete(ctx, itemsKey); err != nil {
		log.Printf("[Cart] Failed to erase persisted cart: %v", err)
	}
	if err := s.storage.Delete(ctx, couponKey); err != nil {
		log.Printf("[Cart] Failed to erase persisted coupon: %v", err)
	}
}

// Items returns a copy of the current lines.
func (s *Store) Items() []LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]LineItem, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of distinct lines.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// IsEmpty reports whether the cart has no lines.
func (s *Store) IsEmpty() bool {
	return s.Len() == 0
}

// TotalPrice is the undiscounted subtotal: sum of unit price times
// quantity over all lines.
func (s *Store) TotalPrice() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subtotalLocked()
}

func (s *Store) subtotalLocked() int64 {
	var total int64
	for _, item := range s.items {
		total += item.UnitPrice * int64(item.Quantity)
	}
	return total
}

// ApplyCoupon records a server-validated coupon and stamps each line
// with its code. The caller is expected to apply only successful
// validations; an invalid one is stored but never affects totals.
func (s *Store) ApplyCoupon(ctx context.Context, coupon api.Coupon, validation api.CouponValidation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.coupon = &AppliedCoupon{Coupon: coupon, Validation: validation}
	s.lastCouponCode = coupon.Code
	for i := range s.items {
		s.items[i].CouponCode = coupon.Code
	}

	s.persistItems(ctx)
	if err := storage.SetJSON(ctx, s.storage, couponKey, s.coupon); err != nil {
		log.Printf("[Cart] Failed to persist applied coupon: %v", err)
	}
}

// RemoveCoupon clears the applied coupon and strips the code stamp from
// every line.
func (s *Store) RemoveCoupon(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.coupon = nil
	s.lastCouponCode = ""
	s.dropCouponLocked(ctx)
}

// TotalPriceWithDiscount is the server-computed final amount when a
// valid coupon is applied, the plain subtotal otherwise.
func (s *Store) TotalPriceWithDiscount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.coupon != nil && s.coupon.Validation.IsValid {
		return s.coupon.Validation.FinalAmount
	}
	return s.subtotalLocked()
}

// DiscountAmount is the server-computed discount for the applied coupon,
// zero when none applies.
func (s *Store) DiscountAmount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.coupon != nil && s.coupon.Validation.IsValid {
		return s.coupon.Validation.DiscountAmount
	}
	return 0
}

// HasAppliedCoupon reports whether a coupon with a successful validation
// is applied.
func (s *Store) HasAppliedCoupon() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coupon != nil && s.coupon.Validation.IsValid
}

// AppliedCoupon returns the current applied coupon, when any.
func (s *Store) AppliedCoupon() (AppliedCoupon, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.coupon == nil {
		return AppliedCoupon{}, false
	}
	return *s.coupon, true
}

// LastCouponCode is the code of the most recently applied coupon, kept
// after an invalidation so the checkout flow can re-validate it against
// the changed cart.
func (s *Store) LastCouponCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCouponCode
}

// afterMutation persists the lines and invalidates an applied coupon,
// whose validation no longer matches the cart. Callers hold the lock.
func (s *Store) afterMutation(ctx context.Context) {
	if s.coupon != nil {
		log.Printf("[Cart] Coupon %q invalidated by cart change, re-validation required", s.coupon.Coupon.Code)
		s.coupon = nil
		s.dropCouponLocked(ctx)
		return
	}
	s.persistItems(ctx)
}

// dropCouponLocked strips coupon stamps and erases the persisted coupon.
func (s *Store) dropCouponLocked(ctx context.Context) {
	for i := range s.items {
		s.items[i].CouponCode = ""
	}
	s.persistItems(ctx)
	if err := s.storage.Delete(ctx, couponKey); err != nil {
		log.Printf("[Cart] Failed to erase persisted coupon: %v", err)
	}
}

func (s *Store) persistItems(ctx context.Context) {
	if err := storage.SetJSON(ctx, s.storage, itemsKey, s.items); err != nil {
		log.Printf("[Cart] Failed to persist cart: %v", err)
	}
}

func variantsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
