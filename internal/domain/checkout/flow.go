package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/example/storefront-client/internal/api"
	"github.com/example/storefront-client/internal/domain/cart"
)

var (
	ErrNoAddress        = errors.New("checkout: no shipping address set")
	ErrEmptyCart        = errors.New("checkout: cart is empty")
	ErrNoPaymentTiming  = errors.New("checkout: no payment timing selected")
	ErrSubmitInFlight   = errors.New("checkout: an order submission is already in progress")
	ErrBadPaymentTiming = errors.New("checkout: unknown payment timing")
)

// OrderCreator is the slice of the API client the flow needs to place
// orders.
type OrderCreator interface {
	CreateOrder(ctx context.Context, req api.CreateOrderRequest, idempotencyKey string) (*api.Order, error)
}

// CouponValidator re-validates a coupon code against an order amount.
type CouponValidator interface {
	ValidateCoupon(ctx context.Context, code string, orderAmount int64, userID string) (*api.CouponValidation, error)
}

// Flow assembles the cart, the collected checkout data and the applied
// coupon into an order submission, choosing the path by payment timing.
//
// A submission failure is surfaced as a retryable error, and an
// idempotency key held stable across retries guards against a duplicate
// order when the user retries quickly.
type Flow struct {
	stepper *Stepper
	cart    *cart.Store
	orders  OrderCreator
	coupons CouponValidator

	mu       sync.Mutex
	inFlight bool
	idemKey  string
}

// NewFlow wires a Flow over the stepper, cart and API client slices.
func NewFlow(stepper *Stepper, cartStore *cart.Store, orders OrderCreator, coupons CouponValidator) *Flow {
	return &Flow{stepper: stepper, cart: cartStore, orders: orders, coupons: coupons}
}

// SelectPaymentTiming records the chosen timing. Choosing pay-on-delivery
// submits the order immediately; on failure the selection is rolled back
// and the error returned so the user can retry visibly.
func (f *Flow) SelectPaymentTiming(ctx context.Context, timing PaymentTiming) (*api.Order, error) {
	if timing != PayNow && timing != PayOnDelivery {
		return nil, ErrBadPaymentTiming
	}

	f.stepper.UpdateData(ctx, Data{PaymentTiming: timing})
	if timing != PayOnDelivery {
		return nil, nil
	}

	order, err := f.submitOrder(ctx)
	if err != nil {
		f.stepper.clearPaymentTiming(ctx)
		return nil, fmt.Errorf("pay-on-delivery order failed: %w", err)
	}
	return order, nil
}

// SubmitPayment completes the pay-now path: the card fields are
// validated (trivially satisfied for pay-on-delivery), processing is
// delegated to the order endpoint, and on success the cart is cleared
// and the stepper reset.
func (f *Flow) SubmitPayment(ctx context.Context, card Card) (*api.Order, error) {
	if f.stepper.Data().PaymentTiming != PayOnDelivery {
		if err := card.Validate(); err != nil {
			return nil, err
		}
	}

	f.stepper.MarkPaymentComplete()
	order, err := f.submitOrder(ctx)
	if err != nil {
		f.stepper.clearPaymentDone()
		return nil, err
	}
	return order, nil
}

// RevalidateCoupon re-validates the cart's last coupon code against the
// current subtotal and re-applies it when still valid. Used by the
// review step after cart changes invalidated the applied coupon.
func (f *Flow) RevalidateCoupon(ctx context.Context, userID string) (*api.CouponValidation, error) {
	code := f.cart.LastCouponCode()
	if code == "" || f.cart.HasAppliedCoupon() || f.coupons == nil {
		return nil, nil
	}

	validation, err := f.coupons.ValidateCoupon(ctx, code, f.cart.TotalPrice(), userID)
	if err != nil {
		return nil, fmt.Errorf("re-validate coupon %q failed: %w", code, err)
	}
	switch {
	case validation.IsValid && validation.Coupon != nil:
		f.cart.ApplyCoupon(ctx, *validation.Coupon, *validation)
	case validation.IsValid:
		log.Printf("[Checkout] Coupon %q validation came back valid but without a coupon payload, dropping it", code)
		f.cart.RemoveCoupon(ctx)
	default:
		log.Printf("[Checkout] Coupon %q no longer valid: %s", code, validation.Message)
		f.cart.RemoveCoupon(ctx)
	}
	return validation, nil
}

// submitOrder builds and sends the order-creation request. A missing
// address or an empty cart short-circuits with an error and no network
// call. On success the cart is cleared and the stepper reset.
func (f *Flow) submitOrder(ctx context.Context) (*api.Order, error) {
	f.mu.Lock()
	if f.inFlight {
		f.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	f.inFlight = true
	if f.idemKey == "" {
		f.idemKey = uuid.New().String()
	}
	key := f.idemKey
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight = false
		f.mu.Unlock()
	}()

	data := f.stepper.Data()
	if data.Address == nil {
		log.Printf("[Checkout] Order submission blocked: no shipping address")
		return nil, ErrNoAddress
	}
	items := f.cart.Items()
	if len(items) == 0 {
		log.Printf("[Checkout] Order submission blocked: empty cart")
		return nil, ErrEmptyCart
	}

	req := buildOrderRequest(items, *data.Address, couponCode(f.cart), data.PaymentTiming)

	order, err := f.orders.CreateOrder(ctx, req, key)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.idemKey = ""
	f.mu.Unlock()

	f.cart.Clear(ctx)
	f.stepper.Reset(ctx)
	log.Printf("[Checkout] Order %s placed", order.ID)
	return order, nil
}

func couponCode(c *cart.Store) string {
	if applied, ok := c.AppliedCoupon(); ok && applied.Validation.IsValid {
		return applied.Coupon.Code
	}
	return ""
}

func buildOrderRequest(items []cart.LineItem, addr api.Address, couponCode string, timing PaymentTiming) api.CreateOrderRequest {
	orderItems := make([]api.OrderItem, 0, len(items))
	for _, item := range items {
		orderItems = append(orderItems, api.OrderItem{
			ProductID:        item.ProductID,
			Name:             item.Name,
			Image:            item.Image,
			Price:            item.UnitPrice,
			Quantity:         item.Quantity,
			SelectedVariants: item.SelectedVariants,
		})
	}

	return api.CreateOrderRequest{
		Items: orderItems,
		ShippingAddress: api.ShippingAddress{
			FullName:   addr.FullName,
			Street:     addr.Street(),
			City:       addr.City,
			State:      addr.State,
			PostalCode: addr.PostalCode,
			Country:    addr.Country,
			Phone:      addr.Phone,
		},
		CouponCode:    couponCode,
		PaymentTiming: string(timing),
	}
}
