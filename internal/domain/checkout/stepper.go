// Package checkout drives the four-step checkout flow: shipping, review,
// payment timing, payment. The current step is persisted so a reload
// resumes mid-flow; entering checkout fresh forces a restart.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/example/storefront-client/internal/api"
	"github.com/example/storefront-client/internal/domain/cart"
	"github.com/example/storefront-client/internal/infrastructure/storage"
)

const (
	stepKey = "checkout_step"
	dataKey = "checkout_data"
)

// Step is the checkout step ordinal.
type Step int

const (
	StepShipping Step = iota + 1
	StepReview
	StepPaymentTiming
	StepPayment
)

var stepNames = map[Step]string{
	StepShipping:      "shipping",
	StepReview:        "review",
	StepPaymentTiming: "payment_timing",
	StepPayment:       "payment",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// Valid reports whether s is within the checkout range.
func (s Step) Valid() bool {
	return s >= StepShipping && s <= StepPayment
}

// PaymentTiming selects when the order is paid.
type PaymentTiming string

const (
	PayNow        PaymentTiming = "now"
	PayOnDelivery PaymentTiming = "on_delivery"
)

var ErrInvalidStep = errors.New("checkout: step out of range")

// Data is the state collected across the steps. It is mutated only
// through UpdateData (shallow merge) and cleared on Reset.
type Data struct {
	Address           *api.Address  `json:"address,omitempty"`
	SelectedAddressID int64         `json:"selected_address_id,omitempty"`
	PaymentTiming     PaymentTiming `json:"payment_timing,omitempty"`
}

// Stepper is the checkout state machine. Exactly one current step exists
// at any time; forward jumps are limited to one step past the current
// one, and step completion is judged against the cart and collected data.
type Stepper struct {
	mu      sync.Mutex
	storage storage.Store
	cart    *cart.Store

	current     Step
	data        Data
	paymentDone bool

	// onChange fires only on real step changes, never on load, so the
	// hosting view doesn't jump on first render.
	onChange func(from, to Step)
}

// NewStepper creates a stepper at the shipping step.
func NewStepper(st storage.Store, c *cart.Store) *Stepper {
	return &Stepper{storage: st, cart: c, current: StepShipping}
}

// OnChange registers the step-change callback.
func (s *Stepper) OnChange(fn func(from, to Step)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Begin starts a fresh checkout, discarding any persisted mid-flow step
// from a previous visit. This is the checkout entry point.
func (s *Stepper) Begin(ctx context.Context) {
	s.Reset(ctx)
}

// Load resumes the persisted step and collected data from the current
// session, for picking the flow back up after a reload. An absent or
// invalid record leaves the stepper at shipping.
func (s *Stepper) Load(ctx context.Context) {
	var data Data
	switch err := storage.GetJSON(ctx, s.storage, dataKey, &data); {
	case err == nil:
		s.mu.Lock()
		s.data = data
		s.mu.Unlock()
	case errors.Is(err, storage.ErrNotFound):
	default:
		log.Printf("[Checkout] Failed to load persisted checkout data: %v", err)
	}

	var ordinal int
	err := storage.GetJSON(ctx, s.storage, stepKey, &ordinal)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("[Checkout] Failed to load persisted step: %v", err)
		}
		return
	}

	step := Step(ordinal)
	if !step.Valid() {
		log.Printf("[Checkout] Ignoring persisted step %d: out of range", ordinal)
		return
	}

	s.mu.Lock()
	s.current = step
	s.mu.Unlock()
}

// Current returns the current step.
func (s *Stepper) Current() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Next advances one step; a no-op at the terminal payment step.
func (s *Stepper) Next(ctx context.Context) Step {
	s.mu.Lock()
	if s.current >= StepPayment {
		defer s.mu.Unlock()
		return s.current
	}
	from := s.current
	s.current++
	to := s.current
	s.persistStepLocked(ctx)
	s.mu.Unlock()

	s.fireChange(from, to)
	return to
}

// Previous retreats one step; a no-op at the initial shipping step.
func (s *Stepper) Previous(ctx context.Context) Step {
	s.mu.Lock()
	if s.current <= StepShipping {
		defer s.mu.Unlock()
		return s.current
	}
	from := s.current
	s.current--
	to := s.current
	s.persistStepLocked(ctx)
	s.mu.Unlock()

	s.fireChange(from, to)
	return to
}

// GoToStep jumps directly to a step within the checkout range. Whether
// the jump is permitted from the current position is the caller's check
// via CanGoToStep.
func (s *Stepper) GoToStep(ctx context.Context, step Step) error {
	if !step.Valid() {
		return ErrInvalidStep
	}

	s.mu.Lock()
	if s.current == step {
		s.mu.Unlock()
		return nil
	}
	from := s.current
	s.current = step
	s.persistStepLocked(ctx)
	s.mu.Unlock()

	s.fireChange(from, step)
	return nil
}

// CanGoToStep permits jumping backward freely and forward by at most one
// step, so validated steps cannot be skipped.
func (s *Stepper) CanGoToStep(step Step) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return step.Valid() && step <= s.current+1
}

// IsStepComplete reports whether the requirements of a step are met:
// shipping needs an address, review a non-empty cart, payment timing a
// chosen timing, payment a completed submission.
func (s *Stepper) IsStepComplete(step Step) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch step {
	case StepShipping:
		return s.data.Address != nil || s.data.SelectedAddressID != 0
	case StepReview:
		return !s.cart.IsEmpty()
	case StepPaymentTiming:
		return s.data.PaymentTiming != ""
	case StepPayment:
		return s.paymentDone
	}
	return false
}

// UpdateData shallow-merges the set fields of patch into the collected
// checkout data and writes the result through to durable storage, so the
// data survives the same reloads the step ordinal does.
func (s *Stepper) UpdateData(ctx context.Context, patch Data) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if patch.Address != nil {
		s.data.Address = patch.Address
	}
	if patch.SelectedAddressID != 0 {
		s.data.SelectedAddressID = patch.SelectedAddressID
	}
	if patch.PaymentTiming != "" {
		s.data.PaymentTiming = patch.PaymentTiming
	}
	s.persistDataLocked(ctx)
}

// Data returns a copy of the collected checkout data.
func (s *Stepper) Data() Data {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.data
	if s.data.Address != nil {
		addr := *s.data.Address
		out.Address = &addr
	}
	return out
}

// MarkPaymentComplete records a finished payment submission.
func (s *Stepper) MarkPaymentComplete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paymentDone = true
}

// Reset returns to shipping, clears the collected data and erases the
// persisted step.
func (s *Stepper) Reset(ctx context.Context) {
	s.mu.Lock()
	s.current = StepShipping
	s.data = Data{}
	s.paymentDone = false
	s.mu.Unlock()

	if err := s.storage.Delete(ctx, stepKey); err != nil {
		log.Printf("[Checkout] Failed to erase persisted step: %v", err)
	}
	if err := s.storage.Delete(ctx, dataKey); err != nil {
		log.Printf("[Checkout] Failed to erase persisted checkout data: %v", err)
	}
}

// clearPaymentTiming rolls back a timing selection after a failed
// on-delivery submission so the user can retry.
func (s *Stepper) clearPaymentTiming(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.PaymentTiming = ""
	s.persistDataLocked(ctx)
}

// clearPaymentDone rolls back a payment completion mark after a failed
// submission.
func (s *Stepper) clearPaymentDone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paymentDone = false
}

func (s *Stepper) persistStepLocked(ctx context.Context) {
	if err := storage.SetJSON(ctx, s.storage, stepKey, int(s.current)); err != nil {
		log.Printf("[Checkout] Failed to persist step: %v", err)
	}
}

func (s *Stepper) persistDataLocked(ctx context.Context) {
	if err := storage.SetJSON(ctx, s.storage, dataKey, s.data); err != nil {
		log.Printf("[Checkout] Failed to persist checkout data: %v", err)
	}
}

func (s *Stepper) fireChange(from, to Step) {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil && from != to {
		fn(from, to)
	}
}
