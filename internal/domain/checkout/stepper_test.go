package checkout

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/storefront-client/internal/api"
	"github.com/example/storefront-client/internal/domain/cart"
	"github.com/example/storefront-client/internal/infrastructure/storage"
)

func newTestStepper(t *testing.T) (*Stepper, *cart.Store, storage.Store) {
	t.Helper()
	st := storage.NewMemoryStore()
	c := cart.NewStore(context.Background(), st)
	return NewStepper(st, c), c, st
}

func testAddress() *api.Address {
	return &api.Address{
		FullName:     "Ada Lovelace",
		AddressLine1: "12 Main St",
		City:         "Springfield",
		PostalCode:   "12345",
		Country:      "US",
	}
}

// ============================================
// Navigation Tests
// ============================================

func TestStepper_LinearProgression(t *testing.T) {
	s, _, _ := newTestStepper(t)
	ctx := context.Background()

	assert.Equal(t, StepShipping, s.Current())
	assert.Equal(t, StepReview, s.Next(ctx))
	assert.Equal(t, StepPaymentTiming, s.Next(ctx))
	assert.Equal(t, StepPayment, s.Next(ctx))
}

func TestStepper_NextAtTerminalIsNoop(t *testing.T) {
	s, _, _ := newTestStepper(t)
	ctx := context.Background()

	require.NoError(t, s.GoToStep(ctx, StepPayment))

	assert.Equal(t, StepPayment, s.Next(ctx))
	assert.Equal(t, StepPayment, s.Current())
}

func TestStepper_PreviousAtInitialIsNoop(t *testing.T) {
	s, _, _ := newTestStepper(t)

	assert.Equal(t, StepShipping, s.Previous(context.Background()))
	assert.Equal(t, StepShipping, s.Current())
}

func TestStepper_GoToStep_OutOfRangeRejected(t *testing.T) {
	s, _, _ := newTestStepper(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.GoToStep(ctx, Step(0)), ErrInvalidStep)
	assert.ErrorIs(t, s.GoToStep(ctx, Step(5)), ErrInvalidStep)
	assert.Equal(t, StepShipping, s.Current())
}

func TestStepper_CanGoToStep(t *testing.T) {
	s, _, _ := newTestStepper(t)
	ctx := context.Background()

	require.NoError(t, s.GoToStep(ctx, StepReview))

	assert.True(t, s.CanGoToStep(StepShipping), "backward always allowed")
	assert.True(t, s.CanGoToStep(StepReview))
	assert.True(t, s.CanGoToStep(StepPaymentTiming), "one step ahead allowed")
	assert.False(t, s.CanGoToStep(StepPayment), "skipping ahead blocked")
	assert.False(t, s.CanGoToStep(Step(9)))
}

// ============================================
// Step Completion Tests
// ============================================

func TestStepper_IsStepComplete(t *testing.T) {
	s, c, _ := newTestStepper(t)
	ctx := context.Background()

	assert.False(t, s.IsStepComplete(StepShipping))
	assert.False(t, s.IsStepComplete(StepReview), "empty cart blocks review")
	assert.False(t, s.IsStepComplete(StepPaymentTiming))
	assert.False(t, s.IsStepComplete(StepPayment))

	s.UpdateData(ctx, Data{Address: testAddress()})
	assert.True(t, s.IsStepComplete(StepShipping))

	c.AddItem(ctx, cart.LineItem{ProductID: 1, UnitPrice: 100, Quantity: 1})
	assert.True(t, s.IsStepComplete(StepReview))

	s.UpdateData(ctx, Data{PaymentTiming: PayNow})
	assert.True(t, s.IsStepComplete(StepPaymentTiming))

	s.MarkPaymentComplete()
	assert.True(t, s.IsStepComplete(StepPayment))
}

func TestStepper_IsStepComplete_SelectedAddressID(t *testing.T) {
	s, _, _ := newTestStepper(t)
	ctx := context.Background()

	s.UpdateData(ctx, Data{SelectedAddressID: 42})

	assert.True(t, s.IsStepComplete(StepShipping))
}

// ============================================
// Data Merge Tests
// ============================================

func TestStepper_UpdateData_ShallowMerge(t *testing.T) {
	s, _, _ := newTestStepper(t)
	ctx := context.Background()

	s.UpdateData(ctx, Data{Address: testAddress()})
	s.UpdateData(ctx, Data{PaymentTiming: PayOnDelivery})

	data := s.Data()
	require.NotNil(t, data.Address, "earlier fields survive later patches")
	assert.Equal(t, "Ada Lovelace", data.Address.FullName)
	assert.Equal(t, PayOnDelivery, data.PaymentTiming)
}

func TestStepper_Data_ReturnsCopy(t *testing.T) {
	s, _, _ := newTestStepper(t)
	ctx := context.Background()

	s.UpdateData(ctx, Data{Address: testAddress()})
	data := s.Data()
	data.Address.City = "Mutated"

	assert.Equal(t, "Springfield", s.Data().Address.City)
}

// ============================================
// Persistence Tests
// ============================================

func TestStepper_PersistsStepAcrossReload(t *testing.T) {
	s, c, st := newTestStepper(t)
	ctx := context.Background()

	s.Next(ctx)
	s.Next(ctx) // payment timing

	resumed := NewStepper(st, c)
	resumed.Load(ctx)
	assert.Equal(t, StepPaymentTiming, resumed.Current())
}

func TestStepper_PersistsDataAcrossReload(t *testing.T) {
	s, c, st := newTestStepper(t)
	ctx := context.Background()

	s.UpdateData(ctx, Data{Address: testAddress()})
	s.Next(ctx)
	s.UpdateData(ctx, Data{PaymentTiming: PayOnDelivery})

	resumed := NewStepper(st, c)
	resumed.Load(ctx)

	data := resumed.Data()
	require.NotNil(t, data.Address, "address must survive a reload")
	assert.Equal(t, "Ada Lovelace", data.Address.FullName)
	assert.Equal(t, PayOnDelivery, data.PaymentTiming)
	assert.True(t, resumed.IsStepComplete(StepShipping))
}

func TestStepper_BeginForcesRestart(t *testing.T) {
	s, c, st := newTestStepper(t)
	ctx := context.Background()

	s.UpdateData(ctx, Data{Address: testAddress(), PaymentTiming: PayNow})
	s.Next(ctx)
	s.Next(ctx)

	// Entering the checkout route discards the stale mid-flow state
	entered := NewStepper(st, c)
	entered.Begin(ctx)

	assert.Equal(t, StepShipping, entered.Current())
	assert.Equal(t, Data{}, entered.Data())
	_, err := st.Get(ctx, stepKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = st.Get(ctx, dataKey)
	assert.ErrorIs(t, err, storage.ErrNotFound, "stale checkout data must not outlive the reset")
}

func TestStepper_Load_IgnoresGarbage(t *testing.T) {
	s, c, st := newTestStepper(t)
	_ = s
	ctx := context.Background()

	require.NoError(t, st.Set(ctx, stepKey, []byte("99")))
	resumed := NewStepper(st, c)
	resumed.Load(ctx)
	assert.Equal(t, StepShipping, resumed.Current())

	require.NoError(t, st.Set(ctx, stepKey, []byte("not a number")))
	resumed = NewStepper(st, c)
	resumed.Load(ctx)
	assert.Equal(t, StepShipping, resumed.Current())
}

// ============================================
// Change Callback Tests
// ============================================

func TestStepper_OnChange_FiresOnlyOnRealChanges(t *testing.T) {
	s, _, _ := newTestStepper(t)
	ctx := context.Background()

	type change struct{ from, to Step }
	var changes []change
	s.OnChange(func(from, to Step) {
		changes = append(changes, change{from, to})
	})

	s.Previous(ctx)                         // no-op at shipping
	s.Next(ctx)                             // shipping -> review
	require.NoError(t, s.GoToStep(ctx, StepReview)) // same step, no event
	s.Next(ctx)                             // review -> payment timing

	require.Len(t, changes, 2)
	assert.Equal(t, change{StepShipping, StepReview}, changes[0])
	assert.Equal(t, change{StepReview, StepPaymentTiming}, changes[1])
}
