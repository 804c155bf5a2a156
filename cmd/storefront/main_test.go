package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/storefront-client/internal/api"
	"github.com/example/storefront-client/internal/auth"
	"github.com/example/storefront-client/internal/domain/cart"
	"github.com/example/storefront-client/internal/domain/checkout"
	"github.com/example/storefront-client/internal/infrastructure/storage"
	"github.com/example/storefront-client/internal/prefs"
)

// newTestApp wires an app over an in-memory store. The API client points
// nowhere; tests exercising it must not reach the network.
func newTestApp(t *testing.T) *app {
	t.Helper()
	ctx := context.Background()
	store := storage.NewNotifier(storage.NewMemoryStore())
	client := api.NewClient("http://127.0.0.1:0", nil)
	cartStore := cart.NewStore(ctx, store)
	stepper := checkout.NewStepper(store, cartStore)
	return &app{
		client:  client,
		session: auth.NewSession(ctx, store),
		cart:    cartStore,
		stepper: stepper,
		flow:    checkout.NewFlow(stepper, cartStore, client, client),
		prefs:   prefs.New(store),
	}
}

// ============================================
// Checkout Gating Tests
// ============================================

func TestCheckoutCmd_NextBlockedUntilStepComplete(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	err := dispatch(ctx, a, "checkout", []string{"next"})
	require.Error(t, err, "shipping without an address must not advance")
	assert.Contains(t, err.Error(), "shipping")
	assert.Equal(t, checkout.StepShipping, a.stepper.Current())

	a.stepper.UpdateData(ctx, checkout.Data{Address: &api.Address{
		FullName:     "Ada Lovelace",
		AddressLine1: "12 Main St",
		City:         "Springfield",
		PostalCode:   "12345",
		Country:      "US",
	}})
	require.NoError(t, dispatch(ctx, a, "checkout", []string{"next"}))
	assert.Equal(t, checkout.StepReview, a.stepper.Current())

	// Review with an empty cart is incomplete, so navigation stops again
	err = dispatch(ctx, a, "checkout", []string{"next"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "review")
	assert.Equal(t, checkout.StepReview, a.stepper.Current())

	a.cart.AddItem(ctx, cart.LineItem{ProductID: 1, Name: "Mug", UnitPrice: 1000, Quantity: 1})
	require.NoError(t, dispatch(ctx, a, "checkout", []string{"next"}))
	assert.Equal(t, checkout.StepPaymentTiming, a.stepper.Current())
}

func TestCheckoutCmd_PayRequiresTimingSelection(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	err := dispatch(ctx, a, "checkout", []string{"pay", "4242424242424242", "Ada Lovelace", "12", "2030", "123"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "timing")
}
