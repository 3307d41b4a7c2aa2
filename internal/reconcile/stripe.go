package reconcile

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v84"
)

type checkoutSessionReader interface {
	GetCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error)
}

// StripeVerifier resolves a checkout session reference against Stripe's
// authoritative payment status.
type StripeVerifier struct {
	gateway checkoutSessionReader
}

// NewStripeVerifier builds the Stripe payment verifier.
func NewStripeVerifier(gateway checkoutSessionReader) (*StripeVerifier, error) {
	if gateway == nil {
		return nil, fmt.Errorf("stripe gateway required")
	}
	return &StripeVerifier{gateway: gateway}, nil
}

// Verify reports whether the checkout session has been paid.
func (v *StripeVerifier) Verify(ctx context.Context, reference string) (bool, error) {
	session, err := v.gateway.GetCheckoutSession(ctx, reference)
	if err != nil {
		return false, fmt.Errorf("retrieving checkout session: %w", err)
	}
	return session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid, nil
}
