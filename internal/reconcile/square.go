package reconcile

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/square/square-go-sdk"
)

// squarePaymentCompleted is the terminal settled status in Square's payment
// lifecycle.
const squarePaymentCompleted = "COMPLETED"

type paymentReader interface {
	GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error)
}

// SquareVerifier resolves a payment reference against Square's payment state.
type SquareVerifier struct {
	gateway paymentReader
}

// NewSquareVerifier builds the Square payment verifier.
func NewSquareVerifier(gateway paymentReader) (*SquareVerifier, error) {
	if gateway == nil {
		return nil, fmt.Errorf("square gateway required")
	}
	return &SquareVerifier{gateway: gateway}, nil
}

// Verify reports whether the payment has completed.
func (v *SquareVerifier) Verify(ctx context.Context, reference string) (bool, error) {
	payment, err := v.gateway.GetPayment(ctx, reference)
	if err != nil {
		return false, fmt.Errorf("retrieving square payment: %w", err)
	}
	if payment == nil || payment.GetStatus() == nil {
		return false, nil
	}
	return strings.EqualFold(*payment.GetStatus(), squarePaymentCompleted), nil
}
