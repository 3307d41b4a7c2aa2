package reconcile

import (
	"context"

	"github.com/avertine/storefront-backend/pkg/enums"
)

// PaymentVerifier answers the single question the sweep needs: has the
// gateway settled this payment reference.
type PaymentVerifier interface {
	Verify(ctx context.Context, reference string) (bool, error)
}

// VerifierSet maps a payment provider to its verifier. Providers without an
// entry are a documented gap the sweep skips rather than errors on.
type VerifierSet map[enums.PaymentProvider]PaymentVerifier

// For returns the verifier for the provider, if one is registered.
func (v VerifierSet) For(provider enums.PaymentProvider) (PaymentVerifier, bool) {
	verifier, ok := v[provider]
	if !ok || verifier == nil {
		return nil, false
	}
	return verifier, true
}
