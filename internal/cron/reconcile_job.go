package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/avertine/storefront-backend/internal/orders"
	"github.com/avertine/storefront-backend/internal/reconcile"
	"github.com/avertine/storefront-backend/pkg/db/models"
	"github.com/avertine/storefront-backend/pkg/logger"
)

const (
	defaultSweepLimit         = 50
	defaultSweepGraceWindow   = 30 * time.Minute
	defaultSweepVerifyTimeout = 10 * time.Second
)

// ReconcileJobParams configures the stale-pending order sweep.
type ReconcileJobParams struct {
	Logger        *logger.Logger
	Orders        orders.Repository
	OrdersSvc     orders.Service
	Verifiers     reconcile.VerifierSet
	Limit         int
	GraceWindow   time.Duration
	VerifyTimeout time.Duration
	Now           func() time.Time
}

// NewReconcileJob builds the sweep that re-verifies stale pending orders
// directly against their payment gateway.
func NewReconcileJob(params ReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.OrdersSvc == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if len(params.Verifiers) == 0 {
		return nil, fmt.Errorf("at least one payment verifier required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultSweepLimit
	}
	grace := params.GraceWindow
	if grace <= 0 {
		grace = defaultSweepGraceWindow
	}
	verifyTimeout := params.VerifyTimeout
	if verifyTimeout <= 0 {
		verifyTimeout = defaultSweepVerifyTimeout
	}
	return &reconcileJob{
		logg:          params.Logger,
		orders:        params.Orders,
		ordersSvc:     params.OrdersSvc,
		verifiers:     params.Verifiers,
		limit:         limit,
		grace:         grace,
		verifyTimeout: verifyTimeout,
		now:           now,
	}, nil
}

type reconcileJob struct {
	logg          *logger.Logger
	orders        orders.Repository
	ordersSvc     orders.Service
	verifiers     reconcile.VerifierSet
	limit         int
	grace         time.Duration
	verifyTimeout time.Duration
	now           func() time.Time
}

func (j *reconcileJob) Name() string { return "order-reconcile" }

// Run selects stale pending orders and confirms any the gateway reports as
// paid. One order's failure never aborts the rest of the batch; the whole
// sweep is retry-safe because confirmation rides on conditional updates.
func (j *reconcileJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.grace)
	stale, err := j.orders.FindStalePending(ctx, cutoff, j.limit)
	if err != nil {
		return fmt.Errorf("list stale pending orders: %w", err)
	}

	var errs error
	confirmed := 0
	skipped := 0
	for i := range stale {
		outcome, err := j.reconcileOrder(ctx, &stale[i])
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		switch outcome {
		case outcomeConfirmed:
			confirmed++
		case outcomeSkipped:
			skipped++
		}
	}

	reportCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(stale),
		"confirmed":  confirmed,
		"skipped":    skipped,
	})
	j.logg.Info(reportCtx, "order reconcile sweep complete")
	return errs
}

type sweepOutcome int

const (
	outcomeSkipped sweepOutcome = iota
	outcomeUnpaid
	outcomeConfirmed
)

func (j *reconcileJob) reconcileOrder(ctx context.Context, order *models.Order) (sweepOutcome, error) {
	logCtx := j.logg.WithOrderID(ctx, order.ID.String())
	logCtx = j.logg.WithField(logCtx, "provider", order.PaymentProvider.String())

	if order.PaymentReference == nil || *order.PaymentReference == "" {
		j.logg.Info(logCtx, "order has no payment reference; skipping")
		return outcomeSkipped, nil
	}

	verifier, ok := j.verifiers.For(order.PaymentProvider)
	if !ok {
		j.logg.Info(logCtx, "no verifier for provider; skipping")
		return outcomeSkipped, nil
	}

	verifyCtx, cancel := context.WithTimeout(logCtx, j.verifyTimeout)
	paid, err := verifier.Verify(verifyCtx, *order.PaymentReference)
	cancel()
	if err != nil {
		// Timeout or transient gateway failure means unverified this
		// cycle; the next sweep retries.
		return outcomeSkipped, fmt.Errorf("verify order %s: %w", order.ID, err)
	}
	if !paid {
		return outcomeUnpaid, nil
	}

	if _, err := j.ordersSvc.ConfirmPayment(logCtx, order.ID); err != nil {
		return outcomeSkipped, fmt.Errorf("confirm order %s: %w", order.ID, err)
	}
	return outcomeConfirmed, nil
}
