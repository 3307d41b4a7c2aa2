package notify

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/avertine/storefront-backend/internal/orders"
	"github.com/avertine/storefront-backend/internal/stores"
	"github.com/avertine/storefront-backend/pkg/config"
	"github.com/avertine/storefront-backend/pkg/db/models"
	"github.com/avertine/storefront-backend/pkg/enums"
	pkgerrors "github.com/avertine/storefront-backend/pkg/errors"
	"github.com/avertine/storefront-backend/pkg/logger"
	"github.com/avertine/storefront-backend/pkg/mailer"
	"github.com/avertine/storefront-backend/pkg/metrics"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultBatchSize    = 25
	defaultMaxAttempts  = 5
	defaultRetryBase    = 2 * time.Second
	inFlightRetries     = 2
	maxBackoff          = time.Minute
	jitterWindow        = 250 * time.Millisecond
	// A sending claim older than this belongs to a dispatcher that died
	// mid-send; the row goes back to the queue.
	staleClaimTimeout = 5 * time.Minute
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

// DispatcherParams collects the dependencies for NewDispatcher.
type DispatcherParams struct {
	Config   config.NotifyConfig
	Logger   *logger.Logger
	Repo     Repository
	Enqueuer *Enqueuer
	Orders   orders.Repository
	Stores   stores.Repository
	Mailer   mailer.Mailer
	Metrics  *metrics.EmailMetrics
}

// Dispatcher drains the email outbox. Claims are conditional updates, so any
// number of dispatcher replicas can poll the same table.
type Dispatcher struct {
	logg         *logger.Logger
	repo         Repository
	enqueuer     *Enqueuer
	orders       orders.Repository
	stores       stores.Repository
	mailer       mailer.Mailer
	metrics      *metrics.EmailMetrics
	pollInterval time.Duration
	batchSize    int
	maxAttempts  int
	retryBase    time.Duration
}

// NewDispatcher builds the outbox dispatcher.
func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Repo == nil {
		return nil, errors.New("notify repository is required")
	}
	if params.Enqueuer == nil {
		return nil, errors.New("enqueuer is required")
	}
	if params.Orders == nil {
		return nil, errors.New("orders repository is required")
	}
	if params.Stores == nil {
		return nil, errors.New("stores repository is required")
	}
	if params.Mailer == nil {
		return nil, errors.New("mailer is required")
	}

	poll := params.Config.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	batch := params.Config.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	maxAttempts := params.Config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	retryBase := params.Config.RetryBase
	if retryBase <= 0 {
		retryBase = defaultRetryBase
	}

	return &Dispatcher{
		logg:         params.Logger,
		repo:         params.Repo,
		enqueuer:     params.Enqueuer,
		orders:       params.Orders,
		stores:       params.Stores,
		mailer:       params.Mailer,
		metrics:      params.Metrics,
		pollInterval: poll,
		batchSize:    batch,
		maxAttempts:  maxAttempts,
		retryBase:    retryBase,
	}, nil
}

// Run polls until the context is canceled.
func (d *Dispatcher) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	backoff := d.pollInterval
	for {
		select {
		case <-ctx.Done():
			d.logg.Info(ctx, "email dispatcher context canceled")
			return ctx.Err()
		default:
		}

		processed, err := d.DispatchBatch(ctx)
		if err != nil {
			d.logg.Error(ctx, "email dispatch batch error", err)
			backoff = nextBackoff(backoff, d.pollInterval, maxBackoff)
			if err := d.sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}

		backoff = d.pollInterval
		if processed > 0 {
			continue
		}
		if err := d.sleep(ctx, withJitter(d.pollInterval)); err != nil {
			return err
		}
	}
}

// DispatchBatch claims and sends one batch of queued messages. Returns how
// many rows this replica actually claimed. Before polling it returns any
// claims abandoned by a crashed dispatcher to the queue, so no row can stay
// in sending forever.
func (d *Dispatcher) DispatchBatch(ctx context.Context) (int, error) {
	recovered, err := d.repo.RequeueStaleSending(ctx, time.Now().UTC().Add(-staleClaimTimeout))
	if err != nil {
		return 0, err
	}
	if recovered > 0 {
		d.logg.Warn(d.logg.WithField(ctx, "recovered", recovered), "requeued stale sending claims")
	}

	queued, err := d.repo.FetchQueued(ctx, d.batchSize, d.maxAttempts)
	if err != nil {
		return 0, err
	}

	processed := 0
	for i := range queued {
		msg := queued[i]
		claimed, err := d.repo.ClaimSending(ctx, msg.ID)
		if err != nil {
			return processed, err
		}
		if !claimed {
			continue
		}
		processed++
		d.dispatchOne(ctx, &msg)
	}
	return processed, nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, msg *models.EmailMessage) {
	ctx = d.logg.WithFields(ctx, map[string]any{
		"email_id": msg.ID.String(),
		"template": msg.Template.String(),
		"attempt":  msg.Attempts + 1,
	})

	start := time.Now()
	providerMessageID, sendErr := d.send(ctx, msg)
	d.metrics.ObserveDispatch(msg.Template.String(), time.Since(start))

	if sendErr != nil {
		d.handleFailure(ctx, msg, sendErr)
		return
	}

	if err := d.repo.MarkSent(ctx, msg.ID, providerMessageID, time.Now().UTC()); err != nil {
		d.logg.Error(ctx, "marking email sent", err)
		return
	}
	d.metrics.IncSent(msg.Template.String())
	d.logg.Info(ctx, "email dispatched")

	if msg.Template == enums.EmailTemplateOrderConfirmation && msg.OrderID != nil {
		d.afterConfirmation(ctx, msg)
	}
}

func (d *Dispatcher) send(ctx context.Context, msg *models.EmailMessage) (string, error) {
	var providerMessageID string
	backoff := retry.WithMaxRetries(inFlightRetries, retry.NewExponential(d.retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		id, err := d.mailer.Send(ctx, mailer.Message{
			Template:  msg.Template,
			Recipient: msg.Recipient,
			Variables: msg.Variables,
		})
		if err != nil {
			if isTransient(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		providerMessageID = id
		return nil
	})
	return providerMessageID, err
}

func (d *Dispatcher) handleFailure(ctx context.Context, msg *models.EmailMessage, sendErr error) {
	terminal := !isTransient(sendErr) || msg.Attempts+1 >= d.maxAttempts
	if terminal {
		if err := d.repo.MarkDead(ctx, msg.ID, sendErr); err != nil {
			d.logg.Error(ctx, "marking email dead", err)
			return
		}
		d.metrics.IncDead(msg.Template.String())
		d.logg.Error(ctx, "email dead-lettered", sendErr)
		return
	}

	if err := d.repo.MarkFailed(ctx, msg.ID, sendErr); err != nil {
		d.logg.Error(ctx, "marking email failed", err)
		return
	}
	d.metrics.IncFailed(msg.Template.String())
	d.logg.Warn(d.logg.WithField(ctx, "error", sendErr.Error()), "email send failed, requeued")
}

// afterConfirmation runs the store-gated follow-ups once the confirmation
// email is out the door. Failures here never unwind the confirmation itself.
func (d *Dispatcher) afterConfirmation(ctx context.Context, msg *models.EmailMessage) {
	order, err := d.orders.FindByID(ctx, *msg.OrderID)
	if err != nil {
		d.logg.Error(ctx, "loading order for follow-ups", err)
		return
	}
	store, err := d.stores.FindByID(ctx, msg.StoreID)
	if err != nil {
		d.logg.Error(ctx, "loading store settings for follow-ups", err)
		return
	}

	if store.InvoiceEmailEnabled {
		if err := d.enqueuer.EnqueueInvoice(ctx, order); err != nil {
			d.logg.Error(ctx, "enqueueing invoice email", err)
		}
	}
	if store.ShipmentEmailEnabled {
		if err := d.enqueuer.EnqueueShipment(ctx, order); err != nil {
			d.logg.Error(ctx, "enqueueing shipment email", err)
		}
	}
	if store.AutoFulfillEnabled {
		if _, err := d.orders.MarkShipped(ctx, order.ID); err != nil {
			d.logg.Error(ctx, "auto-fulfilling order", err)
		}
	}
}

func isTransient(err error) bool {
	var coded *pkgerrors.Error
	if errors.As(err, &coded) {
		return coded.Code() == pkgerrors.CodeDependency || coded.Code() == pkgerrors.CodeInternal
	}
	return true
}

func (d *Dispatcher) sleep(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return nil
	}
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(duration time.Duration) time.Duration {
	if duration <= 0 {
		return 0
	}
	jitter := time.Duration(jitterSource.Int63n(int64(jitterWindow)))
	return duration + jitter
}
