package notify

import (
	"context"
	"errors"

	"github.com/avertine/storefront-backend/pkg/db/models"
	"github.com/avertine/storefront-backend/pkg/enums"
	"github.com/avertine/storefront-backend/pkg/logger"
)

// Enqueuer inserts email outbox rows. Delivery happens later in the
// dispatcher, so callers finish their own transaction without waiting on the
// provider.
type Enqueuer struct {
	repo Repository
	logg *logger.Logger
}

// NewEnqueuer builds the outbox enqueuer.
func NewEnqueuer(repo Repository, logg *logger.Logger) (*Enqueuer, error) {
	if repo == nil {
		return nil, errors.New("notify repository required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &Enqueuer{repo: repo, logg: logg}, nil
}

// EnqueueOrderConfirmation queues the confirmation email for a paid order.
func (e *Enqueuer) EnqueueOrderConfirmation(ctx context.Context, order *models.Order) error {
	if order == nil {
		return errors.New("order required")
	}
	return e.insert(ctx, &models.EmailMessage{
		StoreID:   order.StoreID,
		Template:  enums.EmailTemplateOrderConfirmation,
		Recipient: order.CustomerEmail,
		Variables: orderConfirmationVariables(order),
		OrderID:   &order.ID,
	})
}

// EnqueueInvoice queues the invoice email for an order.
func (e *Enqueuer) EnqueueInvoice(ctx context.Context, order *models.Order) error {
	if order == nil {
		return errors.New("order required")
	}
	return e.insert(ctx, &models.EmailMessage{
		StoreID:   order.StoreID,
		Template:  enums.EmailTemplateInvoice,
		Recipient: order.CustomerEmail,
		Variables: invoiceVariables(order),
		OrderID:   &order.ID,
	})
}

// EnqueueShipment queues the shipment follow-up email for an order.
func (e *Enqueuer) EnqueueShipment(ctx context.Context, order *models.Order) error {
	if order == nil {
		return errors.New("order required")
	}
	return e.insert(ctx, &models.EmailMessage{
		StoreID:   order.StoreID,
		Template:  enums.EmailTemplateShipment,
		Recipient: order.CustomerEmail,
		Variables: shipmentVariables(order),
		OrderID:   &order.ID,
	})
}

// EnqueueCreditPurchase queues the receipt for a completed credit top-up.
func (e *Enqueuer) EnqueueCreditPurchase(ctx context.Context, tx *models.CreditTransaction, recipient string) error {
	if tx == nil {
		return errors.New("credit transaction required")
	}
	if recipient == "" {
		return errors.New("recipient required")
	}
	return e.insert(ctx, &models.EmailMessage{
		StoreID:             tx.StoreID,
		Template:            enums.EmailTemplateCreditPurchase,
		Recipient:           recipient,
		Variables:           creditPurchaseVariables(tx),
		CreditTransactionID: &tx.ID,
	})
}

func (e *Enqueuer) insert(ctx context.Context, msg *models.EmailMessage) error {
	msg.Status = enums.EmailStatusQueued
	if err := e.repo.Insert(ctx, msg); err != nil {
		return err
	}
	fields := map[string]any{
		"template": msg.Template.String(),
		"store_id": msg.StoreID.String(),
	}
	if msg.OrderID != nil {
		fields["order_id"] = msg.OrderID.String()
	}
	e.logg.Info(e.logg.WithFields(ctx, fields), "email queued")
	return nil
}
