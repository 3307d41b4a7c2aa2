package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/avertine/storefront-backend/internal/customers"
	"github.com/avertine/storefront-backend/internal/orders"
	"github.com/avertine/storefront-backend/internal/paymentmethods"
	"github.com/avertine/storefront-backend/internal/stores"
	"github.com/avertine/storefront-backend/pkg/db/models"
	"github.com/avertine/storefront-backend/pkg/enums"
	pkgerrors "github.com/avertine/storefront-backend/pkg/errors"
	"github.com/avertine/storefront-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type sessionCreator interface {
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	SuccessURL() string
	CancelURL() string
}

// ConfirmationEnqueuer queues the confirmation email for offline orders.
type ConfirmationEnqueuer interface {
	EnqueueOrderConfirmation(ctx context.Context, order *models.Order) error
}

// Service materializes preliminary orders at checkout time.
type Service interface {
	Checkout(ctx context.Context, input CheckoutInput) (*CheckoutResult, error)
}

// ServiceParams collects the dependencies for NewService.
type ServiceParams struct {
	Tx        txRunner
	Orders    orders.Repository
	Customers customers.Repository
	Stores    stores.Repository
	Methods   paymentmethods.Repository
	Gateway   sessionCreator
	Enqueuer  ConfirmationEnqueuer
	Logger    *logger.Logger
}

type service struct {
	tx        txRunner
	orders    orders.Repository
	customers customers.Repository
	stores    stores.Repository
	methods   paymentmethods.Repository
	gateway   sessionCreator
	enqueuer  ConfirmationEnqueuer
	logger    *logger.Logger
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Customers == nil {
		return nil, fmt.Errorf("customers repository required")
	}
	if params.Stores == nil {
		return nil, fmt.Errorf("stores repository required")
	}
	if params.Methods == nil {
		return nil, fmt.Errorf("payment methods repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("gateway client required")
	}
	if params.Enqueuer == nil {
		return nil, fmt.Errorf("confirmation enqueuer required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		tx:        params.Tx,
		orders:    params.Orders,
		customers: params.Customers,
		stores:    params.Stores,
		methods:   params.Methods,
		gateway:   params.Gateway,
		enqueuer:  params.Enqueuer,
		logger:    params.Logger,
	}, nil
}

// Checkout resolves the payment method flow, recomputes all money server-side,
// and persists the order with its items in one transaction. Online flows also
// open a hosted checkout session whose id becomes the order's payment
// reference.
func (s *service) Checkout(ctx context.Context, input CheckoutInput) (*CheckoutResult, error) {
	if input.StoreID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id required")
	}
	if strings.TrimSpace(input.CustomerEmail) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer email required")
	}
	if strings.TrimSpace(input.PaymentMethodCode) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method required")
	}

	ctx = s.logger.WithStoreID(ctx, input.StoreID.String())

	store, err := s.stores.FindByID(ctx, input.StoreID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading store")
	}

	method, err := s.methods.FindByStoreAndCode(ctx, input.StoreID, input.PaymentMethodCode)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment method")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading payment method")
	}

	validLines := ValidItems(input.Items)
	if skipped := len(input.Items) - len(validLines); skipped > 0 {
		s.logger.Info(s.logger.WithField(ctx, "skipped_items", skipped), "dropped cart lines without product identifiers")
	}
	if len(validLines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no valid items in cart")
	}

	items := BuildOrderItems(validLines)
	totals := ComputeTotals(items, input.TaxTotal, input.ShippingTotal, method.FeeAmount, input.DiscountTotal)
	if totals.Total.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount exceeds order total")
	}

	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = store.Currency
	}

	order := &models.Order{
		ID:                   uuid.New(),
		StoreID:              store.ID,
		OrderNumber:          NewOrderNumber(),
		Status:               enums.OrderStatusPending,
		PaymentStatus:        enums.PaymentStatusPending,
		PaymentMethod:        method.Code,
		PaymentProvider:      method.Provider,
		Currency:             currency,
		Subtotal:             totals.Subtotal,
		TaxTotal:             totals.Tax,
		ShippingTotal:        totals.Shipping,
		PaymentFee:           totals.Fee,
		DiscountTotal:        totals.Discount,
		Total:                totals.Total,
		ShippingMethod:       input.ShippingMethod,
		CouponCode:           input.CouponCode,
		CustomerID:           s.resolveCustomer(ctx, input),
		CustomerEmail:        strings.TrimSpace(input.CustomerEmail),
		CustomerName:         strings.TrimSpace(input.CustomerName),
		BillingAddress:       input.BillingAddress,
		ShippingAddress:      input.ShippingAddress,
		DeliveryInstructions: input.DeliveryInstructions,
	}

	ctx = s.logger.WithOrderID(ctx, order.ID.String())

	var paymentURL string
	switch method.Flow {
	case enums.PaymentFlowOffline:
		// Considered paid the moment the order is placed.
		order.Status = enums.OrderStatusProcessing
		order.PaymentStatus = enums.PaymentStatusPaid
	case enums.PaymentFlowOnline:
		if method.Provider != enums.PaymentProviderStripe {
			return nil, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("online checkout is not supported for provider %q", method.Provider))
		}
		params, err := buildSessionParams(order, items, s.gateway.SuccessURL(), s.gateway.CancelURL())
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building checkout session")
		}
		session, err := s.gateway.CreateCheckoutSession(ctx, params)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating checkout session")
		}
		order.PaymentReference = &session.ID
		paymentURL = session.URL
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown payment flow %q", method.Flow))
	}

	if err := s.persistOrder(ctx, order, items); err != nil {
		return nil, err
	}

	created, err := s.orders.FindByID(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reloading created order")
	}

	if method.Flow == enums.PaymentFlowOffline {
		s.sendOfflineConfirmation(ctx, created)
	}

	s.logger.Info(ctx, "preliminary order materialized")
	return &CheckoutResult{Order: created, PaymentURL: paymentURL}, nil
}

// resolveCustomer validates a supplied customer reference against the order
// email. Any mismatch, lookup failure, or absence falls back to a guest
// order; attaching the wrong identity is worse than attaching none.
func (s *service) resolveCustomer(ctx context.Context, input CheckoutInput) *uuid.UUID {
	if input.CustomerID == nil || *input.CustomerID == uuid.Nil {
		return nil
	}
	customer, err := s.customers.FindByID(ctx, *input.CustomerID)
	if err != nil {
		s.logger.Info(s.logger.WithField(ctx, "customer_id", input.CustomerID.String()),
			"customer lookup failed, treating order as guest")
		return nil
	}
	if !strings.EqualFold(strings.TrimSpace(customer.Email), strings.TrimSpace(input.CustomerEmail)) {
		s.logger.Info(s.logger.WithField(ctx, "customer_id", input.CustomerID.String()),
			"customer email mismatch, treating order as guest")
		return nil
	}
	id := customer.ID
	return &id
}

func (s *service) persistOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		created, err := repo.CreateOrder(ctx, order)
		if err != nil {
			return err
		}
		for i := range items {
			items[i].OrderID = created.ID
		}
		return repo.CreateOrderItems(ctx, items)
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persisting order")
	}
	return nil
}

// sendOfflineConfirmation claims and queues the confirmation email for an
// order that is paid at placement. Failures degrade to a missing email; the
// order itself is already durable.
func (s *service) sendOfflineConfirmation(ctx context.Context, order *models.Order) {
	claimed, err := s.orders.ClaimConfirmationEmail(ctx, order.ID, time.Now().UTC())
	if err != nil {
		s.logger.Error(ctx, "claiming offline confirmation email", err)
		return
	}
	if !claimed {
		return
	}
	if err := s.enqueuer.EnqueueOrderConfirmation(ctx, order); err != nil {
		s.logger.Error(ctx, "enqueueing offline confirmation email", err)
	}
}
