package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/avertine/storefront-backend/internal/checkout"
	"github.com/avertine/storefront-backend/internal/credits"
	"github.com/avertine/storefront-backend/internal/customers"
	"github.com/avertine/storefront-backend/internal/orders"
	"github.com/avertine/storefront-backend/pkg/db"
	"github.com/avertine/storefront-backend/pkg/db/models"
	"github.com/avertine/storefront-backend/pkg/enums"
	pkgerrors "github.com/avertine/storefront-backend/pkg/errors"
	"github.com/avertine/storefront-backend/pkg/logger"
	"github.com/avertine/storefront-backend/pkg/money"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type sessionReader interface {
	GetCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error)
	ListCheckoutLineItems(ctx context.Context, id string) ([]*stripe.LineItem, error)
}

// ServiceParams collects the dependencies for NewService.
type ServiceParams struct {
	Tx        txRunner
	Orders    orders.Repository
	OrdersSvc orders.Service
	Credits   credits.Service
	Customers customers.Repository
	Gateway   sessionReader
	Logger    *logger.Logger
}

// Service consumes verified gateway events and finalizes orders and credit
// purchases idempotently. Signature verification happens at the HTTP boundary
// before events reach this service.
type Service struct {
	tx        txRunner
	orders    orders.Repository
	ordersSvc orders.Service
	credits   credits.Service
	customers customers.Repository
	gateway   sessionReader
	logger    *logger.Logger
}

// NewService builds the webhook event processor.
func NewService(params ServiceParams) (*Service, error) {
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "tx runner required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	}
	if params.OrdersSvc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders service required")
	}
	if params.Credits == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "credits service required")
	}
	if params.Customers == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "customers repository required")
	}
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "gateway client required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		tx:        params.Tx,
		orders:    params.Orders,
		ordersSvc: params.OrdersSvc,
		credits:   params.Credits,
		customers: params.Customers,
		gateway:   params.Gateway,
		logger:    params.Logger,
	}, nil
}

// HandleEvent routes one verified event to its finalizer. Unknown event types
// are acknowledged without action so the gateway stops redelivering them.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session event")
		}
		if session.ID == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "checkout session id missing")
		}
		return s.handleCheckoutCompleted(ctx, session.ID)
	case stripe.EventTypePaymentIntentSucceeded:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
		}
		if intent.ID == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
		}
		_, err := s.credits.Finalize(ctx, intent.ID)
		return err
	default:
		return nil
	}
}

// handleCheckoutCompleted promotes the preliminary order matching the session
// reference, or reconstructs the order from the gateway's own records when no
// preliminary order was ever materialized.
func (s *Service) handleCheckoutCompleted(ctx context.Context, sessionID string) error {
	ctx = s.logger.WithField(ctx, "payment_reference", sessionID)

	order, err := s.orders.FindByPaymentReference(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "looking up order by payment reference")
		}
		order, err = s.reconstructOrder(ctx, sessionID)
		if err != nil {
			return err
		}
	}

	_, err = s.ordersSvc.ConfirmPayment(ctx, order.ID)
	return err
}

// reconstructOrder rebuilds the order from the session's metadata and line
// items, mirroring the checkout materializer's computation. A concurrent
// duplicate event loses the unique payment_reference race and adopts the row
// the winner created.
func (s *Service) reconstructOrder(ctx context.Context, sessionID string) (*models.Order, error) {
	session, err := s.gateway.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retrieving checkout session")
	}

	storeID, err := uuid.Parse(session.Metadata[checkout.MetaStoreID])
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session metadata missing store id")
	}

	currency := strings.ToUpper(string(session.Currency))
	if currency == "" {
		currency = "USD"
	}

	lines, err := s.sessionCartLines(ctx, session, currency)
	if err != nil {
		return nil, err
	}
	valid := checkout.ValidItems(lines)
	if len(valid) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no reconstructable items on checkout session")
	}
	items := checkout.BuildOrderItems(valid)

	totals := checkout.ComputeTotals(items,
		metadataAmount(session.Metadata, checkout.MetaTaxTotal, currency),
		metadataAmount(session.Metadata, checkout.MetaShippingTotal, currency),
		metadataAmount(session.Metadata, checkout.MetaPaymentFee, currency),
		metadataAmount(session.Metadata, checkout.MetaDiscountTotal, currency),
	)

	email := strings.TrimSpace(session.Metadata[checkout.MetaCustomerEmail])
	if email == "" && session.CustomerDetails != nil {
		email = strings.TrimSpace(session.CustomerDetails.Email)
	}
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout session has no customer email")
	}

	orderNumber := session.Metadata[checkout.MetaOrderNumber]
	if orderNumber == "" {
		orderNumber = checkout.NewOrderNumber()
	}
	methodCode := session.Metadata[checkout.MetaPaymentMethodCode]
	if methodCode == "" {
		methodCode = "card"
	}

	reference := sessionID
	order := &models.Order{
		ID:               uuid.New(),
		StoreID:          storeID,
		OrderNumber:      orderNumber,
		Status:           enums.OrderStatusPending,
		PaymentStatus:    enums.PaymentStatusPending,
		PaymentMethod:    methodCode,
		PaymentProvider:  enums.PaymentProviderStripe,
		PaymentReference: &reference,
		Currency:         currency,
		Subtotal:         totals.Subtotal,
		TaxTotal:         totals.Tax,
		ShippingTotal:    totals.Shipping,
		PaymentFee:       totals.Fee,
		DiscountTotal:    totals.Discount,
		Total:            totals.Total,
		ShippingMethod:   session.Metadata[checkout.MetaShippingMethod],
		CustomerID:       s.resolveCustomer(ctx, session.Metadata[checkout.MetaCustomerID], email),
		CustomerEmail:    email,
		CustomerName:     session.Metadata[checkout.MetaCustomerName],
	}
	if coupon := session.Metadata[checkout.MetaCouponCode]; coupon != "" {
		order.CouponCode = &coupon
	}
	if instructions := session.Metadata[checkout.MetaDeliveryInstructions]; instructions != "" {
		order.DeliveryInstructions = &instructions
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
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
		if db.IsUniqueViolation(err, "") {
			// A concurrent delivery created the order first.
			existing, findErr := s.orders.FindByPaymentReference(ctx, sessionID)
			if findErr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, findErr, "loading concurrently created order")
			}
			return existing, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persisting reconstructed order")
	}

	s.logger.Info(s.logger.WithOrderID(ctx, order.ID.String()), "order reconstructed from checkout session")
	return order, nil
}

// sessionCartLines prefers the item snapshot embedded in session metadata and
// falls back to the gateway's line items, skipping the reserved adjustment
// entries the session builder adds for tax, shipping, and the payment fee.
func (s *Service) sessionCartLines(ctx context.Context, session *stripe.CheckoutSession, currency string) ([]checkout.CartItem, error) {
	if raw := session.Metadata[checkout.MetaItems]; raw != "" {
		snapshot, err := checkout.DecodeSessionItems(raw)
		if err == nil {
			lines := make([]checkout.CartItem, 0, len(snapshot))
			for _, item := range snapshot {
				line := checkout.CartItem{
					SKU:       item.SKU,
					Name:      item.Name,
					Qty:       item.Qty,
					UnitPrice: money.FromGatewayAmount(item.UnitAmount, currency),
				}
				if item.ProductID != "" {
					if id, parseErr := uuid.Parse(item.ProductID); parseErr == nil {
						productID := id
						line.ProductID = &productID
					}
				}
				lines = append(lines, line)
			}
			return lines, nil
		}
		s.logger.Warn(ctx, "session item metadata unparsable, falling back to gateway line items")
	}

	gatewayLines, err := s.gateway.ListCheckoutLineItems(ctx, session.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing checkout session line items")
	}
	lines := make([]checkout.CartItem, 0, len(gatewayLines))
	for _, li := range gatewayLines {
		name := strings.TrimSpace(li.Description)
		if name == "" || isAdjustmentLine(name) {
			continue
		}
		var unitAmount int64
		if li.Price != nil {
			unitAmount = li.Price.UnitAmount
		}
		lines = append(lines, checkout.CartItem{
			SKU:       name,
			Name:      name,
			Qty:       int(li.Quantity),
			UnitPrice: money.FromGatewayAmount(unitAmount, currency),
		})
	}
	return lines, nil
}

// resolveCustomer applies the same hard rule as checkout: the referenced
// customer must exist and match the order email, otherwise the order stays a
// guest order.
func (s *Service) resolveCustomer(ctx context.Context, rawID, email string) *uuid.UUID {
	if rawID == "" {
		return nil
	}
	customerID, err := uuid.Parse(rawID)
	if err != nil {
		return nil
	}
	customer, err := s.customers.FindByID(ctx, customerID)
	if err != nil {
		s.logger.Info(s.logger.WithField(ctx, "customer_id", rawID), "customer lookup failed, reconstructing as guest")
		return nil
	}
	if !strings.EqualFold(strings.TrimSpace(customer.Email), strings.TrimSpace(email)) {
		s.logger.Info(s.logger.WithField(ctx, "customer_id", rawID), "customer email mismatch, reconstructing as guest")
		return nil
	}
	id := customer.ID
	return &id
}

func isAdjustmentLine(name string) bool {
	switch name {
	case checkout.LineNameTax, checkout.LineNameShipping, checkout.LineNamePaymentFee:
		return true
	}
	return false
}

func metadataAmount(metadata map[string]string, key, currency string) decimal.Decimal {
	raw, ok := metadata[key]
	if !ok {
		return decimal.Zero
	}
	minor, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return decimal.Zero
	}
	return money.FromGatewayAmount(minor, currency)
}
