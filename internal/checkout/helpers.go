package checkout

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/avertine/storefront-backend/pkg/db/models"
)

// Totals is the server-computed money breakdown for one order.
type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Shipping decimal.Decimal
	Fee      decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// ValidItems drops cart lines that cannot become order items: lines with no
// product identifier at all (neither product id nor SKU), a non-positive
// quantity, or a negative unit price. Callers treat an empty result as fatal
// for that order.
func ValidItems(items []CartItem) []CartItem {
	valid := make([]CartItem, 0, len(items))
	for _, item := range items {
		if item.ProductID == nil && strings.TrimSpace(item.SKU) == "" {
			continue
		}
		if item.Qty <= 0 {
			continue
		}
		if item.UnitPrice.IsNegative() {
			continue
		}
		valid = append(valid, item)
	}
	return valid
}

// BuildOrderItems converts validated cart lines into immutable order item
// snapshots. Line totals are unit price times quantity; priced options are
// already folded into the unit price upstream.
func BuildOrderItems(items []CartItem) []models.OrderItem {
	built := make([]models.OrderItem, 0, len(items))
	for _, item := range items {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			name = item.SKU
		}
		built = append(built, models.OrderItem{
			ProductID:  item.ProductID,
			SKU:        strings.TrimSpace(item.SKU),
			Name:       name,
			Qty:        item.Qty,
			UnitPrice:  item.UnitPrice,
			TotalPrice: item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Qty))),
			Options:    item.Options,
		})
	}
	return built
}

// ComputeTotals derives the full money breakdown from order items plus the
// order-level adjustments. total = subtotal + tax + shipping + fee - discount.
func ComputeTotals(items []models.OrderItem, tax, shipping, fee, discount decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.TotalPrice)
	}
	tax = clampNonNegative(tax)
	shipping = clampNonNegative(shipping)
	fee = clampNonNegative(fee)
	discount = clampNonNegative(discount)

	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: shipping,
		Fee:      fee,
		Discount: discount,
		Total:    subtotal.Add(tax).Add(shipping).Add(fee).Sub(discount),
	}
}

func clampNonNegative(amount decimal.Decimal) decimal.Decimal {
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}

// NewOrderNumber produces the human-readable order number assigned at
// creation. Uniqueness is enforced by the database index; the random suffix
// makes collisions within a day vanishingly unlikely.
func NewOrderNumber() string {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		// Fall back to the clock if the entropy source is unavailable.
		return fmt.Sprintf("ORD-%s", time.Now().UTC().Format("20060102150405.000000"))
	}
	suffix := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf)
	return fmt.Sprintf("ORD-%s-%s", time.Now().UTC().Format("20060102"), suffix)
}
