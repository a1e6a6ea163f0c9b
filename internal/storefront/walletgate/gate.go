// Package walletgate decides whether a prepaid wallet covers a checkout.
package walletgate

import (
	"time"

	"github.com/example/grocery-storefront/internal/money"
	"github.com/example/grocery-storefront/internal/storefront/cartstore"
	"github.com/shopspring/decimal"
)

// CanSubmit reports whether walletBalance covers basketValue plus
// deliveryFee. Equality is sufficient.
func CanSubmit(basketValue, deliveryFee, walletBalance decimal.Decimal) bool {
	return money.Round(walletBalance).GreaterThanOrEqual(money.Sum(basketValue, deliveryFee))
}

// Quote is the result of one coordinated read of the cart and the wallet.
// It is immutable and describes exactly one cart revision.
type Quote struct {
	CartID        string          `json:"cart_id"`
	CartRevision  uint64          `json:"cart_revision"`
	BasketValue   decimal.Decimal `json:"basket_value"`
	DeliveryFee   decimal.Decimal `json:"delivery_fee"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	WalletBalance decimal.Decimal `json:"wallet_balance"`
	QuotedAt      time.Time       `json:"quoted_at"`
}

func NewQuote(snapshot cartstore.Snapshot, deliveryFee, walletBalance decimal.Decimal) Quote {
	return Quote{
		CartID:        snapshot.CartID,
		CartRevision:  snapshot.Revision,
		BasketValue:   snapshot.TotalPrice,
		DeliveryFee:   money.Round(deliveryFee),
		TotalAmount:   money.Sum(snapshot.TotalPrice, deliveryFee),
		WalletBalance: money.Round(walletBalance),
		QuotedAt:      time.Now(),
	}
}

func (q Quote) Sufficient() bool {
	return CanSubmit(q.BasketValue, q.DeliveryFee, q.WalletBalance)
}

// Shortfall is the amount the wallet must be topped up by. Zero when the
// quote is sufficient.
func (q Quote) Shortfall() decimal.Decimal {
	if q.Sufficient() {
		return decimal.Zero
	}
	return money.Round(q.TotalAmount.Sub(q.WalletBalance))
}

// FreshFor reports whether the quote was taken at the given cart revision.
func (q Quote) FreshFor(revision uint64) bool {
	return q.CartRevision == revision
}
