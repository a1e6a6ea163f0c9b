package wallet

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventWalletCredited = "WalletCredited"
	EventWalletDebited  = "WalletDebited"
)

// Credit reasons
const (
	ReasonTopUp  = "top_up"
	ReasonRefund = "refund"
)

type WalletCredited struct {
	OwnerID   string          `json:"owner_id"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
	Reference string          `json:"reference,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type WalletDebited struct {
	OwnerID   string          `json:"owner_id"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
	CreatedAt time.Time       `json:"created_at"`
}
