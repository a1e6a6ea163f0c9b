package cartstore

import (
	"context"
	"errors"
	"time"

	"github.com/example/grocery-storefront/internal/money"
	"github.com/shopspring/decimal"
)

// ErrCacheMiss is returned by a SnapshotCache that holds nothing for the owner.
var ErrCacheMiss = errors.New("cart snapshot not cached")

// SnapshotCache keeps the last good snapshot per owner so a session can be
// resumed after a restart or shown while the backend is down.
type SnapshotCache interface {
	Get(ctx context.Context, ownerID string) (*Snapshot, error)
	Set(ctx context.Context, ownerID string, snapshot *Snapshot) error
	Delete(ctx context.Context, ownerID string) error
}

type Line struct {
	ItemID    string          `json:"item_id"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// Total is the line's unit price times its quantity.
func (l Line) Total() decimal.Decimal {
	return money.LineTotal(l.UnitPrice, l.Quantity)
}

// Snapshot is an immutable copy of the cart at one revision.
type Snapshot struct {
	CartID        string          `json:"cart_id,omitempty"`
	OwnerID       string          `json:"owner_id"`
	SupermarketID string          `json:"supermarket_id"`
	Lines         []Line          `json:"lines"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	Revision      uint64          `json:"revision"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (s Snapshot) IsEmpty() bool {
	return len(s.Lines) == 0
}

// Line returns the line for itemID.
func (s Snapshot) Line(itemID string) (Line, bool) {
	for _, l := range s.Lines {
		if l.ItemID == itemID {
			return l, true
		}
	}
	return Line{}, false
}

// Quantity returns the total unit count across all lines.
func (s Snapshot) Quantity() int {
	n := 0
	for _, l := range s.Lines {
		n += l.Quantity
	}
	return n
}

func totalOf(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Total())
	}
	return money.Round(total)
}

func indexOf(lines []Line, itemID string) int {
	for i, l := range lines {
		if l.ItemID == itemID {
			return i
		}
	}
	return -1
}
