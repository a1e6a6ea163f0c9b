package ledger

import (
	"encoding/json"
	"time"

	"github.com/example/grocery-storefront/internal/backend"
	"github.com/example/grocery-storefront/internal/money"
	"github.com/shopspring/decimal"
)

// Kind tells a normal order from a shared one. It is sealed: the only
// implementations are Normal and Shared.
type Kind interface {
	kind() string
}

type Normal struct{}

func (Normal) kind() string { return "normal" }

// Shared is an order placed from a shared cart. In a summary Contributions
// holds only the requester's own share; a detail carries the full roster.
type Shared struct {
	SharedCartID  string
	Contributions []Contribution
}

func (Shared) kind() string { return "shared" }

type Contribution struct {
	UserID                  string          `json:"user_id"`
	Name                    string          `json:"name,omitempty"`
	TotalContribution       decimal.Decimal `json:"total_contribution"`
	DeliveryFeeContribution decimal.Decimal `json:"delivery_fee_contribution"`
}

type Item struct {
	ItemID    string          `json:"item_id"`
	Name      string          `json:"name,omitempty"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	TotalCost decimal.Decimal `json:"total_cost"`
}

type Order struct {
	ID          string
	Items       []Item
	TotalCost   decimal.Decimal
	DeliveryFee decimal.Decimal
	Status      string
	CreatedAt   time.Time
	Kind        Kind
}

func (o Order) IsShared() bool {
	_, ok := o.Kind.(Shared)
	return ok
}

// MarshalJSON flattens Kind into a "kind" tag plus the shared fields.
func (o Order) MarshalJSON() ([]byte, error) {
	out := struct {
		ID            string          `json:"order_id"`
		Kind          string          `json:"kind"`
		SharedCartID  string          `json:"shared_cart_id,omitempty"`
		Status        string          `json:"status"`
		Items         []Item          `json:"items"`
		TotalCost     decimal.Decimal `json:"total_cost"`
		DeliveryFee   decimal.Decimal `json:"delivery_fee"`
		Contributions []Contribution  `json:"contributors,omitempty"`
		CreatedAt     time.Time       `json:"created_at"`
	}{
		ID:          o.ID,
		Kind:        Normal{}.kind(),
		Status:      o.Status,
		Items:       o.Items,
		TotalCost:   o.TotalCost,
		DeliveryFee: o.DeliveryFee,
		CreatedAt:   o.CreatedAt,
	}
	if out.Items == nil {
		out.Items = []Item{}
	}
	if s, ok := o.Kind.(Shared); ok {
		out.Kind = s.kind()
		out.SharedCartID = s.SharedCartID
		out.Contributions = s.Contributions
	}
	return json.Marshal(out)
}

// FromBackend converts a wire order. An order with a shared cart id is Shared.
func FromBackend(b backend.Order) Order {
	o := Order{
		ID:          b.OrderID,
		TotalCost:   money.Round(b.TotalCost),
		DeliveryFee: money.Round(b.DeliveryFee),
		Status:      b.Status,
		CreatedAt:   b.CreatedAt,
		Kind:        Normal{},
	}
	for _, item := range b.Items {
		total := item.TotalCost
		if total.IsZero() {
			total = money.LineTotal(item.Price, item.Quantity)
		}
		o.Items = append(o.Items, Item{
			ItemID:    item.ItemID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			Price:     money.Round(item.Price),
			TotalCost: money.Round(total),
		})
	}
	if b.SharedCartID != "" {
		shared := Shared{SharedCartID: b.SharedCartID}
		for _, c := range b.Contributions {
			shared.Contributions = append(shared.Contributions, Contribution{
				UserID:                  c.UserID,
				Name:                    c.Name,
				TotalContribution:       money.Round(c.TotalContribution),
				DeliveryFeeContribution: money.Round(c.DeliveryFeeContribution),
			})
		}
		o.Kind = shared
	}
	return o
}
