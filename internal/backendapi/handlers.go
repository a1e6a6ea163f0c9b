// Package backendapi serves the reference grocery backend over REST in the
// shape internal/backend/httpclient consumes.
package backendapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/example/grocery-storefront/internal/backend"
	"github.com/example/grocery-storefront/internal/command"
	"github.com/example/grocery-storefront/internal/domain/cart"
	"github.com/example/grocery-storefront/internal/query"
	"github.com/example/grocery-storefront/internal/readmodel"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Handlers struct {
	cmd    *command.Handler
	query  *query.Handler
	logger *zap.Logger
}

func NewHandlers(cmd *command.Handler, q *query.Handler, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{cmd: cmd, query: q, logger: logger.Named("backendapi")}
}

// Cart Handlers

func (h *Handlers) CreateCart(w http.ResponseWriter, r *http.Request) {
	var req command.CreateCart
	if !decode(w, r, &req) {
		return
	}
	c, err := h.cmd.CreateCart(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"cart_id": c.ID})
}

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.query.GetCart(r.Context(), chi.URLParam(r, "cartID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cartResponse(c))
}

func (h *Handlers) AddItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ItemID   string          `json:"item_id"`
		Quantity int             `json:"quantity"`
		Price    decimal.Decimal `json:"price"`
	}
	if !decode(w, r, &req) {
		return
	}
	c, err := h.cmd.AddToCart(r.Context(), command.AddToCart{
		CartID:   chi.URLParam(r, "cartID"),
		ItemID:   req.ItemID,
		Quantity: req.Quantity,
		Price:    req.Price,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cartResponse(c))
}

// RemoveItem removes ?quantity=N units, or the whole line without it.
func (h *Handlers) RemoveItem(w http.ResponseWriter, r *http.Request) {
	quantity := 0
	if q := r.URL.Query().Get("quantity"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "quantity must be a positive number")
			return
		}
		quantity = n
	}
	c, err := h.cmd.RemoveFromCart(r.Context(), command.RemoveFromCart{
		CartID:   chi.URLParam(r, "cartID"),
		ItemID:   chi.URLParam(r, "itemID"),
		Quantity: quantity,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cartResponse(c))
}

func (h *Handlers) EmptyCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.cmd.EmptyCart(r.Context(), command.EmptyCart{CartID: chi.URLParam(r, "cartID")})
	if err != nil {
		h.writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cartResponse(c))
}

func cartResponse(c *cart.Cart) backend.Cart {
	items := make([]backend.CartItem, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, backend.CartItem{ItemID: item.ItemID, Quantity: item.Quantity, Price: item.Price})
	}
	return backend.Cart{
		CartID:        c.ID,
		OwnerID:       c.OwnerID,
		SupermarketID: c.SupermarketID,
		Status:        string(c.Status),
		Items:         items,
		TotalPrice:    c.Total(),
	}
}

// Account Handlers

func (h *Handlers) RegisterAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if !decode(w, r, &req) {
		return
	}
	a, err := h.cmd.RegisterAccount(r.Context(), command.RegisterAccount{
		UserID: chi.URLParam(r, "userID"),
		Name:   req.Name,
		Email:  req.Email,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"user_id": a.UserID, "name": a.Name, "email": a.Email})
}

func (h *Handlers) GetAddresses(w http.ResponseWriter, r *http.Request) {
	addresses, err := h.query.Addresses(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]backend.Address, 0, len(addresses))
	for _, a := range addresses {
		out = append(out, backend.Address{AddressID: a.AddressID, Details: a.Details})
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handlers) AddAddress(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Details string `json:"address_details"`
	}
	if !decode(w, r, &req) {
		return
	}
	addr, err := h.cmd.AddAddress(r.Context(), command.AddAddress{UserID: chi.URLParam(r, "userID"), Details: req.Details})
	if err != nil {
		h.writeError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, backend.Address{AddressID: addr.AddressID, Details: addr.Details})
}

// Wallet Handlers

func (h *Handlers) GetWallet(w http.ResponseWriter, r *http.Request) {
	wal, err := h.query.GetWallet(r.Context(), chi.URLParam(r, "ownerID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, backend.Wallet{OwnerID: wal.OwnerID, Balance: wal.Balance})
}

func (h *Handlers) TopUpWallet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	wal, err := h.cmd.TopUpWallet(r.Context(), command.TopUpWallet{OwnerID: chi.URLParam(r, "ownerID"), Amount: req.Amount})
	if err != nil {
		h.writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, backend.Wallet{OwnerID: wal.OwnerID, Balance: wal.Balance})
}

// Checkout Handlers

func (h *Handlers) GetSlots(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string][]string{"slots": h.query.Slots(chi.URLParam(r, "supermarketID"))})
}

func (h *Handlers) SubmitCheckout(w http.ResponseWriter, r *http.Request) {
	var req backend.CheckoutRequest
	if !decode(w, r, &req) {
		return
	}
	result, err := h.cmd.SubmitCheckout(r.Context(), command.SubmitCheckout{
		AttemptID:     req.AttemptID,
		CartID:        req.CartID,
		OwnerID:       req.OwnerID,
		SupermarketID: req.SupermarketID,
		AddressID:     req.AddressID,
		Slot:          req.Slot,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, backend.CheckoutResult{
		OrderID:      result.OrderID,
		SharedCartID: result.SharedCartID,
		DeliveryTime: result.DeliveryTime,
		Message:      result.Message,
		BasketValue:  result.BasketValue,
		DeliveryFee:  result.DeliveryFee,
		TotalAmount:  result.TotalAmount,
	})
}

// Order Handlers

func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.query.ListOrdersByUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]backend.Order, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderResponse(o))
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.query.GetOrder(r.Context(), chi.URLParam(r, "orderID"), r.URL.Query().Get("requester"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, orderResponse(o))
}

func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RequesterID string `json:"requester_id"`
		Reason      string `json:"reason"`
	}
	if !decode(w, r, &req) {
		return
	}
	o, err := h.cmd.CancelOrder(r.Context(), command.CancelOrder{
		OrderID:     chi.URLParam(r, "orderID"),
		RequesterID: req.RequesterID,
		Reason:      req.Reason,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"order_id": o.ID, "status": string(o.Status)})
}

func (h *Handlers) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.cmd.CompleteOrder(r.Context(), command.CompleteOrder{OrderID: chi.URLParam(r, "orderID")})
	if err != nil {
		h.writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"order_id": o.ID, "status": string(o.Status)})
}

func orderResponse(o *readmodel.OrderReadModel) backend.Order {
	items := make([]backend.OrderItem, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, backend.OrderItem{
			ItemID:    item.ItemID,
			Quantity:  item.Quantity,
			Price:     item.Price,
			TotalCost: item.TotalCost,
		})
	}
	var contributions []backend.Contribution
	for _, c := range o.Contributors {
		contributions = append(contributions, backend.Contribution{
			UserID:                  c.UserID,
			Name:                    c.Name,
			TotalContribution:       c.TotalContribution,
			DeliveryFeeContribution: c.DeliveryFeeContribution,
		})
	}
	return backend.Order{
		OrderID:       o.ID,
		OwnerID:       o.OwnerID,
		SharedCartID:  o.SharedCartID,
		Status:        o.Status,
		Items:         items,
		TotalCost:     o.TotalAmount,
		DeliveryFee:   o.DeliveryFee,
		Contributions: contributions,
		CreatedAt:     o.CreatedAt,
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, backend.ErrorBody{Error: message})
}
