// Package api is the storefront's HTTP surface: supermarket selection, the
// cart, checkout and order history for the owner named by X-User-ID.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/example/grocery-storefront/internal/session"
	"github.com/example/grocery-storefront/internal/storefront/cartstore"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Handlers struct {
	sessions *session.Registry
	logger   *zap.Logger
}

func NewHandlers(sessions *session.Registry, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		sessions: sessions,
		logger:   logger.Named("api"),
	}
}

// Session Handlers

func (h *Handlers) SelectSupermarket(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SupermarketID string `json:"supermarket_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := h.sessions.Open(r.Context(), getUserID(r), req.SupermarketID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newCartResponse(sess.Cart.Snapshot()))
}

// Cart Handlers

type lineResponse struct {
	ItemID    string          `json:"item_id"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Total     decimal.Decimal `json:"total"`
}

type cartResponse struct {
	CartID        string          `json:"cart_id,omitempty"`
	SupermarketID string          `json:"supermarket_id"`
	Lines         []lineResponse  `json:"lines"`
	ItemCount     int             `json:"item_count"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	Revision      uint64          `json:"revision"`
	Stale         bool            `json:"stale,omitempty"`
	Error         string          `json:"error,omitempty"`
}

func newCartResponse(snap cartstore.Snapshot) cartResponse {
	lines := make([]lineResponse, 0, len(snap.Lines))
	for _, l := range snap.Lines {
		lines = append(lines, lineResponse{ItemID: l.ItemID, UnitPrice: l.UnitPrice, Quantity: l.Quantity, Total: l.Total()})
	}
	return cartResponse{
		CartID:        snap.CartID,
		SupermarketID: snap.SupermarketID,
		Lines:         lines,
		ItemCount:     snap.Quantity(),
		TotalPrice:    snap.TotalPrice,
		Revision:      snap.Revision,
	}
}

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, newCartResponse(sess.Cart.Snapshot()))
}

// RefreshCart answers 200 even when the backend is down; the last good cart
// is returned with stale set.
func (h *Handlers) RefreshCart(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	snap, err := sess.Cart.Refresh(r.Context())
	resp := newCartResponse(snap)
	if err != nil {
		resp.Stale = true
		resp.Error = err.Error()
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req struct {
		ItemID    string          `json:"item_id"`
		UnitPrice decimal.Decimal `json:"unit_price"`
		Quantity  *int            `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	sess.Checkout.Reset()
	if err := sess.Cart.AddItem(r.Context(), req.ItemID, req.UnitPrice, quantity); err != nil {
		h.writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newCartResponse(sess.Cart.Snapshot()))
}

func (h *Handlers) SetQuantity(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess.Checkout.Reset()
	if err := sess.Cart.SetQuantity(r.Context(), chi.URLParam(r, "itemID"), req.Quantity); err != nil {
		h.writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newCartResponse(sess.Cart.Snapshot()))
}

// RemoveFromCart removes ?quantity=N units, or the whole line without it.
func (h *Handlers) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	quantity, removeCompletely := 0, true
	if q := r.URL.Query().Get("quantity"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil {
			respondError(w, http.StatusBadRequest, "quantity must be a number")
			return
		}
		quantity, removeCompletely = n, false
	}

	sess.Checkout.Reset()
	if err := sess.Cart.RemoveItem(r.Context(), chi.URLParam(r, "itemID"), quantity, removeCompletely); err != nil {
		h.writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newCartResponse(sess.Cart.Snapshot()))
}

func (h *Handlers) EmptyCart(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	sess.Checkout.Reset()
	if err := sess.Cart.Empty(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newCartResponse(sess.Cart.Snapshot()))
}

func (h *Handlers) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := h.sessions.Get(getUserID(r))
	if err != nil {
		h.writeError(w, err)
		return nil, false
	}
	return sess, true
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// getUserID reads the owner from the X-User-ID header
func getUserID(r *http.Request) string {
	if userID := r.Header.Get("X-User-ID"); userID != "" {
		return userID
	}
	return "default-user"
}
