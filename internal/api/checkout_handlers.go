package api

import (
	"encoding/json"
	"net/http"

	"github.com/example/grocery-storefront/internal/storefront/ledger"
	"github.com/example/grocery-storefront/internal/storefront/walletgate"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// Checkout Handlers

// GetCheckout loads addresses and slots on first use and returns the
// checkout view.
func (h *Handlers) GetCheckout(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if !sess.Checkout.Loaded() {
		if err := sess.Checkout.Load(r.Context()); err != nil {
			h.writeError(w, err)
			return
		}
	}
	respondJSON(w, http.StatusOK, sess.Checkout.View())
}

func (h *Handlers) SelectAddress(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req struct {
		AddressID string `json:"address_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := sess.Checkout.SelectAddress(req.AddressID); err != nil {
		h.writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess.Checkout.View())
}

func (h *Handlers) SelectSlot(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req struct {
		Slot string `json:"slot"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := sess.Checkout.SelectSlot(req.Slot); err != nil {
		h.writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess.Checkout.View())
}

func (h *Handlers) GetQuote(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	quote, err := sess.Checkout.Quote(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, struct {
		walletgate.Quote
		Sufficient bool            `json:"sufficient"`
		Shortfall  decimal.Decimal `json:"shortfall"`
	}{quote, quote.Sufficient(), quote.Shortfall()})
}

func (h *Handlers) SubmitCheckout(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	receipt, err := sess.Checkout.Submit(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, receipt)
}

// Order Handlers

func (h *Handlers) GetOrders(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	orders, err := sess.Orders.List(r.Context(), sess.OwnerID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	normal, shared := ledger.Classify(orders)
	if normal == nil {
		normal = []ledger.Order{}
	}
	if shared == nil {
		shared = []ledger.Order{}
	}
	respondJSON(w, http.StatusOK, map[string][]ledger.Order{
		"normal": normal,
		"shared": shared,
	})
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	detail, err := sess.Orders.Detail(r.Context(), chi.URLParam(r, "orderID"), sess.OwnerID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, struct {
		Order       ledger.Order `json:"order"`
		Discrepancy string       `json:"discrepancy,omitempty"`
	}{detail.Order, detail.Discrepancy()})
}
