package api

import (
	"errors"
	"net/http"

	"github.com/example/grocery-storefront/internal/backend"
	"github.com/example/grocery-storefront/internal/session"
	"github.com/example/grocery-storefront/internal/storefront/cartstore"
	"github.com/example/grocery-storefront/internal/storefront/checkout"
	"github.com/example/grocery-storefront/internal/storefront/ledger"
	"go.uber.org/zap"
)

// statusFor maps storefront errors to HTTP status codes. An unavailable
// backend wins over anything it wraps.
func statusFor(err error) int {
	var rejected *backend.RejectedError
	switch {
	case errors.Is(err, backend.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, cartstore.ErrInvalidQuantity),
		errors.Is(err, cartstore.ErrInvalidItem),
		errors.Is(err, cartstore.ErrInvalidPrice),
		errors.Is(err, checkout.ErrUnknownAddress),
		errors.Is(err, checkout.ErrUnknownSlot),
		errors.Is(err, session.ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, checkout.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, checkout.ErrIncompleteCheckout),
		errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrAlreadySubmitting),
		errors.Is(err, cartstore.ErrCheckoutInProgress),
		errors.Is(err, checkout.ErrAlreadyCompleted),
		errors.Is(err, checkout.ErrStaleQuote),
		errors.Is(err, session.ErrNoSession),
		errors.Is(err, session.ErrActiveCart):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrOrderNotFound),
		errors.Is(err, cartstore.ErrUnknownItem),
		errors.Is(err, backend.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &rejected):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	respondError(w, status, err.Error())
}
