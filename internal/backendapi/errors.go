package backendapi

import (
	"errors"
	"net/http"

	"github.com/example/grocery-storefront/internal/command"
	"github.com/example/grocery-storefront/internal/domain/account"
	"github.com/example/grocery-storefront/internal/domain/cart"
	"github.com/example/grocery-storefront/internal/domain/order"
	"github.com/example/grocery-storefront/internal/domain/sharedcart"
	"github.com/example/grocery-storefront/internal/domain/submission"
	"github.com/example/grocery-storefront/internal/domain/wallet"
	"github.com/example/grocery-storefront/internal/query"
	"go.uber.org/zap"
)

var statusByError = []struct {
	err    error
	status int
}{
	{wallet.ErrInsufficientBalance, http.StatusPaymentRequired},

	{command.ErrInvalidCheckout, http.StatusBadRequest},
	{command.ErrUnknownAddress, http.StatusBadRequest},
	{command.ErrUnknownSlot, http.StatusBadRequest},
	{cart.ErrInvalidCart, http.StatusBadRequest},
	{cart.ErrInvalidQuantity, http.StatusBadRequest},
	{cart.ErrInvalidItem, http.StatusBadRequest},
	{cart.ErrInvalidPrice, http.StatusBadRequest},
	{wallet.ErrInvalidAmount, http.StatusBadRequest},
	{wallet.ErrInvalidOwner, http.StatusBadRequest},
	{account.ErrInvalidUser, http.StatusBadRequest},
	{account.ErrInvalidEmail, http.StatusBadRequest},
	{account.ErrInvalidAddress, http.StatusBadRequest},
	{submission.ErrInvalidAttempt, http.StatusBadRequest},
	{sharedcart.ErrNoItems, http.StatusBadRequest},
	{sharedcart.ErrInvalidKey, http.StatusBadRequest},

	{command.ErrNotOrderOwner, http.StatusForbidden},

	{cart.ErrCartNotFound, http.StatusNotFound},
	{cart.ErrItemNotInCart, http.StatusNotFound},
	{order.ErrOrderNotFound, http.StatusNotFound},
	{query.ErrOrderNotFound, http.StatusNotFound},
	{account.ErrAccountNotFound, http.StatusNotFound},
	{sharedcart.ErrSharedCartNotFound, http.StatusNotFound},

	{cart.ErrCartInactive, http.StatusConflict},
	{command.ErrEmptyCart, http.StatusConflict},
	{command.ErrCartMismatch, http.StatusConflict},
	{command.ErrAttemptConflict, http.StatusConflict},
	{order.ErrOrderCompleted, http.StatusConflict},
	{order.ErrOrderCanceled, http.StatusConflict},
	{order.ErrInvalidStatus, http.StatusConflict},
	{sharedcart.ErrSharedCartClosed, http.StatusConflict},
	{sharedcart.ErrRoundMismatch, http.StatusConflict},
}

func statusFor(err error) int {
	for _, e := range statusByError {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
		respondError(w, status, "internal error")
		return
	}
	respondError(w, status, err.Error())
}
