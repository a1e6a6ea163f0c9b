// Package httpclient is the REST implementation of backend.Client. Every call
// goes through a circuit breaker; an open breaker, a transport error and a
// 5xx answer all surface as backend.ErrServiceUnavailable.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/grocery-storefront/internal/backend"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

var _ backend.Client = (*Client)(nil)

type Config struct {
	BaseURL string
	Timeout time.Duration
	// ConsecutiveFailures opens the breaker. Zero means 5.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open. Zero means 30s.
	OpenTimeout time.Duration
}

type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("backend")
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	failures := cfg.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "grocery-backend",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// 4xx answers and caller cancellation do not count as failures
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, backend.ErrServiceUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
		logger:  logger,
	}
}

func (c *Client) CreateCart(ctx context.Context, ownerID, supermarketID string) (string, error) {
	var out struct {
		CartID string `json:"cart_id"`
	}
	body := map[string]string{"owner_id": ownerID, "supermarket_id": supermarketID}
	if err := c.do(ctx, http.MethodPost, "/carts", body, &out); err != nil {
		return "", err
	}
	return out.CartID, nil
}

func (c *Client) FetchCart(ctx context.Context, cartID string) (*backend.Cart, error) {
	var cart backend.Cart
	if err := c.do(ctx, http.MethodGet, "/carts/"+url.PathEscape(cartID), nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

func (c *Client) AddItem(ctx context.Context, cartID, itemID string, quantity int, unitPrice decimal.Decimal) (*backend.Cart, error) {
	body := struct {
		ItemID   string          `json:"item_id"`
		Quantity int             `json:"quantity"`
		Price    decimal.Decimal `json:"price"`
	}{itemID, quantity, unitPrice}

	var cart backend.Cart
	if err := c.do(ctx, http.MethodPost, "/carts/"+url.PathEscape(cartID)+"/items", body, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

func (c *Client) RemoveItem(ctx context.Context, cartID, itemID string, quantity int) (*backend.Cart, error) {
	path := "/carts/" + url.PathEscape(cartID) + "/items/" + url.PathEscape(itemID)
	if quantity > 0 {
		path += "?quantity=" + strconv.Itoa(quantity)
	}
	var cart backend.Cart
	if err := c.do(ctx, http.MethodDelete, path, nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

func (c *Client) EmptyCart(ctx context.Context, cartID string) error {
	return c.do(ctx, http.MethodDelete, "/carts/"+url.PathEscape(cartID)+"/items", nil, nil)
}

func (c *Client) FetchAddresses(ctx context.Context, ownerID string) ([]backend.Address, error) {
	addresses := []backend.Address{}
	if err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(ownerID)+"/addresses", nil, &addresses); err != nil {
		return nil, err
	}
	return addresses, nil
}

func (c *Client) FetchWalletBalance(ctx context.Context, ownerID string) (decimal.Decimal, error) {
	var wallet backend.Wallet
	if err := c.do(ctx, http.MethodGet, "/wallets/"+url.PathEscape(ownerID), nil, &wallet); err != nil {
		return decimal.Zero, err
	}
	return wallet.Balance, nil
}

func (c *Client) FetchDeliverySlots(ctx context.Context, supermarketID string) ([]string, error) {
	var out struct {
		Slots []string `json:"slots"`
	}
	if err := c.do(ctx, http.MethodGet, "/supermarkets/"+url.PathEscape(supermarketID)+"/slots", nil, &out); err != nil {
		return nil, err
	}
	if out.Slots == nil {
		out.Slots = []string{}
	}
	return out.Slots, nil
}

func (c *Client) SubmitCheckout(ctx context.Context, req backend.CheckoutRequest) (*backend.CheckoutResult, error) {
	var result backend.CheckoutResult
	if err := c.do(ctx, http.MethodPost, "/checkouts", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) FetchOrders(ctx context.Context, ownerID string) ([]backend.Order, error) {
	var orders []backend.Order
	if err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(ownerID)+"/orders", nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (c *Client) FetchOrderDetail(ctx context.Context, orderID, requesterID string) (*backend.Order, error) {
	path := "/orders/" + url.PathEscape(orderID)
	if requesterID != "" {
		path += "?requester=" + url.QueryEscape(requesterID)
	}
	var order backend.Order
	if err := c.do(ctx, http.MethodGet, path, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// do sends one request through the breaker and decodes a 2xx body into out.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	data, err := c.breaker.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, method, path, in)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s %s: %w: %w", method, path, backend.ErrServiceUnavailable, err)
	}
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w: %w", method, path, backend.ErrServiceUnavailable, err)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, in any) ([]byte, error) {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("%s %s: encode request: %w", method, path, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s %s: %w", method, path, ctxErr)
		}
		return nil, fmt.Errorf("%s %s: %w: %w", method, path, backend.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s %s: read response: %w", method, path, ctxErr)
		}
		return nil, fmt.Errorf("%s %s: read response: %w: %w", method, path, backend.ErrServiceUnavailable, err)
	}

	c.logger.Debug("backend call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%s %s returned %d: %w", method, path, resp.StatusCode, backend.ErrServiceUnavailable)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s %s: %w", method, path, backend.ErrNotFound)
	case resp.StatusCode >= 400:
		return nil, &backend.RejectedError{Status: resp.StatusCode, Message: errorMessage(data, resp.Status)}
	}
	return data, nil
}

func errorMessage(data []byte, fallback string) string {
	var body backend.ErrorBody
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		return body.Error
	}
	if msg := strings.TrimSpace(string(data)); msg != "" {
		return msg
	}
	return fallback
}
