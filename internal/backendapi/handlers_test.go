package backendapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/grocery-storefront/internal/backend"
	"github.com/example/grocery-storefront/internal/backend/httpclient"
	"github.com/example/grocery-storefront/internal/command"
	"github.com/example/grocery-storefront/internal/infrastructure/store"
	"github.com/example/grocery-storefront/internal/projection"
	"github.com/example/grocery-storefront/internal/query"
	"github.com/example/grocery-storefront/internal/readmodel"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testBackend struct {
	server    *httptest.Server
	client    *httpclient.Client
	handler   *command.Handler
	readStore store.ReadStoreInterface
}

// newTestBackend runs the backend in memory with synchronous projection and
// no scheduler; shared carts are closed by calling the command handler.
func newTestBackend(t *testing.T) *testBackend {
	t.Helper()
	readStore := store.NewReadStore()
	projector := projection.NewProjector(readStore, nil)
	eventStore := store.NewEventStore(projector.Publisher())

	svcs := command.NewServices(eventStore, nil)
	cmd := command.NewHandler(svcs, readStore, nil, command.Config{
		DeliveryFee: decimal.RequireFromString("6"),
		Slots:       []string{"9am", "6pm"},
	}, nil)
	q := query.NewHandler(readStore, svcs.Carts, svcs.Wallets, []string{"9am", "6pm"}, nil)

	server := httptest.NewServer(NewRouter(NewHandlers(cmd, q, nil), nil))
	t.Cleanup(server.Close)
	return &testBackend{
		server:  server,
		client:  httpclient.New(httpclient.Config{BaseURL: server.URL}, nil),
		handler:   cmd,
		readStore: readStore,
	}
}

func (b *testBackend) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(b.server.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// seedShopper registers userID with the shared test building and a balance.
func (b *testBackend) seedShopper(t *testing.T, userID, balance string) string {
	t.Helper()
	resp := b.post(t, "/users/"+userID, map[string]string{"name": userID, "email": userID + "@example.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = b.post(t, "/users/"+userID+"/addresses", map[string]string{"address_details": "Building A"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var addr backend.Address
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&addr))

	resp = b.post(t, "/wallets/"+userID+"/top-up", map[string]string{"amount": balance})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return addr.AddressID
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// ============================================
// Cart Endpoint Tests
// ============================================

func TestBackendAPI_CartLifecycle(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	cartID, err := b.client.CreateCart(ctx, "alice", "market-1")
	require.NoError(t, err)
	require.NotEmpty(t, cartID)

	c, err := b.client.AddItem(ctx, cartID, "apple", 3, d("1.50"))
	require.NoError(t, err)
	assert.Equal(t, "4.50", c.TotalPrice.StringFixed(2))

	c, err = b.client.AddItem(ctx, cartID, "bread", 1, d("2"))
	require.NoError(t, err)
	c, err = b.client.RemoveItem(ctx, cartID, "apple", 1)
	require.NoError(t, err)
	require.Len(t, c.Items, 2)
	assert.Equal(t, 2, c.Items[0].Quantity)
	assert.Equal(t, "5.00", c.TotalPrice.StringFixed(2))

	c, err = b.client.RemoveItem(ctx, cartID, "bread", 0)
	require.NoError(t, err)
	assert.Len(t, c.Items, 1)

	require.NoError(t, b.client.EmptyCart(ctx, cartID))
	c, err = b.client.FetchCart(ctx, cartID)
	require.NoError(t, err)
	assert.Empty(t, c.Items)
	assert.Equal(t, "active", c.Status)
}

func TestBackendAPI_CartErrors(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	_, err := b.client.FetchCart(ctx, "cart-missing")
	assert.ErrorIs(t, err, backend.ErrNotFound)

	cartID, err := b.client.CreateCart(ctx, "alice", "market-1")
	require.NoError(t, err)
	_, err = b.client.AddItem(ctx, cartID, "apple", 0, d("1"))
	var rejected *backend.RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusBadRequest, rejected.Status)

	_, err = b.client.RemoveItem(ctx, cartID, "ghost", 0)
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func TestBackendAPI_RemoveItem_BadQuantity(t *testing.T) {
	b := newTestBackend(t)

	req, err := http.NewRequest(http.MethodDelete, b.server.URL+"/carts/cart-1/items/apple?quantity=abc", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// ============================================
// Checkout Endpoint Tests
// ============================================

func TestBackendAPI_SubmitCheckout_Now(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	addressID := b.seedShopper(t, "alice", "20")

	addresses, err := b.client.FetchAddresses(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, addresses, 1)
	assert.Equal(t, addressID, addresses[0].AddressID)

	slots, err := b.client.FetchDeliverySlots(ctx, "market-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"9am", "6pm"}, slots)

	cartID, err := b.client.CreateCart(ctx, "alice", "market-1")
	require.NoError(t, err)
	_, err = b.client.AddItem(ctx, cartID, "apple", 3, d("1.50"))
	require.NoError(t, err)

	req := backend.CheckoutRequest{
		AttemptID: "attempt-1", CartID: cartID, OwnerID: "alice",
		SupermarketID: "market-1", AddressID: addressID, Slot: "now",
	}
	result, err := b.client.SubmitCheckout(ctx, req)
	require.NoError(t, err)
	assert.NotEmpty(t, result.OrderID)
	assert.Equal(t, "10.50", result.TotalAmount.StringFixed(2))

	again, err := b.client.SubmitCheckout(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, result.OrderID, again.OrderID)

	balance, err := b.client.FetchWalletBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "9.50", balance.StringFixed(2))

	orders, err := b.client.FetchOrders(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, result.OrderID, orders[0].OrderID)
	assert.Equal(t, "pending", orders[0].Status)
	assert.Equal(t, "10.50", orders[0].TotalCost.StringFixed(2))
	require.Len(t, orders[0].Items, 1)
	assert.Equal(t, "4.50", orders[0].Items[0].TotalCost.StringFixed(2))
}

func TestBackendAPI_SubmitCheckout_InsufficientFunds(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	addressID := b.seedShopper(t, "alice", "5")
	cartID, err := b.client.CreateCart(ctx, "alice", "market-1")
	require.NoError(t, err)
	_, err = b.client.AddItem(ctx, cartID, "apple", 3, d("1.50"))
	require.NoError(t, err)

	_, err = b.client.SubmitCheckout(ctx, backend.CheckoutRequest{
		AttemptID: "attempt-1", CartID: cartID, OwnerID: "alice",
		SupermarketID: "market-1", AddressID: addressID, Slot: "now",
	})

	var rejected *backend.RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusPaymentRequired, rejected.Status)
	assert.Contains(t, rejected.Message, "insufficient")
}

func TestBackendAPI_SharedOrder_Visibility(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	for _, user := range []string{"alice", "bob"} {
		addressID := b.seedShopper(t, user, "20")
		cartID, err := b.client.CreateCart(ctx, user, "market-1")
		require.NoError(t, err)
		_, err = b.client.AddItem(ctx, cartID, "milk", 2, d("1"))
		require.NoError(t, err)
		result, err := b.client.SubmitCheckout(ctx, backend.CheckoutRequest{
			AttemptID: "attempt-" + user, CartID: cartID, OwnerID: user,
			SupermarketID: "market-1", AddressID: addressID, Slot: "6pm",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, result.SharedCartID)
	}

	orders, err := b.client.FetchOrders(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, orders, "no order until the shared cart closes")

	n, err := b.handler.ResumeScheduled(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "one open round is visible in the read model")
	sharedOrders := closeAll(t, b)
	require.Len(t, sharedOrders, 1)

	orders, err = b.client.FetchOrders(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Len(t, orders[0].Contributions, 1)
	assert.Equal(t, "bob", orders[0].Contributions[0].UserID)
	assert.Equal(t, "5.00", orders[0].Contributions[0].TotalContribution.StringFixed(2))

	detail, err := b.client.FetchOrderDetail(ctx, orders[0].OrderID, "bob")
	require.NoError(t, err)
	assert.Len(t, detail.Contributions, 2)
	assert.Equal(t, "10.00", detail.TotalCost.StringFixed(2))

	_, err = b.client.FetchOrderDetail(ctx, orders[0].OrderID, "mallory")
	assert.ErrorIs(t, err, backend.ErrNotFound)

	balance, err := b.client.FetchWalletBalance(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "15.00", balance.StringFixed(2), "20 - 2 items - 3 fee share")
}

// closeAll closes every open shared cart round, as the scheduler would.
func closeAll(t *testing.T, b *testBackend) []string {
	t.Helper()
	all, err := b.readStore.GetAll(context.Background(), readmodel.SharedCarts)
	require.NoError(t, err)

	var ids []string
	for _, item := range all {
		sc := item.(*readmodel.SharedCartReadModel)
		if sc.Status != "open" {
			continue
		}
		o, err := b.handler.CloseSharedCart(context.Background(), sc.ID, sc.Round)
		require.NoError(t, err)
		ids = append(ids, o.ID)
	}
	return ids
}

// ============================================
// Order Endpoint Tests
// ============================================

func TestBackendAPI_CancelOrder(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	addressID := b.seedShopper(t, "alice", "20")
	cartID, err := b.client.CreateCart(ctx, "alice", "market-1")
	require.NoError(t, err)
	_, err = b.client.AddItem(ctx, cartID, "apple", 1, d("4"))
	require.NoError(t, err)
	result, err := b.client.SubmitCheckout(ctx, backend.CheckoutRequest{
		AttemptID: "attempt-1", CartID: cartID, OwnerID: "alice",
		SupermarketID: "market-1", AddressID: addressID, Slot: "now",
	})
	require.NoError(t, err)

	resp := b.post(t, "/orders/"+result.OrderID+"/cancel", map[string]string{"requester_id": "bob"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = b.post(t, "/orders/"+result.OrderID+"/cancel", map[string]string{"requester_id": "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = b.post(t, "/orders/"+result.OrderID+"/cancel", map[string]string{"requester_id": "alice"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	detail, err := b.client.FetchOrderDetail(ctx, result.OrderID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "canceled", detail.Status)

	balance, err := b.client.FetchWalletBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "20.00", balance.StringFixed(2))
}

func TestBackendAPI_InvalidBody(t *testing.T) {
	b := newTestBackend(t)

	resp, err := http.Post(b.server.URL+"/checkouts", "application/json", bytes.NewBufferString("{"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body backend.ErrorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body.Error, "invalid request body")
}

func TestBackendAPI_Health(t *testing.T) {
	b := newTestBackend(t)

	resp, err := http.Get(b.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
