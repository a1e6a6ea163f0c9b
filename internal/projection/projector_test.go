package projection

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/example/grocery-storefront/internal/domain/account"
	"github.com/example/grocery-storefront/internal/domain/cart"
	"github.com/example/grocery-storefront/internal/domain/order"
	"github.com/example/grocery-storefront/internal/domain/sharedcart"
	"github.com/example/grocery-storefront/internal/infrastructure/store"
	"github.com/example/grocery-storefront/internal/infrastructure/store/mocks"
	"github.com/example/grocery-storefront/internal/readmodel"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProjector() (*Projector, *mocks.MockReadStore) {
	readStore := mocks.NewMockReadStore()
	projector := NewProjector(readStore, nil)
	return projector, readStore
}

func makeEvent(aggregateType, eventType string, data any) []byte {
	jsonData, _ := json.Marshal(data)
	event := store.Event{
		ID:            "event-123",
		AggregateID:   "agg-123",
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          jsonData,
		Timestamp:     time.Now(),
	}
	result, _ := json.Marshal(event)
	return result
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var placedAt = time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)

func getOrder(t *testing.T, readStore *mocks.MockReadStore, id string) *readmodel.OrderReadModel {
	t.Helper()
	v, ok := readStore.GetData(readmodel.Orders, id)
	require.True(t, ok)
	return v.(*readmodel.OrderReadModel)
}

// ============================================
// Order Event Tests
// ============================================

func TestProjector_HandleOrderPlaced(t *testing.T) {
	projector, readStore := newTestProjector()
	ctx := context.Background()

	eventData := order.OrderPlaced{
		OrderID:       "order-1",
		OwnerID:       "alice",
		SupermarketID: "market-1",
		Slot:          "now",
		Items:         []order.OrderItem{{ItemID: "apple", Quantity: 3, Price: d("1.50")}},
		BasketValue:   d("4.50"),
		DeliveryFee:   d("6"),
		TotalAmount:   d("10.50"),
		PlacedAt:      placedAt,
	}

	err := projector.HandleEvent(ctx, []byte("order-1"), makeEvent(order.AggregateType, order.EventOrderPlaced, eventData))

	require.NoError(t, err)
	o := getOrder(t, readStore, "order-1")
	assert.Equal(t, "alice", o.OwnerID)
	assert.Equal(t, string(order.StatusPending), o.Status)
	assert.False(t, o.IsShared())
	require.Len(t, o.Items, 1)
	assert.Equal(t, "4.50", o.Items[0].TotalCost.StringFixed(2))
	assert.Equal(t, "10.50", o.TotalAmount.StringFixed(2))
	assert.Empty(t, o.Contributors)
	assert.True(t, placedAt.Equal(o.CreatedAt))
}

func TestProjector_HandleSharedOrderPlaced_NamesContributors(t *testing.T) {
	projector, readStore := newTestProjector()
	ctx := context.Background()
	readStore.SetData(readmodel.Accounts, "alice", &readmodel.AccountReadModel{UserID: "alice", Name: "Alice"})

	eventData := order.OrderPlaced{
		OrderID:      "order-2",
		OwnerID:      "alice",
		SharedCartID: "shared-1-r1",
		Items: []order.OrderItem{
			{ItemID: "apple", Quantity: 1, Price: d("2")},
			{ItemID: "bread", Quantity: 1, Price: d("3")},
		},
		BasketValue: d("5"),
		DeliveryFee: d("6"),
		TotalAmount: d("11"),
		Contributions: []order.Contribution{
			{UserID: "alice", ItemsTotal: d("2"), DeliveryFee: d("3")},
			{UserID: "bob", ItemsTotal: d("3"), DeliveryFee: d("3")},
		},
		PlacedAt: placedAt,
	}

	err := projector.HandleEvent(ctx, nil, makeEvent(order.AggregateType, order.EventOrderPlaced, eventData))

	require.NoError(t, err)
	o := getOrder(t, readStore, "order-2")
	assert.True(t, o.IsShared())
	require.Len(t, o.Contributors, 2)
	assert.Equal(t, "Alice", o.Contributors[0].Name)
	assert.Empty(t, o.Contributors[1].Name)
	assert.Equal(t, "6.00", o.Contributors[1].TotalContribution.StringFixed(2))
	assert.True(t, o.Involves("bob"))
	assert.False(t, o.Involves("carol"))
}

func TestProjector_HandleOrderCompleted(t *testing.T) {
	projector, readStore := newTestProjector()
	ctx := context.Background()
	original := &readmodel.OrderReadModel{ID: "order-1", Status: string(order.StatusPending)}
	readStore.SetData(readmodel.Orders, "order-1", original)

	eventData := order.OrderCompleted{OrderID: "order-1", CompletedAt: placedAt}
	err := projector.HandleEvent(ctx, nil, makeEvent(order.AggregateType, order.EventOrderCompleted, eventData))

	require.NoError(t, err)
	o := getOrder(t, readStore, "order-1")
	assert.Equal(t, string(order.StatusCompleted), o.Status)
	assert.Equal(t, string(order.StatusPending), original.Status, "stored models are replaced, not mutated")
}

func TestProjector_HandleOrderCanceled(t *testing.T) {
	projector, readStore := newTestProjector()
	ctx := context.Background()
	readStore.SetData(readmodel.Orders, "order-1", &readmodel.OrderReadModel{ID: "order-1", Status: string(order.StatusPending)})

	eventData := order.OrderCanceled{OrderID: "order-1", Reason: "changed my mind", CanceledAt: placedAt}
	err := projector.HandleEvent(ctx, nil, makeEvent(order.AggregateType, order.EventOrderCanceled, eventData))

	require.NoError(t, err)
	assert.Equal(t, string(order.StatusCanceled), getOrder(t, readStore, "order-1").Status)
}

func TestProjector_HandleOrderCompleted_UnknownOrder(t *testing.T) {
	projector, readStore := newTestProjector()

	eventData := order.OrderCompleted{OrderID: "order-missing", CompletedAt: placedAt}
	err := projector.HandleEvent(context.Background(), nil, makeEvent(order.AggregateType, order.EventOrderCompleted, eventData))

	require.NoError(t, err)
	_, ok := readStore.GetData(readmodel.Orders, "order-missing")
	assert.False(t, ok)
}

// ============================================
// Account Event Tests
// ============================================

func TestProjector_HandleAccountEvents(t *testing.T) {
	projector, readStore := newTestProjector()
	ctx := context.Background()

	err := projector.HandleEvent(ctx, nil, makeEvent(account.AggregateType, account.EventAddressAdded, account.AddressAdded{
		UserID: "alice", AddressID: "addr-1", Details: "1 Main St", AddedAt: placedAt,
	}))
	require.NoError(t, err)
	err = projector.HandleEvent(ctx, nil, makeEvent(account.AggregateType, account.EventAccountRegistered, account.AccountRegistered{
		UserID: "alice", Name: "Alice", Email: "alice@example.com", RegisteredAt: placedAt,
	}))
	require.NoError(t, err)

	v, ok := readStore.GetData(readmodel.Accounts, "alice")
	require.True(t, ok)
	a := v.(*readmodel.AccountReadModel)
	assert.Equal(t, "Alice", a.Name)
	assert.Equal(t, "alice@example.com", a.Email)
	assert.Equal(t, []readmodel.AddressReadModel{{AddressID: "addr-1", Details: "1 Main St"}}, a.Addresses)
}

// ============================================
// Shared Cart Event Tests
// ============================================

func TestProjector_HandleSharedCartLifecycle(t *testing.T) {
	projector, readStore := newTestProjector()
	ctx := context.Background()

	events := [][]byte{
		makeEvent(sharedcart.AggregateType, sharedcart.EventSharedCartOpened, sharedcart.SharedCartOpened{
			SharedCartID: "shared-1", Round: 2, SupermarketID: "market-1", AddressID: "addr-1", Slot: "6pm", OpenedAt: placedAt,
		}),
		makeEvent(sharedcart.AggregateType, sharedcart.EventContributorJoined, sharedcart.ContributorJoined{
			SharedCartID: "shared-1", Round: 2, UserID: "alice",
		}),
		makeEvent(sharedcart.AggregateType, sharedcart.EventContributorJoined, sharedcart.ContributorJoined{
			SharedCartID: "shared-1", Round: 2, UserID: "alice",
		}),
		makeEvent(sharedcart.AggregateType, sharedcart.EventContributorJoined, sharedcart.ContributorJoined{
			SharedCartID: "shared-1", Round: 2, UserID: "bob",
		}),
	}
	for _, e := range events {
		require.NoError(t, projector.HandleEvent(ctx, nil, e))
	}

	v, ok := readStore.GetData(readmodel.SharedCarts, "shared-1")
	require.True(t, ok)
	sc := v.(*readmodel.SharedCartReadModel)
	assert.Equal(t, "shared-1-r2", sc.RoundID)
	assert.Equal(t, "open", sc.Status)
	assert.Equal(t, []string{"alice", "bob"}, sc.Contributors)

	err := projector.HandleEvent(ctx, nil, makeEvent(sharedcart.AggregateType, sharedcart.EventSharedCartClosed, sharedcart.SharedCartClosed{
		SharedCartID: "shared-1", Round: 2, ClosedAt: placedAt,
	}))
	require.NoError(t, err)
	v, _ = readStore.GetData(readmodel.SharedCarts, "shared-1")
	assert.Equal(t, "closed", v.(*readmodel.SharedCartReadModel).Status)
}

// ============================================
// Replay and Edge Cases
// ============================================

func TestProjector_Replay(t *testing.T) {
	projector, readStore := newTestProjector()
	eventStore := mocks.NewMockEventStore()
	require.NoError(t, eventStore.AddEvent("account-alice", account.AggregateType, account.EventAccountRegistered,
		account.AccountRegistered{UserID: "alice", Name: "Alice"}))
	require.NoError(t, eventStore.AddEvent("order-1", order.AggregateType, order.EventOrderPlaced,
		order.OrderPlaced{OrderID: "order-1", OwnerID: "alice"}))
	require.NoError(t, eventStore.AddEvent("order-1", order.AggregateType, order.EventOrderCanceled,
		order.OrderCanceled{OrderID: "order-1"}))

	n, err := projector.Replay(context.Background(), eventStore)

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, string(order.StatusCanceled), getOrder(t, readStore, "order-1").Status)
}

func TestProjector_Replay_Twice(t *testing.T) {
	projector, readStore := newTestProjector()
	eventStore := mocks.NewMockEventStore()
	require.NoError(t, eventStore.AddEvent("account-alice", account.AggregateType, account.EventAddressAdded,
		account.AddressAdded{UserID: "alice", AddressID: "addr-1", Details: "1 Main St"}))

	for i := 0; i < 2; i++ {
		_, err := projector.Replay(context.Background(), eventStore)
		require.NoError(t, err)
	}

	v, ok := readStore.GetData(readmodel.Accounts, "alice")
	require.True(t, ok)
	assert.Len(t, v.(*readmodel.AccountReadModel).Addresses, 1)
}

func TestProjector_IgnoresAggregatesWithoutReadModels(t *testing.T) {
	projector, readStore := newTestProjector()

	err := projector.HandleEvent(context.Background(), nil, makeEvent(cart.AggregateType, cart.EventItemAdded, cart.ItemAddedToCart{CartID: "cart-1"}))

	require.NoError(t, err)
	assert.Empty(t, readStore.SetCalls)
}

func TestProjector_HandleEvent_InvalidJSON(t *testing.T) {
	projector, _ := newTestProjector()

	err := projector.HandleEvent(context.Background(), nil, []byte("not json"))

	assert.Error(t, err)
}

func TestProjector_HandleUnknownEventType(t *testing.T) {
	projector, _ := newTestProjector()

	err := projector.HandleEvent(context.Background(), nil, makeEvent(order.AggregateType, "OrderTeleported", map[string]string{}))

	assert.NoError(t, err)
}

func TestProjector_Publisher_ProjectsOnAppend(t *testing.T) {
	projector, readStore := newTestProjector()
	eventStore := store.NewEventStore(projector.Publisher())

	_, err := eventStore.Append(context.Background(), "account-alice", account.AggregateType, account.EventAccountRegistered,
		account.AccountRegistered{UserID: "alice", Name: "Alice"})

	require.NoError(t, err)
	v, ok := readStore.GetData(readmodel.Accounts, "alice")
	require.True(t, ok)
	assert.Equal(t, "Alice", v.(*readmodel.AccountReadModel).Name)
}
