package store

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDynamo keeps both tables in memory and answers the handful of query
// shapes the event store issues. pageSize > 0 splits results into pages.
type fakeDynamo struct {
	mu        sync.Mutex
	events    []dynamoEvent
	snapshots map[string]map[string]types.AttributeValue
	pageSize  int
	putErr    error
	queries   int
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{snapshots: make(map[string]map[string]types.AttributeValue)}
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return nil, f.putErr
	}

	if aws.ToString(in.TableName) == "snapshots" {
		var s dynamoSnapshot
		if err := attributevalue.UnmarshalMap(in.Item, &s); err != nil {
			return nil, err
		}
		f.snapshots[s.AggregateID] = in.Item
		return &dynamodb.PutItemOutput{}, nil
	}

	var e dynamoEvent
	if err := attributevalue.UnmarshalMap(in.Item, &e); err != nil {
		return nil, err
	}
	for _, existing := range f.events {
		if existing.AggregateID == e.AggregateID && existing.Version == e.Version {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("conditional request failed")}
		}
	}
	f.events = append(f.events, e)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := in.Key["aggregate_id"].(*types.AttributeValueMemberS).Value
	return &dynamodb.GetItemOutput{Item: f.snapshots[id]}, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++

	var matched []dynamoEvent
	values := in.ExpressionAttributeValues
	if aws.ToString(in.IndexName) == "GSI1" {
		// insertion order stands in for the created_at sort key
		matched = append(matched, f.events...)
	} else {
		aid := values[":aid"].(*types.AttributeValueMemberS).Value
		from := 0
		if v, ok := values[":ver"]; ok {
			from, _ = strconv.Atoi(v.(*types.AttributeValueMemberN).Value)
		}
		for _, e := range f.events {
			if e.AggregateID == aid && e.Version > from {
				matched = append(matched, e)
			}
		}
		sort.Slice(matched, func(i, j int) bool { return matched[i].Version < matched[j].Version })
		if !aws.ToBool(in.ScanIndexForward) {
			for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
				matched[i], matched[j] = matched[j], matched[i]
			}
		}
	}

	offset := 0
	if start, ok := in.ExclusiveStartKey["offset"]; ok {
		offset, _ = strconv.Atoi(start.(*types.AttributeValueMemberN).Value)
	}
	matched = matched[offset:]

	limit := len(matched)
	if in.Limit != nil && int(*in.Limit) < limit {
		limit = int(*in.Limit)
	}
	out := &dynamodb.QueryOutput{}
	if f.pageSize > 0 && f.pageSize < limit {
		limit = f.pageSize
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			"offset": &types.AttributeValueMemberN{Value: strconv.Itoa(offset + limit)},
		}
	}
	for _, e := range matched[:limit] {
		item, err := attributevalue.MarshalMap(e)
		if err != nil {
			return nil, err
		}
		out.Items = append(out.Items, item)
	}
	return out, nil
}

func newTestDynamoStore() (*DynamoEventStore, *fakeDynamo) {
	fake := newFakeDynamo()
	return NewDynamoEventStore(fake, "events", "snapshots", nil), fake
}

// ============================================
// Append Tests
// ============================================

func TestDynamoEventStore_AppendAssignsVersions(t *testing.T) {
	es, _ := newTestDynamoStore()
	ctx := context.Background()

	first, err := es.Append(ctx, "cart-1", "Cart", "CartCreated", map[string]string{"owner_id": "alice"})
	require.NoError(t, err)
	second, err := es.Append(ctx, "cart-1", "Cart", "ItemAddedToCart", map[string]string{"item_id": "apple"})
	require.NoError(t, err)
	other, err := es.Append(ctx, "cart-2", "Cart", "CartCreated", map[string]string{"owner_id": "bob"})
	require.NoError(t, err)

	assert.Equal(t, 1, first.Version)
	assert.Equal(t, 2, second.Version)
	assert.Equal(t, 1, other.Version)

	events, err := es.GetEvents(ctx, "cart-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "ItemAddedToCart", events[1].EventType)
	assert.JSONEq(t, `{"item_id":"apple"}`, string(events[1].Data))
}

func TestDynamoEventStore_AppendConflict(t *testing.T) {
	es, fake := newTestDynamoStore()
	fake.putErr = &types.ConditionalCheckFailedException{Message: aws.String("conditional request failed")}

	_, err := es.Append(context.Background(), "cart-1", "Cart", "CartCreated", struct{}{})

	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestDynamoEventStore_AppendStoreError(t *testing.T) {
	es, fake := newTestDynamoStore()
	fake.putErr = errors.New("throughput exceeded")

	_, err := es.Append(context.Background(), "cart-1", "Cart", "CartCreated", struct{}{})

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrVersionConflict)
}

func TestDynamoEventStore_AppendPublishes(t *testing.T) {
	fake := newFakeDynamo()
	var published []string
	es := NewDynamoEventStore(fake, "events", "snapshots", PublisherFunc(func(_ context.Context, key string, _ any) error {
		published = append(published, key)
		return nil
	}))

	_, err := es.Append(context.Background(), "wallet-alice", "Wallet", "WalletCredited", struct{}{})

	require.NoError(t, err)
	assert.Equal(t, []string{"wallet-alice"}, published)
}

// ============================================
// Query Tests
// ============================================

func TestDynamoEventStore_GetEventsFromVersion(t *testing.T) {
	es, _ := newTestDynamoStore()
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, err := es.Append(ctx, "order-1", "Order", "Event"+strconv.Itoa(i), struct{}{})
		require.NoError(t, err)
	}

	events, err := es.GetEventsFromVersion(ctx, "order-1", 2)

	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 3, events[0].Version)
	assert.Equal(t, 4, events[1].Version)
}

func TestDynamoEventStore_GetAllEvents_FollowsPages(t *testing.T) {
	es, fake := newTestDynamoStore()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		_, err := es.Append(ctx, "agg-"+id, "Cart", "CartCreated", struct{}{})
		require.NoError(t, err)
	}
	fake.pageSize = 2
	fake.queries = 0

	events, err := es.GetAllEvents(ctx)

	require.NoError(t, err)
	assert.Len(t, events, 5)
	assert.Equal(t, 3, fake.queries)
}

func TestDynamoEventStore_GetEvents_Unknown(t *testing.T) {
	es, _ := newTestDynamoStore()

	events, err := es.GetEvents(context.Background(), "missing")

	require.NoError(t, err)
	assert.Empty(t, events)
}

// ============================================
// Snapshot Tests
// ============================================

func TestDynamoEventStore_Snapshots(t *testing.T) {
	es, _ := newTestDynamoStore()
	ctx := context.Background()

	none, err := es.GetSnapshot(ctx, "cart-1")
	require.NoError(t, err)
	assert.Nil(t, none)

	err = es.SaveSnapshot(ctx, &Snapshot{AggregateID: "cart-1", AggregateType: "Cart", Version: 10, State: []byte(`{"id":"cart-1"}`)})
	require.NoError(t, err)

	snap, err := es.GetSnapshot(ctx, "cart-1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 10, snap.Version)
	assert.JSONEq(t, `{"id":"cart-1"}`, string(snap.State))
}
