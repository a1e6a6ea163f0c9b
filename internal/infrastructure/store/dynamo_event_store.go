package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// allEventsPK is the fixed GSI1 partition key that lets GetAllEvents read
// every event ordered by created_at.
const allEventsPK = "EVENTS"

// version is a DynamoDB reserved word.
var versionName = map[string]string{"#v": "version"}

// DynamoAPI is the subset of *dynamodb.Client the event store uses.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoEventStore stores events in DynamoDB. With the table's Kinesis
// integration enabled the publisher can be nil: events reach consumers
// through the stream instead.
type DynamoEventStore struct {
	client            DynamoAPI
	tableName         string
	snapshotTableName string
	publisher         Publisher
}

type dynamoEvent struct {
	AggregateID   string `dynamodbav:"aggregate_id"`
	Version       int    `dynamodbav:"version"`
	ID            string `dynamodbav:"id"`
	AggregateType string `dynamodbav:"aggregate_type"`
	EventType     string `dynamodbav:"event_type"`
	Data          string `dynamodbav:"data"`
	CreatedAt     string `dynamodbav:"created_at"`
	GSI1PK        string `dynamodbav:"gsi1pk"`
}

type dynamoSnapshot struct {
	AggregateID   string `dynamodbav:"aggregate_id"`
	AggregateType string `dynamodbav:"aggregate_type"`
	Version       int    `dynamodbav:"version"`
	State         string `dynamodbav:"state"`
	CreatedAt     string `dynamodbav:"created_at"`
}

var _ EventStoreInterface = (*DynamoEventStore)(nil)

func NewDynamoEventStore(client DynamoAPI, tableName, snapshotTableName string, publisher Publisher) *DynamoEventStore {
	return &DynamoEventStore{
		client:            client,
		tableName:         tableName,
		snapshotTableName: snapshotTableName,
		publisher:         publisher,
	}
}

// Append writes the event with the aggregate's next version. The put is
// conditional, so a concurrent writer that took the version first makes
// this call fail with ErrVersionConflict.
func (es *DynamoEventStore) Append(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*Event, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	version, err := es.nextVersion(ctx, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("failed to get next version: %w", err)
	}

	event := Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          jsonData,
		Timestamp:     time.Now().UTC(),
		Version:       version,
	}

	av, err := attributevalue.MarshalMap(dynamoEvent{
		AggregateID:   event.AggregateID,
		Version:       event.Version,
		ID:            event.ID,
		AggregateType: event.AggregateType,
		EventType:     event.EventType,
		Data:          string(event.Data),
		CreatedAt:     event.Timestamp.Format(time.RFC3339Nano),
		GSI1PK:        allEventsPK,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = es.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(es.tableName),
		Item:                av,
		// the item key is (aggregate_id, version), so this fails only when the version is taken
		ConditionExpression: aws.String("attribute_not_exists(aggregate_id)"),
	})
	if err != nil {
		var conflict *types.ConditionalCheckFailedException
		if errors.As(err, &conflict) {
			return nil, fmt.Errorf("append %s to %s: %w", eventType, aggregateID, ErrVersionConflict)
		}
		return nil, fmt.Errorf("append %s to %s: %w", eventType, aggregateID, err)
	}

	if es.publisher != nil {
		if err := es.publisher.Publish(ctx, aggregateID, event); err != nil {
			return nil, err
		}
	}
	return &event, nil
}

func (es *DynamoEventStore) nextVersion(ctx context.Context, aggregateID string) (int, error) {
	result, err := es.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		KeyConditionExpression: aws.String("aggregate_id = :aid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid": &types.AttributeValueMemberS{Value: aggregateID},
		},
		ExpressionAttributeNames: versionName,
		ScanIndexForward:         aws.Bool(false),
		Limit:                    aws.Int32(1),
		ProjectionExpression:     aws.String("#v"),
	})
	if err != nil {
		return 0, err
	}
	if len(result.Items) == 0 {
		return 1, nil
	}

	var item struct {
		Version int `dynamodbav:"version"`
	}
	if err := attributevalue.UnmarshalMap(result.Items[0], &item); err != nil {
		return 0, err
	}
	return item.Version + 1, nil
}

func (es *DynamoEventStore) GetEvents(ctx context.Context, aggregateID string) ([]Event, error) {
	return es.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		KeyConditionExpression: aws.String("aggregate_id = :aid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid": &types.AttributeValueMemberS{Value: aggregateID},
		},
		ScanIndexForward: aws.Bool(true),
	})
}

func (es *DynamoEventStore) GetEventsFromVersion(ctx context.Context, aggregateID string, version int) ([]Event, error) {
	return es.queryAll(ctx, &dynamodb.QueryInput{
		TableName:                aws.String(es.tableName),
		KeyConditionExpression:   aws.String("aggregate_id = :aid AND #v > :ver"),
		ExpressionAttributeNames: versionName,
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid": &types.AttributeValueMemberS{Value: aggregateID},
			":ver": &types.AttributeValueMemberN{Value: strconv.Itoa(version)},
		},
		ScanIndexForward: aws.Bool(true),
	})
}

// GetAllEvents reads GSI1, which orders every event by created_at.
func (es *DynamoEventStore) GetAllEvents(ctx context.Context) ([]Event, error) {
	return es.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		IndexName:              aws.String("GSI1"),
		KeyConditionExpression: aws.String("gsi1pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: allEventsPK},
		},
		ScanIndexForward: aws.Bool(true),
	})
}

// queryAll follows LastEvaluatedKey until every page is read.
func (es *DynamoEventStore) queryAll(ctx context.Context, input *dynamodb.QueryInput) ([]Event, error) {
	var events []Event
	for {
		result, err := es.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", es.tableName, err)
		}
		for _, item := range result.Items {
			event, err := unmarshalDynamoEvent(item)
			if err != nil {
				return nil, err
			}
			events = append(events, event)
		}
		if len(result.LastEvaluatedKey) == 0 {
			return events, nil
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
}

func unmarshalDynamoEvent(item map[string]types.AttributeValue) (Event, error) {
	var de dynamoEvent
	if err := attributevalue.UnmarshalMap(item, &de); err != nil {
		return Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	timestamp, err := time.Parse(time.RFC3339Nano, de.CreatedAt)
	if err != nil {
		return Event{}, fmt.Errorf("event %s: bad created_at: %w", de.ID, err)
	}
	return Event{
		ID:            de.ID,
		AggregateID:   de.AggregateID,
		AggregateType: de.AggregateType,
		EventType:     de.EventType,
		Data:          json.RawMessage(de.Data),
		Timestamp:     timestamp,
		Version:       de.Version,
	}, nil
}

// SaveSnapshot overwrites the aggregate's snapshot in the snapshots table.
func (es *DynamoEventStore) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	av, err := attributevalue.MarshalMap(dynamoSnapshot{
		AggregateID:   snapshot.AggregateID,
		AggregateType: snapshot.AggregateType,
		Version:       snapshot.Version,
		State:         string(snapshot.State),
		CreatedAt:     snapshot.CreatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	_, err = es.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(es.snapshotTableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to put snapshot: %w", err)
	}
	return nil
}

func (es *DynamoEventStore) GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	result, err := es.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(es.snapshotTableName),
		Key: map[string]types.AttributeValue{
			"aggregate_id": &types.AttributeValueMemberS{Value: aggregateID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var ds dynamoSnapshot
	if err := attributevalue.UnmarshalMap(result.Item, &ds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, ds.CreatedAt)

	return &Snapshot{
		AggregateID:   ds.AggregateID,
		AggregateType: ds.AggregateType,
		Version:       ds.Version,
		State:         json.RawMessage(ds.State),
		CreatedAt:     createdAt,
	}, nil
}
