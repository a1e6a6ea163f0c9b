// Package kinesis turns DynamoDB event-table inserts, delivered through the
// table's Kinesis Data Streams integration, back into store events.
package kinesis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/example/grocery-storefront/internal/infrastructure/store"
	"go.uber.org/zap"
)

var errNilImage = errors.New("DynamoDB image is nil")

// ConvertFromKinesisRecord decodes one record. Anything other than an INSERT
// yields a nil event and no error.
func ConvertFromKinesisRecord(record events.KinesisEventRecord) (*store.Event, error) {
	var dynamoDBRecord events.DynamoDBEventRecord
	if err := json.Unmarshal(record.Kinesis.Data, &dynamoDBRecord); err != nil {
		return nil, fmt.Errorf("failed to unmarshal DynamoDB record: %w", err)
	}
	return ConvertFromDynamoDBStreamRecord(dynamoDBRecord)
}

// ConvertFromDynamoDBStreamRecord is ConvertFromKinesisRecord for records
// read straight from DynamoDB Streams.
func ConvertFromDynamoDBStreamRecord(record events.DynamoDBEventRecord) (*store.Event, error) {
	if record.EventName != string(events.DynamoDBOperationTypeInsert) {
		return nil, nil
	}
	return convertDynamoDBImage(record.Change.NewImage)
}

// convertDynamoDBImage reads the attribute names DynamoEventStore writes.
func convertDynamoDBImage(image map[string]events.DynamoDBAttributeValue) (*store.Event, error) {
	if image == nil {
		return nil, errNilImage
	}

	event := &store.Event{}
	if v, ok := image["id"]; ok {
		event.ID = v.String()
	}
	if v, ok := image["aggregate_id"]; ok {
		event.AggregateID = v.String()
	}
	if v, ok := image["aggregate_type"]; ok {
		event.AggregateType = v.String()
	}
	if v, ok := image["event_type"]; ok {
		event.EventType = v.String()
	}
	if v, ok := image["data"]; ok {
		event.Data = json.RawMessage(v.String())
	}
	if v, ok := image["created_at"]; ok {
		t, err := time.Parse(time.RFC3339Nano, v.String())
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		event.Timestamp = t
	}
	if v, ok := image["version"]; ok {
		version, err := v.Integer()
		if err != nil {
			return nil, fmt.Errorf("failed to parse version: %w", err)
		}
		event.Version = int(version)
	}

	if event.ID == "" || event.AggregateID == "" || event.EventType == "" {
		return nil, fmt.Errorf("missing required fields: id=%q, aggregate_id=%q, event_type=%q",
			event.ID, event.AggregateID, event.EventType)
	}
	return event, nil
}

// ApplyFunc consumes one converted event. projection.Projector.Apply and
// notification.Handler.Apply both match it.
type ApplyFunc func(ctx context.Context, event store.Event) error

// ProcessBatch converts and applies every record of a Lambda invocation.
// Records that fail to convert or apply are reported as batch item
// failures so Lambda retries only those.
func ProcessBatch(ctx context.Context, batch events.KinesisEvent, apply ApplyFunc, logger *zap.Logger) events.KinesisEventResponse {
	if logger == nil {
		logger = zap.NewNop()
	}
	var failures []events.KinesisBatchItemFailure
	fail := func(record events.KinesisEventRecord, msg string, err error) {
		logger.Error(msg, zap.String("record_id", record.EventID), zap.Error(err))
		failures = append(failures, events.KinesisBatchItemFailure{ItemIdentifier: record.Kinesis.SequenceNumber})
	}

	for _, record := range batch.Records {
		event, err := ConvertFromKinesisRecord(record)
		if err != nil {
			fail(record, "failed to convert record", err)
			continue
		}
		if event == nil {
			continue
		}
		if err := apply(ctx, *event); err != nil {
			fail(record, "failed to apply event", err)
			continue
		}
	}

	logger.Info("batch processed",
		zap.Int("records", len(batch.Records)),
		zap.Int("failed", len(failures)))
	return events.KinesisEventResponse{BatchItemFailures: failures}
}
