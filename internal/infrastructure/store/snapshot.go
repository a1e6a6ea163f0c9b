package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// SnapshotEvery is how many events an aggregate accumulates between snapshots.
const SnapshotEvery = 10

// Snapshot is an aggregate's encoded state as of Version. Loading replays
// only the events after it.
type Snapshot struct {
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	Version       int             `json:"version"`
	State         json.RawMessage `json:"state"`
	CreatedAt     time.Time       `json:"created_at"`
}

// DueForSnapshot reports whether an aggregate that just reached version
// should be snapshotted.
func DueForSnapshot(version int) bool {
	return version > 0 && version%SnapshotEvery == 0
}

func NewSnapshot(aggregateID, aggregateType string, version int, state any) (*Snapshot, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode %s snapshot of %s: %w", aggregateType, aggregateID, err)
	}
	return &Snapshot{
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Version:       version,
		State:         raw,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// Restore decodes the snapshot state into target, usually a fresh aggregate.
func (s *Snapshot) Restore(target any) error {
	if err := json.Unmarshal(s.State, target); err != nil {
		return fmt.Errorf("decode %s snapshot of %s at v%d: %w", s.AggregateType, s.AggregateID, s.Version, err)
	}
	return nil
}
