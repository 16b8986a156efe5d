package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Bus topics. One topic per event name; delivery is at-least-once, so every
// consumer re-derives correctness from persisted state, never from ordering.
const (
	EventConnectionCreated = "CONNECTION_CREATED"
	EventConnectionDeleted = "CONNECTION_DELETED"
	EventWorkflowTriggered = "WORKFLOW_TRIGGERED"
	EventSyncflowScheduled = "SYNCFLOW_SCHEDULED"
	EventSyncflowSucceed   = "SYNCFLOW_SUCCEED"
	EventDataSourceDeleted = "DATA_SOURCE_DELETED"
)

// Event is the transient envelope carried on the bus. Never persisted by
// the core.
type Event struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Payload   json.RawMessage `json:"payload"`
	EmittedAt time.Time       `json:"emitted_at"`
}

// NewEvent wraps a payload into an event envelope.
func NewEvent(name string, payload any) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", name, err)
	}
	return &Event{
		ID:        GenerateID(),
		Name:      name,
		Payload:   raw,
		EmittedAt: time.Now(),
	}, nil
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Name, err)
	}
	return nil
}

// SyncflowScheduledPayload is carried on SYNCFLOW_SCHEDULED.
type SyncflowScheduledPayload struct {
	Syncflow *Syncflow `json:"syncflow"`
	Version  int64     `json:"version"`
}

// SyncflowSucceedPayload is carried on SYNCFLOW_SUCCEED.
type SyncflowSucceedPayload struct {
	DataSourceID    string         `json:"data_source_id"`
	SyncflowID      string         `json:"syncflow_id"`
	SyncVersion     int64          `json:"sync_version"`
	PrevSyncVersion int64          `json:"prev_sync_version"`
	Statistics      SyncStatistics `json:"statistics"`
}

// DataSourceDeletedPayload is carried on DATA_SOURCE_DELETED.
type DataSourceDeletedPayload struct {
	DataSourceID string `json:"data_source_id"`
}
