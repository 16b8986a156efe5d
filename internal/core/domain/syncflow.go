package domain

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

// GenerateID creates a unique random ID.
func GenerateID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// SyncflowStatus represents the current state of a syncflow's cycle.
type SyncflowStatus string

const (
	// SyncflowStatusIdling means no cycle is queued or running.
	SyncflowStatusIdling SyncflowStatus = "IDLING"
	// SyncflowStatusScheduled means a cycle is queued but not started.
	SyncflowStatusScheduled SyncflowStatus = "SCHEDULED"
	// SyncflowStatusRunning means a cycle is executing.
	SyncflowStatusRunning SyncflowStatus = "RUNNING"
)

// SyncflowAttributes describe what the syncflow does. Immutable after creation.
type SyncflowAttributes struct {
	Direction  string `json:"direction"`
	SyncMethod string `json:"sync_method"`
	SyncTarget string `json:"sync_target"`
	SyncType   string `json:"sync_type"`
}

// SyncflowState is the versioned cursor state of a syncflow.
//
// Version is a monotonically increasing integer starting at 0.
// PrevVersion always equals the version that was current at the start of the
// most recent completed cycle; together they address the diff baseline pair.
type SyncflowState struct {
	Status      SyncflowStatus `json:"status"`
	Version     int64          `json:"version"`
	PrevVersion int64          `json:"prev_version"`
	Cursor      string         `json:"cursor,omitempty"`
}

// Syncflow is one executable sync program bound to a data source.
type Syncflow struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	ConnectionID string             `json:"connection_id"`
	SourceID     string             `json:"source_id"`
	Attributes   SyncflowAttributes `json:"attributes"`
	State        SyncflowState      `json:"state"`
	TriggerID    string             `json:"trigger_id"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
	DeletedAt    *time.Time         `json:"deleted_at,omitempty"`
}

// NewSyncflow creates a syncflow in its initial state.
func NewSyncflow(name, connectionID, sourceID string, attrs SyncflowAttributes) *Syncflow {
	now := time.Now()
	return &Syncflow{
		ID:           GenerateID(),
		Name:         name,
		ConnectionID: connectionID,
		SourceID:     sourceID,
		Attributes:   attrs,
		State: SyncflowState{
			Status:      SyncflowStatusIdling,
			Version:     0,
			PrevVersion: 0,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// WorkflowID returns the durable workflow id for the syncflow's current
// version. One logical attempt per (syncflow, version).
func (s *Syncflow) WorkflowID() string {
	return fmt.Sprintf("%s-%d", s.ID, s.State.Version)
}

// AdvanceCycle moves the state forward after a completed cycle:
// version increments by one and prevVersion becomes the completed version.
func (s *SyncflowState) AdvanceCycle() {
	s.PrevVersion = s.Version
	s.Version++
	s.Status = SyncflowStatusIdling
}

// SyncStatistics are the aggregate results of one completed cycle.
type SyncStatistics struct {
	AddedRowsCount   int  `json:"added_rows_count"`
	DeletedRowsCount int  `json:"deleted_rows_count"`
	SchemaChanged    bool `json:"schema_changed"`
}

// RowsDelta is the net row count change applied to the data source totals.
func (s SyncStatistics) RowsDelta() int64 {
	return int64(s.AddedRowsCount - s.DeletedRowsCount)
}

// SyncflowSummary is the connection-level view of a syncflow.
type SyncflowSummary struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Status    SyncflowStatus `json:"status"`
	TriggerID string         `json:"trigger_id"`
}

// Summary returns the summary view of the syncflow.
func (s *Syncflow) Summary() SyncflowSummary {
	return SyncflowSummary{
		ID:        s.ID,
		Name:      s.Name,
		Status:    s.State.Status,
		TriggerID: s.TriggerID,
	}
}
