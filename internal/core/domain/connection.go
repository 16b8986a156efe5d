package domain

import "time"

// ConnectionStatus represents the lifecycle state of a sync connection.
type ConnectionStatus string

const (
	ConnectionStatusActive   ConnectionStatus = "ACTIVE"
	ConnectionStatusInactive ConnectionStatus = "INACTIVE"
)

// SyncConnection groups a data source with the syncflows derived from its
// provider type. Connections are soft-deleted, never physically removed;
// deletion cascades to syncflows and triggers.
type SyncConnection struct {
	ID        string            `json:"id"`
	SourceID  string            `json:"source_id"`
	Status    ConnectionStatus  `json:"status"`
	Syncflows []SyncflowSummary `json:"syncflows"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	DeletedAt *time.Time        `json:"deleted_at,omitempty"`
}

// NewSyncConnection creates an active connection for a data source.
func NewSyncConnection(sourceID string) *SyncConnection {
	now := time.Now()
	return &SyncConnection{
		ID:        GenerateID(),
		SourceID:  sourceID,
		Status:    ConnectionStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
