package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
	"github.com/custodia-labs/syncflow-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.TriggerStore = (*TriggerStore)(nil)

// TriggerStore implements driven.TriggerStore using PostgreSQL
type TriggerStore struct {
	db *DB
}

// NewTriggerStore creates a new TriggerStore
func NewTriggerStore(db *DB) *TriggerStore {
	return &TriggerStore{db: db}
}

const triggerColumns = `id, name, type, workflow, cron, webhook, created_at, updated_at, deleted_at`

// Get retrieves a trigger by id, excluding soft-deleted rows
func (s *TriggerStore) Get(ctx context.Context, id string) (*domain.Trigger, error) {
	query := `
		SELECT ` + triggerColumns + `
		FROM triggers
		WHERE id = $1 AND deleted_at IS NULL
	`
	return scanTrigger(s.db.QueryRowContext(ctx, query, id))
}

// GetByWorkflow retrieves the live trigger bound to a workflow id
func (s *TriggerStore) GetByWorkflow(ctx context.Context, workflowID string) (*domain.Trigger, error) {
	query := `
		SELECT ` + triggerColumns + `
		FROM triggers
		WHERE workflow->>'id' = $1 AND deleted_at IS NULL
	`
	return scanTrigger(s.db.QueryRowContext(ctx, query, workflowID))
}

// Create persists a new trigger
func (s *TriggerStore) Create(ctx context.Context, trigger *domain.Trigger) error {
	workflowJSON, cronJSON, webhookJSON, err := marshalTriggerConfig(trigger)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO triggers (id, name, type, workflow, cron, webhook, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = s.db.ExecContext(ctx, query,
		trigger.ID,
		trigger.Name,
		string(trigger.Type),
		workflowJSON,
		cronJSON,
		webhookJSON,
		trigger.CreatedAt,
		trigger.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

// Save updates an existing trigger (webhook renewal rewrites config)
func (s *TriggerStore) Save(ctx context.Context, trigger *domain.Trigger) error {
	workflowJSON, cronJSON, webhookJSON, err := marshalTriggerConfig(trigger)
	if err != nil {
		return err
	}

	query := `
		UPDATE triggers
		SET name = $2, type = $3, workflow = $4, cron = $5, webhook = $6, updated_at = $7
		WHERE id = $1 AND deleted_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query,
		trigger.ID,
		trigger.Name,
		string(trigger.Type),
		workflowJSON,
		cronJSON,
		webhookJSON,
		time.Now(),
	)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// SoftDelete marks the trigger deleted
func (s *TriggerStore) SoftDelete(ctx context.Context, id string) error {
	query := `
		UPDATE triggers
		SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func marshalTriggerConfig(trigger *domain.Trigger) (workflow, cron, webhook []byte, err error) {
	workflow, err = json.Marshal(trigger.Workflow)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal workflow ref: %w", err)
	}
	if trigger.Cron != nil {
		cron, err = json.Marshal(trigger.Cron)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("marshal cron config: %w", err)
		}
	}
	if trigger.Webhook != nil {
		webhook, err = json.Marshal(trigger.Webhook)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("marshal webhook config: %w", err)
		}
	}
	return workflow, cron, webhook, nil
}

func scanTrigger(row *sql.Row) (*domain.Trigger, error) {
	var trigger domain.Trigger
	var workflowJSON, cronJSON, webhookJSON []byte
	var deletedAt sql.NullTime

	err := row.Scan(
		&trigger.ID,
		&trigger.Name,
		&trigger.Type,
		&workflowJSON,
		&cronJSON,
		&webhookJSON,
		&trigger.CreatedAt,
		&trigger.UpdatedAt,
		&deletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	trigger.DeletedAt = TimePtr(deletedAt)
	if err := json.Unmarshal(workflowJSON, &trigger.Workflow); err != nil {
		return nil, fmt.Errorf("unmarshal workflow ref: %w", err)
	}
	if len(cronJSON) > 0 {
		trigger.Cron = &domain.CronConfig{}
		if err := json.Unmarshal(cronJSON, trigger.Cron); err != nil {
			return nil, fmt.Errorf("unmarshal cron config: %w", err)
		}
	}
	if len(webhookJSON) > 0 {
		trigger.Webhook = &domain.WebhookConfig{}
		if err := json.Unmarshal(webhookJSON, trigger.Webhook); err != nil {
			return nil, fmt.Errorf("unmarshal webhook config: %w", err)
		}
	}
	return &trigger, nil
}
