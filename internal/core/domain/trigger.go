package domain

import "time"

// TriggerType identifies the firing mechanism of a trigger.
type TriggerType string

const (
	TriggerTypeManual  TriggerType = "MANUAL"
	TriggerTypeCron    TriggerType = "CRON"
	TriggerTypeWebhook TriggerType = "EVENT_WEBHOOK"
)

// WorkflowType identifies what kind of workflow a trigger fires.
type WorkflowType string

const (
	// WorkflowTypeSyncflow is currently the only workflow type.
	WorkflowTypeSyncflow WorkflowType = "SYNCFLOW"
)

// WorkflowRef binds a trigger to the workflow it fires. 1:1 with a syncflow.
type WorkflowRef struct {
	ID   string       `json:"id"`
	Name string       `json:"name"`
	Type WorkflowType `json:"type"`
}

// CronConfig is the CRON trigger configuration. The scheduler job is keyed
// by (JobID, Expression); both are needed to remove it again.
type CronConfig struct {
	JobID      string `json:"job_id"`
	Expression string `json:"expression"`
}

// WebhookConfig is the EVENT_WEBHOOK trigger configuration. Rewritten by the
// webhook subscription manager on every renewal.
type WebhookConfig struct {
	SubscriptionID    string    `json:"subscription_id"`
	ResourceID        string    `json:"resource_id"`
	ChannelToken      string    `json:"channel_token,omitempty"`
	LeaseSeconds      int64     `json:"lease_seconds"`
	RefreshIntervalMS int64     `json:"refresh_interval_ms"`
	RenewalJobID      string    `json:"renewal_job_id"`
	ExpiresAt         time.Time `json:"expires_at"`
}

// RefreshInterval returns the renewal interval as a duration.
func (c WebhookConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMS) * time.Millisecond
}

// Trigger binds a syncflow to a firing mechanism.
type Trigger struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Type      TriggerType    `json:"type"`
	Workflow  WorkflowRef    `json:"workflow"`
	Cron      *CronConfig    `json:"cron,omitempty"`
	Webhook   *WebhookConfig `json:"webhook,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt *time.Time     `json:"deleted_at,omitempty"`
}

// NewTrigger creates a trigger bound to the given syncflow workflow.
func NewTrigger(name string, triggerType TriggerType, workflow WorkflowRef) *Trigger {
	now := time.Now()
	return &Trigger{
		ID:        GenerateID(),
		Name:      name,
		Type:      triggerType,
		Workflow:  workflow,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
