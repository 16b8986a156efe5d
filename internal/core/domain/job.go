package domain

import "time"

// JobKind identifies what a recurring scheduler job does when it fires.
type JobKind string

const (
	// JobKindFireTrigger fires a cron trigger.
	JobKindFireTrigger JobKind = "fire_trigger"
	// JobKindRenewWebhook renews a push subscription before it expires.
	JobKindRenewWebhook JobKind = "renew_webhook"
)

// Job is a recurring scheduler job. Cron jobs are keyed (ID, Expression),
// interval jobs (ID, Interval); removal must present the same key pair.
type Job struct {
	ID         string            `json:"id"`
	Kind       JobKind           `json:"kind"`
	Expression string            `json:"expression,omitempty"` // cron jobs
	Interval   time.Duration     `json:"interval,omitempty"`   // interval jobs
	Payload    map[string]string `json:"payload,omitempty"`
	NextRun    time.Time         `json:"next_run"`
	LastRun    *time.Time        `json:"last_run,omitempty"`
	LastError  string            `json:"last_error,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// TriggerID extracts the trigger id from the payload.
func (j *Job) TriggerID() string {
	if j.Payload == nil {
		return ""
	}
	return j.Payload["trigger_id"]
}

// IsDue reports whether the job should fire at the given instant.
func (j *Job) IsDue(now time.Time) bool {
	return now.After(j.NextRun)
}
