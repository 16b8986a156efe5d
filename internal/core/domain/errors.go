package domain

import "errors"

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates the resource already exists
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrStatusConflict indicates a conditional status transition was rejected
	// because the stored status no longer matched the expected value
	ErrStatusConflict = errors.New("status conflict")

	// ErrUnknownProvider indicates the provider type has no registry entry.
	// Configuration error, never retried.
	ErrUnknownProvider = errors.New("unknown provider type")

	// ErrUnknownTriggerType indicates the trigger type has no registry entry.
	// Configuration error, never retried.
	ErrUnknownTriggerType = errors.New("unknown trigger type")

	// ErrUnknownWorkflowType indicates the workflow type has no registered handler
	ErrUnknownWorkflowType = errors.New("unknown workflow type")

	// ErrWorkflowActive indicates a workflow with the same id is pending or running
	ErrWorkflowActive = errors.New("workflow already active")

	// ErrWorkflowCompleted indicates a workflow with the same id already completed
	ErrWorkflowCompleted = errors.New("workflow already completed")

	// ErrHealthCheckFailed indicates a dependency health check failed
	ErrHealthCheckFailed = errors.New("health check failed")
)
