package domain

import "fmt"

// OutcomeKind classifies the result of an orchestration step.
type OutcomeKind string

const (
	// OutcomeOK means the step did its work.
	OutcomeOK OutcomeKind = "ok"

	// OutcomeAcceptable means the step's goal was already satisfied or the
	// step was deliberately skipped (already scheduled, already running,
	// non-content webhook delivery). Never treated as a failure.
	OutcomeAcceptable OutcomeKind = "acceptable"

	// OutcomeUnacceptable means something went wrong and a decision is
	// required. Retry and FailWorkflow carry the decision as data.
	OutcomeUnacceptable OutcomeKind = "unacceptable"

	// OutcomeFatal means a programmer/configuration error (unknown provider,
	// unknown trigger type). Propagated as-is, never retried.
	OutcomeFatal OutcomeKind = "fatal"
)

// Outcome is the explicit result type crossing activity and workflow
// boundaries. Orchestration code branches on its fields instead of on
// error identity, so the retry/fail decision travels as structured data.
type Outcome struct {
	Kind         OutcomeKind `json:"kind"`
	Reason       string      `json:"reason,omitempty"`
	Retry        bool        `json:"retry,omitempty"`         // unacceptable: attempt the operation again
	FailWorkflow bool        `json:"fail_workflow,omitempty"` // unacceptable: mark the enclosing workflow failed
	Err          error       `json:"-"`
}

// OK returns an outcome for a step that did its work.
func OK() Outcome {
	return Outcome{Kind: OutcomeOK}
}

// Skip returns an Acceptable outcome with the given reason.
func Skip(reason string) Outcome {
	return Outcome{Kind: OutcomeAcceptable, Reason: reason}
}

// Retryable returns an Unacceptable outcome for a transient failure:
// the operation should be retried, the workflow is not failed yet.
func Retryable(err error) Outcome {
	return Outcome{Kind: OutcomeUnacceptable, Retry: true, Err: err, Reason: errReason(err)}
}

// Permanent returns an Unacceptable outcome for a non-transient failure:
// no retry, the enclosing workflow is marked failed.
func Permanent(err error) Outcome {
	return Outcome{Kind: OutcomeUnacceptable, FailWorkflow: true, Err: err, Reason: errReason(err)}
}

// Fatal returns an outcome for a configuration/programmer error.
func Fatal(err error) Outcome {
	return Outcome{Kind: OutcomeFatal, Err: err, FailWorkflow: true, Reason: errReason(err)}
}

func errReason(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Succeeded reports whether the step's goal is met (done now or already done).
func (o Outcome) Succeeded() bool {
	return o.Kind == OutcomeOK || o.Kind == OutcomeAcceptable
}

// Skipped reports whether the step was an Acceptable no-op.
func (o Outcome) Skipped() bool {
	return o.Kind == OutcomeAcceptable
}

// Failed reports whether the step failed (unacceptable or fatal).
func (o Outcome) Failed() bool {
	return o.Kind == OutcomeUnacceptable || o.Kind == OutcomeFatal
}

// Error implements the error interface so an outcome can be re-raised at
// the workflow boundary when FailWorkflow is set.
func (o Outcome) Error() string {
	if o.Err != nil {
		return fmt.Sprintf("%s: %v", o.Kind, o.Err)
	}
	return fmt.Sprintf("%s: %s", o.Kind, o.Reason)
}

// Unwrap exposes the underlying error for errors.Is checks.
func (o Outcome) Unwrap() error {
	return o.Err
}
