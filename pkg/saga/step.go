// Package saga implements the orchestration engine: step sequencing,
// request/reply correlation over a message broker, persistent saga state,
// and the backwards compensation cascade on failure.
package saga

import "context"

// Kind distinguishes a step that completes in-process (Sync) from one that
// completes via an asynchronous reply from a remote participant (Async).
type Kind int

const (
	Sync Kind = iota
	Async
)

// ActionFunc runs a synchronous step's forward action in-process.
type ActionFunc func(ctx context.Context, sagaID int64) error

// CompensateFunc runs a step's compensating action. Compensation is
// best-effort: a non-nil error is logged and does not stop the cascade.
type CompensateFunc func(ctx context.Context, sagaID int64) error

// DispatchFunc builds the request payload that starts an async step. The
// engine wraps the returned payload in an Envelope and publishes it to the
// step's request topic.
type DispatchFunc func(ctx context.Context, sagaID int64) (payload []byte, err error)

// ReplyFunc handles a success or failure reply for an async step. Returning
// an error is treated the same as a participant-reported failure: it fails
// the step and triggers compensation.
type ReplyFunc func(ctx context.Context, sagaID int64, payload []byte) error

// Step is one stage of a Saga. A Sync step runs Action in-process; an Async
// step publishes to BaseTaskName's request topic (via Dispatch) and
// advances only when a reply arrives on the derived success/failure topics
// (handled by OnSuccess/OnFailure).
//
// Compensate applies to both kinds and may be nil for a step with no
// rollback (the common case for the first step of a saga).
type Step struct {
	Name string
	Kind Kind

	// Sync fields.
	Action ActionFunc

	// Async fields.
	BaseTaskName string
	Dispatch     DispatchFunc
	OnSuccess    ReplyFunc
	OnFailure    ReplyFunc

	Compensate CompensateFunc
}
