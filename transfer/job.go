package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrSuperseded is the cancellation cause of a job replaced by a newer job
// with the same id. It matches context.Canceled.
var ErrSuperseded = fmt.Errorf("upload superseded: %w", context.Canceled)

// ErrCanceled is the cancellation cause of a job stopped through
// Upload.Cancel or Engine.Cancel. It matches context.Canceled. Only this
// cause drops the job from the journal.
var ErrCanceled = fmt.Errorf("upload canceled: %w", context.Canceled)

var errEngineClosed = fmt.Errorf("transfer engine closed: %w", context.Canceled)

// ErrInvalidJob is returned by Enqueue's Upload for a job missing its id,
// destination or source.
var ErrInvalidJob = errors.New("invalid upload job")

// State is the lifecycle of an upload job.
type State int

const (
	Pending State = iota
	InFlight
	Succeeded
	Failed
	Canceled
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case InFlight:
		return "in-flight"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed || s == Canceled
}

// CompleteFunc notifies the backend that every byte of id arrived.
type CompleteFunc func(ctx context.Context, id string) error

// Job describes one upload.
type Job struct {
	// ID is the resource id; at most one job per ID is active.
	ID string
	// URL is the pre-signed destination for a raw PUT.
	URL string
	// Source supplies the bytes. It is reopened for every attempt.
	Source Source
	// ContentType overrides Source.ContentType when set.
	ContentType string
	// OnComplete runs after the destination accepted the bytes.
	OnComplete CompleteFunc
}

func (j Job) validate() error {
	switch {
	case j.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidJob)
	case j.URL == "":
		return fmt.Errorf("%w: missing destination url", ErrInvalidJob)
	case j.Source == nil:
		return fmt.Errorf("%w: missing source", ErrInvalidJob)
	}
	return nil
}

// Event is a progress notification. Percent is -1 while the total size is
// unknown. The last event of a successful job has State Succeeded and Percent
// 100; a failed job ends with one Failed event carrying Err. A canceled job
// ends without a terminal event.
type Event struct {
	JobID      string
	Attempt    int
	BytesSent  int64
	TotalBytes int64
	Percent    int
	State      State
	Err        error
}

// Outcome summarizes a finished job.
type Outcome struct {
	JobID     string
	State     State
	Attempts  int
	BytesSent int64
}

// CompletionError reports that the bytes were transferred but the completion
// callback failed. The job state stays Succeeded; completion can be retried
// on its own.
type CompletionError struct {
	JobID string
	Err   error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("upload %s transferred but completion failed: %v", e.JobID, e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }

// Upload is the handle of an enqueued job.
type Upload struct {
	job    Job
	events chan Event
	done   chan struct{}
	cancel context.CancelCauseFunc

	mu      sync.Mutex
	state   State
	outcome Outcome
	err     error
}

func newUpload(job Job, buffer int, cancel context.CancelCauseFunc) *Upload {
	return &Upload{
		job:     job,
		events:  make(chan Event, buffer),
		done:    make(chan struct{}),
		cancel:  cancel,
		state:   Pending,
		outcome: Outcome{JobID: job.ID, State: Pending},
	}
}

// ID returns the job id.
func (u *Upload) ID() string { return u.job.ID }

// Events streams progress. The channel is closed when the job ends. Events
// are dropped rather than blocking the transfer when the reader falls behind;
// the terminal event is never dropped.
func (u *Upload) Events() <-chan Event { return u.events }

// Done is closed when the job reached a terminal state.
func (u *Upload) Done() <-chan struct{} { return u.done }

// Cancel stops the job and forgets it in the journal. It is a no-op once the
// job has ended.
func (u *Upload) Cancel() { u.cancel(ErrCanceled) }

// State returns the current state.
func (u *Upload) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// Wait blocks until the job ends. The error is nil on success, a
// *CompletionError if only the completion callback failed, the cancellation
// cause on cancellation (ErrCanceled, ErrSuperseded or the context's cause,
// all matching context.Canceled unless a deadline expired), and the last
// transfer error on failure.
func (u *Upload) Wait() (Outcome, error) {
	<-u.done
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.outcome, u.err
}

func (u *Upload) setState(s State) {
	u.mu.Lock()
	u.state = s
	u.outcome.State = s
	u.mu.Unlock()
}

func (u *Upload) finish(outcome Outcome, err error) {
	u.mu.Lock()
	u.state = outcome.State
	u.outcome = outcome
	u.err = err
	u.mu.Unlock()
}
