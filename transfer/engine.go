// Package transfer streams files to pre-signed URLs. Each job is a raw PUT
// sent in fixed-size chunks with monotonic progress, bounded retries,
// cancellation and at most one active job per resource id.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"diarysync/internal/metrics"
	"diarysync/internal/retry"
)

// Defaults.
const (
	DefaultChunkSize   = 8 * 1024
	DefaultMaxAttempts = 3
	eventBuffer        = 128
)

// Config tunes the engine.
type Config struct {
	// ChunkSize is the most bytes read from the source per write.
	ChunkSize int
	// MaxAttempts bounds the attempts per job, the first one included.
	MaxAttempts int
	// InitialBackoff and MaxBackoff shape the wait between attempts.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// AttemptTimeout bounds one attempt. Zero means no limit.
	AttemptTimeout time.Duration
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:      DefaultChunkSize,
		MaxAttempts:    DefaultMaxAttempts,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

// DestinationError is a non-2xx answer from the upload destination.
type DestinationError struct {
	StatusCode int
}

func (e *DestinationError) Error() string {
	return fmt.Sprintf("upload destination returned status %d", e.StatusCode)
}

// Engine runs upload jobs.
type Engine struct {
	client  *http.Client
	config  Config
	journal *Journal
	logger  zerolog.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	active map[string]*Upload
	closed bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithHTTPClient sets the client used for PUTs. It must not carry auth
// headers; pre-signed URLs authenticate themselves.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) { e.client = c }
}

// WithJournal records tasks so interrupted uploads can be resumed.
func WithJournal(j *Journal) Option {
	return func(e *Engine) { e.journal = j }
}

// WithLogger sets the engine logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics records attempts and bytes into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an engine.
func NewEngine(cfg Config, opts ...Option) *Engine {
	defaults := DefaultConfig()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaults.ChunkSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaults.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaults.MaxBackoff
	}

	e := &Engine{
		client: &http.Client{},
		config: cfg,
		logger: zerolog.Nop(),
		active: make(map[string]*Upload),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enqueue starts job and returns its handle. A running job with the same id is
// canceled with ErrSuperseded; the new job starts once the old one released
// its source. Canceling ctx cancels the job but keeps it in the journal.
func (e *Engine) Enqueue(ctx context.Context, job Job) *Upload {
	runCtx, cancel := context.WithCancelCause(ctx)
	u := newUpload(job, eventBuffer, cancel)

	if err := job.validate(); err != nil {
		e.abort(u, err)
		return u
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.abort(u, errEngineClosed)
		return u
	}
	prev := e.active[job.ID]
	e.active[job.ID] = u
	e.recordTask(job)
	e.mu.Unlock()

	if prev != nil {
		e.logger.Debug().Str("job_id", job.ID).Msg("superseding active upload")
		prev.cancel(ErrSuperseded)
	}

	go e.run(runCtx, u, prev)
	return u
}

// Active returns the running job for id.
func (e *Engine) Active(id string) (*Upload, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	u, ok := e.active[id]
	return u, ok
}

// Cancel stops the running job for id and reports whether there was one.
func (e *Engine) Cancel(id string) bool {
	u, ok := e.Active(id)
	if ok {
		u.Cancel()
	}
	return ok
}

// Close cancels every running job and waits for them to end. Journaled jobs
// stay in the journal for ResumeUploads.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.closed = true
	running := make([]*Upload, 0, len(e.active))
	for _, u := range e.active {
		running = append(running, u)
	}
	e.mu.Unlock()

	for _, u := range running {
		u.cancel(errEngineClosed)
		<-u.done
	}
	return nil
}

func (e *Engine) abort(u *Upload, err error) {
	t := newTracker(u.job.ID, -1, u.events)
	t.finish(&Event{State: Failed, Err: err, Percent: -1})
	u.finish(Outcome{JobID: u.job.ID, State: Failed}, err)
	u.cancel(nil)
	close(u.done)
}

func (e *Engine) run(ctx context.Context, u *Upload, prev *Upload) {
	job := u.job
	log := e.logger.With().Str("job_id", job.ID).Logger()
	t := newTracker(job.ID, job.Source.Size(), u.events)

	defer close(u.done)
	defer u.cancel(nil)

	if prev != nil {
		select {
		case <-prev.done:
		case <-ctx.Done():
		}
	}

	attempts := 0
	var err error
	if ctx.Err() == nil {
		u.setState(InFlight)
		err = retry.Do(ctx, e.retryConfig(), func(err error) bool {
			return ctx.Err() == nil && !retry.IsPermanent(err)
		}, func(ctx context.Context, attempt int) error {
			attempts = attempt
			err := e.attempt(ctx, job, attempt, t)
			if err != nil && ctx.Err() == nil {
				e.metrics.RecordUploadAttempt("failure")
				log.Warn().Err(err).Int("attempt", attempt).Msg("upload attempt failed")
			}
			return err
		})
	}

	outcome := Outcome{JobID: job.ID, Attempts: attempts, BytesSent: t.bytesSent()}

	switch {
	case err != nil && ctx.Err() != nil, attempts == 0:
		cause := context.Cause(ctx)
		outcome.State = Canceled
		e.metrics.RecordUploadAttempt("canceled")
		t.finish(nil)
		e.release(u, func() {
			if errors.Is(cause, ErrCanceled) {
				e.journalRemove(job.ID)
			}
		})
		log.Debug().AnErr("cause", cause).Msg("upload canceled")
		u.finish(outcome, cause)

	case err != nil:
		outcome.State = Failed
		t.finish(&Event{State: Failed, Err: err, Percent: -1, BytesSent: outcome.BytesSent})
		e.release(u, func() {
			if jerr := e.journal.MarkFailed(job.ID, attempts, err); jerr != nil {
				log.Warn().Err(jerr).Msg("update upload journal")
			}
		})
		log.Error().Err(err).Int("attempts", attempts).Msg("upload failed")
		u.finish(outcome, err)

	default:
		outcome.State = Succeeded
		e.metrics.RecordUploadAttempt("success")
		t.finish(&Event{State: Succeeded, Percent: 100, BytesSent: outcome.BytesSent})
		e.release(u, func() { e.journalRemove(job.ID) })
		log.Debug().Int("attempts", attempts).Int64("bytes", outcome.BytesSent).Msg("upload transferred")

		var completionErr error
		if job.OnComplete != nil {
			if cerr := job.OnComplete(ctx, job.ID); cerr != nil {
				log.Warn().Err(cerr).Msg("upload completion callback failed")
				completionErr = &CompletionError{JobID: job.ID, Err: cerr}
			}
		}
		u.finish(outcome, completionErr)
	}
}

// attempt sends the whole source once.
func (e *Engine) attempt(ctx context.Context, job Job, attempt int, t *tracker) error {
	if e.config.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.AttemptTimeout)
		defer cancel()
	}

	src, err := job.Source.Open()
	if err != nil {
		return retry.Permanent(fmt.Errorf("open source: %w", err))
	}
	defer src.Close()

	t.startAttempt(attempt)
	size := job.Source.Size()

	var body io.Reader = &chunkReader{ctx: ctx, r: src, chunk: e.config.ChunkSize, attempt: attempt, tracker: t}
	if size == 0 {
		body = http.NoBody
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, job.URL, body)
	if err != nil {
		return retry.Permanent(fmt.Errorf("build upload request: %w", err))
	}
	if size > 0 {
		req.ContentLength = size
	} else if size < 0 {
		req.ContentLength = -1
	}

	contentType := job.ContentType
	if contentType == "" {
		contentType = job.Source.ContentType()
	}
	if contentType == "" {
		contentType = DefaultContentType
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload attempt %d: %w", attempt, err)
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()

	e.metrics.AddUploadBytes(t.bytesSent())
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &DestinationError{StatusCode: resp.StatusCode}
	}
	return nil
}

func (e *Engine) retryConfig() retry.Config {
	return retry.Config{
		MaxAttempts:    e.config.MaxAttempts,
		InitialBackoff: e.config.InitialBackoff,
		MaxBackoff:     e.config.MaxBackoff,
		Multiplier:     2.0,
		JitterFraction: 0.2,
	}
}

// release drops u from the active set and runs fn only while u still owns its
// id, so a finished job never touches the journal entry of its successor.
func (e *Engine) release(u *Upload, fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active[u.job.ID] != u {
		return
	}
	delete(e.active, u.job.ID)
	fn()
}

// recordTask must be called with mu held.
func (e *Engine) recordTask(job Job) {
	if e.journal == nil {
		return
	}
	pathed, ok := job.Source.(interface{ Path() string })
	if !ok {
		return
	}
	task := Task{
		VideoID:     job.ID,
		UploadURL:   job.URL,
		SourcePath:  pathed.Path(),
		ContentType: job.ContentType,
		Size:        job.Source.Size(),
	}
	if err := e.journal.Record(task); err != nil {
		e.logger.Warn().Err(err).Str("job_id", job.ID).Msg("record upload journal")
	}
}

func (e *Engine) journalRemove(id string) {
	if err := e.journal.Remove(id); err != nil {
		e.logger.Warn().Err(err).Str("job_id", id).Msg("remove upload journal entry")
	}
}
