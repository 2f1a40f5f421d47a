package transfer

import (
	"context"
	"io"
	"sync"
)

// tracker turns byte counts into de-duplicated, monotonic events. Its high
// water marks survive retries, so a restarted attempt stays silent until it
// passes the furthest point already reported. It is safe for use by the
// transport's body-writing goroutine and the job goroutine at once.
type tracker struct {
	mu        sync.Mutex
	jobID     string
	total     int64
	events    chan Event
	closed    bool
	lastPct   int
	lastBytes int64
	attempt   int
	sent      int64
}

func newTracker(jobID string, total int64, events chan Event) *tracker {
	return &tracker{jobID: jobID, total: total, events: events, lastPct: -1}
}

// startAttempt resets the per-attempt byte count.
func (t *tracker) startAttempt(attempt int) {
	t.mu.Lock()
	t.attempt = attempt
	t.sent = 0
	t.mu.Unlock()
}

// add records n more bytes of the current attempt and may emit a progress event.
func (t *tracker) add(attempt int, n int) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || attempt != t.attempt {
		return
	}
	t.sent += int64(n)

	if t.total <= 0 {
		if t.sent > t.lastBytes {
			t.lastBytes = t.sent
			t.emitLocked(Event{Percent: -1, BytesSent: t.sent, State: InFlight})
		}
		return
	}

	// 100 is reserved for the destination's acknowledgement.
	pct := int(t.sent * 100 / t.total)
	if pct > 99 {
		pct = 99
	}
	if pct > t.lastPct {
		t.lastPct = pct
		if t.sent > t.lastBytes {
			t.lastBytes = t.sent
		}
		t.emitLocked(Event{Percent: pct, BytesSent: t.sent, State: InFlight})
	}
}

// bytesSent returns the bytes of the current attempt.
func (t *tracker) bytesSent() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sent
}

// finish emits the terminal event, if any, and closes the channel.
func (t *tracker) finish(final *Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if final != nil {
		t.sendLocked(*final)
	}
	t.closed = true
	close(t.events)
}

// emitLocked drops progress events when the reader is behind, always keeping
// one slot free for the terminal event.
func (t *tracker) emitLocked(ev Event) {
	if len(t.events) >= cap(t.events)-1 {
		return
	}
	t.sendLocked(ev)
}

func (t *tracker) sendLocked(ev Event) {
	ev.JobID = t.jobID
	ev.Attempt = t.attempt
	ev.TotalBytes = t.total
	select {
	case t.events <- ev:
	default:
	}
}

// chunkReader reads at most chunk bytes per call, checks ctx before every
// read and reports progress.
type chunkReader struct {
	ctx     context.Context
	r       io.Reader
	chunk   int
	attempt int
	tracker *tracker
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	if len(p) > c.chunk {
		p = p[:c.chunk]
	}
	n, err := c.r.Read(p)
	c.tracker.add(c.attempt, n)
	return n, err
}
