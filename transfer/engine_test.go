package transfer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memSource serves data from memory and counts open handles.
type memSource struct {
	data  []byte
	size  int64
	delay time.Duration
	opens atomic.Int32
	open  atomic.Int32
}

func newMemSource(n int) *memSource {
	data := bytes.Repeat([]byte("diary"), n/5+1)[:n]
	return &memSource{data: data, size: int64(n)}
}

func (s *memSource) Open() (io.ReadCloser, error) {
	s.opens.Add(1)
	s.open.Add(1)
	return &memReader{r: bytes.NewReader(s.data), src: s}, nil
}

func (s *memSource) Size() int64         { return s.size }
func (s *memSource) ContentType() string { return "video/mp4" }

type memReader struct {
	r      *bytes.Reader
	src    *memSource
	closed bool
}

func (m *memReader) Read(p []byte) (int, error) {
	if m.src.delay > 0 {
		time.Sleep(m.src.delay)
	}
	return m.r.Read(p)
}

func (m *memReader) Close() error {
	if !m.closed {
		m.closed = true
		m.src.open.Add(-1)
	}
	return nil
}

// destination is a PUT endpoint that fails the first failures requests.
type destination struct {
	mu       sync.Mutex
	failures int
	hits     int
	received [][]byte
	types    []string
}

func (d *destination) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	d.mu.Lock()
	d.hits++
	fail := d.hits <= d.failures
	d.received = append(d.received, body)
	d.types = append(d.types, r.Header.Get("Content-Type"))
	d.mu.Unlock()

	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if fail {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (d *destination) Hits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hits
}

func testEngine(opts ...Option) *Engine {
	return NewEngine(Config{ChunkSize: 1024, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}, opts...)
}

func collect(u *Upload) []Event {
	var events []Event
	for ev := range u.Events() {
		events = append(events, ev)
	}
	return events
}

func TestEngine_UploadSucceeds(t *testing.T) {
	dest := &destination{}
	srv := httptest.NewServer(dest)
	defer srv.Close()

	src := newMemSource(100 * 1024)
	var completed atomic.Int32
	e := testEngine()

	u := e.Enqueue(context.Background(), Job{
		ID:     "video-1",
		URL:    srv.URL + "/upload",
		Source: src,
		OnComplete: func(ctx context.Context, id string) error {
			assert.Equal(t, "video-1", id)
			completed.Add(1)
			return nil
		},
	})

	events := collect(u)
	outcome, err := u.Wait()
	require.NoError(t, err)

	assert.Equal(t, Succeeded, outcome.State)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, int64(len(src.data)), outcome.BytesSent)
	assert.Equal(t, int32(1), completed.Load())
	assert.Equal(t, int32(0), src.open.Load(), "source handle left open")
	require.Len(t, dest.received, 1)
	assert.Equal(t, src.data, dest.received[0])
	assert.Equal(t, "video/mp4", dest.types[0])

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, Succeeded, last.State)
	assert.Equal(t, 100, last.Percent)

	hundreds := 0
	prev := -1
	for _, ev := range events {
		assert.GreaterOrEqual(t, ev.Percent, prev, "progress went backwards")
		prev = ev.Percent
		if ev.Percent == 100 {
			hundreds++
		}
	}
	assert.Equal(t, 1, hundreds)

	_, active := e.Active("video-1")
	assert.False(t, active)
}

func TestEngine_BoundedRetry(t *testing.T) {
	dest := &destination{failures: 4}
	srv := httptest.NewServer(dest)
	defer srv.Close()

	var completed atomic.Int32
	u := testEngine().Enqueue(context.Background(), Job{
		ID:     "video-2",
		URL:    srv.URL,
		Source: newMemSource(4096),
		OnComplete: func(context.Context, string) error {
			completed.Add(1)
			return nil
		},
	})

	events := collect(u)
	outcome, err := u.Wait()
	require.Error(t, err)

	assert.Equal(t, Failed, outcome.State)
	assert.Equal(t, 3, outcome.Attempts)
	assert.Equal(t, 3, dest.Hits())
	assert.Zero(t, completed.Load())

	var destErr *DestinationError
	require.ErrorAs(t, err, &destErr)
	assert.Equal(t, http.StatusServiceUnavailable, destErr.StatusCode)

	last := events[len(events)-1]
	assert.Equal(t, Failed, last.State)
	assert.Error(t, last.Err)
}

func TestEngine_RetryThenSucceed(t *testing.T) {
	dest := &destination{failures: 2}
	srv := httptest.NewServer(dest)
	defer srv.Close()

	src := newMemSource(10 * 1024)
	u := testEngine().Enqueue(context.Background(), Job{ID: "video-3", URL: srv.URL, Source: src})

	events := collect(u)
	outcome, err := u.Wait()
	require.NoError(t, err)

	assert.Equal(t, 3, outcome.Attempts)
	assert.Equal(t, int32(3), src.opens.Load())
	assert.Equal(t, int32(0), src.open.Load())

	prev := -1
	for _, ev := range events {
		assert.GreaterOrEqual(t, ev.Percent, prev)
		prev = ev.Percent
	}
	assert.Equal(t, 100, prev)
}

func TestEngine_CancelEmitsNoFailure(t *testing.T) {
	srv := httptest.NewServer(&destination{})
	defer srv.Close()

	src := newMemSource(512 * 1024)
	src.delay = time.Millisecond
	e := testEngine()
	u := e.Enqueue(context.Background(), Job{ID: "video-4", URL: srv.URL, Source: src})

	var events []Event
	for ev := range u.Events() {
		events = append(events, ev)
		if len(events) == 1 {
			assert.True(t, e.Cancel("video-4"))
		}
	}

	outcome, err := u.Wait()
	assert.ErrorIs(t, err, ErrCanceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Canceled, outcome.State)
	assert.Equal(t, Canceled, u.State())
	for _, ev := range events {
		assert.NotEqual(t, Failed, ev.State)
		assert.NotEqual(t, Succeeded, ev.State)
	}
	assert.Eventually(t, func() bool { return src.open.Load() == 0 }, time.Second, 5*time.Millisecond)
}

func TestEngine_ContextCancel(t *testing.T) {
	srv := httptest.NewServer(&destination{})
	defer srv.Close()

	src := newMemSource(512 * 1024)
	src.delay = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	u := testEngine().Enqueue(ctx, Job{ID: "video-5", URL: srv.URL, Source: src})

	<-u.Events()
	cancel()

	_, err := u.Wait()
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrSuperseded)
	assert.NotErrorIs(t, err, ErrCanceled)
}

func TestEngine_Supersede(t *testing.T) {
	dest := &destination{}
	srv := httptest.NewServer(dest)
	defer srv.Close()

	slow := newMemSource(512 * 1024)
	slow.delay = time.Millisecond
	e := testEngine()

	first := e.Enqueue(context.Background(), Job{ID: "video-6", URL: srv.URL, Source: slow})
	<-first.Events()

	fresh := newMemSource(2048)
	second := e.Enqueue(context.Background(), Job{ID: "video-6", URL: srv.URL, Source: fresh})

	_, err := first.Wait()
	assert.ErrorIs(t, err, ErrSuperseded)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), slow.open.Load())

	outcome, err := second.Wait()
	require.NoError(t, err)
	assert.Equal(t, Succeeded, outcome.State)
	assert.Equal(t, int64(2048), outcome.BytesSent)

	_, active := e.Active("video-6")
	assert.False(t, active)
}

func TestEngine_CompletionFailureKeepsTransfer(t *testing.T) {
	srv := httptest.NewServer(&destination{})
	defer srv.Close()

	boom := errors.New("complete endpoint down")
	u := testEngine().Enqueue(context.Background(), Job{
		ID:         "video-7",
		URL:        srv.URL,
		Source:     newMemSource(1000),
		OnComplete: func(context.Context, string) error { return boom },
	})

	outcome, err := u.Wait()
	assert.Equal(t, Succeeded, outcome.State)

	var cerr *CompletionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "video-7", cerr.JobID)
	assert.ErrorIs(t, err, boom)
}

func TestEngine_UnknownSizeReportsBytes(t *testing.T) {
	dest := &destination{}
	srv := httptest.NewServer(dest)
	defer srv.Close()

	src := newMemSource(5000)
	src.size = -1
	u := testEngine().Enqueue(context.Background(), Job{ID: "video-8", URL: srv.URL, Source: src})

	events := collect(u)
	_, err := u.Wait()
	require.NoError(t, err)

	require.Greater(t, len(events), 1)
	var prevBytes int64
	for _, ev := range events[:len(events)-1] {
		assert.Equal(t, -1, ev.Percent)
		assert.Greater(t, ev.BytesSent, prevBytes)
		prevBytes = ev.BytesSent
	}
	assert.Equal(t, int64(5000), prevBytes)
	assert.Equal(t, 100, events[len(events)-1].Percent)
	assert.Equal(t, src.data, dest.received[0])
}

func TestEngine_EmptySource(t *testing.T) {
	dest := &destination{}
	srv := httptest.NewServer(dest)
	defer srv.Close()

	u := testEngine().Enqueue(context.Background(), Job{ID: "video-9", URL: srv.URL, Source: newMemSource(0)})
	outcome, err := u.Wait()
	require.NoError(t, err)
	assert.Equal(t, Succeeded, outcome.State)
	assert.Empty(t, dest.received[0])
}

func TestEngine_InvalidJob(t *testing.T) {
	u := testEngine().Enqueue(context.Background(), Job{ID: "video-10"})

	events := collect(u)
	_, err := u.Wait()
	assert.ErrorIs(t, err, ErrInvalidJob)
	require.Len(t, events, 1)
	assert.Equal(t, Failed, events[0].State)
}

func TestEngine_ClosedRejectsJobs(t *testing.T) {
	e := testEngine()
	require.NoError(t, e.Close())

	u := e.Enqueue(context.Background(), Job{ID: "video-11", URL: "http://127.0.0.1:1", Source: newMemSource(10)})
	outcome, err := u.Wait()
	assert.Error(t, err)
	assert.Equal(t, Failed, outcome.State)
}

func TestEngine_Journal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.mp4")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{0x42}, 3000), 0o644))

	journal, err := OpenJournal(filepath.Join(dir, "uploads.json"))
	require.NoError(t, err)
	defer journal.Close()

	src, err := NewFileSource(path)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), src.Size())

	t.Run("failure keeps task", func(t *testing.T) {
		srv := httptest.NewServer(&destination{failures: 10})
		defer srv.Close()

		u := testEngine(WithJournal(journal)).Enqueue(context.Background(), Job{ID: "video-12", URL: srv.URL, Source: src})
		_, err := u.Wait()
		require.Error(t, err)

		tasks := journal.Tasks()
		require.Len(t, tasks, 1)
		assert.Equal(t, "video-12", tasks[0].VideoID)
		assert.Equal(t, srv.URL, tasks[0].UploadURL)
		assert.Equal(t, path, tasks[0].SourcePath)
		assert.Equal(t, 3, tasks[0].Attempts)
		assert.NotEmpty(t, tasks[0].LastError)
	})

	t.Run("success removes task", func(t *testing.T) {
		srv := httptest.NewServer(&destination{})
		defer srv.Close()

		u := testEngine(WithJournal(journal)).Enqueue(context.Background(), Job{ID: "video-12", URL: srv.URL, Source: src})
		_, err := u.Wait()
		require.NoError(t, err)
		assert.Empty(t, journal.Tasks())
	})

	t.Run("close keeps task", func(t *testing.T) {
		url, started := stalledDestination(t)
		e := testEngine(WithJournal(journal))
		u := e.Enqueue(context.Background(), Job{ID: "video-12", URL: url, Source: src})
		<-started

		require.NoError(t, e.Close())
		outcome, err := u.Wait()
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrCanceled)
		assert.Equal(t, Canceled, outcome.State)

		tasks := journal.Tasks()
		require.Len(t, tasks, 1)
		assert.Equal(t, "video-12", tasks[0].VideoID)
		assert.Equal(t, path, tasks[0].SourcePath)
	})

	t.Run("context cancel keeps task", func(t *testing.T) {
		url, started := stalledDestination(t)
		ctx, cancel := context.WithCancel(context.Background())
		u := testEngine(WithJournal(journal)).Enqueue(ctx, Job{ID: "video-12", URL: url, Source: src})
		<-started

		cancel()
		_, err := u.Wait()
		assert.ErrorIs(t, err, context.Canceled)
		require.Len(t, journal.Tasks(), 1)
	})

	t.Run("supersede keeps task", func(t *testing.T) {
		url, started := stalledDestination(t)
		e := testEngine(WithJournal(journal))
		first := e.Enqueue(context.Background(), Job{ID: "video-12", URL: url, Source: src})
		<-started

		second := e.Enqueue(context.Background(), Job{ID: "video-12", URL: url, Source: src})
		_, err := first.Wait()
		assert.ErrorIs(t, err, ErrSuperseded)
		require.Len(t, journal.Tasks(), 1)

		<-started
		second.Cancel()
		_, err = second.Wait()
		assert.ErrorIs(t, err, ErrCanceled)
	})

	t.Run("explicit cancel removes task", func(t *testing.T) {
		url, started := stalledDestination(t)
		e := testEngine(WithJournal(journal))
		u := e.Enqueue(context.Background(), Job{ID: "video-12", URL: url, Source: src})
		<-started
		require.Len(t, journal.Tasks(), 1)

		assert.True(t, e.Cancel("video-12"))
		_, err := u.Wait()
		assert.ErrorIs(t, err, ErrCanceled)
		assert.Empty(t, journal.Tasks())
	})
}

// stalledDestination accepts each upload body and then holds the response
// until the client goes away. started receives once per request.
func stalledDestination(t *testing.T) (string, <-chan struct{}) {
	t.Helper()
	started := make(chan struct{}, 4)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		started <- struct{}{}
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })
	return srv.URL, started
}

func TestEngine_AttemptTimeoutIsRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		if hits.Add(1) == 1 {
			select {
			case <-time.After(300 * time.Millisecond):
			case <-r.Context().Done():
			}
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := NewEngine(Config{
		ChunkSize:      1024,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		AttemptTimeout: 100 * time.Millisecond,
	})
	u := e.Enqueue(context.Background(), Job{ID: "video-13", URL: srv.URL, Source: newMemSource(2048)})

	outcome, err := u.Wait()
	require.NoError(t, err)
	assert.Equal(t, Succeeded, outcome.State)
	assert.Equal(t, 2, outcome.Attempts)
	assert.Equal(t, int32(2), hits.Load())
}
