package diarysync

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diarysync/config"
	"diarysync/model"
	"diarysync/transfer"
)

// fakeBackend emulates the diary API and the object storage behind the
// presigned upload URL.
type fakeBackend struct {
	t   *testing.T
	srv *httptest.Server

	mu            sync.Mutex
	token         string
	refreshes     int
	completed     []string
	completedAt   int
	uploads       map[string][32]byte
	uploadSize    map[string]int
	videoPolls    int
	videoStatuses []string
	logouts       int
	devices       []string
	failDevices   bool
}

func newFakeBackend(t *testing.T) *fakeBackend {
	b := &fakeBackend{
		t:             t,
		token:         "access-1",
		uploads:       make(map[string][32]byte),
		uploadSize:    make(map[string]int),
		videoStatuses: []string{"PROCESSING", "READY"},
	}
	b.srv = httptest.NewServer(b)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (b *fakeBackend) authResponse(access string) map[string]any {
	return map[string]any{
		"accessToken":  access,
		"refreshToken": "refresh-token",
		"expiresIn":    3600,
		"user": map[string]any{
			"id": "user-1", "email": "me@example.com", "displayName": "Me", "tier": "FREE",
			"timezone": "UTC", "defaultWatermarkPosition": "BOTTOM_RIGHT", "createdAt": "2024-01-01T00:00:00Z",
		},
	}
}

func (b *fakeBackend) video(id, status string) map[string]any {
	return map[string]any{
		"id": id, "userId": "user-1", "date": "2024-06-15", "status": status,
		"createdAt": "2024-06-15T10:00:00Z", "updatedAt": "2024-06-15T10:00:00Z",
	}
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/s3/") {
		b.servePut(w, r)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/v1")
	switch path {
	case "/auth/login", "/auth/register":
		b.writeJSON(w, http.StatusOK, b.authResponse("access-1"))
		return
	case "/auth/refresh":
		b.mu.Lock()
		b.refreshes++
		b.token = "access-2"
		b.mu.Unlock()
		b.writeJSON(w, http.StatusOK, b.authResponse("access-2"))
		return
	}

	b.mu.Lock()
	token := b.token
	b.mu.Unlock()
	if r.Header.Get("Authorization") != "Bearer "+token {
		b.writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "token expired"})
		return
	}
	assert.Equal(b.t, "user-1", r.Header.Get("X-User-Id"))

	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case path == "/auth/logout":
		b.logouts++
		w.WriteHeader(http.StatusNoContent)
	case path == "/auth/me":
		b.writeJSON(w, http.StatusOK, b.authResponse(token)["user"])
	case path == "/videos/upload/initiate":
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(b.t, "2024-06-15", req["date"])
		b.writeJSON(w, http.StatusOK, map[string]string{"videoId": "video-1", "uploadUrl": b.srv.URL + "/s3/video-1?sig=abc"})
	case path == "/videos/video-1/upload/complete":
		b.completed = append(b.completed, "video-1")
		w.WriteHeader(http.StatusOK)
	case path == "/videos/video-1":
		status := b.videoStatuses[min(b.videoPolls, len(b.videoStatuses)-1)]
		b.videoPolls++
		b.writeJSON(w, http.StatusOK, b.video("video-1", status))
	case path == "/notifications/register-device":
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		b.devices = append(b.devices, req["fcmToken"])
		if b.failDevices {
			b.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"message": "down"})
			return
		}
		w.WriteHeader(http.StatusOK)
	default:
		b.writeJSON(w, http.StatusNotFound, map[string]string{"message": "no route " + path})
	}
}

func (b *fakeBackend) servePut(w http.ResponseWriter, r *http.Request) {
	assert.Equal(b.t, http.MethodPut, r.Method)
	assert.Empty(b.t, r.Header.Get("Authorization"), "presigned uploads carry no bearer token")
	h := sha256.New()
	n, err := io.Copy(h, r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/s3/")
	b.mu.Lock()
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	b.uploads[id] = sum
	b.uploadSize[id] = int(n)
	b.completedAt = len(b.completed)
	b.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func newTestClient(t *testing.T, b *fakeBackend) *Client {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.BaseURL = b.srv.URL + "/api/v1"
	cfg.DataDir = t.TempDir()
	cfg.RateLimitRPS = 0
	cfg.PollInterval = time.Millisecond
	cfg.UploadInitialBackoff = time.Millisecond
	cfg.UploadMaxBackoff = 5 * time.Millisecond

	c, err := New(cfg, WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func writeVideoFile(t *testing.T, size int) (string, [32]byte) {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i * 31)
	}
	path := filepath.Join(t.TempDir(), "today.mp4")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path, sha256.Sum256(data)
}

func TestClient_LoginUploadPollCache(t *testing.T) {
	b := newFakeBackend(t)
	c := newTestClient(t, b)
	ctx := context.Background()

	user, err := c.Login(ctx, "me@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)

	loggedIn, err := c.IsLoggedIn(ctx)
	require.NoError(t, err)
	assert.True(t, loggedIn)

	path, sum := writeVideoFile(t, 10*1024*1024)
	upload, err := c.StartUpload(ctx, model.NewDate(2024, time.June, 15), path)
	require.NoError(t, err)
	assert.Equal(t, "video-1", upload.ID())

	lastPercent := -1
	hundreds := 0
	for ev := range upload.Events() {
		require.GreaterOrEqual(t, ev.Percent, lastPercent)
		lastPercent = ev.Percent
		if ev.Percent == 100 {
			hundreds++
		}
	}
	outcome, err := upload.Wait()
	require.NoError(t, err)
	assert.Equal(t, transfer.Succeeded, outcome.State)
	assert.Equal(t, 1, hundreds)

	b.mu.Lock()
	assert.Equal(t, sum, b.uploads["video-1"])
	assert.Equal(t, 10*1024*1024, b.uploadSize["video-1"])
	assert.Equal(t, []string{"video-1"}, b.completed)
	assert.Equal(t, 0, b.completedAt, "completion is sent after the bytes")
	b.mu.Unlock()
	assert.Empty(t, c.PendingUploads())

	var statuses []model.VideoStatus
	for v, err := range c.Videos().PollReady(ctx, "video-1") {
		require.NoError(t, err)
		statuses = append(statuses, v.Status)
	}
	assert.Equal(t, []model.VideoStatus{model.VideoProcessing, model.VideoReady}, statuses)

	cached, ok := c.cache.Videos().Get("video-1")
	require.True(t, ok)
	assert.Equal(t, model.VideoReady, cached.Status)
}

func TestClient_RefreshesExpiredToken(t *testing.T) {
	b := newFakeBackend(t)
	c := newTestClient(t, b)
	ctx := context.Background()

	_, err := c.Login(ctx, "me@example.com", "secret")
	require.NoError(t, err)

	b.mu.Lock()
	b.token = "rotated-by-server"
	b.mu.Unlock()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Me(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	b.mu.Lock()
	assert.Equal(t, 1, b.refreshes)
	b.mu.Unlock()

	cred, ok, err := c.creds.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "access-2", cred.AccessToken)
}

func TestClient_LogoutClearsEverything(t *testing.T) {
	b := newFakeBackend(t)
	c := newTestClient(t, b)
	ctx := context.Background()

	_, err := c.Login(ctx, "me@example.com", "secret")
	require.NoError(t, err)
	_, err = c.Videos().FetchAndCache(ctx, "video-1")
	require.NoError(t, err)

	require.NoError(t, c.Logout(ctx))
	b.mu.Lock()
	assert.Equal(t, 1, b.logouts)
	b.mu.Unlock()

	loggedIn, err := c.IsLoggedIn(ctx)
	require.NoError(t, err)
	assert.False(t, loggedIn)
	_, ok := c.cache.Videos().Get("video-1")
	assert.False(t, ok)

	// a failing remote logout still signs out locally
	_, err = c.Login(ctx, "me@example.com", "secret")
	require.NoError(t, err)
	b.srv.Close()
	require.NoError(t, c.Logout(ctx))
	loggedIn, _ = c.IsLoggedIn(ctx)
	assert.False(t, loggedIn)
}

func TestClient_OnlineFollowsConnectivity(t *testing.T) {
	b := newFakeBackend(t)
	c := newTestClient(t, b)
	ctx := context.Background()

	_, err := c.Login(ctx, "me@example.com", "secret")
	require.NoError(t, err)
	assert.True(t, c.Online())

	b.srv.Close()
	for range c.cfg.CircuitFailureThreshold {
		_, err := c.Me(ctx)
		require.Error(t, err)
		assert.True(t, IsTransient(err))
	}
	assert.False(t, c.Online())

	_, err = c.Me(ctx)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestClient_RegisterDeviceKeepsToken(t *testing.T) {
	b := newFakeBackend(t)
	c := newTestClient(t, b)
	ctx := context.Background()

	_, err := c.Login(ctx, "me@example.com", "secret")
	require.NoError(t, err)

	b.mu.Lock()
	b.failDevices = true
	b.mu.Unlock()
	err = c.RegisterDevice(ctx, "push-1")
	assert.Error(t, err)

	prefs, err := c.Preferences(ctx)
	require.NoError(t, err)
	assert.Equal(t, "push-1", prefs.PushToken)
	b.mu.Lock()
	assert.Equal(t, []string{"push-1"}, b.devices)
	b.mu.Unlock()

	require.NoError(t, c.SetDarkMode(ctx, true))
	require.NoError(t, c.SetWatermarkPosition(ctx, model.WatermarkTopLeft))
	prefs, _ = c.Preferences(ctx)
	assert.True(t, prefs.DarkMode)
	assert.Equal(t, model.WatermarkTopLeft, prefs.WatermarkPosition)
}

func TestClient_ResumeUploads(t *testing.T) {
	b := newFakeBackend(t)
	c := newTestClient(t, b)
	ctx := context.Background()

	_, err := c.Login(ctx, "me@example.com", "secret")
	require.NoError(t, err)

	path, sum := writeVideoFile(t, 64*1024)
	require.NoError(t, c.journal.Record(transfer.Task{
		VideoID:    "video-1",
		UploadURL:  b.srv.URL + "/s3/video-1?sig=abc",
		SourcePath: path,
		Size:       64 * 1024,
	}))
	require.NoError(t, c.journal.Record(transfer.Task{
		VideoID:    "video-gone",
		UploadURL:  b.srv.URL + "/s3/video-gone",
		SourcePath: filepath.Join(t.TempDir(), "missing.mp4"),
	}))

	uploads, err := c.ResumeUploads(ctx)
	require.NoError(t, err)
	require.Len(t, uploads, 1)

	_, err = uploads[0].Wait()
	require.NoError(t, err)
	assert.Empty(t, c.PendingUploads())

	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Equal(t, sum, b.uploads["video-1"])
	assert.Equal(t, []string{"video-1"}, b.completed)
}

func TestNew_LocksDataDir(t *testing.T) {
	b := newFakeBackend(t)
	c := newTestClient(t, b)

	cfg := *c.cfg
	_, err := New(&cfg)
	assert.ErrorIs(t, err, ErrLockTimeout)
}
