package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diarysync"
	"diarysync/config"
)

func newBackend(t *testing.T) *httptest.Server {
	user := map[string]any{
		"id": "user-1", "email": "me@example.com", "displayName": "Me", "tier": "FREE",
		"timezone": "UTC", "defaultWatermarkPosition": "BOTTOM_RIGHT", "createdAt": "2024-01-01T00:00:00Z",
	}
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"accessToken": "access-1", "refreshToken": "refresh-1", "expiresIn": 3600, "user": user})
	})
	mux.HandleFunc("/api/v1/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, user)
	})
	mux.HandleFunc("/api/v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/api/v1/videos", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"content": []map[string]any{{
				"id": "video-1", "userId": "user-1", "date": "2024-06-15", "status": "READY",
				"createdAt": "2024-06-15T10:00:00Z", "updatedAt": "2024-06-15T10:00:00Z",
			}},
			"page": 0, "size": 20, "totalElements": 1, "totalPages": 1,
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type harness struct {
	t       *testing.T
	baseURL string
	dataDir string
}

func newHarness(t *testing.T, baseURL string) *harness {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	return &harness{t: t, baseURL: baseURL, dataDir: t.TempDir()}
}

// run executes one command in a fresh process-like app sharing the data dir.
func (h *harness) run(stdin string, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	a := &app{
		stdin:  strings.NewReader(stdin),
		stdout: &stdout,
		stderr: &stderr,
		configure: func(cfg *config.Config) {
			cfg.BaseURL = h.baseURL + "/api/v1"
			cfg.RateLimitRPS = 0
			cfg.PollInterval = time.Millisecond
		},
		options: []diarysync.Option{diarysync.WithRegisterer(prometheus.NewRegistry())},
	}
	root := newRootCmd(a)
	root.SetArgs(append([]string{"--data-dir", h.dataDir}, args...))
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.ExecuteContext(context.Background())
	require.NoError(h.t, a.close())
	return stdout.String(), stderr.String(), err
}

func TestLoginWhoamiLogout(t *testing.T) {
	h := newHarness(t, newBackend(t).URL)

	out, _, err := h.run("secret\n", "login", "--email", "me@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as Me (me@example.com)")

	out, _, err = h.run("", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "user-1")
	assert.Contains(t, out, "FREE")

	out, _, err = h.run("", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out")

	_, _, err = h.run("", "whoami")
	assert.ErrorIs(t, err, diarysync.ErrUnauthorized)
}

func TestLoginRequiresEmail(t *testing.T) {
	h := newHarness(t, newBackend(t).URL)
	_, _, err := h.run("secret\n", "login")
	assert.Error(t, err)
}

func TestVideosList_OfflineShowsCache(t *testing.T) {
	srv := newBackend(t)
	h := newHarness(t, srv.URL)

	_, _, err := h.run("", "login", "--email", "me@example.com", "--password", "secret")
	require.NoError(t, err)

	out, stderr, err := h.run("", "--json", "videos", "list")
	require.NoError(t, err)
	assert.NotContains(t, stderr, "offline")
	var page struct {
		Items []struct{ ID string }
		Stale bool
	}
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, "video-1", page.Items[0].ID)
	assert.False(t, page.Stale)

	srv.Close()

	out, stderr, err = h.run("", "videos", "list")
	require.NoError(t, err)
	assert.Contains(t, stderr, "offline: showing cached data")
	assert.Contains(t, out, "video-1")
	assert.Contains(t, out, "READY")
}

func TestUpload_MissingFile(t *testing.T) {
	h := newHarness(t, newBackend(t).URL)
	_, _, err := h.run("", "upload", h.dataDir+"/missing.mp4")
	assert.Error(t, err)
}

func TestUploadsList_Empty(t *testing.T) {
	h := newHarness(t, newBackend(t).URL)
	out, _, err := h.run("", "uploads", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No pending uploads")
}

func TestPrefs(t *testing.T) {
	h := newHarness(t, newBackend(t).URL)

	out, _, err := h.run("", "prefs", "--dark-mode=true", "--watermark", "TOP_LEFT")
	require.NoError(t, err)
	assert.Contains(t, out, "Dark mode:")
	assert.Contains(t, out, "TOP_LEFT")

	out, _, err = h.run("", "--json", "prefs")
	require.NoError(t, err)
	assert.Contains(t, out, `"darkMode": true`)
	assert.Contains(t, out, `"watermarkPosition": "TOP_LEFT"`)

	_, _, err = h.run("", "prefs", "--watermark", "SIDEWAYS")
	assert.ErrorIs(t, err, diarysync.ErrUnknownStatus)
}

func TestClipsCalendar_InvalidMonth(t *testing.T) {
	h := newHarness(t, newBackend(t).URL)
	_, _, err := h.run("", "clips", "calendar", "June")
	assert.ErrorContains(t, err, "want YYYY-MM")
}

func TestCompilationsCreate_RejectsReversedRange(t *testing.T) {
	h := newHarness(t, newBackend(t).URL)
	_, _, err := h.run("", "compilations", "create", "--from", "2024-06-30", "--to", "2024-06-01")
	assert.ErrorContains(t, err, "before")
}

func TestFormatSize(t *testing.T) {
	size := func(n int64) *int64 { return &n }
	tests := []struct {
		in   *int64
		want string
	}{
		{nil, "-"},
		{size(512), "512 B"},
		{size(1536), "1.5 KiB"},
		{size(10 * 1024 * 1024), "10.0 MiB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatSize(tt.in))
	}
}
