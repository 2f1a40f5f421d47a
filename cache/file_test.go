package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diarysync/model"
)

func video(id string, status model.VideoStatus) model.Video {
	return model.Video{ID: id, UserID: "user-1", Date: model.NewDate(2024, time.June, 15), Status: status}
}

func day(d int, clipID string) model.CalendarDay {
	cd := model.CalendarDay{Date: model.NewDate(2024, time.June, d)}
	if clipID != "" {
		status := model.ClipReady
		cd.HasClip = true
		cd.ClipID = clipID
		cd.ClipStatus = &status
	}
	return cd
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(time.Second):
		t.Fatal("no value received")
	}
	var zero T
	return zero
}

func TestTable_PutGetDelete(t *testing.T) {
	s := NewMemoryStore()
	videos := s.Videos()

	_, ok := videos.Get("v1")
	assert.False(t, ok)

	require.NoError(t, videos.Put(video("v1", model.VideoProcessing)))
	got, ok := videos.Get("v1")
	require.True(t, ok)
	assert.Equal(t, model.VideoProcessing, got.Status)

	require.NoError(t, videos.Put(video("v1", model.VideoReady)))
	got, _ = videos.Get("v1")
	assert.Equal(t, model.VideoReady, got.Status)

	require.NoError(t, videos.Delete("v1"))
	_, ok = videos.Get("v1")
	assert.False(t, ok)
}

func TestTable_ReplaceList(t *testing.T) {
	s := NewMemoryStore()
	videos := s.Videos()

	_, ok := videos.List("all")
	assert.False(t, ok)

	require.NoError(t, videos.ReplaceList("all", []model.Video{video("a", model.VideoReady), video("b", model.VideoReady)}))
	require.NoError(t, videos.ReplaceList("all", []model.Video{video("c", model.VideoProcessing)}))

	list, ok := videos.List("all")
	require.True(t, ok)
	require.Len(t, list, 1)
	assert.Equal(t, "c", list[0].ID)

	require.NoError(t, videos.ReplaceList("all", nil))
	list, ok = videos.List("all")
	assert.True(t, ok)
	assert.Empty(t, list)

	// entries from older lists stay addressable by id
	_, ok = videos.Get("a")
	assert.True(t, ok)
}

func TestTable_DeleteRemovesFromLists(t *testing.T) {
	s := NewMemoryStore()
	clips := s.Clips()
	require.NoError(t, clips.ReplaceList("all", []model.Clip{{ID: "c1"}, {ID: "c2"}}))

	require.NoError(t, clips.Delete("c1"))
	list, _ := clips.List("all")
	require.Len(t, list, 1)
	assert.Equal(t, "c2", list[0].ID)
}

func TestCalendar_ReplaceIsWholesale(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.ReplaceCalendarMonth(2024, 6, []model.CalendarDay{day(1, "c1"), day(2, ""), day(3, "c3")}))
	require.NoError(t, s.ReplaceCalendarMonth(2024, 6, []model.CalendarDay{day(10, "c10")}))

	days, ok := s.CalendarMonth(2024, 6)
	require.True(t, ok)
	assert.Equal(t, []model.CalendarDay{day(10, "c10")}, days)

	_, ok = s.CalendarMonth(2024, 7)
	assert.False(t, ok)
}

func TestWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewMemoryStore()
	videos := s.Videos()
	require.NoError(t, videos.Put(video("v1", model.VideoUploading)))

	ch := videos.Watch(ctx, "v1")
	assert.Equal(t, model.VideoUploading, receive(t, ch).Status)

	require.NoError(t, videos.Put(video("v1", model.VideoProcessing)))
	require.NoError(t, videos.Put(video("v1", model.VideoReady)))
	assert.Equal(t, model.VideoReady, receive(t, ch).Status, "latest value wins")

	cancel()
	require.Eventually(t, func() bool {
		_, open := <-ch
		return !open
	}, time.Second, time.Millisecond)
}

func TestWatchList(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewMemoryStore()
	videos := s.Videos()

	ch := videos.WatchList(ctx, "all")
	require.NoError(t, videos.ReplaceList("all", []model.Video{video("a", model.VideoProcessing)}))
	list := receive(t, ch)
	require.Len(t, list, 1)

	require.NoError(t, videos.Put(video("a", model.VideoReady)))
	list = receive(t, ch)
	assert.Equal(t, model.VideoReady, list[0].Status)

	require.NoError(t, videos.Delete("a"))
	assert.Empty(t, receive(t, ch))
}

func TestWatchCalendarMonth(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewMemoryStore()

	ch := s.WatchCalendarMonth(ctx, 2024, 6)
	require.NoError(t, s.ReplaceCalendarMonth(2024, 5, []model.CalendarDay{day(1, "x")}))
	require.NoError(t, s.ReplaceCalendarMonth(2024, 6, []model.CalendarDay{day(15, "c15")}))

	days := receive(t, ch)
	assert.Equal(t, []model.CalendarDay{day(15, "c15")}, days)
}

func TestFileStore_PersistsAndClears(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	s, err := OpenFileStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Videos().ReplaceList("all", []model.Video{video("v1", model.VideoReady)}))
	require.NoError(t, s.Compilations().Put(model.Compilation{ID: "comp-1", Status: model.CompilationCompleted}))
	require.NoError(t, s.ReplaceCalendarMonth(2024, 6, []model.CalendarDay{day(15, "c15")}))
	require.NoError(t, s.Close())

	s, err = OpenFileStore(path)
	require.NoError(t, err)
	defer s.Close()

	list, ok := s.Videos().List("all")
	require.True(t, ok)
	assert.Equal(t, "v1", list[0].ID)
	assert.Equal(t, model.NewDate(2024, time.June, 15), list[0].Date)
	comp, ok := s.Compilations().Get("comp-1")
	require.True(t, ok)
	assert.Equal(t, model.CompilationCompleted, comp.Status)
	days, _ := s.CalendarMonth(2024, 6)
	assert.Equal(t, []model.CalendarDay{day(15, "c15")}, days)

	require.NoError(t, s.Clear())
	_, ok = s.Videos().Get("v1")
	assert.False(t, ok)
	_, ok = s.CalendarMonth(2024, 6)
	assert.False(t, ok)
}

func TestClear_NotifiesWatchers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewMemoryStore()
	videos := s.Videos()
	require.NoError(t, videos.ReplaceList("all", []model.Video{video("v1", model.VideoReady)}))
	require.NoError(t, s.ReplaceCalendarMonth(2024, 6, []model.CalendarDay{day(15, "c15")}))

	item := videos.Watch(ctx, "v1")
	list := videos.WatchList(ctx, "all")
	month := s.WatchCalendarMonth(ctx, 2024, 6)
	assert.Equal(t, "v1", receive(t, item).ID)
	require.Len(t, receive(t, list), 1)
	require.Len(t, receive(t, month), 1)

	require.NoError(t, s.Clear())

	assert.Equal(t, model.Video{}, receive(t, item))
	cleared := receive(t, list)
	assert.NotNil(t, cleared)
	assert.Empty(t, cleared)
	assert.Empty(t, receive(t, month))
}

func TestFileStore_DiscardsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s, err := OpenFileStore(path)
	require.NoError(t, err)
	defer s.Close()

	_, ok := s.Videos().List("all")
	assert.False(t, ok)
	require.NoError(t, s.Videos().Put(video("v1", model.VideoReady)))
}
