package cache

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"diarysync/internal/storage"
	"diarysync/model"
)

type tableData[T any] struct {
	Items map[string]T        `json:"items"`
	Lists map[string][]string `json:"lists"`
}

type snapshot struct {
	Videos       tableData[model.Video]         `json:"videos"`
	Clips        tableData[model.Clip]          `json:"clips"`
	Compilations tableData[model.Compilation]   `json:"compilations"`
	Calendar     map[string][]model.CalendarDay `json:"calendar"`
}

func (s *snapshot) init() {
	initTable(&s.Videos)
	initTable(&s.Clips)
	initTable(&s.Compilations)
	if s.Calendar == nil {
		s.Calendar = make(map[string][]model.CalendarDay)
	}
}

func initTable[T any](t *tableData[T]) {
	if t.Items == nil {
		t.Items = make(map[string]T)
	}
	if t.Lists == nil {
		t.Lists = make(map[string][]string)
	}
}

func calendarKey(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

// FileStore is a Store kept in memory and, when opened with a path, mirrored
// to one JSON file after every write.
type FileStore struct {
	mu       sync.RWMutex
	doc      *storage.Document[snapshot]
	snap     snapshot
	logger   zerolog.Logger
	calendar *hub[string, []model.CalendarDay]

	videos       *table[model.Video]
	clips        *table[model.Clip]
	compilations *table[model.Compilation]
}

var _ Store = (*FileStore)(nil)

// Option configures a FileStore.
type Option func(*FileStore)

// WithLogger sets the store logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *FileStore) { s.logger = logger }
}

// NewMemoryStore returns a store that is never persisted.
func NewMemoryStore(opts ...Option) *FileStore {
	s := &FileStore{logger: zerolog.Nop(), calendar: newHub[string, []model.CalendarDay]()}
	s.snap.init()
	s.videos = newTable(s, func(sn *snapshot) *tableData[model.Video] { return &sn.Videos },
		func(v model.Video) string { return v.ID })
	s.clips = newTable(s, func(sn *snapshot) *tableData[model.Clip] { return &sn.Clips },
		func(c model.Clip) string { return c.ID })
	s.compilations = newTable(s, func(sn *snapshot) *tableData[model.Compilation] { return &sn.Compilations },
		func(c model.Compilation) string { return c.ID })
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenFileStore loads the cache file at path, creating it on first write. A
// corrupt file is discarded; the cache is rebuilt from the server.
func OpenFileStore(path string, opts ...Option) (*FileStore, error) {
	s := NewMemoryStore(opts...)
	doc, err := storage.OpenDocument[snapshot](path, "cache", 0o600)
	if err != nil {
		return nil, err
	}
	snap, ok, err := doc.Load()
	switch {
	case err != nil:
		s.logger.Warn().Err(err).Str("path", path).Msg("discarding unreadable cache")
	case ok:
		snap.init()
		s.snap = snap
	}
	s.doc = doc
	return s, nil
}

func (s *FileStore) Videos() Table[model.Video]             { return s.videos }
func (s *FileStore) Clips() Table[model.Clip]               { return s.clips }
func (s *FileStore) Compilations() Table[model.Compilation] { return s.compilations }

func (s *FileStore) CalendarMonth(year, month int) ([]model.CalendarDay, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	days, ok := s.snap.Calendar[calendarKey(year, month)]
	return slices.Clone(days), ok
}

func (s *FileStore) ReplaceCalendarMonth(year, month int, days []model.CalendarDay) error {
	key := calendarKey(year, month)
	fresh := slices.Clone(days)
	if fresh == nil {
		fresh = []model.CalendarDay{}
	}
	return s.mutate(func(sn *snapshot) {
		delete(sn.Calendar, key)
		sn.Calendar[key] = fresh
	}, func() {
		s.calendar.publish(key, slices.Clone(fresh))
	})
}

func (s *FileStore) WatchCalendarMonth(ctx context.Context, year, month int) <-chan []model.CalendarDay {
	key := calendarKey(year, month)
	s.mu.Lock()
	ch := s.calendar.add(key)
	if days, ok := s.snap.Calendar[key]; ok {
		offer(ch, slices.Clone(days))
	}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.calendar.remove(key, ch)
		s.mu.Unlock()
	}()
	return ch
}

func (s *FileStore) Clear() error {
	return s.mutate(func(sn *snapshot) {
		*sn = snapshot{}
		sn.init()
	}, func() {
		s.videos.publishCleared()
		s.clips.publishCleared()
		s.compilations.publishCleared()
		for _, key := range s.calendar.keys() {
			s.calendar.publish(key, []model.CalendarDay{})
		}
	})
}

// Close releases the cache file. Watchers stay open until their contexts end.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return nil
	}
	err := s.doc.Close()
	s.doc = nil
	return err
}

// mutate applies fn, runs notify and persists the snapshot, all under the
// write lock so watchers observe writes in order.
func (s *FileStore) mutate(fn func(*snapshot), notify func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.snap)
	if notify != nil {
		notify()
	}
	if s.doc == nil {
		return nil
	}
	return s.doc.Save(s.snap)
}
