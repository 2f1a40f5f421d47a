package auth

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"diarysync/internal/storage"
)

// Store is the single source of truth for the signed-in credential and the
// user's preferences. Every mutation is atomic: readers never observe a
// partially written credential.
type Store interface {
	// Get returns the current credential. ok is false when nobody is signed in.
	Get(ctx context.Context) (cred Credential, ok bool, err error)
	// Save replaces the credential, computing its expiry from t.ExpiresIn.
	Save(ctx context.Context, t Tokens) error
	// Clear removes the credential. Preferences are kept.
	Clear(ctx context.Context) error
	// IsExpired reports whether the access token is missing or expired.
	IsExpired(ctx context.Context) (bool, error)
	// Preferences returns the stored preferences.
	Preferences(ctx context.Context) (Preferences, error)
	// UpdatePreferences applies fn to a copy of the preferences and persists it.
	UpdatePreferences(ctx context.Context, fn func(*Preferences)) error
}

// Option configures a store.
type Option func(*recordStore)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *recordStore) { s.now = now }
}

// WithLogger sets the store logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *recordStore) { s.logger = logger }
}

type record struct {
	Credential  Credential  `json:"credential"`
	Preferences Preferences `json:"preferences"`
}

// recordStore serializes every operation on one mutex and only swaps the
// in-memory record after persist succeeded.
type recordStore struct {
	mu      sync.Mutex
	rec     record
	persist func(record) error
	now     func() time.Time
	logger  zerolog.Logger
}

func newRecordStore(rec record, persist func(record) error, opts []Option) *recordStore {
	s := &recordStore{
		rec:     rec,
		persist: persist,
		now:     time.Now,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *recordStore) Get(ctx context.Context) (Credential, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred := s.rec.Credential
	return cred, cred.AccessToken != "", nil
}

func (s *recordStore) Save(ctx context.Context, t Tokens) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var expiresAt time.Time
	switch {
	case t.ExpiresIn > 0:
		expiresAt = now.Add(time.Duration(t.ExpiresIn) * time.Second).Truncate(time.Millisecond)
	default:
		if exp, ok := tokenExpiry(t.AccessToken); ok {
			expiresAt = exp
		} else {
			s.logger.Warn().Str("user_id", t.UserID).Msg("token expiry unknown; storing as expired")
			expiresAt = now.Truncate(time.Millisecond)
		}
	}

	next := s.rec
	next.Credential = Credential{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    expiresAt,
		UserID:       t.UserID,
		Tier:         t.Tier,
	}
	return s.commit(next)
}

func (s *recordStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.rec
	next.Credential = Credential{}
	return s.commit(next)
}

func (s *recordStore) IsExpired(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.Credential.ExpiredAt(s.now()), nil
}

func (s *recordStore) Preferences(ctx context.Context) (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.Preferences, nil
}

func (s *recordStore) UpdatePreferences(ctx context.Context, fn func(*Preferences)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.rec
	fn(&next.Preferences)
	return s.commit(next)
}

// commit must be called with mu held.
func (s *recordStore) commit(next record) error {
	if s.persist != nil {
		if err := s.persist(next); err != nil {
			return err
		}
	}
	s.rec = next
	return nil
}

// MemoryStore keeps the record in memory only.
type MemoryStore struct {
	*recordStore
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{recordStore: newRecordStore(record{}, nil, opts)}
}

// FileStore persists the record as one JSON document, replaced atomically on
// every change and locked against other processes while open.
type FileStore struct {
	*recordStore
	doc *storage.Document[record]
}

// NewFileStore opens (or creates) the credential file at path.
func NewFileStore(path string, opts ...Option) (*FileStore, error) {
	doc, err := storage.OpenDocument[record](path, "credentials", 0600)
	if err != nil {
		return nil, err
	}
	rec, _, err := doc.Load()
	if err != nil {
		doc.Close()
		return nil, err
	}
	return &FileStore{
		recordStore: newRecordStore(rec, doc.Save, opts),
		doc:         doc,
	}, nil
}

// Close releases the file lock.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Close()
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*FileStore)(nil)
)
