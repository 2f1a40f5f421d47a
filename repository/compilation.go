package repository

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"diarysync/api"
	"diarysync/cache"
	"diarysync/model"
	"diarysync/poll"
)

// URL cache defaults.
const (
	DefaultURLCacheSize = 64
	DefaultURLTTL       = 10 * time.Minute
)

// CompilationRepository reads and writes compilations.
type CompilationRepository struct {
	base
	api     *api.CompilationAPI
	storage *api.StorageAPI
	cache   cache.Table[model.Compilation]
	urls    *urlCache
}

// NewCompilationRepository creates a compilation repository. storage is used
// for presigned download URLs.
func NewCompilationRepository(compilations *api.CompilationAPI, storage *api.StorageAPI, store cache.Store, opts ...Option) *CompilationRepository {
	return NewCompilationRepositoryWithURLCache(compilations, storage, store, DefaultURLCacheSize, DefaultURLTTL, opts...)
}

// NewCompilationRepositoryWithURLCache is NewCompilationRepository with a
// sized download URL cache. Download URLs are reused for ttl.
func NewCompilationRepositoryWithURLCache(compilations *api.CompilationAPI, storage *api.StorageAPI, store cache.Store, size int, ttl time.Duration, opts ...Option) *CompilationRepository {
	if size <= 0 {
		size = DefaultURLCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}
	// lru.New only fails for a non-positive size.
	urls, _ := lru.New(size)
	return &CompilationRepository{
		base:    newBase(opts),
		api:     compilations,
		storage: storage,
		cache:   store.Compilations(),
		urls:    &urlCache{cache: urls, ttl: ttl, now: time.Now},
	}
}

// Create requests a new compilation and caches it.
func (r *CompilationRepository) Create(ctx context.Context, req api.CreateCompilationRequest) (*model.Compilation, error) {
	comp, err := r.api.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	if werr := r.cache.Put(*comp); werr != nil {
		r.logger.Warn().Err(werr).Str("compilation_id", comp.ID).Msg("cache write failed")
	}
	return comp, nil
}

// FetchAndCache reads id from the server and overwrites its cache entry.
func (r *CompilationRepository) FetchAndCache(ctx context.Context, id string) (Result[model.Compilation], error) {
	return fetchAndCache(ctx, r.base, "compilation", r.cache, id, r.api.Get)
}

// Observe streams the cached copy of id.
func (r *CompilationRepository) Observe(ctx context.Context, id string) <-chan model.Compilation {
	return r.cache.Watch(ctx, id)
}

// List returns one page of compilations, narrowed to status when set.
func (r *CompilationRepository) List(ctx context.Context, status model.CompilationStatus, page int) (Page[model.Compilation], error) {
	return listOrCached(ctx, r.base, "compilation", r.cache, compilationScope(status), page, func(ctx context.Context, page int) (*api.Page[model.Compilation], error) {
		return r.api.List(ctx, status, page, r.pageSize)
	})
}

// ObserveList streams the cached first page for status.
func (r *CompilationRepository) ObserveList(ctx context.Context, status model.CompilationStatus) <-chan []model.Compilation {
	return r.cache.WatchList(ctx, compilationScope(status))
}

func compilationScope(status model.CompilationStatus) string {
	if status == "" {
		return "all"
	}
	return "status=" + string(status)
}

// Delete removes id on the server, then from the cache.
func (r *CompilationRepository) Delete(ctx context.Context, id string) error {
	if err := r.api.Delete(ctx, id); err != nil {
		return err
	}
	r.urls.remove(id)
	return r.cache.Delete(id)
}

// PollProgress polls the render status of id until it ends. Each snapshot's
// status is copied into the cached compilation.
func (r *CompilationRepository) PollProgress(ctx context.Context, id string) iter.Seq2[model.CompilationProgress, error] {
	fetch := func(ctx context.Context) (model.CompilationProgress, error) {
		r.metrics.RecordPollFetch("compilation")
		p, err := r.api.Status(ctx, id)
		if err != nil {
			return model.CompilationProgress{}, err
		}
		if comp, ok := r.cache.Get(id); ok && comp.Status != p.Status {
			comp.Status = p.Status
			if werr := r.cache.Put(comp); werr != nil {
				r.logger.Warn().Err(werr).Str("compilation_id", id).Msg("cache write failed")
			}
		}
		return *p, nil
	}
	return poll.Poll(ctx, fetch, func(p model.CompilationProgress) bool {
		return p.Status.Terminal()
	}, r.interval)
}

// DownloadURL returns a presigned URL for the rendered compilation.
func (r *CompilationRepository) DownloadURL(ctx context.Context, id string) (string, error) {
	comp, ok := r.cache.Get(id)
	if !ok || comp.ObjectKey == "" {
		res, err := r.FetchAndCache(ctx, id)
		if err != nil {
			return "", err
		}
		comp = res.Value
	}
	if comp.ObjectKey == "" {
		return "", fmt.Errorf("compilation %s: %w", id, ErrNoObjectKey)
	}

	if u, ok := r.urls.get(id, comp.ObjectKey); ok {
		return u, nil
	}
	presigned, err := r.storage.PresignDownload(ctx, api.BucketCompilations, comp.ObjectKey)
	if err != nil {
		return "", err
	}
	r.urls.set(id, comp.ObjectKey, presigned.URL)
	return presigned.URL, nil
}

type urlEntry struct {
	objectKey string
	url       string
	expiresAt time.Time
}

// urlCache keeps presigned URLs per compilation until they expire.
type urlCache struct {
	mu    sync.Mutex
	cache *lru.Cache
	ttl   time.Duration
	now   func() time.Time
}

func (c *urlCache) get(id, objectKey string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.cache.Get(id)
	if !ok {
		return "", false
	}
	entry := v.(urlEntry)
	if entry.objectKey != objectKey || !c.now().Before(entry.expiresAt) {
		c.cache.Remove(id)
		return "", false
	}
	return entry.url, true
}

func (c *urlCache) set(id, objectKey, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(id, urlEntry{objectKey: objectKey, url: url, expiresAt: c.now().Add(c.ttl)})
}

func (c *urlCache) remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Remove(id)
}
