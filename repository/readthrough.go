// Package repository serves videos, clips and compilations from the server
// with the local cache as a fallback. A successful remote read always
// overwrites the cache; a transient failure returns the last cached value and
// marks it stale.
package repository

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/rs/zerolog"

	"diarysync/api"
	"diarysync/cache"
	"diarysync/internal/metrics"
	"diarysync/poll"
)

// ErrNoObjectKey is returned for a download of a compilation that has no
// rendered object yet.
var ErrNoObjectKey = errors.New("compilation has no object key")

// Result is a read that may have been served from the cache.
type Result[T any] struct {
	Value T
	// Stale is true when the remote read failed transiently and Value is the
	// last cached copy.
	Stale bool
}

// Page is one page of a listing.
type Page[T any] struct {
	Items         []T
	Page          int
	TotalPages    int
	TotalElements int64
	// Stale is true when the first page came from the cache.
	Stale bool
}

// ReadThrough is the cache policy shared by every repository read.
type ReadThrough[T any] struct {
	// Resource names the data in logs and metrics.
	Resource string
	// Remote reads from the server.
	Remote func(ctx context.Context) (T, error)
	// Read returns the cached value; ok is false when nothing usable is cached.
	Read func() (T, bool)
	// Write overwrites the cached value after a successful remote read.
	Write func(T) error
	// IsTransient reports errors that permit a cache fallback. Defaults to
	// api.IsTransient.
	IsTransient func(error) bool

	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// Fetch reads from the server and caches the value. When the server is
// unreachable it returns the cached value with Stale set. Any other error is
// returned unchanged.
func (p ReadThrough[T]) Fetch(ctx context.Context) (Result[T], error) {
	value, err := p.Remote(ctx)
	if err == nil {
		if werr := p.Write(value); werr != nil {
			p.Logger.Warn().Err(werr).Str("resource", p.Resource).Msg("cache write failed")
		}
		return Result[T]{Value: value}, nil
	}

	isTransient := p.IsTransient
	if isTransient == nil {
		isTransient = api.IsTransient
	}
	if !isTransient(err) {
		return Result[T]{}, err
	}
	cached, ok := p.Read()
	if !ok {
		return Result[T]{}, err
	}

	p.Metrics.RecordCacheFallback(p.Resource)
	p.Logger.Warn().Err(err).Str("resource", p.Resource).Msg("serving cached copy")
	return Result[T]{Value: cached, Stale: true}, nil
}

// Option configures a repository.
type Option func(*base)

// WithLogger sets the repository logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(b *base) { b.logger = logger }
}

// WithMetrics records cache fallbacks and poll fetches into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *base) { b.metrics = m }
}

// WithPollInterval sets the wait between status fetches.
func WithPollInterval(d time.Duration) Option {
	return func(b *base) { b.interval = d }
}

// WithPageSize sets the listing page size. Zero uses the client default.
func WithPageSize(n int) Option {
	return func(b *base) { b.pageSize = n }
}

type base struct {
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	interval time.Duration
	pageSize int
}

func newBase(opts []Option) base {
	b := base{logger: zerolog.Nop(), interval: poll.DefaultInterval}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func readThrough[T any](b base, resource string) ReadThrough[T] {
	return ReadThrough[T]{Resource: resource, Logger: b.logger, Metrics: b.metrics}
}

// fetchAndCache reads one entity by id through the cache table.
func fetchAndCache[T any](ctx context.Context, b base, resource string, table cache.Table[T], id string, remote func(context.Context, string) (*T, error)) (Result[T], error) {
	p := readThrough[T](b, resource)
	p.Remote = func(ctx context.Context) (T, error) {
		v, err := remote(ctx, id)
		if err != nil {
			var zero T
			return zero, err
		}
		return *v, nil
	}
	p.Read = func() (T, bool) { return table.Get(id) }
	p.Write = func(v T) error { return table.Put(v) }
	return p.Fetch(ctx)
}

// listOrCached reads one page. Page 0 replaces the cached list for scope and
// falls back to it; later pages are never served from the cache.
func listOrCached[T any](ctx context.Context, b base, resource string, table cache.Table[T], scope string, page int, remote func(context.Context, int) (*api.Page[T], error)) (Page[T], error) {
	fetch := func(ctx context.Context) (Page[T], error) {
		p, err := remote(ctx, page)
		if err != nil {
			return Page[T]{}, err
		}
		return Page[T]{Items: p.Content, Page: p.Page, TotalPages: p.TotalPages, TotalElements: p.TotalElements}, nil
	}

	if page > 0 {
		out, err := fetch(ctx)
		if err != nil {
			return Page[T]{}, err
		}
		if werr := table.Put(out.Items...); werr != nil {
			b.logger.Warn().Err(werr).Str("resource", resource).Msg("cache write failed")
		}
		return out, nil
	}

	p := readThrough[Page[T]](b, resource+"_list")
	p.Remote = fetch
	p.Read = func() (Page[T], bool) {
		items, ok := table.List(scope)
		if !ok {
			return Page[T]{}, false
		}
		return Page[T]{Items: items, TotalPages: 1, TotalElements: int64(len(items))}, true
	}
	p.Write = func(v Page[T]) error { return table.ReplaceList(scope, v.Items) }

	res, err := p.Fetch(ctx)
	if err != nil {
		return Page[T]{}, err
	}
	res.Value.Stale = res.Stale
	return res.Value, nil
}

// pollAndCache polls remote until terminal, caching every snapshot. Unlike
// Fetch it never substitutes cached values: a failed fetch ends the sequence.
func pollAndCache[T any](ctx context.Context, b base, resource string, table cache.Table[T], id string, remote func(context.Context, string) (*T, error), terminal func(T) bool) iter.Seq2[T, error] {
	fetch := func(ctx context.Context) (T, error) {
		b.metrics.RecordPollFetch(resource)
		v, err := remote(ctx, id)
		if err != nil {
			var zero T
			return zero, err
		}
		if werr := table.Put(*v); werr != nil {
			b.logger.Warn().Err(werr).Str("resource", resource).Str("id", id).Msg("cache write failed")
		}
		return *v, nil
	}
	return poll.Poll(ctx, fetch, terminal, b.interval)
}
