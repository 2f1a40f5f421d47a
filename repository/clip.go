package repository

import (
	"context"
	"iter"

	"diarysync/api"
	"diarysync/cache"
	"diarysync/model"
)

const clipScope = "all"

// ClipRepository reads and writes clips and the calendar projection.
type ClipRepository struct {
	base
	api   *api.ClipAPI
	store cache.Store
	cache cache.Table[model.Clip]
}

// NewClipRepository creates a clip repository over clips and store.
func NewClipRepository(clips *api.ClipAPI, store cache.Store, opts ...Option) *ClipRepository {
	return &ClipRepository{base: newBase(opts), api: clips, store: store, cache: store.Clips()}
}

// Select asks the server to cut a clip and caches it.
func (r *ClipRepository) Select(ctx context.Context, req api.SelectClipRequest) (*model.Clip, error) {
	clip, err := r.api.Select(ctx, req)
	if err != nil {
		return nil, err
	}
	if werr := r.cache.Put(*clip); werr != nil {
		r.logger.Warn().Err(werr).Str("clip_id", clip.ID).Msg("cache write failed")
	}
	return clip, nil
}

// FetchAndCache reads clipID from the server and overwrites its cache entry.
func (r *ClipRepository) FetchAndCache(ctx context.Context, clipID string) (Result[model.Clip], error) {
	return fetchAndCache(ctx, r.base, "clip", r.cache, clipID, r.api.Get)
}

// Observe streams the cached copy of clipID.
func (r *ClipRepository) Observe(ctx context.Context, clipID string) <-chan model.Clip {
	return r.cache.Watch(ctx, clipID)
}

// List returns one page of clips.
func (r *ClipRepository) List(ctx context.Context, page int) (Page[model.Clip], error) {
	return listOrCached(ctx, r.base, "clip", r.cache, clipScope, page, func(ctx context.Context, page int) (*api.Page[model.Clip], error) {
		return r.api.List(ctx, page, r.pageSize)
	})
}

// ObserveList streams the cached first page of clips.
func (r *ClipRepository) ObserveList(ctx context.Context) <-chan []model.Clip {
	return r.cache.WatchList(ctx, clipScope)
}

// Delete removes clipID on the server, then from the cache.
func (r *ClipRepository) Delete(ctx context.Context, clipID string) error {
	if err := r.api.Delete(ctx, clipID); err != nil {
		return err
	}
	return r.cache.Delete(clipID)
}

// PollReady polls clipID until extraction ends.
func (r *ClipRepository) PollReady(ctx context.Context, clipID string) iter.Seq2[model.Clip, error] {
	return pollAndCache(ctx, r.base, "clip", r.cache, clipID, r.api.Get, func(c model.Clip) bool {
		return c.Status.Terminal()
	})
}

// Calendar returns the days of one month. A successful fetch replaces the
// cached bucket as a whole; on a transient failure a non-empty cached bucket
// is returned as stale.
func (r *ClipRepository) Calendar(ctx context.Context, year, month int) (Result[[]model.CalendarDay], error) {
	p := readThrough[[]model.CalendarDay](r.base, "calendar")
	p.Remote = func(ctx context.Context) ([]model.CalendarDay, error) {
		m, err := r.api.Calendar(ctx, year, month)
		if err != nil {
			return nil, err
		}
		return m.Days, nil
	}
	p.Read = func() ([]model.CalendarDay, bool) {
		days, _ := r.store.CalendarMonth(year, month)
		return days, len(days) > 0
	}
	p.Write = func(days []model.CalendarDay) error {
		return r.store.ReplaceCalendarMonth(year, month, days)
	}
	return p.Fetch(ctx)
}

// ObserveCalendar streams the cached bucket of one month.
func (r *ClipRepository) ObserveCalendar(ctx context.Context, year, month int) <-chan []model.CalendarDay {
	return r.store.WatchCalendarMonth(ctx, year, month)
}
