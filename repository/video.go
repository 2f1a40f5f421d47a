package repository

import (
	"context"
	"iter"

	"diarysync/api"
	"diarysync/cache"
	"diarysync/model"
)

// VideoRepository reads and writes videos.
type VideoRepository struct {
	base
	api   *api.VideoAPI
	cache cache.Table[model.Video]
}

// NewVideoRepository creates a video repository over videos and store.
func NewVideoRepository(videos *api.VideoAPI, store cache.Store, opts ...Option) *VideoRepository {
	return &VideoRepository{base: newBase(opts), api: videos, cache: store.Videos()}
}

// InitiateUpload registers today's video for date and returns where to PUT it.
func (r *VideoRepository) InitiateUpload(ctx context.Context, date model.Date) (*api.UploadTicket, error) {
	return r.api.InitiateUpload(ctx, date)
}

// CompleteUpload tells the server every byte of videoID arrived.
func (r *VideoRepository) CompleteUpload(ctx context.Context, videoID string) error {
	return r.api.CompleteUpload(ctx, videoID)
}

// FetchAndCache reads videoID from the server and overwrites its cache entry.
func (r *VideoRepository) FetchAndCache(ctx context.Context, videoID string) (Result[model.Video], error) {
	return fetchAndCache(ctx, r.base, "video", r.cache, videoID, r.api.Get)
}

// Observe streams the cached copy of videoID.
func (r *VideoRepository) Observe(ctx context.Context, videoID string) <-chan model.Video {
	return r.cache.Watch(ctx, videoID)
}

// List returns one page of videos matching filter.
func (r *VideoRepository) List(ctx context.Context, filter api.VideoFilter, page int) (Page[model.Video], error) {
	return listOrCached(ctx, r.base, "video", r.cache, filter.Key(), page, func(ctx context.Context, page int) (*api.Page[model.Video], error) {
		return r.api.List(ctx, filter, page, r.pageSize)
	})
}

// ObserveList streams the cached first page for filter.
func (r *VideoRepository) ObserveList(ctx context.Context, filter api.VideoFilter) <-chan []model.Video {
	return r.cache.WatchList(ctx, filter.Key())
}

// Delete removes videoID on the server, then from the cache.
func (r *VideoRepository) Delete(ctx context.Context, videoID string) error {
	if err := r.api.Delete(ctx, videoID); err != nil {
		return err
	}
	return r.cache.Delete(videoID)
}

// PollReady polls videoID until processing ends.
func (r *VideoRepository) PollReady(ctx context.Context, videoID string) iter.Seq2[model.Video, error] {
	return pollAndCache(ctx, r.base, "video", r.cache, videoID, r.api.Get, func(v model.Video) bool {
		return v.Status.Terminal()
	})
}
