package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"diarysync/model"
)

// ClipAPI covers /clips.
type ClipAPI struct{ c *Client }

// Select asks the backend to extract a one-second clip from a video.
func (a *ClipAPI) Select(ctx context.Context, req SelectClipRequest) (*model.Clip, error) {
	var out model.Clip
	if err := a.c.do(ctx, call{method: http.MethodPost, path: "/clips/select", body: req, result: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns one page of clips.
func (a *ClipAPI) List(ctx context.Context, page, size int) (*Page[model.Clip], error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("size", strconv.Itoa(a.c.pageSize(size)))

	var out Page[model.Clip]
	if err := a.c.do(ctx, call{method: http.MethodGet, path: "/clips", query: query, result: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get fetches one clip.
func (a *ClipAPI) Get(ctx context.Context, clipID string) (*model.Clip, error) {
	var out model.Clip
	err := a.c.do(ctx, call{
		method:     http.MethodGet,
		path:       "/clips/{id}",
		pathParams: map[string]string{"id": clipID},
		result:     &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a clip.
func (a *ClipAPI) Delete(ctx context.Context, clipID string) error {
	return a.c.do(ctx, call{
		method:     http.MethodDelete,
		path:       "/clips/{id}",
		pathParams: map[string]string{"id": clipID},
	})
}

// Calendar returns the per-day clip projection for one month.
func (a *ClipAPI) Calendar(ctx context.Context, year, month int) (*model.CalendarMonth, error) {
	query := url.Values{}
	query.Set("year", strconv.Itoa(year))
	query.Set("month", strconv.Itoa(month))

	var out model.CalendarMonth
	if err := a.c.do(ctx, call{method: http.MethodGet, path: "/clips/calendar", query: query, result: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}
