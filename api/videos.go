package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"diarysync/model"
)

// VideoAPI covers /videos.
type VideoAPI struct{ c *Client }

// InitiateUpload reserves a video for date and returns the pre-signed
// destination for its bytes.
func (v *VideoAPI) InitiateUpload(ctx context.Context, date model.Date) (*UploadTicket, error) {
	var out UploadTicket
	err := v.c.do(ctx, call{
		method: http.MethodPost,
		path:   "/videos/upload/initiate",
		body:   initiateUploadRequest{Date: date},
		result: &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CompleteUpload tells the backend every byte of videoID has been sent.
func (v *VideoAPI) CompleteUpload(ctx context.Context, videoID string) error {
	return v.c.do(ctx, call{
		method:     http.MethodPost,
		path:       "/videos/{id}/upload/complete",
		pathParams: map[string]string{"id": videoID},
	})
}

// List returns one page of videos matching filter.
func (v *VideoAPI) List(ctx context.Context, filter VideoFilter, page, size int) (*Page[model.Video], error) {
	query := url.Values{}
	if !filter.Date.IsZero() {
		query.Set("date", filter.Date.String())
	}
	if filter.Status != "" {
		query.Set("status", string(filter.Status))
	}
	query.Set("page", strconv.Itoa(page))
	query.Set("size", strconv.Itoa(v.c.pageSize(size)))

	var out Page[model.Video]
	if err := v.c.do(ctx, call{method: http.MethodGet, path: "/videos", query: query, result: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get fetches one video.
func (v *VideoAPI) Get(ctx context.Context, videoID string) (*model.Video, error) {
	var out model.Video
	err := v.c.do(ctx, call{
		method:     http.MethodGet,
		path:       "/videos/{id}",
		pathParams: map[string]string{"id": videoID},
		result:     &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a video.
func (v *VideoAPI) Delete(ctx context.Context, videoID string) error {
	return v.c.do(ctx, call{
		method:     http.MethodDelete,
		path:       "/videos/{id}",
		pathParams: map[string]string{"id": videoID},
	})
}
