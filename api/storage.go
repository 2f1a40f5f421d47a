package api

import (
	"context"
	"net/http"
	"net/url"
)

// Buckets known to the backend.
const (
	BucketVideos       = "videos"
	BucketClips        = "clips"
	BucketCompilations = "compilations"
)

// StorageAPI covers /storage, the indirection to object storage.
type StorageAPI struct{ c *Client }

// PresignUpload returns a time-limited PUT URL for bucket/key.
func (s *StorageAPI) PresignUpload(ctx context.Context, bucket, key string) (*PresignedURL, error) {
	return s.presign(ctx, "/storage/presigned-url/upload", bucket, key)
}

// PresignDownload returns a time-limited GET URL for bucket/key.
func (s *StorageAPI) PresignDownload(ctx context.Context, bucket, key string) (*PresignedURL, error) {
	return s.presign(ctx, "/storage/presigned-url/download", bucket, key)
}

func (s *StorageAPI) presign(ctx context.Context, path, bucket, key string) (*PresignedURL, error) {
	var out PresignedURL
	body := objectRequest{Bucket: bucket, ObjectKey: key}
	if err := s.c.do(ctx, call{method: http.MethodPost, path: path, body: body, result: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

// ObjectInfo reports whether bucket/key exists and its size.
func (s *StorageAPI) ObjectInfo(ctx context.Context, bucket, key string) (*ObjectInfo, error) {
	var out ObjectInfo
	err := s.c.do(ctx, call{
		method: http.MethodGet,
		path:   "/storage/objects/info",
		query:  objectQuery(bucket, key),
		result: &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteObject removes bucket/key.
func (s *StorageAPI) DeleteObject(ctx context.Context, bucket, key string) error {
	return s.c.do(ctx, call{
		method: http.MethodDelete,
		path:   "/storage/objects",
		query:  objectQuery(bucket, key),
	})
}

func objectQuery(bucket, key string) url.Values {
	q := url.Values{}
	q.Set("bucket", bucket)
	q.Set("objectKey", key)
	return q
}
