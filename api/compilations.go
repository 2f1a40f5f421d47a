package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"diarysync/model"
)

// CompilationAPI covers /compilations.
type CompilationAPI struct{ c *Client }

// Create requests a new compilation render.
func (a *CompilationAPI) Create(ctx context.Context, req CreateCompilationRequest) (*model.Compilation, error) {
	var out model.Compilation
	if err := a.c.do(ctx, call{method: http.MethodPost, path: "/compilations/create", body: req, result: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get fetches one compilation.
func (a *CompilationAPI) Get(ctx context.Context, id string) (*model.Compilation, error) {
	var out model.Compilation
	err := a.c.do(ctx, call{
		method:     http.MethodGet,
		path:       "/compilations/{id}",
		pathParams: map[string]string{"id": id},
		result:     &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Status fetches the render progress of a compilation.
func (a *CompilationAPI) Status(ctx context.Context, id string) (*model.CompilationProgress, error) {
	var out model.CompilationProgress
	err := a.c.do(ctx, call{
		method:     http.MethodGet,
		path:       "/compilations/{id}/status",
		pathParams: map[string]string{"id": id},
		result:     &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns one page of compilations, optionally narrowed to status.
func (a *CompilationAPI) List(ctx context.Context, status model.CompilationStatus, page, size int) (*Page[model.Compilation], error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", string(status))
	}
	query.Set("page", strconv.Itoa(page))
	query.Set("size", strconv.Itoa(a.c.pageSize(size)))

	var out Page[model.Compilation]
	if err := a.c.do(ctx, call{method: http.MethodGet, path: "/compilations", query: query, result: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a compilation.
func (a *CompilationAPI) Delete(ctx context.Context, id string) error {
	return a.c.do(ctx, call{
		method:     http.MethodDelete,
		path:       "/compilations/{id}",
		pathParams: map[string]string{"id": id},
	})
}
