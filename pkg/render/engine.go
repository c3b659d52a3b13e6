// Package render implements the conversion stage: diagram markup in, vector
// image bytes out, through a pooled handle to the rendering service.
package render

import (
	"context"
	"net/http"
)

// Engine is the shared handle to the long-lived rendering backend. It is
// created once at process start and passed by reference into the
// orchestrator; slots bound how many renders touch the backend at once.
type Engine struct {
	baseURL    string
	httpClient *http.Client
	slots      chan struct{}
}

// NewEngine creates the shared engine handle with the given concurrency.
func NewEngine(baseURL string, concurrency int) *Engine {
	if concurrency <= 0 {
		concurrency = 4
	}

	return &Engine{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		slots:      make(chan struct{}, concurrency),
	}
}

// Acquire reserves a slot, returning a release function. The caller must
// release on every exit path, including errors.
func (e *Engine) Acquire(ctx context.Context) (func(), error) {
	select {
	case e.slots <- struct{}{}:
		return func() { <-e.slots }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
