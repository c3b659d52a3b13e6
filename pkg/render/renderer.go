package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/visualearn/visualearn/pkg/models"
)

// maxImageSize limits rendering-service response reads.
const maxImageSize = 20 * 1024 * 1024 // 20MB

// Renderer converts diagram markup into image bytes via the rendering
// service, bounded by the conversion timeout.
type Renderer struct {
	engine  *Engine
	timeout time.Duration
	logger  *slog.Logger
}

// NewRenderer creates a renderer over the shared engine handle.
func NewRenderer(engine *Engine, timeout time.Duration, logger *slog.Logger) *Renderer {
	return &Renderer{
		engine:  engine,
		timeout: timeout,
		logger:  logger,
	}
}

type exportRequest struct {
	XML    string `json:"xml"`
	Format string `json:"format"`
}

type exportResponse struct {
	SVG     string `json:"svg"`
	Content string `json:"content"`
}

// Render converts one document into image bytes in the given format.
func (r *Renderer) Render(ctx context.Context, doc *models.DiagramDocument, format string) ([]byte, error) {
	if !strings.HasPrefix(strings.TrimSpace(doc.Content), "<") {
		return nil, fmt.Errorf("invalid markup for rendering")
	}

	release, err := r.engine.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire rendering engine: %w", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	body, err := json.Marshal(exportRequest{XML: doc.Content, Format: format})
	if err != nil {
		return nil, fmt.Errorf("build export request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.engine.baseURL+"/api/export", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create export request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.engine.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("rendering timed out after %s: %w", r.timeout, context.DeadlineExceeded)
		}

		return nil, fmt.Errorf("rendering service request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize))
	if err != nil {
		return nil, fmt.Errorf("read export response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rendering service returned status %d", resp.StatusCode)
	}

	image, err := extractImage(respBody, format)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("render completed", "format", format, "size_bytes", len(image))

	return image, nil
}

// RenderAll converts one document into every requested format. The calls
// only read the final document, so they run concurrently.
func (r *Renderer) RenderAll(ctx context.Context, doc *models.DiagramDocument, formats []string) (map[string][]byte, error) {
	images := make(map[string][]byte, len(formats))

	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	for _, format := range formats {
		group.Go(func() error {
			image, err := r.Render(groupCtx, doc, format)
			if err != nil {
				return err
			}

			mu.Lock()
			images[format] = image
			mu.Unlock()

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return images, nil
}

// extractImage accepts either a JSON envelope or a raw image payload.
func extractImage(respBody []byte, format string) ([]byte, error) {
	trimmed := strings.TrimSpace(string(respBody))

	if strings.HasPrefix(trimmed, "{") {
		var parsed exportResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return nil, fmt.Errorf("parse export response: %w", err)
		}

		content := parsed.SVG
		if content == "" {
			content = parsed.Content
		}
		if content == "" {
			return nil, fmt.Errorf("export response has no image content")
		}

		trimmed = strings.TrimSpace(content)
	}

	if format == models.FormatSVG && !strings.HasPrefix(trimSVGPrologue(trimmed), "<svg") {
		return nil, fmt.Errorf("export response is not valid SVG")
	}

	return []byte(trimmed), nil
}

// trimSVGPrologue skips an optional XML declaration before the svg root.
func trimSVGPrologue(content string) string {
	if strings.HasPrefix(content, "<?xml") {
		if idx := strings.Index(content, "?>"); idx >= 0 {
			return strings.TrimSpace(content[idx+2:])
		}
	}

	return content
}

// PlaceholderSVG is the explicit degraded-mode artifact substituted when the
// rendering service is unavailable and the fallback policy is enabled.
func PlaceholderSVG(concept string) []byte {
	return []byte(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="800" height="600" viewBox="0 0 800 600">
  <rect x="50" y="50" width="700" height="500" rx="5" ry="5" fill="#ffffcc" stroke="#cccccc"/>
  <text x="75" y="200" font-family="Arial, sans-serif" font-size="16" font-weight="bold">%s</text>
  <text x="75" y="230" font-family="Arial, sans-serif" font-size="14">This is a fallback representation.</text>
  <text x="75" y="260" font-family="Arial, sans-serif" font-size="14">The rendering service was unavailable; the diagram markup is still downloadable.</text>
</svg>`, svgEscape(concept)))
}

func svgEscape(s string) string {
	replacer := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return replacer.Replace(s)
}
