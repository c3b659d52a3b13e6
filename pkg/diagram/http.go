package diagram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/visualearn/visualearn/pkg/models"
)

// maxMarkupSize limits authoring-service response reads.
const maxMarkupSize = 10 * 1024 * 1024 // 10MB

// HTTPGenerator talks to the diagram-authoring service over plain
// request/response HTTP.
type HTTPGenerator struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPGenerator creates the direct-call transport. Every call is bounded
// by the generation timeout.
func NewHTTPGenerator(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPGenerator {
	return &HTTPGenerator{
		baseURL:    baseURL,
		timeout:    timeout,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

type generateRequest struct {
	Prompt string `json:"prompt"`
	Title  string `json:"title"`
}

type refineRequest struct {
	XML          string `json:"xml"`
	Instructions string `json:"instructions"`
}

type markupResponse struct {
	XML string `json:"xml"`
}

func (g *HTTPGenerator) Generate(ctx context.Context, plan *models.Plan) (*models.DiagramDocument, error) {
	content, err := g.post(ctx, "/api/generate", generateRequest{
		Prompt: generationPrompt(plan),
		Title:  plan.Concept,
	})
	if err != nil {
		return nil, err
	}

	return newDocument(0, content)
}

func (g *HTTPGenerator) Refine(ctx context.Context, doc *models.DiagramDocument, feedback string) (*models.DiagramDocument, error) {
	content, err := g.post(ctx, "/api/refine", refineRequest{
		XML:          doc.Content,
		Instructions: feedback,
	})
	if err != nil {
		return nil, err
	}

	return newDocument(doc.Version+1, content)
}

func (g *HTTPGenerator) post(ctx context.Context, path string, payload any) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("build authoring request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create authoring request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("diagram generation timed out after %s: %w", g.timeout, context.DeadlineExceeded)
		}

		return "", fmt.Errorf("authoring service request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxMarkupSize))
	if err != nil {
		return "", fmt.Errorf("read authoring response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		g.logger.Debug("authoring service error", "status", resp.StatusCode, "body_length", len(respBody))
		return "", fmt.Errorf("authoring service returned status %d", resp.StatusCode)
	}

	var parsed markupResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parse authoring response: %w", err)
	}

	if parsed.XML == "" {
		return "", fmt.Errorf("authoring service returned empty diagram")
	}

	return parsed.XML, nil
}
