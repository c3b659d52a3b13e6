package diagram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/visualearn/visualearn/pkg/models"
)

// Tool names exposed by the diagram-authoring MCP server.
const (
	toolCreateDiagram = "create_new_diagram"
	toolEditDiagram   = "edit_diagram"
)

// MCPGenerator drives the diagram-authoring capability through a long-lived
// tool-invocation session. Semantics are identical to HTTPGenerator.
type MCPGenerator struct {
	session *mcp.ClientSession
	timeout time.Duration
	logger  *slog.Logger
}

// NewMCPGenerator wraps an established client session.
func NewMCPGenerator(session *mcp.ClientSession, timeout time.Duration, logger *slog.Logger) *MCPGenerator {
	return &MCPGenerator{
		session: session,
		timeout: timeout,
		logger:  logger,
	}
}

// DialMCP starts the authoring server as a subprocess and connects a session
// over its stdio transport.
func DialMCP(ctx context.Context, command string, args ...string) (*mcp.ClientSession, error) {
	client := mcp.NewClient(&mcp.Implementation{
		Name:    "visualearn",
		Version: "0.1.0",
	}, nil)

	transport := &mcp.CommandTransport{Command: exec.Command(command, args...)}

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to authoring server: %w", err)
	}

	return session, nil
}

func (g *MCPGenerator) Generate(ctx context.Context, plan *models.Plan) (*models.DiagramDocument, error) {
	content, err := g.callTool(ctx, toolCreateDiagram, map[string]any{
		"xml":   generationPrompt(plan),
		"title": plan.Concept,
	})
	if err != nil {
		return nil, err
	}

	return newDocument(0, content)
}

func (g *MCPGenerator) Refine(ctx context.Context, doc *models.DiagramDocument, feedback string) (*models.DiagramDocument, error) {
	content, err := g.callTool(ctx, toolEditDiagram, map[string]any{
		"xml": doc.Content,
		"operations": []map[string]any{
			{"type": "refine", "instructions": feedback},
		},
	})
	if err != nil {
		return nil, err
	}

	return newDocument(doc.Version+1, content)
}

// Close shuts down the session.
func (g *MCPGenerator) Close() error {
	return g.session.Close()
}

func (g *MCPGenerator) callTool(ctx context.Context, name string, args map[string]any) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	result, err := g.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("diagram generation timed out after %s: %w", g.timeout, context.DeadlineExceeded)
		}

		return "", fmt.Errorf("tool call %s failed: %w", name, err)
	}

	if result.IsError {
		return "", fmt.Errorf("tool %s rejected the request: %s", name, toolText(result))
	}

	content, err := extractMarkup(result)
	if err != nil {
		return "", fmt.Errorf("tool %s: %w", name, err)
	}

	g.logger.Debug("tool call completed", "tool", name, "markup_length", len(content))

	return content, nil
}

// extractMarkup pulls diagram markup out of a tool result. Servers return
// either structured content with an "xml" field, a JSON text payload with
// the same shape, or raw markup text.
func extractMarkup(result *mcp.CallToolResult) (string, error) {
	if structured, ok := result.StructuredContent.(map[string]any); ok {
		if xmlValue, ok := structured["xml"].(string); ok && xmlValue != "" {
			return xmlValue, nil
		}
	}

	text := toolText(result)
	if text == "" {
		return "", fmt.Errorf("result carries no markup")
	}

	if strings.HasPrefix(strings.TrimSpace(text), "<") {
		return text, nil
	}

	var payload markupResponse
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return "", fmt.Errorf("parse result payload: %w", err)
	}
	if payload.XML == "" {
		return "", fmt.Errorf("result payload has no markup")
	}

	return payload.XML, nil
}

func toolText(result *mcp.CallToolResult) string {
	for _, content := range result.Content {
		if text, ok := content.(*mcp.TextContent); ok {
			return text.Text
		}
	}

	return ""
}
