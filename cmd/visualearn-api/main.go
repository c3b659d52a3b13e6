package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/visualearn/visualearn/pkg/log"
)

const defaultPort = 8080

func main() {
	logger := log.WithModule("api")

	cmd := &cli.Command{
		Name:                  "visualearn-api",
		Usage:                 "Generate educational diagrams from natural-language concepts",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:     "llm-base-url",
				Usage:    "Base URL of the OpenAI-compatible completion API",
				Required: true,
				Sources:  cli.EnvVars("LLM_BASE_URL"),
			},
			&cli.StringFlag{
				Name:    "llm-model",
				Usage:   "Model identifier for completion requests",
				Value:   "gpt-4o-mini",
				Sources: cli.EnvVars("LLM_MODEL"),
			},
			&cli.StringFlag{
				Name:    "llm-api-key",
				Usage:   "API key for the completion API",
				Sources: cli.EnvVars("LLM_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "generator-transport",
				Usage:   "Diagram authoring transport (http, mcp)",
				Value:   "http",
				Sources: cli.EnvVars("GENERATOR_TRANSPORT"),
			},
			&cli.StringFlag{
				Name:    "authoring-url",
				Usage:   "Base URL of the diagram authoring service (http transport)",
				Sources: cli.EnvVars("AUTHORING_URL"),
			},
			&cli.StringFlag{
				Name:    "mcp-command",
				Usage:   "Command launching the diagram authoring MCP server (mcp transport)",
				Sources: cli.EnvVars("MCP_COMMAND"),
			},
			&cli.StringFlag{
				Name:     "renderer-url",
				Usage:    "Base URL of the diagram rendering service",
				Required: true,
				Sources:  cli.EnvVars("RENDERER_URL"),
			},
			&cli.IntFlag{
				Name:    "render-concurrency",
				Usage:   "Maximum concurrent rendering requests",
				Value:   4,
				Sources: cli.EnvVars("RENDER_CONCURRENCY"),
			},
			&cli.BoolFlag{
				Name:    "render-fallback",
				Usage:   "Serve a placeholder image when rendering fails instead of failing the run",
				Sources: cli.EnvVars("RENDER_FALLBACK"),
			},
			&cli.StringFlag{
				Name:    "artifacts-dir",
				Usage:   "Directory for persisted diagram artifacts",
				Value:   "./artifacts",
				Sources: cli.EnvVars("ARTIFACTS_DIR"),
			},
			&cli.DurationFlag{
				Name:    "artifact-ttl",
				Usage:   "Retention period for persisted artifacts",
				Value:   time.Hour,
				Sources: cli.EnvVars("ARTIFACT_TTL"),
			},
			&cli.DurationFlag{
				Name:    "sweep-interval",
				Usage:   "Interval between artifact retention sweeps",
				Value:   10 * time.Minute,
				Sources: cli.EnvVars("SWEEP_INTERVAL"),
			},
			&cli.DurationFlag{
				Name:    "plan-timeout",
				Usage:   "Deadline for the planning stage",
				Value:   5 * time.Second,
				Sources: cli.EnvVars("PLAN_TIMEOUT"),
			},
			&cli.DurationFlag{
				Name:    "generate-timeout",
				Usage:   "Deadline for each generation or refinement call",
				Value:   12 * time.Second,
				Sources: cli.EnvVars("GENERATE_TIMEOUT"),
			},
			&cli.DurationFlag{
				Name:    "review-timeout",
				Usage:   "Deadline for each review call",
				Value:   3 * time.Second,
				Sources: cli.EnvVars("REVIEW_TIMEOUT"),
			},
			&cli.DurationFlag{
				Name:    "render-timeout",
				Usage:   "Deadline for each rendering call",
				Value:   4 * time.Second,
				Sources: cli.EnvVars("RENDER_TIMEOUT"),
			},
			&cli.DurationFlag{
				Name:    "run-timeout",
				Usage:   "Overall deadline for one generation run",
				Value:   2 * time.Minute,
				Sources: cli.EnvVars("RUN_TIMEOUT"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis connection URL for the plan cache (in-memory cache when empty)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.DurationFlag{
				Name:    "cache-ttl",
				Usage:   "Retention period for cached plans",
				Value:   time.Hour,
				Sources: cli.EnvVars("CACHE_TTL"),
			},
			&cli.BoolFlag{
				Name:    "enable-tracing",
				Usage:   "Export traces via OTLP (endpoint from OTEL_EXPORTER_OTLP_ENDPOINT)",
				Sources: cli.EnvVars("ENABLE_TRACING"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing VisuaLearn API")

			api, err := NewAPI(ctx, logger, command)
			if err != nil {
				return err
			}
			defer api.Close()

			return api.Start(ctx, command.Int("port"))
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cmd.Run(ctx, os.Args)
	if err != nil {
		panic(err)
	}
}
