// Package main provides the VisuaLearn API server implementation.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	cli "github.com/urfave/cli/v3"

	"github.com/visualearn/visualearn/pkg/artifacts"
	"github.com/visualearn/visualearn/pkg/cache"
	"github.com/visualearn/visualearn/pkg/completion"
	"github.com/visualearn/visualearn/pkg/diagram"
	"github.com/visualearn/visualearn/pkg/models"
	"github.com/visualearn/visualearn/pkg/otelhelper"
	"github.com/visualearn/visualearn/pkg/pipeline"
	"github.com/visualearn/visualearn/pkg/planner"
	"github.com/visualearn/visualearn/pkg/render"
	"github.com/visualearn/visualearn/pkg/review"
	"github.com/visualearn/visualearn/pkg/web"
)

// maxArtifactSize bounds individual persisted artifacts.
const maxArtifactSize = 5 << 20

type API struct {
	logger       *slog.Logger
	orchestrator *pipeline.Orchestrator
	store        *artifacts.Store
	sweeper      *artifacts.Sweeper
	validate     *validator.Validate

	mcpGenerator *diagram.MCPGenerator
	redisCache   *cache.Redis
}

func NewAPI(ctx context.Context, logger *slog.Logger, command *cli.Command) (*API, error) {
	api := &API{
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}

	if command.Bool("enable-tracing") {
		if _, err := otelhelper.NewTracer(ctx, "visualearn-api"); err != nil {
			return nil, fmt.Errorf("initialize tracer: %w", err)
		}
	}

	client := completion.NewClient(
		command.String("llm-base-url"),
		command.String("llm-model"),
		command.String("llm-api-key"),
		completion.WithLogger(logger),
	)

	planCache, err := api.buildCache(command)
	if err != nil {
		return nil, err
	}

	conceptPlanner := planner.New(client, command.Duration("plan-timeout"),
		planner.WithCache(planCache, command.Duration("cache-ttl")),
		planner.WithLogger(logger))

	generator, err := api.buildGenerator(ctx, command)
	if err != nil {
		return nil, err
	}

	reviewer := review.New(client, command.Duration("review-timeout"), pipeline.HighScore, logger)

	engine := render.NewEngine(command.String("renderer-url"), command.Int("render-concurrency"))
	renderer := render.NewRenderer(engine, command.Duration("render-timeout"), logger)

	store, err := artifacts.NewStore(command.String("artifacts-dir"), maxArtifactSize, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize artifact store: %w", err)
	}

	api.store = store

	api.sweeper = artifacts.NewSweeper(store,
		command.Duration("artifact-ttl"),
		command.Duration("sweep-interval"),
		logger)
	if err := api.sweeper.Start(); err != nil {
		return nil, fmt.Errorf("start artifact sweeper: %w", err)
	}

	api.orchestrator = pipeline.NewOrchestrator(
		conceptPlanner,
		generator,
		reviewer,
		renderer,
		store,
		pipeline.Config{
			RunTimeout:     command.Duration("run-timeout"),
			ImageFormats:   []string{models.FormatSVG},
			RenderFallback: command.Bool("render-fallback"),
		},
		logger,
	)

	return api, nil
}

func (a *API) buildCache(command *cli.Command) (cache.Cache, error) {
	url := command.String("redis-url")
	if url == "" {
		return cache.NewMemory(0), nil
	}

	redisCache, err := cache.NewRedis(url, a.logger)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	a.redisCache = redisCache

	return redisCache, nil
}

func (a *API) buildGenerator(ctx context.Context, command *cli.Command) (pipeline.Generator, error) {
	timeout := command.Duration("generate-timeout")

	switch transport := command.String("generator-transport"); transport {
	case "http":
		url := command.String("authoring-url")
		if url == "" {
			return nil, fmt.Errorf("authoring-url is required for the http transport")
		}

		return diagram.NewHTTPGenerator(url, timeout, a.logger), nil

	case "mcp":
		parts := strings.Fields(command.String("mcp-command"))
		if len(parts) == 0 {
			return nil, fmt.Errorf("mcp-command is required for the mcp transport")
		}

		session, err := diagram.DialMCP(ctx, parts[0], parts[1:]...)
		if err != nil {
			return nil, fmt.Errorf("connect to mcp server: %w", err)
		}

		a.mcpGenerator = diagram.NewMCPGenerator(session, timeout, a.logger)

		return a.mcpGenerator, nil

	default:
		return nil, fmt.Errorf("unknown generator transport %q", transport)
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.orchestrator, a.store, a.validate, a.logger)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("VisuaLearn API")
	})

	api := app.Group("/api")
	api.Post("/diagram", handlers.GenerateDiagram)
	api.Post("/diagram/stream", handlers.GenerateDiagramStream)
	api.Get("/artifacts/:id", handlers.GetArtifact)

	app.Get("/health", handlers.HealthCheck)

	return app
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	return app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{
		GracefulContext: ctx,
	})
}

func (a *API) Close() {
	if a.sweeper != nil {
		a.sweeper.Stop()
	}

	if a.mcpGenerator != nil {
		if err := a.mcpGenerator.Close(); err != nil {
			a.logger.Error("Failed to close mcp session", "error", err)
		}
	}

	if a.redisCache != nil {
		if err := a.redisCache.Close(); err != nil {
			a.logger.Error("Failed to close redis client", "error", err)
		}
	}
}
