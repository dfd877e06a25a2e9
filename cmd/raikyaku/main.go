package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/ashita-ai/raikyaku/internal/auth"
	"github.com/ashita-ai/raikyaku/internal/classify"
	"github.com/ashita-ai/raikyaku/internal/collector"
	"github.com/ashita-ai/raikyaku/internal/config"
	"github.com/ashita-ai/raikyaku/internal/consent"
	"github.com/ashita-ai/raikyaku/internal/mcp"
	"github.com/ashita-ai/raikyaku/internal/provider"
	"github.com/ashita-ai/raikyaku/internal/provider/geoip"
	"github.com/ashita-ai/raikyaku/internal/provider/publicip"
	"github.com/ashita-ai/raikyaku/internal/ratelimit"
	"github.com/ashita-ai/raikyaku/internal/server"
	"github.com/ashita-ai/raikyaku/internal/sink"
	"github.com/ashita-ai/raikyaku/internal/store"
	"github.com/ashita-ai/raikyaku/internal/telemetry"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("RAIKYAKU_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("raikyaku starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("data dir: %w", err)
	}

	// Open the persisted visit log.
	st, err := store.Open(filepath.Join(cfg.DataDir, cfg.StoreFile), cfg.StoreCapacity, logger)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	logger.Info("store opened", "depth", st.Len(), "capacity", st.Capacity())

	// Open the consent gate.
	gate, err := consent.Open(filepath.Join(cfg.DataDir, "consent"), cfg.ConsentAutoAccept, logger)
	if err != nil {
		return fmt.Errorf("consent: %w", err)
	}
	logger.Info("consent gate opened", "state", string(gate.State()))

	// Assemble the provider set: client hint pass-throughs, the user agent
	// classifier, the geolocation fallback chain, and the public IP race.
	httpClient := &http.Client{Timeout: cfg.ProviderTimeout}
	providers := provider.Hints(&classify.Substring{})
	providers = append(providers,
		geoip.New(cfg.GeoEndpoints, httpClient, cfg.GeoTimeout, logger),
		publicip.New(cfg.IPEndpoints, httpClient, cfg.IPTimeout, logger),
	)

	col := collector.New(providers, cfg.OverallDeadline, cfg.ProviderTimeout, logger)

	// Create JWT manager.
	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	// Hash the operator key at startup so only the hash stays in memory.
	var operatorKeyHash string
	if cfg.OperatorKey != "" {
		operatorKeyHash, err = auth.HashKey(cfg.OperatorKey)
		if err != nil {
			return fmt.Errorf("operator key: %w", err)
		}
	} else {
		logger.Warn("no operator key configured; operator endpoints are unreachable")
	}

	// Create the delivery sink and its dispatcher.
	var deliverySink sink.Sink
	switch cfg.SinkKind {
	case "webhook":
		deliverySink = sink.NewWebhook(cfg.SinkURL, &http.Client{Timeout: cfg.SinkTimeout})
		logger.Info("sink: webhook", "url", cfg.SinkURL)
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("sink: postgres: %w", err)
		}
		defer pool.Close()
		pg := sink.NewPostgres(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("sink: postgres schema: %w", err)
		}
		deliverySink = pg
		logger.Info("sink: postgres")
	default:
		deliverySink = sink.Noop{}
		logger.Info("sink: noop")
	}

	dispatcher := sink.NewDispatcher(deliverySink, cfg.SinkQueue, cfg.SinkTimeout, logger)
	dispatcher.Start()

	// Create rate limiter.
	var limiter ratelimit.Limiter
	if cfg.RateLimitPerMinute > 0 {
		limiter = ratelimit.NewMemoryLimiter(float64(cfg.RateLimitPerMinute)/60.0, cfg.RateLimitPerMinute)
		defer func() { _ = limiter.Close() }()
		logger.Info("rate limiting: memory (in-process token bucket)",
			"per_minute", cfg.RateLimitPerMinute)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	// Create MCP server (read-only log access, mounted at /mcp).
	mcpSrv := mcp.New(st, gate, logger)

	// Create and start HTTP server.
	srv := server.New(server.ServerConfig{
		Gate:                gate,
		Store:               st,
		Collector:           col,
		Dispatcher:          dispatcher,
		JWTMgr:              jwtMgr,
		OperatorKeyHash:     operatorKeyHash,
		Limiter:             limiter,
		MCPServer:           mcpSrv.MCPServer(),
		Logger:              logger,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		SinkName:            deliverySink.Name(),
	})

	// Start HTTP server in background.
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	// Graceful shutdown. Each phase gets its own timeout so early completion
	// doesn't steal budget from later phases.
	// Order: (1) stop accepting new HTTP requests and drain in-flight captures
	// (they may still enqueue deliveries), (2) flush the sink queue.
	slog.Info("raikyaku shutting down")

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := srv.Shutdown(httpCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	httpCancel()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 10*time.Second)
	dispatcher.Drain(drainCtx)
	drainCancel()

	slog.Info("raikyaku stopped")
	return nil
}
