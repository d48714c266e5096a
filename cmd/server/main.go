package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vinodismyname/sheetboard/config"
	"github.com/vinodismyname/sheetboard/internal/dashboard"
	"github.com/vinodismyname/sheetboard/internal/httpapi"
	"github.com/vinodismyname/sheetboard/internal/registry"
	"github.com/vinodismyname/sheetboard/internal/runtime"
	"github.com/vinodismyname/sheetboard/internal/security"
	"github.com/vinodismyname/sheetboard/internal/telemetry"
	"github.com/vinodismyname/sheetboard/internal/workbooks"
	"github.com/vinodismyname/sheetboard/pkg/version"
)

// buildVersion is set with -ldflags "-X main.buildVersion=...".
var buildVersion string

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	version.Set(buildVersion)

	var (
		useStdio        bool
		useHTTP         bool
		httpAddr        string
		shutdownTimeout time.Duration
		showVersion     bool
	)

	flag.BoolVar(&useStdio, "stdio", false, "Run the MCP server over stdio transport")
	flag.BoolVar(&useHTTP, "http", false, "Serve the dashboard HTTP API (and MCP at /mcp)")
	flag.StringVar(&httpAddr, "addr", "", "HTTP listen address (overrides config)")
	flag.DurationVar(&shutdownTimeout, "shutdown-timeout", 0, "Graceful shutdown timeout (overrides config)")
	flag.BoolVar(&showVersion, "version", false, "Print the version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version.Version())
		return
	}
	if !useStdio && !useHTTP {
		fmt.Fprintln(os.Stderr, "no transport selected; use --stdio and/or --http")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if httpAddr != "" {
		cfg.Server.HTTPAddr = httpAddr
	}
	if shutdownTimeout > 0 {
		cfg.Server.ShutdownTimeout = shutdownTimeout
	}

	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil || cfg.Logging.Level == "" {
		level = zerolog.InfoLevel
	}
	// Logs go to stderr so the stdio transport owns stdout.
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Str("service", "sheetboard").Logger()

	ctx, stop := signal.NotifyContext(logger.WithContext(context.Background()), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, useStdio, useHTTP, logger); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, useStdio, useHTTP bool, logger zerolog.Logger) error {
	// Security: validate allow-list directories on startup (fail-safe on error)
	secMgr, err := security.ForSources(cfg.Sources.DataDir, cfg.Sources.AllowedDirs)
	if err != nil {
		return fmt.Errorf("security: %w", err)
	}
	if err := secMgr.ValidateConfig(); err != nil {
		return fmt.Errorf("security: %w", err)
	}
	logger.Info().Strs("allowed_dirs", secMgr.AllowedDirectories()).Msg("security allow-list configured")

	limits := runtime.LimitsFromConfig(cfg.Limits)
	controller := runtime.NewController(limits)
	runtimeMW := runtime.NewMiddleware(controller)
	metrics := telemetry.NewMetrics()

	loader := workbooks.NewManager(cfg.Limits.WorkbookIdleTTL, 0, limits.MaxCachedWorkbooks, controller, nil)
	loader.SetValidator(secMgr)
	loader.SetDiscovery(cfg.Sources.DataDir, cfg.Sources.Hints)
	loader.SetMaxUploadBytes(limits.MaxUploadBytes)
	loader.SetObserver(metrics.ObserveLoad)
	loader.Start()

	svc := dashboard.NewService(loader, dashboard.NewStore(limits.MaxSessions, cfg.Limits.SessionIdleTTL, nil), dashboard.Options{
		EditsEnabled:    cfg.Features.EditsEnabled(),
		PreviewRowLimit: limits.PreviewRowLimit,
		MaxPageSize:     limits.MaxPageSize,
		Metrics:         metrics,
		Saver:           secMgr,
	})

	toolRegistry := registry.New(cfg.Server.Model)
	writeFilter := registry.NewWriteToolFilter(cfg.Features.EditsEnabled())
	hooks := telemetry.NewHooks(logger, metrics)

	srv := server.NewMCPServer(
		"Sheetboard Dashboard Server",
		version.Version(),
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithHooks(hooks.MCP()),
		server.WithToolHandlerMiddleware(runtimeMW.ToolMiddleware),
		server.WithToolFilter(func(ctx context.Context, tools []mcp.Tool) []mcp.Tool { return writeFilter.FilterTools(ctx, tools) }),
	)
	registry.RegisterDashboardTools(srv, toolRegistry, svc, controller.LimitsSnapshot())
	tools, err := toolRegistry.Tools(ctx)
	if err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	toolNames := make([]string, 0, len(tools))
	for _, t := range tools {
		toolNames = append(toolNames, t.Name)
	}

	logger.Info().
		Str("version", version.Version()).
		Int("max_concurrent_requests", limits.MaxConcurrentRequests).
		Int("max_cached_workbooks", limits.MaxCachedWorkbooks).
		Int("max_sessions", limits.MaxSessions).
		Int("model_context_size", toolRegistry.ModelContextSize()).
		Strs("tools", toolNames).
		Bool("edits_enabled", cfg.Features.EditsEnabled()).
		Bool("stdio", useStdio).
		Bool("http", useHTTP).
		Msg("server bootstrap configured")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		svc.Run(gctx, config.DefaultWorkbookCleanupPeriod)
		return nil
	})

	if useStdio {
		g.Go(func() error {
			// Closing stdin ends the process.
			defer cancel()
			stdio := server.NewStdioServer(srv)
			if err := stdio.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("stdio: %w", err)
			}
			return nil
		})
	}

	if useHTTP {
		api := httpapi.New(svc, logger, httpapi.Options{
			MaxUploadBytes: limits.MaxUploadBytes,
			Metrics:        metrics.Handler(),
			MCP:            server.NewStreamableHTTPServer(srv),
			Guard:          runtimeMW.HTTPMiddleware,
		})
		httpSrv := &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           api.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info().Str("addr", httpSrv.Addr).Msg("http listening")
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer closeCancel()
	if cerr := loader.Close(closeCtx); cerr != nil {
		logger.Warn().Err(cerr).Msg("workbook cache close")
	}
	logger.Info().Msg("server stopped")
	return err
}
