package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/a3tai/pdf-form-filler/internal/config"
	"github.com/a3tai/pdf-form-filler/internal/facts"
	"github.com/a3tai/pdf-form-filler/internal/fill"
	"github.com/a3tai/pdf-form-filler/internal/mcp"
	"github.com/a3tai/pdf-form-filler/internal/oracle/openai"
	"github.com/a3tai/pdf-form-filler/internal/pdf"
	"github.com/a3tai/pdf-form-filler/internal/server"
	"github.com/a3tai/pdf-form-filler/internal/storage"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

// setupLogging builds the process logger based on the configured mode
func setupLogging(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	// In stdio mode, logs go to stderr to avoid interfering with the MCP protocol
	out := os.Stdout
	if cfg.IsStdioMode() {
		out = os.Stderr
	}

	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// buildService wires the pipeline from configuration
func buildService(cfg *config.Config, logger *slog.Logger) (*fill.Service, error) {
	store, err := storage.NewDiskStore(cfg.DataDirectory, cfg.PublicBaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open data directory: %w", err)
	}

	aggregator := facts.NewAggregator(store, logger)

	oracleClient := openai.NewClient(openai.Config{
		APIKey:  cfg.OracleAPIKey,
		BaseURL: cfg.OracleBaseURL,
		Model:   cfg.OracleModel,
		Timeout: cfg.OracleTimeout,
	}, logger)

	resolver := fill.NewResolver(oracleClient, fill.ResolverConfig{
		MaxConcurrency: cfg.MaxFillConcurrency,
		MaxRetries:     cfg.OracleMaxRetries,
	}, logger)

	fetcher := pdf.NewFetcher(nil, cfg.MaxFormSize, logger)

	return fill.NewService(fetcher, store, aggregator, resolver, logger), nil
}

// runServerMode serves the HTTP API with signal-driven graceful shutdown
func runServerMode(ctx context.Context, cfg *config.Config, svc *fill.Service, logger *slog.Logger) error {
	httpServer := &http.Server{
		Addr:              cfg.Address(),
		Handler:           server.New(svc, logger).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info("http.serve", "addr", cfg.Address())
		serverErrCh <- httpServer.ListenAndServe()
	}()

	select {
	case sig := <-signalCh:
		logger.Info("http.shutdown", "signal", sig.String())
		shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		<-serverErrCh
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	logger.Info("http.stopped")
	return nil
}

// runStdioMode serves MCP tools over standard I/O
func runStdioMode(ctx context.Context, cfg *config.Config, svc *fill.Service, logger *slog.Logger) error {
	mcpServer, err := mcp.NewServer(cfg, svc, logger)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	// The parent process controls our lifecycle over stdin
	return mcpServer.Run(ctx)
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			printVersion()
			return
		}
	}

	cfg, err := config.LoadFromFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogging(cfg)

	// Set version if it was provided during build
	if version != "dev" {
		cfg.Version = version
	}

	if cfg.IsDebug() && cfg.IsServerMode() {
		logger.Debug("config.loaded", "config", cfg.String())
	}

	svc, err := buildService(cfg, logger)
	if err != nil {
		logger.Error("startup.failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.IsServerMode() {
		err = runServerMode(ctx, cfg, svc, logger)
	} else {
		err = runStdioMode(ctx, cfg, svc, logger)
	}
	if err != nil {
		logger.Error("server.failed", "error", err)
		os.Exit(1)
	}
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("PDF Form Filler\n")
	fmt.Printf("Version: %s\n", version)
	fmt.Printf("Build Time: %s\n", buildTime)
	fmt.Printf("Git Commit: %s\n", gitCommit)
	fmt.Printf("Built with: %s\n", runtime.Version())
}
