package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/comicaholic/genai-studio/internal/cleanup"
	"github.com/comicaholic/genai-studio/internal/config"
	"github.com/comicaholic/genai-studio/internal/http/rest"
	"github.com/comicaholic/genai-studio/internal/hub"
	"github.com/comicaholic/genai-studio/internal/logctx"
	"github.com/comicaholic/genai-studio/internal/notifier"
	"github.com/comicaholic/genai-studio/internal/queue"
	"github.com/comicaholic/genai-studio/internal/storage"
	"github.com/comicaholic/genai-studio/internal/telemetry"
	"github.com/comicaholic/genai-studio/internal/transfer"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Version is injected at build time.
var Version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := logctx.NewJSONLogger(os.Stdout, cfg.SlogLevel())
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("model download queue starting...", "log_level", cfg.LogLevel, "version", Version)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: Version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	defer func() {
		if err := tel.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Store
	store, closeStore, err := storage.Open(ctx, storage.Config{
		Backend:   cfg.StoreBackend,
		QueueFile: cfg.QueueFile,
		DBPath:    cfg.DBPath,
	})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	defer func() {
		if err := closeStore(); err != nil {
			logger.Error("failed to close store", "err", err)
		}
	}()

	// =========================================================================
	// Start Queue
	hubClient := hub.NewClient(hub.Config{
		BaseURL:     cfg.Hub.BaseURL,
		Token:       cfg.Hub.Token,
		Revision:    cfg.Hub.Revision,
		MaxParallel: cfg.Hub.MaxParallel,
	})

	manager, err := queue.New(
		ctx,
		storage.NewInstrumentedStore(store, cfg.StoreBackend, tel),
		transfer.NewInstrumentedResolver(hubClient, tel, "hub"),
		transfer.NewInstrumentedFetcher(hubClient, tel, "hub"),
		cfg.ModelsDir,
		queue.WithProgressInterval(cfg.ProgressInterval),
	)
	if err != nil {
		return fmt.Errorf("failed to create download queue: %w", err)
	}

	if err := tel.ObserveQueue(manager.Counts); err != nil {
		return fmt.Errorf("failed to observe queue: %w", err)
	}

	if resumed := manager.Resume(ctx); resumed > 0 {
		logger.Info("resumed interrupted downloads", "count", resumed)
	}

	// =========================================================================
	// Start Notification
	setupNotification(ctx, manager, cfg)

	// =========================================================================
	// Start Cleanup
	if cfg.KeepCompletedFor > 0 {
		go cleanup.Run(ctx, manager, cfg.KeepCompletedFor, cfg.CleanupInterval)
	}

	// =========================================================================
	// Start API Service

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	server := setupServer(ctx, manager, tel, cfg)

	go func() {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress)
		serverErrors <- server.ListenAndServe()
	}()

	logger.Info("waiting for downloads...",
		"models_dir", cfg.ModelsDir,
		"store_backend", cfg.StoreBackend,
		"progress_interval", cfg.ProgressInterval.String(),
		"retention", cfg.KeepCompletedFor.String(),
	)

	var runErr error

	select {
	case err := <-serverErrors:
		runErr = fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("start shutdown")
	}

	// Give outstanding requests a deadline for completion.
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Web.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to gracefully shutdown the server", "err", err)

		if err = server.Close(); err != nil {
			runErr = errors.Join(runErr, fmt.Errorf("could not stop server gracefully: %w", err))
		}
	}

	if err := manager.Close(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("failed to stop download queue: %w", err))
	}

	return runErr
}

func setupNotification(ctx context.Context, manager *queue.Manager, cfg *config.Config) {
	logger := logctx.LoggerFromContext(ctx)

	if cfg.DiscordWebhookURL == "" {
		go func() {
			for ev := range manager.Events() {
				logger.Debug("download finished", "download_id", ev.Item.ID, "status", ev.Item.Status)
			}
		}()

		return
	}

	go notifier.Watch(ctx, &notifier.DiscordNotifier{WebhookURL: cfg.DiscordWebhookURL}, manager.Events())
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(ctx context.Context, manager *queue.Manager, tel *telemetry.Telemetry, cfg *config.Config) *http.Server {
	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)

	r.Get("/health", rest.HandleHealth)
	r.Method(http.MethodGet, "/metrics", tel.Handler())
	r.Mount("/api/downloads", rest.NewDownloadsHandler(manager).Routes())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      otelhttp.NewHandler(r, "modelq"),
		// Requests keep the logger but are not cut off when shutdown starts.
		BaseContext: func(net.Listener) context.Context {
			return context.WithoutCancel(ctx)
		},
	}
}
