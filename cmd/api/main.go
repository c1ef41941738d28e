package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/shyim/carbon-analyzer/internal/analyzer"
	"github.com/shyim/carbon-analyzer/internal/cleanup"
	"github.com/shyim/carbon-analyzer/internal/config"
	"github.com/shyim/carbon-analyzer/internal/handler"
	"github.com/shyim/carbon-analyzer/internal/storage"
	"github.com/shyim/carbon-analyzer/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := telemetry.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	flushSentry, err := telemetry.SetupSentry(cfg.SentryDSN, cfg.Environment)
	if err != nil {
		return err
	}
	defer flushSentry()

	shutdownTracing, err := telemetry.SetupTracing(ctx, "carbon-api", cfg.TraceEndpoint != "")
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	pageAnalyzer := analyzer.New(
		analyzer.WithTimeout(cfg.FetchTimeout),
		analyzer.WithMaxResources(cfg.MaxResources),
		analyzer.WithConcurrency(cfg.FetchConcurrency),
		analyzer.WithLogger(logger.Named("analyzer")),
	)

	opts := []handler.Option{
		handler.WithLogger(logger.Named("handler")),
		handler.WithAuthToken(cfg.AuthToken),
	}

	if cfg.Storage != nil {
		storageService, err := storage.NewService(ctx, storage.Options{
			ServiceURL: cfg.Storage.ServiceURL,
			AccessKey:  cfg.Storage.AccessKey,
			SecretKey:  cfg.Storage.SecretKey,
			BucketName: cfg.Storage.BucketName,
			Region:     cfg.Storage.Region,
		})
		if err != nil {
			return fmt.Errorf("initialize storage service: %w", err)
		}
		if err := storageService.EnsureBucket(ctx); err != nil {
			return err
		}
		opts = append(opts, handler.WithReportStore(storageService, cfg.CacheDir))

		cleanup.Start(ctx, cfg.CacheDir, cfg.CacheInterval, cfg.CacheMaxAge, logger.Named("cleanup"))
		logger.Info("report archive enabled", zap.String("bucket", cfg.Storage.BucketName))
	}

	h := handler.NewHandler(pageAnalyzer, opts...)
	limiter := rate.NewLimiter(cfg.RateLimit, cfg.RateLimitBurst)

	// Recover -> Logging -> Auth -> Mux, all inside the trace span.
	var finalHandler http.Handler = h.Routes(limiter)
	finalHandler = handler.LoggingMiddleware(logger, finalHandler)
	finalHandler = handler.RecoverMiddleware(logger, finalHandler)
	finalHandler = otelhttp.NewHandler(finalHandler, "carbon-api")

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           finalHandler,
		ReadHeaderTimeout: 10 * time.Second,
		// analysis itself is bounded by FETCH_TIMEOUT per request
		WriteTimeout: cfg.FetchTimeout*2 + 10*time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
