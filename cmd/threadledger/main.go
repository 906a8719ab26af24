package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mvail/threadledger/internal/storage"
	"github.com/mvail/threadledger/internal/storage/ipfs"
	"github.com/mvail/threadledger/internal/storage/memory"
	"github.com/mvail/threadledger/internal/storage/s3"
	"github.com/mvail/threadledger/internal/storage/sqlite"
	"github.com/mvail/threadledger/pkg/ledger"
	"github.com/mvail/threadledger/pkg/server"
	"github.com/mvail/threadledger/pkg/sweeper"
	"github.com/mvail/threadledger/pkg/thread"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	levelStr := getEnv("LOG_LEVEL", "info")
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelStr)); err != nil {
		level = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	basePath := getEnv("DATA_PATH", "./data")

	trackStore, err := sqlite.Open(basePath)
	if err != nil {
		logger.Error("failed to open tracking store", "error", err)
		os.Exit(1)
	}
	defer trackStore.Close()

	objects, backend, err := buildObjectStore(logger)
	if err != nil {
		logger.Error("failed to build object store", "error", err)
		os.Exit(1)
	}

	ledgerReader := buildLedgerReader(logger)

	engine := thread.NewEngine(thread.Config{
		Objects: objects,
		Ledger:  ledgerReader,
		Tracker: trackStore,
		Logger:  logger,
	})

	swp := sweeper.New(sweeper.Config{
		Interval:    getEnvDuration("SWEEP_INTERVAL_MINUTES", 5),
		GraceWindow: getEnvDuration("SWEEP_GRACE_WINDOW_MINUTES", 15),
		DryRun:      getEnv("SWEEP_DRY_RUN", "false") == "true",
		Logger:      logger,
	}, trackStore, ledgerReader, objects)

	srv, err := server.New(
		server.WithEngine(engine),
		server.WithTracker(trackStore),
		server.WithSweeper(swp),
		server.WithLogger(logger),
		server.WithRateLimit(getEnvFloat("RATE_LIMIT_RPS", 10), 20),
	)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	swp.Start(ctx)
	defer swp.Stop()

	port := getEnv("PORT", "8080")
	httpServer := &http.Server{
		Addr:    ":" + port,
		Handler: srv.Routes(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	fmt.Println("threadledger startup")
	fmt.Println("====================")
	fmt.Printf("Object store backend: %s\n", backend)
	fmt.Printf("Tracking database:    %s\n", trackStore.DBPath())
	fmt.Println()
	fmt.Println("API:")
	fmt.Printf("  POST http://localhost:%s/threads/{threadID}/messages\n", port)
	fmt.Printf("  GET  http://localhost:%s/threads/{threadID}\n", port)
	fmt.Printf("  GET  http://localhost:%s/threads/{threadID}/writes\n", port)
	fmt.Printf("  POST http://localhost:%s/sweep\n", port)

	logger.Info("listening", "addr", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// buildObjectStore selects the object-store backend from OBJECT_STORE:
// "ipfs" (default), "s3", or "memory".
func buildObjectStore(logger *slog.Logger) (storage.ObjectStore, string, error) {
	backend := getEnv("OBJECT_STORE", "ipfs")
	switch backend {
	case "ipfs":
		store, err := ipfs.New(nil, logger)
		return store, backend, err
	case "s3":
		store, err := s3.New(s3.Config{
			Endpoint:  getEnv("S3_ENDPOINT", "localhost:9000"),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
			Bucket:    getEnv("S3_BUCKET", "threadledger"),
			UseSSL:    getEnv("S3_USE_SSL", "false") == "true",
			Logger:    logger,
		})
		return store, backend, err
	case "memory":
		return memory.New(), backend, nil
	default:
		return nil, backend, fmt.Errorf("unknown object store backend %q", backend)
	}
}

// buildLedgerReader selects the ledger adapter. Without LEDGER_URL the
// service runs against an empty static ledger, which is only useful for
// local development.
func buildLedgerReader(logger *slog.Logger) ledger.Reader {
	if baseURL := os.Getenv("LEDGER_URL"); baseURL != "" {
		return ledger.NewHTTPClient(baseURL, nil)
	}
	logger.Warn("LEDGER_URL not set, using empty static ledger (dev mode)")
	return ledger.NewStaticReader()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultMinutes int) time.Duration {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return time.Duration(n) * time.Minute
		}
	}
	return time.Duration(defaultMinutes) * time.Minute
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
