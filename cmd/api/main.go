package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/PradeepMolleti-09/star-shot/internal/api"
	"github.com/PradeepMolleti-09/star-shot/internal/api/ws"
	"github.com/PradeepMolleti-09/star-shot/internal/config"
	"github.com/PradeepMolleti-09/star-shot/internal/extract"
	"github.com/PradeepMolleti-09/star-shot/internal/facematch"
	"github.com/PradeepMolleti-09/star-shot/internal/ingest"
	"github.com/PradeepMolleti-09/star-shot/internal/models"
	"github.com/PradeepMolleti-09/star-shot/internal/observability"
	"github.com/PradeepMolleti-09/star-shot/internal/queue"
	"github.com/PradeepMolleti-09/star-shot/internal/storage"
	"github.com/PradeepMolleti-09/star-shot/pkg/dto"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting star-shot API service", "port", cfg.Server.Port)

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(context.Background()); err != nil {
		slog.Error("run migrations", "error", err)
		os.Exit(1)
	}

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBucket(context.Background()); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	// Face engine client, shared by matching and readiness checks
	faceEngine := extract.NewClient(cfg.FaceEngine)

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Consume photo updates from the worker and broadcast them to
	// dashboard clients.
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create update consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = consumer.ConsumePhotoUpdates(ctx, "api-updates", func(ctx context.Context, msg jetstream.Msg) error {
		var update models.PhotoUpdate
		if err := json.Unmarshal(msg.Data(), &update); err != nil {
			return err
		}

		evtType := "photo_processed"
		if update.Status == models.PhotoStatusFailed {
			evtType = "photo_failed"
		}

		hub.BroadcastEvent(&dto.WSEvent{
			Type:    evtType,
			EventID: update.EventID,
			Data: dto.PhotoResponse{
				ID:        update.PhotoID,
				EventID:   update.EventID,
				ImageURL:  update.ImageURL,
				Status:    string(update.Status),
				FaceCount: update.FaceCount,
			},
		})

		return nil
	})
	if err != nil {
		slog.Warn("start update consumer", "error", err)
	}

	pipeline := ingest.NewPipeline(db, minioStore, producer, cfg.Events.Expiry)

	engine := facematch.NewEngine(db, db, faceEngine, facematch.Thresholds{
		Scale:       cfg.Matching.Scale,
		Strong:      cfg.Matching.Strong,
		Good:        cfg.Matching.Good,
		Possible:    cfg.Matching.Possible,
		MaxDistance: cfg.Matching.MaxDistance,
	})

	// Setup router
	router := api.NewRouter(api.RouterConfig{
		APIKey:     cfg.Server.APIKey,
		Events:     cfg.Events,
		DB:         db,
		MinIO:      minioStore,
		Producer:   producer,
		Hub:        hub,
		Pipeline:   pipeline,
		Engine:     engine,
		FaceEngine: faceEngine,
	})

	// Start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}
