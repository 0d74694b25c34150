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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PradeepMolleti-09/star-shot/internal/config"
	"github.com/PradeepMolleti-09/star-shot/internal/extract"
	"github.com/PradeepMolleti-09/star-shot/internal/ingest"
	"github.com/PradeepMolleti-09/star-shot/internal/models"
	"github.com/PradeepMolleti-09/star-shot/internal/observability"
	"github.com/PradeepMolleti-09/star-shot/internal/queue"
	"github.com/PradeepMolleti-09/star-shot/internal/storage"
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

	slog.Info("starting star-shot extraction worker",
		"workers", cfg.Worker.Count,
		"face_engine", cfg.FaceEngine.URL,
	)

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	// Face engine client
	faceEngine := extract.NewClient(cfg.FaceEngine)
	if err := faceEngine.Ping(context.Background()); err != nil {
		slog.Warn("face engine not ready yet", "error", err)
	}

	processor := ingest.NewProcessor(db, faceEngine, producer)

	// Create NATS consumer
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start consuming extraction tasks
	err = consumer.ConsumeExtractions(ctx, "extraction-workers", func(ctx context.Context, msg jetstream.Msg) error {
		var task models.ExtractionTask
		if err := json.Unmarshal(msg.Data(), &task); err != nil {
			slog.Error("unmarshal extraction task", "error", err)
			return nil // Don't retry on unmarshal errors
		}

		if err := processor.HandleTask(ctx, task); err != nil {
			return fmt.Errorf("process photo %s: %w", task.PhotoID, err)
		}

		return nil
	}, cfg.Worker.Count)
	if err != nil {
		slog.Error("start extraction consumer", "error", err)
		os.Exit(1)
	}

	// Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		slog.Info("worker metrics listening", "addr", ":8082")
		if err := http.ListenAndServe(":8082", mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Periodically report queue depth
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				depth, err := producer.QueueDepth(ctx)
				if err == nil {
					observability.QueueDepth.Set(float64(depth))
				}
			}
		}
	}()

	// Requeue photos stuck in pending, e.g. after a lost publish or a
	// worker crash past MaxDeliver.
	go func() {
		ticker := time.NewTicker(cfg.Worker.RequeueInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := processor.RequeueStale(ctx, cfg.Worker.RequeueAfter)
				if err != nil {
					slog.Warn("requeue stale photos", "error", err)
				} else if n > 0 {
					slog.Info("requeued stale photos", "count", n)
				}
			}
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	cancel()
	time.Sleep(2 * time.Second)
	slog.Info("worker stopped")
}
