package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/PradeepMolleti-09/star-shot/internal/models"
)

const (
	ExtractionStreamName  = "EXTRACTION"
	ExtractionSubjectBase = "extraction"
	UpdatesStreamName     = "PHOTO_UPDATES"
	UpdatesSubjectBase    = "photo-updates"
)

type Producer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewProducer(natsURL string) (*Producer, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	return &Producer{nc: nc, js: js}, nil
}

// EnsureStreams creates the extraction work queue if it doesn't exist.
// Retries up to 30 times (1s apart) to handle NATS startup delay.
func (p *Producer) EnsureStreams(ctx context.Context) error {
	streams := []jetstream.StreamConfig{
		{
			Name:        ExtractionStreamName,
			Subjects:    []string{ExtractionSubjectBase + ".>"},
			Retention:   jetstream.WorkQueuePolicy,
			MaxAge:      24 * time.Hour,
			MaxMsgs:     1000000,
			Storage:     jetstream.FileStorage,
			Discard:     jetstream.DiscardOld,
			Duplicates:  30 * time.Second,
			Description: "Face extraction tasks for event photos",
		},
		{
			Name:        UpdatesStreamName,
			Subjects:    []string{UpdatesSubjectBase + ".>"},
			Retention:   jetstream.InterestPolicy,
			MaxAge:      time.Hour,
			MaxMsgs:     100000,
			Storage:     jetstream.FileStorage,
			Description: "Photo processing status updates",
		},
	}

	const maxAttempts = 30
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		allOK := true
		for _, cfg := range streams {
			opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			_, err := p.js.CreateOrUpdateStream(opCtx, cfg)
			cancel()
			if err != nil {
				allOK = false
				if attempt == maxAttempts {
					return fmt.Errorf("create stream %s: %w (after %d attempts)", cfg.Name, err, maxAttempts)
				}
				slog.Warn("ensure NATS stream (retrying...)", "name", cfg.Name, "attempt", attempt, "error", err)
				break
			}
			slog.Info("ensured NATS stream", "name", cfg.Name)
		}
		if allOK {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
	return nil
}

// PublishExtraction enqueues one photo for background face extraction.
// The message id makes rapid duplicate publishes (requeue sweep racing
// the original publish) collapse within the dedupe window.
func (p *Producer) PublishExtraction(ctx context.Context, task models.ExtractionTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal extraction task: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", ExtractionSubjectBase, task.EventID)
	_, err = p.js.Publish(ctx, subject, payload,
		jetstream.WithMsgID(task.PhotoID.String()))
	if err != nil {
		return fmt.Errorf("publish extraction task: %w", err)
	}
	return nil
}

// PublishPhotoUpdate publishes a processing status change for the API
// to forward to connected dashboards.
func (p *Producer) PublishPhotoUpdate(ctx context.Context, update models.PhotoUpdate) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshal photo update: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", UpdatesSubjectBase, update.EventID)
	if _, err := p.js.Publish(ctx, subject, payload); err != nil {
		return fmt.Errorf("publish photo update: %w", err)
	}
	return nil
}

// QueueDepth returns the number of pending extraction tasks.
func (p *Producer) QueueDepth(ctx context.Context) (uint64, error) {
	stream, err := p.js.Stream(ctx, ExtractionStreamName)
	if err != nil {
		return 0, err
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return 0, err
	}
	return info.State.Msgs, nil
}

func (p *Producer) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Producer) Close() {
	p.nc.Close()
}
