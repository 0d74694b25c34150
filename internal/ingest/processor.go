package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/PradeepMolleti-09/star-shot/internal/models"
	"github.com/PradeepMolleti-09/star-shot/internal/observability"
)

// ProcessorStore is the persistence the worker-side processor needs.
// Completion writes are keyed by photo id and must not upsert: a photo
// hard-deleted mid-extraction makes the write a no-op.
type ProcessorStore interface {
	GetPhoto(ctx context.Context, id uuid.UUID) (*models.Photo, error)
	MarkPhotoProcessed(ctx context.Context, id uuid.UUID, descriptors [][]float32) (bool, error)
	MarkPhotoFailed(ctx context.Context, id uuid.UUID) (bool, error)
	ListStalePending(ctx context.Context, cutoff time.Time) ([]models.Photo, error)
}

// Extractor produces face descriptors for an image reference.
type Extractor interface {
	Extract(ctx context.Context, imageURL string) ([][]float32, error)
}

// UpdatePublisher fans processing outcomes out to dashboards.
type UpdatePublisher interface {
	PublishExtraction(ctx context.Context, task models.ExtractionTask) error
	PublishPhotoUpdate(ctx context.Context, update models.PhotoUpdate) error
}

// Processor handles extraction tasks on the worker side.
type Processor struct {
	store     ProcessorStore
	extractor Extractor
	publisher UpdatePublisher
}

func NewProcessor(store ProcessorStore, extractor Extractor, publisher UpdatePublisher) *Processor {
	return &Processor{store: store, extractor: extractor, publisher: publisher}
}

// HandleTask processes one photo's extraction. Returning an error asks
// the queue for a redelivery; the handler is idempotent, so redelivery
// of an already-completed task is harmless.
//
// Zero detected faces is a normal terminal outcome: the photo becomes
// processed with face count 0 and simply never matches. Only transport
// or engine failures mark the photo failed.
func (p *Processor) HandleTask(ctx context.Context, task models.ExtractionTask) error {
	photo, err := p.store.GetPhoto(ctx, task.PhotoID)
	if err != nil {
		return fmt.Errorf("load photo %s: %w", task.PhotoID, err)
	}
	if photo == nil {
		// Hard-deleted while the task was in flight.
		slog.Debug("extraction target gone, dropping task", "photo_id", task.PhotoID)
		observability.PhotosProcessed.WithLabelValues("orphaned").Inc()
		return nil
	}
	if photo.Status == models.PhotoStatusProcessed {
		return nil
	}

	descriptors, err := p.extractor.Extract(ctx, task.ImageURL)
	if err != nil {
		if marked, mErr := p.store.MarkPhotoFailed(ctx, task.PhotoID); mErr != nil {
			slog.Error("mark photo failed", "photo_id", task.PhotoID, "error", mErr)
		} else if marked {
			observability.PhotosProcessed.WithLabelValues("failed").Inc()
			p.notify(ctx, photo, models.PhotoStatusFailed, 0)
		}
		return fmt.Errorf("extract photo %s: %w", task.PhotoID, err)
	}

	updated, err := p.store.MarkPhotoProcessed(ctx, task.PhotoID, descriptors)
	if err != nil {
		return fmt.Errorf("persist extraction result %s: %w", task.PhotoID, err)
	}
	if !updated {
		observability.PhotosProcessed.WithLabelValues("orphaned").Inc()
		return nil
	}

	observability.PhotosProcessed.WithLabelValues("processed").Inc()
	observability.FacesExtracted.Add(float64(len(descriptors)))
	p.notify(ctx, photo, models.PhotoStatusProcessed, len(descriptors))

	slog.Info("photo processed", "photo_id", task.PhotoID, "faces", len(descriptors))
	return nil
}

func (p *Processor) notify(ctx context.Context, photo *models.Photo, status models.PhotoStatus, faceCount int) {
	update := models.PhotoUpdate{
		PhotoID:   photo.ID,
		EventID:   photo.EventID,
		ImageURL:  photo.ImageURL,
		Status:    status,
		FaceCount: faceCount,
	}
	if err := p.publisher.PublishPhotoUpdate(ctx, update); err != nil {
		slog.Warn("publish photo update", "photo_id", photo.ID, "error", err)
	}
}

// RequeueStale republishes extraction tasks for photos stuck in
// pending since before olderThan ago. Covers tasks lost to a crash
// between persisting the placeholder and the queue ack.
func (p *Processor) RequeueStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	stale, err := p.store.ListStalePending(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stale pending: %w", err)
	}

	requeued := 0
	for _, photo := range stale {
		task := models.ExtractionTask{
			PhotoID:  photo.ID,
			EventID:  photo.EventID,
			ImageURL: photo.ImageURL,
			Enqueued: time.Now(),
		}
		if err := p.publisher.PublishExtraction(ctx, task); err != nil {
			slog.Warn("requeue stale photo", "photo_id", photo.ID, "error", err)
			continue
		}
		requeued++
	}

	if requeued > 0 {
		slog.Info("requeued stale pending photos", "count", requeued)
	}
	return requeued, nil
}
