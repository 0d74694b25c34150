// Package ingest owns the photo/selfie upload paths and the photo
// lifecycle (soft delete, restore, hard delete), including the event
// counter bookkeeping those mutations imply.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/PradeepMolleti-09/star-shot/internal/models"
	"github.com/PradeepMolleti-09/star-shot/internal/observability"
)

var (
	ErrEventNotFound  = errors.New("event not found")
	ErrEventExpired   = errors.New("event expired")
	ErrPhotoNotFound  = errors.New("photo not found")
	ErrNoFiles        = errors.New("no files supplied")
	ErrNoImage        = errors.New("image is required")
	ErrNotDeleted     = errors.New("photo is not deleted")
	ErrAlreadyDeleted = errors.New("photo is already deleted")
	ErrNotFailed      = errors.New("photo is not in failed state")
	// ErrStorage wraps object-storage failures on delete paths; the
	// database record is left untouched when it is returned.
	ErrStorage = errors.New("storage operation failed")
)

// Store is the persistence the pipeline needs. Every mutation that
// creates or removes a counted child also adjusts the event's counter,
// atomically with the child write: CreatePhoto and CreateSelfie count
// their row, SetPhotoDeleted and DeletePhotoRow adjust based on the
// row's state at write time, never on state a caller read earlier.
type Store interface {
	GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error)
	GetEventByToken(ctx context.Context, token string) (*models.Event, error)

	CreatePhoto(ctx context.Context, p *models.Photo) error
	GetPhoto(ctx context.Context, id uuid.UUID) (*models.Photo, error)
	SetPhotoDeleted(ctx context.Context, id uuid.UUID, deleted bool) (bool, error)
	DeletePhotoRow(ctx context.Context, id uuid.UUID) error
	MarkPhotoPending(ctx context.Context, id uuid.UUID) error

	CreateSelfie(ctx context.Context, s *models.FanSelfie) error
}

// ObjectStore is the binary storage collaborator.
type ObjectStore interface {
	Upload(ctx context.Context, folder, name string, data []byte, contentType string) (key, url string, err error)
	DeleteObject(ctx context.Context, key string) error
}

// TaskPublisher enqueues background extraction work.
type TaskPublisher interface {
	PublishExtraction(ctx context.Context, task models.ExtractionTask) error
}

// FileUpload is one raw uploaded file.
type FileUpload struct {
	Name        string
	ContentType string
	Data        []byte
}

// FileFailure reports one file that could not be accepted.
type FileFailure struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Summary is the outcome of one ingestion batch. Accepted photos are
// persisted in pending state; Failed lists files that were skipped.
type Summary struct {
	Accepted int            `json:"accepted"`
	Photos   []models.Photo `json:"photos"`
	Failed   []FileFailure  `json:"failed,omitempty"`
}

type Pipeline struct {
	store     Store
	objects   ObjectStore
	tasks     TaskPublisher
	selfieTTL time.Duration
}

func NewPipeline(store Store, objects ObjectStore, tasks TaskPublisher, selfieTTL time.Duration) *Pipeline {
	return &Pipeline{store: store, objects: objects, tasks: tasks, selfieTTL: selfieTTL}
}

// IngestPhotos accepts a batch of raw event photos. Every accepted
// file gets an object-store upload, a pending photo record, a counter
// increment, and an extraction task. A storage failure skips that file
// only; the rest of the batch proceeds.
//
// Counting policy: the photo counter counts placeholders created. A
// later failed extraction does not decrement — the photo stays listed
// and can be retried.
func (p *Pipeline) IngestPhotos(ctx context.Context, eventID uuid.UUID, files []FileUpload) (*Summary, error) {
	event, err := p.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("load event %s: %w", eventID, err)
	}
	if event == nil {
		return nil, ErrEventNotFound
	}
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	summary := &Summary{}
	folder := "events/" + eventID.String()

	for _, file := range files {
		key, url, err := p.objects.Upload(ctx, folder, uuid.New().String()+"_"+file.Name, file.Data, file.ContentType)
		if err != nil {
			slog.Warn("photo upload failed, skipping file",
				"event_id", eventID, "file", file.Name, "error", err)
			summary.Failed = append(summary.Failed, FileFailure{Name: file.Name, Reason: "storage upload failed"})
			continue
		}

		photo := &models.Photo{
			EventID:    eventID,
			ImageURL:   url,
			StorageKey: key,
			Status:     models.PhotoStatusPending,
		}
		if err := p.store.CreatePhoto(ctx, photo); err != nil {
			// Roll the orphaned object back so storage doesn't leak.
			if delErr := p.objects.DeleteObject(ctx, key); delErr != nil {
				slog.Error("rollback orphaned object", "key", key, "error", delErr)
			}
			summary.Failed = append(summary.Failed, FileFailure{Name: file.Name, Reason: "persist failed"})
			continue
		}

		task := models.ExtractionTask{
			PhotoID:  photo.ID,
			EventID:  eventID,
			ImageURL: photo.ImageURL,
			Enqueued: time.Now(),
		}
		if err := p.tasks.PublishExtraction(ctx, task); err != nil {
			// The photo remains discoverable in pending state; the
			// requeue sweep picks it up.
			slog.Error("publish extraction task", "photo_id", photo.ID, "error", err)
		}

		summary.Photos = append(summary.Photos, *photo)
		summary.Accepted++
		observability.PhotosIngested.WithLabelValues(eventID.String()).Inc()
	}

	return summary, nil
}

// SubmitSelfie stores a fan selfie for the event behind the join token
// and bumps the fan counter.
func (p *Pipeline) SubmitSelfie(ctx context.Context, joinToken string, image FileUpload) (*models.FanSelfie, error) {
	event, err := p.store.GetEventByToken(ctx, joinToken)
	if err != nil {
		return nil, fmt.Errorf("load event by token: %w", err)
	}
	if event == nil {
		return nil, ErrEventNotFound
	}
	if event.Expired(time.Now()) {
		return nil, ErrEventExpired
	}
	if len(image.Data) == 0 {
		return nil, ErrNoImage
	}

	folder := "fan-selfies/" + event.ID.String()
	key, url, err := p.objects.Upload(ctx, folder, uuid.New().String()+"_"+image.Name, image.Data, image.ContentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	selfie := &models.FanSelfie{
		EventID:    event.ID,
		ImageURL:   url,
		StorageKey: key,
	}
	if p.selfieTTL > 0 {
		expires := time.Now().Add(p.selfieTTL)
		selfie.ExpiresAt = &expires
	}
	if err := p.store.CreateSelfie(ctx, selfie); err != nil {
		if delErr := p.objects.DeleteObject(ctx, key); delErr != nil {
			slog.Error("rollback orphaned selfie object", "key", key, "error", delErr)
		}
		return nil, fmt.Errorf("persist selfie: %w", err)
	}

	observability.SelfiesSubmitted.Inc()
	return selfie, nil
}

// RetryPhoto puts a failed photo back into pending and republishes its
// extraction task. The counter is untouched: a failed photo was never
// decremented.
func (p *Pipeline) RetryPhoto(ctx context.Context, photoID uuid.UUID) error {
	photo, err := p.store.GetPhoto(ctx, photoID)
	if err != nil {
		return fmt.Errorf("load photo %s: %w", photoID, err)
	}
	if photo == nil {
		return ErrPhotoNotFound
	}
	if photo.Status != models.PhotoStatusFailed {
		return ErrNotFailed
	}

	if err := p.store.MarkPhotoPending(ctx, photoID); err != nil {
		return fmt.Errorf("mark photo pending: %w", err)
	}

	task := models.ExtractionTask{
		PhotoID:  photoID,
		EventID:  photo.EventID,
		ImageURL: photo.ImageURL,
		Enqueued: time.Now(),
	}
	if err := p.tasks.PublishExtraction(ctx, task); err != nil {
		// Now pending again; the requeue sweep picks it up.
		slog.Error("publish retry task", "photo_id", photoID, "error", err)
	}
	return nil
}

// SoftDeletePhoto marks the photo deleted; the store decrements the
// counter atomically with the flag flip.
func (p *Pipeline) SoftDeletePhoto(ctx context.Context, photoID uuid.UUID) error {
	photo, err := p.store.GetPhoto(ctx, photoID)
	if err != nil {
		return fmt.Errorf("load photo %s: %w", photoID, err)
	}
	if photo == nil {
		return ErrPhotoNotFound
	}
	if photo.IsDeleted {
		return ErrAlreadyDeleted
	}

	flipped, err := p.store.SetPhotoDeleted(ctx, photoID, true)
	if err != nil {
		return fmt.Errorf("soft delete photo: %w", err)
	}
	if !flipped {
		// Raced with a concurrent delete; the counter was adjusted by
		// whoever won.
		return ErrAlreadyDeleted
	}
	return nil
}

// UndoDeletePhoto restores a soft-deleted photo; the store re-increments
// the counter atomically with the flag flip. A photo that is not
// currently soft-deleted is a validation error.
func (p *Pipeline) UndoDeletePhoto(ctx context.Context, photoID uuid.UUID) error {
	photo, err := p.store.GetPhoto(ctx, photoID)
	if err != nil {
		return fmt.Errorf("load photo %s: %w", photoID, err)
	}
	if photo == nil {
		return ErrPhotoNotFound
	}
	if !photo.IsDeleted {
		return ErrNotDeleted
	}

	flipped, err := p.store.SetPhotoDeleted(ctx, photoID, false)
	if err != nil {
		return fmt.Errorf("restore photo: %w", err)
	}
	if !flipped {
		return ErrNotDeleted
	}
	return nil
}

// HardDeletePhoto removes the stored object and the record. The object
// goes first: if storage refuses, the record survives so nothing is
// orphaned. Whether the counter is still decremented is decided by the
// store from the row's soft-delete state at delete time, not from the
// state loaded here — a soft delete landing in between must not cause
// a second decrement.
func (p *Pipeline) HardDeletePhoto(ctx context.Context, photoID uuid.UUID) error {
	photo, err := p.store.GetPhoto(ctx, photoID)
	if err != nil {
		return fmt.Errorf("load photo %s: %w", photoID, err)
	}
	if photo == nil {
		return ErrPhotoNotFound
	}

	if err := p.objects.DeleteObject(ctx, photo.StorageKey); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if err := p.store.DeletePhotoRow(ctx, photoID); err != nil {
		return fmt.Errorf("delete photo record: %w", err)
	}
	return nil
}
