package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/PradeepMolleti-09/star-shot/internal/models"
)

// Processor-side store methods for memStore.

func (m *memStore) MarkPhotoProcessed(_ context.Context, id uuid.UUID, descriptors [][]float32) (bool, error) {
	p, ok := m.photos[id]
	if !ok || p.Status == models.PhotoStatusProcessed {
		return false, nil
	}
	p.Status = models.PhotoStatusProcessed
	p.FaceCount = len(descriptors)
	p.Descriptors = descriptors
	return true, nil
}

func (m *memStore) MarkPhotoFailed(_ context.Context, id uuid.UUID) (bool, error) {
	p, ok := m.photos[id]
	if !ok || p.Status != models.PhotoStatusPending {
		return false, nil
	}
	p.Status = models.PhotoStatusFailed
	return true, nil
}

func (m *memStore) ListStalePending(_ context.Context, cutoff time.Time) ([]models.Photo, error) {
	var out []models.Photo
	for _, p := range m.photos {
		if p.Status == models.PhotoStatusPending && p.CreatedAt.Before(cutoff) {
			out = append(out, *p)
		}
	}
	return out, nil
}

type stubExtractor struct {
	descriptors [][]float32
	err         error
	calls       int
}

func (s *stubExtractor) Extract(_ context.Context, _ string) ([][]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.descriptors, nil
}

func (m *memStore) addPendingPhoto(eventID uuid.UUID, createdAt time.Time) *models.Photo {
	p := &models.Photo{
		ID:        uuid.New(),
		EventID:   eventID,
		ImageURL:  "http://obj/" + uuid.NewString(),
		Status:    models.PhotoStatusPending,
		CreatedAt: createdAt,
	}
	m.photos[p.ID] = p
	return p
}

func taskFor(p *models.Photo) models.ExtractionTask {
	return models.ExtractionTask{PhotoID: p.ID, EventID: p.EventID, ImageURL: p.ImageURL, Enqueued: time.Now()}
}

func TestHandleTaskSuccess(t *testing.T) {
	store := newMemStore()
	event := store.addEvent(time.Hour)
	photo := store.addPendingPhoto(event.ID, time.Now())
	ex := &stubExtractor{descriptors: [][]float32{{0.1, 0.2}, {0.3, 0.4}}}
	pub := &memPublisher{}

	proc := NewProcessor(store, ex, pub)

	if err := proc.HandleTask(context.Background(), taskFor(photo)); err != nil {
		t.Fatalf("HandleTask() error = %v", err)
	}

	got := store.photos[photo.ID]
	if got.Status != models.PhotoStatusProcessed || got.FaceCount != 2 {
		t.Errorf("photo = %s/%d faces, want processed/2", got.Status, got.FaceCount)
	}
	if len(pub.updates) != 1 {
		t.Fatalf("published %d updates, want 1", len(pub.updates))
	}
	if pub.updates[0].Status != models.PhotoStatusProcessed || pub.updates[0].FaceCount != 2 {
		t.Errorf("update = %+v, want processed/2", pub.updates[0])
	}
}

func TestHandleTaskZeroFaces(t *testing.T) {
	store := newMemStore()
	event := store.addEvent(time.Hour)
	photo := store.addPendingPhoto(event.ID, time.Now())
	ex := &stubExtractor{descriptors: [][]float32{}}

	proc := NewProcessor(store, ex, &memPublisher{})

	if err := proc.HandleTask(context.Background(), taskFor(photo)); err != nil {
		t.Fatalf("HandleTask() error = %v", err)
	}

	got := store.photos[photo.ID]
	if got.Status != models.PhotoStatusProcessed || got.FaceCount != 0 {
		t.Errorf("photo = %s/%d faces, want processed/0", got.Status, got.FaceCount)
	}
	if got.Eligible() {
		t.Error("zero-face photo must not be eligible for matching")
	}
}

func TestHandleTaskExtractionFailure(t *testing.T) {
	store := newMemStore()
	event := store.addEvent(time.Hour)
	photo := store.addPendingPhoto(event.ID, time.Now())
	ex := &stubExtractor{err: errors.New("engine timeout")}
	pub := &memPublisher{}

	proc := NewProcessor(store, ex, pub)

	if err := proc.HandleTask(context.Background(), taskFor(photo)); err == nil {
		t.Fatal("HandleTask() error = nil, want redelivery error")
	}

	if got := store.photos[photo.ID].Status; got != models.PhotoStatusFailed {
		t.Errorf("photo status = %s, want failed", got)
	}
	if len(pub.updates) != 1 || pub.updates[0].Status != models.PhotoStatusFailed {
		t.Errorf("updates = %+v, want one failed update", pub.updates)
	}
}

func TestHandleTaskOrphanedPhoto(t *testing.T) {
	store := newMemStore()
	ex := &stubExtractor{}

	proc := NewProcessor(store, ex, &memPublisher{})

	gone := &models.Photo{ID: uuid.New(), EventID: uuid.New(), ImageURL: "http://obj/gone"}
	if err := proc.HandleTask(context.Background(), taskFor(gone)); err != nil {
		t.Fatalf("HandleTask() error = %v, want nil for deleted photo", err)
	}
	if ex.calls != 0 {
		t.Error("extractor called for a deleted photo")
	}
}

func TestHandleTaskIdempotentRedelivery(t *testing.T) {
	store := newMemStore()
	event := store.addEvent(time.Hour)
	photo := store.addPendingPhoto(event.ID, time.Now())
	ex := &stubExtractor{descriptors: [][]float32{{0.1}}}
	pub := &memPublisher{}

	proc := NewProcessor(store, ex, pub)
	task := taskFor(photo)

	if err := proc.HandleTask(context.Background(), task); err != nil {
		t.Fatalf("first delivery error = %v", err)
	}
	if err := proc.HandleTask(context.Background(), task); err != nil {
		t.Fatalf("redelivery error = %v", err)
	}

	if ex.calls != 1 {
		t.Errorf("extractor called %d times, want 1", ex.calls)
	}
	if len(pub.updates) != 1 {
		t.Errorf("published %d updates, want 1", len(pub.updates))
	}
}

func TestHandleTaskRetryAfterFailure(t *testing.T) {
	store := newMemStore()
	event := store.addEvent(time.Hour)
	photo := store.addPendingPhoto(event.ID, time.Now())
	ex := &stubExtractor{err: errors.New("engine timeout")}

	proc := NewProcessor(store, ex, &memPublisher{})
	task := taskFor(photo)

	if err := proc.HandleTask(context.Background(), task); err == nil {
		t.Fatal("first delivery should fail")
	}

	// Engine recovers; the redelivery must still be able to complete
	// the photo even though it is currently marked failed.
	ex.err = nil
	ex.descriptors = [][]float32{{0.5}}
	if err := proc.HandleTask(context.Background(), task); err != nil {
		t.Fatalf("redelivery error = %v", err)
	}

	got := store.photos[photo.ID]
	if got.Status != models.PhotoStatusProcessed || got.FaceCount != 1 {
		t.Errorf("photo = %s/%d faces, want processed/1", got.Status, got.FaceCount)
	}
}

func TestBatchWithOneExtractionTimeout(t *testing.T) {
	store := newMemStore()
	objects := newMemObjects()
	tasks := &memPublisher{}
	event := store.addEvent(time.Hour)

	pipe := NewPipeline(store, objects, tasks, 0)
	summary, err := pipe.IngestPhotos(context.Background(), event.ID,
		[]FileUpload{file("a.jpg"), file("b.jpg"), file("c.jpg")})
	if err != nil {
		t.Fatalf("IngestPhotos() error = %v", err)
	}
	if summary.Accepted != 3 {
		t.Fatalf("accepted = %d, want 3", summary.Accepted)
	}

	// The second photo's extraction times out; the rest complete.
	failing := summary.Photos[1].ID
	ex := &urlExtractor{failID: failing, store: store, descriptors: [][]float32{{0.1}}}
	proc := NewProcessor(store, ex, &memPublisher{})

	for _, task := range tasks.tasks {
		_ = proc.HandleTask(context.Background(), task)
	}

	for i, photo := range summary.Photos {
		got := store.photos[photo.ID].Status
		want := models.PhotoStatusProcessed
		if photo.ID == failing {
			want = models.PhotoStatusFailed
		}
		if got != want {
			t.Errorf("photo %d status = %s, want %s", i, got, want)
		}
	}
	if got := store.photoCounter[event.ID]; got != 3 {
		t.Errorf("photo counter = %d, want 3 (failures stay counted)", got)
	}
}

// urlExtractor fails extraction for one photo id, resolved through the
// store by image URL.
type urlExtractor struct {
	failID      uuid.UUID
	store       *memStore
	descriptors [][]float32
}

func (u *urlExtractor) Extract(_ context.Context, imageURL string) ([][]float32, error) {
	for _, p := range u.store.photos {
		if p.ImageURL == imageURL && p.ID == u.failID {
			return nil, errors.New("extraction timed out")
		}
	}
	return u.descriptors, nil
}

func TestRequeueStale(t *testing.T) {
	store := newMemStore()
	event := store.addEvent(time.Hour)
	stale := store.addPendingPhoto(event.ID, time.Now().Add(-time.Hour))
	store.addPendingPhoto(event.ID, time.Now()) // fresh, not requeued
	done := store.addPendingPhoto(event.ID, time.Now().Add(-time.Hour))
	done.Status = models.PhotoStatusProcessed
	pub := &memPublisher{}

	proc := NewProcessor(store, &stubExtractor{}, pub)

	n, err := proc.RequeueStale(context.Background(), 10*time.Minute)
	if err != nil {
		t.Fatalf("RequeueStale() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("requeued %d, want 1", n)
	}
	if len(pub.tasks) != 1 || pub.tasks[0].PhotoID != stale.ID {
		t.Errorf("tasks = %+v, want the stale photo only", pub.tasks)
	}
}

func TestRequeueStalePublishFailure(t *testing.T) {
	store := newMemStore()
	event := store.addEvent(time.Hour)
	store.addPendingPhoto(event.ID, time.Now().Add(-time.Hour))
	pub := &memPublisher{publishErr: errors.New("nats down")}

	proc := NewProcessor(store, &stubExtractor{}, pub)

	n, err := proc.RequeueStale(context.Background(), 10*time.Minute)
	if err != nil {
		t.Fatalf("RequeueStale() error = %v", err)
	}
	if n != 0 {
		t.Errorf("requeued %d, want 0 when publish fails", n)
	}
}
