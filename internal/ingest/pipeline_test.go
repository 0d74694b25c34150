package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/PradeepMolleti-09/star-shot/internal/models"
)

// memStore is an in-memory Store/ProcessorStore with error injection.
type memStore struct {
	events  map[uuid.UUID]*models.Event
	photos  map[uuid.UUID]*models.Photo
	selfies map[uuid.UUID]*models.FanSelfie

	createPhotoErr  error
	createSelfieErr error
	getPhotoErr     error

	photoCounter map[uuid.UUID]int
	fanCounter   map[uuid.UUID]int
}

func newMemStore() *memStore {
	return &memStore{
		events:       make(map[uuid.UUID]*models.Event),
		photos:       make(map[uuid.UUID]*models.Photo),
		selfies:      make(map[uuid.UUID]*models.FanSelfie),
		photoCounter: make(map[uuid.UUID]int),
		fanCounter:   make(map[uuid.UUID]int),
	}
}

func (m *memStore) addEvent(expiresIn time.Duration) *models.Event {
	ev := &models.Event{ID: uuid.New(), JoinToken: uuid.NewString()}
	if expiresIn != 0 {
		exp := time.Now().Add(expiresIn)
		ev.ExpiresAt = &exp
	}
	m.events[ev.ID] = ev
	return ev
}

func (m *memStore) addPhoto(eventID uuid.UUID, deleted bool) *models.Photo {
	p := &models.Photo{
		ID:         uuid.New(),
		EventID:    eventID,
		StorageKey: "events/" + eventID.String() + "/" + uuid.NewString(),
		Status:     models.PhotoStatusProcessed,
		IsDeleted:  deleted,
	}
	m.photos[p.ID] = p
	return p
}

func (m *memStore) GetEvent(_ context.Context, id uuid.UUID) (*models.Event, error) {
	return m.events[id], nil
}

func (m *memStore) GetEventByToken(_ context.Context, token string) (*models.Event, error) {
	for _, ev := range m.events {
		if ev.JoinToken == token {
			return ev, nil
		}
	}
	return nil, nil
}

func (m *memStore) CreatePhoto(_ context.Context, p *models.Photo) error {
	if m.createPhotoErr != nil {
		return m.createPhotoErr
	}
	p.ID = uuid.New()
	cp := *p
	m.photos[p.ID] = &cp
	m.photoCounter[p.EventID]++
	return nil
}

func (m *memStore) GetPhoto(_ context.Context, id uuid.UUID) (*models.Photo, error) {
	if m.getPhotoErr != nil {
		return nil, m.getPhotoErr
	}
	p, ok := m.photos[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

// SetPhotoDeleted mirrors the real store: the flag flip and the counter
// adjustment happen together, based on the row's current state.
func (m *memStore) SetPhotoDeleted(_ context.Context, id uuid.UUID, deleted bool) (bool, error) {
	p, ok := m.photos[id]
	if !ok || p.IsDeleted == deleted {
		return false, nil
	}
	p.IsDeleted = deleted
	if deleted {
		m.photoCounter[p.EventID]--
	} else {
		m.photoCounter[p.EventID]++
	}
	return true, nil
}

func (m *memStore) MarkPhotoPending(_ context.Context, id uuid.UUID) error {
	if p, ok := m.photos[id]; ok {
		p.Status = models.PhotoStatusPending
	}
	return nil
}

// DeletePhotoRow decrements only when the row is still counted at
// delete time, like the real store's DELETE ... RETURNING is_deleted.
func (m *memStore) DeletePhotoRow(_ context.Context, id uuid.UUID) error {
	p, ok := m.photos[id]
	if !ok {
		return nil
	}
	if !p.IsDeleted {
		m.photoCounter[p.EventID]--
	}
	delete(m.photos, id)
	return nil
}

func (m *memStore) CreateSelfie(_ context.Context, s *models.FanSelfie) error {
	if m.createSelfieErr != nil {
		return m.createSelfieErr
	}
	s.ID = uuid.New()
	cp := *s
	m.selfies[s.ID] = &cp
	m.fanCounter[s.EventID]++
	return nil
}

// memObjects is an in-memory ObjectStore. failUploads holds file names
// whose upload should fail; failDelete rejects every delete.
type memObjects struct {
	objects     map[string][]byte
	failUploads map[string]bool
	failDelete  bool
	deleted     []string
}

func newMemObjects() *memObjects {
	return &memObjects{objects: make(map[string][]byte), failUploads: make(map[string]bool)}
}

func (m *memObjects) Upload(_ context.Context, folder, name string, data []byte, _ string) (string, string, error) {
	for f := range m.failUploads {
		if len(name) >= len(f) && name[len(name)-len(f):] == f {
			return "", "", errors.New("upload refused")
		}
	}
	key := folder + "/" + name
	m.objects[key] = data
	return key, "http://obj/" + key, nil
}

func (m *memObjects) DeleteObject(_ context.Context, key string) error {
	if m.failDelete {
		return errors.New("delete refused")
	}
	delete(m.objects, key)
	m.deleted = append(m.deleted, key)
	return nil
}

// memPublisher records published tasks and updates.
type memPublisher struct {
	tasks      []models.ExtractionTask
	updates    []models.PhotoUpdate
	publishErr error
}

func (m *memPublisher) PublishExtraction(_ context.Context, task models.ExtractionTask) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	m.tasks = append(m.tasks, task)
	return nil
}

func (m *memPublisher) PublishPhotoUpdate(_ context.Context, update models.PhotoUpdate) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	m.updates = append(m.updates, update)
	return nil
}

func file(name string) FileUpload {
	return FileUpload{Name: name, ContentType: "image/jpeg", Data: []byte("jpegdata")}
}

func TestIngestPhotosBatch(t *testing.T) {
	store := newMemStore()
	objects := newMemObjects()
	tasks := &memPublisher{}
	event := store.addEvent(time.Hour)

	p := NewPipeline(store, objects, tasks, 0)

	summary, err := p.IngestPhotos(context.Background(), event.ID,
		[]FileUpload{file("a.jpg"), file("b.jpg"), file("c.jpg")})
	if err != nil {
		t.Fatalf("IngestPhotos() error = %v", err)
	}

	if summary.Accepted != 3 || len(summary.Failed) != 0 {
		t.Errorf("summary = %d accepted %d failed, want 3/0", summary.Accepted, len(summary.Failed))
	}
	if got := store.photoCounter[event.ID]; got != 3 {
		t.Errorf("photo counter = %d, want 3", got)
	}
	if len(tasks.tasks) != 3 {
		t.Errorf("published %d tasks, want 3", len(tasks.tasks))
	}
	for _, photo := range summary.Photos {
		if photo.Status != models.PhotoStatusPending {
			t.Errorf("photo %s status = %s, want pending", photo.ID, photo.Status)
		}
	}
}

func TestIngestPhotosPartialStorageFailure(t *testing.T) {
	store := newMemStore()
	objects := newMemObjects()
	objects.failUploads["b.jpg"] = true
	tasks := &memPublisher{}
	event := store.addEvent(time.Hour)

	p := NewPipeline(store, objects, tasks, 0)

	summary, err := p.IngestPhotos(context.Background(), event.ID,
		[]FileUpload{file("a.jpg"), file("b.jpg"), file("c.jpg")})
	if err != nil {
		t.Fatalf("IngestPhotos() error = %v", err)
	}

	if summary.Accepted != 2 {
		t.Errorf("accepted = %d, want 2", summary.Accepted)
	}
	if len(summary.Failed) != 1 || summary.Failed[0].Name != "b.jpg" {
		t.Errorf("failed = %+v, want b.jpg only", summary.Failed)
	}
	if got := store.photoCounter[event.ID]; got != 2 {
		t.Errorf("photo counter = %d, want 2", got)
	}
	if len(tasks.tasks) != 2 {
		t.Errorf("published %d tasks, want 2", len(tasks.tasks))
	}
}

func TestIngestPhotosPersistFailureRollsBackObject(t *testing.T) {
	store := newMemStore()
	store.createPhotoErr = errors.New("insert failed")
	objects := newMemObjects()
	event := store.addEvent(time.Hour)

	p := NewPipeline(store, objects, &memPublisher{}, 0)

	summary, err := p.IngestPhotos(context.Background(), event.ID, []FileUpload{file("a.jpg")})
	if err != nil {
		t.Fatalf("IngestPhotos() error = %v", err)
	}

	if summary.Accepted != 0 || len(summary.Failed) != 1 {
		t.Errorf("summary = %d accepted %d failed, want 0/1", summary.Accepted, len(summary.Failed))
	}
	if len(objects.objects) != 0 {
		t.Errorf("orphaned objects left in storage: %v", objects.objects)
	}
	if got := store.photoCounter[event.ID]; got != 0 {
		t.Errorf("photo counter = %d, want 0", got)
	}
}

func TestIngestPhotosValidation(t *testing.T) {
	store := newMemStore()
	event := store.addEvent(time.Hour)
	p := NewPipeline(store, newMemObjects(), &memPublisher{}, 0)

	if _, err := p.IngestPhotos(context.Background(), uuid.New(), []FileUpload{file("a.jpg")}); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("unknown event error = %v, want ErrEventNotFound", err)
	}
	if _, err := p.IngestPhotos(context.Background(), event.ID, nil); !errors.Is(err, ErrNoFiles) {
		t.Errorf("empty batch error = %v, want ErrNoFiles", err)
	}
}

func TestSubmitSelfie(t *testing.T) {
	store := newMemStore()
	event := store.addEvent(time.Hour)
	p := NewPipeline(store, newMemObjects(), &memPublisher{}, time.Hour)

	selfie, err := p.SubmitSelfie(context.Background(), event.JoinToken, file("selfie.jpg"))
	if err != nil {
		t.Fatalf("SubmitSelfie() error = %v", err)
	}

	if selfie.EventID != event.ID {
		t.Errorf("selfie event = %s, want %s", selfie.EventID, event.ID)
	}
	if selfie.ExpiresAt == nil {
		t.Error("selfie has no expiry despite configured TTL")
	}
	if got := store.fanCounter[event.ID]; got != 1 {
		t.Errorf("fan counter = %d, want 1", got)
	}
}

func TestSubmitSelfieValidation(t *testing.T) {
	store := newMemStore()
	live := store.addEvent(time.Hour)
	expired := store.addEvent(-time.Hour)
	p := NewPipeline(store, newMemObjects(), &memPublisher{}, 0)

	tests := []struct {
		name    string
		token   string
		image   FileUpload
		wantErr error
	}{
		{"unknown token", "nope", file("s.jpg"), ErrEventNotFound},
		{"expired event", expired.JoinToken, file("s.jpg"), ErrEventExpired},
		{"empty image", live.JoinToken, FileUpload{Name: "s.jpg"}, ErrNoImage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := p.SubmitSelfie(context.Background(), tt.token, tt.image); !errors.Is(err, tt.wantErr) {
				t.Errorf("SubmitSelfie() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSoftDeleteAndRestore(t *testing.T) {
	store := newMemStore()
	event := store.addEvent(time.Hour)
	photo := store.addPhoto(event.ID, false)
	store.photoCounter[event.ID] = 1
	p := NewPipeline(store, newMemObjects(), &memPublisher{}, 0)

	if err := p.SoftDeletePhoto(context.Background(), photo.ID); err != nil {
		t.Fatalf("SoftDeletePhoto() error = %v", err)
	}
	if got := store.photoCounter[event.ID]; got != 0 {
		t.Errorf("counter after soft delete = %d, want 0", got)
	}

	if err := p.SoftDeletePhoto(context.Background(), photo.ID); !errors.Is(err, ErrAlreadyDeleted) {
		t.Errorf("second soft delete error = %v, want ErrAlreadyDeleted", err)
	}
	if got := store.photoCounter[event.ID]; got != 0 {
		t.Errorf("counter after duplicate soft delete = %d, want 0", got)
	}

	if err := p.UndoDeletePhoto(context.Background(), photo.ID); err != nil {
		t.Fatalf("UndoDeletePhoto() error = %v", err)
	}
	if got := store.photoCounter[event.ID]; got != 1 {
		t.Errorf("counter after restore = %d, want 1", got)
	}

	if err := p.UndoDeletePhoto(context.Background(), photo.ID); !errors.Is(err, ErrNotDeleted) {
		t.Errorf("restore of live photo error = %v, want ErrNotDeleted", err)
	}
}

func TestHardDeleteCountedPhoto(t *testing.T) {
	store := newMemStore()
	objects := newMemObjects()
	event := store.addEvent(time.Hour)
	photo := store.addPhoto(event.ID, false)
	objects.objects[photo.StorageKey] = []byte("jpegdata")
	store.photoCounter[event.ID] = 1
	p := NewPipeline(store, objects, &memPublisher{}, 0)

	if err := p.HardDeletePhoto(context.Background(), photo.ID); err != nil {
		t.Fatalf("HardDeletePhoto() error = %v", err)
	}

	if _, ok := store.photos[photo.ID]; ok {
		t.Error("photo record still present after hard delete")
	}
	if _, ok := objects.objects[photo.StorageKey]; ok {
		t.Error("object still present after hard delete")
	}
	if got := store.photoCounter[event.ID]; got != 0 {
		t.Errorf("counter = %d, want 0", got)
	}
}

func TestHardDeleteTrashedPhotoNoDoubleDecrement(t *testing.T) {
	store := newMemStore()
	objects := newMemObjects()
	event := store.addEvent(time.Hour)
	photo := store.addPhoto(event.ID, true) // already soft-deleted and decremented
	objects.objects[photo.StorageKey] = []byte("jpegdata")
	store.photoCounter[event.ID] = 0
	p := NewPipeline(store, objects, &memPublisher{}, 0)

	if err := p.HardDeletePhoto(context.Background(), photo.ID); err != nil {
		t.Fatalf("HardDeletePhoto() error = %v", err)
	}
	if got := store.photoCounter[event.ID]; got != 0 {
		t.Errorf("counter = %d, want 0 (no double decrement)", got)
	}
}

// hookedObjects runs a callback once before the first DeleteObject,
// letting a test interleave another operation inside a delete flow.
type hookedObjects struct {
	*memObjects
	beforeDelete func()
}

func (h *hookedObjects) DeleteObject(ctx context.Context, key string) error {
	if h.beforeDelete != nil {
		fn := h.beforeDelete
		h.beforeDelete = nil
		fn()
	}
	return h.memObjects.DeleteObject(ctx, key)
}

func TestHardDeleteRacingSoftDeleteDecrementsOnce(t *testing.T) {
	store := newMemStore()
	objects := newMemObjects()
	event := store.addEvent(time.Hour)
	photo := store.addPhoto(event.ID, false)
	objects.objects[photo.StorageKey] = []byte("jpegdata")
	store.photoCounter[event.ID] = 1

	hooked := &hookedObjects{memObjects: objects}
	p := NewPipeline(store, hooked, &memPublisher{}, 0)

	// A soft delete lands after the hard delete loaded the photo but
	// before the row is removed.
	hooked.beforeDelete = func() {
		if err := p.SoftDeletePhoto(context.Background(), photo.ID); err != nil {
			t.Fatalf("interleaved soft delete error = %v", err)
		}
	}

	if err := p.HardDeletePhoto(context.Background(), photo.ID); err != nil {
		t.Fatalf("HardDeletePhoto() error = %v", err)
	}
	if got := store.photoCounter[event.ID]; got != 0 {
		t.Errorf("photo counter = %d, want 0 (single decrement across racing deletes)", got)
	}
}

func TestHardDeleteStorageFailureKeepsRecord(t *testing.T) {
	store := newMemStore()
	objects := newMemObjects()
	objects.failDelete = true
	event := store.addEvent(time.Hour)
	photo := store.addPhoto(event.ID, false)
	store.photoCounter[event.ID] = 1
	p := NewPipeline(store, objects, &memPublisher{}, 0)

	if err := p.HardDeletePhoto(context.Background(), photo.ID); !errors.Is(err, ErrStorage) {
		t.Fatalf("HardDeletePhoto() error = %v, want ErrStorage", err)
	}

	if _, ok := store.photos[photo.ID]; !ok {
		t.Error("photo record removed despite storage failure")
	}
	if got := store.photoCounter[event.ID]; got != 1 {
		t.Errorf("counter = %d, want 1 (untouched)", got)
	}
}

func TestRetryPhoto(t *testing.T) {
	store := newMemStore()
	event := store.addEvent(time.Hour)
	photo := store.addPhoto(event.ID, false)
	store.photos[photo.ID].Status = models.PhotoStatusFailed
	store.photoCounter[event.ID] = 1
	tasks := &memPublisher{}
	p := NewPipeline(store, newMemObjects(), tasks, 0)

	if err := p.RetryPhoto(context.Background(), photo.ID); err != nil {
		t.Fatalf("RetryPhoto() error = %v", err)
	}

	if got := store.photos[photo.ID].Status; got != models.PhotoStatusPending {
		t.Errorf("photo status = %s, want pending", got)
	}
	if len(tasks.tasks) != 1 || tasks.tasks[0].PhotoID != photo.ID {
		t.Errorf("tasks = %+v, want one task for the photo", tasks.tasks)
	}
	if got := store.photoCounter[event.ID]; got != 1 {
		t.Errorf("counter = %d, want 1 (untouched)", got)
	}
}

func TestRetryPhotoNotFailed(t *testing.T) {
	store := newMemStore()
	event := store.addEvent(time.Hour)
	photo := store.addPhoto(event.ID, false) // processed
	p := NewPipeline(store, newMemObjects(), &memPublisher{}, 0)

	if err := p.RetryPhoto(context.Background(), photo.ID); !errors.Is(err, ErrNotFailed) {
		t.Errorf("RetryPhoto() error = %v, want ErrNotFailed", err)
	}
}

func TestLifecycleUnknownPhoto(t *testing.T) {
	store := newMemStore()
	p := NewPipeline(store, newMemObjects(), &memPublisher{}, 0)

	for name, op := range map[string]func(context.Context, uuid.UUID) error{
		"soft":    p.SoftDeletePhoto,
		"restore": p.UndoDeletePhoto,
		"hard":    p.HardDeletePhoto,
	} {
		if err := op(context.Background(), uuid.New()); !errors.Is(err, ErrPhotoNotFound) {
			t.Errorf("%s delete error = %v, want ErrPhotoNotFound", name, err)
		}
	}
}
