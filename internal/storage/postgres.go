package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/PradeepMolleti-09/star-shot/internal/config"
	"github.com/PradeepMolleti-09/star-shot/internal/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Events ---

func (s *PostgresStore) CreateEvent(ctx context.Context, ev *models.Event) error {
	ev.ID = uuid.New()
	err := s.pool.QueryRow(ctx,
		`INSERT INTO events (id, name, subject_name, join_token, qr_key, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at, updated_at`,
		ev.ID, ev.Name, ev.SubjectName, ev.JoinToken, ev.QRKey, ev.ExpiresAt,
	).Scan(&ev.CreatedAt, &ev.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

const eventColumns = `id, name, subject_name, join_token, qr_key, total_fans, total_photos, expires_at, created_at, updated_at`

func scanEvent(row pgx.Row) (*models.Event, error) {
	ev := &models.Event{}
	err := row.Scan(&ev.ID, &ev.Name, &ev.SubjectName, &ev.JoinToken, &ev.QRKey,
		&ev.TotalFans, &ev.TotalPhotos, &ev.ExpiresAt, &ev.CreatedAt, &ev.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return ev, nil
}

func (s *PostgresStore) GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	ev, err := scanEvent(s.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return ev, nil
}

func (s *PostgresStore) GetEventByToken(ctx context.Context, token string) (*models.Event, error) {
	ev, err := scanEvent(s.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE join_token = $1`, token))
	if err != nil {
		return nil, fmt.Errorf("get event by token: %w", err)
	}
	return ev, nil
}

func (s *PostgresStore) ListEvents(ctx context.Context) ([]models.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var ev models.Event
		if err := rows.Scan(&ev.ID, &ev.Name, &ev.SubjectName, &ev.JoinToken, &ev.QRKey,
			&ev.TotalFans, &ev.TotalPhotos, &ev.ExpiresAt, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// --- Photos ---

const photoColumns = `id, event_id, image_url, storage_key, status, face_count, is_deleted, deleted_at, created_at, updated_at`

// CreatePhoto inserts the photo and bumps the event's photo counter in
// the same transaction. Counter adjustments are always relative SQL
// increments, never read-modify-write.
func (s *PostgresStore) CreatePhoto(ctx context.Context, p *models.Photo) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	p.ID = uuid.New()
	err = tx.QueryRow(ctx,
		`INSERT INTO photos (id, event_id, image_url, storage_key, status)
		 VALUES ($1, $2, $3, $4, $5) RETURNING created_at, updated_at`,
		p.ID, p.EventID, p.ImageURL, p.StorageKey, p.Status,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create photo: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE events SET total_photos = total_photos + 1, updated_at = now() WHERE id = $1`,
		p.EventID); err != nil {
		return fmt.Errorf("count photo: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func scanPhoto(row pgx.Row) (*models.Photo, error) {
	p := &models.Photo{}
	err := row.Scan(&p.ID, &p.EventID, &p.ImageURL, &p.StorageKey, &p.Status,
		&p.FaceCount, &p.IsDeleted, &p.DeletedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

func (s *PostgresStore) GetPhoto(ctx context.Context, id uuid.UUID) (*models.Photo, error) {
	p, err := scanPhoto(s.pool.QueryRow(ctx,
		`SELECT `+photoColumns+` FROM photos WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get photo: %w", err)
	}
	return p, nil
}

// ListPhotos returns the event's non-deleted photos, newest first.
func (s *PostgresStore) ListPhotos(ctx context.Context, eventID uuid.UUID) ([]models.Photo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+photoColumns+` FROM photos
		 WHERE event_id = $1 AND NOT is_deleted
		 ORDER BY created_at DESC`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	defer rows.Close()
	return collectPhotos(rows)
}

func collectPhotos(rows pgx.Rows) ([]models.Photo, error) {
	var photos []models.Photo
	for rows.Next() {
		var p models.Photo
		if err := rows.Scan(&p.ID, &p.EventID, &p.ImageURL, &p.StorageKey, &p.Status,
			&p.FaceCount, &p.IsDeleted, &p.DeletedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		photos = append(photos, p)
	}
	return photos, rows.Err()
}

// ListEligiblePhotos returns the photos that may participate in
// matching (processed, not soft-deleted, at least one face), with
// their descriptors loaded.
func (s *PostgresStore) ListEligiblePhotos(ctx context.Context, eventID uuid.UUID) ([]models.Photo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+photoColumns+` FROM photos
		 WHERE event_id = $1 AND status = $2 AND NOT is_deleted AND face_count > 0
		 ORDER BY created_at ASC`, eventID, models.PhotoStatusProcessed)
	if err != nil {
		return nil, fmt.Errorf("list eligible photos: %w", err)
	}
	photos, err := collectPhotos(rows)
	rows.Close()
	if err != nil || len(photos) == 0 {
		return photos, err
	}

	ids := make([]uuid.UUID, len(photos))
	index := make(map[uuid.UUID]int, len(photos))
	for i, p := range photos {
		ids[i] = p.ID
		index[p.ID] = i
	}

	faceRows, err := s.pool.Query(ctx,
		`SELECT photo_id, descriptor FROM photo_faces WHERE photo_id = ANY($1) ORDER BY created_at ASC`, ids)
	if err != nil {
		return nil, fmt.Errorf("load descriptors: %w", err)
	}
	defer faceRows.Close()

	for faceRows.Next() {
		var photoID uuid.UUID
		var vec pgvector.Vector
		if err := faceRows.Scan(&photoID, &vec); err != nil {
			return nil, fmt.Errorf("scan descriptor: %w", err)
		}
		if i, ok := index[photoID]; ok {
			photos[i].Descriptors = append(photos[i].Descriptors, vec.Slice())
		}
	}
	return photos, faceRows.Err()
}

// MarkPhotoProcessed stores the extraction result. Returns false when
// the photo no longer exists or is already processed — the caller
// treats that as a no-op (hard-deleted mid-flight, or a redelivered
// task for an already-processed photo).
func (s *PostgresStore) MarkPhotoProcessed(ctx context.Context, photoID uuid.UUID, descriptors [][]float32) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	// A retried task may arrive for a photo already marked failed, so
	// any state but processed is fair game. Processed photos are final.
	tag, err := tx.Exec(ctx,
		`UPDATE photos SET status = $1, face_count = $2, updated_at = now()
		 WHERE id = $3 AND status <> $1`,
		models.PhotoStatusProcessed, len(descriptors), photoID)
	if err != nil {
		return false, fmt.Errorf("mark photo processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM photo_faces WHERE photo_id = $1`, photoID); err != nil {
		return false, fmt.Errorf("clear descriptors: %w", err)
	}

	for _, d := range descriptors {
		if _, err := tx.Exec(ctx,
			`INSERT INTO photo_faces (id, photo_id, descriptor) VALUES ($1, $2, $3)`,
			uuid.New(), photoID, pgvector.NewVector(d)); err != nil {
			return false, fmt.Errorf("insert descriptor: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// MarkPhotoFailed flips a pending photo to failed. Returns false when
// the photo is gone or no longer pending.
func (s *PostgresStore) MarkPhotoFailed(ctx context.Context, photoID uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE photos SET status = $1, updated_at = now() WHERE id = $2 AND status = $3`,
		models.PhotoStatusFailed, photoID, models.PhotoStatusPending)
	if err != nil {
		return false, fmt.Errorf("mark photo failed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkPhotoPending requeues a failed or stuck photo for extraction.
func (s *PostgresStore) MarkPhotoPending(ctx context.Context, photoID uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE photos SET status = $1, updated_at = now() WHERE id = $2`,
		models.PhotoStatusPending, photoID)
	if err != nil {
		return fmt.Errorf("mark photo pending: %w", err)
	}
	return nil
}

// SetPhotoDeleted flips the soft-delete flag and adjusts the event's
// photo counter in the same transaction. Returns false when no row was
// in the opposite state (absent or already flipped); the counter is
// untouched in that case, so a lost race cannot adjust it twice.
func (s *PostgresStore) SetPhotoDeleted(ctx context.Context, photoID uuid.UUID, deleted bool) (bool, error) {
	query := `UPDATE photos SET is_deleted = false, deleted_at = NULL, updated_at = now()
			  WHERE id = $1 AND is_deleted RETURNING event_id`
	delta := 1
	if deleted {
		query = `UPDATE photos SET is_deleted = true, deleted_at = now(), updated_at = now()
				 WHERE id = $1 AND NOT is_deleted RETURNING event_id`
		delta = -1
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var eventID uuid.UUID
	if err := tx.QueryRow(ctx, query, photoID).Scan(&eventID); err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("set photo deleted: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE events SET total_photos = total_photos + $1, updated_at = now() WHERE id = $2`,
		delta, eventID); err != nil {
		return false, fmt.Errorf("adjust photo counter: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// DeletePhotoRow removes the photo record; descriptors cascade. The
// counter is decremented in the same transaction, and only when the row
// was still counted at delete time — a photo soft-deleted concurrently
// was already decremented by that path. A row already gone is a no-op.
func (s *PostgresStore) DeletePhotoRow(ctx context.Context, photoID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var eventID uuid.UUID
	var wasDeleted bool
	err = tx.QueryRow(ctx,
		`DELETE FROM photos WHERE id = $1 RETURNING event_id, is_deleted`, photoID,
	).Scan(&eventID, &wasDeleted)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil
		}
		return fmt.Errorf("delete photo row: %w", err)
	}

	if !wasDeleted {
		if _, err := tx.Exec(ctx,
			`UPDATE events SET total_photos = total_photos - 1, updated_at = now() WHERE id = $1`,
			eventID); err != nil {
			return fmt.Errorf("adjust photo counter: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListStalePending returns photos stuck in pending since before the
// cutoff, for the requeue sweep.
func (s *PostgresStore) ListStalePending(ctx context.Context, cutoff time.Time) ([]models.Photo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+photoColumns+` FROM photos
		 WHERE status = $1 AND NOT is_deleted AND updated_at < $2
		 ORDER BY updated_at ASC LIMIT 100`,
		models.PhotoStatusPending, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stale pending: %w", err)
	}
	defer rows.Close()
	return collectPhotos(rows)
}

// --- Fan selfies ---

const selfieColumns = `id, event_id, image_url, storage_key, is_matched, best_confidence, expires_at, created_at`

// CreateSelfie inserts the selfie and bumps the event's fan counter in
// the same transaction.
func (s *PostgresStore) CreateSelfie(ctx context.Context, sf *models.FanSelfie) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	sf.ID = uuid.New()
	err = tx.QueryRow(ctx,
		`INSERT INTO fan_selfies (id, event_id, image_url, storage_key, expires_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		sf.ID, sf.EventID, sf.ImageURL, sf.StorageKey, sf.ExpiresAt,
	).Scan(&sf.CreatedAt)
	if err != nil {
		return fmt.Errorf("create selfie: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE events SET total_fans = total_fans + 1, updated_at = now() WHERE id = $1`,
		sf.EventID); err != nil {
		return fmt.Errorf("count fan: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSelfie(ctx context.Context, id uuid.UUID) (*models.FanSelfie, error) {
	sf := &models.FanSelfie{}
	err := s.pool.QueryRow(ctx,
		`SELECT `+selfieColumns+` FROM fan_selfies WHERE id = $1`, id,
	).Scan(&sf.ID, &sf.EventID, &sf.ImageURL, &sf.StorageKey,
		&sf.IsMatched, &sf.BestConfidence, &sf.ExpiresAt, &sf.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get selfie: %w", err)
	}
	return sf, nil
}

func (s *PostgresStore) ListSelfies(ctx context.Context, eventID uuid.UUID) ([]models.FanSelfie, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+selfieColumns+` FROM fan_selfies WHERE event_id = $1 ORDER BY created_at DESC`,
		eventID)
	if err != nil {
		return nil, fmt.Errorf("list selfies: %w", err)
	}
	defer rows.Close()

	var selfies []models.FanSelfie
	for rows.Next() {
		var sf models.FanSelfie
		if err := rows.Scan(&sf.ID, &sf.EventID, &sf.ImageURL, &sf.StorageKey,
			&sf.IsMatched, &sf.BestConfidence, &sf.ExpiresAt, &sf.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan selfie: %w", err)
		}
		selfies = append(selfies, sf)
	}
	return selfies, rows.Err()
}

func (s *PostgresStore) UpdateSelfieMatch(ctx context.Context, id uuid.UUID, matched bool, bestConfidence int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE fan_selfies SET is_matched = $1, best_confidence = $2 WHERE id = $3`,
		matched, bestConfidence, id)
	if err != nil {
		return fmt.Errorf("update selfie match: %w", err)
	}
	return nil
}
