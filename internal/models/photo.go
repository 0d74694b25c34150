package models

import (
	"time"

	"github.com/google/uuid"
)

type PhotoStatus string

const (
	PhotoStatusPending   PhotoStatus = "pending"
	PhotoStatusProcessed PhotoStatus = "processed"
	PhotoStatusFailed    PhotoStatus = "failed"
)

// Photo is one uploaded event image. Descriptors are loaded on demand;
// most queries only carry FaceCount.
type Photo struct {
	ID          uuid.UUID   `json:"id" db:"id"`
	EventID     uuid.UUID   `json:"event_id" db:"event_id"`
	ImageURL    string      `json:"image_url" db:"image_url"`
	StorageKey  string      `json:"-" db:"storage_key"` // MinIO key, doubles as the deletion handle
	Status      PhotoStatus `json:"status" db:"status"`
	FaceCount   int         `json:"face_count" db:"face_count"`
	Descriptors [][]float32 `json:"-" db:"-"`
	IsDeleted   bool        `json:"is_deleted" db:"is_deleted"`
	DeletedAt   *time.Time  `json:"deleted_at,omitempty" db:"deleted_at"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
}

// Eligible reports whether the photo may participate in matching.
func (p *Photo) Eligible() bool {
	return p.Status == PhotoStatusProcessed && !p.IsDeleted && p.FaceCount > 0
}

// ExtractionTask is the message published to NATS for worker processing.
type ExtractionTask struct {
	PhotoID  uuid.UUID `json:"photo_id"`
	EventID  uuid.UUID `json:"event_id"`
	ImageURL string    `json:"image_url"`
	Enqueued time.Time `json:"enqueued"`
}

// PhotoUpdate is the worker's completion message, consumed by the API
// and forwarded to organizer dashboards over WebSocket.
type PhotoUpdate struct {
	PhotoID   uuid.UUID   `json:"photo_id"`
	EventID   uuid.UUID   `json:"event_id"`
	ImageURL  string      `json:"image_url"`
	Status    PhotoStatus `json:"status"`
	FaceCount int         `json:"face_count"`
}
