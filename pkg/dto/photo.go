package dto

import (
	"github.com/google/uuid"

	"github.com/PradeepMolleti-09/star-shot/internal/ingest"
)

type PhotoResponse struct {
	ID        uuid.UUID `json:"id"`
	EventID   uuid.UUID `json:"event_id"`
	ImageURL  string    `json:"image_url"`
	Status    string    `json:"status"`
	FaceCount int       `json:"face_count"`
	IsDeleted bool      `json:"is_deleted"`
	CreatedAt string    `json:"created_at"`
}

type PhotoListResponse struct {
	Photos []PhotoResponse `json:"photos"`
	Total  int             `json:"total"`
}

// IngestResponse reports a photo batch outcome, including per-file
// failures when the batch only partially succeeded.
type IngestResponse struct {
	Accepted int                  `json:"accepted"`
	Photos   []PhotoResponse      `json:"photos"`
	Failed   []ingest.FileFailure `json:"failed,omitempty"`
}

// WSEvent is a WebSocket message for real-time processing updates.
type WSEvent struct {
	Type    string        `json:"type"` // photo_processed, photo_failed
	EventID uuid.UUID     `json:"event_id"`
	Data    PhotoResponse `json:"data"`
}
