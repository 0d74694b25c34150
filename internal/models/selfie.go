package models

import (
	"time"

	"github.com/google/uuid"
)

// FanSelfie is one fan's submitted selfie for one event. The descriptor
// is extracted at match time; only the outcome summary (IsMatched,
// BestConfidence) is written back.
type FanSelfie struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	EventID        uuid.UUID  `json:"event_id" db:"event_id"`
	ImageURL       string     `json:"image_url" db:"image_url"`
	StorageKey     string     `json:"-" db:"storage_key"`
	IsMatched      bool       `json:"is_matched" db:"is_matched"`
	BestConfidence int        `json:"best_confidence" db:"best_confidence"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}
