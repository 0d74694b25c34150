package models

import (
	"time"

	"github.com/google/uuid"
)

// Event is an organizer-owned grouping of photos and fan selfies.
// TotalFans and TotalPhotos are maintained incrementally by every
// mutation path that creates or removes a child; they are never
// recomputed from the child tables.
type Event struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	Name        string     `json:"name" db:"name"`
	SubjectName string     `json:"subject_name" db:"subject_name"`
	JoinToken   string     `json:"join_token" db:"join_token"`
	QRKey       string     `json:"-" db:"qr_key"` // MinIO key of the join QR image
	TotalFans   int        `json:"total_fans" db:"total_fans"`
	TotalPhotos int        `json:"total_photos" db:"total_photos"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// Expired reports whether the event's fan-facing link has lapsed.
func (e *Event) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && e.ExpiresAt.Before(now)
}
