package dto

import "github.com/google/uuid"

type CreateEventRequest struct {
	Name        string `json:"name" binding:"required"`
	SubjectName string `json:"subject_name" binding:"required"`
}

type EventResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	SubjectName string    `json:"subject_name"`
	JoinToken   string    `json:"join_token"`
	JoinURL     string    `json:"join_url"`
	QRURL       string    `json:"qr_url,omitempty"`
	TotalFans   int       `json:"total_fans"`
	TotalPhotos int       `json:"total_photos"`
	ExpiresAt   string    `json:"expires_at,omitempty"`
	CreatedAt   string    `json:"created_at"`
}

// EventJoinResponse is the fan-facing view behind the QR link. It
// deliberately omits counters and internal ids.
type EventJoinResponse struct {
	Name        string `json:"name"`
	SubjectName string `json:"subject_name"`
	JoinToken   string `json:"join_token"`
}
