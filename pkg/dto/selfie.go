package dto

import (
	"github.com/google/uuid"

	"github.com/PradeepMolleti-09/star-shot/internal/facematch"
)

type SubmitSelfieResponse struct {
	SelfieID uuid.UUID `json:"selfie_id"`
}

type SelfieResponse struct {
	ID             uuid.UUID `json:"id"`
	EventID        uuid.UUID `json:"event_id"`
	ImageURL       string    `json:"image_url"`
	IsMatched      bool      `json:"is_matched"`
	BestConfidence int       `json:"best_confidence"`
	CreatedAt      string    `json:"created_at"`
}

type SelfieListResponse struct {
	Selfies []SelfieResponse `json:"selfies"`
	Total   int              `json:"total"`
}

type MatchResponse struct {
	Matches []facematch.MatchResult `json:"matched_images"`
	Total   int                     `json:"total"`
}
