package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/PradeepMolleti-09/star-shot/internal/facematch"
	"github.com/PradeepMolleti-09/star-shot/internal/ingest"
	"github.com/PradeepMolleti-09/star-shot/internal/storage"
	"github.com/PradeepMolleti-09/star-shot/pkg/dto"
)

type SelfieHandler struct {
	db       *storage.PostgresStore
	pipeline *ingest.Pipeline
	engine   *facematch.Engine
}

func NewSelfieHandler(db *storage.PostgresStore, pipeline *ingest.Pipeline, engine *facematch.Engine) *SelfieHandler {
	return &SelfieHandler{db: db, pipeline: pipeline, engine: engine}
}

// Submit accepts a fan selfie for the event behind the join token.
func (h *SelfieHandler) Submit(c *gin.Context) {
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "selfie image is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read image failed"})
		return
	}

	selfie, err := h.pipeline.SubmitSelfie(c.Request.Context(), c.Param("token"), ingest.FileUpload{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrEventNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "invalid QR code"})
		case errors.Is(err, ingest.ErrEventExpired):
			c.JSON(http.StatusGone, gin.H{"error": "event has expired"})
		case errors.Is(err, ingest.ErrNoImage):
			c.JSON(http.StatusBadRequest, gin.H{"error": "selfie image is required"})
		case errors.Is(err, ingest.ErrStorage):
			c.JSON(http.StatusBadGateway, gin.H{"error": "selfie upload failed"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	c.JSON(http.StatusCreated, dto.SubmitSelfieResponse{SelfieID: selfie.ID})
}

// Match runs the selfie against the event's processed photos and
// returns the ranked match list. An unreachable face engine is a 503,
// not an empty list: "nobody matched" and "couldn't check" are
// different answers.
func (h *SelfieHandler) Match(c *gin.Context) {
	selfieID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid selfie id"})
		return
	}

	matches, err := h.engine.MatchSelfie(c.Request.Context(), selfieID)
	if err != nil {
		switch {
		case errors.Is(err, facematch.ErrSelfieNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "selfie not found"})
		case errors.Is(err, facematch.ErrUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "face matching is unavailable"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	c.JSON(http.StatusOK, dto.MatchResponse{Matches: matches, Total: len(matches)})
}

// ListForEvent is the organizer's view of submitted selfies with their
// last recorded match summary.
func (h *SelfieHandler) ListForEvent(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	selfies, err := h.db.ListSelfies(c.Request.Context(), eventID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.SelfieResponse, 0, len(selfies))
	for _, s := range selfies {
		resp = append(resp, dto.SelfieResponse{
			ID:             s.ID,
			EventID:        s.EventID,
			ImageURL:       s.ImageURL,
			IsMatched:      s.IsMatched,
			BestConfidence: s.BestConfidence,
			CreatedAt:      s.CreatedAt.Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, dto.SelfieListResponse{Selfies: resp, Total: len(resp)})
}
