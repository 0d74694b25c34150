package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/PradeepMolleti-09/star-shot/internal/config"
	"github.com/PradeepMolleti-09/star-shot/internal/models"
	"github.com/PradeepMolleti-09/star-shot/internal/storage"
	"github.com/PradeepMolleti-09/star-shot/pkg/dto"
)

type EventHandler struct {
	db    *storage.PostgresStore
	minio *storage.MinIOStore
	cfg   config.EventsConfig
}

func NewEventHandler(db *storage.PostgresStore, minio *storage.MinIOStore, cfg config.EventsConfig) *EventHandler {
	return &EventHandler{db: db, minio: minio, cfg: cfg}
}

// Create registers an event and generates its fan-facing join token
// plus a QR image pointing at the frontend join page.
func (h *EventHandler) Create(c *gin.Context) {
	var req dto.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token := uuid.NewString()
	joinURL := h.cfg.FrontendURL + "/event/" + token

	qrKey := ""
	png, err := qrcode.Encode(joinURL, qrcode.Medium, 512)
	if err == nil {
		key, _, upErr := h.minio.Upload(c.Request.Context(), "qr", token+".png", png, "image/png")
		if upErr == nil {
			qrKey = key
		}
	}
	// A missing QR image is cosmetic; the join URL still works.

	expires := time.Now().Add(h.cfg.Expiry)
	event := &models.Event{
		Name:        req.Name,
		SubjectName: req.SubjectName,
		JoinToken:   token,
		QRKey:       qrKey,
		ExpiresAt:   &expires,
	}
	if err := h.db.CreateEvent(c.Request.Context(), event); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, h.toResponse(event, joinURL))
}

func (h *EventHandler) List(c *gin.Context) {
	events, err := h.db.ListEvents(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.EventResponse, 0, len(events))
	for i := range events {
		ev := &events[i]
		resp = append(resp, h.toResponse(ev, h.cfg.FrontendURL+"/event/"+ev.JoinToken))
	}
	c.JSON(http.StatusOK, gin.H{"events": resp, "total": len(resp)})
}

func (h *EventHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	event, err := h.db.GetEvent(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if event == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		return
	}

	c.JSON(http.StatusOK, h.toResponse(event, h.cfg.FrontendURL+"/event/"+event.JoinToken))
}

// GetByToken is the fan-side lookup behind the QR code. Expired events
// answer 410 so the frontend can show a dedicated message.
func (h *EventHandler) GetByToken(c *gin.Context) {
	event, err := h.db.GetEventByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if event == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "invalid QR code"})
		return
	}
	if event.Expired(time.Now()) {
		c.JSON(http.StatusGone, gin.H{"error": "event has expired"})
		return
	}

	c.JSON(http.StatusOK, dto.EventJoinResponse{
		Name:        event.Name,
		SubjectName: event.SubjectName,
		JoinToken:   event.JoinToken,
	})
}

func (h *EventHandler) toResponse(ev *models.Event, joinURL string) dto.EventResponse {
	resp := dto.EventResponse{
		ID:          ev.ID,
		Name:        ev.Name,
		SubjectName: ev.SubjectName,
		JoinToken:   ev.JoinToken,
		JoinURL:     joinURL,
		TotalFans:   ev.TotalFans,
		TotalPhotos: ev.TotalPhotos,
		CreatedAt:   ev.CreatedAt.Format(time.RFC3339),
	}
	if ev.QRKey != "" {
		resp.QRURL = h.minio.ObjectURL(ev.QRKey)
	}
	if ev.ExpiresAt != nil {
		resp.ExpiresAt = ev.ExpiresAt.Format(time.RFC3339)
	}
	return resp
}
