package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/PradeepMolleti-09/star-shot/internal/ingest"
	"github.com/PradeepMolleti-09/star-shot/internal/models"
	"github.com/PradeepMolleti-09/star-shot/internal/storage"
	"github.com/PradeepMolleti-09/star-shot/pkg/dto"
)

type PhotoHandler struct {
	db       *storage.PostgresStore
	pipeline *ingest.Pipeline
}

func NewPhotoHandler(db *storage.PostgresStore, pipeline *ingest.Pipeline) *PhotoHandler {
	return &PhotoHandler{db: db, pipeline: pipeline}
}

// Ingest accepts a multipart batch under the "photos" field and feeds
// it to the ingestion pipeline. The response reports per-file failures
// so a partially accepted batch is distinguishable from a full one.
func (h *PhotoHandler) Ingest(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form required"})
		return
	}

	var files []ingest.FileUpload
	for _, fh := range form.File["photos"] {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file: " + fh.Filename})
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file: " + fh.Filename})
			return
		}
		files = append(files, ingest.FileUpload{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	summary, err := h.pipeline.IngestPhotos(c.Request.Context(), eventID, files)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrEventNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		case errors.Is(err, ingest.ErrNoFiles):
			c.JSON(http.StatusBadRequest, gin.H{"error": "no photos uploaded"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		}
		return
	}

	status := http.StatusOK
	if summary.Accepted == 0 && len(summary.Failed) > 0 {
		// Every file failed at the storage boundary.
		status = http.StatusBadGateway
	}

	c.JSON(status, dto.IngestResponse{
		Accepted: summary.Accepted,
		Photos:   toPhotoResponses(summary.Photos),
		Failed:   summary.Failed,
	})
}

// List returns the event's non-deleted photos, newest first.
func (h *PhotoHandler) List(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	photos, err := h.db.ListPhotos(c.Request.Context(), eventID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := toPhotoResponses(photos)
	c.JSON(http.StatusOK, dto.PhotoListResponse{Photos: resp, Total: len(resp)})
}

// SoftDelete moves a photo to the trash.
func (h *PhotoHandler) SoftDelete(c *gin.Context) {
	h.lifecycle(c, h.pipeline.SoftDeletePhoto, "photo moved to trash")
}

// Undo restores a trashed photo.
func (h *PhotoHandler) Undo(c *gin.Context) {
	h.lifecycle(c, h.pipeline.UndoDeletePhoto, "photo restored")
}

// HardDelete permanently removes the photo and its stored object.
func (h *PhotoHandler) HardDelete(c *gin.Context) {
	h.lifecycle(c, h.pipeline.HardDeletePhoto, "photo permanently deleted")
}

// Retry re-enqueues extraction for a failed photo.
func (h *PhotoHandler) Retry(c *gin.Context) {
	h.lifecycle(c, h.pipeline.RetryPhoto, "photo queued for extraction")
}

func (h *PhotoHandler) lifecycle(c *gin.Context, op func(ctx context.Context, id uuid.UUID) error, okMsg string) {
	photoID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid photo id"})
		return
	}

	if err := op(c.Request.Context(), photoID); err != nil {
		switch {
		case errors.Is(err, ingest.ErrPhotoNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "photo not found"})
		case errors.Is(err, ingest.ErrAlreadyDeleted), errors.Is(err, ingest.ErrNotDeleted), errors.Is(err, ingest.ErrNotFailed):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid photo state"})
		case errors.Is(err, ingest.ErrStorage):
			c.JSON(http.StatusBadGateway, gin.H{"error": "storage delete failed"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": okMsg})
}

func toPhotoResponses(photos []models.Photo) []dto.PhotoResponse {
	resp := make([]dto.PhotoResponse, 0, len(photos))
	for _, p := range photos {
		resp = append(resp, dto.PhotoResponse{
			ID:        p.ID,
			EventID:   p.EventID,
			ImageURL:  p.ImageURL,
			Status:    string(p.Status),
			FaceCount: p.FaceCount,
			IsDeleted: p.IsDeleted,
			CreatedAt: p.CreatedAt.Format(time.RFC3339),
		})
	}
	return resp
}
