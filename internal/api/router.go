package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PradeepMolleti-09/star-shot/internal/api/handlers"
	"github.com/PradeepMolleti-09/star-shot/internal/api/ws"
	"github.com/PradeepMolleti-09/star-shot/internal/auth"
	"github.com/PradeepMolleti-09/star-shot/internal/config"
	"github.com/PradeepMolleti-09/star-shot/internal/extract"
	"github.com/PradeepMolleti-09/star-shot/internal/facematch"
	"github.com/PradeepMolleti-09/star-shot/internal/ingest"
	"github.com/PradeepMolleti-09/star-shot/internal/queue"
	"github.com/PradeepMolleti-09/star-shot/internal/storage"
)

type RouterConfig struct {
	APIKey     string
	Events     config.EventsConfig
	DB         *storage.PostgresStore
	MinIO      *storage.MinIOStore
	Producer   *queue.Producer
	Hub        *ws.Hub
	Pipeline   *ingest.Pipeline
	Engine     *facematch.Engine
	FaceEngine *extract.Client
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.MinIO, cfg.Producer, cfg.FaceEngine)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	eventH := handlers.NewEventHandler(cfg.DB, cfg.MinIO, cfg.Events)
	photoH := handlers.NewPhotoHandler(cfg.DB, cfg.Pipeline)
	selfieH := handlers.NewSelfieHandler(cfg.DB, cfg.Pipeline, cfg.Engine)

	// Fan-facing endpoints, keyed by the event join token (no API key)
	join := r.Group("/v1/join")
	join.GET("/:token", eventH.GetByToken)
	join.POST("/:token/selfies", selfieH.Submit)
	r.POST("/v1/selfies/:id/match", selfieH.Match)

	// Organizer API (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	v1.GET("/ws", cfg.Hub.HandleWS)

	v1.POST("/events", eventH.Create)
	v1.GET("/events", eventH.List)
	v1.GET("/events/:id", eventH.Get)

	v1.POST("/events/:id/photos", photoH.Ingest)
	v1.GET("/events/:id/photos", photoH.List)
	v1.GET("/events/:id/selfies", selfieH.ListForEvent)

	v1.POST("/photos/:id/retry", photoH.Retry)
	v1.POST("/photos/:id/trash", photoH.SoftDelete)
	v1.POST("/photos/:id/restore", photoH.Undo)
	v1.DELETE("/photos/:id", photoH.HardDelete)

	return r
}
