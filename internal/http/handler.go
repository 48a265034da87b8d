package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"radar-ingest/internal/service"
)

// StatsSource exposes the queue's point-in-time counters.
type StatsSource interface {
	Stats() service.QueueStats
}

// PhotoCounter reports how many photos have been persisted.
type PhotoCounter interface {
	CountPhotos(ctx context.Context) (int64, error)
}

type Handler struct {
	queue  StatsSource
	photos PhotoCounter
	log    zerolog.Logger
}

func NewHandler(queue StatsSource, photos PhotoCounter, log zerolog.Logger) *Handler {
	return &Handler{queue: queue, photos: photos, log: log}
}

func (h *Handler) Register(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.GET("/status", h.status)
	}
}

func (h *Handler) status(c *gin.Context) {
	stats := h.queue.Stats()

	count, err := h.photos.CountPhotos(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to count photos")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"queue":        stats,
		"photos_total": count,
	})
}
