package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexconsult/goc-sync/internal/models"
	"github.com/nexconsult/goc-sync/internal/services"
	"github.com/sirupsen/logrus"
)

// metricsWindow is how many recent runs the counters cover
const metricsWindow = 100

// MetricsHandler handles metrics requests
type MetricsHandler struct {
	sync   services.SyncServiceInterface
	logger *logrus.Logger
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(sync services.SyncServiceInterface, logger *logrus.Logger) *MetricsHandler {
	return &MetricsHandler{sync: sync, logger: logger}
}

// KindMetrics aggregates the recent runs of one kind
type KindMetrics struct {
	Runs       int             `json:"runs"`
	Failed     int             `json:"failed"`
	Registered int             `json:"registered"`
	Duplicates int             `json:"duplicates"`
	Errors     int             `json:"errors"`
	Created    int             `json:"created"`
	Updated    int             `json:"updated"`
	LastRun    *models.SyncRun `json:"last_run,omitempty"`
}

// MetricsResponse is the body of /metrics
type MetricsResponse struct {
	Kinds      map[models.RunKind]*KindMetrics `json:"kinds"`
	Goroutines int                             `json:"goroutines"`
	MemoryMB   float64                         `json:"memory_mb"`
	Timestamp  time.Time                       `json:"timestamp"`
}

// GetMetrics handles metrics request
// @Summary Métricas das sincronizações
// @Description Contadores das execuções recentes por tipo e estado do processo
// @Tags Metrics
// @Produce json
// @Success 200 {object} MetricsResponse
// @Router /metrics [get]
func (h *MetricsHandler) GetMetrics(c *gin.Context) {
	runs, err := h.sync.RecentRuns(c.Request.Context(), metricsWindow)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to load runs for metrics")
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	c.JSON(http.StatusOK, MetricsResponse{
		Kinds:      Aggregate(runs),
		Goroutines: runtime.NumGoroutine(),
		MemoryMB:   float64(m.Alloc) / 1024 / 1024,
		Timestamp:  time.Now(),
	})
}

// Aggregate folds runs, newest first, into per-kind counters
func Aggregate(runs []models.SyncRun) map[models.RunKind]*KindMetrics {
	out := make(map[models.RunKind]*KindMetrics)
	for i := range runs {
		r := &runs[i]
		k, ok := out[r.Kind]
		if !ok {
			k = &KindMetrics{LastRun: r}
			out[r.Kind] = k
		}
		k.Runs++
		if r.Status == models.RunFailed {
			k.Failed++
		}
		k.Registered += r.Registered
		k.Duplicates += r.Duplicates
		k.Errors += r.Errors
		k.Created += r.Created
		k.Updated += r.Updated
	}
	return out
}
