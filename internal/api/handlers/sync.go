package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexconsult/goc-sync/internal/models"
	"github.com/nexconsult/goc-sync/internal/services"
	"github.com/sirupsen/logrus"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 100
)

// SyncHandler exposes synchronization runs and the last extractions
type SyncHandler struct {
	sync   services.SyncServiceInterface
	logger *logrus.Logger
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(sync services.SyncServiceInterface, logger *logrus.Logger) *SyncHandler {
	return &SyncHandler{sync: sync, logger: logger}
}

func respond(c *gin.Context, status int, resp *models.StandardResponse, start time.Time) {
	resp.SetRequestID(c.GetString("request_id"))
	resp.SetExecutionTime(time.Since(start))
	c.JSON(status, resp)
}

// TriggerSync runs one synchronization and waits for it
// @Summary Executa uma sincronização
// @Description Executa a sincronização indicada sob o lock global e retorna o SyncRun finalizado
// @Tags Sync
// @Produce json
// @Param kind path string true "Tipo da sincronização" Enums(registrations, calendar, stock, users)
// @Success 200 {object} models.StandardResponse{data=models.SyncRun}
// @Failure 400 {object} models.StandardResponse
// @Failure 409 {object} models.StandardResponse
// @Failure 502 {object} models.StandardResponse{data=models.SyncRun}
// @Router /api/v1/sync/{kind} [post]
func (h *SyncHandler) TriggerSync(c *gin.Context) {
	start := time.Now()
	kind := models.RunKind(c.Param("kind"))
	if !kind.Valid() {
		respond(c, http.StatusBadRequest,
			models.NewErrorResponse(models.ErrorCodeInvalidRequest, "Tipo de sincronização desconhecido: "+string(kind), nil), start)
		return
	}

	logger := h.logger.WithFields(logrus.Fields{
		"request_id": c.GetString("request_id"),
		"kind":       kind,
	})
	logger.Info("Synchronization requested")

	run, err := h.sync.Run(c.Request.Context(), kind)
	switch {
	case errors.Is(err, services.ErrSyncInProgress):
		respond(c, http.StatusConflict,
			models.NewErrorResponse(models.ErrorCodeSyncInProgress, "Outra sincronização está em andamento", nil), start)
	case run == nil && err != nil:
		logger.WithError(err).Error("Synchronization could not start")
		respond(c, http.StatusInternalServerError,
			models.NewErrorResponse(models.ErrorCodeInternalError, err.Error(), nil), start)
	case err != nil:
		resp := models.NewWarningResponse("Sincronização falhou", run)
		resp.Error = &models.ErrorDetails{Code: models.ErrorCodeSyncFailed, Message: run.ErrorMessage}
		respond(c, http.StatusBadGateway, resp, start)
	default:
		respond(c, http.StatusOK, models.NewSuccessResponse("Sincronização concluída: "+run.Outcome(), run), start)
	}
}

// ListRuns returns the latest runs
// @Summary Lista execuções recentes
// @Tags Sync
// @Produce json
// @Param limit query int false "Quantidade máxima (padrão 20, máximo 100)"
// @Success 200 {object} models.StandardResponse{data=[]models.SyncRun}
// @Failure 400 {object} models.StandardResponse
// @Router /api/v1/runs [get]
func (h *SyncHandler) ListRuns(c *gin.Context) {
	start := time.Now()
	limit := defaultRunsLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respond(c, http.StatusBadRequest,
				models.NewErrorResponse(models.ErrorCodeInvalidRequest, "limit deve ser um inteiro positivo", nil), start)
			return
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := h.sync.RecentRuns(c.Request.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list runs")
		respond(c, http.StatusInternalServerError,
			models.NewErrorResponse(models.ErrorCodeInternalError, "Falha ao consultar execuções", nil), start)
		return
	}
	if runs == nil {
		runs = []models.SyncRun{}
	}
	respond(c, http.StatusOK, models.NewSuccessResponse("Execuções recentes", runs), start)
}

// CalendarStats returns the statistics of the last calendar extraction
// @Summary Estatísticas da última extração da agenda
// @Tags Calendar
// @Produce json
// @Success 200 {object} models.StandardResponse{data=models.CalendarStats}
// @Failure 404 {object} models.StandardResponse
// @Router /api/v1/calendar/stats [get]
func (h *SyncHandler) CalendarStats(c *gin.Context) {
	start := time.Now()
	stats, err := h.sync.CalendarStats(c.Request.Context())
	if err != nil {
		h.cachedFailure(c, err, start)
		return
	}
	respond(c, http.StatusOK, models.NewSuccessResponse("Estatísticas da agenda", stats), start)
}

// RecentUsers returns the patients of the last users extraction
// @Summary Pacientes recentes da última extração
// @Tags Users
// @Produce json
// @Success 200 {object} models.StandardResponse{data=[]models.UserRecord}
// @Failure 404 {object} models.StandardResponse
// @Router /api/v1/users/recent [get]
func (h *SyncHandler) RecentUsers(c *gin.Context) {
	start := time.Now()
	users, err := h.sync.RecentUsers(c.Request.Context())
	if err != nil {
		h.cachedFailure(c, err, start)
		return
	}
	respond(c, http.StatusOK, models.NewSuccessResponse("Pacientes recentes", users), start)
}

func (h *SyncHandler) cachedFailure(c *gin.Context, err error, start time.Time) {
	if errors.Is(err, services.ErrCacheMiss) {
		respond(c, http.StatusNotFound,
			models.NewErrorResponse(models.ErrorCodeNoData, "Nenhuma extração disponível, execute a sincronização", nil), start)
		return
	}
	h.logger.WithError(err).Error("Failed to read cached extraction")
	respond(c, http.StatusInternalServerError,
		models.NewErrorResponse(models.ErrorCodeInternalError, "Falha ao ler extração", nil), start)
}
