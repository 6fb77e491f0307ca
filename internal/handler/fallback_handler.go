package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/fallback"
)

const defaultErrorLimit = 100

type FallbackController interface {
	Mode() fallback.Mode
	Snapshot() domain.HealthState
	HealthCheck(ctx context.Context) fallback.CheckResult
}

type ErrorLog interface {
	Recent(limit int) []domain.ErrorEvent
}

// FallbackHandler reports and re-evaluates the Normal/Fallback mode.
type FallbackHandler struct {
	controller FallbackController
	errors     ErrorLog
	onNormal   func()
}

// NewFallbackHandler builds the handler. onNormal runs after a check that leaves the
// controller in Normal mode.
func NewFallbackHandler(controller FallbackController, errLog ErrorLog, onNormal func()) *FallbackHandler {
	return &FallbackHandler{
		controller: controller,
		errors:     errLog,
		onNormal:   onNormal,
	}
}

func (h *FallbackHandler) Register(g *gin.RouterGroup) {
	g.GET("/fallback", h.HandleStatus)
	g.POST("/fallback/check", h.HandleCheck)
	g.GET("/errors", h.HandleErrors)
}

func (h *FallbackHandler) HandleStatus(c *gin.Context) {
	state := h.controller.Snapshot()
	c.JSON(http.StatusOK, FallbackResponse{
		Mode:        h.controller.Mode(),
		State:       state,
		ErrorCounts: state.ErrorCounts,
	})
}

func (h *FallbackHandler) HandleCheck(c *gin.Context) {
	result := h.controller.HealthCheck(c.Request.Context())
	if result.Mode == fallback.ModeNormal && h.onNormal != nil {
		h.onNormal()
	}

	healthy := result.Healthy
	state := h.controller.Snapshot()
	c.JSON(http.StatusOK, FallbackResponse{
		Mode:        result.Mode,
		State:       state,
		Healthy:     &healthy,
		Conditions:  result.Conditions,
		ErrorCounts: state.ErrorCounts,
	})
}

func (h *FallbackHandler) HandleErrors(c *gin.Context) {
	events := h.errors.Recent(limitQuery(c, defaultErrorLimit))
	if events == nil {
		events = []domain.ErrorEvent{}
	}
	c.JSON(http.StatusOK, events)
}
