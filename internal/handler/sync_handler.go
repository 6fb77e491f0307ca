package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/syncengine"
)

const defaultConflictLimit = 50

type SyncReviewer interface {
	Drain(ctx context.Context) (domain.DrainRun, error)
	Pending(ctx context.Context) ([]*domain.SyncQueueItem, error)
	Conflicts(ctx context.Context, limit int) ([]*domain.SyncConflict, error)
	DeadLetters(ctx context.Context) ([]*domain.DeadLetter, error)
	Requeue(ctx context.Context, id string) (*domain.SyncQueueItem, error)
	Purge(ctx context.Context, id string) error
}

// SyncHandler exposes the sync queue, conflicts and dead letters for operators.
type SyncHandler struct {
	engine SyncReviewer
	nudge  func()
}

// NewSyncHandler builds the handler. nudge asks the background loop for an early drain.
func NewSyncHandler(engine SyncReviewer, nudge func()) *SyncHandler {
	return &SyncHandler{engine: engine, nudge: nudge}
}

func (h *SyncHandler) Register(g *gin.RouterGroup) {
	g.POST("/sync/drain", h.HandleDrain)
	g.GET("/sync/pending", h.HandlePending)
	g.GET("/sync/conflicts", h.HandleConflicts)
	g.GET("/sync/deadletters", h.HandleDeadLetters)
	g.POST("/sync/deadletters/:id/requeue", h.HandleRequeue)
	g.DELETE("/sync/deadletters/:id", h.HandlePurge)
}

// HandleDrain nudges the loop, or drains inline with ?wait=true.
func (h *SyncHandler) HandleDrain(c *gin.Context) {
	if c.Query("wait") != "true" {
		if h.nudge != nil {
			h.nudge()
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "scheduled"})
		return
	}

	run, err := h.engine.Drain(c.Request.Context())
	if err != nil {
		if errors.Is(err, syncengine.ErrDrainInProgress) {
			respondError(c, http.StatusConflict, "drain_in_progress", err.Error())
			return
		}
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *SyncHandler) HandlePending(c *gin.Context) {
	items, err := h.engine.Pending(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if items == nil {
		items = []*domain.SyncQueueItem{}
	}
	c.JSON(http.StatusOK, items)
}

func (h *SyncHandler) HandleConflicts(c *gin.Context) {
	conflicts, err := h.engine.Conflicts(c.Request.Context(), limitQuery(c, defaultConflictLimit))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if conflicts == nil {
		conflicts = []*domain.SyncConflict{}
	}
	c.JSON(http.StatusOK, conflicts)
}

func (h *SyncHandler) HandleDeadLetters(c *gin.Context) {
	letters, err := h.engine.DeadLetters(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if letters == nil {
		letters = []*domain.DeadLetter{}
	}
	c.JSON(http.StatusOK, letters)
}

func (h *SyncHandler) HandleRequeue(c *gin.Context) {
	item, err := h.engine.Requeue(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if h.nudge != nil {
		h.nudge()
	}
	c.JSON(http.StatusOK, item)
}

func (h *SyncHandler) HandlePurge(c *gin.Context) {
	if err := h.engine.Purge(c.Request.Context(), c.Param("id")); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
