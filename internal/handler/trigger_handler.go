package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/trigger"
)

// ScheduledAtHeader carries the fire instant of a legacy text/plain delivery.
const ScheduledAtHeader = "X-Scheduled-At"

type Deliverer interface {
	Deliver(ctx context.Context, recordID int64, scheduledAt time.Time) error
}

// TriggerHandler receives fires from the persistent task queue.
type TriggerHandler struct {
	scheduler Deliverer
}

func NewTriggerHandler(scheduler Deliverer) *TriggerHandler {
	return &TriggerHandler{scheduler: scheduler}
}

func (h *TriggerHandler) Register(g *gin.RouterGroup) {
	g.POST("/triggers/fire", h.HandleFire)
}

// HandleFire accepts the JSON payload or the legacy "{id}|{title}|{category}" body. Duplicate
// and superseded deliveries are acknowledged so the queue does not retry them.
func (h *TriggerHandler) HandleFire(c *gin.Context) {
	ctx := c.Request.Context()

	payload, err := parseTrigger(c)
	if err != nil {
		slog.WarnContext(ctx, "invalid trigger delivery",
			slog.String("error", err.Error()),
		)
		respondError(c, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	err = h.scheduler.Deliver(ctx, payload.RecordID, payload.ScheduledInstant)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "fired"})
	case errors.Is(err, trigger.ErrDuplicateFire):
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
	case errors.Is(err, trigger.ErrStaleFire):
		slog.InfoContext(ctx, "stale trigger delivery acknowledged",
			slog.Int64("record_id", payload.RecordID),
			slog.Time("scheduled_at", payload.ScheduledInstant),
		)
		c.JSON(http.StatusOK, gin.H{"status": "stale"})
	default:
		slog.ErrorContext(ctx, "trigger delivery failed",
			slog.Int64("record_id", payload.RecordID),
			slog.String("error", err.Error()),
		)
		respondError(c, http.StatusInternalServerError, "processing_error", "failed to deliver trigger")
	}
}

func parseTrigger(c *gin.Context) (domain.NotificationPayload, error) {
	if strings.HasPrefix(c.ContentType(), "text/plain") {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return domain.NotificationPayload{}, err
		}
		payload, err := domain.ParseLegacyPayload(strings.TrimSpace(string(body)))
		if err != nil {
			return payload, err
		}

		at, err := time.Parse(time.RFC3339Nano, c.GetHeader(ScheduledAtHeader))
		if err != nil {
			return payload, errors.New(ScheduledAtHeader + " must be an RFC3339 instant")
		}
		payload.ScheduledInstant = at
		return payload, nil
	}

	var req TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return domain.NotificationPayload{}, err
	}
	action := req.Payload.Action
	if action == "" {
		action = domain.ActionFire
	}
	return domain.NotificationPayload{
		RecordID:         req.Payload.RecordID,
		Title:            req.Payload.Title,
		Category:         req.Payload.Category,
		Action:           action,
		ScheduledInstant: req.Payload.ScheduledInstant,
	}, nil
}
