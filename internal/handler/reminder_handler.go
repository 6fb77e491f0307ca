package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/reminder"
)

type ReminderService interface {
	Get(ctx context.Context, id int64) (*domain.ReminderRecord, error)
	List(ctx context.Context) ([]*domain.ReminderRecord, error)
	Create(ctx context.Context, in reminder.Input) (*domain.ReminderRecord, error)
	Update(ctx context.Context, id int64, in reminder.Input) (*domain.ReminderRecord, error)
	Delete(ctx context.Context, id int64) error
	Complete(ctx context.Context, id int64) (*domain.ReminderRecord, error)
	Pause(ctx context.Context, id int64) (*domain.ReminderRecord, error)
	Resume(ctx context.Context, id int64) (*domain.ReminderRecord, error)
	Snooze(ctx context.Context, id int64, d time.Duration) (*domain.ReminderRecord, error)
}

type ReminderHandler struct {
	service ReminderService
}

func NewReminderHandler(service ReminderService) *ReminderHandler {
	return &ReminderHandler{service: service}
}

func (h *ReminderHandler) Register(g *gin.RouterGroup) {
	g.GET("/reminders", h.HandleList)
	g.POST("/reminders", h.HandleCreate)
	g.GET("/reminders/:id", h.HandleGet)
	g.PUT("/reminders/:id", h.HandleUpdate)
	g.DELETE("/reminders/:id", h.HandleDelete)
	g.POST("/reminders/:id/complete", h.action(h.service.Complete))
	g.POST("/reminders/:id/pause", h.action(h.service.Pause))
	g.POST("/reminders/:id/resume", h.action(h.service.Resume))
	g.POST("/reminders/:id/snooze", h.HandleSnooze)
}

func (h *ReminderHandler) HandleList(c *gin.Context) {
	records, err := h.service.List(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	resp := make([]ReminderResponse, 0, len(records))
	for _, r := range records {
		resp = append(resp, toReminderResponse(r))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ReminderHandler) HandleGet(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	record, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toReminderResponse(record))
}

func (h *ReminderHandler) HandleCreate(c *gin.Context) {
	in, ok := bindReminder(c)
	if !ok {
		return
	}

	record, err := h.service.Create(c.Request.Context(), in)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	slog.InfoContext(c.Request.Context(), "reminder created",
		slog.Int64("record_id", record.ID),
	)
	c.JSON(http.StatusCreated, toReminderResponse(record))
}

func (h *ReminderHandler) HandleUpdate(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	in, ok := bindReminder(c)
	if !ok {
		return
	}

	record, err := h.service.Update(c.Request.Context(), id, in)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toReminderResponse(record))
}

func (h *ReminderHandler) HandleDelete(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ReminderHandler) HandleSnooze(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req SnoozeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	record, err := h.service.Snooze(c.Request.Context(), id, time.Duration(req.Minutes)*time.Minute)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toReminderResponse(record))
}

func (h *ReminderHandler) action(fn func(ctx context.Context, id int64) (*domain.ReminderRecord, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}

		record, err := fn(c.Request.Context(), id)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, toReminderResponse(record))
	}
}

func bindReminder(c *gin.Context) (reminder.Input, bool) {
	var req ReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(c.Request.Context(), "request validation failed",
			slog.String("error", err.Error()),
			slog.String("path", c.Request.URL.Path),
		)
		respondError(c, http.StatusBadRequest, "validation_error", err.Error())
		return reminder.Input{}, false
	}

	in, err := req.toInput()
	if err != nil {
		respondError(c, http.StatusBadRequest, "validation_error", err.Error())
		return reminder.Input{}, false
	}
	return in, true
}
