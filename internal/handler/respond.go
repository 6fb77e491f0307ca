package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/reminder"
)

func respondError(c *gin.Context, status int, errType, message string) {
	c.JSON(status, ErrorResponse{
		Error:   errType,
		Message: message,
	})
}

// respondServiceError maps service and domain sentinels to HTTP statuses.
func respondServiceError(c *gin.Context, err error) {
	var adj *reminder.AdjustmentError
	switch {
	case errors.As(err, &adj):
		suggested := adj.Suggested
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:     "schedule_adjusted",
			Message:   err.Error(),
			Suggested: &suggested,
		})
	case errors.Is(err, domain.ErrRecordNotFound), errors.Is(err, domain.ErrDeadLetterNotFound):
		respondError(c, http.StatusNotFound, "not_found", err.Error())
	case domain.IsValidation(err),
		errors.Is(err, domain.ErrInvalidFrequency),
		errors.Is(err, domain.ErrInvalidRecord),
		errors.Is(err, reminder.ErrNoFutureOccurrence):
		respondError(c, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, reminder.ErrInvalidTransition):
		respondError(c, http.StatusConflict, "invalid_transition", err.Error())
	default:
		slog.ErrorContext(c.Request.Context(), "request failed",
			slog.String("path", c.FullPath()),
			slog.String("error", err.Error()),
		)
		respondError(c, http.StatusInternalServerError, "processing_error", "failed to process request")
	}
}

func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "validation_error", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func limitQuery(c *gin.Context, def int) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		return def
	}
	return limit
}
