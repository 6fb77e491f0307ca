package stub

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	storage *RowStorage
}

func NewHandler(storage *RowStorage) *Handler {
	return &Handler{storage: storage}
}

// NewRouter serves the remote store API backed by storage.
func NewRouter(storage *RowStorage) *gin.Engine {
	h := NewHandler(storage)

	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/reset", h.HandleReset)
	r.POST("/fail", h.HandleFail)
	rows := r.Group("/api/v1/tables/:table/rows", h.injectFailures)
	{
		rows.POST("", h.HandleInsert)
		rows.GET("/:id", h.HandleGet)
		rows.PUT("/:id", h.HandleUpdate)
		rows.DELETE("/:id", h.HandleDelete)
	}
	return r
}

func (h *Handler) injectFailures(c *gin.Context) {
	if h.storage.takeFailure() {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, ErrorResponse{Error: "injected failure"})
		return
	}
	c.Next()
}

func (h *Handler) HandleReset(c *gin.Context) {
	h.storage.Reset()

	slog.Info("remote stub reset")

	c.JSON(http.StatusOK, gin.H{"status": "reset complete"})
}

// HandleFail makes the next ?count= row requests answer 503.
func (h *Handler) HandleFail(c *gin.Context) {
	n, err := strconv.Atoi(c.DefaultQuery("count", "1"))
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "count must be a non-negative integer"})
		return
	}
	h.storage.FailNext(n)

	slog.Info("remote stub failure injection armed", slog.Int("count", n))

	c.JSON(http.StatusOK, gin.H{"failing": n})
}

// GET /api/v1/tables/:table/rows/:id
func (h *Handler) HandleGet(c *gin.Context) {
	table := c.Param("table")
	id := c.Param("id")

	row, ok := h.storage.Get(table, id)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "row not found"})
		return
	}

	c.JSON(http.StatusOK, RowResponse{
		RemoteID:  row.RemoteID,
		Fields:    row.Fields,
		UpdatedAt: row.UpdatedAt,
	})
}

// POST /api/v1/tables/:table/rows
func (h *Handler) HandleInsert(c *gin.Context) {
	table := c.Param("table")

	var req WriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
		return
	}

	id := h.storage.Insert(table, req.Fields, req.UpdatedAt)

	slog.Debug("remote row inserted",
		slog.String("table", table),
		slog.String("remote_id", id),
	)

	c.JSON(http.StatusCreated, InsertResponse{RemoteID: id})
}

// PUT /api/v1/tables/:table/rows/:id
func (h *Handler) HandleUpdate(c *gin.Context) {
	table := c.Param("table")
	id := c.Param("id")

	var req WriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
		return
	}

	if !h.storage.Update(table, id, req.Fields, req.UpdatedAt) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "row not found"})
		return
	}

	c.Status(http.StatusNoContent)
}

// DELETE /api/v1/tables/:table/rows/:id
func (h *Handler) HandleDelete(c *gin.Context) {
	if !h.storage.Delete(c.Param("table"), c.Param("id")) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "row not found"})
		return
	}

	c.Status(http.StatusNoContent)
}
