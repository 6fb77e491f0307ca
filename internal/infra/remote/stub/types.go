package stub

import "time"

type RowResponse struct {
	RemoteID  string         `json:"remoteId"`
	Fields    map[string]any `json:"fields"`
	UpdatedAt *time.Time     `json:"updatedAt,omitempty"`
}

type WriteRequest struct {
	Fields    map[string]any `json:"fields" binding:"required"`
	UpdatedAt time.Time      `json:"updatedAt" binding:"required"`
}

type InsertResponse struct {
	RemoteID string `json:"remoteId"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
