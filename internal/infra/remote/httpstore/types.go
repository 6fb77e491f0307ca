package httpstore

import "time"

// RowResponse is the wire form of a remote row.
type RowResponse struct {
	RemoteID  string         `json:"remoteId"`
	Fields    map[string]any `json:"fields"`
	UpdatedAt *time.Time     `json:"updatedAt,omitempty"`
}

type WriteRequest struct {
	Fields    map[string]any `json:"fields"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

type InsertResponse struct {
	RemoteID string `json:"remoteId"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
