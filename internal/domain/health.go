package domain

import (
	"strconv"
	"time"
)

// ErrorCategory classifies operational events.
type ErrorCategory string

const (
	CategoryValidation    ErrorCategory = "validation"
	CategoryScheduling    ErrorCategory = "scheduling"
	CategorySyncTransient ErrorCategory = "sync_transient"
	CategorySyncConflict  ErrorCategory = "sync_conflict"
	CategoryFatalLocal    ErrorCategory = "fatal_local"
	CategoryPermission    ErrorCategory = "permission"
)

func (c ErrorCategory) String() string {
	return string(c)
}

// Severity of an operational event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

func (s Severity) String() string {
	return string(s)
}

// ErrorEvent is one entry of the error log.
type ErrorEvent struct {
	Category   ErrorCategory `json:"category"`
	Severity   Severity      `json:"severity"`
	Component  string        `json:"component"`
	Message    string        `json:"message"`
	RecordID   int64         `json:"recordId,omitempty"`
	OccurredAt time.Time     `json:"occurredAt"`
}

// Critical reports whether the event counts toward the fallback threshold.
func (e ErrorEvent) Critical() bool {
	if e.Severity != SeverityCritical {
		return false
	}
	switch e.Category {
	case CategoryScheduling, CategorySyncTransient, CategorySyncConflict:
		return true
	default:
		return false
	}
}

// HealthState is the persisted fallback state. PermissionDenied holds the last
// background-execution signal inverted, so the zero value permits.
type HealthState struct {
	InFallbackMode   bool                  `json:"inFallbackMode"`
	Reason           string                `json:"reason,omitempty"`
	ChangedAt        time.Time             `json:"changedAt"`
	LastCheckAt      *time.Time            `json:"lastCheckAt,omitempty"`
	PermissionDenied bool                  `json:"permissionDenied,omitempty"`
	ArmFailureAt     *time.Time            `json:"armFailureAt,omitempty"`
	ErrorCounts      map[ErrorCategory]int `json:"errorCounts,omitempty"`
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}
