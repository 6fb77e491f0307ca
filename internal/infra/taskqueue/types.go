package taskqueue

import (
	"fmt"
	"time"

	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
)

const HeaderScheduledAt = "X-Scheduled-At"

type TriggerTask struct {
	Name       string    `json:"-"`
	ScheduleAt time.Time `json:"-"`

	Payload domain.NotificationPayload `json:"payload"`
}

// NewTriggerTask builds the task for one scheduled fire of a record.
func NewTriggerTask(payload domain.NotificationPayload) *TriggerTask {
	return &TriggerTask{
		Name:       TaskName(payload.RecordID, payload.ScheduledInstant),
		ScheduleAt: payload.ScheduledInstant,
		Payload:    payload,
	}
}

// TaskName is deterministic per record and fire instant so re-registration is idempotent.
func TaskName(recordID int64, fireAt time.Time) string {
	return fmt.Sprintf("reminder-%d-%d", recordID, fireAt.Unix())
}

func (t *TriggerTask) Headers() map[string]string {
	return map[string]string{
		"Content-Type":    "application/json",
		HeaderScheduledAt: t.ScheduleAt.UTC().Format(time.RFC3339Nano),
	}
}

type TaskResponse struct {
	Name         string    `json:"name"`
	ScheduleTime time.Time `json:"schedule_time"`
	CreateTime   time.Time `json:"create_time"`
}

type PrimindTaskRequest struct {
	Task PrimindTask `json:"task"`
}

type PrimindTask struct {
	Name         string             `json:"name,omitempty"`
	HTTPRequest  PrimindHTTPRequest `json:"httpRequest"`
	ScheduleTime string             `json:"scheduleTime,omitempty"`
}

type PrimindHTTPRequest struct {
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers,omitempty"`
}

type PrimindTaskResponse struct {
	Name         string `json:"name"`
	ScheduleTime string `json:"scheduleTime"`
	CreateTime   string `json:"createTime"`
}
