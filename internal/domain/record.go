package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a reminder.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusSnoozed   Status = "snoozed"
)

func (s Status) String() string {
	return string(s)
}

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusCompleted, StatusSnoozed:
		return true
	default:
		return false
	}
}

// ReminderTable is the remote table reminder records sync into.
const ReminderTable = "reminders"

// ReminderRecord is the local source of truth for a reminder.
type ReminderRecord struct {
	ID                   int64
	Title                string
	Category             string
	Description          string
	Frequency            FrequencySpec
	TimeOfDay            TimeOfDay
	Status               Status
	EnableNotifications  bool
	RepeatLimit          int
	CompletionCount      int
	NextFireInstant      *time.Time
	LastCompletedInstant *time.Time
	CreatedInstant       time.Time
	UpdatedInstant       time.Time
	NeedsSync            bool
	RemoteID             string
	LastSyncedInstant    *time.Time
}

// NewReminderRecord builds a validated active record. The caller assigns ID and NextFireInstant.
func NewReminderRecord(title, category, description string, freq FrequencySpec, tod TimeOfDay, repeatLimit int, now time.Time) (*ReminderRecord, error) {
	r := &ReminderRecord{
		Title:               title,
		Category:            category,
		Description:         description,
		Frequency:           freq,
		TimeOfDay:           tod,
		Status:              StatusActive,
		EnableNotifications: true,
		RepeatLimit:         repeatLimit,
		CreatedInstant:      now,
		UpdatedInstant:      now,
		NeedsSync:           true,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *ReminderRecord) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return newValidationError(ErrInvalidRecord, "title", "title is required")
	}
	if !r.Status.Valid() {
		return newValidationError(ErrInvalidRecord, "status", fmt.Sprintf("unknown status %q", r.Status))
	}
	if r.RepeatLimit < 0 {
		return newValidationError(ErrInvalidRecord, "repeatLimit", "repeat limit must not be negative")
	}
	if r.CompletionCount < 0 {
		return newValidationError(ErrInvalidRecord, "completionCount", "completion count must not be negative")
	}
	if err := r.TimeOfDay.Validate(); err != nil {
		return err
	}
	return r.Frequency.Validate()
}

// LimitReached reports whether a bounded reminder has used up its repetitions.
func (r *ReminderRecord) LimitReached() bool {
	return r.RepeatLimit > 0 && r.CompletionCount >= r.RepeatLimit
}

// Armable reports whether the scheduler should hold a trigger for the record.
func (r *ReminderRecord) Armable() bool {
	if r.NextFireInstant == nil || !r.EnableNotifications {
		return false
	}
	return r.Status == StatusActive || r.Status == StatusSnoozed
}

// SchedulingChanged reports whether any field the scheduler depends on differs.
func (r *ReminderRecord) SchedulingChanged(o *ReminderRecord) bool {
	if o == nil {
		return true
	}
	if r.Status != o.Status || r.EnableNotifications != o.EnableNotifications {
		return true
	}
	if r.TimeOfDay != o.TimeOfDay || !r.Frequency.Equal(o.Frequency) {
		return true
	}
	return !timePtrEqual(r.NextFireInstant, o.NextFireInstant)
}

func (r *ReminderRecord) Clone() *ReminderRecord {
	c := *r
	c.Frequency.Weekdays = append([]int(nil), r.Frequency.Weekdays...)
	c.NextFireInstant = cloneTime(r.NextFireInstant)
	c.LastCompletedInstant = cloneTime(r.LastCompletedInstant)
	c.LastSyncedInstant = cloneTime(r.LastSyncedInstant)
	return &c
}

// Payload builds the notification payload for the current scheduled instant.
func (r *ReminderRecord) Payload(action string) NotificationPayload {
	p := NotificationPayload{
		RecordID: r.ID,
		Title:    r.Title,
		Category: r.Category,
		Action:   action,
	}
	if r.NextFireInstant != nil {
		p.ScheduledInstant = *r.NextFireInstant
	}
	return p
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
