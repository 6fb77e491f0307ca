package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	ActionFire   = "fire"
	ActionSnooze = "snooze"
)

// NotificationPayload is handed to the notification rendering boundary.
type NotificationPayload struct {
	RecordID         int64     `json:"recordId"`
	Title            string    `json:"title"`
	Category         string    `json:"category"`
	Action           string    `json:"action"`
	ScheduledInstant time.Time `json:"scheduledInstant"`
}

// Legacy renders the pipe-delimited "{id}|{title}|{category}" form.
func (p NotificationPayload) Legacy() string {
	return fmt.Sprintf("%d|%s|%s", p.RecordID, p.Title, p.Category)
}

// ParseLegacyPayload parses "{id}|{title}|{category}". Titles may contain pipes;
// the category is taken from the last segment.
func ParseLegacyPayload(s string) (NotificationPayload, error) {
	first := strings.Index(s, "|")
	last := strings.LastIndex(s, "|")
	if first < 0 || first == last {
		return NotificationPayload{}, fmt.Errorf("%w: %q", ErrInvalidLegacyPayload, s)
	}

	id, err := strconv.ParseInt(strings.TrimSpace(s[:first]), 10, 64)
	if err != nil {
		return NotificationPayload{}, fmt.Errorf("%w: bad id: %v", ErrInvalidLegacyPayload, err)
	}

	return NotificationPayload{
		RecordID: id,
		Title:    s[first+1 : last],
		Category: s[last+1:],
		Action:   ActionFire,
	}, nil
}
