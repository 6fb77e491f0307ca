package handler

import (
	"fmt"
	"time"

	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/fallback"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/reminder"
)

const dateLayout = "2006-01-02"

type ErrorResponse struct {
	Error     string     `json:"error"`
	Message   string     `json:"message"`
	Suggested *time.Time `json:"suggestedInstant,omitempty"`
}

type FrequencyBody struct {
	Type           string `json:"type" binding:"required"`
	Date           string `json:"date,omitempty"`
	Weekdays       []int  `json:"selectedWeekdays,omitempty"`
	DayOfMonth     int    `json:"dayOfMonth,omitempty"`
	IntervalValue  int    `json:"intervalValue,omitempty"`
	IntervalUnit   string `json:"intervalUnit,omitempty"`
	MinutesFromNow int    `json:"minutesFromNow,omitempty"`
}

type TimeOfDayBody struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

type ReminderRequest struct {
	Title               string        `json:"title" binding:"required"`
	Category            string        `json:"category"`
	Description         string        `json:"description"`
	Frequency           FrequencyBody `json:"frequency"`
	TimeOfDay           TimeOfDayBody `json:"timeOfDay"`
	RepeatLimit         int           `json:"repeatLimit" binding:"min=0"`
	EnableNotifications *bool         `json:"enableNotifications,omitempty"`
	AcceptAdjustment    bool          `json:"acceptAdjustment"`
}

type SnoozeRequest struct {
	Minutes int `json:"minutes" binding:"required,min=1"`
}

type ReminderResponse struct {
	ID                   int64         `json:"id"`
	Title                string        `json:"title"`
	Category             string        `json:"category"`
	Description          string        `json:"description"`
	Frequency            FrequencyBody `json:"frequency"`
	TimeOfDay            TimeOfDayBody `json:"timeOfDay"`
	Status               string        `json:"status"`
	EnableNotifications  bool          `json:"enableNotifications"`
	RepeatLimit          int           `json:"repeatLimit"`
	CompletionCount      int           `json:"completionCount"`
	NextFireInstant      *time.Time    `json:"nextFireInstant"`
	LastCompletedInstant *time.Time    `json:"lastCompletedInstant"`
	CreatedInstant       time.Time     `json:"createdInstant"`
	UpdatedInstant       time.Time     `json:"updatedAt"`
	NeedsSync            bool          `json:"needsSync"`
	RemoteID             string        `json:"remoteId,omitempty"`
	LastSyncedInstant    *time.Time    `json:"lastSyncedInstant,omitempty"`
}

// TriggerRequest is the body the task queue delivers, as registered by taskqueue.TriggerTask.
type TriggerRequest struct {
	Payload TriggerPayload `json:"payload"`
}

type TriggerPayload struct {
	RecordID         int64     `json:"recordId" binding:"required"`
	Title            string    `json:"title"`
	Category         string    `json:"category"`
	Action           string    `json:"action"`
	ScheduledInstant time.Time `json:"scheduledInstant" binding:"required"`
}

type FallbackResponse struct {
	Mode        fallback.Mode                `json:"mode"`
	State       domain.HealthState           `json:"state"`
	Healthy     *bool                        `json:"healthy,omitempty"`
	Conditions  []string                     `json:"conditions,omitempty"`
	ErrorCounts map[domain.ErrorCategory]int `json:"errorCounts,omitempty"`
}

func (r *ReminderRequest) toInput() (reminder.Input, error) {
	freq, err := r.Frequency.toSpec()
	if err != nil {
		return reminder.Input{}, err
	}
	return reminder.Input{
		Title:               r.Title,
		Category:            r.Category,
		Description:         r.Description,
		Frequency:           freq,
		TimeOfDay:           domain.TimeOfDay{Hour: r.TimeOfDay.Hour, Minute: r.TimeOfDay.Minute},
		RepeatLimit:         r.RepeatLimit,
		EnableNotifications: r.EnableNotifications,
		AcceptAdjustment:    r.AcceptAdjustment,
	}, nil
}

func (f FrequencyBody) toSpec() (domain.FrequencySpec, error) {
	var spec domain.FrequencySpec
	switch domain.FrequencyKind(f.Type) {
	case domain.FrequencyOnce:
		date, err := time.Parse(dateLayout, f.Date)
		if err != nil {
			return spec, fmt.Errorf("%w: date must be YYYY-MM-DD", domain.ErrInvalidFrequency)
		}
		spec = domain.Once(date)
	case domain.FrequencyDaily:
		spec = domain.Daily()
	case domain.FrequencyWeekly:
		spec = domain.Weekly(f.Weekdays...)
	case domain.FrequencyMonthly:
		spec = domain.Monthly(f.DayOfMonth)
	case domain.FrequencyHourly:
		spec = domain.Hourly()
	case domain.FrequencyCustom:
		spec = domain.Custom(f.IntervalValue, domain.IntervalUnit(f.IntervalUnit))
	case domain.FrequencyMinutely:
		spec = domain.Minutely(f.MinutesFromNow)
	default:
		return spec, fmt.Errorf("%w: unknown type %q", domain.ErrInvalidFrequency, f.Type)
	}

	if err := spec.Validate(); err != nil {
		return spec, err
	}
	return spec, nil
}

func frequencyBody(spec domain.FrequencySpec) FrequencyBody {
	body := FrequencyBody{Type: spec.Kind.String()}
	switch spec.Kind {
	case domain.FrequencyOnce:
		body.Date = spec.Date.Format(dateLayout)
	case domain.FrequencyWeekly:
		body.Weekdays = spec.Weekdays
	case domain.FrequencyMonthly:
		body.DayOfMonth = spec.DayOfMonth
	case domain.FrequencyCustom:
		body.IntervalValue = spec.IntervalValue
		body.IntervalUnit = string(spec.IntervalUnit)
	case domain.FrequencyMinutely:
		body.MinutesFromNow = spec.MinutesFromNow
	}
	return body
}

func toReminderResponse(r *domain.ReminderRecord) ReminderResponse {
	return ReminderResponse{
		ID:                   r.ID,
		Title:                r.Title,
		Category:             r.Category,
		Description:          r.Description,
		Frequency:            frequencyBody(r.Frequency),
		TimeOfDay:            TimeOfDayBody{Hour: r.TimeOfDay.Hour, Minute: r.TimeOfDay.Minute},
		Status:               r.Status.String(),
		EnableNotifications:  r.EnableNotifications,
		RepeatLimit:          r.RepeatLimit,
		CompletionCount:      r.CompletionCount,
		NextFireInstant:      r.NextFireInstant,
		LastCompletedInstant: r.LastCompletedInstant,
		CreatedInstant:       r.CreatedInstant,
		UpdatedInstant:       r.UpdatedInstant,
		NeedsSync:            r.NeedsSync,
		RemoteID:             r.RemoteID,
		LastSyncedInstant:    r.LastSyncedInstant,
	}
}
