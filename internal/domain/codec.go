package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"time"
)

const dateLayout = "2006-01-02"

// Field keys shared by the local document and remote rows.
const (
	FieldLocalID              = "localId"
	FieldTitle                = "title"
	FieldCategory             = "category"
	FieldDescription          = "description"
	FieldFrequency            = "frequency"
	FieldTimeOfDay            = "timeOfDay"
	FieldStatus               = "status"
	FieldEnableNotifications  = "enableNotifications"
	FieldRepeatLimit          = "repeatLimit"
	FieldCompletionCount      = "completionCount"
	FieldNextFireInstant      = "nextFireInstant"
	FieldLastCompletedInstant = "lastCompletedInstant"
	FieldCreatedInstant       = "createdInstant"
	FieldUpdatedAt            = "updatedAt"
)

// LocallyAuthoritativeFields always keep the local value when merging with a remote row.
var LocallyAuthoritativeFields = []string{
	FieldCompletionCount,
	FieldLastCompletedInstant,
	FieldStatus,
}

// legacyFrequencyIDs maps the numeric frequency ids of older documents.
var legacyFrequencyIDs = map[int]FrequencyKind{
	1: FrequencyOnce,
	2: FrequencyDaily,
	3: FrequencyWeekly,
	4: FrequencyMonthly,
	5: FrequencyHourly,
	6: FrequencyCustom,
	7: FrequencyMinutely,
}

type frequencyDoc struct {
	Type             string `json:"type,omitempty"`
	LegacyID         *int   `json:"id,omitempty"`
	Date             string `json:"date,omitempty"`
	SelectedWeekdays []int  `json:"selectedWeekdays,omitempty"`
	DayOfMonth       int    `json:"dayOfMonth,omitempty"`
	IntervalValue    int    `json:"intervalValue,omitempty"`
	IntervalUnit     string `json:"intervalUnit,omitempty"`
	MinutesFromNow   int    `json:"minutesFromNow,omitempty"`
}

type timeOfDayDoc struct {
	Hour   *int `json:"hour"`
	Minute *int `json:"minute"`
}

type recordDoc struct {
	ID                   *int64        `json:"id"`
	Title                *string       `json:"title"`
	Category             string        `json:"category"`
	Description          string        `json:"description"`
	Frequency            *frequencyDoc `json:"frequency"`
	TimeOfDay            *timeOfDayDoc `json:"timeOfDay"`
	Status               *string       `json:"status"`
	EnableNotifications  *bool         `json:"enableNotifications,omitempty"`
	RepeatLimit          int           `json:"repeatLimit"`
	CompletionCount      int           `json:"completionCount"`
	NextFireInstant      *time.Time    `json:"nextFireInstant"`
	LastCompletedInstant *time.Time    `json:"lastCompletedInstant"`
	CreatedInstant       *time.Time    `json:"createdInstant"`
	UpdatedAt            *time.Time    `json:"updatedAt,omitempty"`
	NeedsSync            bool          `json:"needsSync"`
	RemoteID             string        `json:"remoteId,omitempty"`
	LastSyncedInstant    *time.Time    `json:"lastSyncedInstant,omitempty"`
}

// remoteDoc is the field set mirrored to remote rows.
type remoteDoc struct {
	LocalID              int64         `json:"localId"`
	Title                string        `json:"title"`
	Category             string        `json:"category"`
	Description          string        `json:"description"`
	Frequency            *frequencyDoc `json:"frequency"`
	TimeOfDay            *timeOfDayDoc `json:"timeOfDay"`
	Status               string        `json:"status"`
	EnableNotifications  bool          `json:"enableNotifications"`
	RepeatLimit          int           `json:"repeatLimit"`
	CompletionCount      int           `json:"completionCount"`
	NextFireInstant      *time.Time    `json:"nextFireInstant"`
	LastCompletedInstant *time.Time    `json:"lastCompletedInstant"`
	CreatedInstant       time.Time     `json:"createdInstant"`
	UpdatedAt            *time.Time    `json:"updatedAt,omitempty"`
}

// EncodeRecord serializes a record into its local document form.
func EncodeRecord(r *ReminderRecord) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: nil record", ErrInvalidRecord)
	}

	id := r.ID
	title := r.Title
	status := r.Status.String()
	enabled := r.EnableNotifications
	created := r.CreatedInstant

	doc := recordDoc{
		ID:                   &id,
		Title:                &title,
		Category:             r.Category,
		Description:          r.Description,
		Frequency:            encodeFrequency(r.Frequency),
		TimeOfDay:            encodeTimeOfDay(r.TimeOfDay),
		Status:               &status,
		EnableNotifications:  &enabled,
		RepeatLimit:          r.RepeatLimit,
		CompletionCount:      r.CompletionCount,
		NextFireInstant:      r.NextFireInstant,
		LastCompletedInstant: r.LastCompletedInstant,
		CreatedInstant:       &created,
		NeedsSync:            r.NeedsSync,
		RemoteID:             r.RemoteID,
		LastSyncedInstant:    r.LastSyncedInstant,
	}
	if !r.UpdatedInstant.IsZero() {
		updated := r.UpdatedInstant
		doc.UpdatedAt = &updated
	}

	return json.Marshal(doc)
}

// DecodeRecord parses a local document. Unknown keys and missing required keys are rejected.
func DecodeRecord(data []byte) (*ReminderRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var doc recordDoc
	if err := dec.Decode(&doc); err != nil {
		return nil, newValidationError(ErrInvalidRecord, "document", err.Error())
	}

	switch {
	case doc.ID == nil:
		return nil, newValidationError(ErrInvalidRecord, "id", "missing")
	case doc.Title == nil:
		return nil, newValidationError(ErrInvalidRecord, FieldTitle, "missing")
	case doc.Frequency == nil:
		return nil, newValidationError(ErrInvalidRecord, FieldFrequency, "missing")
	case doc.TimeOfDay == nil:
		return nil, newValidationError(ErrInvalidRecord, FieldTimeOfDay, "missing")
	case doc.Status == nil:
		return nil, newValidationError(ErrInvalidRecord, FieldStatus, "missing")
	case doc.CreatedInstant == nil:
		return nil, newValidationError(ErrInvalidRecord, FieldCreatedInstant, "missing")
	}

	freq, err := decodeFrequency(doc.Frequency)
	if err != nil {
		return nil, err
	}
	tod, err := decodeTimeOfDay(doc.TimeOfDay)
	if err != nil {
		return nil, err
	}

	r := &ReminderRecord{
		ID:                   *doc.ID,
		Title:                *doc.Title,
		Category:             doc.Category,
		Description:          doc.Description,
		Frequency:            freq,
		TimeOfDay:            tod,
		Status:               Status(*doc.Status),
		EnableNotifications:  doc.EnableNotifications == nil || *doc.EnableNotifications,
		RepeatLimit:          doc.RepeatLimit,
		CompletionCount:      doc.CompletionCount,
		NextFireInstant:      doc.NextFireInstant,
		LastCompletedInstant: doc.LastCompletedInstant,
		CreatedInstant:       *doc.CreatedInstant,
		NeedsSync:            doc.NeedsSync,
		RemoteID:             doc.RemoteID,
		LastSyncedInstant:    doc.LastSyncedInstant,
	}
	if doc.UpdatedAt != nil {
		r.UpdatedInstant = *doc.UpdatedAt
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// RecordFields returns the remote-facing fields of r as a JSON-normalized map.
func RecordFields(r *ReminderRecord) (map[string]any, error) {
	doc := remoteDoc{
		LocalID:              r.ID,
		Title:                r.Title,
		Category:             r.Category,
		Description:          r.Description,
		Frequency:            encodeFrequency(r.Frequency),
		TimeOfDay:            encodeTimeOfDay(r.TimeOfDay),
		Status:               r.Status.String(),
		EnableNotifications:  r.EnableNotifications,
		RepeatLimit:          r.RepeatLimit,
		CompletionCount:      r.CompletionCount,
		NextFireInstant:      r.NextFireInstant,
		LastCompletedInstant: r.LastCompletedInstant,
		CreatedInstant:       r.CreatedInstant,
	}
	if !r.UpdatedInstant.IsZero() {
		updated := r.UpdatedInstant
		doc.UpdatedAt = &updated
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return NormalizeFields(data)
}

// NormalizeFields decodes a JSON object into the generic form used for field comparison.
func NormalizeFields(data []byte) (map[string]any, error) {
	fields := make(map[string]any)
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return fields, nil
}

// ApplyFields overlays remote-facing fields onto a copy of base. Local-only state
// (id, remote id, sync flags) is kept from base.
func ApplyFields(base *ReminderRecord, fields map[string]any) (*ReminderRecord, error) {
	current, err := RecordFields(base)
	if err != nil {
		return nil, err
	}
	merged := maps.Clone(current)
	for k, v := range fields {
		if _, ok := current[k]; ok || k == FieldUpdatedAt {
			merged[k] = v
		}
	}
	merged[FieldLocalID] = current[FieldLocalID]

	data, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	var doc remoteDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, newValidationError(ErrInvalidRecord, "fields", err.Error())
	}

	freq, err := decodeFrequency(doc.Frequency)
	if err != nil {
		return nil, err
	}
	tod, err := decodeTimeOfDay(doc.TimeOfDay)
	if err != nil {
		return nil, err
	}

	out := base.Clone()
	out.Title = doc.Title
	out.Category = doc.Category
	out.Description = doc.Description
	out.Frequency = freq
	out.TimeOfDay = tod
	out.Status = Status(doc.Status)
	out.EnableNotifications = doc.EnableNotifications
	out.RepeatLimit = doc.RepeatLimit
	out.CompletionCount = doc.CompletionCount
	out.NextFireInstant = doc.NextFireInstant
	out.LastCompletedInstant = doc.LastCompletedInstant
	if !doc.CreatedInstant.IsZero() {
		out.CreatedInstant = doc.CreatedInstant
	}
	if doc.UpdatedAt != nil {
		out.UpdatedInstant = *doc.UpdatedAt
	}

	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// FieldEqual compares two normalized field values.
func FieldEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

func encodeFrequency(f FrequencySpec) *frequencyDoc {
	doc := &frequencyDoc{Type: f.Kind.String()}
	switch f.Kind {
	case FrequencyOnce:
		if !f.Date.IsZero() {
			doc.Date = f.Date.Format(dateLayout)
		}
	case FrequencyWeekly:
		doc.SelectedWeekdays = append([]int(nil), f.Weekdays...)
	case FrequencyMonthly:
		doc.DayOfMonth = f.DayOfMonth
	case FrequencyCustom:
		doc.IntervalValue = f.IntervalValue
		doc.IntervalUnit = string(f.IntervalUnit)
	case FrequencyMinutely:
		doc.MinutesFromNow = f.MinutesFromNow
	}
	return doc
}

func decodeFrequency(doc *frequencyDoc) (FrequencySpec, error) {
	if doc == nil {
		return FrequencySpec{}, newValidationError(ErrInvalidFrequency, FieldFrequency, "missing")
	}

	kind, err := resolveFrequencyKind(doc)
	if err != nil {
		return FrequencySpec{}, err
	}

	var f FrequencySpec
	switch kind {
	case FrequencyOnce:
		if doc.Date == "" {
			return FrequencySpec{}, newValidationError(ErrInvalidFrequency, "date", "missing")
		}
		date, err := time.Parse(dateLayout, doc.Date)
		if err != nil {
			return FrequencySpec{}, newValidationError(ErrInvalidFrequency, "date", err.Error())
		}
		f = Once(date)
	case FrequencyDaily:
		f = Daily()
	case FrequencyWeekly:
		f = Weekly(doc.SelectedWeekdays...)
	case FrequencyMonthly:
		f = Monthly(doc.DayOfMonth)
	case FrequencyHourly:
		f = Hourly()
	case FrequencyCustom:
		f = Custom(doc.IntervalValue, IntervalUnit(doc.IntervalUnit))
	case FrequencyMinutely:
		f = Minutely(doc.MinutesFromNow)
	}

	if err := f.Validate(); err != nil {
		return FrequencySpec{}, err
	}
	return f, nil
}

// resolveFrequencyKind settles the "type" key and the legacy numeric "id" key into one kind.
func resolveFrequencyKind(doc *frequencyDoc) (FrequencyKind, error) {
	var fromID FrequencyKind
	if doc.LegacyID != nil {
		k, ok := legacyFrequencyIDs[*doc.LegacyID]
		if !ok {
			return "", newValidationError(ErrInvalidFrequency, "id", fmt.Sprintf("unknown legacy id %d", *doc.LegacyID))
		}
		fromID = k
	}

	if doc.Type == "" {
		if fromID == "" {
			return "", newValidationError(ErrInvalidFrequency, "type", "missing")
		}
		return fromID, nil
	}

	kind := FrequencyKind(doc.Type)
	if err := (FrequencySpec{Kind: kind}).validKind(); err != nil {
		return "", err
	}
	if fromID != "" && fromID != kind {
		return "", newValidationError(ErrInvalidFrequency, "type", fmt.Sprintf("type %q disagrees with legacy id %d", doc.Type, *doc.LegacyID))
	}
	return kind, nil
}

func encodeTimeOfDay(t TimeOfDay) *timeOfDayDoc {
	h, m := t.Hour, t.Minute
	return &timeOfDayDoc{Hour: &h, Minute: &m}
}

func decodeTimeOfDay(doc *timeOfDayDoc) (TimeOfDay, error) {
	if doc == nil || doc.Hour == nil || doc.Minute == nil {
		return TimeOfDay{}, newValidationError(ErrInvalidRecord, FieldTimeOfDay, "hour and minute are required")
	}
	t := TimeOfDay{Hour: *doc.Hour, Minute: *doc.Minute}
	if err := t.Validate(); err != nil {
		return TimeOfDay{}, err
	}
	return t, nil
}
