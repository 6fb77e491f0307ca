package domain

import (
	"fmt"
	"slices"
	"time"
)

// FrequencyKind tags the variant held by a FrequencySpec.
type FrequencyKind string

const (
	FrequencyOnce     FrequencyKind = "once"
	FrequencyDaily    FrequencyKind = "daily"
	FrequencyWeekly   FrequencyKind = "weekly"
	FrequencyMonthly  FrequencyKind = "monthly"
	FrequencyHourly   FrequencyKind = "hourly"
	FrequencyCustom   FrequencyKind = "custom"
	FrequencyMinutely FrequencyKind = "minutely"
)

func (k FrequencyKind) String() string {
	return string(k)
}

// IntervalUnit is the unit of a custom interval.
type IntervalUnit string

const (
	IntervalMinutes IntervalUnit = "minutes"
	IntervalHours   IntervalUnit = "hours"
	IntervalDays    IntervalUnit = "days"
)

// Duration returns the length of one unit.
func (u IntervalUnit) Duration() (time.Duration, bool) {
	switch u {
	case IntervalMinutes:
		return time.Minute, true
	case IntervalHours:
		return time.Hour, true
	case IntervalDays:
		return 24 * time.Hour, true
	default:
		return 0, false
	}
}

// FrequencySpec is a tagged union. Only the fields of the active Kind are meaningful.
type FrequencySpec struct {
	Kind FrequencyKind

	// Once, calendar date only; clock and zone are ignored
	Date time.Time
	// Weekly, ISO numbering 1=Monday..7=Sunday
	Weekdays []int
	// Monthly
	DayOfMonth int
	// Custom
	IntervalValue int
	IntervalUnit  IntervalUnit
	// Minutely
	MinutesFromNow int
}

func Once(date time.Time) FrequencySpec {
	return FrequencySpec{Kind: FrequencyOnce, Date: DateOnly(date)}
}

// DateOnly truncates t to its calendar date at UTC midnight.
func DateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func Daily() FrequencySpec {
	return FrequencySpec{Kind: FrequencyDaily}
}

func Weekly(weekdays ...int) FrequencySpec {
	days := slices.Clone(weekdays)
	slices.Sort(days)
	return FrequencySpec{Kind: FrequencyWeekly, Weekdays: slices.Compact(days)}
}

func Monthly(dayOfMonth int) FrequencySpec {
	return FrequencySpec{Kind: FrequencyMonthly, DayOfMonth: dayOfMonth}
}

func Hourly() FrequencySpec {
	return FrequencySpec{Kind: FrequencyHourly}
}

func Custom(value int, unit IntervalUnit) FrequencySpec {
	return FrequencySpec{Kind: FrequencyCustom, IntervalValue: value, IntervalUnit: unit}
}

func Minutely(minutesFromNow int) FrequencySpec {
	return FrequencySpec{Kind: FrequencyMinutely, MinutesFromNow: minutesFromNow}
}

// Validate rejects malformed specs. It never coerces.
func (f FrequencySpec) Validate() error {
	switch f.Kind {
	case FrequencyOnce:
		if f.Date.IsZero() {
			return newValidationError(ErrInvalidFrequency, "date", "once frequency requires a date")
		}
	case FrequencyDaily, FrequencyHourly:
	case FrequencyWeekly:
		if len(f.Weekdays) == 0 {
			return newValidationError(ErrInvalidFrequency, "selectedWeekdays", "weekly frequency requires at least one weekday")
		}
		for _, d := range f.Weekdays {
			if d < 1 || d > 7 {
				return newValidationError(ErrInvalidFrequency, "selectedWeekdays", fmt.Sprintf("weekday %d out of range 1..7", d))
			}
		}
	case FrequencyMonthly:
		if f.DayOfMonth < 1 || f.DayOfMonth > 31 {
			return newValidationError(ErrInvalidFrequency, "dayOfMonth", fmt.Sprintf("day %d out of range 1..31", f.DayOfMonth))
		}
	case FrequencyCustom:
		if f.IntervalValue <= 0 {
			return newValidationError(ErrInvalidFrequency, "intervalValue", "custom interval must be positive")
		}
		if _, ok := f.IntervalUnit.Duration(); !ok {
			return newValidationError(ErrInvalidFrequency, "intervalUnit", fmt.Sprintf("unknown unit %q", f.IntervalUnit))
		}
	case FrequencyMinutely:
		if f.MinutesFromNow <= 0 {
			return newValidationError(ErrInvalidFrequency, "minutesFromNow", "minutely frequency must be positive")
		}
	default:
		return newValidationError(ErrInvalidFrequency, "type", fmt.Sprintf("unknown frequency %q", f.Kind))
	}
	return nil
}

func (f FrequencySpec) validKind() error {
	switch f.Kind {
	case FrequencyOnce, FrequencyDaily, FrequencyWeekly, FrequencyMonthly,
		FrequencyHourly, FrequencyCustom, FrequencyMinutely:
		return nil
	default:
		return newValidationError(ErrInvalidFrequency, "type", fmt.Sprintf("unknown frequency %q", f.Kind))
	}
}

// IsRecurring reports whether the spec produces more than one occurrence.
func (f FrequencySpec) IsRecurring() bool {
	return f.Kind != FrequencyOnce
}

// HasWeekday reports whether the ISO weekday is selected.
func (f FrequencySpec) HasWeekday(isoWeekday int) bool {
	return slices.Contains(f.Weekdays, isoWeekday)
}

// Equal compares two specs by their active variant only.
func (f FrequencySpec) Equal(o FrequencySpec) bool {
	if f.Kind != o.Kind {
		return false
	}
	switch f.Kind {
	case FrequencyOnce:
		return DateOnly(f.Date).Equal(DateOnly(o.Date))
	case FrequencyWeekly:
		return slices.Equal(f.Weekdays, o.Weekdays)
	case FrequencyMonthly:
		return f.DayOfMonth == o.DayOfMonth
	case FrequencyCustom:
		return f.IntervalValue == o.IntervalValue && f.IntervalUnit == o.IntervalUnit
	case FrequencyMinutely:
		return f.MinutesFromNow == o.MinutesFromNow
	default:
		return true
	}
}

// ISOWeekday converts a time.Weekday to 1=Monday..7=Sunday.
func ISOWeekday(d time.Weekday) int {
	if d == time.Sunday {
		return 7
	}
	return int(d)
}

// TimeOfDay is a wall clock hour and minute.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) Validate() error {
	if t.Hour < 0 || t.Hour > 23 {
		return newValidationError(ErrInvalidRecord, "timeOfDay.hour", fmt.Sprintf("hour %d out of range 0..23", t.Hour))
	}
	if t.Minute < 0 || t.Minute > 59 {
		return newValidationError(ErrInvalidRecord, "timeOfDay.minute", fmt.Sprintf("minute %d out of range 0..59", t.Minute))
	}
	return nil
}

// On returns the instant at this time of day on the calendar date of day, in day's location.
func (t TimeOfDay) On(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, 0, 0, day.Location())
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}
