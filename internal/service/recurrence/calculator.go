package recurrence

import (
	"time"

	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
)

// MinLead is the minimum distance between the reference instant and a same-day candidate.
const MinLead = time.Minute

// ComputeNext returns the next fire instant strictly derived from spec, tod and ref,
// or nil when the spec has no future occurrence. The result is expressed in ref's location.
// An error is returned only for a malformed spec.
func ComputeNext(spec domain.FrequencySpec, tod domain.TimeOfDay, ref time.Time) (*time.Time, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if err := tod.Validate(); err != nil {
		return nil, err
	}

	var next time.Time
	switch spec.Kind {
	case domain.FrequencyOnce:
		candidate := time.Date(spec.Date.Year(), spec.Date.Month(), spec.Date.Day(), tod.Hour, tod.Minute, 0, 0, ref.Location())
		if candidate.Before(ref) {
			return nil, nil
		}
		next = candidate
	case domain.FrequencyDaily:
		next = nextDaily(tod, ref)
	case domain.FrequencyWeekly:
		next = nextWeekly(spec, tod, ref)
	case domain.FrequencyMonthly:
		next = nextMonthly(spec.DayOfMonth, tod, ref)
	case domain.FrequencyHourly:
		next = nextHour(ref)
	case domain.FrequencyCustom:
		next = addInterval(ref, spec.IntervalValue, spec.IntervalUnit)
	case domain.FrequencyMinutely:
		next = ref.Add(time.Duration(spec.MinutesFromNow) * time.Minute)
	}

	return &next, nil
}

// ComputeNextAfterCompletion computes the occurrence following a completion at now.
// Daily and hourly cadences restart from now; every other kind delegates to ComputeNext.
func ComputeNextAfterCompletion(spec domain.FrequencySpec, tod domain.TimeOfDay, now time.Time) (*time.Time, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	switch spec.Kind {
	case domain.FrequencyDaily:
		if err := tod.Validate(); err != nil {
			return nil, err
		}
		next := time.Date(now.Year(), now.Month(), now.Day()+1, tod.Hour, tod.Minute, 0, 0, now.Location())
		return &next, nil
	case domain.FrequencyHourly:
		next := now.Add(time.Hour)
		return &next, nil
	default:
		return ComputeNext(spec, tod, now)
	}
}

func nextDaily(tod domain.TimeOfDay, ref time.Time) time.Time {
	candidate := tod.On(ref)
	if candidate.Before(ref) || candidate.Sub(ref) < MinLead {
		return time.Date(ref.Year(), ref.Month(), ref.Day()+1, tod.Hour, tod.Minute, 0, 0, ref.Location())
	}
	return candidate
}

// nextWeekly scans today through the same weekday next week. Only today is held to MinLead.
func nextWeekly(spec domain.FrequencySpec, tod domain.TimeOfDay, ref time.Time) time.Time {
	for i := 0; i <= 7; i++ {
		day := time.Date(ref.Year(), ref.Month(), ref.Day()+i, tod.Hour, tod.Minute, 0, 0, ref.Location())
		if !spec.HasWeekday(domain.ISOWeekday(day.Weekday())) {
			continue
		}
		if i == 0 && day.Sub(ref) < MinLead {
			continue
		}
		return day
	}
	// unreachable for a validated spec: i == 7 always matches today's weekday
	return time.Date(ref.Year(), ref.Month(), ref.Day()+7, tod.Hour, tod.Minute, 0, 0, ref.Location())
}

func nextMonthly(dayOfMonth int, tod domain.TimeOfDay, ref time.Time) time.Time {
	year, month := ref.Year(), ref.Month()

	candidate := monthCandidate(year, month, dayOfMonth, tod, ref.Location())
	if candidate.After(ref) {
		return candidate
	}

	if month == time.December {
		year, month = year+1, time.January
	} else {
		month++
	}
	return monthCandidate(year, month, dayOfMonth, tod, ref.Location())
}

// monthCandidate clamps dayOfMonth to the month length so day 31 lands on the last day.
func monthCandidate(year int, month time.Month, dayOfMonth int, tod domain.TimeOfDay, loc *time.Location) time.Time {
	day := min(dayOfMonth, DaysIn(year, month))
	return time.Date(year, month, day, tod.Hour, tod.Minute, 0, 0, loc)
}

// DaysIn returns the number of days of month in year.
func DaysIn(year int, month time.Month) int {
	switch month {
	case time.February:
		if isLeap(year) {
			return 29
		}
		return 28
	case time.April, time.June, time.September, time.November:
		return 30
	default:
		return 31
	}
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

func nextHour(ref time.Time) time.Time {
	top := time.Date(ref.Year(), ref.Month(), ref.Day(), ref.Hour(), 0, 0, 0, ref.Location())
	return top.Add(time.Hour)
}

func addInterval(ref time.Time, value int, unit domain.IntervalUnit) time.Time {
	if unit == domain.IntervalDays {
		return ref.AddDate(0, 0, value)
	}
	d, _ := unit.Duration()
	return ref.Add(time.Duration(value) * d)
}
