package recurrence

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
)

var isoWeekdays = map[int]rrule.Weekday{
	1: rrule.MO,
	2: rrule.TU,
	3: rrule.WE,
	4: rrule.TH,
	5: rrule.FR,
	6: rrule.SA,
	7: rrule.SU,
}

// RuleOption builds the RFC 5545 equivalent of spec anchored at dtstart.
// Monthly rules use BYMONTHDAY and therefore skip short months instead of clamping.
func RuleOption(spec domain.FrequencySpec, tod domain.TimeOfDay, dtstart time.Time) (*rrule.ROption, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	opt := &rrule.ROption{
		Dtstart:  dtstart.Truncate(time.Minute),
		Interval: 1,
		Bysecond: []int{0},
	}

	switch spec.Kind {
	case domain.FrequencyOnce:
		opt.Freq = rrule.DAILY
		opt.Count = 1
		opt.Dtstart = time.Date(spec.Date.Year(), spec.Date.Month(), spec.Date.Day(), tod.Hour, tod.Minute, 0, 0, dtstart.Location())
	case domain.FrequencyDaily:
		opt.Freq = rrule.DAILY
		opt.Byhour = []int{tod.Hour}
		opt.Byminute = []int{tod.Minute}
	case domain.FrequencyWeekly:
		opt.Freq = rrule.WEEKLY
		opt.Byhour = []int{tod.Hour}
		opt.Byminute = []int{tod.Minute}
		for _, d := range spec.Weekdays {
			opt.Byweekday = append(opt.Byweekday, isoWeekdays[d])
		}
	case domain.FrequencyMonthly:
		opt.Freq = rrule.MONTHLY
		opt.Byhour = []int{tod.Hour}
		opt.Byminute = []int{tod.Minute}
		opt.Bymonthday = []int{spec.DayOfMonth}
	case domain.FrequencyHourly:
		opt.Freq = rrule.HOURLY
		opt.Byminute = []int{0}
	case domain.FrequencyCustom:
		opt.Interval = spec.IntervalValue
		switch spec.IntervalUnit {
		case domain.IntervalMinutes:
			opt.Freq = rrule.MINUTELY
		case domain.IntervalHours:
			opt.Freq = rrule.HOURLY
		case domain.IntervalDays:
			opt.Freq = rrule.DAILY
		}
	case domain.FrequencyMinutely:
		opt.Freq = rrule.MINUTELY
		opt.Interval = spec.MinutesFromNow
	}

	return opt, nil
}

// RuleString renders the RRULE body (without DTSTART) for the remote recurrence_rule column.
func RuleString(spec domain.FrequencySpec, tod domain.TimeOfDay, dtstart time.Time) (string, error) {
	opt, err := RuleOption(spec, tod, dtstart)
	if err != nil {
		return "", err
	}
	if _, err := rrule.NewRRule(*opt); err != nil {
		return "", fmt.Errorf("failed to build rrule: %w", err)
	}
	return opt.RRuleString(), nil
}
