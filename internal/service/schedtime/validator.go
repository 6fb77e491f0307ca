package schedtime

import (
	"time"

	"github.com/KasumiMercury/primind-remind-engine/internal/clock"
)

// DefaultMinLead is the hard floor between now and any scheduled fire.
const DefaultMinLead = time.Minute

// Validator enforces the minimum lead time on computed fire instants.
type Validator struct {
	clock   clock.Clock
	minLead time.Duration
}

func NewValidator(clk clock.Clock, minLead time.Duration) *Validator {
	if clk == nil {
		clk = clock.Real()
	}
	if minLead <= 0 {
		minLead = DefaultMinLead
	}
	return &Validator{
		clock:   clk,
		minLead: minLead,
	}
}

// Validate returns candidate, or now+minLead when candidate is closer than the floor.
func (v *Validator) Validate(candidate time.Time) time.Time {
	return v.floor(candidate, v.clock.Now())
}

// AdjustForConflict rolls a same-day candidate that already passed to the next day,
// then applies the floor. wasAdjusted reports whether the result differs from candidate.
func (v *Validator) AdjustForConflict(candidate time.Time) (time.Time, bool) {
	now := v.clock.Now()

	adjusted := candidate
	if candidate.Before(now) && sameDay(candidate, now) {
		adjusted = candidate.AddDate(0, 0, 1)
	}
	adjusted = v.floor(adjusted, now)

	return adjusted, !adjusted.Equal(candidate)
}

func (v *Validator) floor(candidate, now time.Time) time.Time {
	if candidate.Sub(now) < v.minLead {
		return now.Add(v.minLead)
	}
	return candidate
}

func sameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
