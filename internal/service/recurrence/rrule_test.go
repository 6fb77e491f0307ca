package recurrence

import (
	"strings"
	"testing"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
)

func TestRuleString(t *testing.T) {
	dtstart := at(2025, 6, 11, 8, 0, 0)

	tests := []struct {
		name     string
		spec     domain.FrequencySpec
		tod      domain.TimeOfDay
		contains []string
	}{
		{
			name:     "weekly",
			spec:     domain.Weekly(1, 3),
			tod:      domain.TimeOfDay{Hour: 9, Minute: 30},
			contains: []string{"FREQ=WEEKLY", "BYDAY=MO,WE", "BYHOUR=9", "BYMINUTE=30"},
		},
		{
			name:     "monthly",
			spec:     domain.Monthly(15),
			tod:      domain.TimeOfDay{Hour: 7},
			contains: []string{"FREQ=MONTHLY", "BYMONTHDAY=15"},
		},
		{
			name:     "custom hours",
			spec:     domain.Custom(4, domain.IntervalHours),
			contains: []string{"FREQ=HOURLY", "INTERVAL=4"},
		},
		{
			name:     "once",
			spec:     domain.Once(at(2025, 7, 1, 0, 0, 0)),
			tod:      domain.TimeOfDay{Hour: 12},
			contains: []string{"FREQ=DAILY", "COUNT=1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RuleString(tt.spec, tt.tod, dtstart)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if strings.Contains(got, "DTSTART") {
				t.Errorf("rule should not carry DTSTART: %s", got)
			}
			for _, part := range tt.contains {
				if !strings.Contains(got, part) {
					t.Errorf("rule %q missing %q", got, part)
				}
			}
		})
	}
}

func TestRuleOption_AgreesWithComputeNext(t *testing.T) {
	spec := domain.Weekly(2, 6)
	tod := domain.TimeOfDay{Hour: 18, Minute: 15}
	ref := at(2025, 6, 11, 8, 0, 0)

	opt, err := RuleOption(spec, tod, ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rule, err := rrule.NewRRule(*opt)
	if err != nil {
		t.Fatalf("failed to build rule: %v", err)
	}

	for i := 0; i < 5; i++ {
		want := rule.After(ref, false)
		got, err := ComputeNext(spec, tod, ref)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !got.Equal(want) {
			t.Fatalf("ref=%v: got %v, rrule says %v", ref, got, want)
		}
		ref = want.Add(time.Hour)
	}
}
