package domain

import (
	"errors"
	"testing"
	"time"
)

func TestFrequencySpec_Validate(t *testing.T) {
	tests := []struct {
		name    string
		spec    FrequencySpec
		wantErr bool
	}{
		{name: "once with date", spec: Once(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))},
		{name: "once without date", spec: FrequencySpec{Kind: FrequencyOnce}, wantErr: true},
		{name: "daily", spec: Daily()},
		{name: "hourly", spec: Hourly()},
		{name: "weekly", spec: Weekly(1, 3, 5)},
		{name: "weekly empty", spec: Weekly(), wantErr: true},
		{name: "weekly out of range", spec: Weekly(0, 8), wantErr: true},
		{name: "monthly", spec: Monthly(31)},
		{name: "monthly zero", spec: Monthly(0), wantErr: true},
		{name: "monthly too large", spec: Monthly(32), wantErr: true},
		{name: "custom minutes", spec: Custom(5, IntervalMinutes)},
		{name: "custom zero", spec: Custom(0, IntervalHours), wantErr: true},
		{name: "custom unknown unit", spec: Custom(2, IntervalUnit("weeks")), wantErr: true},
		{name: "minutely", spec: Minutely(2)},
		{name: "minutely zero", spec: Minutely(0), wantErr: true},
		{name: "unknown kind", spec: FrequencySpec{Kind: "yearly"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !IsValidation(err) {
					t.Errorf("expected validation error, got %T", err)
				}
				if !errors.Is(err, ErrInvalidFrequency) {
					t.Errorf("expected ErrInvalidFrequency, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestWeekly_SortsAndDeduplicates(t *testing.T) {
	spec := Weekly(5, 1, 5, 3)

	want := []int{1, 3, 5}
	if len(spec.Weekdays) != len(want) {
		t.Fatalf("got %v, want %v", spec.Weekdays, want)
	}
	for i := range want {
		if spec.Weekdays[i] != want[i] {
			t.Errorf("got %v, want %v", spec.Weekdays, want)
		}
	}
	if !spec.HasWeekday(3) || spec.HasWeekday(2) {
		t.Errorf("unexpected weekday membership for %v", spec.Weekdays)
	}
}

func TestISOWeekday(t *testing.T) {
	if got := ISOWeekday(time.Sunday); got != 7 {
		t.Errorf("Sunday: got %d, want 7", got)
	}
	if got := ISOWeekday(time.Monday); got != 1 {
		t.Errorf("Monday: got %d, want 1", got)
	}
	if got := ISOWeekday(time.Wednesday); got != 3 {
		t.Errorf("Wednesday: got %d, want 3", got)
	}
}

func TestTimeOfDay_On(t *testing.T) {
	loc := time.FixedZone("JST", 9*60*60)
	day := time.Date(2025, 6, 10, 23, 30, 0, 0, loc)

	got := TimeOfDay{Hour: 9, Minute: 15}.On(day)
	want := time.Date(2025, 6, 10, 9, 15, 0, 0, loc)

	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestFrequencySpec_Equal(t *testing.T) {
	a := Once(time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC))
	b := Once(time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))
	if !a.Equal(b) {
		t.Error("once specs on the same date should be equal")
	}
	if Weekly(1, 2).Equal(Weekly(1, 3)) {
		t.Error("different weekday sets should differ")
	}
	if Daily().Equal(Hourly()) {
		t.Error("different kinds should differ")
	}
}
