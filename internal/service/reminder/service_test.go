package reminder

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/dispatch"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/trigger"
)

func TestService_Create(t *testing.T) {
	tests := []struct {
		name         string
		input        Input
		expectedNext time.Time
		expectedErr  error
		suggested    time.Time
	}{
		{
			name: "custom interval starts from now",
			input: Input{
				Title:     "Drink water",
				Frequency: domain.Custom(5, domain.IntervalMinutes),
				TimeOfDay: at(0, 0),
			},
			expectedNext: testStart.Add(5 * time.Minute),
		},
		{
			name: "daily later today",
			input: Input{
				Title:     "Stretch",
				Frequency: domain.Daily(),
				TimeOfDay: at(9, 0),
			},
			expectedNext: time.Date(2025, 6, 11, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "one-shot earlier today needs confirmation",
			input: Input{
				Title:     "Call back",
				Frequency: domain.Once(testStart),
				TimeOfDay: at(7, 0),
			},
			expectedErr: ErrScheduleAdjusted,
			suggested:   time.Date(2025, 6, 12, 7, 0, 0, 0, time.UTC),
		},
		{
			name: "one-shot earlier today accepted",
			input: Input{
				Title:            "Call back",
				Frequency:        domain.Once(testStart),
				TimeOfDay:        at(7, 0),
				AcceptAdjustment: true,
			},
			expectedNext: time.Date(2025, 6, 12, 7, 0, 0, 0, time.UTC),
		},
		{
			name: "one-shot in the past",
			input: Input{
				Title:     "Missed",
				Frequency: domain.Once(testStart.AddDate(0, 0, -1)),
				TimeOfDay: at(7, 0),
			},
			expectedErr: ErrNoFutureOccurrence,
		},
		{
			name: "malformed frequency",
			input: Input{
				Title:     "Broken",
				Frequency: domain.Custom(0, domain.IntervalMinutes),
				TimeOfDay: at(7, 0),
			},
			expectedErr: domain.ErrInvalidFrequency,
		},
		{
			name: "missing title",
			input: Input{
				Frequency: domain.Daily(),
				TimeOfDay: at(7, 0),
			},
			expectedErr: domain.ErrInvalidRecord,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()

			created, err := h.service.Create(ctx, tt.input)

			if tt.expectedErr != nil {
				if !errors.Is(err, tt.expectedErr) {
					t.Fatalf("expected error %v, got %v", tt.expectedErr, err)
				}
				if !tt.suggested.IsZero() {
					var adj *AdjustmentError
					if !errors.As(err, &adj) {
						t.Fatalf("expected AdjustmentError, got %T", err)
					}
					if !adj.Suggested.Equal(tt.suggested) {
						t.Errorf("expected suggestion %v, got %v", tt.suggested, adj.Suggested)
					}
				}
				if len(h.syncer.ops()) != 0 {
					t.Errorf("expected nothing queued, got %v", h.syncer.ops())
				}
				if h.scheduler.ArmedCount() != 0 {
					t.Errorf("expected nothing armed, got %d", h.scheduler.ArmedCount())
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if created.NextFireInstant == nil || !created.NextFireInstant.Equal(tt.expectedNext) {
				t.Errorf("expected next fire %v, got %v", tt.expectedNext, created.NextFireInstant)
			}
			if created.Status != domain.StatusActive {
				t.Errorf("expected active, got %s", created.Status)
			}

			fireAt, ok := h.scheduler.FireAt(created.ID)
			if !ok || !fireAt.Equal(tt.expectedNext) {
				t.Errorf("expected armed for %v, got %v (armed=%v)", tt.expectedNext, fireAt, ok)
			}
			if ops := h.syncer.ops(); !slices.Equal(ops, []domain.Operation{domain.OperationInsert}) {
				t.Errorf("expected one insert queued, got %v", ops)
			}
		})
	}
}

func TestService_CreateWithoutNotifications(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	disabled := false

	created, err := h.service.Create(ctx, Input{
		Title:               "Quiet",
		Frequency:           domain.Daily(),
		TimeOfDay:           at(9, 0),
		EnableNotifications: &disabled,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if created.NextFireInstant == nil {
		t.Fatal("expected a next fire instant")
	}
	if state := h.scheduler.State(created.ID); state != trigger.StateUnarmed {
		t.Errorf("expected unarmed, got %s", state)
	}
}

func TestService_Update(t *testing.T) {
	tests := []struct {
		name         string
		timeOfDay    domain.TimeOfDay
		title        string
		expectedNext time.Time
	}{
		{
			name:         "title only keeps the schedule",
			timeOfDay:    at(9, 0),
			title:        "Stretch more",
			expectedNext: time.Date(2025, 6, 11, 9, 0, 0, 0, time.UTC),
		},
		{
			name:         "time of day recomputes",
			timeOfDay:    at(10, 30),
			title:        "Stretch",
			expectedNext: time.Date(2025, 6, 11, 10, 30, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()

			created, err := h.service.Create(ctx, Input{Title: "Stretch", Frequency: domain.Daily(), TimeOfDay: at(9, 0)})
			if err != nil {
				t.Fatalf("create: %v", err)
			}

			updated, err := h.service.Update(ctx, created.ID, Input{
				Title:     tt.title,
				Frequency: domain.Daily(),
				TimeOfDay: tt.timeOfDay,
			})
			if err != nil {
				t.Fatalf("update: %v", err)
			}

			if updated.Title != tt.title {
				t.Errorf("expected title %q, got %q", tt.title, updated.Title)
			}
			if !updated.NextFireInstant.Equal(tt.expectedNext) {
				t.Errorf("expected next fire %v, got %v", tt.expectedNext, updated.NextFireInstant)
			}
			fireAt, _ := h.scheduler.FireAt(created.ID)
			if !fireAt.Equal(tt.expectedNext) {
				t.Errorf("expected armed for %v, got %v", tt.expectedNext, fireAt)
			}
			if ops := h.syncer.ops(); !slices.Equal(ops, []domain.Operation{domain.OperationInsert, domain.OperationUpdate}) {
				t.Errorf("unexpected queued ops %v", ops)
			}
		})
	}
}

func TestService_Delete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.service.Create(ctx, Input{Title: "Stretch", Frequency: domain.Daily(), TimeOfDay: at(9, 0)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := h.service.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := h.service.Get(ctx, created.ID); !errors.Is(err, domain.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
	if state := h.scheduler.State(created.ID); state != trigger.StateUnarmed {
		t.Errorf("expected unarmed, got %s", state)
	}
	if ops := h.syncer.ops(); !slices.Equal(ops, []domain.Operation{domain.OperationInsert, domain.OperationDelete}) {
		t.Errorf("unexpected queued ops %v", ops)
	}
	if err := h.service.Delete(ctx, created.ID); !errors.Is(err, domain.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound on second delete, got %v", err)
	}
}

func TestService_DeleteQueuedWhenExecutorRefuses(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.service.Create(ctx, Input{Title: "Stretch", Frequency: domain.Daily(), TimeOfDay: at(9, 0)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	stopped := dispatch.NewExecutor(1, 1, h.log)
	_ = stopped.Stop()
	h.service.async = stopped

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := h.service.Delete(cancelled, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if ops := h.syncer.ops(); !slices.Equal(ops, []domain.Operation{domain.OperationInsert, domain.OperationDelete}) {
		t.Errorf("unexpected queued ops %v", ops)
	}
}

func TestService_CompleteRestartsFromCompletion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.service.Create(ctx, Input{
		Title:     "Drink water",
		Frequency: domain.Custom(5, domain.IntervalMinutes),
		TimeOfDay: at(0, 0),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// fires at 08:05 and advances to 08:10
	h.clock.Advance(5 * time.Minute)
	// completed late, at 08:07
	h.clock.Advance(2 * time.Minute)

	completed, err := h.service.Complete(ctx, created.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	expected := testStart.Add(12 * time.Minute)
	if !completed.NextFireInstant.Equal(expected) {
		t.Errorf("expected next fire %v, got %v", expected, completed.NextFireInstant)
	}
	if completed.CompletionCount != 1 {
		t.Errorf("expected completion count 1, got %d", completed.CompletionCount)
	}
	if completed.LastCompletedInstant == nil || !completed.LastCompletedInstant.Equal(testStart.Add(7*time.Minute)) {
		t.Errorf("unexpected last completed instant %v", completed.LastCompletedInstant)
	}
	fireAt, _ := h.scheduler.FireAt(created.ID)
	if !fireAt.Equal(expected) {
		t.Errorf("expected armed for %v, got %v", expected, fireAt)
	}
}

func TestService_CompleteUntilLimit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.service.Create(ctx, Input{
		Title:       "Stretch",
		Frequency:   domain.Daily(),
		TimeOfDay:   at(9, 0),
		RepeatLimit: 2,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	first, err := h.service.Complete(ctx, created.ID)
	if err != nil {
		t.Fatalf("first complete: %v", err)
	}
	tomorrow := time.Date(2025, 6, 12, 9, 0, 0, 0, time.UTC)
	if first.Status != domain.StatusActive || !first.NextFireInstant.Equal(tomorrow) {
		t.Errorf("expected active until %v, got %s %v", tomorrow, first.Status, first.NextFireInstant)
	}

	second, err := h.service.Complete(ctx, created.ID)
	if err != nil {
		t.Fatalf("second complete: %v", err)
	}
	if second.Status != domain.StatusCompleted {
		t.Errorf("expected completed, got %s", second.Status)
	}
	if second.NextFireInstant != nil {
		t.Errorf("expected no next fire, got %v", second.NextFireInstant)
	}
	if state := h.scheduler.State(created.ID); state != trigger.StateUnarmed {
		t.Errorf("expected unarmed, got %s", state)
	}

	if _, err := h.service.Complete(ctx, created.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestService_CompleteOneShot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.service.Create(ctx, Input{
		Title:     "Dentist",
		Frequency: domain.Once(testStart.AddDate(0, 0, 3)),
		TimeOfDay: at(14, 0),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	completed, err := h.service.Complete(ctx, created.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != domain.StatusCompleted || completed.NextFireInstant != nil {
		t.Errorf("expected completed without next fire, got %s %v", completed.Status, completed.NextFireInstant)
	}
}

func TestService_PauseResume(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.service.Create(ctx, Input{Title: "Stretch", Frequency: domain.Daily(), TimeOfDay: at(9, 0)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	paused, err := h.service.Pause(ctx, created.ID)
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if paused.Status != domain.StatusPaused {
		t.Errorf("expected paused, got %s", paused.Status)
	}
	if state := h.scheduler.State(created.ID); state != trigger.StateUnarmed {
		t.Errorf("expected unarmed while paused, got %s", state)
	}

	// pausing again is a no-op
	if _, err := h.service.Pause(ctx, created.ID); err != nil {
		t.Fatalf("second pause: %v", err)
	}
	if ops := h.syncer.ops(); len(ops) != 2 {
		t.Errorf("expected insert and one update, got %v", ops)
	}

	h.clock.Advance(2 * time.Hour)

	resumed, err := h.service.Resume(ctx, created.ID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	tomorrow := time.Date(2025, 6, 12, 9, 0, 0, 0, time.UTC)
	if resumed.Status != domain.StatusActive || !resumed.NextFireInstant.Equal(tomorrow) {
		t.Errorf("expected active at %v, got %s %v", tomorrow, resumed.Status, resumed.NextFireInstant)
	}
	fireAt, ok := h.scheduler.FireAt(created.ID)
	if !ok || !fireAt.Equal(tomorrow) {
		t.Errorf("expected armed for %v, got %v", tomorrow, fireAt)
	}

	if _, err := h.service.Resume(ctx, created.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestService_Snooze(t *testing.T) {
	tests := []struct {
		name         string
		duration     time.Duration
		expectedNext time.Time
		expectedErr  error
	}{
		{
			name:         "ten minutes",
			duration:     10 * time.Minute,
			expectedNext: testStart.Add(10 * time.Minute),
		},
		{
			name:         "below the minimum lead",
			duration:     10 * time.Second,
			expectedNext: testStart.Add(time.Minute),
		},
		{
			name:        "non-positive",
			duration:    0,
			expectedErr: ErrInvalidTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()

			created, err := h.service.Create(ctx, Input{Title: "Stretch", Frequency: domain.Daily(), TimeOfDay: at(9, 0)})
			if err != nil {
				t.Fatalf("create: %v", err)
			}

			snoozed, err := h.service.Snooze(ctx, created.ID, tt.duration)
			if tt.expectedErr != nil {
				if !errors.Is(err, tt.expectedErr) {
					t.Fatalf("expected %v, got %v", tt.expectedErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("snooze: %v", err)
			}

			if snoozed.Status != domain.StatusSnoozed {
				t.Errorf("expected snoozed, got %s", snoozed.Status)
			}
			if !snoozed.NextFireInstant.Equal(tt.expectedNext) {
				t.Errorf("expected next fire %v, got %v", tt.expectedNext, snoozed.NextFireInstant)
			}
			fireAt, _ := h.scheduler.FireAt(created.ID)
			if !fireAt.Equal(tt.expectedNext) {
				t.Errorf("expected armed for %v, got %v", tt.expectedNext, fireAt)
			}
		})
	}
}

func TestService_SnoozeCompletedRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.service.Create(ctx, Input{
		Title:     "Dentist",
		Frequency: domain.Once(testStart.AddDate(0, 0, 1)),
		TimeOfDay: at(14, 0),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := h.service.Complete(ctx, created.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if _, err := h.service.Snooze(ctx, created.ID, time.Hour); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if _, err := h.service.Pause(ctx, created.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition on pause, got %v", err)
	}
}

func TestService_DrainNotifier(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	nudges := 0
	h.service.SetDrainNotifier(func() { nudges++ })

	created, err := h.service.Create(ctx, Input{Title: "Stretch", Frequency: domain.Daily(), TimeOfDay: at(9, 0)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := h.service.Pause(ctx, created.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}

	if nudges != 2 {
		t.Errorf("expected 2 nudges, got %d", nudges)
	}
}
