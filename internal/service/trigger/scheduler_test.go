package trigger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/KasumiMercury/primind-remind-engine/internal/clock"
	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
	"github.com/KasumiMercury/primind-remind-engine/internal/infra/taskqueue"
)

type fakeFallback struct {
	mu      sync.Mutex
	active  bool
	reports [][2]int
}

func (f *fakeFallback) InFallback() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *fakeFallback) ReportArmBatch(ctx context.Context, total, failed int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, [2]int{total, failed})
	if total > 0 && failed*2 > total {
		f.active = true
		return true
	}
	return false
}

type fireRecorder struct {
	mu    sync.Mutex
	fires []int64
	at    []time.Time
}

func (r *fireRecorder) record(ctx context.Context, id int64, scheduledAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fires = append(r.fires, id)
	r.at = append(r.at, scheduledAt)
}

func (r *fireRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fires)
}

var testStart = time.Date(2025, 6, 11, 8, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T, queue taskqueue.TaskQueue, fb Fallback) (*Scheduler, *clock.Fake, *fireRecorder) {
	t.Helper()
	clk := clock.NewFake(testStart)
	s := NewScheduler(Config{RetryDelay: time.Millisecond}, queue, fb, clk, nil, nil, nil)
	rec := &fireRecorder{}
	s.OnFire(context.Background(), rec.record)
	return s, clk, rec
}

func payload(id int64) domain.NotificationPayload {
	return domain.NotificationPayload{RecordID: id, Title: "t", Category: "c", Action: domain.ActionFire}
}

func TestScheduler_ArmThenDisarm(t *testing.T) {
	s, clk, rec := newTestScheduler(t, nil, nil)
	ctx := context.Background()
	fireAt := testStart.Add(10 * time.Minute)

	if err := s.Arm(ctx, fireAt, payload(1)); err != nil {
		t.Fatalf("arm: %v", err)
	}
	if got := s.State(1); got != StateArmed {
		t.Fatalf("state after arm: got %s", got)
	}

	s.Disarm(ctx, 1)
	if got := s.State(1); got != StateUnarmed {
		t.Fatalf("state after disarm: got %s", got)
	}

	clk.Advance(time.Hour)
	if rec.count() != 0 {
		t.Errorf("disarmed trigger fired %d times", rec.count())
	}
}

func TestScheduler_DisarmUnarmedIsNoop(t *testing.T) {
	s, _, _ := newTestScheduler(t, nil, nil)
	s.Disarm(context.Background(), 99)
	if s.State(99) != StateUnarmed {
		t.Error("expected unarmed")
	}
}

func TestScheduler_ArmIsIdempotent(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	queue := taskqueue.NewMockTaskQueue(ctrl)
	queue.EXPECT().
		RegisterTrigger(gomock.Any(), gomock.Any()).
		Return(&taskqueue.TaskResponse{}, nil).
		Times(1)
	queue.EXPECT().DeleteTask(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	s, clk, rec := newTestScheduler(t, queue, nil)
	ctx := context.Background()
	fireAt := testStart.Add(5 * time.Minute)

	_ = s.Arm(ctx, fireAt, payload(1))
	_ = s.Arm(ctx, fireAt, payload(1))

	if s.ArmedCount() != 1 {
		t.Fatalf("armed count: got %d, want 1", s.ArmedCount())
	}

	clk.Advance(10 * time.Minute)
	if rec.count() != 1 {
		t.Errorf("fires: got %d, want 1", rec.count())
	}
	if s.State(1) != StateUnarmed {
		t.Errorf("state after fire: got %s", s.State(1))
	}
}

func TestScheduler_RearmReplacesTrigger(t *testing.T) {
	s, clk, rec := newTestScheduler(t, nil, nil)
	ctx := context.Background()

	_ = s.Arm(ctx, testStart.Add(5*time.Minute), payload(1))
	_ = s.Arm(ctx, testStart.Add(20*time.Minute), payload(1))

	clk.Advance(10 * time.Minute)
	if rec.count() != 0 {
		t.Fatal("replaced trigger fired")
	}

	clk.Advance(10 * time.Minute)
	if rec.count() != 1 || !rec.at[0].Equal(testStart.Add(20*time.Minute)) {
		t.Errorf("fires: %v", rec.at)
	}
}

func TestScheduler_PastTriggerDropped(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	queue := taskqueue.NewMockTaskQueue(ctrl)

	s, clk, rec := newTestScheduler(t, queue, nil)

	err := s.Arm(context.Background(), testStart.Add(-time.Minute), payload(1))
	if err != nil {
		t.Fatalf("past arm should not error, got %v", err)
	}
	if s.State(1) != StateUnarmed {
		t.Error("past trigger must not be armed")
	}

	clk.Advance(time.Hour)
	if rec.count() != 0 {
		t.Error("past trigger must never fire")
	}
}

func TestScheduler_ArmRetriesThenLeavesUnarmed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	queue := taskqueue.NewMockTaskQueue(ctrl)
	queue.EXPECT().
		RegisterTrigger(gomock.Any(), gomock.Any()).
		Return(nil, errors.New("unavailable")).
		Times(3)

	s, _, _ := newTestScheduler(t, queue, nil)

	err := s.Arm(context.Background(), testStart.Add(time.Hour), payload(1))
	if err == nil {
		t.Fatal("expected error")
	}
	if s.State(1) != StateUnarmed {
		t.Errorf("state: got %s, want unarmed", s.State(1))
	}
}

func TestScheduler_ArmSucceedsOnRetry(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	queue := taskqueue.NewMockTaskQueue(ctrl)
	gomock.InOrder(
		queue.EXPECT().RegisterTrigger(gomock.Any(), gomock.Any()).Return(nil, errors.New("blip")),
		queue.EXPECT().RegisterTrigger(gomock.Any(), gomock.Any()).Return(&taskqueue.TaskResponse{}, nil),
	)

	s, _, _ := newTestScheduler(t, queue, nil)

	if err := s.Arm(context.Background(), testStart.Add(time.Hour), payload(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.State(1) != StateArmed {
		t.Errorf("state: got %s", s.State(1))
	}
}

func TestScheduler_DisarmDeletesPersistentTask(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	fireAt := testStart.Add(time.Hour)
	queue := taskqueue.NewMockTaskQueue(ctrl)
	queue.EXPECT().RegisterTrigger(gomock.Any(), gomock.Any()).Return(&taskqueue.TaskResponse{}, nil)
	queue.EXPECT().DeleteTask(gomock.Any(), taskqueue.TaskName(1, fireAt)).Return(nil)

	s, _, _ := newTestScheduler(t, queue, nil)
	ctx := context.Background()

	_ = s.Arm(ctx, fireAt, payload(1))
	s.Disarm(ctx, 1)
}

func TestScheduler_FallbackMakesArmNoop(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	queue := taskqueue.NewMockTaskQueue(ctrl)
	fb := &fakeFallback{active: true}

	s, clk, rec := newTestScheduler(t, queue, fb)
	ctx := context.Background()
	next := testStart.Add(time.Hour)

	_ = s.Arm(ctx, testStart.Add(time.Minute*5), payload(1))
	summary := s.ArmAll(ctx, []*domain.ReminderRecord{
		{ID: 2, Status: domain.StatusActive, EnableNotifications: true, NextFireInstant: &next},
	})

	if !summary.Skipped {
		t.Error("sweep should be skipped in fallback")
	}
	if s.ArmedCount() != 0 {
		t.Errorf("armed count: got %d", s.ArmedCount())
	}
	clk.Advance(2 * time.Hour)
	if rec.count() != 0 {
		t.Error("nothing should fire in fallback")
	}
}

func TestScheduler_ArmAllIsolatesFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	queue := taskqueue.NewMockTaskQueue(ctrl)
	queue.EXPECT().
		RegisterTrigger(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, task *taskqueue.TriggerTask) (*taskqueue.TaskResponse, error) {
			if task.Payload.RecordID == 2 {
				return nil, errors.New("rejected")
			}
			return &taskqueue.TaskResponse{Name: task.Name}, nil
		}).
		AnyTimes()

	fb := &fakeFallback{}
	s, _, _ := newTestScheduler(t, queue, fb)

	future := testStart.Add(time.Hour)
	past := testStart.Add(-time.Hour)
	records := []*domain.ReminderRecord{
		{ID: 1, Status: domain.StatusActive, EnableNotifications: true, NextFireInstant: &future},
		{ID: 2, Status: domain.StatusActive, EnableNotifications: true, NextFireInstant: &future},
		{ID: 3, Status: domain.StatusActive, EnableNotifications: true, NextFireInstant: &future},
		{ID: 4, Status: domain.StatusSnoozed, EnableNotifications: true, NextFireInstant: &past},
		{ID: 5, Status: domain.StatusPaused, EnableNotifications: true, NextFireInstant: &future},
		{ID: 6, Status: domain.StatusActive, EnableNotifications: false, NextFireInstant: &future},
	}

	summary := s.ArmAll(context.Background(), records)

	if summary.Total != 4 || summary.Armed != 2 || summary.Failed != 1 || summary.Dropped != 1 {
		t.Errorf("summary: got %+v", summary)
	}
	if s.State(1) != StateArmed || s.State(3) != StateArmed {
		t.Error("healthy records must stay armed despite a failing neighbour")
	}
	if fb.InFallback() {
		t.Error("one failure in four must not enter fallback")
	}
	if len(fb.reports) != 1 || fb.reports[0] != [2]int{4, 1} {
		t.Errorf("reports: got %v", fb.reports)
	}
}

func TestScheduler_ArmAllHighFailureRateEntersFallback(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	queue := taskqueue.NewMockTaskQueue(ctrl)
	queue.EXPECT().
		RegisterTrigger(gomock.Any(), gomock.Any()).
		Return(nil, errors.New("down")).
		AnyTimes()

	fb := &fakeFallback{}
	s, _, _ := newTestScheduler(t, queue, fb)

	future := testStart.Add(time.Hour)
	records := []*domain.ReminderRecord{
		{ID: 1, Status: domain.StatusActive, EnableNotifications: true, NextFireInstant: &future},
		{ID: 2, Status: domain.StatusActive, EnableNotifications: true, NextFireInstant: &future},
	}

	summary := s.ArmAll(context.Background(), records)
	if summary.Failed != 2 {
		t.Errorf("failed: got %d", summary.Failed)
	}
	if !fb.InFallback() {
		t.Error("expected fallback after a majority of failures")
	}
}

func TestScheduler_ArmAllDisarmsInactiveRecords(t *testing.T) {
	s, _, _ := newTestScheduler(t, nil, nil)
	ctx := context.Background()

	future := testStart.Add(time.Hour)
	_ = s.Arm(ctx, future, payload(1))

	s.ArmAll(ctx, []*domain.ReminderRecord{
		{ID: 1, Status: domain.StatusPaused, EnableNotifications: true, NextFireInstant: &future},
	})

	if s.State(1) != StateUnarmed {
		t.Errorf("paused record should be disarmed by the sweep")
	}
}

func TestScheduler_DeliverDeduplicatesWithTimer(t *testing.T) {
	s, clk, rec := newTestScheduler(t, nil, nil)
	ctx := context.Background()
	fireAt := testStart.Add(5 * time.Minute)

	_ = s.Arm(ctx, fireAt, payload(1))
	clk.Advance(5 * time.Minute)

	if err := s.Deliver(ctx, 1, fireAt); !errors.Is(err, ErrDuplicateFire) {
		t.Errorf("deliver after timer fire: got %v", err)
	}
	if rec.count() != 1 {
		t.Errorf("fires: got %d, want 1", rec.count())
	}
}

func TestScheduler_DeliverBeforeTimer(t *testing.T) {
	s, clk, rec := newTestScheduler(t, nil, nil)
	ctx := context.Background()
	fireAt := testStart.Add(5 * time.Minute)

	_ = s.Arm(ctx, fireAt, payload(1))

	if err := s.Deliver(ctx, 1, fireAt); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	clk.Advance(time.Hour)

	if rec.count() != 1 {
		t.Errorf("fires: got %d, want 1", rec.count())
	}
}

func TestScheduler_DeliverStaleAndUnknown(t *testing.T) {
	s, _, rec := newTestScheduler(t, nil, nil)
	ctx := context.Background()

	_ = s.Arm(ctx, testStart.Add(time.Hour), payload(1))
	if err := s.Deliver(ctx, 1, testStart.Add(5*time.Minute)); !errors.Is(err, ErrStaleFire) {
		t.Errorf("stale deliver: got %v", err)
	}

	// a task registered by a previous process
	if err := s.Deliver(ctx, 2, testStart.Add(-time.Minute)); err != nil {
		t.Errorf("unknown deliver: got %v", err)
	}
	if rec.count() != 1 || rec.fires[0] != 2 {
		t.Errorf("fires: got %v", rec.fires)
	}
}

func TestScheduler_DeliverAfterDisarm(t *testing.T) {
	tests := []struct {
		name        string
		advance     time.Duration
		rearm       bool
		deliverAt   time.Duration
		expectedErr error
		expected    int
	}{
		{name: "disarmed instant is stale", deliverAt: time.Hour, expectedErr: ErrStaleFire},
		{name: "earlier instant is stale", deliverAt: 30 * time.Minute, expectedErr: ErrStaleFire},
		{name: "later instant fires", deliverAt: 2 * time.Hour, expected: 1},
		{name: "rearm clears tombstone", rearm: true, deliverAt: time.Hour, expected: 1},
		{name: "tombstone expires", advance: 2 * time.Hour, deliverAt: time.Hour, expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, clk, rec := newTestScheduler(t, nil, nil)
			ctx := context.Background()
			fireAt := testStart.Add(time.Hour)

			_ = s.Arm(ctx, fireAt, payload(1))
			s.Disarm(ctx, 1)
			if tt.rearm {
				_ = s.Arm(ctx, fireAt, payload(1))
			}
			clk.Advance(tt.advance)

			err := s.Deliver(ctx, 1, testStart.Add(tt.deliverAt))
			if !errors.Is(err, tt.expectedErr) {
				t.Fatalf("deliver: got %v, want %v", err, tt.expectedErr)
			}
			if rec.count() != tt.expected {
				t.Errorf("fires: got %d, want %d", rec.count(), tt.expected)
			}
		})
	}
}

func TestScheduler_Canary(t *testing.T) {
	tests := []struct {
		name        string
		registerErr error
		expectErr   bool
	}{
		{name: "queue accepts"},
		{name: "queue refuses", registerErr: errors.New("unavailable"), expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			queue := taskqueue.NewMockTaskQueue(ctrl)
			queue.EXPECT().RegisterTrigger(gomock.Any(), gomock.Any()).Return(&taskqueue.TaskResponse{}, tt.registerErr).Times(1)
			if tt.registerErr == nil {
				queue.EXPECT().DeleteTask(gomock.Any(), gomock.Any()).Return(nil)
			}

			s, _, _ := newTestScheduler(t, queue, nil)
			err := s.Canary(context.Background())
			if (err != nil) != tt.expectErr {
				t.Errorf("canary: got %v, expectErr %v", err, tt.expectErr)
			}
			if s.ArmedCount() != 0 {
				t.Errorf("canary left %d armed triggers", s.ArmedCount())
			}
		})
	}
}

func TestScheduler_CanaryWithoutQueue(t *testing.T) {
	s, _, _ := newTestScheduler(t, nil, nil)
	if err := s.Canary(context.Background()); err != nil {
		t.Errorf("canary: got %v", err)
	}
}

func TestScheduler_CallbackCanRearm(t *testing.T) {
	clk := clock.NewFake(testStart)
	s := NewScheduler(Config{}, nil, nil, clk, nil, nil, nil)
	ctx := context.Background()

	var fires int
	s.OnFire(ctx, func(ctx context.Context, id int64, scheduledAt time.Time) {
		fires++
		if s.State(id) != StateFired {
			t.Errorf("state during callback: got %s", s.State(id))
		}
		_ = s.Arm(ctx, scheduledAt.Add(5*time.Minute), payload(id))
	})

	_ = s.Arm(ctx, testStart.Add(5*time.Minute), payload(1))
	clk.Advance(16 * time.Minute)

	if fires != 3 {
		t.Errorf("fires: got %d, want 3", fires)
	}
	if s.State(1) != StateArmed {
		t.Errorf("state: got %s", s.State(1))
	}
	if at, ok := s.FireAt(1); !ok || !at.Equal(testStart.Add(20*time.Minute)) {
		t.Errorf("next fire: got %v", at)
	}
}
