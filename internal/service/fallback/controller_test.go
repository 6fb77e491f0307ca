package fallback

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/KasumiMercury/primind-remind-engine/internal/clock"
	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/errorlog"
)

func newTestController(t *testing.T) (*Controller, *errorlog.Log, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Date(2025, 6, 11, 8, 0, 0, 0, time.UTC))
	log := errorlog.New(100, nil, clk)
	return NewController(Config{}, nil, log, clk), log, clk
}

func reportCritical(log *errorlog.Log, n int) {
	for i := 0; i < n; i++ {
		log.Report(context.Background(), domain.CategorySyncTransient, domain.SeverityCritical, "sync", int64(i), errors.New("timeout"))
	}
}

func TestController_CriticalErrorsTriggerFallback(t *testing.T) {
	tests := []struct {
		name         string
		critical     int
		wantFallback bool
	}{
		{name: "three is tolerated", critical: 3, wantFallback: false},
		{name: "four enters fallback", critical: 4, wantFallback: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, log, _ := newTestController(t)
			reportCritical(log, tt.critical)

			if got := c.InFallback(); got != tt.wantFallback {
				t.Errorf("InFallback: got %v, want %v", got, tt.wantFallback)
			}
		})
	}
}

func TestController_NonCriticalEventsIgnored(t *testing.T) {
	c, log, _ := newTestController(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		log.Report(ctx, domain.CategoryValidation, domain.SeverityCritical, "reminder", 0, errors.New("bad spec"))
		log.Report(ctx, domain.CategorySyncTransient, domain.SeverityWarning, "sync", 0, errors.New("retry"))
	}

	if c.InFallback() {
		t.Error("validation and warning events must not trigger fallback")
	}
}

func TestController_CriticalErrorsOutsideWindow(t *testing.T) {
	c, log, clk := newTestController(t)

	reportCritical(log, 2)
	clk.Advance(61 * time.Minute)
	reportCritical(log, 2)

	if c.InFallback() {
		t.Error("errors older than the window must not count")
	}
}

func TestController_ArmBatch(t *testing.T) {
	tests := []struct {
		name         string
		total        int
		failed       int
		wantFallback bool
	}{
		{name: "empty batch", total: 0, failed: 0, wantFallback: false},
		{name: "exactly half", total: 4, failed: 2, wantFallback: false},
		{name: "more than half", total: 5, failed: 3, wantFallback: true},
		{name: "all failed", total: 1, failed: 1, wantFallback: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, _ := newTestController(t)

			entered := c.ReportArmBatch(context.Background(), tt.total, tt.failed)
			if entered != tt.wantFallback || c.InFallback() != tt.wantFallback {
				t.Errorf("got entered=%v inFallback=%v, want %v", entered, c.InFallback(), tt.wantFallback)
			}
		})
	}
}

func TestController_PermissionDenied(t *testing.T) {
	c, _, _ := newTestController(t)
	ctx := context.Background()

	c.ReportPermission(ctx, false)
	if !c.InFallback() {
		t.Fatal("permission denial must enter fallback")
	}

	// granting permission alone does not leave fallback
	c.ReportPermission(ctx, true)
	if !c.InFallback() {
		t.Fatal("fallback must only be left through a health check")
	}

	result := c.HealthCheck(ctx)
	if result.Mode != ModeNormal || !result.Healthy {
		t.Errorf("health check: got %+v", result)
	}
}

func TestController_HealthCheckStaysInFallbackWhileConditionsHold(t *testing.T) {
	c, log, clk := newTestController(t)
	ctx := context.Background()

	reportCritical(log, 4)
	if !c.InFallback() {
		t.Fatal("expected fallback")
	}

	result := c.HealthCheck(ctx)
	if result.Mode != ModeFallback || result.Healthy {
		t.Fatalf("got %+v, want fallback", result)
	}
	if len(result.Conditions) != 1 || result.Conditions[0] != ReasonCriticalErrors {
		t.Errorf("conditions: got %v", result.Conditions)
	}

	// time alone never leaves fallback
	clk.Advance(3 * time.Hour)
	if !c.InFallback() {
		t.Fatal("fallback must not expire on its own")
	}

	result = c.HealthCheck(ctx)
	if result.Mode != ModeNormal {
		t.Errorf("got %+v, want normal once errors aged out", result)
	}
}

func TestController_ArmFailureConditionAgesOutWithoutCanary(t *testing.T) {
	c, _, clk := newTestController(t)
	ctx := context.Background()

	c.ReportArmBatch(ctx, 2, 2)

	clk.Advance(30 * time.Minute)
	if got := c.HealthCheck(ctx); got.Mode != ModeFallback {
		t.Fatalf("got %+v, want fallback within the window", got)
	}

	clk.Advance(31 * time.Minute)
	if got := c.HealthCheck(ctx); got.Mode != ModeNormal {
		t.Errorf("got %+v, want normal", got)
	}
}

type fakeCanary struct {
	err   error
	calls int
}

func (f *fakeCanary) Canary(ctx context.Context) error {
	f.calls++
	return f.err
}

func TestController_ArmFailureConditionClearsOnCanary(t *testing.T) {
	c, _, clk := newTestController(t)
	ctx := context.Background()
	canary := &fakeCanary{err: errors.New("queue unavailable")}
	c.SetCanary(canary)

	c.ReportArmBatch(ctx, 2, 2)

	// still failing long after the window
	clk.Advance(3 * time.Hour)
	got := c.HealthCheck(ctx)
	if got.Mode != ModeFallback || len(got.Conditions) != 1 || got.Conditions[0] != ReasonArmFailures {
		t.Fatalf("got %+v, want fallback on arm failures", got)
	}

	canary.err = nil
	if got := c.HealthCheck(ctx); got.Mode != ModeNormal {
		t.Errorf("got %+v, want normal after a successful canary", got)
	}
	if canary.calls != 2 {
		t.Errorf("canary calls: got %d, want 2", canary.calls)
	}

	// no arm failure pending, no canary needed
	c.HealthCheck(ctx)
	if canary.calls != 2 {
		t.Errorf("canary ran without a pending arm failure: %d calls", canary.calls)
	}
}

func TestController_HooksAndPersistence(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := domain.NewMockHealthRepository(ctrl)
	repo.EXPECT().Load(gomock.Any()).Return(nil, domain.ErrHealthStateNotFound)

	var saved []domain.HealthState
	repo.EXPECT().
		Save(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, s *domain.HealthState) error {
			saved = append(saved, *s)
			return nil
		}).
		AnyTimes()

	clk := clock.NewFake(time.Date(2025, 6, 11, 8, 0, 0, 0, time.UTC))
	c := NewController(Config{}, repo, nil, clk)

	var transitions []bool
	c.OnChange(func(ctx context.Context, inFallback bool, reason string) {
		transitions = append(transitions, inFallback)
	})

	ctx := context.Background()
	if err := c.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	c.Enter(ctx, "manual")
	c.Enter(ctx, "again")
	c.HealthCheck(ctx)

	if len(transitions) != 2 || !transitions[0] || transitions[1] {
		t.Errorf("transitions: got %v, want [true false]", transitions)
	}
	if len(saved) == 0 || saved[len(saved)-1].InFallbackMode {
		t.Errorf("last persisted state should be normal: %+v", saved)
	}
	if saved[0].Reason != "manual" {
		t.Errorf("first reason: got %q", saved[0].Reason)
	}
}

func TestController_LoadRestoresFallback(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := domain.NewMockHealthRepository(ctrl)
	repo.EXPECT().
		Load(gomock.Any()).
		Return(&domain.HealthState{InFallbackMode: true, Reason: ReasonArmFailures}, nil)

	c := NewController(Config{}, repo, nil, clock.NewFake(time.Now()))
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	if !c.InFallback() {
		t.Error("persisted fallback must survive restart")
	}
}

func TestController_SnapshotCounters(t *testing.T) {
	c, log, clk := newTestController(t)
	ctx := context.Background()

	log.Report(ctx, domain.CategoryScheduling, domain.SeverityWarning, "trigger", 1, errors.New("x"))
	clk.Advance(25 * time.Hour)
	log.Report(ctx, domain.CategorySyncConflict, domain.SeverityInfo, "sync", 1, errors.New("y"))

	snap := c.Snapshot()
	if snap.ErrorCounts[domain.CategoryScheduling] != 0 {
		t.Errorf("scheduling count should have aged out: %v", snap.ErrorCounts)
	}
	if snap.ErrorCounts[domain.CategorySyncConflict] != 1 {
		t.Errorf("conflict count: %v", snap.ErrorCounts)
	}
}
