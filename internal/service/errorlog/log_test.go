package errorlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/KasumiMercury/primind-remind-engine/internal/clock"
	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
)

func TestLog_BoundedCapacity(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 6, 11, 8, 0, 0, 0, time.UTC))
	log := New(3, nil, clk)
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		log.Record(ctx, domain.ErrorEvent{Category: domain.CategoryScheduling, RecordID: i})
	}

	if log.Len() != 3 {
		t.Fatalf("len: got %d, want 3", log.Len())
	}

	recent := log.Recent(0)
	want := []int64{5, 4, 3}
	for i, e := range recent {
		if e.RecordID != want[i] {
			t.Errorf("recent[%d]: got %d, want %d", i, e.RecordID, want[i])
		}
	}
}

func TestLog_CountSince(t *testing.T) {
	start := time.Date(2025, 6, 11, 8, 0, 0, 0, time.UTC)
	clk := clock.NewFake(start)
	log := New(10, nil, clk)
	ctx := context.Background()

	log.Report(ctx, domain.CategorySyncTransient, domain.SeverityCritical, "sync", 1, errors.New("timeout"))
	clk.Advance(90 * time.Minute)
	log.Report(ctx, domain.CategorySyncTransient, domain.SeverityCritical, "sync", 2, errors.New("timeout"))
	log.Report(ctx, domain.CategoryValidation, domain.SeverityWarning, "reminder", 3, errors.New("bad"))

	since := clk.Now().Add(-time.Hour)
	critical := log.CountSince(since, domain.ErrorEvent.Critical)
	if critical != 1 {
		t.Errorf("critical in window: got %d, want 1", critical)
	}
	if all := log.CountSince(start, nil); all != 3 {
		t.Errorf("all: got %d, want 3", all)
	}

	counts := log.CountsByCategory(since)
	if counts[domain.CategorySyncTransient] != 1 || counts[domain.CategoryValidation] != 1 {
		t.Errorf("counts: got %v", counts)
	}
}

func TestLog_ListenersAndMirror(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := domain.NewMockErrorLogRepository(ctrl)
	repo.EXPECT().
		Append(gomock.Any(), gomock.Any(), 4).
		Return(errors.New("redis down"))

	log := New(4, repo, clock.NewFake(time.Now()))

	var seen []domain.ErrorEvent
	log.Subscribe(func(ctx context.Context, e domain.ErrorEvent) {
		seen = append(seen, e)
	})

	log.Report(context.Background(), domain.CategoryFatalLocal, domain.SeverityCritical, "store", 0, errors.New("corrupt"))

	if len(seen) != 1 || seen[0].Category != domain.CategoryFatalLocal {
		t.Errorf("listener: got %+v", seen)
	}
	if log.Len() != 1 {
		t.Error("mirror failure must not drop the in-memory event")
	}
}

func TestLog_Restore(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := domain.NewMockErrorLogRepository(ctrl)
	repo.EXPECT().
		Recent(gomock.Any(), 10).
		Return([]domain.ErrorEvent{{RecordID: 2}, {RecordID: 1}}, nil)

	log := New(10, repo, nil)
	if err := log.Restore(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	recent := log.Recent(1)
	if len(recent) != 1 || recent[0].RecordID != 2 {
		t.Errorf("newest: got %+v", recent)
	}
}
