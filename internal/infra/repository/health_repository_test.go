package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
	"github.com/KasumiMercury/primind-remind-engine/internal/testutil"
)

func TestHealthRepositoryLoadSave(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	client, cleanup := testutil.SetupRedisContainer(ctx, t)
	defer cleanup()

	repo := NewHealthRepository(client)
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		setup       func(t *testing.T)
		expected    *domain.HealthState
		expectedErr error
	}{
		{
			name:        "missing state",
			setup:       func(t *testing.T) {},
			expectedErr: domain.ErrHealthStateNotFound,
		},
		{
			name: "corrupt state is dropped",
			setup: func(t *testing.T) {
				if err := client.Set(ctx, healthKey, "{", 0).Err(); err != nil {
					t.Fatalf("failed to set up test data: %v", err)
				}
			},
			expectedErr: domain.ErrHealthStateNotFound,
		},
		{
			name: "saved state",
			setup: func(t *testing.T) {
				state := &domain.HealthState{
					InFallbackMode: true,
					Reason:         "permission denied",
					ChangedAt:      now,
					ErrorCounts:    map[domain.ErrorCategory]int{domain.CategoryScheduling: 4},
				}
				if err := repo.Save(ctx, state); err != nil {
					t.Fatalf("failed to save state: %v", err)
				}
			},
			expected: &domain.HealthState{
				InFallbackMode: true,
				Reason:         "permission denied",
				ChangedAt:      now,
				ErrorCounts:    map[domain.ErrorCategory]int{domain.CategoryScheduling: 4},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.FlushRedis(ctx, t, client)
			tt.setup(t)

			state, err := repo.Load(ctx)
			if tt.expectedErr != nil {
				if !errors.Is(err, tt.expectedErr) {
					t.Errorf("expected error %v, got %v", tt.expectedErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if state.InFallbackMode != tt.expected.InFallbackMode || state.Reason != tt.expected.Reason {
				t.Errorf("expected %+v, got %+v", tt.expected, state)
			}
			if !state.ChangedAt.Equal(tt.expected.ChangedAt) {
				t.Errorf("expected changedAt %v, got %v", tt.expected.ChangedAt, state.ChangedAt)
			}
			if state.ErrorCounts[domain.CategoryScheduling] != 4 {
				t.Errorf("expected scheduling count 4, got %d", state.ErrorCounts[domain.CategoryScheduling])
			}
		})
	}
}

func TestErrorLogRepositoryBounded(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	client, cleanup := testutil.SetupRedisContainer(ctx, t)
	defer cleanup()

	repo := NewErrorLogRepository(client)
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		event := domain.ErrorEvent{
			Category:   domain.CategorySyncTransient,
			Severity:   domain.SeverityWarning,
			Component:  "sync",
			Message:    "timeout",
			RecordID:   int64(i),
			OccurredAt: now.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Append(ctx, event, 3); err != nil {
			t.Fatalf("failed to append event: %v", err)
		}
	}

	events, err := repo.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].RecordID != 4 || events[2].RecordID != 2 {
		t.Errorf("expected newest first [4..2], got [%d..%d]", events[0].RecordID, events[2].RecordID)
	}

	events, err = repo.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("expected 1 event with limit, got %d", len(events))
	}
}
