package loop

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/fallback"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/records"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/syncengine"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/trigger"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
	ch    chan string
}

func newCallLog() *callLog {
	return &callLog{ch: make(chan string, 64)}
}

func (c *callLog) add(name string) {
	c.mu.Lock()
	c.calls = append(c.calls, name)
	c.mu.Unlock()
	c.ch <- name
}

func (c *callLog) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *callLog) waitFor(t *testing.T, name string) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case got := <-c.ch:
			if got == name {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s, calls so far %v", name, c.all())
		}
	}
}

type fakeDrainer struct {
	log *callLog
	err error
}

func (f *fakeDrainer) Drain(ctx context.Context) (domain.DrainRun, error) {
	f.log.add("drain")
	return domain.DrainRun{}, f.err
}

type fakeSweeper struct {
	log   *callLog
	mu    sync.Mutex
	armed [][]int64
}

func (f *fakeSweeper) ArmAll(ctx context.Context, recs []*domain.ReminderRecord) trigger.Summary {
	ids := make([]int64, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	f.mu.Lock()
	f.armed = append(f.armed, ids)
	f.mu.Unlock()
	f.log.add("sweep")
	return trigger.Summary{Total: len(ids), Armed: len(ids)}
}

type fakeRecords struct {
	log     *callLog
	records []*domain.ReminderRecord
}

func (f *fakeRecords) List(ctx context.Context) ([]*domain.ReminderRecord, error) {
	return f.records, nil
}

func (f *fakeRecords) BackfillNextFire(ctx context.Context, compute records.NextFireFunc) ([]*domain.ReminderRecord, error) {
	f.log.add("backfill")
	var changed []*domain.ReminderRecord
	for _, r := range f.records {
		if r.NextFireInstant != nil {
			continue
		}
		next, err := compute(r)
		if err != nil {
			return nil, err
		}
		r.NextFireInstant = next
		changed = append(changed, r)
	}
	return changed, nil
}

type fakeHealth struct {
	log *callLog
}

func (f *fakeHealth) HealthCheck(ctx context.Context) fallback.CheckResult {
	f.log.add("health")
	return fallback.CheckResult{Mode: fallback.ModeNormal, Healthy: true}
}

type fakeSyncer struct {
	log     *callLog
	mu      sync.Mutex
	ids     []int64
	ops     []domain.Operation
	pending []*domain.SyncQueueItem
	letters []*domain.DeadLetter
}

func (f *fakeSyncer) EnqueueRecord(ctx context.Context, op domain.Operation, r *domain.ReminderRecord) (*domain.SyncQueueItem, error) {
	item := &domain.SyncQueueItem{Operation: op, RecordID: r.ID}
	f.mu.Lock()
	f.ids = append(f.ids, r.ID)
	f.ops = append(f.ops, op)
	f.pending = append(f.pending, item)
	f.mu.Unlock()
	f.log.add("enqueue")
	return item, nil
}

func (f *fakeSyncer) Pending(ctx context.Context) ([]*domain.SyncQueueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*domain.SyncQueueItem(nil), f.pending...), nil
}

func (f *fakeSyncer) DeadLetters(ctx context.Context) ([]*domain.DeadLetter, error) {
	return f.letters, nil
}

type fixture struct {
	log     *callLog
	drainer *fakeDrainer
	sweeper *fakeSweeper
	records *fakeRecords
	syncer  *fakeSyncer
	loop    *Loop
}

func newFixture(cfg Config, recs ...*domain.ReminderRecord) *fixture {
	log := newCallLog()
	f := &fixture{
		log:     log,
		drainer: &fakeDrainer{log: log},
		sweeper: &fakeSweeper{log: log},
		records: &fakeRecords{log: log, records: recs},
		syncer:  &fakeSyncer{log: log},
	}
	next := time.Date(2025, 6, 11, 9, 0, 0, 0, time.UTC)
	f.loop = New(cfg, f.drainer, f.sweeper, f.records, &fakeHealth{log: log}, f.syncer, func(r *domain.ReminderRecord) (*time.Time, error) {
		return &next, nil
	})
	return f
}

func TestLoop_Startup(t *testing.T) {
	scheduled := time.Date(2025, 6, 11, 10, 0, 0, 0, time.UTC)
	f := newFixture(Config{},
		&domain.ReminderRecord{ID: 1, Status: domain.StatusActive},
		&domain.ReminderRecord{ID: 2, Status: domain.StatusActive, NextFireInstant: &scheduled},
	)

	f.loop.Startup(context.Background())

	expected := []string{"health", "backfill", "enqueue", "sweep", "drain"}
	if got := f.log.all(); !slices.Equal(got, expected) {
		t.Errorf("expected calls %v, got %v", expected, got)
	}
	if !slices.Equal(f.syncer.ids, []int64{1}) {
		t.Errorf("expected only the backfilled record queued, got %v", f.syncer.ids)
	}
	if len(f.sweeper.armed) != 1 || !slices.Equal(f.sweeper.armed[0], []int64{1, 2}) {
		t.Errorf("expected one sweep over both records, got %v", f.sweeper.armed)
	}
	if f.records.records[0].NextFireInstant == nil {
		t.Error("expected the missing next fire to be backfilled")
	}
}

func TestLoop_SweepQueuesUnsyncedRecords(t *testing.T) {
	f := newFixture(Config{},
		&domain.ReminderRecord{ID: 1, Status: domain.StatusActive, NeedsSync: true},
		&domain.ReminderRecord{ID: 2, Status: domain.StatusActive, NeedsSync: true, RemoteID: "r-2"},
		&domain.ReminderRecord{ID: 3, Status: domain.StatusActive, NeedsSync: true, RemoteID: "r-3"},
		&domain.ReminderRecord{ID: 4, Status: domain.StatusActive, NeedsSync: true, RemoteID: "r-4"},
		&domain.ReminderRecord{ID: 5, Status: domain.StatusActive, RemoteID: "r-5"},
	)
	f.syncer.pending = []*domain.SyncQueueItem{{Operation: domain.OperationUpdate, RecordID: 3}}
	f.syncer.letters = []*domain.DeadLetter{{Item: domain.SyncQueueItem{Operation: domain.OperationUpdate, RecordID: 4}}}

	f.loop.Sweep(context.Background())

	if !slices.Equal(f.syncer.ids, []int64{1, 2}) {
		t.Fatalf("expected records 1 and 2 queued, got %v", f.syncer.ids)
	}
	if !slices.Equal(f.syncer.ops, []domain.Operation{domain.OperationInsert, domain.OperationUpdate}) {
		t.Errorf("expected insert for the unlinked record and update otherwise, got %v", f.syncer.ops)
	}

	f.loop.Sweep(context.Background())
	if len(f.syncer.ids) != 2 {
		t.Errorf("second sweep queued again: %v", f.syncer.ids)
	}
}

func TestLoop_Nudges(t *testing.T) {
	tests := []struct {
		name     string
		nudge    func(l *Loop)
		expected []string
	}{
		{
			name:     "drain",
			nudge:    func(l *Loop) { l.NotifyDrain() },
			expected: []string{"drain"},
		},
		{
			name:     "wake",
			nudge:    func(l *Loop) { l.NotifyWake() },
			expected: []string{"sweep", "drain"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(Config{DrainInterval: time.Hour, SweepInterval: time.Hour})
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			done := make(chan struct{})
			go func() {
				f.loop.Run(ctx)
				close(done)
			}()
			f.log.waitFor(t, "drain")
			startup := len(f.log.all())

			tt.nudge(f.loop)
			for _, name := range tt.expected {
				f.log.waitFor(t, name)
			}

			cancel()
			<-done

			if got := f.log.all()[startup:]; !slices.Equal(got, tt.expected) {
				t.Errorf("expected %v after the nudge, got %v", tt.expected, got)
			}
		})
	}
}

func TestLoop_NotifyNeverBlocks(t *testing.T) {
	f := newFixture(Config{})

	done := make(chan struct{})
	go func() {
		for range 10 {
			f.loop.NotifyDrain()
			f.loop.NotifyWake()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("notify blocked without a running loop")
	}
}

func TestLoop_TickerDrains(t *testing.T) {
	f := newFixture(Config{DrainInterval: 10 * time.Millisecond, SweepInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go f.loop.Run(ctx)

	// startup drain plus two ticks
	for range 3 {
		f.log.waitFor(t, "drain")
	}
}

func TestLoop_DrainOnceSwallowsErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "in progress", err: syncengine.ErrDrainInProgress},
		{name: "queue failure", err: errors.New("redis down")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(Config{})
			f.drainer.err = tt.err

			f.loop.DrainOnce(context.Background())

			if got := f.log.all(); !slices.Equal(got, []string{"drain"}) {
				t.Errorf("expected one drain call, got %v", got)
			}
		})
	}
}
