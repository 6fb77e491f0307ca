package reminder

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/KasumiMercury/primind-remind-engine/internal/clock"
	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/dispatch"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/errorlog"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/records"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/schedtime"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/trigger"
)

var testStart = time.Date(2025, 6, 11, 8, 0, 0, 0, time.UTC)

type memRecords struct {
	mu      sync.Mutex
	records map[int64]*domain.ReminderRecord
	nextID  int64
}

func newMemRecords() *memRecords {
	return &memRecords{records: make(map[int64]*domain.ReminderRecord)}
}

func (m *memRecords) NextID(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	return m.nextID, nil
}

func (m *memRecords) Get(_ context.Context, id int64) (*domain.ReminderRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return r.Clone(), nil
}

func (m *memRecords) Save(_ context.Context, record *domain.ReminderRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.ID] = record.Clone()
	return nil
}

func (m *memRecords) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

func (m *memRecords) List(_ context.Context) ([]*domain.ReminderRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.ReminderRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r.Clone())
	}
	return out, nil
}

type enqueued struct {
	op     domain.Operation
	record *domain.ReminderRecord
}

type fakeSyncer struct {
	mu    sync.Mutex
	items []enqueued
}

func (f *fakeSyncer) EnqueueRecord(_ context.Context, op domain.Operation, record *domain.ReminderRecord) (*domain.SyncQueueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, enqueued{op: op, record: record.Clone()})
	return &domain.SyncQueueItem{Operation: op, RecordID: record.ID}, nil
}

func (f *fakeSyncer) ops() []domain.Operation {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Operation, 0, len(f.items))
	for _, e := range f.items {
		out = append(out, e.op)
	}
	return out
}

type fakeNotifier struct {
	mu       sync.Mutex
	payloads []domain.NotificationPayload
}

func (f *fakeNotifier) Notify(_ context.Context, payload domain.NotificationPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeNotifier) all() []domain.NotificationPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.NotificationPayload(nil), f.payloads...)
}

type harness struct {
	clock     *clock.Fake
	repo      *memRecords
	scheduler *trigger.Scheduler
	syncer    *fakeSyncer
	notifier  *fakeNotifier
	log       *errorlog.Log
	service   *Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	clk := clock.NewFake(testStart)
	log := errorlog.New(50, nil, clk)
	async := dispatch.Inline{Log: log}
	repo := newMemRecords()

	scheduler := trigger.NewScheduler(trigger.Config{}, nil, nil, clk, async, log, nil)
	syncer := &fakeSyncer{}
	notifier := &fakeNotifier{}
	svc := NewService(
		records.NewStore(repo, log, clk),
		scheduler,
		syncer,
		schedtime.NewValidator(clk, schedtime.DefaultMinLead),
		notifier,
		async,
		log,
		clk,
	)
	scheduler.OnFire(context.Background(), svc.OnFire)

	return &harness{
		clock:     clk,
		repo:      repo,
		scheduler: scheduler,
		syncer:    syncer,
		notifier:  notifier,
		log:       log,
		service:   svc,
	}
}

func at(hour, minute int) domain.TimeOfDay {
	return domain.TimeOfDay{Hour: hour, Minute: minute}
}
