package syncengine

import (
	"context"
	"sync"

	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
)

type memQueue struct {
	mu          sync.Mutex
	items       []domain.SyncQueueItem
	deadLetters []domain.DeadLetter
	conflicts   []domain.SyncConflict
}

func (q *memQueue) Append(_ context.Context, item *domain.SyncQueueItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, *item)
	return nil
}

func (q *memQueue) List(_ context.Context) ([]*domain.SyncQueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*domain.SyncQueueItem, 0, len(q.items))
	for i := range q.items {
		item := q.items[i]
		out = append(out, &item)
	}
	return out, nil
}

func (q *memQueue) Update(_ context.Context, item *domain.SyncQueueItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.items {
		if q.items[i].ID == item.ID {
			q.items[i] = *item
			return nil
		}
	}
	return domain.ErrQueueItemNotFound
}

func (q *memQueue) Remove(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.items {
		if q.items[i].ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return nil
		}
	}
	return nil
}

func (q *memQueue) AppendDeadLetter(_ context.Context, letter *domain.DeadLetter) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deadLetters = append(q.deadLetters, *letter)
	return nil
}

func (q *memQueue) ListDeadLetters(_ context.Context) ([]*domain.DeadLetter, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*domain.DeadLetter, 0, len(q.deadLetters))
	for i := range q.deadLetters {
		l := q.deadLetters[i]
		out = append(out, &l)
	}
	return out, nil
}

func (q *memQueue) GetDeadLetter(_ context.Context, id string) (*domain.DeadLetter, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.deadLetters {
		if q.deadLetters[i].Item.ID == id {
			l := q.deadLetters[i]
			return &l, nil
		}
	}
	return nil, domain.ErrDeadLetterNotFound
}

func (q *memQueue) RemoveDeadLetter(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.deadLetters {
		if q.deadLetters[i].Item.ID == id {
			q.deadLetters = append(q.deadLetters[:i], q.deadLetters[i+1:]...)
			return nil
		}
	}
	return domain.ErrDeadLetterNotFound
}

func (q *memQueue) RecordConflict(_ context.Context, conflict *domain.SyncConflict) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.conflicts = append([]domain.SyncConflict{*conflict}, q.conflicts...)
	return nil
}

func (q *memQueue) ListConflicts(_ context.Context, limit int) ([]*domain.SyncConflict, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*domain.SyncConflict, 0, len(q.conflicts))
	for i := range q.conflicts {
		if limit > 0 && len(out) >= limit {
			break
		}
		c := q.conflicts[i]
		out = append(out, &c)
	}
	return out, nil
}

func (q *memQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

type memRecords struct {
	mu      sync.Mutex
	records map[int64]*domain.ReminderRecord
	nextID  int64
}

func newMemRecords(rs ...*domain.ReminderRecord) *memRecords {
	m := &memRecords{records: make(map[int64]*domain.ReminderRecord)}
	for _, r := range rs {
		m.records[r.ID] = r.Clone()
		if r.ID > m.nextID {
			m.nextID = r.ID
		}
	}
	return m
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
