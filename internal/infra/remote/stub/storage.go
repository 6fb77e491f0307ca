package stub

import (
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Row struct {
	RemoteID  string
	Fields    map[string]any
	UpdatedAt *time.Time
}

// RowStorage is an in-memory remote store, table -> remote id -> row.
type RowStorage struct {
	mu       sync.RWMutex
	tables   map[string]map[string]*Row
	failures int
}

func NewRowStorage() *RowStorage {
	return &RowStorage{
		tables: make(map[string]map[string]*Row),
	}
}

func (s *RowStorage) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = make(map[string]map[string]*Row)
	s.failures = 0
}

// FailNext makes the next n requests answer 503.
func (s *RowStorage) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = n
}

func (s *RowStorage) takeFailure() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures <= 0 {
		return false
	}
	s.failures--
	return true
}

func (s *RowStorage) Get(table, remoteID string) (*Row, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.tables[table][remoteID]
	if !ok {
		return nil, false
	}
	return cloneRow(row), true
}

// Put stores a row as is, creating the table when needed. Used for seeding.
func (s *RowStorage) Put(table string, row *Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tables[table] == nil {
		s.tables[table] = make(map[string]*Row)
	}
	s.tables[table][row.RemoteID] = cloneRow(row)
}

func (s *RowStorage) Insert(table string, fields map[string]any, updatedAt time.Time) string {
	id := uuid.NewString()
	s.Put(table, &Row{RemoteID: id, Fields: fields, UpdatedAt: &updatedAt})
	return id
}

func (s *RowStorage) Update(table, remoteID string, fields map[string]any, updatedAt time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.tables[table][remoteID]
	if !ok {
		return false
	}
	row.Fields = maps.Clone(fields)
	row.UpdatedAt = &updatedAt
	return true
}

func (s *RowStorage) Delete(table, remoteID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[table][remoteID]; !ok {
		return false
	}
	delete(s.tables[table], remoteID)
	return true
}

func (s *RowStorage) Count(table string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[table])
}

func cloneRow(r *Row) *Row {
	c := &Row{RemoteID: r.RemoteID, Fields: maps.Clone(r.Fields)}
	if r.UpdatedAt != nil {
		t := *r.UpdatedAt
		c.UpdatedAt = &t
	}
	return c
}
