// Package memstore provides an in-memory implementation of the metadata
// store contract, used in tests and single-process development mode.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/temporalmem/temporalmem/pkg/memory"
	"github.com/temporalmem/temporalmem/pkg/store"
)

// Store implements memory.MetadataStore using in-memory maps.
type Store struct {
	mu      sync.RWMutex
	records map[string]*memory.MemoryRecord
}

// New creates an in-memory metadata store.
func New() *Store {
	return &Store{records: make(map[string]*memory.MemoryRecord)}
}

// Insert stores a new record with version 1.
func (s *Store) Insert(ctx context.Context, rec *memory.MemoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return &store.DuplicateKeyError{ID: rec.ID}
	}
	rec.Version = 1
	s.records[rec.ID] = rec.Clone()
	return nil
}

// GetByID returns a copy of the record.
func (s *Store) GetByID(ctx context.Context, id string) (*memory.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, &store.NotFoundError{ID: id}
	}
	return rec.Clone(), nil
}

// UpdateStatus transitions a record's status with an optimistic version check.
func (s *Store) UpdateStatus(ctx context.Context, id string, next memory.Status, expectedVersion uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(id, next, expectedVersion)
}

func (s *Store) transitionLocked(id string, next memory.Status, expectedVersion uint64) error {
	rec, ok := s.records[id]
	if !ok {
		return &store.NotFoundError{ID: id}
	}
	if rec.Version != expectedVersion {
		return &memory.ConflictError{ID: id, Expected: expectedVersion, Actual: rec.Version}
	}
	if !rec.Status.CanTransitionTo(next) {
		return &store.InvalidTransitionError{ID: id, From: rec.Status, To: next}
	}
	rec.Status = next
	rec.Version++
	return nil
}

// GetActiveBySlot returns copies of every active record in (userID, slot).
func (s *Store) GetActiveBySlot(ctx context.Context, userID, slot string) ([]*memory.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*memory.MemoryRecord
	for _, rec := range s.records {
		if rec.UserID == userID && rec.Slot == slot && rec.Status == memory.StatusActive {
			out = append(out, rec.Clone())
		}
	}
	sortByID(out)
	return out, nil
}

// ListByUser returns copies of every record for the user with the status.
func (s *Store) ListByUser(ctx context.Context, userID string, status memory.Status) ([]*memory.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*memory.MemoryRecord
	for _, rec := range s.records {
		if rec.UserID == userID && rec.Status == status {
			out = append(out, rec.Clone())
		}
	}
	sortByID(out)
	return out, nil
}

// ListByIDs returns copies of the records for the ids; missing ids are
// silently omitted.
func (s *Store) ListByIDs(ctx context.Context, ids []string) ([]*memory.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*memory.MemoryRecord, 0, len(ids))
	for _, id := range ids {
		if rec, ok := s.records[id]; ok {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

// ApplyPlan commits archive set plus insert atomically: every mutation is
// validated before any is applied, so a conflict leaves the store untouched.
func (s *Store) ApplyPlan(ctx context.Context, plan memory.ResolutionPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[plan.Insert.ID]; exists {
		return &store.DuplicateKeyError{ID: plan.Insert.ID}
	}
	for _, t := range plan.Archive {
		rec, ok := s.records[t.ID]
		if !ok {
			return &store.NotFoundError{ID: t.ID}
		}
		if rec.Version != t.Version {
			return &memory.ConflictError{ID: t.ID, Expected: t.Version, Actual: rec.Version}
		}
		if !rec.Status.CanTransitionTo(memory.StatusArchived) {
			return &memory.ConflictError{ID: t.ID, Expected: t.Version, Actual: rec.Version}
		}
	}

	for _, t := range plan.Archive {
		rec := s.records[t.ID]
		rec.Status = memory.StatusArchived
		rec.Version++
	}
	plan.Insert.Version = 1
	s.records[plan.Insert.ID] = plan.Insert.Clone()
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

func sortByID(recs []*memory.MemoryRecord) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
}
