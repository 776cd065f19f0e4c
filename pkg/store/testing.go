package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/temporalmem/temporalmem/pkg/memory"
)

// StoreTestSuite defines a test suite that can be run against any
// MetadataStore implementation.
type StoreTestSuite struct {
	NewStore func(t *testing.T) memory.MetadataStore
}

// RunAllTests runs all metadata store tests against the provided
// implementation.
func (s *StoreTestSuite) RunAllTests(t *testing.T) {
	t.Run("InsertAndGet", s.TestInsertAndGet)
	t.Run("InsertDuplicate", s.TestInsertDuplicate)
	t.Run("GetMissing", s.TestGetMissing)
	t.Run("UpdateStatus", s.TestUpdateStatus)
	t.Run("UpdateStatusVersionConflict", s.TestUpdateStatusVersionConflict)
	t.Run("UpdateStatusForwardOnly", s.TestUpdateStatusForwardOnly)
	t.Run("GetActiveBySlot", s.TestGetActiveBySlot)
	t.Run("ListByUser", s.TestListByUser)
	t.Run("ListByIDs", s.TestListByIDs)
	t.Run("ApplyPlan", s.TestApplyPlan)
	t.Run("ApplyPlanConflictAtomicity", s.TestApplyPlanConflictAtomicity)
	t.Run("ConcurrentApplyPlan", s.TestConcurrentApplyPlan)
}

func (s *StoreTestSuite) record(id, userID, slot string) *memory.MemoryRecord {
	return &memory.MemoryRecord{
		ID:         id,
		UserID:     userID,
		Text:       "record " + id,
		Type:       memory.TypePreference,
		Slot:       slot,
		Status:     memory.StatusActive,
		CreatedAt:  time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Confidence: 0.9,
	}
}

// TestInsertAndGet verifies round-tripping a record through the store.
func (s *StoreTestSuite) TestInsertAndGet(t *testing.T) {
	st := s.NewStore(t)
	defer st.Close()
	ctx := context.Background()

	rec := s.record("rec-1", "user-1", "food_preference")
	rec.Supersedes = []string{"old-1"}
	rec.Extra = map[string]string{"source": "chat"}
	until := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	rec.ValidUntil = &until
	rec.DecayHalfLifeDays = 60

	if err := st.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if rec.Version != 1 {
		t.Errorf("expected version 1 stamped on inserted record, got %d", rec.Version)
	}

	got, err := st.GetByID(ctx, "rec-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Version != 1 {
		t.Errorf("expected version 1 after insert, got %d", got.Version)
	}
	if got.UserID != rec.UserID || got.Text != rec.Text || got.Slot != rec.Slot {
		t.Errorf("retrieved record does not match inserted: %+v", got)
	}
	if got.ValidUntil == nil || !got.ValidUntil.Equal(until) {
		t.Errorf("expected ValidUntil %v, got %v", until, got.ValidUntil)
	}
	if got.DecayHalfLifeDays != 60 {
		t.Errorf("expected half-life 60, got %d", got.DecayHalfLifeDays)
	}
	if len(got.Supersedes) != 1 || got.Supersedes[0] != "old-1" {
		t.Errorf("expected supersedes [old-1], got %v", got.Supersedes)
	}
}

// TestInsertDuplicate verifies that inserting the same id twice fails.
func (s *StoreTestSuite) TestInsertDuplicate(t *testing.T) {
	st := s.NewStore(t)
	defer st.Close()
	ctx := context.Background()

	rec := s.record("rec-1", "user-1", "")
	if err := st.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	err := st.Insert(ctx, rec)
	if err == nil {
		t.Fatal("expected duplicate insert to fail")
	}
	var dup *DuplicateKeyError
	if !errors.As(err, &dup) {
		t.Errorf("expected DuplicateKeyError, got %v", err)
	}
}

// TestGetMissing verifies the not-found error wraps memory.ErrNotFound.
func (s *StoreTestSuite) TestGetMissing(t *testing.T) {
	st := s.NewStore(t)
	defer st.Close()

	_, err := st.GetByID(context.Background(), "nope")
	if err == nil {
		t.Fatal("expected error for missing record")
	}
	if !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("expected error to wrap ErrNotFound, got %v", err)
	}
}

// TestUpdateStatus verifies a matching-version transition bumps the
// version.
func (s *StoreTestSuite) TestUpdateStatus(t *testing.T) {
	st := s.NewStore(t)
	defer st.Close()
	ctx := context.Background()

	if err := st.Insert(ctx, s.record("rec-1", "user-1", "job")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := st.UpdateStatus(ctx, "rec-1", memory.StatusArchived, 1); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	got, err := st.GetByID(ctx, "rec-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Status != memory.StatusArchived {
		t.Errorf("expected archived, got %s", got.Status)
	}
	if got.Version != 2 {
		t.Errorf("expected version 2 after transition, got %d", got.Version)
	}
}

// TestUpdateStatusVersionConflict verifies a stale expected version is
// rejected with a conflict and leaves the record untouched.
func (s *StoreTestSuite) TestUpdateStatusVersionConflict(t *testing.T) {
	st := s.NewStore(t)
	defer st.Close()
	ctx := context.Background()

	if err := st.Insert(ctx, s.record("rec-1", "user-1", "job")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	err := st.UpdateStatus(ctx, "rec-1", memory.StatusArchived, 7)
	if !memory.IsConflict(err) {
		t.Fatalf("expected conflict error, got %v", err)
	}

	got, _ := st.GetByID(ctx, "rec-1")
	if got.Status != memory.StatusActive || got.Version != 1 {
		t.Errorf("record mutated by failed transition: %+v", got)
	}
}

// TestUpdateStatusForwardOnly verifies archived and deleted records
// cannot transition again.
func (s *StoreTestSuite) TestUpdateStatusForwardOnly(t *testing.T) {
	st := s.NewStore(t)
	defer st.Close()
	ctx := context.Background()

	if err := st.Insert(ctx, s.record("rec-1", "user-1", "job")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := st.UpdateStatus(ctx, "rec-1", memory.StatusArchived, 1); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	err := st.UpdateStatus(ctx, "rec-1", memory.StatusActive, 2)
	var inv *InvalidTransitionError
	if !errors.As(err, &inv) {
		t.Errorf("expected InvalidTransitionError for archived->active, got %v", err)
	}
	err = st.UpdateStatus(ctx, "rec-1", memory.StatusDeleted, 2)
	if !errors.As(err, &inv) {
		t.Errorf("expected InvalidTransitionError for archived->deleted, got %v", err)
	}
}

// TestGetActiveBySlot verifies slot lookup is scoped to user, slot and
// active status.
func (s *StoreTestSuite) TestGetActiveBySlot(t *testing.T) {
	st := s.NewStore(t)
	defer st.Close()
	ctx := context.Background()

	a := s.record("rec-a", "user-1", "food_preference")
	b := s.record("rec-b", "user-1", "food_preference")
	other := s.record("rec-c", "user-1", "job")
	foreign := s.record("rec-d", "user-2", "food_preference")
	for _, rec := range []*memory.MemoryRecord{a, b, other, foreign} {
		if err := st.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert %s failed: %v", rec.ID, err)
		}
	}
	if err := st.UpdateStatus(ctx, "rec-b", memory.StatusArchived, 1); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	got, err := st.GetActiveBySlot(ctx, "user-1", "food_preference")
	if err != nil {
		t.Fatalf("GetActiveBySlot failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "rec-a" {
		t.Fatalf("expected [rec-a], got %v", ids(got))
	}

	empty, err := st.GetActiveBySlot(ctx, "user-1", "nothing_here")
	if err != nil {
		t.Fatalf("GetActiveBySlot failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected no records, got %v", ids(empty))
	}
}

// TestListByUser verifies status-filtered listing per user.
func (s *StoreTestSuite) TestListByUser(t *testing.T) {
	st := s.NewStore(t)
	defer st.Close()
	ctx := context.Background()

	for _, rec := range []*memory.MemoryRecord{
		s.record("rec-a", "user-1", "food_preference"),
		s.record("rec-b", "user-1", ""),
		s.record("rec-c", "user-2", ""),
	} {
		if err := st.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert %s failed: %v", rec.ID, err)
		}
	}
	if err := st.UpdateStatus(ctx, "rec-b", memory.StatusArchived, 1); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	active, err := st.ListByUser(ctx, "user-1", memory.StatusActive)
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if len(active) != 1 || active[0].ID != "rec-a" {
		t.Errorf("expected active [rec-a], got %v", ids(active))
	}

	archived, err := st.ListByUser(ctx, "user-1", memory.StatusArchived)
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if len(archived) != 1 || archived[0].ID != "rec-b" {
		t.Errorf("expected archived [rec-b], got %v", ids(archived))
	}
}

// TestListByIDs verifies missing ids are omitted without error.
func (s *StoreTestSuite) TestListByIDs(t *testing.T) {
	st := s.NewStore(t)
	defer st.Close()
	ctx := context.Background()

	for _, rec := range []*memory.MemoryRecord{
		s.record("rec-a", "user-1", ""),
		s.record("rec-b", "user-1", ""),
	} {
		if err := st.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert %s failed: %v", rec.ID, err)
		}
	}

	got, err := st.ListByIDs(ctx, []string{"rec-a", "gone", "rec-b"})
	if err != nil {
		t.Fatalf("ListByIDs failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %v", ids(got))
	}
}

// TestApplyPlan verifies archive targets and insert commit together.
func (s *StoreTestSuite) TestApplyPlan(t *testing.T) {
	st := s.NewStore(t)
	defer st.Close()
	ctx := context.Background()

	old := s.record("rec-old", "user-1", "food_preference")
	if err := st.Insert(ctx, old); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	fresh := s.record("rec-new", "user-1", "food_preference")
	fresh.Supersedes = []string{"rec-old"}
	plan := memory.ResolutionPlan{
		Insert:  fresh,
		Archive: []memory.ArchiveTarget{{ID: "rec-old", Version: 1}},
	}
	if err := st.ApplyPlan(ctx, plan); err != nil {
		t.Fatalf("ApplyPlan failed: %v", err)
	}
	if fresh.Version != 1 {
		t.Errorf("expected version 1 stamped on inserted record, got %d", fresh.Version)
	}

	active, err := st.GetActiveBySlot(ctx, "user-1", "food_preference")
	if err != nil {
		t.Fatalf("GetActiveBySlot failed: %v", err)
	}
	if len(active) != 1 || active[0].ID != "rec-new" {
		t.Fatalf("expected single active rec-new, got %v", ids(active))
	}

	archived, err := st.GetByID(ctx, "rec-old")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if archived.Status != memory.StatusArchived {
		t.Errorf("expected rec-old archived, got %s", archived.Status)
	}
}

// TestApplyPlanConflictAtomicity verifies a version conflict aborts the
// whole plan, including the insert.
func (s *StoreTestSuite) TestApplyPlanConflictAtomicity(t *testing.T) {
	st := s.NewStore(t)
	defer st.Close()
	ctx := context.Background()

	a := s.record("rec-a", "user-1", "food_preference")
	b := s.record("rec-b", "user-1", "food_preference")
	if err := st.Insert(ctx, a); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := st.Insert(ctx, b); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	fresh := s.record("rec-new", "user-1", "food_preference")
	plan := memory.ResolutionPlan{
		Insert: fresh,
		Archive: []memory.ArchiveTarget{
			{ID: "rec-a", Version: 1},
			{ID: "rec-b", Version: 99},
		},
	}
	err := st.ApplyPlan(ctx, plan)
	if !memory.IsConflict(err) {
		t.Fatalf("expected conflict error, got %v", err)
	}

	// Nothing from the plan may have landed.
	if _, err := st.GetByID(ctx, "rec-new"); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("insert leaked through failed plan: %v", err)
	}
	gotA, _ := st.GetByID(ctx, "rec-a")
	if gotA.Status != memory.StatusActive || gotA.Version != 1 {
		t.Errorf("rec-a mutated by failed plan: %+v", gotA)
	}
}

// TestConcurrentApplyPlan races plans against the same slot and checks
// that exactly one wins per round.
func (s *StoreTestSuite) TestConcurrentApplyPlan(t *testing.T) {
	st := s.NewStore(t)
	defer st.Close()
	ctx := context.Background()

	seed := s.record("rec-seed", "user-1", "job")
	if err := st.Insert(ctx, seed); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			fresh := s.record(fmt.Sprintf("rec-%d", n), "user-1", "job")
			fresh.Supersedes = []string{"rec-seed"}
			errs[n] = st.ApplyPlan(ctx, memory.ResolutionPlan{
				Insert:  fresh,
				Archive: []memory.ArchiveTarget{{ID: "rec-seed", Version: 1}},
			})
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
		} else if !memory.IsConflict(err) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if won != 1 {
		t.Errorf("expected exactly one plan to win, got %d", won)
	}
}

func ids(recs []*memory.MemoryRecord) []string {
	out := make([]string, len(recs))
	for i, rec := range recs {
		out[i] = rec.ID
	}
	return out
}
