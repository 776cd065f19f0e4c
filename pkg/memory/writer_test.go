package memory_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/temporalmem/temporalmem/pkg/embedding/mock"
	"github.com/temporalmem/temporalmem/pkg/memory"
	"github.com/temporalmem/temporalmem/pkg/store/memstore"
	"github.com/temporalmem/temporalmem/pkg/vector/local"
)

// faultyIndex wraps a vector index and fails upserts on demand.
type faultyIndex struct {
	memory.VectorIndex

	mu         sync.Mutex
	failUpsert bool
}

func (f *faultyIndex) setFailUpsert(fail bool) {
	f.mu.Lock()
	f.failUpsert = fail
	f.mu.Unlock()
}

func (f *faultyIndex) Upsert(ctx context.Context, id string, vector []float32, payload map[string]string) error {
	f.mu.Lock()
	fail := f.failUpsert
	f.mu.Unlock()
	if fail {
		return errors.New("index unavailable")
	}
	return f.VectorIndex.Upsert(ctx, id, vector, payload)
}

// conflictingStore wraps a metadata store and forces version conflicts on
// ApplyPlan.
type conflictingStore struct {
	memory.MetadataStore
	conflicts int
}

func (c *conflictingStore) ApplyPlan(ctx context.Context, plan memory.ResolutionPlan) error {
	if c.conflicts > 0 {
		c.conflicts--
		return &memory.ConflictError{ID: plan.Insert.ID, Expected: 1, Actual: 2}
	}
	return c.MetadataStore.ApplyPlan(ctx, plan)
}

func newWriter(t *testing.T, opts ...memory.WriterOption) (*memory.WriteCoordinator, memory.MetadataStore) {
	t.Helper()
	st := memstore.New()
	base := []memory.WriterOption{
		memory.WithTypeDefaults(memory.TypeDefaults{
			memory.TypePreference: 180,
			memory.TypeTempState:  2,
		}),
	}
	w := memory.NewWriteCoordinator(st, local.New(mock.DefaultDimension), mock.New(mock.DefaultDimension),
		memory.NewKeyedSlotLocker(), append(base, opts...)...)
	return w, st
}

func prefCandidate(text, slot string) memory.FactCandidate {
	return memory.FactCandidate{
		Text:       text,
		Category:   memory.CategoryPreference,
		Slot:       slot,
		Confidence: 0.9,
	}
}

func TestWriteBatch_StoresRecord(t *testing.T) {
	w, st := newWriter(t)
	ctx := context.Background()

	batch, err := w.WriteBatch(ctx, "user-1", "turn-1", []memory.FactCandidate{
		prefCandidate("User prefers espresso", "coffee_preference"),
	})
	if err != nil {
		t.Fatalf("WriteBatch failed: %v", err)
	}

	rec := batch.Results[0].Record
	if rec == nil {
		t.Fatalf("candidate failed: %s", batch.Results[0].Error)
	}
	if rec.Version != 1 {
		t.Errorf("version = %d, want 1", rec.Version)
	}
	if rec.SourceTurnID != "turn-1" {
		t.Errorf("source_turn_id = %q, want turn-1", rec.SourceTurnID)
	}
	if rec.DecayHalfLifeDays != 180 {
		t.Errorf("half-life = %d, want type default 180", rec.DecayHalfLifeDays)
	}

	stored, err := st.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("stored record not found: %v", err)
	}
	if stored.Status != memory.StatusActive {
		t.Errorf("status = %q, want active", stored.Status)
	}
	if stored.Version != rec.Version {
		t.Errorf("returned version %d does not match stored version %d", rec.Version, stored.Version)
	}
}

func TestWriteBatch_EmptyUserID(t *testing.T) {
	w, _ := newWriter(t)

	if _, err := w.WriteBatch(context.Background(), "", "", nil); !errors.Is(err, memory.ErrInvalidUserID) {
		t.Fatalf("err = %v, want ErrInvalidUserID", err)
	}
}

func TestWriteBatch_SlotSupersedes(t *testing.T) {
	w, st := newWriter(t)
	ctx := context.Background()

	first, err := w.WriteBatch(ctx, "user-1", "", []memory.FactCandidate{
		prefCandidate("User prefers espresso", "coffee_preference"),
	})
	if err != nil {
		t.Fatal(err)
	}
	second, err := w.WriteBatch(ctx, "user-1", "", []memory.FactCandidate{
		prefCandidate("User prefers flat white", "coffee_preference"),
	})
	if err != nil {
		t.Fatal(err)
	}

	firstID := first.Results[0].Record.ID
	winner := second.Results[0].Record
	if len(winner.Supersedes) != 1 || winner.Supersedes[0] != firstID {
		t.Fatalf("supersedes = %v, want [%s]", winner.Supersedes, firstID)
	}

	// Exactly one active record per (user, slot).
	active, err := st.GetActiveBySlot(ctx, "user-1", "coffee_preference")
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].ID != winner.ID {
		t.Fatalf("active in slot = %v, want only the winner", active)
	}

	// The loser is archived, not deleted.
	loser, err := st.GetByID(ctx, firstID)
	if err != nil {
		t.Fatal(err)
	}
	if loser.Status != memory.StatusArchived {
		t.Errorf("superseded status = %q, want archived", loser.Status)
	}
}

func TestWriteBatch_UnslottedNeverConflicts(t *testing.T) {
	w, st := newWriter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		batch, err := w.WriteBatch(ctx, "user-1", "", []memory.FactCandidate{
			prefCandidate(fmt.Sprintf("Note %d", i), ""),
		})
		if err != nil {
			t.Fatal(err)
		}
		if got := batch.Results[0].Record.Supersedes; got != nil {
			t.Errorf("unslotted supersedes = %v, want nil", got)
		}
	}

	records, err := st.ListByUser(ctx, "user-1", memory.StatusActive)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("active records = %d, want 3 coexisting", len(records))
	}
}

func TestWriteBatch_InvalidCandidateSkipped(t *testing.T) {
	w, _ := newWriter(t)

	batch, err := w.WriteBatch(context.Background(), "user-1", "", []memory.FactCandidate{
		{Text: "", Category: memory.CategoryPreference, Confidence: 0.9},
		{Text: "ok", Category: "bogus", Confidence: 0.9},
		{Text: "ok", Category: memory.CategoryPreference, Confidence: 1.5},
		prefCandidate("User prefers espresso", "coffee_preference"),
	})
	if err != nil {
		t.Fatalf("batch-level error: %v", err)
	}

	for i := 0; i < 3; i++ {
		if batch.Results[i].Record != nil {
			t.Errorf("candidate %d stored, want skipped", i)
		}
		if batch.Results[i].Error == "" {
			t.Errorf("candidate %d missing error", i)
		}
	}
	if batch.Results[3].Record == nil {
		t.Error("valid candidate should still be stored")
	}
}

func TestWriteBatch_IndexLagKeepsRecordActive(t *testing.T) {
	st := memstore.New()
	idx := &faultyIndex{VectorIndex: local.New(mock.DefaultDimension)}
	idx.setFailUpsert(true)
	w := memory.NewWriteCoordinator(st, idx, mock.New(mock.DefaultDimension), memory.NewKeyedSlotLocker())
	ctx := context.Background()

	batch, err := w.WriteBatch(ctx, "user-1", "", []memory.FactCandidate{
		prefCandidate("User prefers espresso", "coffee_preference"),
	})
	if err != nil {
		t.Fatal(err)
	}

	res := batch.Results[0]
	if res.Record == nil {
		t.Fatalf("record not committed: %s", res.Error)
	}
	if !res.IndexLag {
		t.Fatal("expected index lag to be reported")
	}
	if got := batch.Lagged(); len(got) != 1 || got[0] != res.Record.ID {
		t.Fatalf("Lagged() = %v, want the committed id", got)
	}

	// The metadata store is the source of truth: the record stays active.
	stored, err := st.GetByID(ctx, res.Record.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != memory.StatusActive {
		t.Errorf("status = %q, want active despite index lag", stored.Status)
	}

	// Reindex drains the lag once the index recovers.
	idx.setFailUpsert(false)
	if err := w.Reindex(ctx, res.Record.ID); err != nil {
		t.Fatalf("Reindex failed: %v", err)
	}
}

func TestReindex_SkipsInactiveRecord(t *testing.T) {
	st := memstore.New()
	base := local.New(mock.DefaultDimension)
	idx := &faultyIndex{VectorIndex: base}
	idx.setFailUpsert(true)
	w := memory.NewWriteCoordinator(st, idx, mock.New(mock.DefaultDimension), memory.NewKeyedSlotLocker())
	ctx := context.Background()

	batch, err := w.WriteBatch(ctx, "user-1", "", []memory.FactCandidate{
		prefCandidate("User prefers espresso", "coffee_preference"),
	})
	if err != nil {
		t.Fatal(err)
	}
	res := batch.Results[0]
	if res.Record == nil || !res.IndexLag {
		t.Fatalf("expected committed record with index lag, got %+v", res)
	}

	// The record is deleted before the background retry runs. The retry
	// must not resurrect its vector.
	if err := w.Delete(ctx, "user-1", res.Record.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	idx.setFailUpsert(false)
	if err := w.Reindex(ctx, res.Record.ID); err != nil {
		t.Fatalf("Reindex on deleted record should succeed as a no-op, got %v", err)
	}
	if base.Len() != 0 {
		t.Fatalf("deleted record reappeared in the index, len = %d", base.Len())
	}
}

func TestWriteBatch_RetriesOnConflict(t *testing.T) {
	st := &conflictingStore{MetadataStore: memstore.New(), conflicts: 2}
	w := memory.NewWriteCoordinator(st, local.New(mock.DefaultDimension), mock.New(mock.DefaultDimension),
		memory.NewKeyedSlotLocker(), memory.WithRetryBudget(3))

	batch, err := w.WriteBatch(context.Background(), "user-1", "", []memory.FactCandidate{
		prefCandidate("User prefers espresso", "coffee_preference"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if batch.Results[0].Record == nil {
		t.Fatalf("write should succeed within the budget: %s", batch.Results[0].Error)
	}
}

func TestWriteBatch_ConflictBudgetExhausted(t *testing.T) {
	st := &conflictingStore{MetadataStore: memstore.New(), conflicts: 100}
	w := memory.NewWriteCoordinator(st, local.New(mock.DefaultDimension), mock.New(mock.DefaultDimension),
		memory.NewKeyedSlotLocker(), memory.WithRetryBudget(3))

	batch, err := w.WriteBatch(context.Background(), "user-1", "", []memory.FactCandidate{
		prefCandidate("User prefers espresso", "coffee_preference"),
	})
	if err != nil {
		t.Fatal(err)
	}

	res := batch.Results[0]
	if res.Record != nil {
		t.Fatal("exhausted write must not report a stored record")
	}
	if !errors.Is(res.Err, memory.ErrWriteConflict) {
		t.Fatalf("err = %v, want ErrWriteConflict", res.Err)
	}
}

func TestDelete(t *testing.T) {
	w, st := newWriter(t)
	ctx := context.Background()

	batch, err := w.WriteBatch(ctx, "user-1", "", []memory.FactCandidate{
		prefCandidate("User prefers espresso", "coffee_preference"),
	})
	if err != nil {
		t.Fatal(err)
	}
	id := batch.Results[0].Record.ID

	if err := w.Delete(ctx, "user-1", id); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	rec, err := st.GetByID(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != memory.StatusDeleted {
		t.Errorf("status = %q, want deleted", rec.Status)
	}

	// Deleting again is a forward-only transition violation.
	if err := w.Delete(ctx, "user-1", id); err == nil {
		t.Fatal("expected error deleting a non-active record")
	}
}

func TestDelete_WrongUser(t *testing.T) {
	w, _ := newWriter(t)
	ctx := context.Background()

	batch, err := w.WriteBatch(ctx, "user-1", "", []memory.FactCandidate{
		prefCandidate("User prefers espresso", "coffee_preference"),
	})
	if err != nil {
		t.Fatal(err)
	}
	id := batch.Results[0].Record.ID

	if err := w.Delete(ctx, "user-2", id); !errors.Is(err, memory.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound for foreign record", err)
	}
}

func TestWriteBatch_ConcurrentSameSlot(t *testing.T) {
	w, st := newWriter(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := w.WriteBatch(ctx, "user-1", "", []memory.FactCandidate{
				prefCandidate(fmt.Sprintf("Preference %d", i), "coffee_preference"),
			})
			if err != nil {
				t.Errorf("WriteBatch failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	active, err := st.GetActiveBySlot(ctx, "user-1", "coffee_preference")
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 {
		t.Fatalf("active in slot = %d, want exactly 1 after concurrent writes", len(active))
	}
}
