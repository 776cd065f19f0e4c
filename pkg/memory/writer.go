package memory

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultRetryBudget bounds optimistic commit retries per candidate.
const DefaultRetryBudget = 3

// TypeDefaults supplies a decay half-life (in days) per record type for
// candidates that carry none. Zero means no decay for that type.
type TypeDefaults map[Type]int

// CandidateResult is the per-candidate outcome of a batch write. A batch is
// processed candidate-by-candidate, so one failure never blocks or rolls
// back the others.
type CandidateResult struct {
	// Index is the candidate's position in the submitted batch.
	Index int `json:"index"`

	// Record is the stored record, nil when the candidate was skipped.
	Record *MemoryRecord `json:"record,omitempty"`

	// Err reports why the candidate was skipped or failed.
	Err error `json:"-"`

	// Error is the string form of Err for transport.
	Error string `json:"error,omitempty"`

	// IndexLag is set when the record was committed to the metadata store
	// but its vector upsert failed. The record is correct and active, just
	// not yet searchable by similarity; indexing can be retried later.
	IndexLag bool `json:"index_lag,omitempty"`
}

// BatchResult reports the outcome of a whole batch write.
type BatchResult struct {
	Results []CandidateResult `json:"results"`
}

// Stored returns the records that were committed.
func (b *BatchResult) Stored() []*MemoryRecord {
	recs := make([]*MemoryRecord, 0, len(b.Results))
	for _, r := range b.Results {
		if r.Record != nil {
			recs = append(recs, r.Record)
		}
	}
	return recs
}

// Lagged returns the ids of committed records whose vector upsert failed.
func (b *BatchResult) Lagged() []string {
	var ids []string
	for _, r := range b.Results {
		if r.Record != nil && r.IndexLag {
			ids = append(ids, r.Record.ID)
		}
	}
	return ids
}

// WriteCoordinator owns the full write path: per-slot serialization,
// conflict resolution, the transactional metadata commit with optimistic
// retry, and the derived vector index update. The metadata store is always
// updated before the vector index, never the reverse.
type WriteCoordinator struct {
	store    MetadataStore
	index    VectorIndex
	embedder Embedder
	locker   SlotLocker
	resolver ConflictResolver

	retryBudget int
	defaults    TypeDefaults
	now         func() time.Time

	log     Logger
	metrics Recorder
	events  EventSink
}

// WriterOption configures a WriteCoordinator.
type WriterOption func(*WriteCoordinator)

// WithRetryBudget overrides the optimistic commit retry budget.
func WithRetryBudget(n int) WriterOption {
	return func(w *WriteCoordinator) {
		if n > 0 {
			w.retryBudget = n
		}
	}
}

// WithTypeDefaults sets per-type default half-lives.
func WithTypeDefaults(d TypeDefaults) WriterOption {
	return func(w *WriteCoordinator) { w.defaults = d }
}

// WithWriterLogger sets the coordinator logger.
func WithWriterLogger(log Logger) WriterOption {
	return func(w *WriteCoordinator) {
		if log != nil {
			w.log = log
		}
	}
}

// WithWriterRecorder sets the metrics recorder.
func WithWriterRecorder(rec Recorder) WriterOption {
	return func(w *WriteCoordinator) {
		if rec != nil {
			w.metrics = rec
		}
	}
}

// WithWriterEvents sets the event sink.
func WithWriterEvents(sink EventSink) WriterOption {
	return func(w *WriteCoordinator) {
		if sink != nil {
			w.events = sink
		}
	}
}

// WithClock overrides the coordinator clock, used by tests.
func WithClock(now func() time.Time) WriterOption {
	return func(w *WriteCoordinator) {
		if now != nil {
			w.now = now
		}
	}
}

// NewWriteCoordinator wires a write coordinator.
func NewWriteCoordinator(store MetadataStore, index VectorIndex, embedder Embedder, locker SlotLocker, opts ...WriterOption) *WriteCoordinator {
	w := &WriteCoordinator{
		store:       store,
		index:       index,
		embedder:    embedder,
		locker:      locker,
		retryBudget: DefaultRetryBudget,
		now:         time.Now,
		log:         nopLogger{},
		metrics:     nopRecorder{},
		events:      nopEventSink{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteBatch processes candidates in submission order. Each candidate is
// committed independently; the returned BatchResult carries the per-candidate
// outcome. The only batch-level error is an invalid user id.
func (w *WriteCoordinator) WriteBatch(ctx context.Context, userID, sourceTurnID string, candidates []FactCandidate) (*BatchResult, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}

	batch := &BatchResult{Results: make([]CandidateResult, 0, len(candidates))}
	for i, cand := range candidates {
		res := CandidateResult{Index: i}

		rec, indexLag, err := w.writeOne(ctx, userID, sourceTurnID, cand)
		if err != nil {
			res.Err = err
			res.Error = err.Error()
			w.metrics.RecordCandidateSkipped(skipReason(err))
			w.log.Warn("candidate write failed",
				"user_id", userID,
				"slot", cand.Slot,
				"index", i,
				"error", err,
			)
		} else {
			res.Record = rec
			res.IndexLag = indexLag
		}
		batch.Results = append(batch.Results, res)
	}
	return batch, nil
}

// writeOne runs the full path for a single candidate.
func (w *WriteCoordinator) writeOne(ctx context.Context, userID, sourceTurnID string, cand FactCandidate) (*MemoryRecord, bool, error) {
	if err := cand.Validate(); err != nil {
		return nil, false, err
	}

	draft := NewRecord(cand, userID, sourceTurnID, w.now())
	if draft.DecayHalfLifeDays == 0 {
		draft.DecayHalfLifeDays = w.defaults[draft.Type]
	}

	committed, archived, err := w.commit(ctx, draft)
	if err != nil {
		return nil, false, err
	}
	w.metrics.RecordWrite(string(committed.Type))
	w.events.RecordCreated(committed)
	if len(archived) > 0 {
		w.metrics.RecordArchived(len(archived))
		w.events.RecordsArchived(userID, archived, committed.ID)
	}

	// Index maintenance runs outside the lock: the metadata store is
	// already consistent, so a failure here only delays searchability.
	lag := w.updateIndex(ctx, committed, archived)
	return committed, lag, nil
}

// commit serializes on the slot lock and retries the read-resolve-apply
// cycle until it lands or the budget runs out.
func (w *WriteCoordinator) commit(ctx context.Context, draft *MemoryRecord) (*MemoryRecord, []string, error) {
	release, err := w.locker.Acquire(ctx, draft.UserID, draft.Slot)
	if err != nil {
		return nil, nil, fmt.Errorf("memory: acquire slot lock: %w", err)
	}
	defer release()

	var lastErr error
	for attempt := 0; attempt < w.retryBudget; attempt++ {
		var current []*MemoryRecord
		if draft.Slot != "" {
			current, err = w.store.GetActiveBySlot(ctx, draft.UserID, draft.Slot)
			if err != nil {
				return nil, nil, fmt.Errorf("memory: read slot state: %w", err)
			}
		}

		plan := w.resolver.Resolve(draft, current)
		if err := w.store.ApplyPlan(ctx, plan); err != nil {
			if IsConflict(err) {
				// Another writer archived one of our targets after
				// our read. Re-read and resolve against fresh state.
				lastErr = err
				w.metrics.RecordWriteRetry()
				w.log.Debug("optimistic conflict, retrying",
					"user_id", draft.UserID,
					"slot", draft.Slot,
					"attempt", attempt+1,
				)
				continue
			}
			return nil, nil, fmt.Errorf("memory: commit plan: %w", err)
		}

		archived := make([]string, 0, len(plan.Archive))
		for _, t := range plan.Archive {
			archived = append(archived, t.ID)
		}
		return plan.Insert, archived, nil
	}

	w.metrics.RecordWriteConflictExhausted()
	return nil, nil, fmt.Errorf("%w: %v", ErrWriteConflict, lastErr)
}

// updateIndex embeds the committed record and upserts it into the vector
// index, then best-effort removes archived predecessors. Returns true when
// the record's own upsert lagged.
func (w *WriteCoordinator) updateIndex(ctx context.Context, rec *MemoryRecord, archived []string) bool {
	lag := false

	vec, err := w.embedder.Embed(ctx, rec.Text)
	if err != nil {
		lag = true
		w.metrics.RecordIndexLag("embedding")
		w.events.IndexLagged(rec.ID, "embedding")
		w.log.Warn("embedding failed, record not yet searchable",
			"record_id", rec.ID, "error", err)
	} else if err := w.index.Upsert(ctx, rec.ID, vec, IndexPayload(rec)); err != nil {
		lag = true
		w.metrics.RecordIndexLag("upsert")
		w.events.IndexLagged(rec.ID, "upsert")
		w.log.Warn("vector upsert failed, record not yet searchable",
			"record_id", rec.ID, "error", err)
	}

	for _, id := range archived {
		if err := w.index.Delete(ctx, id); err != nil {
			w.metrics.RecordIndexLag("delete")
			w.log.Warn("vector delete failed for archived record",
				"record_id", id, "error", err)
		}
	}
	return lag
}

// Reindex retries the vector upsert for a committed record, used by the
// background reindex worker to drain indexing lag.
func (w *WriteCoordinator) Reindex(ctx context.Context, id string) error {
	rec, err := w.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if rec.Status != StatusActive {
		// The record was archived or deleted while the upsert was
		// pending. Its vector must not come back, so the retry is done.
		return nil
	}
	vec, err := w.embedder.Embed(ctx, rec.Text)
	if err != nil {
		return fmt.Errorf("memory: reindex embed: %w", err)
	}
	if err := w.index.Upsert(ctx, rec.ID, vec, IndexPayload(rec)); err != nil {
		return fmt.Errorf("memory: reindex upsert: %w", err)
	}
	w.metrics.RecordIndexRecovered()
	return nil
}

// Delete handles an explicit external deletion request: the record moves to
// deleted (forward-only) and its vector is removed best-effort.
func (w *WriteCoordinator) Delete(ctx context.Context, userID, id string) error {
	rec, err := w.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if rec.UserID != userID {
		return ErrNotFound
	}
	if err := w.store.UpdateStatus(ctx, id, StatusDeleted, rec.Version); err != nil {
		return err
	}
	w.events.RecordDeleted(userID, id)
	if err := w.index.Delete(ctx, id); err != nil {
		w.metrics.RecordIndexLag("delete")
		w.log.Warn("vector delete failed", "record_id", id, "error", err)
	}
	return nil
}

// IndexPayload builds the vector point payload mirrored from the record,
// the fields the index supports filtering on.
func IndexPayload(rec *MemoryRecord) map[string]string {
	payload := map[string]string{
		"user_id":    rec.UserID,
		"type":       string(rec.Type),
		"status":     string(rec.Status),
		"created_at": rec.CreatedAt.UTC().Format(time.RFC3339),
	}
	if rec.Slot != "" {
		payload["slot"] = rec.Slot
	}
	return payload
}

func skipReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCandidate):
		return "invalid_candidate"
	case errors.Is(err, ErrWriteConflict):
		return "conflict_exhausted"
	default:
		return "store_error"
	}
}
