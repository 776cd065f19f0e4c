package memory

import (
	"context"
	"fmt"
	"time"
)

// SearchResult is a ranked search response. Degraded marks responses that
// were produced without vector similarity (embedding or index unavailable),
// so callers can distinguish exact from approximate results.
type SearchResult struct {
	Records  []RankedRecord `json:"records"`
	Degraded bool           `json:"degraded,omitempty"`
}

// ReadCoordinator orchestrates search and listing: it fans out to the vector
// index and the metadata store, reconciles the two, and ranks the merged
// result. Reads take no locks; a reader may briefly observe a just-archived
// record as still active, bounded by the metadata store's own isolation.
type ReadCoordinator struct {
	store    MetadataStore
	index    VectorIndex
	embedder Embedder
	now      func() time.Time

	log     Logger
	metrics Recorder
}

// ReaderOption configures a ReadCoordinator.
type ReaderOption func(*ReadCoordinator)

// WithReaderLogger sets the coordinator logger.
func WithReaderLogger(log Logger) ReaderOption {
	return func(r *ReadCoordinator) {
		if log != nil {
			r.log = log
		}
	}
}

// WithReaderRecorder sets the metrics recorder.
func WithReaderRecorder(rec Recorder) ReaderOption {
	return func(r *ReadCoordinator) {
		if rec != nil {
			r.metrics = rec
		}
	}
}

// WithReaderClock overrides the coordinator clock, used by tests.
func WithReaderClock(now func() time.Time) ReaderOption {
	return func(r *ReadCoordinator) {
		if now != nil {
			r.now = now
		}
	}
}

// NewReadCoordinator wires a read coordinator.
func NewReadCoordinator(store MetadataStore, index VectorIndex, embedder Embedder, opts ...ReaderOption) *ReadCoordinator {
	r := &ReadCoordinator{
		store:    store,
		index:    index,
		embedder: embedder,
		now:      time.Now,
		log:      nopLogger{},
		metrics:  nopRecorder{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Search runs a similarity query: embed the query text, ask the index for
// the nearest neighbors scoped to userID and the supplied payload filters,
// fetch the full records from the metadata store (ids the store no longer
// has are silently dropped as index staleness), and rank with the similarity
// map. If embedding or the index fails the call degrades to a metadata-only
// listing over active records instead of failing.
func (r *ReadCoordinator) Search(ctx context.Context, userID, query string, limit int, filters map[string]string) (*SearchResult, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	if query == "" {
		return nil, ErrInvalidQuery
	}
	if limit <= 0 {
		limit = 10
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.log.Warn("query embedding failed, degrading to metadata-only search",
			"user_id", userID, "error", err)
		return r.degraded(ctx, userID, limit)
	}

	matches, err := r.index.Search(ctx, userID, vec, limit, filters)
	if err != nil {
		r.log.Warn("vector index unavailable, degrading to metadata-only search",
			"user_id", userID, "error", err)
		return r.degraded(ctx, userID, limit)
	}

	ids := make([]string, 0, len(matches))
	similarity := make(map[string]float64, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ID)
		similarity[m.ID] = m.Score
	}

	records, err := r.store.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("memory: fetch search hits: %w", err)
	}
	if stale := len(ids) - len(records); stale > 0 {
		r.metrics.RecordStaleHitsDropped(stale)
		r.log.Debug("dropped stale index hits", "user_id", userID, "count", stale)
	}

	ranked := Rank(records, similarity, r.now())
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	r.metrics.RecordSearch(false)
	return &SearchResult{Records: ranked}, nil
}

// List returns every record for the user with the given status, ranked by
// recency and confidence alone (similarity fixed at 1.0 for list callers).
func (r *ReadCoordinator) List(ctx context.Context, userID string, status Status) ([]RankedRecord, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	records, err := r.store.ListByUser(ctx, userID, status)
	if err != nil {
		return nil, fmt.Errorf("memory: list records: %w", err)
	}
	return RankByStatus(records, nil, r.now(), status), nil
}

// Get fetches one record by id, scoped to the user.
func (r *ReadCoordinator) Get(ctx context.Context, userID, id string) (*MemoryRecord, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	rec, err := r.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.UserID != userID {
		return nil, ErrNotFound
	}
	return rec, nil
}

// degraded approximates a search with list semantics over active records.
func (r *ReadCoordinator) degraded(ctx context.Context, userID string, limit int) (*SearchResult, error) {
	records, err := r.store.ListByUser(ctx, userID, StatusActive)
	if err != nil {
		return nil, fmt.Errorf("memory: degraded search: %w", err)
	}
	ranked := Rank(records, nil, r.now())
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	r.metrics.RecordSearch(true)
	return &SearchResult{Records: ranked, Degraded: true}, nil
}
