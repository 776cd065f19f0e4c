package memory

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// EngineConfig holds engine tunables.
type EngineConfig struct {
	// RetryBudget bounds optimistic commit retries per candidate.
	RetryBudget int

	// ReindexInterval is how often the background worker retries lagged
	// vector upserts. Zero disables the worker.
	ReindexInterval time.Duration

	// TypeDefaults supplies default decay half-lives per record type.
	TypeDefaults TypeDefaults

	// Locker serializes same-slot writes. Defaults to the in-process
	// keyed locker when nil.
	Locker SlotLocker
}

// Engine is the process-facing facade over the write and read coordinators.
// It also owns the reindex worker that drains indexing lag: records whose
// vector upsert failed stay correct and active in the metadata store and are
// retried here until the index catches up. Expiry is never processed here;
// it remains a read-time filter.
type Engine struct {
	mu sync.Mutex

	writer *WriteCoordinator
	reader *ReadCoordinator
	log    Logger

	reindexInterval time.Duration
	pending         map[string]struct{}
	cancel          context.CancelFunc
	done            chan struct{}
	started         bool
}

// NewEngine wires an engine from its collaborators.
func NewEngine(cfg EngineConfig, store MetadataStore, index VectorIndex, embedder Embedder, log Logger, metrics Recorder, events EventSink) *Engine {
	if log == nil {
		log = nopLogger{}
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	if events == nil {
		events = nopEventSink{}
	}

	locker := cfg.Locker
	if locker == nil {
		locker = NewKeyedSlotLocker()
	}
	writer := NewWriteCoordinator(store, index, embedder, locker,
		WithRetryBudget(cfg.RetryBudget),
		WithTypeDefaults(cfg.TypeDefaults),
		WithWriterLogger(log),
		WithWriterRecorder(metrics),
		WithWriterEvents(events),
	)
	reader := NewReadCoordinator(store, index, embedder,
		WithReaderLogger(log),
		WithReaderRecorder(metrics),
	)

	return &Engine{
		writer:          writer,
		reader:          reader,
		log:             log,
		reindexInterval: cfg.ReindexInterval,
		pending:         make(map[string]struct{}),
		done:            make(chan struct{}),
	}
}

// Start launches the reindex worker.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return fmt.Errorf("memory: engine already started")
	}
	e.started = true
	e.done = make(chan struct{})
	e.cancel = nil

	if e.reindexInterval > 0 {
		loopCtx, cancel := context.WithCancel(ctx)
		e.cancel = cancel
		go e.reindexLoop(loopCtx, e.done)
	} else {
		close(e.done)
	}

	e.log.Info("memory engine started", "reindex_interval", e.reindexInterval)
	return nil
}

// Stop shuts the engine down, waiting for the reindex worker to exit.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return nil
	}
	e.started = false
	if e.cancel != nil {
		e.cancel()
	}
	select {
	case <-e.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	e.log.Info("memory engine stopped")
	return nil
}

// WriteBatch commits a batch of candidates and enqueues any lagged records
// for background reindexing.
func (e *Engine) WriteBatch(ctx context.Context, userID, sourceTurnID string, candidates []FactCandidate) (*BatchResult, error) {
	batch, err := e.writer.WriteBatch(ctx, userID, sourceTurnID, candidates)
	if err != nil {
		return nil, err
	}
	if lagged := batch.Lagged(); len(lagged) > 0 {
		e.mu.Lock()
		for _, id := range lagged {
			e.pending[id] = struct{}{}
		}
		e.mu.Unlock()
	}
	return batch, nil
}

// Search proxies to the read coordinator.
func (e *Engine) Search(ctx context.Context, userID, query string, limit int, filters map[string]string) (*SearchResult, error) {
	return e.reader.Search(ctx, userID, query, limit, filters)
}

// List proxies to the read coordinator.
func (e *Engine) List(ctx context.Context, userID string, status Status) ([]RankedRecord, error) {
	return e.reader.List(ctx, userID, status)
}

// Get proxies to the read coordinator.
func (e *Engine) Get(ctx context.Context, userID, id string) (*MemoryRecord, error) {
	return e.reader.Get(ctx, userID, id)
}

// Delete handles an explicit deletion request.
func (e *Engine) Delete(ctx context.Context, userID, id string) error {
	return e.writer.Delete(ctx, userID, id)
}

// PendingReindex returns how many records are waiting for index recovery.
func (e *Engine) PendingReindex() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Started reports whether the engine is running.
func (e *Engine) Started() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started
}

// EngineStatus is a point-in-time snapshot for the status endpoint.
type EngineStatus struct {
	Started         bool          `json:"started"`
	PendingReindex  int           `json:"pending_reindex"`
	ReindexInterval time.Duration `json:"reindex_interval"`
}

// Status returns a snapshot of the engine state.
func (e *Engine) Status() EngineStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return EngineStatus{
		Started:         e.started,
		PendingReindex:  len(e.pending),
		ReindexInterval: e.reindexInterval,
	}
}

// reindexLoop periodically retries lagged vector upserts. Each Start
// hands the loop its own done channel so a restarted engine never
// touches the previous run's channel.
func (e *Engine) reindexLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(e.reindexInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.drainPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) drainPending(ctx context.Context) {
	e.mu.Lock()
	ids := make([]string, 0, len(e.pending))
	for id := range e.pending {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		if err := e.writer.Reindex(ctx, id); err != nil {
			e.log.Warn("reindex retry failed", "record_id", id, "error", err)
			continue
		}
		e.mu.Lock()
		delete(e.pending, id)
		e.mu.Unlock()
		e.log.Debug("reindexed lagged record", "record_id", id)
	}
}
