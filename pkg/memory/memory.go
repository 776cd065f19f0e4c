package memory

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for the memory engine.
var (
	ErrInvalidUserID     = errors.New("memory: invalid user ID")
	ErrInvalidCandidate  = errors.New("memory: invalid fact candidate")
	ErrInvalidQuery      = errors.New("memory: invalid query")
	ErrInvalidStatus     = errors.New("memory: invalid status")
	ErrDimensionMismatch = errors.New("memory: vector dimension mismatch")
	ErrNotFound          = errors.New("memory: record not found")

	// ErrWriteConflict is returned when the optimistic retry budget for a
	// single candidate is exhausted. Data is never silently dropped.
	ErrWriteConflict = errors.New("memory: write conflict retry budget exhausted")
)

// ConflictError reports an optimistic version check failure inside a
// metadata store transaction. The write path retries on it.
type ConflictError struct {
	ID       string
	Expected uint64
	Actual   uint64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("memory: version conflict on %s: expected %d, found %d", e.ID, e.Expected, e.Actual)
}

// IsConflict reports whether err is (or wraps) a version conflict.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// MetadataStore is the relational metadata collaborator. It is the source of
// truth; implementations must be safe for concurrent use.
type MetadataStore interface {
	// Insert stores a new record. The store initializes the version and
	// stamps it onto rec, so the caller's copy matches persisted state.
	Insert(ctx context.Context, rec *MemoryRecord) error

	// GetByID returns a record by id, or a not-found error.
	GetByID(ctx context.Context, id string) (*MemoryRecord, error)

	// UpdateStatus transitions a record's status. The update is optimistic:
	// it fails with a conflict error when the stored version no longer
	// matches expectedVersion.
	UpdateStatus(ctx context.Context, id string, next Status, expectedVersion uint64) error

	// GetActiveBySlot returns every active record for (userID, slot).
	// Under the slot invariant this is at most one record, but a lost race
	// may transiently leave more.
	GetActiveBySlot(ctx context.Context, userID, slot string) ([]*MemoryRecord, error)

	// ListByUser returns all records for a user with the given status.
	ListByUser(ctx context.Context, userID string, status Status) ([]*MemoryRecord, error)

	// ListByIDs returns the records for the given ids. Missing ids are
	// silently omitted.
	ListByIDs(ctx context.Context, ids []string) ([]*MemoryRecord, error)

	// ApplyPlan commits a resolution plan as a single transaction: every
	// archive target moves to archived (checked against its expected
	// version) and the new record is inserted. Either the whole plan lands
	// or none of it does; a version mismatch surfaces as a conflict error.
	// On success the assigned version is stamped onto plan.Insert.
	ApplyPlan(ctx context.Context, plan ResolutionPlan) error

	Close() error
}

// Match is one vector index search hit.
type Match struct {
	ID    string
	Score float64
}

// VectorIndex is the derived similarity index collaborator. It may lag the
// metadata store or fail independently; it is never the source of truth.
type VectorIndex interface {
	Upsert(ctx context.Context, id string, vector []float32, payload map[string]string) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, userID string, vector []float32, limit int, filters map[string]string) ([]Match, error)
	Close() error
}

// Embedder turns text into a fixed-length vector. The vector length must
// match the index's configured dimension.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Logger is the minimal logging interface used by the engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...any) {}
func (nopLogger) Info(msg string, args ...any)  {}
func (nopLogger) Warn(msg string, args ...any)  {}
func (nopLogger) Error(msg string, args ...any) {}

// Recorder receives engine metrics. Implemented by pkg/metrics.
type Recorder interface {
	RecordWrite(recordType string)
	RecordArchived(count int)
	RecordWriteRetry()
	RecordWriteConflictExhausted()
	RecordCandidateSkipped(reason string)
	RecordIndexLag(reason string)
	RecordIndexRecovered()
	RecordSearch(degraded bool)
	RecordStaleHitsDropped(count int)
}

type nopRecorder struct{}

func (nopRecorder) RecordWrite(string)            {}
func (nopRecorder) RecordArchived(int)            {}
func (nopRecorder) RecordWriteRetry()             {}
func (nopRecorder) RecordWriteConflictExhausted() {}
func (nopRecorder) RecordCandidateSkipped(string) {}
func (nopRecorder) RecordIndexLag(string)         {}
func (nopRecorder) RecordIndexRecovered()         {}
func (nopRecorder) RecordSearch(bool)             {}
func (nopRecorder) RecordStaleHitsDropped(int)    {}

// EventSink receives write-path events. Implemented by pkg/api/events.
type EventSink interface {
	RecordCreated(rec *MemoryRecord)
	RecordsArchived(userID string, archivedIDs []string, supersededBy string)
	RecordDeleted(userID, id string)
	IndexLagged(id, reason string)
}

type nopEventSink struct{}

func (nopEventSink) RecordCreated(*MemoryRecord)            {}
func (nopEventSink) RecordsArchived(string, []string, string) {}
func (nopEventSink) RecordDeleted(string, string)           {}
func (nopEventSink) IndexLagged(string, string)             {}
