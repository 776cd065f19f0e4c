package events

import "github.com/temporalmem/temporalmem/pkg/memory"

// Sink adapts a Broadcaster to the engine's event sink contract.
type Sink struct {
	broadcaster *Broadcaster
}

// NewSink creates a sink backed by the broadcaster.
func NewSink(b *Broadcaster) *Sink {
	return &Sink{broadcaster: b}
}

// RecordCreated broadcasts a record creation.
func (s *Sink) RecordCreated(rec *memory.MemoryRecord) {
	s.broadcaster.BroadcastRecordCreated(
		rec.ID, rec.UserID, string(rec.Type), rec.Slot, rec.Supersedes, rec.CreatedAt)
}

// RecordsArchived broadcasts a slot supersession.
func (s *Sink) RecordsArchived(userID string, archivedIDs []string, supersededBy string) {
	s.broadcaster.BroadcastRecordsArchived(userID, archivedIDs, supersededBy)
}

// RecordDeleted broadcasts a record deletion.
func (s *Sink) RecordDeleted(userID, id string) {
	s.broadcaster.BroadcastRecordDeleted(userID, id)
}

// IndexLagged broadcasts a lagged vector projection.
func (s *Sink) IndexLagged(id, reason string) {
	s.broadcaster.BroadcastIndexLagged(id, reason)
}
