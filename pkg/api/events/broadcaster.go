package events

import (
	"sync"
	"time"
)

// Event is the canonical event payload broadcast to websocket subscribers.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Broadcaster broadcasts events to in-process subscribers.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
}

// NewBroadcaster creates a broadcaster instance.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan Event]struct{}),
	}
}

// Subscribe subscribes to events with a buffered channel.
func (b *Broadcaster) Subscribe(buffer int) chan Event {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; !ok {
		return
	}
	delete(b.subscribers, ch)
	close(ch)
}

// Broadcast broadcasts a generic event to all subscribers.
func (b *Broadcaster) Broadcast(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	subs := make([]chan Event, 0, len(b.subscribers))
	for ch := range b.subscribers {
		subs = append(subs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			// Drop on overflow to keep broadcasters non-blocking.
		}
	}
}

// BroadcastRecordCreated emits a record creation event.
func (b *Broadcaster) BroadcastRecordCreated(
	id, userID, recordType, slot string,
	supersedes []string,
	createdAt time.Time,
) {
	payload := map[string]any{
		"id":         id,
		"user_id":    userID,
		"type":       recordType,
		"created_at": createdAt.UTC().Format(time.RFC3339Nano),
	}
	if slot != "" {
		payload["slot"] = slot
	}
	if len(supersedes) > 0 {
		payload["supersedes"] = supersedes
	}

	b.Broadcast(Event{
		Type:    "record.created",
		Payload: payload,
	})
}

// BroadcastRecordsArchived emits an archival event for a superseded slot.
func (b *Broadcaster) BroadcastRecordsArchived(userID string, archivedIDs []string, supersededBy string) {
	b.Broadcast(Event{
		Type: "record.archived",
		Payload: map[string]any{
			"user_id":       userID,
			"archived_ids":  archivedIDs,
			"superseded_by": supersededBy,
		},
	})
}

// BroadcastRecordDeleted emits a record deletion event.
func (b *Broadcaster) BroadcastRecordDeleted(userID, id string) {
	b.Broadcast(Event{
		Type: "record.deleted",
		Payload: map[string]any{
			"user_id": userID,
			"id":      id,
		},
	})
}

// BroadcastIndexLagged emits an event for a record whose vector projection
// fell behind the metadata store.
func (b *Broadcaster) BroadcastIndexLagged(id, reason string) {
	b.Broadcast(Event{
		Type: "index.lagged",
		Payload: map[string]any{
			"id":     id,
			"reason": reason,
		},
	})
}

// Close closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, ch)
	}
}
