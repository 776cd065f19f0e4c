// Package memory implements the temporal memory engine: slot-based conflict
// resolution, exponential temporal decay ranking, and coordination of the
// metadata store (source of truth) with the vector index (derived projection).
package memory

import (
	"time"

	"github.com/google/uuid"
)

// Category classifies a fact candidate as produced by extraction.
type Category string

const (
	CategoryProfile    Category = "profile"
	CategoryPreference Category = "preference"
	CategoryEvent      Category = "event"
	CategoryTempState  Category = "temp_state"
	CategoryOther      Category = "other"
)

// Valid reports whether the category is one of the closed set.
func (c Category) Valid() bool {
	switch c {
	case CategoryProfile, CategoryPreference, CategoryEvent, CategoryTempState, CategoryOther:
		return true
	}
	return false
}

// Type classifies a persisted memory record.
type Type string

const (
	TypeProfileFact   Type = "profile_fact"
	TypePreference    Type = "preference"
	TypeEpisodicEvent Type = "episodic_event"
	TypeTempState     Type = "temp_state"
	TypeTaskState     Type = "task_state"
	TypeOther         Type = "other"
)

// Valid reports whether the type is one of the closed set.
func (t Type) Valid() bool {
	switch t {
	case TypeProfileFact, TypePreference, TypeEpisodicEvent, TypeTempState, TypeTaskState, TypeOther:
		return true
	}
	return false
}

// TypeForCategory maps an extraction category to a record type.
func TypeForCategory(c Category) Type {
	switch c {
	case CategoryProfile:
		return TypeProfileFact
	case CategoryPreference:
		return TypePreference
	case CategoryEvent:
		return TypeEpisodicEvent
	case CategoryTempState:
		return TypeTempState
	default:
		return TypeOther
	}
}

// Status is the lifecycle state of a record. Transitions are forward-only:
// active -> archived, active -> deleted.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
	StatusDeleted  Status = "deleted"
)

// Valid reports whether the status is one of the closed set.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusArchived, StatusDeleted:
		return true
	}
	return false
}

// CanTransitionTo reports whether the status may move to next.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusActive && (next == StatusArchived || next == StatusDeleted)
}

// FactCandidate is the ephemeral input produced by fact extraction.
// It is never persisted directly.
type FactCandidate struct {
	Text       string   `json:"text"`
	Category   Category `json:"category"`
	Slot       string   `json:"slot,omitempty"` // empty means no slot
	Confidence float64  `json:"confidence"`
}

// Validate checks that the candidate is fully constructed.
func (c FactCandidate) Validate() error {
	if c.Text == "" {
		return ErrInvalidCandidate
	}
	if !c.Category.Valid() {
		return ErrInvalidCandidate
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return ErrInvalidCandidate
	}
	return nil
}

// MemoryRecord is the persisted unit of memory.
type MemoryRecord struct {
	// ID is globally unique, generated at creation.
	ID string `json:"id"`

	// UserID scopes the record to one user.
	UserID string `json:"user_id"`

	// Text is the fact statement.
	Text string `json:"text"`

	// Type is the record classification.
	Type Type `json:"type"`

	// Slot is the semantic slot key, empty when the record is unslotted.
	Slot string `json:"slot,omitempty"`

	// Status is the lifecycle state.
	Status Status `json:"status"`

	// CreatedAt is assigned once at creation and never changes.
	CreatedAt time.Time `json:"created_at"`

	// ValidUntil, when set, marks the time after which the record is
	// treated as expired by ranking. Expiry is a read-time filter, not a
	// mutation.
	ValidUntil *time.Time `json:"valid_until,omitempty"`

	// DecayHalfLifeDays is the relevance half-life. Zero means no decay.
	DecayHalfLifeDays int `json:"decay_half_life_days,omitempty"`

	// Confidence is the extraction confidence in [0, 1].
	Confidence float64 `json:"confidence"`

	// Supersedes lists the ids this record replaced. Set exactly once at
	// creation, never mutated.
	Supersedes []string `json:"supersedes,omitempty"`

	// SourceTurnID links back to the conversation turn that produced the
	// record, when known.
	SourceTurnID string `json:"source_turn_id,omitempty"`

	// Extra holds opaque key-value metadata.
	Extra map[string]string `json:"extra,omitempty"`

	// Version is the optimistic concurrency token managed by the metadata
	// store. It increases on every status change.
	Version uint64 `json:"version"`
}

// Expired reports whether the record's validity window has passed at now.
func (r *MemoryRecord) Expired(now time.Time) bool {
	return r.ValidUntil != nil && !r.ValidUntil.After(now)
}

// Clone returns a deep copy of the record.
func (r *MemoryRecord) Clone() *MemoryRecord {
	if r == nil {
		return nil
	}
	clone := *r
	if r.ValidUntil != nil {
		vu := *r.ValidUntil
		clone.ValidUntil = &vu
	}
	if r.Supersedes != nil {
		clone.Supersedes = append([]string(nil), r.Supersedes...)
	}
	if r.Extra != nil {
		clone.Extra = make(map[string]string, len(r.Extra))
		for key, value := range r.Extra {
			clone.Extra[key] = value
		}
	}
	return &clone
}

// NewRecord builds an unsaved active record draft from a candidate.
// The id and created_at are assigned here; supersedes stays empty until
// conflict resolution fills it in.
func NewRecord(c FactCandidate, userID, sourceTurnID string, now time.Time) *MemoryRecord {
	return &MemoryRecord{
		ID:           uuid.New().String(),
		UserID:       userID,
		Text:         c.Text,
		Type:         TypeForCategory(c.Category),
		Slot:         c.Slot,
		Status:       StatusActive,
		CreatedAt:    now,
		Confidence:   c.Confidence,
		SourceTurnID: sourceTurnID,
	}
}
