// Package extraction turns raw user messages into fact candidates ready
// for conflict resolution.
package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/temporalmem/temporalmem/pkg/memory"
)

// Extractor pulls fact candidates out of a user message.
type Extractor interface {
	Extract(ctx context.Context, message string) ([]memory.FactCandidate, error)
}

type factsEnvelope struct {
	Facts []factPayload `json:"facts"`
}

type factPayload struct {
	Text       string  `json:"text"`
	Category   string  `json:"category"`
	Slot       *string `json:"slot"`
	Confidence float64 `json:"confidence"`
}

// ParseFacts decodes a model response into fact candidates. Entries with
// an unknown category or empty text are dropped rather than failing the
// whole batch; a malformed envelope is an error.
func ParseFacts(data []byte) ([]memory.FactCandidate, error) {
	var envelope factsEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("extraction: parse response: %w", err)
	}

	out := make([]memory.FactCandidate, 0, len(envelope.Facts))
	for _, f := range envelope.Facts {
		c := memory.FactCandidate{
			Text:       strings.TrimSpace(f.Text),
			Category:   memory.Category(f.Category),
			Confidence: f.Confidence,
		}
		if f.Slot != nil {
			c.Slot = strings.TrimSpace(*f.Slot)
		}
		if c.Text == "" || !c.Category.Valid() {
			continue
		}
		if c.Confidence < 0 || c.Confidence > 1 {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// Scripted is a deterministic extractor fed from a fixed message table,
// used in tests and offline runs.
type Scripted struct {
	responses map[string][]memory.FactCandidate
}

// NewScripted creates a scripted extractor. The map keys are exact
// messages.
func NewScripted(responses map[string][]memory.FactCandidate) *Scripted {
	if responses == nil {
		responses = make(map[string][]memory.FactCandidate)
	}
	return &Scripted{responses: responses}
}

// Extract returns the scripted candidates for the message, or none.
func (s *Scripted) Extract(ctx context.Context, message string) ([]memory.FactCandidate, error) {
	return s.responses[message], nil
}
