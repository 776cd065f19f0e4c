package memory

import (
	"math"
	"sort"
	"time"
)

// RankedRecord pairs a record with its final relevance score.
type RankedRecord struct {
	Record *MemoryRecord `json:"record"`
	Score  float64       `json:"score"`
}

// Rank filters and orders records by temporal relevance. It is pure: inputs
// are never mutated and identical inputs with the same now produce identical
// output, so it can be replayed with different clock values.
//
// Records whose status is not active and records past their valid_until are
// dropped before scoring. similarity supplies per-id cosine scores from a
// search; a nil map means a non-search caller and every record scores
// similarity 1.0, while an id missing from a non-nil map scores 0.0 (a
// non-match, not an error).
//
// final score = similarity * decay factor * confidence, where the decay
// factor is 0.5^(ageDays/halfLifeDays), or 1.0 when the record has no
// half-life. Ordering is score descending, then created_at descending, then
// id ascending for determinism.
func Rank(records []*MemoryRecord, similarity map[string]float64, now time.Time) []RankedRecord {
	return rankWithStatus(records, similarity, now, StatusActive)
}

// RankByStatus ranks records of the given lifecycle status instead of the
// default active-only view. Expiry filtering still applies regardless of
// status. Used by listing callers that inspect archived records.
func RankByStatus(records []*MemoryRecord, similarity map[string]float64, now time.Time, status Status) []RankedRecord {
	return rankWithStatus(records, similarity, now, status)
}

func rankWithStatus(records []*MemoryRecord, similarity map[string]float64, now time.Time, status Status) []RankedRecord {
	ranked := make([]RankedRecord, 0, len(records))
	for _, rec := range records {
		if rec.Status != status {
			continue
		}
		if rec.Expired(now) {
			continue
		}

		sim := 1.0
		if similarity != nil {
			sim = similarity[rec.ID] // missing id -> 0.0, a non-match
		}
		ranked = append(ranked, RankedRecord{
			Record: rec,
			Score:  sim * DecayFactor(rec, now) * rec.Confidence,
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Record.CreatedAt.Equal(b.Record.CreatedAt) {
			return a.Record.CreatedAt.After(b.Record.CreatedAt)
		}
		return a.Record.ID < b.Record.ID
	})
	return ranked
}

// DecayFactor computes the exponential decay multiplier for a record at now.
// Age is measured in fractional days and clamped non-negative so a record
// created slightly in the future (clock skew) does not score above 1.0.
func DecayFactor(rec *MemoryRecord, now time.Time) float64 {
	if rec.DecayHalfLifeDays <= 0 {
		return 1.0
	}
	ageDays := now.Sub(rec.CreatedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Pow(0.5, ageDays/float64(rec.DecayHalfLifeDays))
}
