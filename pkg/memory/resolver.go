package memory

import "sort"

// ArchiveTarget names a record the plan will archive, pinned to the version
// observed at read time so the commit can detect lost races.
type ArchiveTarget struct {
	ID      string
	Version uint64
}

// ResolutionPlan is the mutation set produced by conflict resolution:
// one insert plus the archive set it supersedes.
type ResolutionPlan struct {
	Insert  *MemoryRecord
	Archive []ArchiveTarget
}

// ConflictResolver decides which active records a new slotted record
// supersedes. It performs no I/O and is deterministic given its inputs,
// which makes it safe to call repeatedly inside the write retry loop.
type ConflictResolver struct{}

// Resolve builds the plan for inserting draft given the active records
// currently in its (user, slot). An unslotted draft conflicts with nothing.
// When more than one record is active in the slot (a state a lost race can
// transiently produce), all of them are archived and all become supersedes
// targets; the resolver never picks a single winner silently.
func (ConflictResolver) Resolve(draft *MemoryRecord, currentActiveInSlot []*MemoryRecord) ResolutionPlan {
	insert := draft.Clone()

	if insert.Slot == "" {
		insert.Supersedes = nil
		return ResolutionPlan{Insert: insert}
	}

	targets := make([]ArchiveTarget, 0, len(currentActiveInSlot))
	supersedes := make([]string, 0, len(currentActiveInSlot))
	for _, rec := range currentActiveInSlot {
		targets = append(targets, ArchiveTarget{ID: rec.ID, Version: rec.Version})
		supersedes = append(supersedes, rec.ID)
	}
	sort.Strings(supersedes)
	sort.Slice(targets, func(i, j int) bool { return targets[i].ID < targets[j].ID })

	if len(supersedes) > 0 {
		insert.Supersedes = supersedes
	} else {
		insert.Supersedes = nil
	}
	return ResolutionPlan{Insert: insert, Archive: targets}
}
