package children

import (
	"log/slog"
	"sort"

	"github.com/skolbridge/skolbridge/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHILDREN INDEX
// ══════════════════════════════════════════════════════════════════════════════

// Index holds the canonical, collision-free set of child identities built
// from one persisted children map. It is immutable after construction; a
// config reload builds a fresh index.
type Index struct {
	children []Child
	byKey    map[Key]Child
	slots    map[Key]string
}

// BuildIndex normalizes a raw slot→record map into an Index.
//
// Slots are visited in lexicographic slot-name order so the result is
// deterministic. Records missing server or user id are skipped with a
// warning. When two slots resolve to the same composite key, the later
// slot wins (last-write-wins); the collision is logged because it usually
// means a data-entry duplicate.
func BuildIndex(raw map[string]Record, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}

	slots := make([]string, 0, len(raw))
	for slot := range raw {
		slots = append(slots, slot)
	}
	sort.Strings(slots)

	idx := &Index{
		byKey: make(map[Key]Child, len(raw)),
		slots: make(map[Key]string, len(raw)),
	}

	for _, slot := range slots {
		rec := raw[slot]

		child, err := NewChild(rec)
		if err != nil {
			logger.Warn("skipping incomplete child record",
				"slot", slot,
				"record", rec.Redacted(),
				"error", err,
			)
			continue
		}

		if prev, ok := idx.slots[child.Key]; ok {
			logger.Warn("duplicate child identity, later slot wins",
				"key", child.Key,
				"previous_slot", prev,
				"slot", slot,
			)
		}

		idx.byKey[child.Key] = child
		idx.slots[child.Key] = slot
	}

	// Rebuild the ordered list from the deduplicated map, preserving the
	// slot order of the winning entries.
	idx.children = make([]Child, 0, len(idx.byKey))
	seen := make(map[Key]bool, len(idx.byKey))
	for _, slot := range slots {
		child, err := NewChild(raw[slot])
		if err != nil {
			continue
		}
		if idx.slots[child.Key] != slot || seen[child.Key] {
			continue
		}
		seen[child.Key] = true
		idx.children = append(idx.children, idx.byKey[child.Key])
	}

	return idx
}

// Children returns the child identities in deterministic order.
func (i *Index) Children() []Child {
	out := make([]Child, len(i.children))
	copy(out, i.children)
	return out
}

// Len returns the number of distinct child identities.
func (i *Index) Len() int {
	return len(i.children)
}

// ByKey returns the child identity for a composite key.
// Returns ErrChildNotFound when the key is unknown.
func (i *Index) ByKey(key Key) (Child, error) {
	child, ok := i.byKey[key]
	if !ok {
		return Child{}, shared.ErrChildNotFound
	}
	return child, nil
}

// OptionKeyFor returns the storage slot name a child's record lives under,
// used when writing rotated tokens back. Returns ErrOptionsSlotEmpty when
// the key has no slot.
func (i *Index) OptionKeyFor(key Key) (string, error) {
	slot, ok := i.slots[key]
	if !ok {
		return "", shared.ErrOptionsSlotEmpty
	}
	return slot, nil
}

// Keys returns the composite keys in deterministic order.
func (i *Index) Keys() []Key {
	out := make([]Key, 0, len(i.children))
	for _, c := range i.children {
		out = append(out, c.Key)
	}
	return out
}
