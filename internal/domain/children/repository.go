package children

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// OptionsRepository is the persisted children map. The host may replace the
// whole map between calls (a concurrent options edit), so callers must
// re-read before every write instead of caching records across calls.
type OptionsRepository interface {
	// Children returns the current slot→record map. The returned map is a
	// copy the caller may mutate freely.
	Children(ctx context.Context) (map[string]Record, error)

	// Child returns the current record under one slot.
	// Returns shared.ErrNotFound when the slot does not exist.
	Child(ctx context.Context, slot string) (Record, error)

	// PutChild creates or replaces the record under a slot.
	PutChild(ctx context.Context, slot string, rec Record) error

	// DeleteChild removes the record under a slot.
	// Returns shared.ErrNotFound when the slot does not exist.
	DeleteChild(ctx context.Context, slot string) error

	// UpdateTokens performs a fresh read-modify-write that replaces only
	// the token pair of the record under the slot. The read and write are
	// atomic from the caller's perspective.
	UpdateTokens(ctx context.Context, slot, access, refresh string) error

	// ClearTokens performs a fresh read-modify-write that empties both
	// tokens of the record under the slot, forcing a re-login.
	ClearTokens(ctx context.Context, slot string) error
}
