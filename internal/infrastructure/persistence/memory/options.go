package memory

import (
	"context"
	"sync"

	"github.com/skolbridge/skolbridge/internal/domain/children"
	"github.com/skolbridge/skolbridge/internal/domain/shared"
)

// OptionsRepository is the in-memory child-record store. It backs tests
// and single-process deployments that configure children from the
// environment; the Postgres repository replaces it when records must
// survive restarts.
type OptionsRepository struct {
	mu    sync.RWMutex
	slots map[string]children.Record
}

// NewOptionsRepository creates an empty store.
func NewOptionsRepository() *OptionsRepository {
	return &OptionsRepository{
		slots: make(map[string]children.Record),
	}
}

// Seed replaces the whole store content. Used at startup and in tests.
func (r *OptionsRepository) Seed(slots map[string]children.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots = make(map[string]children.Record, len(slots))
	for slot, rec := range slots {
		r.slots[slot] = rec
	}
}

// Children returns a copy of all child records keyed by slot.
func (r *OptionsRepository) Children(ctx context.Context) (map[string]children.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]children.Record, len(r.slots))
	for slot, rec := range r.slots {
		out[slot] = rec
	}
	return out, nil
}

// Child returns the record stored under the slot.
func (r *OptionsRepository) Child(ctx context.Context, slot string) (children.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.slots[slot]
	if !ok {
		return children.Record{}, shared.WrapError("children", "Child", shared.ErrNotFound,
			"no record in slot "+slot, shared.ErrChildNotFound)
	}
	return rec, nil
}

// PutChild stores the record under the slot, replacing any previous one.
func (r *OptionsRepository) PutChild(ctx context.Context, slot string, rec children.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots[slot] = rec
	return nil
}

// DeleteChild removes the slot. Deleting a missing slot is a no-op.
func (r *OptionsRepository) DeleteChild(ctx context.Context, slot string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.slots, slot)
	return nil
}

// UpdateTokens replaces only the token pair of the stored record.
func (r *OptionsRepository) UpdateTokens(ctx context.Context, slot, access, refresh string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.slots[slot]
	if !ok {
		return shared.WrapError("children", "UpdateTokens", shared.ErrNotFound,
			"no record in slot "+slot, shared.ErrChildNotFound)
	}
	r.slots[slot] = rec.WithTokens(access, refresh)
	return nil
}

// ClearTokens empties both tokens of the stored record.
func (r *OptionsRepository) ClearTokens(ctx context.Context, slot string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.slots[slot]
	if !ok {
		return shared.WrapError("children", "ClearTokens", shared.ErrNotFound,
			"no record in slot "+slot, shared.ErrChildNotFound)
	}
	r.slots[slot] = rec.WithoutTokens()
	return nil
}
