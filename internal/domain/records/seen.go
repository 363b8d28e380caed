package records

import "context"

// SeenStore tracks which (child, record) pairs have already been
// announced. The set is append-only: records never leave it, so a record
// can be "new" at most once per store lifetime.
//
// The default deployment keeps the set in memory, which means every
// record announces again after a restart. Deployments that care wire the
// Redis-backed store instead.
type SeenStore interface {
	// Contains reports whether the record was already seen for the child.
	Contains(ctx context.Context, childKey, recordID string) (bool, error)

	// Add marks the record as seen for the child. Adding an already-seen
	// record is a no-op.
	Add(ctx context.Context, childKey, recordID string) error
}
