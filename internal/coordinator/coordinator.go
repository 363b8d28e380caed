// Package coordinator contains the four polling loops that keep the
// school-data snapshots fresh: marks, messages, timetable, noticeboard.
// The variants share one shape (fetch per child, normalize, diff against
// the seen-set, publish an immutable snapshot) and differ only in fetch
// window, record type, and cadence. They deliberately share nothing else:
// a messages failure never blocks marks, and each variant owns its own
// seen-set.
package coordinator

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/skolbridge/skolbridge/internal/client"
	"github.com/skolbridge/skolbridge/internal/domain/records"
	"github.com/skolbridge/skolbridge/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains the shared knobs of one coordinator variant.
type Config struct {
	// BaseInterval is the polling cadence before jitter.
	BaseInterval time.Duration

	// Seen is the seen-set backing the diff step. Variants without
	// diffing (timetable) ignore it.
	Seen records.SeenStore

	// Bus publishes new-record and sync events.
	Bus shared.EventPublisher

	// Clock returns the current time. Tests pin it; production leaves it
	// nil for time.Now.
	Clock func() time.Time

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults for a base interval.
func DefaultConfig(baseInterval time.Duration) Config {
	return Config{
		BaseInterval: baseInterval,
	}
}

// base carries the state every variant embeds.
type base struct {
	name     string
	interval time.Duration
	seen     records.SeenStore
	bus      shared.EventPublisher
	clock    func() time.Time
	logger   *slog.Logger
	clients  []*client.AuthenticatedClient
}

// newBase applies defaults and computes the jittered interval once.
// Jitter is stable for the coordinator's lifetime so independent
// installations drift apart instead of stampeding the school servers in
// lockstep.
func newBase(name string, config Config, clients []*client.AuthenticatedClient) base {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if config.BaseInterval <= 0 {
		config.BaseInterval = 30 * time.Minute
	}

	factor := 0.9 + 0.2*rand.Float64()
	interval := time.Duration(float64(config.BaseInterval) * factor)

	return base{
		name:     name,
		interval: interval,
		seen:     config.Seen,
		bus:      config.Bus,
		clock:    config.Clock,
		logger:   config.Logger.With("coordinator", name),
		clients:  clients,
	}
}

// Name returns the coordinator variant name.
func (b *base) Name() string {
	return b.name
}

// Interval returns the jittered polling interval.
func (b *base) Interval() time.Duration {
	return b.interval
}

// publish sends an event, logging instead of failing the cycle when the
// bus is down.
func (b *base) publish(event shared.Event) {
	if b.bus == nil {
		return
	}
	if err := b.bus.Publish(event); err != nil {
		b.logger.Error("failed to publish event", "type", event.EventType(), "error", err)
	}
}

// isNew runs the diff step for one record id. The novelty flag reflects
// the seen-set before this cycle's mutation; entering determines whether
// the caller should emit the one-time notification. Records without an
// id are never new and never enter the set.
func (b *base) isNew(ctx context.Context, childKey, recordID string) (novel bool, entered bool) {
	if recordID == "" {
		return false, false
	}

	contained, err := b.seen.Contains(ctx, childKey, recordID)
	if err != nil {
		// Treat an unreadable seen-set as "already seen". Suppressing a
		// notification is recoverable; duplicating one is not.
		b.logger.Warn("seen-set read failed", "child_key", childKey, "record_id", recordID, "error", err)
		return false, false
	}
	if contained {
		return false, false
	}

	if err := b.seen.Add(ctx, childKey, recordID); err != nil {
		b.logger.Warn("seen-set write failed", "child_key", childKey, "record_id", recordID, "error", err)
		return true, false
	}
	return true, true
}

// markSeen suppresses a future novelty flag for an acknowledged record.
// Idempotent: acknowledging twice equals acknowledging once.
func (b *base) markSeen(ctx context.Context, childKey, recordID string) error {
	if recordID == "" {
		return nil
	}
	return b.seen.Add(ctx, childKey, recordID)
}

// failCycle logs and reports one child's fetch failure. The previous
// snapshot stays visible untouched.
func (b *base) failCycle(childKey string) error {
	b.logger.Warn("poll cycle failed, keeping previous snapshot", "child_key", childKey)
	b.publish(shared.NewSyncFailedEvent(b.name, childKey, "fetch failed"))
	return shared.WrapError("coordinator", "Refresh", shared.ErrExternalService,
		"fetch failed for child "+childKey, shared.ErrRefreshFailed)
}
