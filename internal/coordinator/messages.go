package coordinator

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/skolbridge/skolbridge/internal/client"
	"github.com/skolbridge/skolbridge/internal/domain/children"
	"github.com/skolbridge/skolbridge/internal/domain/records"
	"github.com/skolbridge/skolbridge/internal/domain/shared"
	"github.com/skolbridge/skolbridge/internal/infrastructure/external/bakalari"
	"github.com/skolbridge/skolbridge/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// ChildMessages is one child's slice of a messages snapshot.
type ChildMessages struct {
	// Child identifies whose messages these are.
	Child children.Child

	// Messages is the normalized list, descending by date, novelty
	// annotated.
	Messages []records.Message
}

// MessagesSnapshot is one complete, immutable poll result.
type MessagesSnapshot struct {
	// FetchedAt is when the cycle producing this snapshot started.
	FetchedAt time.Time

	// Children holds one entry per configured child.
	Children map[children.Key]*ChildMessages
}

// ══════════════════════════════════════════════════════════════════════════════
// COORDINATOR
// ══════════════════════════════════════════════════════════════════════════════

// MessagesConfig extends Config with the school-year window boundary.
type MessagesConfig struct {
	Config

	// SchoolYearStartMonth is the month the school year begins.
	SchoolYearStartMonth int

	// SchoolYearStartDay is the day of month the school year begins.
	SchoolYearStartDay int
}

// DefaultMessagesConfig returns sensible defaults.
func DefaultMessagesConfig() MessagesConfig {
	return MessagesConfig{
		Config:               DefaultConfig(30 * time.Minute),
		SchoolYearStartMonth: timeutil.DefaultSchoolYearStartMonth,
		SchoolYearStartDay:   timeutil.DefaultSchoolYearStartDay,
	}
}

// MessagesCoordinator polls every child's received Komens messages from
// the start of the school year to today.
type MessagesCoordinator struct {
	base
	mapper     *bakalari.Mapper
	startMonth int
	startDay   int
	snapshot   atomic.Pointer[MessagesSnapshot]
}

// NewMessagesCoordinator creates a messages coordinator over the given
// clients.
func NewMessagesCoordinator(config MessagesConfig, clients []*client.AuthenticatedClient) *MessagesCoordinator {
	if config.SchoolYearStartMonth == 0 {
		config.SchoolYearStartMonth = timeutil.DefaultSchoolYearStartMonth
	}
	if config.SchoolYearStartDay == 0 {
		config.SchoolYearStartDay = timeutil.DefaultSchoolYearStartDay
	}
	return &MessagesCoordinator{
		base:       newBase("messages", config.Config, clients),
		mapper:     bakalari.NewMapper(),
		startMonth: config.SchoolYearStartMonth,
		startDay:   config.SchoolYearStartDay,
	}
}

// Refresh runs one poll cycle. Any child's failure keeps the previous
// snapshot visible.
func (c *MessagesCoordinator) Refresh(ctx context.Context) error {
	start := c.clock()
	from, _ := timeutil.SchoolYearBounds(start, c.startMonth, c.startDay)

	next := make(map[children.Key]*ChildMessages, len(c.clients))
	totalRecords := 0
	totalNew := 0

	for _, cl := range c.clients {
		child := cl.Child()

		resp := client.Call(ctx, cl, client.CallSpec[*bakalari.MessagesResponseDTO]{
			Op: "fetch_messages",
			Do: func(ctx context.Context, session *bakalari.Session) (*bakalari.MessagesResponseDTO, error) {
				return session.FetchMessages(ctx, from, start)
			},
		})
		if resp == nil {
			return c.failCycle(string(child.Key))
		}

		msgs := c.mapper.MapMessages(string(child.Key), resp)
		for i := range msgs {
			novel, entered := c.isNew(ctx, string(child.Key), msgs[i].ID)
			msgs[i].IsNew = novel
			if entered {
				c.publish(shared.NewMessageNewEvent(string(child.Key), child.DisplayName,
					msgs[i].ID, msgs[i].Title, msgs[i].Sender, msgs[i].Date))
				totalNew++
			}
		}

		next[child.Key] = &ChildMessages{Child: child, Messages: msgs}
		totalRecords += len(msgs)
	}

	c.snapshot.Store(&MessagesSnapshot{FetchedAt: start, Children: next})
	c.logger.Debug("cycle completed", "records", totalRecords, "new", totalNew)
	c.publish(shared.NewSyncCompletedEvent(c.name, len(c.clients), totalRecords, totalNew, c.clock().Sub(start)))
	return nil
}

// Data returns the current snapshot, nil before the first successful
// cycle.
func (c *MessagesCoordinator) Data() *MessagesSnapshot {
	return c.snapshot.Load()
}

// Select returns up to limit most-recent messages for the child.
func (c *MessagesCoordinator) Select(childKey children.Key, limit int) ([]records.Message, error) {
	snap := c.snapshot.Load()
	if snap == nil {
		return nil, shared.ErrNoSnapshot
	}
	cm, ok := snap.Children[childKey]
	if !ok {
		return nil, shared.ErrUnknownChildKey
	}

	msgs := cm.Messages
	if limit > 0 && limit < len(msgs) {
		msgs = msgs[:limit]
	}
	out := make([]records.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// MarkSeen acknowledges one message.
func (c *MessagesCoordinator) MarkSeen(ctx context.Context, childKey children.Key, messageID string) error {
	return c.markSeen(ctx, string(childKey), messageID)
}
