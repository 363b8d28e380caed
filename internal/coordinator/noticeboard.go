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
)

// ChildNotices is one child's slice of a noticeboard snapshot.
type ChildNotices struct {
	// Child identifies whose bulletins these are.
	Child children.Child

	// Notices is the normalized list, descending by date, novelty
	// annotated.
	Notices []records.Notice
}

// NoticeboardSnapshot is one complete, immutable poll result.
type NoticeboardSnapshot struct {
	// FetchedAt is when the cycle producing this snapshot started.
	FetchedAt time.Time

	// Children holds one entry per configured child.
	Children map[children.Key]*ChildNotices
}

// NoticeboardCoordinator polls the school noticeboard for every child.
// Bulletins are school-wide but still fetched per child; siblings at
// different schools see different boards.
type NoticeboardCoordinator struct {
	base
	mapper   *bakalari.Mapper
	snapshot atomic.Pointer[NoticeboardSnapshot]
}

// NewNoticeboardCoordinator creates a noticeboard coordinator over the
// given clients.
func NewNoticeboardCoordinator(config Config, clients []*client.AuthenticatedClient) *NoticeboardCoordinator {
	if config.BaseInterval <= 0 {
		config.BaseInterval = time.Hour
	}
	return &NoticeboardCoordinator{
		base:   newBase("noticeboard", config, clients),
		mapper: bakalari.NewMapper(),
	}
}

// Refresh runs one poll cycle. Any child's failure keeps the previous
// snapshot visible.
func (c *NoticeboardCoordinator) Refresh(ctx context.Context) error {
	start := c.clock()

	next := make(map[children.Key]*ChildNotices, len(c.clients))
	totalRecords := 0
	totalNew := 0

	for _, cl := range c.clients {
		child := cl.Child()

		resp := client.Call(ctx, cl, client.CallSpec[*bakalari.MessagesResponseDTO]{
			Op: "fetch_noticeboard",
			Do: func(ctx context.Context, session *bakalari.Session) (*bakalari.MessagesResponseDTO, error) {
				return session.FetchNoticeboard(ctx)
			},
		})
		if resp == nil {
			return c.failCycle(string(child.Key))
		}

		notices := c.mapper.MapNoticeboard(string(child.Key), resp)
		for i := range notices {
			novel, entered := c.isNew(ctx, string(child.Key), notices[i].ID)
			notices[i].IsNew = novel
			if entered {
				c.publish(shared.NewNoticeboardNewEvent(string(child.Key), child.DisplayName,
					notices[i].ID, notices[i].Title, notices[i].Date))
				totalNew++
			}
		}

		next[child.Key] = &ChildNotices{Child: child, Notices: notices}
		totalRecords += len(notices)
	}

	c.snapshot.Store(&NoticeboardSnapshot{FetchedAt: start, Children: next})
	c.logger.Debug("cycle completed", "records", totalRecords, "new", totalNew)
	c.publish(shared.NewSyncCompletedEvent(c.name, len(c.clients), totalRecords, totalNew, c.clock().Sub(start)))
	return nil
}

// Data returns the current snapshot, nil before the first successful
// cycle.
func (c *NoticeboardCoordinator) Data() *NoticeboardSnapshot {
	return c.snapshot.Load()
}

// Select returns up to limit most-recent bulletins for the child.
func (c *NoticeboardCoordinator) Select(childKey children.Key, limit int) ([]records.Notice, error) {
	snap := c.snapshot.Load()
	if snap == nil {
		return nil, shared.ErrNoSnapshot
	}
	cn, ok := snap.Children[childKey]
	if !ok {
		return nil, shared.ErrUnknownChildKey
	}

	notices := cn.Notices
	if limit > 0 && limit < len(notices) {
		notices = notices[:limit]
	}
	out := make([]records.Notice, len(notices))
	copy(out, notices)
	return out, nil
}

// MarkSeen acknowledges one bulletin.
func (c *NoticeboardCoordinator) MarkSeen(ctx context.Context, childKey children.Key, noticeID string) error {
	return c.markSeen(ctx, string(childKey), noticeID)
}
