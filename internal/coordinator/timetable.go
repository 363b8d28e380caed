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

// ChildTimetable is one child's slice of a timetable snapshot: the
// current week, the adjacent weeks, and the permanent grid.
type ChildTimetable struct {
	// Child identifies whose timetable this is.
	Child children.Child

	// Current is the week containing today.
	Current records.TimetableWeek

	// Next is the following week.
	Next records.TimetableWeek

	// Previous is the preceding week.
	Previous records.TimetableWeek

	// Permanent is the recurring grid without substitutions.
	Permanent records.TimetableWeek
}

// TimetableSnapshot is one complete, immutable poll result.
type TimetableSnapshot struct {
	// FetchedAt is when the cycle producing this snapshot started.
	FetchedAt time.Time

	// Children holds one entry per configured child.
	Children map[children.Key]*ChildTimetable
}

// TimetableCoordinator polls a three-week window plus the permanent grid
// for every child. Timetables change in place instead of accumulating, so
// this variant runs no seen-set diff and emits no novelty events; a
// synced event per child is the only signal.
type TimetableCoordinator struct {
	base
	mapper   *bakalari.Mapper
	snapshot atomic.Pointer[TimetableSnapshot]
}

// NewTimetableCoordinator creates a timetable coordinator over the given
// clients.
func NewTimetableCoordinator(config Config, clients []*client.AuthenticatedClient) *TimetableCoordinator {
	if config.BaseInterval <= 0 {
		config.BaseInterval = time.Hour
	}
	return &TimetableCoordinator{
		base:   newBase("timetable", config, clients),
		mapper: bakalari.NewMapper(),
	}
}

// Refresh runs one poll cycle: current, next, and previous actual weeks
// plus the permanent grid per child. Any failure keeps the previous
// snapshot visible.
func (c *TimetableCoordinator) Refresh(ctx context.Context) error {
	start := c.clock()
	window := timeutil.TimetableWindow(start)

	next := make(map[children.Key]*ChildTimetable, len(c.clients))

	for _, cl := range c.clients {
		child := cl.Child()
		ct := &ChildTimetable{Child: child}

		weeks := [3]*records.TimetableWeek{&ct.Current, &ct.Next, &ct.Previous}
		for i, date := range window {
			date := date
			resp := client.Call(ctx, cl, client.CallSpec[*bakalari.TimetableResponseDTO]{
				Op: "fetch_timetable_actual",
				Do: func(ctx context.Context, session *bakalari.Session) (*bakalari.TimetableResponseDTO, error) {
					return session.FetchTimetableActual(ctx, date)
				},
			})
			if resp == nil {
				return c.failCycle(string(child.Key))
			}
			*weeks[i] = c.mapper.MapTimetable(string(child.Key), resp, false)
		}

		permanent := client.Call(ctx, cl, client.CallSpec[*bakalari.TimetableResponseDTO]{
			Op: "fetch_timetable_permanent",
			Do: func(ctx context.Context, session *bakalari.Session) (*bakalari.TimetableResponseDTO, error) {
				return session.FetchTimetablePermanent(ctx)
			},
		})
		if permanent == nil {
			return c.failCycle(string(child.Key))
		}
		ct.Permanent = c.mapper.MapTimetable(string(child.Key), permanent, true)

		next[child.Key] = ct
		c.publish(shared.NewTimetableSyncedEvent(string(child.Key), child.DisplayName,
			ct.Current.WeekStart, len(ct.Current.Days)))
	}

	c.snapshot.Store(&TimetableSnapshot{FetchedAt: start, Children: next})
	c.logger.Debug("cycle completed", "children", len(next))
	c.publish(shared.NewSyncCompletedEvent(c.name, len(c.clients), len(next)*4, 0, c.clock().Sub(start)))
	return nil
}

// Data returns the current snapshot, nil before the first successful
// cycle.
func (c *TimetableCoordinator) Data() *TimetableSnapshot {
	return c.snapshot.Load()
}

// Week returns one child's timetable for the requested slice of the
// window.
func (c *TimetableCoordinator) Week(childKey children.Key, which TimetableSlice) (records.TimetableWeek, error) {
	snap := c.snapshot.Load()
	if snap == nil {
		return records.TimetableWeek{}, shared.ErrNoSnapshot
	}
	ct, ok := snap.Children[childKey]
	if !ok {
		return records.TimetableWeek{}, shared.ErrUnknownChildKey
	}

	switch which {
	case TimetableNext:
		return ct.Next, nil
	case TimetablePrevious:
		return ct.Previous, nil
	case TimetablePermanent:
		return ct.Permanent, nil
	default:
		return ct.Current, nil
	}
}

// TimetableSlice names one part of the polled window.
type TimetableSlice int

const (
	// TimetableCurrent is the week containing today.
	TimetableCurrent TimetableSlice = iota

	// TimetableNext is the following week.
	TimetableNext

	// TimetablePrevious is the preceding week.
	TimetablePrevious

	// TimetablePermanent is the recurring grid.
	TimetablePermanent
)
