package coordinator

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/skolbridge/skolbridge/internal/client"
	"github.com/skolbridge/skolbridge/internal/domain/children"
	"github.com/skolbridge/skolbridge/internal/domain/marks"
	"github.com/skolbridge/skolbridge/internal/domain/shared"
	"github.com/skolbridge/skolbridge/internal/infrastructure/external/bakalari"
	"github.com/skolbridge/skolbridge/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// ChildMarks is one child's slice of a marks snapshot.
type ChildMarks struct {
	// Child identifies whose marks these are.
	Child children.Child

	// Subjects is the registry as the server reported it.
	Subjects []marks.Subject

	// Flat is the normalized mark list, descending by date, novelty
	// annotated.
	Flat []marks.Mark

	// BySubject groups Flat by subject key, preserving order.
	BySubject map[string][]marks.Mark

	// Summary is the precomputed aggregate over Flat.
	Summary marks.Aggregate
}

// MarksSnapshot is one complete, immutable poll result. Readers get a
// pointer and must not mutate; the coordinator only ever replaces the
// whole snapshot.
type MarksSnapshot struct {
	// FetchedAt is when the cycle producing this snapshot started.
	FetchedAt time.Time

	// Children holds one entry per configured child.
	Children map[children.Key]*ChildMarks
}

// ══════════════════════════════════════════════════════════════════════════════
// COORDINATOR
// ══════════════════════════════════════════════════════════════════════════════

// MarksConfig extends Config with the school-year window boundary.
type MarksConfig struct {
	Config

	// SchoolYearStartMonth is the month the school year begins.
	SchoolYearStartMonth int

	// SchoolYearStartDay is the day of month the school year begins.
	SchoolYearStartDay int
}

// DefaultMarksConfig returns sensible defaults.
func DefaultMarksConfig() MarksConfig {
	return MarksConfig{
		Config:               DefaultConfig(30 * time.Minute),
		SchoolYearStartMonth: timeutil.DefaultSchoolYearStartMonth,
		SchoolYearStartDay:   timeutil.DefaultSchoolYearStartDay,
	}
}

// MarksCoordinator polls every child's marks for the running school year.
type MarksCoordinator struct {
	base
	mapper     *bakalari.Mapper
	startMonth int
	startDay   int
	snapshot   atomic.Pointer[MarksSnapshot]
}

// NewMarksCoordinator creates a marks coordinator over the given clients.
func NewMarksCoordinator(config MarksConfig, clients []*client.AuthenticatedClient) *MarksCoordinator {
	if config.SchoolYearStartMonth == 0 {
		config.SchoolYearStartMonth = timeutil.DefaultSchoolYearStartMonth
	}
	if config.SchoolYearStartDay == 0 {
		config.SchoolYearStartDay = timeutil.DefaultSchoolYearStartDay
	}
	return &MarksCoordinator{
		base:       newBase("marks", config.Config, clients),
		mapper:     bakalari.NewMapper(),
		startMonth: config.SchoolYearStartMonth,
		startDay:   config.SchoolYearStartDay,
	}
}

// Refresh runs one poll cycle. The new snapshot is published only after
// every child succeeded; any failure keeps the previous snapshot visible.
func (c *MarksCoordinator) Refresh(ctx context.Context) error {
	start := c.clock()
	from, _ := timeutil.SchoolYearBounds(start, c.startMonth, c.startDay)

	next := make(map[children.Key]*ChildMarks, len(c.clients))
	totalRecords := 0
	totalNew := 0

	for _, cl := range c.clients {
		child := cl.Child()

		resp := client.Call(ctx, cl, client.CallSpec[*bakalari.MarksResponseDTO]{
			Op: "fetch_marks",
			Do: func(ctx context.Context, session *bakalari.Session) (*bakalari.MarksResponseDTO, error) {
				return session.FetchMarks(ctx, from, start)
			},
		})
		if resp == nil {
			return c.failCycle(string(child.Key))
		}

		registry, flat := c.mapper.MapMarks(string(child.Key), resp)
		for i := range flat {
			novel, entered := c.isNew(ctx, string(child.Key), flat[i].ID)
			flat[i].IsNew = novel
			if entered {
				c.publish(shared.NewMarkNewEvent(string(child.Key), child.DisplayName,
					flat[i].ID, flat[i].SubjectLabel(), flat[i].MarkText, flat[i].Date))
				totalNew++
			}
		}

		next[child.Key] = &ChildMarks{
			Child:     child,
			Subjects:  registry,
			Flat:      flat,
			BySubject: groupBySubject(flat),
			Summary:   marks.AggregateMarks(flat),
		}
		totalRecords += len(flat)
	}

	c.snapshot.Store(&MarksSnapshot{FetchedAt: start, Children: next})
	c.logger.Debug("cycle completed", "records", totalRecords, "new", totalNew)
	c.publish(shared.NewSyncCompletedEvent(c.name, len(c.clients), totalRecords, totalNew, c.clock().Sub(start)))
	return nil
}

// Data returns the current snapshot, nil before the first successful
// cycle.
func (c *MarksCoordinator) Data() *MarksSnapshot {
	return c.snapshot.Load()
}

// Select returns up to limit most-recent marks for the child. The flat
// list is already descending by date, so selection is a prefix.
func (c *MarksCoordinator) Select(childKey children.Key, limit int) ([]marks.Mark, error) {
	snap := c.snapshot.Load()
	if snap == nil {
		return nil, shared.ErrNoSnapshot
	}
	cm, ok := snap.Children[childKey]
	if !ok {
		return nil, shared.ErrUnknownChildKey
	}

	flat := cm.Flat
	if limit > 0 && limit < len(flat) {
		flat = flat[:limit]
	}
	out := make([]marks.Mark, len(flat))
	copy(out, flat)
	return out, nil
}

// MarkSeen acknowledges one mark so the next cycle reports it as not new.
func (c *MarksCoordinator) MarkSeen(ctx context.Context, childKey children.Key, markID string) error {
	return c.markSeen(ctx, string(childKey), markID)
}

// AcknowledgeSubject acknowledges every mark of one subject for a child,
// returning how many marks were covered. Backing for the "sign all marks
// for subject" action.
func (c *MarksCoordinator) AcknowledgeSubject(ctx context.Context, childKey children.Key, subjectKey string) (int, error) {
	snap := c.snapshot.Load()
	if snap == nil {
		return 0, shared.ErrNoSnapshot
	}
	cm, ok := snap.Children[childKey]
	if !ok {
		return 0, shared.ErrUnknownChildKey
	}

	count := 0
	for _, m := range cm.BySubject[subjectKey] {
		if err := c.markSeen(ctx, string(childKey), m.ID); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// Subjects derives the child's subject list, preferring the registry over
// scanning the flat marks.
func (c *MarksCoordinator) Subjects(childKey children.Key) ([]marks.SubjectRef, error) {
	snap := c.snapshot.Load()
	if snap == nil {
		return nil, shared.ErrNoSnapshot
	}
	cm, ok := snap.Children[childKey]
	if !ok {
		return nil, shared.ErrUnknownChildKey
	}
	return marks.DeriveSubjects(cm.Subjects, cm.Flat), nil
}

func groupBySubject(flat []marks.Mark) map[string][]marks.Mark {
	grouped := make(map[string][]marks.Mark)
	for _, m := range flat {
		key := m.SubjectKey()
		grouped[key] = append(grouped[key], m)
	}
	return grouped
}
