// Package service contains the user-invoked write operations: marking a
// record as seen, signing all marks of a subject, and forcing a refresh.
// Each action is a thin call into a coordinator's public contract,
// optionally followed by a refresh so state catches up immediately.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/skolbridge/skolbridge/internal/coordinator"
	"github.com/skolbridge/skolbridge/internal/domain/children"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

// CoordinatorName selects which polling loop an action targets.
type CoordinatorName string

const (
	CoordinatorMarks       CoordinatorName = "marks"
	CoordinatorMessages    CoordinatorName = "messages"
	CoordinatorNoticeboard CoordinatorName = "noticeboard"
	CoordinatorTimetable   CoordinatorName = "timetable"
)

// IsValid reports whether the name is a known coordinator.
func (n CoordinatorName) IsValid() bool {
	switch n {
	case CoordinatorMarks, CoordinatorMessages, CoordinatorNoticeboard, CoordinatorTimetable:
		return true
	}
	return false
}

// MarkSeenCommand acknowledges one record so future cycles report it as
// not new.
type MarkSeenCommand struct {
	// Coordinator is the polling loop owning the record.
	Coordinator CoordinatorName

	// ChildKey identifies the child.
	ChildKey children.Key

	// RecordID is the record to acknowledge.
	RecordID string
}

// Validate validates the command.
func (c MarkSeenCommand) Validate() error {
	if !c.Coordinator.IsValid() {
		return fmt.Errorf("mark_seen: unknown coordinator: %s", c.Coordinator)
	}
	if c.Coordinator == CoordinatorTimetable {
		return errors.New("mark_seen: timetable records carry no novelty flag")
	}
	if !c.ChildKey.IsValid() {
		return fmt.Errorf("mark_seen: invalid child key: %s", c.ChildKey)
	}
	if c.RecordID == "" {
		return errors.New("mark_seen: record_id is required")
	}
	return nil
}

// AcknowledgeSubjectCommand signs all marks of one subject for a child.
type AcknowledgeSubjectCommand struct {
	// ChildKey identifies the child.
	ChildKey children.Key

	// SubjectKey is the subject whose marks are acknowledged.
	SubjectKey string
}

// Validate validates the command.
func (c AcknowledgeSubjectCommand) Validate() error {
	if !c.ChildKey.IsValid() {
		return fmt.Errorf("acknowledge_subject: invalid child key: %s", c.ChildKey)
	}
	if c.SubjectKey == "" {
		return errors.New("acknowledge_subject: subject_key is required")
	}
	return nil
}

// ForceRefreshCommand runs one poll cycle immediately. An empty
// coordinator name refreshes all four.
type ForceRefreshCommand struct {
	// Coordinator is the loop to refresh, empty for all.
	Coordinator CoordinatorName
}

// Validate validates the command.
func (c ForceRefreshCommand) Validate() error {
	if c.Coordinator != "" && !c.Coordinator.IsValid() {
		return fmt.Errorf("force_refresh: unknown coordinator: %s", c.Coordinator)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTION SERVICE
// ══════════════════════════════════════════════════════════════════════════════

// Actions executes the user-invoked commands against the coordinators.
type Actions struct {
	marks       *coordinator.MarksCoordinator
	messages    *coordinator.MessagesCoordinator
	noticeboard *coordinator.NoticeboardCoordinator
	timetable   *coordinator.TimetableCoordinator
	logger      *slog.Logger
}

// NewActions creates the action service over the four coordinators.
func NewActions(
	marks *coordinator.MarksCoordinator,
	messages *coordinator.MessagesCoordinator,
	noticeboard *coordinator.NoticeboardCoordinator,
	timetable *coordinator.TimetableCoordinator,
	logger *slog.Logger,
) *Actions {
	if logger == nil {
		logger = slog.Default()
	}
	return &Actions{
		marks:       marks,
		messages:    messages,
		noticeboard: noticeboard,
		timetable:   timetable,
		logger:      logger,
	}
}

// MarkSeen acknowledges one record. Idempotent.
func (a *Actions) MarkSeen(ctx context.Context, cmd MarkSeenCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	switch cmd.Coordinator {
	case CoordinatorMarks:
		return a.marks.MarkSeen(ctx, cmd.ChildKey, cmd.RecordID)
	case CoordinatorMessages:
		return a.messages.MarkSeen(ctx, cmd.ChildKey, cmd.RecordID)
	case CoordinatorNoticeboard:
		return a.noticeboard.MarkSeen(ctx, cmd.ChildKey, cmd.RecordID)
	default:
		return fmt.Errorf("mark_seen: unknown coordinator: %s", cmd.Coordinator)
	}
}

// AcknowledgeSubject signs all of a subject's marks and refreshes the
// marks snapshot so the novelty flags clear immediately.
func (a *Actions) AcknowledgeSubject(ctx context.Context, cmd AcknowledgeSubjectCommand) (int, error) {
	if err := cmd.Validate(); err != nil {
		return 0, err
	}

	count, err := a.marks.AcknowledgeSubject(ctx, cmd.ChildKey, cmd.SubjectKey)
	if err != nil {
		return count, err
	}
	a.logger.Info("subject acknowledged",
		"child_key", cmd.ChildKey,
		"subject", cmd.SubjectKey,
		"marks", count,
	)

	if err := a.marks.Refresh(ctx); err != nil {
		// The acknowledgement itself stuck; the stale snapshot corrects
		// on the next scheduled cycle.
		a.logger.Warn("refresh after acknowledge failed", "error", err)
	}
	return count, nil
}

// ForceRefresh runs poll cycles outside their schedule.
func (a *Actions) ForceRefresh(ctx context.Context, cmd ForceRefreshCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	type refresher interface {
		Refresh(ctx context.Context) error
	}

	targets := map[CoordinatorName]refresher{
		CoordinatorMarks:       a.marks,
		CoordinatorMessages:    a.messages,
		CoordinatorNoticeboard: a.noticeboard,
		CoordinatorTimetable:   a.timetable,
	}

	if cmd.Coordinator != "" {
		return targets[cmd.Coordinator].Refresh(ctx)
	}

	var firstErr error
	for _, name := range []CoordinatorName{CoordinatorMarks, CoordinatorMessages, CoordinatorNoticeboard, CoordinatorTimetable} {
		if err := targets[name].Refresh(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
