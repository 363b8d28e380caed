package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Each event represents something significant that
// happened during a poll cycle or while handling a user action.
const (
	// Record events
	EventMarkNew         EventType = "mark.new"
	EventMessageNew      EventType = "message.new"
	EventNoticeboardNew  EventType = "noticeboard.new"
	EventTimetableSynced EventType = "timetable.synced"

	// Authentication events
	EventReauthRequired EventType = "auth.reauth_required"
	EventTokensRotated  EventType = "auth.tokens_rotated"

	// Sync events
	EventSyncCompleted EventType = "sync.completed"
	EventSyncFailed    EventType = "sync.failed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	// For this domain the aggregate is always the child key.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
	Version     int       `json:"version"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Record Events
// ═══════════════════════════════════════════════════════════════════════════

// MarkNewEvent is emitted exactly once per unseen mark identity.
type MarkNewEvent struct {
	BaseEvent
	ChildKey  string `json:"child_key"`
	ChildName string `json:"child_name"`
	MarkID    string `json:"mark_id"`
	Subject   string `json:"subject"`
	MarkText  string `json:"mark_text"`
	Date      string `json:"date"`
}

// Payload implements Event interface.
func (e MarkNewEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"child_key":  e.ChildKey,
		"child_name": e.ChildName,
		"mark_id":    e.MarkID,
		"subject":    e.Subject,
		"mark_text":  e.MarkText,
		"date":       e.Date,
	}
}

// NewMarkNewEvent creates a new MarkNewEvent.
func NewMarkNewEvent(childKey, childName, markID, subject, markText, date string) MarkNewEvent {
	return MarkNewEvent{
		BaseEvent: NewBaseEvent(EventMarkNew, childKey),
		ChildKey:  childKey,
		ChildName: childName,
		MarkID:    markID,
		Subject:   subject,
		MarkText:  markText,
		Date:      date,
	}
}

// MessageNewEvent is emitted exactly once per unseen Komens message identity.
type MessageNewEvent struct {
	BaseEvent
	ChildKey  string `json:"child_key"`
	ChildName string `json:"child_name"`
	MessageID string `json:"message_id"`
	Title     string `json:"title"`
	Sender    string `json:"sender"`
	Date      string `json:"date"`
}

// Payload implements Event interface.
func (e MessageNewEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"child_key":  e.ChildKey,
		"child_name": e.ChildName,
		"message_id": e.MessageID,
		"title":      e.Title,
		"sender":     e.Sender,
		"date":       e.Date,
	}
}

// NewMessageNewEvent creates a new MessageNewEvent.
func NewMessageNewEvent(childKey, childName, messageID, title, sender, date string) MessageNewEvent {
	return MessageNewEvent{
		BaseEvent: NewBaseEvent(EventMessageNew, childKey),
		ChildKey:  childKey,
		ChildName: childName,
		MessageID: messageID,
		Title:     title,
		Sender:    sender,
		Date:      date,
	}
}

// NoticeboardNewEvent is emitted exactly once per unseen noticeboard bulletin.
type NoticeboardNewEvent struct {
	BaseEvent
	ChildKey  string `json:"child_key"`
	ChildName string `json:"child_name"`
	NoticeID  string `json:"notice_id"`
	Title     string `json:"title"`
	Date      string `json:"date"`
}

// Payload implements Event interface.
func (e NoticeboardNewEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"child_key":  e.ChildKey,
		"child_name": e.ChildName,
		"notice_id":  e.NoticeID,
		"title":      e.Title,
		"date":       e.Date,
	}
}

// NewNoticeboardNewEvent creates a new NoticeboardNewEvent.
func NewNoticeboardNewEvent(childKey, childName, noticeID, title, date string) NoticeboardNewEvent {
	return NoticeboardNewEvent{
		BaseEvent: NewBaseEvent(EventNoticeboardNew, childKey),
		ChildKey:  childKey,
		ChildName: childName,
		NoticeID:  noticeID,
		Title:     title,
		Date:      date,
	}
}

// TimetableSyncedEvent is emitted after a child's timetable window has been
// refreshed. Timetable entries carry no novelty flag, so this is the only
// timetable signal.
type TimetableSyncedEvent struct {
	BaseEvent
	ChildKey  string `json:"child_key"`
	ChildName string `json:"child_name"`
	WeekStart string `json:"week_start"`
	Days      int    `json:"days"`
}

// Payload implements Event interface.
func (e TimetableSyncedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"child_key":  e.ChildKey,
		"child_name": e.ChildName,
		"week_start": e.WeekStart,
		"days":       e.Days,
	}
}

// NewTimetableSyncedEvent creates a new TimetableSyncedEvent.
func NewTimetableSyncedEvent(childKey, childName, weekStart string, days int) TimetableSyncedEvent {
	return TimetableSyncedEvent{
		BaseEvent: NewBaseEvent(EventTimetableSynced, childKey),
		ChildKey:  childKey,
		ChildName: childName,
		WeekStart: weekStart,
		Days:      days,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Authentication Events
// ═══════════════════════════════════════════════════════════════════════════

// ReauthRequiredEvent is emitted at most once per re-auth episode when a
// child's tokens can no longer be refreshed and the user has to log in again.
type ReauthRequiredEvent struct {
	BaseEvent
	ChildKey  string `json:"child_key"`
	ChildName string `json:"child_name"`
	Server    string `json:"server"`
	Reason    string `json:"reason"`
}

// Payload implements Event interface.
func (e ReauthRequiredEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"child_key":  e.ChildKey,
		"child_name": e.ChildName,
		"server":     e.Server,
		"reason":     e.Reason,
	}
}

// NewReauthRequiredEvent creates a new ReauthRequiredEvent.
func NewReauthRequiredEvent(childKey, childName, server, reason string) ReauthRequiredEvent {
	return ReauthRequiredEvent{
		BaseEvent: NewBaseEvent(EventReauthRequired, childKey),
		ChildKey:  childKey,
		ChildName: childName,
		Server:    server,
		Reason:    reason,
	}
}

// TokensRotatedEvent is emitted after a refreshed token pair has been
// persisted back into the options store.
type TokensRotatedEvent struct {
	BaseEvent
	ChildKey string `json:"child_key"`
	Server   string `json:"server"`
}

// Payload implements Event interface.
func (e TokensRotatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"child_key": e.ChildKey,
		"server":    e.Server,
	}
}

// NewTokensRotatedEvent creates a new TokensRotatedEvent.
func NewTokensRotatedEvent(childKey, server string) TokensRotatedEvent {
	return TokensRotatedEvent{
		BaseEvent: NewBaseEvent(EventTokensRotated, childKey),
		ChildKey:  childKey,
		Server:    server,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Sync Events
// ═══════════════════════════════════════════════════════════════════════════

// SyncCompletedEvent is emitted after a poll cycle publishes a snapshot.
type SyncCompletedEvent struct {
	BaseEvent
	Coordinator string        `json:"coordinator"`
	Children    int           `json:"children"`
	Records     int           `json:"records"`
	NewRecords  int           `json:"new_records"`
	Duration    time.Duration `json:"duration"`
}

// Payload implements Event interface.
func (e SyncCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"coordinator": e.Coordinator,
		"children":    e.Children,
		"records":     e.Records,
		"new_records": e.NewRecords,
		"duration":    e.Duration.String(),
	}
}

// NewSyncCompletedEvent creates a new SyncCompletedEvent.
func NewSyncCompletedEvent(coordinator string, children, records, newRecords int, duration time.Duration) SyncCompletedEvent {
	return SyncCompletedEvent{
		BaseEvent:   NewBaseEvent(EventSyncCompleted, coordinator),
		Coordinator: coordinator,
		Children:    children,
		Records:     records,
		NewRecords:  newRecords,
		Duration:    duration,
	}
}

// SyncFailedEvent is emitted when a poll cycle aborts without publishing.
type SyncFailedEvent struct {
	BaseEvent
	Coordinator string `json:"coordinator"`
	ChildKey    string `json:"child_key,omitempty"`
	Reason      string `json:"reason"`
}

// Payload implements Event interface.
func (e SyncFailedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"coordinator": e.Coordinator,
		"child_key":   e.ChildKey,
		"reason":      e.Reason,
	}
}

// NewSyncFailedEvent creates a new SyncFailedEvent.
func NewSyncFailedEvent(coordinator, childKey, reason string) SyncFailedEvent {
	return SyncFailedEvent{
		BaseEvent:   NewBaseEvent(EventSyncFailed, coordinator),
		Coordinator: coordinator,
		ChildKey:    childKey,
		Reason:      reason,
	}
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
