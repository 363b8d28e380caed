// Package records contains the normalized record models for messages,
// noticeboard bulletins, and timetable entries. Marks live in their own
// package because of the aggregation helpers attached to them.
package records

import "strings"

// ══════════════════════════════════════════════════════════════════════════════
// MESSAGE
// ══════════════════════════════════════════════════════════════════════════════

// Message is one normalized Komens message.
type Message struct {
	// ID is the stable record identity used for seen-set diffing.
	ID string `json:"id"`

	// ChildKey is the composite "server|user_id" child identity.
	ChildKey string `json:"child_key"`

	// Title is the message subject line.
	Title string `json:"title"`

	// Sender is the sender's display name.
	Sender string `json:"sender"`

	// Text is the message body, possibly truncated by the server.
	Text string `json:"text"`

	// Date is the sent date as reported by the server.
	Date string `json:"date"`

	// Attachments is the number of attachments.
	Attachments int `json:"attachments"`

	// IsNew reports whether this record was unseen at snapshot time.
	IsNew bool `json:"is_new"`
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTICEBOARD
// ══════════════════════════════════════════════════════════════════════════════

// Notice is one normalized noticeboard bulletin.
type Notice struct {
	// ID is the stable record identity used for seen-set diffing.
	ID string `json:"id"`

	// ChildKey is the composite "server|user_id" child identity.
	ChildKey string `json:"child_key"`

	// Title is the bulletin title.
	Title string `json:"title"`

	// Text is the bulletin body.
	Text string `json:"text"`

	// Date is the publication date as reported by the server.
	Date string `json:"date"`

	// IsNew reports whether this record was unseen at snapshot time.
	IsNew bool `json:"is_new"`
}

// ══════════════════════════════════════════════════════════════════════════════
// TIMETABLE
// ══════════════════════════════════════════════════════════════════════════════

// Lesson is one cell of a timetable day.
type Lesson struct {
	// HourIndex is the position of the lesson within the day.
	HourIndex int `json:"hour_index"`

	// Begin and End are the lesson times as "HH:MM" strings.
	Begin string `json:"begin"`
	End   string `json:"end"`

	// Subject is the full subject name.
	Subject string `json:"subject"`

	// SubjectAbbr is the subject abbreviation.
	SubjectAbbr string `json:"subject_abbr"`

	// Teacher is the teacher's display name.
	Teacher string `json:"teacher"`

	// Room is the room label.
	Room string `json:"room"`

	// Theme is the lesson topic, when filled in.
	Theme string `json:"theme"`

	// Change describes a substitution or cancellation, empty when regular.
	Change string `json:"change"`
}

// Day is one day of a timetable week.
type Day struct {
	// Date is the day's date, empty for permanent timetables.
	Date string `json:"date"`

	// DayOfWeek is 1 (Monday) through 7 (Sunday).
	DayOfWeek int `json:"day_of_week"`

	// Lessons is the ordered lesson list.
	Lessons []Lesson `json:"lessons"`
}

// TimetableWeek is one fetched week, either an actual week anchored at a
// date or the permanent schedule.
type TimetableWeek struct {
	// ChildKey is the composite "server|user_id" child identity.
	ChildKey string `json:"child_key"`

	// WeekStart is the Monday of the week, empty for permanent timetables.
	WeekStart string `json:"week_start"`

	// Permanent reports whether this is the permanent schedule.
	Permanent bool `json:"permanent"`

	// Days is the ordered day list.
	Days []Day `json:"days"`
}

// ══════════════════════════════════════════════════════════════════════════════
// ORDERING
// ══════════════════════════════════════════════════════════════════════════════

// Dated is implemented by records that carry a sortable date string.
type Dated interface {
	DateKey() string
}

// DateKey implements Dated.
func (m Message) DateKey() string { return strings.TrimSpace(m.Date) }

// DateKey implements Dated.
func (n Notice) DateKey() string { return strings.TrimSpace(n.Date) }
