package bakalari

import (
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// DATA TRANSFER OBJECTS
// The remote payload is unpredictable: fields come and go between server
// versions. Every DTO field is decoded with an explicit default and the
// translation to domain records happens in one place (mapper.go), so the
// rest of the system never probes loose maps.
// ══════════════════════════════════════════════════════════════════════════════

// TokenResponseDTO is the login/refresh response.
type TokenResponseDTO struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	UserID       string `json:"bak:UserId"`
}

// ErrorResponseDTO is the error body the server returns next to non-2xx
// statuses.
type ErrorResponseDTO struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorURI         string `json:"error_uri"`
}

// ══════════════════════════════════════════════════════════════════════════════
// MARKS
// ══════════════════════════════════════════════════════════════════════════════

// MarksResponseDTO is the per-subject marks payload.
type MarksResponseDTO struct {
	Subjects []MarksSubjectDTO `json:"Subjects"`
}

// MarksSubjectDTO is one subject with its marks and running average.
type MarksSubjectDTO struct {
	Subject     SubjectDTO `json:"Subject"`
	Marks       []MarkDTO  `json:"Marks"`
	AverageText string     `json:"AverageText"`
}

// SubjectDTO identifies one subject.
type SubjectDTO struct {
	ID     string `json:"Id"`
	Abbrev string `json:"Abbrev"`
	Name   string `json:"Name"`
}

// MarkDTO is one mark as the server reports it.
type MarkDTO struct {
	ID           string   `json:"Id"`
	MarkDate     string   `json:"MarkDate"`
	EditDate     string   `json:"EditDate"`
	Caption      string   `json:"Caption"`
	Theme        string   `json:"Theme"`
	MarkText     string   `json:"MarkText"`
	PointsText   string   `json:"PointsText"`
	Teacher      string   `json:"TeacherId"`
	SubjectID    string   `json:"SubjectId"`
	Weight       *float64 `json:"Weight"`
	NumericValue *float64 `json:"MarkNumericValue"`
	IsPoints     bool     `json:"IsPoints"`
}

// Text returns the displayable mark text, preferring the regular text over
// the points form.
func (m MarkDTO) Text() string {
	if t := strings.TrimSpace(m.MarkText); t != "" {
		return t
	}
	return strings.TrimSpace(m.PointsText)
}

// Date returns the mark date, falling back to the edit date.
func (m MarkDTO) Date() string {
	if d := strings.TrimSpace(m.MarkDate); d != "" {
		return d
	}
	return strings.TrimSpace(m.EditDate)
}

// ══════════════════════════════════════════════════════════════════════════════
// KOMENS MESSAGES / NOTICEBOARD
// ══════════════════════════════════════════════════════════════════════════════

// MessagesResponseDTO is the Komens payload, shared by received messages
// and the noticeboard.
type MessagesResponseDTO struct {
	Messages []MessageDTO `json:"Messages"`
}

// MessageDTO is one Komens message or bulletin. Older servers identify
// messages under different field names, hence the fallback columns.
type MessageDTO struct {
	ID          string          `json:"Id"`
	MessageID   string          `json:"MessageId"`
	UUID        string          `json:"Uuid"`
	GUID        string          `json:"Guid"`
	Title       string          `json:"Title"`
	Text        string          `json:"Text"`
	SentDate    string          `json:"SentDate"`
	CreatedDate string          `json:"CreatedDate"`
	Sender      SenderDTO       `json:"Sender"`
	Attachments []AttachmentDTO `json:"Attachments"`
}

// SenderDTO identifies a message sender.
type SenderDTO struct {
	ID   string `json:"Id"`
	Type string `json:"Type"`
	Name string `json:"Name"`
}

// AttachmentDTO is one message attachment.
type AttachmentDTO struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
	Size int64  `json:"Size"`
}

// Date returns the message date, falling back to the creation date.
func (m MessageDTO) Date() string {
	if d := strings.TrimSpace(m.SentDate); d != "" {
		return d
	}
	return strings.TrimSpace(m.CreatedDate)
}

// ══════════════════════════════════════════════════════════════════════════════
// TIMETABLE
// ══════════════════════════════════════════════════════════════════════════════

// TimetableResponseDTO is one week of timetable, actual or permanent. The
// day atoms reference hours/subjects/teachers/rooms by id; the lookup
// tables ride along in the same payload.
type TimetableResponseDTO struct {
	Days     []TimetableDayDTO `json:"Days"`
	Hours    []HourDTO         `json:"Hours"`
	Subjects []SubjectDTO      `json:"Subjects"`
	Teachers []TeacherDTO      `json:"Teachers"`
	Rooms    []RoomDTO         `json:"Rooms"`
}

// TimetableDayDTO is one day of atoms.
type TimetableDayDTO struct {
	Date      string             `json:"Date"`
	DayOfWeek int                `json:"DayOfWeek"`
	Atoms     []TimetableAtomDTO `json:"Atoms"`
}

// TimetableAtomDTO is one lesson cell referencing the lookup tables.
type TimetableAtomDTO struct {
	HourID    int       `json:"HourId"`
	SubjectID string    `json:"SubjectId"`
	TeacherID string    `json:"TeacherId"`
	RoomID    string    `json:"RoomId"`
	Theme     string    `json:"Theme"`
	Change    ChangeDTO `json:"Change"`
}

// ChangeDTO describes a substitution or cancellation.
type ChangeDTO struct {
	ChangeType  string `json:"ChangeType"`
	Description string `json:"Description"`
}

// HourDTO is one entry of the hour lookup table.
type HourDTO struct {
	ID        int    `json:"Id"`
	Caption   string `json:"Caption"`
	BeginTime string `json:"BeginTime"`
	EndTime   string `json:"EndTime"`
}

// TeacherDTO is one entry of the teacher lookup table.
type TeacherDTO struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
}

// RoomDTO is one entry of the room lookup table.
type RoomDTO struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
}
