package bakalari

import (
	"sort"
	"strings"

	"github.com/skolbridge/skolbridge/internal/domain/marks"
	"github.com/skolbridge/skolbridge/internal/domain/records"
)

// Mapper translates remote DTOs into normalized domain records. All the
// "remote payload is unpredictable" handling lives here: identity
// fallbacks, date fallbacks, and the descending pre-sort the coordinators
// rely on.
type Mapper struct{}

// NewMapper creates a new Mapper.
func NewMapper() *Mapper {
	return &Mapper{}
}

// ══════════════════════════════════════════════════════════════════════════════
// MARKS
// ══════════════════════════════════════════════════════════════════════════════

// MapMarks flattens the per-subject marks payload into the subject registry
// and the flat mark list, pre-sorted descending by date (stable, missing
// dates last).
func (m *Mapper) MapMarks(childKey string, resp *MarksResponseDTO) ([]marks.Subject, []marks.Mark) {
	if resp == nil {
		return nil, nil
	}

	registry := make([]marks.Subject, 0, len(resp.Subjects))
	flat := make([]marks.Mark, 0)

	for _, subj := range resp.Subjects {
		registry = append(registry, marks.Subject{
			ID:   strings.TrimSpace(subj.Subject.ID),
			Abbr: strings.TrimSpace(subj.Subject.Abbrev),
			Name: strings.TrimSpace(subj.Subject.Name),
		})

		for _, dto := range subj.Marks {
			subjectID := strings.TrimSpace(dto.SubjectID)
			if subjectID == "" {
				subjectID = strings.TrimSpace(subj.Subject.ID)
			}
			flat = append(flat, marks.Mark{
				ID:           strings.TrimSpace(dto.ID),
				ChildKey:     childKey,
				Date:         dto.Date(),
				SubjectID:    subjectID,
				SubjectAbbr:  strings.TrimSpace(subj.Subject.Abbrev),
				SubjectName:  strings.TrimSpace(subj.Subject.Name),
				MarkText:     dto.Text(),
				Caption:      strings.TrimSpace(dto.Caption),
				Teacher:      strings.TrimSpace(dto.Teacher),
				NumericValue: dto.NumericValue,
				Weight:       dto.Weight,
			})
		}
	}

	sort.SliceStable(flat, func(i, j int) bool {
		return flat[i].Date > flat[j].Date
	})
	return registry, flat
}

// ══════════════════════════════════════════════════════════════════════════════
// MESSAGES / NOTICEBOARD
// ══════════════════════════════════════════════════════════════════════════════

// ResolveMessageID computes the stable identity of a Komens message:
// Id, MessageId, Uuid, Guid in order, composed from title and date as the
// last resort so seen-set diffing still works on id-less servers.
func ResolveMessageID(dto MessageDTO) string {
	for _, candidate := range []string{dto.ID, dto.MessageID, dto.UUID, dto.GUID} {
		if id := strings.TrimSpace(candidate); id != "" {
			return id
		}
	}

	parts := make([]string, 0, 2)
	if title := strings.TrimSpace(dto.Title); title != "" {
		parts = append(parts, title)
	}
	if date := dto.Date(); date != "" {
		parts = append(parts, date)
	}
	return strings.Join(parts, "|")
}

// MapMessages normalizes the received-messages payload, pre-sorted
// descending by date.
func (m *Mapper) MapMessages(childKey string, resp *MessagesResponseDTO) []records.Message {
	if resp == nil {
		return nil
	}

	out := make([]records.Message, 0, len(resp.Messages))
	for _, dto := range resp.Messages {
		out = append(out, records.Message{
			ID:          ResolveMessageID(dto),
			ChildKey:    childKey,
			Title:       strings.TrimSpace(dto.Title),
			Sender:      strings.TrimSpace(dto.Sender.Name),
			Text:        strings.TrimSpace(dto.Text),
			Date:        dto.Date(),
			Attachments: len(dto.Attachments),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date > out[j].Date
	})
	return out
}

// MapNoticeboard normalizes the noticeboard payload, pre-sorted descending
// by date.
func (m *Mapper) MapNoticeboard(childKey string, resp *MessagesResponseDTO) []records.Notice {
	if resp == nil {
		return nil
	}

	out := make([]records.Notice, 0, len(resp.Messages))
	for _, dto := range resp.Messages {
		out = append(out, records.Notice{
			ID:       ResolveMessageID(dto),
			ChildKey: childKey,
			Title:    strings.TrimSpace(dto.Title),
			Text:     strings.TrimSpace(dto.Text),
			Date:     dto.Date(),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date > out[j].Date
	})
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// TIMETABLE
// ══════════════════════════════════════════════════════════════════════════════

// MapTimetable resolves the atom references against the payload's lookup
// tables and produces one week.
func (m *Mapper) MapTimetable(childKey string, resp *TimetableResponseDTO, permanent bool) records.TimetableWeek {
	week := records.TimetableWeek{
		ChildKey:  childKey,
		Permanent: permanent,
	}
	if resp == nil {
		return week
	}

	hours := make(map[int]HourDTO, len(resp.Hours))
	for _, h := range resp.Hours {
		hours[h.ID] = h
	}
	subjects := make(map[string]SubjectDTO, len(resp.Subjects))
	for _, s := range resp.Subjects {
		subjects[s.ID] = s
	}
	teachers := make(map[string]TeacherDTO, len(resp.Teachers))
	for _, t := range resp.Teachers {
		teachers[t.ID] = t
	}
	rooms := make(map[string]RoomDTO, len(resp.Rooms))
	for _, r := range resp.Rooms {
		rooms[r.ID] = r
	}

	for _, day := range resp.Days {
		mapped := records.Day{
			Date:      strings.TrimSpace(day.Date),
			DayOfWeek: day.DayOfWeek,
			Lessons:   make([]records.Lesson, 0, len(day.Atoms)),
		}
		if !permanent && week.WeekStart == "" && mapped.Date != "" {
			week.WeekStart = mapped.Date
		}

		for _, atom := range day.Atoms {
			hour := hours[atom.HourID]
			subject := subjects[atom.SubjectID]
			mapped.Lessons = append(mapped.Lessons, records.Lesson{
				HourIndex:   atom.HourID,
				Begin:       strings.TrimSpace(hour.BeginTime),
				End:         strings.TrimSpace(hour.EndTime),
				Subject:     strings.TrimSpace(subject.Name),
				SubjectAbbr: strings.TrimSpace(subject.Abbrev),
				Teacher:     strings.TrimSpace(teachers[atom.TeacherID].Name),
				Room:        strings.TrimSpace(rooms[atom.RoomID].Name),
				Theme:       strings.TrimSpace(atom.Theme),
				Change:      strings.TrimSpace(atom.Change.Description),
			})
		}

		sort.SliceStable(mapped.Lessons, func(i, j int) bool {
			return mapped.Lessons[i].HourIndex < mapped.Lessons[j].HourIndex
		})
		week.Days = append(week.Days, mapped)
	}

	return week
}
