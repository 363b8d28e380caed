// Package marks contains the normalized mark record model and the pure
// aggregation helpers computed over it (per-subject statistics, numeric
// extraction, subject derivation). No I/O happens here.
package marks

import (
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: MARK
// ══════════════════════════════════════════════════════════════════════════════

// Mark is one normalized mark record as produced by the marks coordinator.
// The fetch boundary decodes the remote payload into this flat shape with
// every field defaulted explicitly.
type Mark struct {
	// ID is the stable record identity used for seen-set diffing.
	ID string `json:"id"`

	// ChildKey is the composite "server|user_id" child identity.
	ChildKey string `json:"child_key"`

	// Date is the mark date as reported by the server (ISO-8601 string,
	// possibly empty when the payload carried none).
	Date string `json:"date"`

	// SubjectID is the explicit subject identifier, when present.
	SubjectID string `json:"subject_id"`

	// SubjectAbbr is the subject abbreviation, e.g. "MA".
	SubjectAbbr string `json:"subject_abbr"`

	// SubjectName is the full subject name, e.g. "Matematika".
	SubjectName string `json:"subject_name"`

	// MarkText is the human-readable mark value, e.g. "1-", "A", "15/20".
	MarkText string `json:"mark_text"`

	// Caption is the assignment description, when present.
	Caption string `json:"caption"`

	// Teacher is the teacher name, when present.
	Teacher string `json:"teacher"`

	// NumericValue is the explicit numeric value reported by the server,
	// nil when the payload carried none.
	NumericValue *float64 `json:"numeric_value,omitempty"`

	// Weight is the explicit mark weight, nil when absent (treated as 1.0).
	Weight *float64 `json:"weight,omitempty"`

	// IsNew reports whether this record was unseen at snapshot time. It is
	// an annotation computed against the seen-set, not part of identity.
	IsNew bool `json:"is_new"`
}

// SubjectKeyUnknown is the fallback subject key when a mark carries no
// subject information at all.
const SubjectKeyUnknown = "unknown"

// SubjectKey returns the stable category key for this mark:
// subject id, then abbreviation, then name, then "unknown".
func (m Mark) SubjectKey() string {
	if id := strings.TrimSpace(m.SubjectID); id != "" {
		return id
	}
	if abbr := strings.TrimSpace(m.SubjectAbbr); abbr != "" {
		return abbr
	}
	if name := strings.TrimSpace(m.SubjectName); name != "" {
		return name
	}
	return SubjectKeyUnknown
}

// SubjectLabel returns the display label for this mark's subject:
// abbreviation, then name, then the subject key.
func (m Mark) SubjectLabel() string {
	if abbr := strings.TrimSpace(m.SubjectAbbr); abbr != "" {
		return abbr
	}
	if name := strings.TrimSpace(m.SubjectName); name != "" {
		return name
	}
	return m.SubjectKey()
}

// ShortText returns "ABBR text" for display, e.g. "MA 1".
func (m Mark) ShortText() string {
	subject := strings.TrimSpace(m.SubjectAbbr)
	if subject == "" {
		subject = strings.TrimSpace(m.SubjectName)
	}
	return strings.TrimSpace(subject + " " + strings.TrimSpace(m.MarkText))
}

// ══════════════════════════════════════════════════════════════════════════════
// SUBJECT REGISTRY
// ══════════════════════════════════════════════════════════════════════════════

// Subject is one entry of the explicit subject registry the server may
// embed in the marks payload.
type Subject struct {
	// ID is the explicit subject identifier.
	ID string `json:"id"`

	// Abbr is the subject abbreviation.
	Abbr string `json:"abbr"`

	// Name is the full subject name.
	Name string `json:"name"`
}

// Key returns the stable key for a registry entry, same precedence as
// Mark.SubjectKey.
func (s Subject) Key() string {
	if id := strings.TrimSpace(s.ID); id != "" {
		return id
	}
	if abbr := strings.TrimSpace(s.Abbr); abbr != "" {
		return abbr
	}
	if name := strings.TrimSpace(s.Name); name != "" {
		return name
	}
	return SubjectKeyUnknown
}

// Label returns the display label for a registry entry.
func (s Subject) Label() string {
	if abbr := strings.TrimSpace(s.Abbr); abbr != "" {
		return abbr
	}
	if name := strings.TrimSpace(s.Name); name != "" {
		return name
	}
	return s.Key()
}

// SubjectRef is a derived (key, label) pair used to drive dynamic creation
// of per-subject views.
type SubjectRef struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}
