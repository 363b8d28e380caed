package marks

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// RecentLimit caps the "most recent" echo list in an aggregate.
const RecentLimit = 20

// firstNumberRe matches the first run of digits with an optional decimal
// part separated by comma or point. "15/20" yields "15", "1-" yields "1".
var firstNumberRe = regexp.MustCompile(`[0-9]+(?:[.,][0-9]+)?`)

// ══════════════════════════════════════════════════════════════════════════════
// NUMERIC EXTRACTION
// ══════════════════════════════════════════════════════════════════════════════

// NumericOf extracts a numeric value and weight from a mark.
//
// Precedence: an explicit NumericValue wins; otherwise the first digit run
// in MarkText (decimal comma accepted) is parsed. Marks with neither count
// as non-numeric. Weight defaults to 1.0 when absent.
func NumericOf(m Mark) (value, weight float64, ok bool) {
	weight = 1.0
	if m.Weight != nil {
		weight = *m.Weight
	}

	if m.NumericValue != nil {
		return *m.NumericValue, weight, true
	}

	match := firstNumberRe.FindString(m.MarkText)
	if match == "" {
		return 0, weight, false
	}

	parsed, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", "."), 64)
	if err != nil {
		return 0, weight, false
	}
	return parsed, weight, true
}

// ══════════════════════════════════════════════════════════════════════════════
// STATISTICS
// ══════════════════════════════════════════════════════════════════════════════

// Stats holds counting and averaging results over one set of marks.
type Stats struct {
	// Count is the total number of marks.
	Count int `json:"count"`

	// NewCount is the number of marks flagged IsNew.
	NewCount int `json:"new_count"`

	// NumericCount is the number of marks a numeric value was extracted from.
	NumericCount int `json:"numeric_count"`

	// NonNumericCount is Count minus NumericCount.
	NonNumericCount int `json:"non_numeric_count"`

	// Average is the simple mean over the numeric subset, 0 when empty.
	Average float64 `json:"avg"`

	// WeightedAverage is Σ(value·weight)/Σweight over the numeric subset.
	// Falls back to Average when the total weight is zero.
	WeightedAverage float64 `json:"wavg"`
}

// SubjectStats is the per-subject breakdown entry.
type SubjectStats struct {
	Stats

	// Key is the stable subject key.
	Key string `json:"subject_key"`

	// Abbr is the subject abbreviation of the first mark seen for the key.
	Abbr string `json:"subject_abbr"`

	// Name is the full subject name of the first mark seen for the key.
	Name string `json:"subject_name"`

	// LastText is the mark text of the subject's most recent mark.
	LastText string `json:"last_text"`
}

// Aggregate is the full aggregation result over one child's mark list.
type Aggregate struct {
	// Overall covers every mark regardless of subject.
	Overall Stats `json:"overall"`

	// BySubject is the per-subject breakdown, sorted by (abbr, name)
	// ascending, case-sensitive, empty strings first.
	BySubject []SubjectStats `json:"by_subject"`

	// Recent echoes the most recent marks, capped at RecentLimit. The
	// input order is preserved (the normalizer pre-sorts descending).
	Recent []Mark `json:"recent"`
}

// statsAccumulator collects running sums for one Stats result.
type statsAccumulator struct {
	count       int
	newCount    int
	numeric     int
	sum         float64
	weightedSum float64
	totalWeight float64
}

func (a *statsAccumulator) add(m Mark) {
	a.count++
	if m.IsNew {
		a.newCount++
	}
	value, weight, ok := NumericOf(m)
	if !ok {
		return
	}
	a.numeric++
	a.sum += value
	a.weightedSum += value * weight
	a.totalWeight += weight
}

func (a *statsAccumulator) stats() Stats {
	s := Stats{
		Count:           a.count,
		NewCount:        a.newCount,
		NumericCount:    a.numeric,
		NonNumericCount: a.count - a.numeric,
	}
	if a.numeric > 0 {
		s.Average = a.sum / float64(a.numeric)
	}
	if a.totalWeight > 0 {
		s.WeightedAverage = a.weightedSum / a.totalWeight
	} else {
		s.WeightedAverage = s.Average
	}
	return s
}

// AggregateMarks computes overall and per-subject statistics over a mark
// list. The list is expected pre-sorted descending by date; the first mark
// of each subject determines that subject's LastText.
func AggregateMarks(records []Mark) Aggregate {
	overall := &statsAccumulator{}
	perSubject := make(map[string]*statsAccumulator)
	meta := make(map[string]*SubjectStats)
	order := make([]string, 0)

	for _, m := range records {
		overall.add(m)

		key := m.SubjectKey()
		acc, ok := perSubject[key]
		if !ok {
			acc = &statsAccumulator{}
			perSubject[key] = acc
			meta[key] = &SubjectStats{
				Key:      key,
				Abbr:     strings.TrimSpace(m.SubjectAbbr),
				Name:     strings.TrimSpace(m.SubjectName),
				LastText: strings.TrimSpace(m.MarkText),
			}
			order = append(order, key)
		}
		acc.add(m)
	}

	bySubject := make([]SubjectStats, 0, len(order))
	for _, key := range order {
		entry := *meta[key]
		entry.Stats = perSubject[key].stats()
		bySubject = append(bySubject, entry)
	}
	sort.SliceStable(bySubject, func(i, j int) bool {
		if bySubject[i].Abbr != bySubject[j].Abbr {
			return bySubject[i].Abbr < bySubject[j].Abbr
		}
		return bySubject[i].Name < bySubject[j].Name
	})

	recent := records
	if len(recent) > RecentLimit {
		recent = recent[:RecentLimit]
	}
	out := make([]Mark, len(recent))
	copy(out, recent)

	return Aggregate{
		Overall:   overall.stats(),
		BySubject: bySubject,
		Recent:    out,
	}
}

// SubjectFor returns the per-subject breakdown entry for a key, if present.
func (a Aggregate) SubjectFor(key string) (SubjectStats, bool) {
	for _, s := range a.BySubject {
		if s.Key == key {
			return s, true
		}
	}
	return SubjectStats{}, false
}

// ══════════════════════════════════════════════════════════════════════════════
// SUBJECT DERIVATION
// ══════════════════════════════════════════════════════════════════════════════

// DeriveSubjects returns the (key, label) pairs present in one child's data.
//
// A non-empty explicit registry wins over scanning the flat mark list. The
// flat scan deduplicates by subject key in first-seen order.
func DeriveSubjects(registry []Subject, flat []Mark) []SubjectRef {
	if len(registry) > 0 {
		out := make([]SubjectRef, 0, len(registry))
		for _, s := range registry {
			out = append(out, SubjectRef{Key: s.Key(), Label: s.Label()})
		}
		return out
	}

	seen := make(map[string]bool)
	out := make([]SubjectRef, 0)
	for _, m := range flat {
		key := m.SubjectKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, SubjectRef{Key: key, Label: m.SubjectLabel()})
	}
	return out
}
