package marks

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func fptr(v float64) *float64 { return &v }

// marksSample mirrors a real payload: two subjects, four marks, already in
// descending time order.
func marksSample() []Mark {
	return []Mark{
		{
			ID: "m1", Date: "2025-01-10",
			SubjectID: "S1", SubjectAbbr: "MA", SubjectName: "Matematika",
			MarkText: "1", IsNew: true,
		},
		{
			ID: "m2", Date: "2025-01-09",
			SubjectID: "S1", SubjectAbbr: "MA", SubjectName: "Matematika",
			NumericValue: fptr(2), Weight: fptr(2),
		},
		{
			ID: "m3", Date: "2025-01-08",
			SubjectID: "S2", SubjectAbbr: "FY", SubjectName: "Fyzika",
			MarkText: "A", IsNew: true,
		},
		{
			ID: "m4", Date: "2025-01-07",
			SubjectID: "S2", SubjectAbbr: "FY", SubjectName: "Fyzika",
			MarkText: "3",
		},
	}
}

func TestNumericOf_TextExtraction(t *testing.T) {
	// Trailing minus is dropped, first digit run wins.
	v, w, ok := NumericOf(Mark{MarkText: "1-"})
	assert.True(t, ok)
	assert.Equal(t, 1.0, v)
	assert.Equal(t, 1.0, w)

	// Only the first run of digits counts; "15/20" is 15, not 0.75.
	v, _, ok = NumericOf(Mark{MarkText: "15/20"})
	assert.True(t, ok)
	assert.Equal(t, 15.0, v)

	// Decimal comma is accepted.
	v, _, ok = NumericOf(Mark{MarkText: "1,5"})
	assert.True(t, ok)
	assert.Equal(t, 1.5, v)

	// No digits at all is non-numeric.
	_, _, ok = NumericOf(Mark{MarkText: "A"})
	assert.False(t, ok)

	_, _, ok = NumericOf(Mark{})
	assert.False(t, ok)
}

func TestNumericOf_ExplicitValueAndWeight(t *testing.T) {
	v, w, ok := NumericOf(Mark{NumericValue: fptr(2), Weight: fptr(2)})
	assert.True(t, ok)
	assert.Equal(t, 2.0, v)
	assert.Equal(t, 2.0, w)
	// Weighted contribution of this mark is 4.0.
	assert.Equal(t, 4.0, v*w)

	// Explicit value wins over the text.
	v, _, ok = NumericOf(Mark{NumericValue: fptr(2), MarkText: "5"})
	assert.True(t, ok)
	assert.Equal(t, 2.0, v)
}

func TestAggregateMarks_OverallStats(t *testing.T) {
	agg := AggregateMarks(marksSample())

	assert.Equal(t, 4, agg.Overall.Count)
	assert.Equal(t, 2, agg.Overall.NewCount)
	assert.Equal(t, 3, agg.Overall.NumericCount)
	assert.Equal(t, 1, agg.Overall.NonNumericCount)
	assert.InDelta(t, 2.0, agg.Overall.Average, 1e-9)
	// (1*1 + 2*2 + 3*1) / (1 + 2 + 1) = 8/4
	assert.InDelta(t, 2.0, agg.Overall.WeightedAverage, 1e-9)
}

func TestAggregateMarks_BySubject(t *testing.T) {
	agg := AggregateMarks(marksSample())

	assert.Len(t, agg.BySubject, 2)
	// Sorted by abbreviation ascending: FY before MA.
	assert.Equal(t, "FY", agg.BySubject[0].Abbr)
	assert.Equal(t, "MA", agg.BySubject[1].Abbr)

	ma, ok := agg.SubjectFor("S1")
	assert.True(t, ok)
	assert.Equal(t, 2, ma.Count)
	assert.Equal(t, 2, ma.NumericCount)
	assert.Equal(t, 0, ma.NonNumericCount)
	assert.InDelta(t, 1.5, ma.Average, 1e-9)
	assert.InDelta(t, 5.0/3.0, ma.WeightedAverage, 1e-9)
	assert.Equal(t, "1", ma.LastText)

	fy, ok := agg.SubjectFor("S2")
	assert.True(t, ok)
	assert.Equal(t, 2, fy.Count)
	assert.Equal(t, 1, fy.NumericCount)
	assert.Equal(t, 1, fy.NonNumericCount)
	assert.InDelta(t, 3.0, fy.Average, 1e-9)
	assert.InDelta(t, 3.0, fy.WeightedAverage, 1e-9)
	assert.Equal(t, "A", fy.LastText)
}

func TestAggregateMarks_SameSubjectDifferentIDsCollapse(t *testing.T) {
	agg := AggregateMarks([]Mark{
		{ID: "a", SubjectID: "S1", SubjectAbbr: "MA", MarkText: "1"},
		{ID: "b", SubjectID: "S1", SubjectAbbr: "MA", MarkText: "2"},
	})

	assert.Len(t, agg.BySubject, 1)
	assert.Equal(t, 2, agg.BySubject[0].Count)
}

func TestAggregateMarks_ZeroWeightFallsBackToAverage(t *testing.T) {
	agg := AggregateMarks([]Mark{
		{ID: "a", SubjectAbbr: "MA", NumericValue: fptr(1), Weight: fptr(0)},
		{ID: "b", SubjectAbbr: "MA", NumericValue: fptr(3), Weight: fptr(0)},
	})

	assert.InDelta(t, 2.0, agg.Overall.Average, 1e-9)
	assert.InDelta(t, 2.0, agg.Overall.WeightedAverage, 1e-9)
}

func TestAggregateMarks_RecentCapped(t *testing.T) {
	records := make([]Mark, 0, RecentLimit+5)
	for i := 0; i < RecentLimit+5; i++ {
		records = append(records, Mark{ID: string(rune('a' + i)), SubjectAbbr: "MA", MarkText: "1"})
	}

	agg := AggregateMarks(records)
	assert.Len(t, agg.Recent, RecentLimit)
	assert.Equal(t, records[0].ID, agg.Recent[0].ID)
}

func TestAggregateMarks_SubjectSortEmptyFirst(t *testing.T) {
	agg := AggregateMarks([]Mark{
		{ID: "a", SubjectAbbr: "MA", MarkText: "1"},
		{ID: "b", SubjectName: "Dějepis", MarkText: "2"},
	})

	// Empty abbreviation sorts before "MA".
	assert.Len(t, agg.BySubject, 2)
	assert.Equal(t, "", agg.BySubject[0].Abbr)
	assert.Equal(t, "MA", agg.BySubject[1].Abbr)
}

func TestSubjectKey_FallbackPrecedence(t *testing.T) {
	assert.Equal(t, "S1", Mark{SubjectID: "S1", SubjectAbbr: "MA", SubjectName: "Matematika"}.SubjectKey())
	assert.Equal(t, "MA", Mark{SubjectAbbr: "MA", SubjectName: "Matematika"}.SubjectKey())
	assert.Equal(t, "Matematika", Mark{SubjectName: "Matematika"}.SubjectKey())
	assert.Equal(t, SubjectKeyUnknown, Mark{}.SubjectKey())
}

func TestDeriveSubjects_RegistryWins(t *testing.T) {
	registry := []Subject{
		{ID: "S1", Abbr: "MA", Name: "Matematika"},
		{ID: "S2", Name: "Fyzika"},
	}
	flat := []Mark{{SubjectID: "S9", SubjectAbbr: "XX"}}

	refs := DeriveSubjects(registry, flat)
	assert.Equal(t, []SubjectRef{
		{Key: "S1", Label: "MA"},
		{Key: "S2", Label: "Fyzika"},
	}, refs)
}

func TestDeriveSubjects_FlatScanDedupsFirstSeen(t *testing.T) {
	flat := []Mark{
		{SubjectID: "S1", SubjectAbbr: "MA", SubjectName: "Matematika"},
		{SubjectID: "S2", SubjectName: "Fyzika"},
		{SubjectID: "S1", SubjectAbbr: "MA"},
		{},
	}

	refs := DeriveSubjects(nil, flat)
	assert.Equal(t, []SubjectRef{
		{Key: "S1", Label: "MA"},
		{Key: "S2", Label: "Fyzika"},
		{Key: SubjectKeyUnknown, Label: SubjectKeyUnknown},
	}, refs)
}
