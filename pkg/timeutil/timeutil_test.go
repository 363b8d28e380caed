package timeutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchoolYearBounds_AfterStart(t *testing.T) {
	today := Date(2025, 10, 15)
	start, end := SchoolYearBounds(today, DefaultSchoolYearStartMonth, DefaultSchoolYearStartDay)

	assert.Equal(t, Date(2025, 9, 1), start)
	assert.Equal(t, Date(2026, 9, 1), end)
}

func TestSchoolYearBounds_BeforeStart(t *testing.T) {
	// June still belongs to the school year that began the previous September.
	today := Date(2026, 6, 10)
	start, end := SchoolYearBounds(today, DefaultSchoolYearStartMonth, DefaultSchoolYearStartDay)

	assert.Equal(t, Date(2025, 9, 1), start)
	assert.Equal(t, Date(2026, 9, 1), end)
}

func TestSchoolYearBounds_OnBoundaryDay(t *testing.T) {
	today := Date(2025, 9, 1)
	start, end := SchoolYearBounds(today, 9, 1)

	assert.Equal(t, Date(2025, 9, 1), start)
	assert.Equal(t, Date(2026, 9, 1), end)
}

func TestTimetableWindow(t *testing.T) {
	window := TimetableWindow(Date(2025, 1, 15))

	assert.Len(t, window, 3)
	assert.Equal(t, Date(2025, 1, 15), window[0])
	assert.Equal(t, Date(2025, 1, 22), window[1])
	assert.Equal(t, Date(2025, 1, 8), window[2])
}

func TestStartOfWeek_MondayBased(t *testing.T) {
	// 2025-01-15 is a Wednesday; the week starts Monday 2025-01-13.
	assert.Equal(t, Date(2025, 1, 13), StartOfWeek(Date(2025, 1, 15)))
	// Sunday belongs to the week that started the previous Monday.
	assert.Equal(t, Date(2025, 1, 13), StartOfWeek(Date(2025, 1, 19)))
}

func TestParseAndFormatDate(t *testing.T) {
	parsed, err := ParseDate("2025-01-15")
	assert.NoError(t, err)
	assert.Equal(t, "2025-01-15", FormatDateStr(parsed))
	assert.True(t, IsSameDay(parsed, Date(2025, 1, 15)))
}
