// Package timeutil provides timezone utilities for the Prague timezone,
// where the school servers this bridge talks to live. Handles date
// formatting, school-year bounds, and timetable window computation.
// No external dependencies - uses only standard library.
package timeutil

import (
	"time"
)

// PragueTZ is the Europe/Prague timezone. Unlike a fixed offset it follows
// DST, which matters for day boundaries around the switch dates. Falls
// back to CET when tzdata is unavailable.
var PragueTZ = loadPrague()

func loadPrague() *time.Location {
	loc, err := time.LoadLocation("Europe/Prague")
	if err != nil {
		return time.FixedZone("CET", 1*60*60)
	}
	return loc
}

// Now returns the current time in Prague timezone.
func Now() time.Time {
	return time.Now().In(PragueTZ)
}

// ToPrague converts a time to Prague timezone.
func ToPrague(t time.Time) time.Time {
	return t.In(PragueTZ)
}

// Date creates a time in Prague timezone with the given date.
func Date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, PragueTZ)
}

// StartOfDay returns the start of the day (00:00:00) in Prague timezone.
func StartOfDay(t time.Time) time.Time {
	local := ToPrague(t)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, PragueTZ)
}

// StartOfWeek returns the start of the week (Monday 00:00:00) in Prague timezone.
func StartOfWeek(t time.Time) time.Time {
	local := ToPrague(t)
	weekday := int(local.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	return StartOfDay(local.AddDate(0, 0, -(weekday - 1)))
}

// IsSameDay checks if two times are on the same day in Prague timezone.
func IsSameDay(t1, t2 time.Time) bool {
	a, b := ToPrague(t1), ToPrague(t2)
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// Common date/time formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatDateTime is the standard datetime format.
	FormatDateTime = "2006-01-02 15:04"
	// FormatCzechDate is the Czech date format (DD.MM.YYYY).
	FormatCzechDate = "02.01.2006"
)

// FormatDateStr formats a time as a date string (YYYY-MM-DD) in Prague timezone.
func FormatDateStr(t time.Time) string {
	return ToPrague(t).Format(FormatDate)
}

// ParseDate parses a date string (YYYY-MM-DD) in Prague timezone.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(FormatDate, value, PragueTZ)
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHOOL YEAR
// ══════════════════════════════════════════════════════════════════════════════

// Default school-year start for Czech schools: September 1.
const (
	DefaultSchoolYearStartMonth = 9
	DefaultSchoolYearStartDay   = 1
)

// SchoolYearBounds returns the [start, endExclusive) bounds of the school
// year containing the given day. A day before the start month/day belongs
// to the school year that began the previous calendar year.
func SchoolYearBounds(today time.Time, startMonth, startDay int) (start, endExclusive time.Time) {
	local := ToPrague(today)

	year := local.Year()
	boundary := Date(year, startMonth, startDay)
	if local.Before(boundary) {
		year--
	}

	start = Date(year, startMonth, startDay)
	endExclusive = Date(year+1, startMonth, startDay)
	return start, endExclusive
}

// ══════════════════════════════════════════════════════════════════════════════
// TIMETABLE WINDOW
// ══════════════════════════════════════════════════════════════════════════════

// TimetableWindow returns the three-week observation window for timetable
// fetches: the current week's reference day, one week ahead, one week back.
// Order matches the fetch order, not chronological order.
func TimetableWindow(today time.Time) []time.Time {
	day := StartOfDay(today)
	return []time.Time{
		day,
		day.AddDate(0, 0, 7),
		day.AddDate(0, 0, -7),
	}
}
