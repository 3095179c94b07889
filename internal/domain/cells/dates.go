package cells

import (
	"strconv"
	"strings"
	"time"
)

// Layouts tried by ParseDate, most common in dashboard sheets first.
var dateLayouts = []string{ //nolint:gochecknoglobals // static layout table
	"2006-01-02",
	"1/2/2006",
	"1/2/06",
	"2006/01/02",
	"02.01.2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"January 2, 2006",
	"January 2 2006",
	"2 Jan 2006",
	"2 January 2006",
	"Mon, Jan 2, 2006",
	"Monday, January 2, 2006",
	"1/2/2006 15:04:05",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// Layouts without a year; the year comes from the reference date.
var yearlessLayouts = []string{ //nolint:gochecknoglobals // static layout table
	"Jan 2",
	"January 2",
	"2 Jan",
	"1/2",
	"Mon Jan 2",
}

// Sheets day-serial bounds accepted as dates (1954-10-03 .. 2119-01-10).
const (
	minSerial = 20000
	maxSerial = 80000
)

// sheetsEpoch is day zero of the spreadsheet serial date system.
var sheetsEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC) //nolint:gochecknoglobals // constant epoch

// ParseDate parses a date cell, resolving yearless forms against today.
func ParseDate(s string, loc *time.Location) (time.Time, bool) {
	return ParseDateRef(s, loc, time.Now().In(locOrUTC(loc)))
}

// ParseDateRef parses a date cell. Yearless forms ("Oct 19", "10/19") take
// ref's year, stepping back a year when that would land more than a month
// after ref. Integer serials are read as Sheets day numbers. The result is
// midnight in loc.
func ParseDateRef(s string, loc *time.Location, ref time.Time) (time.Time, bool) {
	loc = locOrUTC(loc)
	s = clean(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return Day(t, loc), true
		}
	}
	for _, layout := range yearlessLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err != nil {
			continue
		}
		return yearless(t, ref, loc)
	}
	if n, err := strconv.Atoi(strings.TrimSuffix(s, ".0")); err == nil && n >= minSerial && n <= maxSerial {
		t := sheetsEpoch.AddDate(0, 0, n)
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), true
	}
	return time.Time{}, false
}

// yearless places month and day of t in ref's year, or the year before when
// that lands more than a month after ref. Feb 29 goes to the nearest leap
// year not after that year.
func yearless(t, ref time.Time, loc *time.Location) (time.Time, bool) {
	year := ref.Year()
	if time.Date(year, t.Month(), t.Day(), 0, 0, 0, 0, loc).After(ref.AddDate(0, 1, 0)) {
		year--
	}
	for range 8 {
		d := time.Date(year, t.Month(), t.Day(), 0, 0, 0, 0, loc)
		if d.Month() == t.Month() {
			return d, true
		}
		year--
	}
	return time.Time{}, false
}

// Day truncates t to midnight of its calendar day in loc.
func Day(t time.Time, loc *time.Location) time.Time {
	t = t.In(locOrUTC(loc))
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func locOrUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
