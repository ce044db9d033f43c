package services

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ordinalRe = regexp.MustCompile(`(\d+)(?:st|nd|rd|th)\b`)
	agoRe     = regexp.MustCompile(`^(\d+)\s+(day|week|month)s?\s+ago$`)
)

var dateLayouts = []string{
	"2 January 2006",
	"2 Jan 2006",
	"January 2 2006",
	"2/1/2006",
	"2006-01-02",
}

// monthLayouts are dates without a day; they resolve to the 1st.
var monthLayouts = []string{
	"January 2006",
	"Jan 2006",
}

// StripOrdinals removes English ordinal suffixes: "23rd January" becomes "23 January".
func StripOrdinals(s string) string {
	return ordinalRe.ReplaceAllString(s, "$1")
}

// ParseListingDate parses the free-text dates found on listing cards.
// Absolute dates ("1st September 2024") are parsed after ordinal stripping.
// Relative forms ("today", "yesterday", "3 days ago", "now") resolve against
// ref. The result is a UTC calendar date at midnight.
func ParseListingDate(s string, ref time.Time) (time.Time, bool) {
	s = strings.TrimSpace(strings.Trim(StripOrdinals(normaliseText(s)), ".,"))
	if s == "" {
		return time.Time{}, false
	}
	s = strings.ReplaceAll(s, ",", "")

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return dateOf(t), true
		}
	}
	for _, layout := range monthLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return dateOf(t), true
		}
	}

	lower := strings.ToLower(s)
	switch lower {
	case "today", "now", "immediately":
		return dateOf(ref), true
	case "yesterday":
		return dateOf(ref.AddDate(0, 0, -1)), true
	}

	if m := agoRe.FindStringSubmatch(lower); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, false
		}
		switch m[2] {
		case "day":
			return dateOf(ref.AddDate(0, 0, -n)), true
		case "week":
			return dateOf(ref.AddDate(0, 0, -7*n)), true
		case "month":
			return dateOf(ref.AddDate(0, -n, 0)), true
		}
	}

	return time.Time{}, false
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
