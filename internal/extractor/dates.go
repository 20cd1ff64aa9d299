package extractor

import (
	"regexp"
	"strings"
	"time"
)

// CanonicalDate is the layout every extracted date is normalized to.
const CanonicalDate = "2006-01-02"

// Indian court portals render dates day-first.
var dateLayouts = []string{
	"2-1-2006",
	"2/1/2006",
	"2.1.2006",
	"2006-01-02",
	"2-Jan-2006",
	"2-January-2006",
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2-1-06",
	"2/1/06",
	"2.1.06",
}

var (
	weekdays     = regexp.MustCompile(`(?i)\b(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b,?`)
	ordinals     = regexp.MustCompile(`(?i)\b(\d{1,2})(st|nd|rd|th)\b`)
	dateToken    = regexp.MustCompile(`\d{4}-\d{2}-\d{2}|\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4}|\d{1,2}[\s\-]+[A-Za-z]{3,9}[\s\-,]+\d{4}|[A-Za-z]{3,9}\s+\d{1,2},\s*\d{4}`)
	parenthetics = regexp.MustCompile(`\([^)]*\)`)
)

// ParseDate parses a portal date in any known layout.
func ParseDate(s string) (time.Time, bool) {
	s = cleanDate(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if tok := dateToken.FindString(s); tok != "" && tok != s {
		return ParseDate(tok)
	}
	return time.Time{}, false
}

// NormalizeDate returns the canonical form of a portal date, or "" when the
// text holds no recognizable date.
func NormalizeDate(s string) string {
	t, ok := ParseDate(s)
	if !ok {
		return ""
	}
	return t.Format(CanonicalDate)
}

func cleanDate(s string) string {
	s = parenthetics.ReplaceAllString(s, " ")
	s = weekdays.ReplaceAllString(s, " ")
	s = ordinals.ReplaceAllString(s, "$1")
	s = spaces.ReplaceAllString(s, " ")
	return strings.Trim(s, " ,")
}
