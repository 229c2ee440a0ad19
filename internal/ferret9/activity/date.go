package activity

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	mdyRe     = regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{4})$`)
	ordinalRe = regexp.MustCompile(`(\d+)(st|nd|rd|th)\b`)

	withYear = []string{
		"January 2 2006",
		"Jan 2 2006",
		"January 2, 2006",
		"Jan 2, 2006",
		"2 January 2006",
		"2 Jan 2006",
	}
	withoutYear = []string{
		"January 2",
		"Jan 2",
		"2 January",
		"2 Jan",
	}
)

// ParseDate turns the date a user typed into a "YYYY-MM-DD" day key.
//
// Accepted forms: "today", "yesterday", MM-DD-YYYY, YYYY-MM-DD and month-name
// forms such as "March 4", "Mar 4th" or "March 4, 2025". Month-name dates
// without a year use defaultYear, or now's year when defaultYear is zero.
// Relative words are resolved against now in now's location.
func ParseDate(s string, now time.Time, defaultYear int) (string, error) {
	in := strings.TrimSpace(s)
	lower := strings.ToLower(in)
	if defaultYear == 0 {
		defaultYear = now.Year()
	}

	switch lower {
	case "":
		return "", fmt.Errorf("activity: empty date")
	case "today":
		return now.Format(time.DateOnly), nil
	case "yesterday":
		return now.AddDate(0, 0, -1).Format(time.DateOnly), nil
	}

	if m := mdyRe.FindStringSubmatch(in); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		return validDate(s, year, time.Month(month), day)
	}

	if t, err := time.Parse(time.DateOnly, in); err == nil {
		return t.Format(time.DateOnly), nil
	}

	cleaned := strings.Join(strings.Fields(ordinalRe.ReplaceAllString(in, "$1")), " ")
	for _, layout := range withYear {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return t.Format(time.DateOnly), nil
		}
	}
	for _, layout := range withoutYear {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return validDate(s, defaultYear, t.Month(), t.Day())
		}
	}

	return "", fmt.Errorf("activity: unrecognised date %q (try \"March 4\", \"03-04-2025\" or \"yesterday\")", s)
}

func validDate(raw string, year int, month time.Month, day int) (string, error) {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || t.Month() != month || t.Day() != day {
		return "", fmt.Errorf("activity: no such date %q", raw)
	}
	return t.Format(time.DateOnly), nil
}

// Clock renders times in the team's fixed UTC offset.
type Clock struct {
	OffsetHours int
}

// ManilaClock is the default reporting clock (UTC+8).
var ManilaClock = Clock{OffsetHours: 8}

// Location returns the fixed zone for the offset.
func (c Clock) Location() *time.Location {
	return time.FixedZone(c.ZoneLabel(), c.OffsetHours*3600)
}

// ZoneLabel is "UTC+8" style text used in report headings.
func (c Clock) ZoneLabel() string {
	if c.OffsetHours < 0 {
		return fmt.Sprintf("UTC%d", c.OffsetHours)
	}
	return fmt.Sprintf("UTC+%d", c.OffsetHours)
}

// Now returns the current time in the clock's zone.
func (c Clock) Now() time.Time {
	return time.Now().In(c.Location())
}

// Format renders t as "h:mm AM/PM" in the clock's zone.
func (c Clock) Format(t time.Time) string {
	return t.In(c.Location()).Format("3:04 PM")
}

var clockRe = regexp.MustCompile(`(?i)(\d+):(\d+)\s*(AM|PM)`)

// TimeOfDay classifies an "h:mm AM/PM" string as morning, afternoon,
// evening or night. Unparseable input yields "day".
func TimeOfDay(s string) string {
	m := clockRe.FindStringSubmatch(s)
	if m == nil {
		return "day"
	}
	hour, _ := strconv.Atoi(m[1])
	pm := strings.EqualFold(m[3], "PM")
	switch {
	case pm && hour < 12:
		hour += 12
	case !pm && hour == 12:
		hour = 0
	}
	switch {
	case hour >= 5 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 17:
		return "afternoon"
	case hour >= 17 && hour < 21:
		return "evening"
	default:
		return "night"
	}
}
