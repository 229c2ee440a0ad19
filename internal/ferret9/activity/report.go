package activity

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	noStart      = "Unknown"
	noEnd        = "No recorded end time, indicating the session was still active as of the last update."
	noDuration   = "Unable to calculate, as the session is ongoing."
	noActivities = "• No specific activities recorded."
	noBreaks     = "• No breaks or time off were recorded during the session."
	noDetails    = "No details available"
)

// ReportInput is everything BuildReport needs for one user and day.
type ReportInput struct {
	UserName   string
	DateLabel  string // as the user typed it
	Activities []Entry
	Sessions   []Session
	// Now is used for ongoing sessions. Zero means time.Now().
	Now time.Time
}

// EmptyReport is the reply when a user has no data for a day.
func EmptyReport(userName, dateLabel string) string {
	return fmt.Sprintf("No activity data found for %s on %s.", userName, dateLabel)
}

// FailedReport is the reply when the report could not be generated.
func FailedReport(userName, dateLabel string) string {
	return fmt.Sprintf("I'm sorry, I encountered an error while generating the activity report for %s on %s.", userName, dateLabel)
}

// BuildReport renders the three-section daily summary.
func BuildReport(in ReportInput, clock Clock) string {
	if len(in.Activities) == 0 && len(in.Sessions) == 0 {
		return EmptyReport(in.UserName, in.DateLabel)
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	activities := append([]Entry(nil), in.Activities...)
	sort.SliceStable(activities, func(i, j int) bool {
		return activities[i].Timestamp.Before(activities[j].Timestamp)
	})
	sessions := append([]Session(nil), in.Sessions...)
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].StartTime.Before(sessions[j].StartTime)
	})

	start, end := bounds(activities, sessions)

	startText, endText, durationText := noStart, noEnd, noDuration
	hours := 0.0
	if !start.IsZero() {
		startText = clock.Format(start)
	}
	if !end.IsZero() {
		endText = clock.Format(end)
	}
	if !start.IsZero() {
		stop := end
		if stop.IsZero() {
			stop = now
		}
		d := stop.Sub(start)
		if d < 0 {
			d += 24 * time.Hour
		}
		hours = d.Hours()
		durationText = formatHoursMinutes(d)
		if end.IsZero() {
			durationText += " (ongoing)"
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**Activity Summary for %s (%s)**\n\n", in.UserName, in.DateLabel)

	b.WriteString("**1. Total Work Time**\n")
	fmt.Fprintf(&b, "• Start Time: %s (Manila time, %s)\n", startText, clock.ZoneLabel())
	fmt.Fprintf(&b, "• End Time: %s\n", endText)
	fmt.Fprintf(&b, "• Work Duration: %s\n", durationText)
	fmt.Fprintf(&b, "• Total Hours: %.2f hours\n\n", hours)

	b.WriteString("**2. Key Activities**\n")
	if len(activities) == 0 {
		b.WriteString(noActivities + "\n")
	}
	for _, a := range activities {
		fmt.Fprintf(&b, "• %s: %s\n", clock.Format(a.Timestamp), describe(a))
	}
	b.WriteString("\n")

	b.WriteString("**3. Breaks or Time Off**\n")
	breaks := 0
	for _, a := range activities {
		switch a.ActivityType {
		case TypeBreak:
			fmt.Fprintf(&b, "• %s: Started break\n", clock.Format(a.Timestamp))
			breaks++
		case TypeBackFromBreak:
			fmt.Fprintf(&b, "• %s: Returned from break\n", clock.Format(a.Timestamp))
			breaks++
		}
	}
	if breaks == 0 {
		b.WriteString(noBreaks + "\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

// bounds picks the work span: the first session when there is one, falling
// back to the first sign-in and sign-out entries.
func bounds(activities []Entry, sessions []Session) (start, end time.Time) {
	if len(sessions) > 0 {
		start, end = sessions[0].StartTime, sessions[0].EndTime
	}
	for _, a := range activities {
		if start.IsZero() && a.ActivityType == TypeSignIn {
			start = a.Timestamp
		}
		if end.IsZero() && a.ActivityType == TypeSignOut {
			end = a.Timestamp
		}
	}
	return start, end
}

func describe(a Entry) string {
	details := a.Details
	if details == "" {
		details = noDetails
	}
	switch a.ActivityType {
	case TypeSignIn:
		return "Started work session"
	case TypeSignOut:
		return "Ended work session"
	case TypeUpdate:
		return fmt.Sprintf("Worked on %q", details)
	default:
		return fmt.Sprintf("%s - %s", a.ActivityType, details)
	}
}

func formatHoursMinutes(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%d %s and %d %s", h, plural(h, "hour"), m, plural(m, "minute"))
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
