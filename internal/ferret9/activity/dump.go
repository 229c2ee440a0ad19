package activity

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

// RenderDump summarises both tables as a fixed-width code block: one row
// per table, then per-user counts.
func RenderDump(d *Dump) string {
	if d == nil {
		d = &Dump{}
	}
	var b strings.Builder
	b.WriteString("```\n")

	summary := tablewriter.NewWriter(&b)
	summary.SetHeader([]string{"Table", "Items", "Users", "Earliest", "Latest"})
	plainTable(summary)

	logTimes := lo.Map(d.Logs, func(e Entry, _ int) time.Time { return e.Timestamp })
	sessionTimes := lo.Map(d.Sessions, func(s Session, _ int) time.Time { return s.StartTime })
	logUsers := lo.Uniq(lo.Map(d.Logs, func(e Entry, _ int) string { return e.UserID }))
	sessionUsers := lo.Uniq(lo.Map(d.Sessions, func(s Session, _ int) string { return s.UserID }))

	summary.Append(summaryRow("logs", len(d.Logs), len(logUsers), logTimes))
	summary.Append(summaryRow("sessions", len(d.Sessions), len(sessionUsers), sessionTimes))
	summary.Render()

	users := lo.Uniq(append(logUsers, sessionUsers...))
	if len(users) > 0 {
		sort.Strings(users)
		logCounts := lo.CountValuesBy(d.Logs, func(e Entry) string { return e.UserID })
		sessionCounts := lo.CountValuesBy(d.Sessions, func(s Session) string { return s.UserID })
		open := lo.CountValuesBy(lo.Filter(d.Sessions, func(s Session, _ int) bool { return s.Open() }),
			func(s Session) string { return s.UserID })

		b.WriteString("\n")
		perUser := tablewriter.NewWriter(&b)
		perUser.SetHeader([]string{"User", "Logs", "Sessions", "Open"})
		plainTable(perUser)
		for _, u := range users {
			perUser.Append([]string{
				u,
				fmt.Sprint(logCounts[u]),
				fmt.Sprint(sessionCounts[u]),
				fmt.Sprint(open[u]),
			})
		}
		perUser.Render()
	}

	b.WriteString("```")
	return b.String()
}

func plainTable(t *tablewriter.Table) {
	t.SetAutoWrapText(false)
	t.SetAutoFormatHeaders(true)
	t.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	t.SetCenterSeparator("")
	t.SetColumnSeparator("")
	t.SetRowSeparator("")
	t.SetHeaderLine(false)
	t.SetBorder(false)
	t.SetTablePadding("  ")
}

func summaryRow(name string, items, users int, times []time.Time) []string {
	earliest, latest := "-", "-"
	times = lo.Filter(times, func(t time.Time, _ int) bool { return !t.IsZero() })
	if len(times) > 0 {
		earliest = lo.MinBy(times, func(a, b time.Time) bool { return a.Before(b) }).UTC().Format(time.DateOnly)
		latest = lo.MaxBy(times, func(a, b time.Time) bool { return a.After(b) }).UTC().Format(time.DateOnly)
	}
	return []string{name, fmt.Sprint(items), fmt.Sprint(users), earliest, latest}
}
