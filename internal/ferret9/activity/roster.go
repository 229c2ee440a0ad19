package activity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

const (
	// RosterLimit is the embed description limit for the roster.
	RosterLimit     = 4000
	rosterCut       = 3980
	rosterTruncated = "\n... (list truncated)"
	lookupWorkers   = 8
)

// Member is a guild member as the roster needs it.
type Member struct {
	UserID      string
	DisplayName string
	Bot         bool
	Roles       []string
}

// Roles names the role IDs that mark a member as signed in.
type Roles struct {
	Working string
	OnBreak string
}

// Configured reports whether both roles are set.
func (r Roles) Configured() bool {
	return r.Working != "" && r.OnBreak != ""
}

// SessionLookup is the slice of Store the roster needs.
type SessionLookup interface {
	ActiveSession(ctx context.Context, userID string) (*Session, error)
}

// Status is one signed-in member's time split.
type Status struct {
	Name    string
	OnBreak bool
	Work    time.Duration
	Break   time.Duration
	Total   time.Duration
}

// Roster is the "who's working" result.
type Roster struct {
	// Candidates is how many members carried a working or on-break role.
	Candidates int
	Statuses   []Status
}

// BuildRoster looks up the active session of every non-bot member holding
// the working or on-break role. Members without an open session are left
// out.
func BuildRoster(ctx context.Context, members []Member, roles Roles, lookup SessionLookup, now time.Time) (*Roster, error) {
	candidates := lo.Filter(members, func(m Member, _ int) bool {
		return !m.Bot && (lo.Contains(m.Roles, roles.Working) || lo.Contains(m.Roles, roles.OnBreak))
	})

	var (
		mu       sync.Mutex
		statuses []Status
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupWorkers)
	for _, m := range candidates {
		g.Go(func() error {
			s, err := lookup.ActiveSession(gctx, m.UserID)
			if errors.Is(err, ErrNotFound) || (err == nil && (s == nil || !s.Open())) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("activity: session for %s: %w", m.UserID, err)
			}
			st := statusFor(m, s, now)
			mu.Lock()
			statuses = append(statuses, st)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(statuses, func(i, j int) bool {
		return strings.ToLower(statuses[i].Name) < strings.ToLower(statuses[j].Name)
	})
	return &Roster{Candidates: len(candidates), Statuses: statuses}, nil
}

func statusFor(m Member, s *Session, now time.Time) Status {
	total := now.Sub(s.StartTime)
	if total < 0 {
		total = 0
	}
	brk := time.Duration(s.BreakDuration * float64(time.Minute))
	onBreak := s.Status == StatusBreak
	if onBreak && !s.LastBreakStart.IsZero() {
		brk += now.Sub(s.LastBreakStart)
	}
	work := total - brk
	if work < 0 {
		work = 0
	}
	return Status{
		Name:    m.DisplayName,
		OnBreak: onBreak,
		Work:    work,
		Break:   brk,
		Total:   total,
	}
}

// Description renders the embed body, cut to RosterLimit.
func (r *Roster) Description() string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%d user(s) currently signed in:**\n\n", len(r.Statuses))
	for _, s := range r.Statuses {
		icon, state := "🟢", "Working"
		if s.OnBreak {
			icon, state = "🔴", "On Break"
		}
		fmt.Fprintf(&b, "%s **%s** - %s\n   - Work: `%s` | Break: `%s` | Total: `%s`\n",
			icon, s.Name, state, FormatDuration(s.Work), FormatDuration(s.Break), FormatDuration(s.Total))
	}
	out := b.String()
	if len([]rune(out)) > RosterLimit {
		out = string([]rune(out)[:rosterCut]) + rosterTruncated
	}
	return out
}

// FormatDuration renders "2h 5m", "45m" or "30s". Seconds only appear when
// the duration is under a minute.
func FormatDuration(d time.Duration) string {
	secs := int(d.Seconds())
	if secs <= 0 {
		return "0s"
	}
	h, m, s := secs/3600, (secs%3600)/60, secs%60
	var parts []string
	if h > 0 {
		parts = append(parts, fmt.Sprintf("%dh", h))
	}
	if m > 0 {
		parts = append(parts, fmt.Sprintf("%dm", m))
	}
	if h == 0 && m == 0 {
		parts = append(parts, fmt.Sprintf("%ds", s))
	}
	return strings.Join(parts, " ")
}
