package activity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lookupFunc func(ctx context.Context, userID string) (*Session, error)

func (f lookupFunc) ActiveSession(ctx context.Context, userID string) (*Session, error) {
	return f(ctx, userID)
}

func TestBuildRoster(t *testing.T) {
	now := time.Date(2026, 2, 24, 10, 0, 0, 0, time.UTC)
	roles := Roles{Working: "r-work", OnBreak: "r-break"}
	sessions := map[string]*Session{
		"a": {UserID: "a", StartTime: now.Add(-2 * time.Hour), BreakDuration: 15, Status: StatusWorking},
		"b": {UserID: "b", StartTime: now.Add(-time.Hour), Status: StatusBreak, LastBreakStart: now.Add(-10 * time.Minute)},
	}
	lookup := lookupFunc(func(_ context.Context, id string) (*Session, error) {
		if s, ok := sessions[id]; ok {
			return s, nil
		}
		return nil, ErrNotFound
	})
	members := []Member{
		{UserID: "b", DisplayName: "bea", Roles: []string{"r-break"}},
		{UserID: "a", DisplayName: "Al", Roles: []string{"r-work", "other"}},
		{UserID: "c", DisplayName: "Cal", Roles: []string{"r-work"}},
		{UserID: "d", DisplayName: "Dot", Roles: []string{"other"}},
		{UserID: "e", DisplayName: "Tracker", Bot: true, Roles: []string{"r-work"}},
	}

	r, err := BuildRoster(context.Background(), members, roles, lookup, now)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Candidates)
	require.Len(t, r.Statuses, 2)

	assert.Equal(t, Status{Name: "Al", Work: 105 * time.Minute, Break: 15 * time.Minute, Total: 2 * time.Hour}, r.Statuses[0])
	assert.Equal(t, Status{Name: "bea", OnBreak: true, Work: 50 * time.Minute, Break: 10 * time.Minute, Total: time.Hour}, r.Statuses[1])

	want := "**2 user(s) currently signed in:**\n\n" +
		"🟢 **Al** - Working\n   - Work: `1h 45m` | Break: `15m` | Total: `2h`\n" +
		"🔴 **bea** - On Break\n   - Work: `50m` | Break: `10m` | Total: `1h`\n"
	assert.Equal(t, want, r.Description())
}

func TestBuildRoster_LookupError(t *testing.T) {
	boom := errors.New("boom")
	lookup := lookupFunc(func(context.Context, string) (*Session, error) { return nil, boom })
	members := []Member{{UserID: "a", DisplayName: "Al", Roles: []string{"w"}}}

	_, err := BuildRoster(context.Background(), members, Roles{Working: "w", OnBreak: "b"}, lookup, time.Now())
	require.ErrorIs(t, err, boom)
}

func TestRosterDescription_Truncates(t *testing.T) {
	r := &Roster{}
	for i := 0; i < 100; i++ {
		r.Statuses = append(r.Statuses, Status{Name: fmt.Sprintf("member-with-a-long-name-%03d", i), Total: time.Hour})
	}
	got := r.Description()
	assert.True(t, strings.HasSuffix(got, "\n... (list truncated)"))
	assert.Equal(t, 3980+len([]rune("\n... (list truncated)")), len([]rune(got)))
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{-time.Minute, "0s"},
		{42 * time.Second, "42s"},
		{45*time.Minute + 30*time.Second, "45m"},
		{65 * time.Minute, "1h 5m"},
		{2 * time.Hour, "2h"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.in), tt.in.String())
	}
}

func TestRolesConfigured(t *testing.T) {
	assert.False(t, Roles{}.Configured())
	assert.False(t, Roles{Working: "x"}.Configured())
	assert.True(t, Roles{Working: "x", OnBreak: "y"}.Configured())
}
