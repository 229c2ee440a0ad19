// Package activity reads the work logs and work sessions written by the
// team's time-tracking bot and turns them into reports: a per-user daily
// activity report and the "who's working" roster.
//
// Two backends implement Store: DynamoStore for the production tables and
// the SQLite store in internal/ferret9/store for local runs and tests.
package activity

import (
	"context"
	"errors"
	"time"
)

// Activity types written by the time-tracking bot.
const (
	TypeSignIn        = "SignIn"
	TypeSignOut       = "SignOut"
	TypeUpdate        = "Update"
	TypeBreak         = "Break"
	TypeBackFromBreak = "BackFromBreak"
)

// Session statuses.
const (
	StatusWorking   = "Working"
	StatusBreak     = "Break"
	StatusSignedOut = "SignedOut"
)

// ErrNotFound is returned by ActiveSession when the user is not signed in.
var ErrNotFound = errors.New("activity: not found")

// Entry is one work log record.
type Entry struct {
	ID           string
	UserID       string
	ActivityType string
	Details      string
	Duration     float64 // minutes, when the tracker recorded one
	Timestamp    time.Time
}

// Session is one sign-in to sign-out span.
type Session struct {
	ID                string
	UserID            string
	StartTime         time.Time
	EndTime           time.Time // zero while the session is open
	TotalWorkDuration float64   // minutes
	BreakDuration     float64   // minutes of completed breaks
	Status            string
	LastBreakStart    time.Time // start of the current break, if on one
}

// Open reports whether the session has not been signed out.
func (s Session) Open() bool {
	return s.Status != StatusSignedOut && s.EndTime.IsZero()
}

// Dump is the full content of both tables.
type Dump struct {
	Logs     []Entry
	Sessions []Session
}

// Store is the persistence boundary for activity data. Days are
// "YYYY-MM-DD" strings matched against the UTC date of the timestamp.
type Store interface {
	// Record appends a work log entry. An empty ID is filled in.
	Record(ctx context.Context, e Entry) error
	// Activities returns the user's log entries on day, oldest first.
	Activities(ctx context.Context, userID, day string) ([]Entry, error)
	// Sessions returns the user's sessions that started on day, oldest first.
	Sessions(ctx context.Context, userID, day string) ([]Session, error)
	// ActiveSession returns the user's most recent open session or
	// ErrNotFound.
	ActiveSession(ctx context.Context, userID string) (*Session, error)
	// Dump returns everything in both tables.
	Dump(ctx context.Context) (*Dump, error)
}

// DayKey formats t as the "YYYY-MM-DD" key used by Store queries.
func DayKey(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}
