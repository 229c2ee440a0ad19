package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/f9global/ferret9/internal/ferret9/activity"
)

var _ activity.Store = (*Store)(nil)

const tsLayout = "2006-01-02T15:04:05.000Z07:00"

func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func nullTS(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTS(t), Valid: true}
}

func parseTS(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Record inserts the entry and advances the user's work session the way the
// time tracker does: SignIn opens a session, Break and BackFromBreak move
// it between statuses and accumulate break minutes, SignOut closes it.
func (s *Store) Record(ctx context.Context, e activity.Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin record: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO activity_logs (id, user_id, ts, activity_type, details, duration)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.UserID, formatTS(e.Timestamp), e.ActivityType, e.Details, e.Duration); err != nil {
		return fmt.Errorf("store: insert activity: %w", err)
	}

	if err := advanceSession(ctx, tx, e); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit record: %w", err)
	}
	return nil
}

func advanceSession(ctx context.Context, tx *sql.Tx, e activity.Entry) error {
	if e.ActivityType == activity.TypeSignIn {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO work_sessions (id, user_id, start_time, status)
			VALUES (?, ?, ?, ?)
		`, uuid.NewString(), e.UserID, formatTS(e.Timestamp), activity.StatusWorking)
		if err != nil {
			return fmt.Errorf("store: open session: %w", err)
		}
		return nil
	}

	sess, err := scanSession(tx.QueryRowContext(ctx, sessionSelect+`
		WHERE user_id = ? AND status != ?
		ORDER BY start_time DESC LIMIT 1
	`, e.UserID, activity.StatusSignedOut))
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("store: load open session: %w", err)
	}

	switch e.ActivityType {
	case activity.TypeBreak:
		sess.Status = activity.StatusBreak
		sess.LastBreakStart = e.Timestamp
	case activity.TypeBackFromBreak:
		if !sess.LastBreakStart.IsZero() {
			sess.BreakDuration += minutes(e.Timestamp.Sub(sess.LastBreakStart))
		}
		sess.Status = activity.StatusWorking
		sess.LastBreakStart = time.Time{}
	case activity.TypeSignOut:
		if sess.Status == activity.StatusBreak && !sess.LastBreakStart.IsZero() {
			sess.BreakDuration += minutes(e.Timestamp.Sub(sess.LastBreakStart))
		}
		sess.Status = activity.StatusSignedOut
		sess.EndTime = e.Timestamp
		sess.LastBreakStart = time.Time{}
		sess.TotalWorkDuration = math.Max(0, minutes(e.Timestamp.Sub(sess.StartTime))-sess.BreakDuration)
	default:
		return nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE work_sessions
		SET end_time = ?, total_work_duration = ?, break_duration = ?, status = ?, last_break_start = ?
		WHERE id = ?
	`, nullTS(sess.EndTime), sess.TotalWorkDuration, sess.BreakDuration, sess.Status, nullTS(sess.LastBreakStart), sess.ID)
	if err != nil {
		return fmt.Errorf("store: update session: %w", err)
	}
	return nil
}

func minutes(d time.Duration) float64 {
	return math.Round(d.Minutes()*100) / 100
}

// Activities implements activity.Store.
func (s *Store) Activities(ctx context.Context, userID, day string) ([]activity.Entry, error) {
	return s.queryEntries(ctx, `
		SELECT id, user_id, ts, activity_type, details, duration
		FROM activity_logs
		WHERE user_id = ? AND ts LIKE ? || '%'
		ORDER BY ts ASC
	`, userID, day)
}

// Sessions implements activity.Store.
func (s *Store) Sessions(ctx context.Context, userID, day string) ([]activity.Session, error) {
	return s.querySessions(ctx, sessionSelect+`
		WHERE user_id = ? AND start_time LIKE ? || '%'
		ORDER BY start_time ASC
	`, userID, day)
}

// ActiveSession implements activity.Store.
func (s *Store) ActiveSession(ctx context.Context, userID string) (*activity.Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx, sessionSelect+`
		WHERE user_id = ? AND status != ? AND end_time IS NULL
		ORDER BY start_time DESC LIMIT 1
	`, userID, activity.StatusSignedOut))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, activity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: active session: %w", err)
	}
	return sess, nil
}

// Dump implements activity.Store.
func (s *Store) Dump(ctx context.Context) (*activity.Dump, error) {
	logs, err := s.queryEntries(ctx, `
		SELECT id, user_id, ts, activity_type, details, duration
		FROM activity_logs ORDER BY ts ASC
	`)
	if err != nil {
		return nil, err
	}
	sessions, err := s.querySessions(ctx, sessionSelect+` ORDER BY start_time ASC`)
	if err != nil {
		return nil, err
	}
	return &activity.Dump{Logs: logs, Sessions: sessions}, nil
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]activity.Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query activities: %w", err)
	}
	defer rows.Close()

	var out []activity.Entry
	for rows.Next() {
		var (
			e  activity.Entry
			ts sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.UserID, &ts, &e.ActivityType, &e.Details, &e.Duration); err != nil {
			return nil, fmt.Errorf("store: scan activity: %w", err)
		}
		e.Timestamp = parseTS(ts)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate activities: %w", err)
	}
	return out, nil
}

const sessionSelect = `
	SELECT id, user_id, start_time, end_time, total_work_duration, break_duration, status, last_break_start
	FROM work_sessions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*activity.Session, error) {
	var (
		sess                  activity.Session
		start, end, lastBreak sql.NullString
	)
	if err := row.Scan(&sess.ID, &sess.UserID, &start, &end, &sess.TotalWorkDuration,
		&sess.BreakDuration, &sess.Status, &lastBreak); err != nil {
		return nil, err
	}
	sess.StartTime = parseTS(start)
	sess.EndTime = parseTS(end)
	sess.LastBreakStart = parseTS(lastBreak)
	return &sess, nil
}

func (s *Store) querySessions(ctx context.Context, query string, args ...any) ([]activity.Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query sessions: %w", err)
	}
	defer rows.Close()

	var out []activity.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan session: %w", err)
		}
		out = append(out, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate sessions: %w", err)
	}
	return out, nil
}
