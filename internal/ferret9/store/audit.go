package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Audit results.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// AuditRecord is one row of the audit log.
type AuditRecord struct {
	ID        int64
	Timestamp time.Time
	TraceID   string
	Kind      string
	Actor     string
	ActorID   string
	ChannelID string
	Message   string
	Fields    map[string]string
	Result    string
	Error     string
}

// WriteAudit appends rec. Timestamp defaults to now and Result to success.
func (s *Store) WriteAudit(ctx context.Context, rec AuditRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	if rec.Result == "" {
		rec.Result = ResultSuccess
	}

	var fields sql.NullString
	if len(rec.Fields) > 0 {
		b, err := json.Marshal(rec.Fields)
		if err != nil {
			return fmt.Errorf("store: marshal audit fields: %w", err)
		}
		fields = sql.NullString{String: string(b), Valid: true}
	}
	var errMsg sql.NullString
	if rec.Error != "" {
		errMsg = sql.NullString{String: rec.Error, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (ts, trace_id, kind, actor, actor_id, channel_id, message, fields_json, result, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.Timestamp.UTC(), rec.TraceID, rec.Kind, rec.Actor, rec.ActorID, rec.ChannelID, rec.Message, fields, rec.Result, errMsg)
	if err != nil {
		return fmt.Errorf("store: write audit: %w", err)
	}
	return nil
}

// GetAuditLog returns the newest entries first. limit <= 0 means 100.
func (s *Store) GetAuditLog(ctx context.Context, limit int) ([]AuditRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryAudit(ctx, `
		SELECT id, ts, trace_id, kind, actor, actor_id, channel_id, message, fields_json, result, error_message
		FROM audit_log
		ORDER BY ts DESC, id DESC
		LIMIT ?
	`, limit)
}

// GetAuditByTrace returns the entries of one trace, oldest first.
func (s *Store) GetAuditByTrace(ctx context.Context, traceID string) ([]AuditRecord, error) {
	return s.queryAudit(ctx, `
		SELECT id, ts, trace_id, kind, actor, actor_id, channel_id, message, fields_json, result, error_message
		FROM audit_log
		WHERE trace_id = ?
		ORDER BY ts ASC, id ASC
	`, traceID)
}

// AuditCount returns the number of audit rows.
func (s *Store) AuditCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_log").Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count audit: %w", err)
	}
	return n, nil
}

func (s *Store) queryAudit(ctx context.Context, query string, args ...any) ([]AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query audit: %w", err)
	}
	defer rows.Close()

	var out []AuditRecord
	for rows.Next() {
		var (
			rec    AuditRecord
			fields sql.NullString
			errMsg sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.TraceID, &rec.Kind, &rec.Actor, &rec.ActorID,
			&rec.ChannelID, &rec.Message, &fields, &rec.Result, &errMsg); err != nil {
			return nil, fmt.Errorf("store: scan audit: %w", err)
		}
		if fields.Valid {
			if err := json.Unmarshal([]byte(fields.String), &rec.Fields); err != nil {
				return nil, fmt.Errorf("store: decode audit fields: %w", err)
			}
		}
		rec.Error = errMsg.String
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate audit: %w", err)
	}
	return out, nil
}
