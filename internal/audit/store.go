// Package audit keeps an append-only ledger of agent tool calls in
// SQLite. Records are indexed by timestamp, conversation, and tool for
// aggregation queries.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Record is one dispatched tool call.
type Record struct {
	ID             string
	Timestamp      time.Time
	ConversationID string
	RequestID      string
	Tool           string
	OK             bool
	Final          bool
	Duration       time.Duration
	ResultLen      int
}

// Summary holds aggregated call totals.
type Summary struct {
	Calls         int
	Failures      int
	TotalDuration time.Duration
}

// Store is the tool-call ledger. All public methods are safe for
// concurrent use (SQLite serializes writes).
type Store struct {
	db *sql.DB
}

// NewStore opens the ledger at dbPath, creating the schema on first
// use.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	s, err := OpenDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenDB wraps an already-open database and migrates it. The Store
// takes ownership: Close closes db.
func OpenDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate audit schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tool_calls (
		id              TEXT PRIMARY KEY,
		timestamp       TEXT NOT NULL,
		conversation_id TEXT,
		request_id      TEXT,
		tool            TEXT NOT NULL,
		ok              INTEGER NOT NULL,
		final           INTEGER NOT NULL,
		duration_ms     INTEGER NOT NULL,
		result_len      INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tool_calls_timestamp ON tool_calls(timestamp);
	CREATE INDEX IF NOT EXISTS idx_tool_calls_conversation ON tool_calls(conversation_id);
	CREATE INDEX IF NOT EXISTS idx_tool_calls_tool ON tool_calls(tool);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record persists a call. If rec.ID is empty, a UUIDv7 is generated.
func (s *Store) Record(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate audit record ID: %w", err)
		}
		rec.ID = id.String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tool_calls
			(id, timestamp, conversation_id, request_id, tool, ok, final, duration_ms, result_len)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Timestamp.UTC().Format(time.RFC3339),
		rec.ConversationID,
		rec.RequestID,
		rec.Tool,
		rec.OK,
		rec.Final,
		rec.Duration.Milliseconds(),
		rec.ResultLen,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// Summary returns totals for calls within [start, end).
func (s *Store) Summary(start, end time.Time) (*Summary, error) {
	row := s.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(1 - ok), 0), COALESCE(SUM(duration_ms), 0)
		 FROM tool_calls
		 WHERE timestamp >= ? AND timestamp < ?`,
		start.UTC().Format(time.RFC3339),
		end.UTC().Format(time.RFC3339),
	)

	var sum Summary
	var ms int64
	if err := row.Scan(&sum.Calls, &sum.Failures, &ms); err != nil {
		return nil, fmt.Errorf("query audit summary: %w", err)
	}
	sum.TotalDuration = time.Duration(ms) * time.Millisecond
	return &sum, nil
}

// SummaryByTool returns per-tool totals for calls within [start, end).
func (s *Store) SummaryByTool(start, end time.Time) (map[string]*Summary, error) {
	rows, err := s.db.Query(
		`SELECT tool, COUNT(*), COALESCE(SUM(1 - ok), 0), COALESCE(SUM(duration_ms), 0)
		 FROM tool_calls
		 WHERE timestamp >= ? AND timestamp < ?
		 GROUP BY tool
		 ORDER BY COUNT(*) DESC`,
		start.UTC().Format(time.RFC3339),
		end.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("query audit by tool: %w", err)
	}
	defer rows.Close()

	result := make(map[string]*Summary)
	for rows.Next() {
		var tool string
		var sum Summary
		var ms int64
		if err := rows.Scan(&tool, &sum.Calls, &sum.Failures, &ms); err != nil {
			return nil, fmt.Errorf("scan audit by tool: %w", err)
		}
		sum.TotalDuration = time.Duration(ms) * time.Millisecond
		result[tool] = &sum
	}
	return result, rows.Err()
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, COALESCE(conversation_id, ''), COALESCE(request_id, ''),
			tool, ok, final, duration_ms, result_len
		 FROM tool_calls
		 ORDER BY timestamp DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent audit records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var ts string
		var ms int64
		if err := rows.Scan(&rec.ID, &ts, &rec.ConversationID, &rec.RequestID,
			&rec.Tool, &rec.OK, &rec.Final, &ms, &rec.ResultLen); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		rec.Timestamp, _ = time.Parse(time.RFC3339, ts)
		rec.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}
