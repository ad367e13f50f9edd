package audit

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// memStore opens an in-memory ledger on the pure-Go driver.
func memStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	// Each pooled connection would get its own in-memory database.
	db.SetMaxOpenConns(1)
	s, err := OpenDB(db)
	if err != nil {
		db.Close()
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecord_And_Summary(t *testing.T) {
	s := memStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	recs := []Record{
		{Timestamp: now, ConversationID: "c1", Tool: "read_file", OK: true, Duration: 20 * time.Millisecond, ResultLen: 100},
		{Timestamp: now, ConversationID: "c1", Tool: "read_file", OK: false, Duration: 5 * time.Millisecond},
		{Timestamp: now, ConversationID: "c1", Tool: "final_answer", OK: true, Final: true, ResultLen: 2},
		{Timestamp: now.Add(-2 * time.Hour), Tool: "ls", OK: true},
	}
	for _, rec := range recs {
		if err := s.Record(ctx, rec); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	sum, err := s.Summary(now.Add(-time.Minute), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.Calls != 3 {
		t.Errorf("Calls = %d, want 3", sum.Calls)
	}
	if sum.Failures != 1 {
		t.Errorf("Failures = %d, want 1", sum.Failures)
	}
	if sum.TotalDuration != 25*time.Millisecond {
		t.Errorf("TotalDuration = %v, want 25ms", sum.TotalDuration)
	}

	byTool, err := s.SummaryByTool(now.Add(-time.Minute), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("SummaryByTool: %v", err)
	}
	if len(byTool) != 2 {
		t.Fatalf("tools = %d, want 2", len(byTool))
	}
	if rf := byTool["read_file"]; rf == nil || rf.Calls != 2 || rf.Failures != 1 {
		t.Errorf("read_file = %+v", rf)
	}
}

func TestSummary_Empty(t *testing.T) {
	s := memStore(t)
	now := time.Now()
	sum, err := s.Summary(now.Add(-time.Hour), now)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.Calls != 0 || sum.Failures != 0 || sum.TotalDuration != 0 {
		t.Errorf("empty summary = %+v", sum)
	}
}

func TestRecent(t *testing.T) {
	s := memStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)
	for i, tool := range []string{"ls", "read_file", "final_answer"} {
		rec := Record{Timestamp: base.Add(time.Duration(i) * time.Minute), Tool: tool, OK: true, Final: tool == "final_answer"}
		if err := s.Record(ctx, rec); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Tool != "final_answer" || !got[0].Final || got[1].Tool != "read_file" {
		t.Errorf("Recent = %+v", got)
	}
	if got[0].ID == "" {
		t.Error("generated ID missing")
	}
}

func TestNewStore_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore(%q): %v", path, err)
	}
	if err := s.Record(context.Background(), Record{Tool: "ls", OK: true}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	s.Close()

	// Reopening keeps existing rows.
	s, err = NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	recs, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("records after reopen = %d, want 1", len(recs))
	}
}
