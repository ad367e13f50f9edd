package audit

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/nugget/minimcp/internal/events"
)

func TestRecordFromEvent(t *testing.T) {
	tests := []struct {
		name string
		e    events.Event
		ok   bool
	}{
		{
			name: "tool done",
			e: events.Event{Source: events.SourceAgent, Kind: events.KindToolDone, Data: map[string]any{
				"tool": "ls", "ok": true, "duration_ms": int64(12), "result_len": 40, "conversation_id": "c1",
			}},
			ok: true,
		},
		{name: "other kind", e: events.Event{Source: events.SourceAgent, Kind: events.KindToolCall, Data: map[string]any{"tool": "ls"}}},
		{name: "other source", e: events.Event{Source: events.SourceMCP, Kind: events.KindToolDone, Data: map[string]any{"tool": "ls"}}},
		{name: "missing tool", e: events.Event{Source: events.SourceAgent, Kind: events.KindToolDone}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, ok := recordFromEvent(tt.e)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && (rec.Duration != 12*time.Millisecond || rec.ResultLen != 40 || !rec.OK || rec.ConversationID != "c1") {
				t.Errorf("record = %+v", rec)
			}
		})
	}
}

func TestRecorder_Run(t *testing.T) {
	s := memStore(t)
	bus := events.New()
	r := NewRecorder(s, bus, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for bus.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("recorder never subscribed")
		}
		time.Sleep(time.Millisecond)
	}

	bus.Emit(events.SourceAgent, events.KindToolCall, map[string]any{"tool": "ls"})
	bus.Emit(events.SourceAgent, events.KindToolDone, map[string]any{"tool": "ls", "ok": true, "duration_ms": int64(3)})
	bus.Emit(events.SourceAgent, events.KindToolDone, map[string]any{"tool": "read_file", "ok": false})
	cancel()
	<-done

	recs, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}
	if bus.SubscriberCount() != 0 {
		t.Error("recorder did not unsubscribe")
	}
}

func TestRecorder_CancelDuringWriteKeepsEvent(t *testing.T) {
	for i := range 20 {
		s := memStore(t)
		bus := events.New()
		r := NewRecorder(s, bus, slog.New(slog.DiscardHandler))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			r.Run(ctx)
			close(done)
		}()
		for bus.SubscriberCount() == 0 {
			time.Sleep(time.Millisecond)
		}

		bus.Emit(events.SourceAgent, events.KindToolDone, map[string]any{
			"tool": "final_answer", "ok": true, "final": true,
		})
		cancel()
		<-done

		recs, err := s.Recent(context.Background(), 10)
		if err != nil {
			t.Fatalf("Recent: %v", err)
		}
		if len(recs) != 1 || recs[0].Tool != "final_answer" || !recs[0].Final {
			t.Fatalf("run %d: records = %+v, want one final_answer", i, recs)
		}
	}
}
