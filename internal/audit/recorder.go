package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/nugget/minimcp/internal/events"
)

// Recorder copies tool_done events from a bus into a Store.
type Recorder struct {
	store  *Store
	bus    *events.Bus
	logger *slog.Logger
}

// NewRecorder creates a recorder. Call Run to start consuming events.
func NewRecorder(store *Store, bus *events.Bus, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, bus: bus, logger: logger.With("component", "audit")}
}

// Run subscribes to the bus and records tool calls until ctx is done.
// Events still buffered at that point are written before Run returns.
// Writes never use ctx itself, so cancellation cannot abort an insert.
func (r *Recorder) Run(ctx context.Context) {
	ch := r.bus.Subscribe(64)
	defer r.bus.Unsubscribe(ch)

	write := context.WithoutCancel(ctx)
	for {
		select {
		case e := <-ch:
			r.handle(write, e)
		case <-ctx.Done():
			for {
				select {
				case e := <-ch:
					r.handle(write, e)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) handle(ctx context.Context, e events.Event) {
	rec, ok := recordFromEvent(e)
	if !ok {
		return
	}
	if err := r.store.Record(ctx, rec); err != nil {
		r.logger.Warn("failed to record tool call", "tool", rec.Tool, "error", err)
	}
}

func recordFromEvent(e events.Event) (Record, bool) {
	if e.Source != events.SourceAgent || e.Kind != events.KindToolDone {
		return Record{}, false
	}
	rec := Record{Timestamp: e.Timestamp}
	rec.Tool, _ = e.Data["tool"].(string)
	if rec.Tool == "" {
		return Record{}, false
	}
	rec.ConversationID, _ = e.Data["conversation_id"].(string)
	rec.RequestID, _ = e.Data["request_id"].(string)
	rec.OK, _ = e.Data["ok"].(bool)
	rec.Final, _ = e.Data["final"].(bool)
	rec.Duration = time.Duration(intValue(e.Data["duration_ms"])) * time.Millisecond
	rec.ResultLen = int(intValue(e.Data["result_len"]))
	return rec, true
}

func intValue(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}
