// Package events is the operational event bus. The agent loop and the
// MCP hub publish what they do; the audit ledger and the CLI subscribe.
// Publish on a nil *Bus is a no-op, so publishers never guard.
package events

import (
	"sync"
	"time"
)

// Sources.
const (
	SourceAgent = "agent"
	SourceMCP   = "mcp"
)

// Kinds.
const (
	// KindRequestStart begins one Chat call.
	// Data: conversation_id, message_len.
	KindRequestStart = "request_start"
	// KindLLMCall begins one streamed completion.
	// Data: conversation_id, iter, history_len.
	KindLLMCall = "llm_call"
	// KindToolCall is emitted before a detected call is dispatched.
	// Data: conversation_id, iter, tool, params.
	KindToolCall = "tool_call"
	// KindToolDone follows every dispatch.
	// Data: conversation_id, tool, ok, duration_ms, result_len, final.
	KindToolDone = "tool_done"
	// KindRequestComplete ends one Chat call.
	// Data: conversation_id, status, iterations, elapsed_ms.
	KindRequestComplete = "request_complete"

	// KindServerReady reports a connected MCP server.
	// Data: server, tools.
	KindServerReady = "server_ready"
	// KindServerFailed reports a server that could not be connected.
	// Data: server, error.
	KindServerFailed = "server_failed"
)

// Event is one published occurrence.
type Event struct {
	Timestamp time.Time      `json:"ts"`
	Source    string         `json:"source"`
	Kind      string         `json:"kind"`
	Data      map[string]any `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast bus. Slow subscribers miss events
// rather than blocking publishers.
type Bus struct {
	mu         sync.RWMutex
	subs       map[chan Event]struct{}
	recvToSend map[<-chan Event]chan Event
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Publish sends e to every subscriber whose buffer has room.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Emit publishes an event stamped with the current time.
func (b *Bus) Emit(source, kind string, data map[string]any) {
	if b == nil {
		return
	}
	b.Publish(Event{Timestamp: time.Now(), Source: source, Kind: kind, Data: data})
}

// Subscribe returns a channel with the given buffer that receives
// published events until Unsubscribe.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes its channel. Unknown
// channels are ignored.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
