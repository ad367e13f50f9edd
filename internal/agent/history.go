package agent

import "github.com/nugget/minimcp/internal/llm"

// DefaultMaxRounds bounds history to 2×DefaultMaxRounds non-system turns.
const DefaultMaxRounds = 10

// History is a conversation's message sequence. System messages are
// never evicted; the other turns are capped at 2×maxRounds, oldest
// dropped first, after every append.
type History struct {
	maxRounds int
	msgs      []llm.Message
}

// NewHistory starts a history with the given system prompt. A
// non-positive maxRounds uses DefaultMaxRounds.
func NewHistory(system string, maxRounds int) *History {
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	return &History{
		maxRounds: maxRounds,
		msgs:      []llm.Message{{Role: llm.RoleSystem, Content: system}},
	}
}

// Append adds a turn and applies the trim policy.
func (h *History) Append(role, content string) {
	h.msgs = append(h.msgs, llm.Message{Role: role, Content: content})
	h.trim()
}

// Messages returns a copy of the current history.
func (h *History) Messages() []llm.Message {
	out := make([]llm.Message, len(h.msgs))
	copy(out, h.msgs)
	return out
}

// Len returns the number of messages, system messages included.
func (h *History) Len() int {
	return len(h.msgs)
}

func (h *History) trim() {
	limit := 2 * h.maxRounds
	turns := 0
	for _, m := range h.msgs {
		if m.Role != llm.RoleSystem {
			turns++
		}
	}
	drop := turns - limit
	if drop <= 0 {
		return
	}

	kept := h.msgs[:0]
	for _, m := range h.msgs {
		if m.Role != llm.RoleSystem && drop > 0 {
			drop--
			continue
		}
		kept = append(kept, m)
	}
	// Clear the tail so dropped strings can be collected.
	for i := len(kept); i < len(h.msgs); i++ {
		h.msgs[i] = llm.Message{}
	}
	h.msgs = kept
}
