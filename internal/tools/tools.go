// Package tools defines the tools available to the agent and the
// registry that dispatches calls to them.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Tool represents a callable tool.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	// Final marks a tool whose result ends the conversation round as
	// the answer.
	Final   bool                                                         `json:"-"`
	Handler func(ctx context.Context, args map[string]any) (string, error) `json:"-"`
}

// Params returns the tool's parameter names split into required and
// optional, each in sorted order.
func (t *Tool) Params() (required, optional []string) {
	props, _ := t.Parameters["properties"].(map[string]any)
	req := make(map[string]bool)
	switch r := t.Parameters["required"].(type) {
	case []string:
		for _, name := range r {
			req[name] = true
		}
	case []any:
		for _, name := range r {
			if s, ok := name.(string); ok {
				req[s] = true
			}
		}
	}
	for name := range props {
		if req[name] {
			required = append(required, name)
		} else {
			optional = append(optional, name)
		}
	}
	sort.Strings(required)
	sort.Strings(optional)
	return required, optional
}

// ParamDescription returns the description of one parameter, or "".
func (t *Tool) ParamDescription(name string) string {
	props, _ := t.Parameters["properties"].(map[string]any)
	prop, _ := props[name].(map[string]any)
	desc, _ := prop["description"].(string)
	return desc
}

// Result is the outcome of a dispatched call. Text always holds what
// goes back into the conversation; Err is set when the call did not
// succeed.
type Result struct {
	Text  string
	Final bool
	Err   error
}

// Registry holds available tools. It is safe for concurrent use;
// registration normally finishes before the first conversation starts.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*Tool
	logger *slog.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]*Tool),
		logger: logger,
	}
}

// Register adds a tool to the registry, replacing any tool with the
// same name.
func (r *Registry) Register(t *Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		r.logger.Warn("replacing registered tool", "tool", t.Name)
	}
	r.tools[t.Name] = t
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns all tools sorted by name.
func (r *Registry) List() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Dispatch runs a tool by name. It never returns a Go error: an unknown
// name yields a NoSuchTool result and a handler failure is rendered as
// text, both with Err set so callers can tell them apart.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) Result {
	tool := r.Get(name)
	if tool == nil {
		err := &ErrNoSuchTool{ToolName: name}
		r.logger.Warn("dispatch to unknown tool", "tool", name)
		return Result{Text: err.Error(), Err: err}
	}
	if args == nil {
		args = map[string]any{}
	}

	text, err := tool.Handler(ctx, args)
	if err != nil {
		r.logger.Debug("tool failed", "tool", name, "error", err)
		return Result{Text: fmt.Sprintf("tool %s failed: %v", name, err), Err: err}
	}
	return Result{Text: text, Final: tool.Final}
}
