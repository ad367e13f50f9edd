package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nugget/minimcp/internal/events"
	"github.com/nugget/minimcp/internal/tools"
)

// ServerSpec describes one server the Hub should start.
type ServerSpec struct {
	Name         string
	Stdio        StdioConfig
	IncludeTools []string
	ExcludeTools []string
}

// Hub owns the set of connections a host talks to. The set is fixed
// once Connect returns.
type Hub struct {
	opts   ClientOptions
	logger *slog.Logger
	bus    *events.Bus

	// dial starts the transport for a spec. Tests replace it.
	dial func(StdioConfig) (Transport, error)

	mu      sync.RWMutex
	clients []*Client
	specs   map[string]ServerSpec
}

// NewHub creates a Hub whose clients share opts.
func NewHub(opts ClientOptions) *Hub {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		opts:   opts,
		logger: logger,
		dial: func(cfg StdioConfig) (Transport, error) {
			return StartStdio(cfg)
		},
		specs: make(map[string]ServerSpec),
	}
}

// SetBus makes Connect publish server_ready and server_failed events.
func (h *Hub) SetBus(b *events.Bus) {
	h.bus = b
}

// Connect starts and handshakes every server in order. A server that
// fails is logged, closed and reported in the returned slice; the rest
// still connect.
func (h *Hub) Connect(ctx context.Context, specs []ServerSpec) []error {
	var failures []error
	for _, spec := range specs {
		client, err := h.connect(ctx, spec)
		if err != nil {
			h.logger.Error("MCP server failed to start", "mcp_server", spec.Name, "error", err)
			failures = append(failures, err)
			h.bus.Emit(events.SourceMCP, events.KindServerFailed, map[string]any{
				"server": spec.Name,
				"error":  err.Error(),
			})
			continue
		}

		h.mu.Lock()
		h.clients = append(h.clients, client)
		h.specs[spec.Name] = spec
		h.mu.Unlock()

		h.logger.Info("MCP server ready", "mcp_server", spec.Name, "tools", len(client.Tools()))
		h.bus.Emit(events.SourceMCP, events.KindServerReady, map[string]any{
			"server": spec.Name,
			"tools":  len(client.Tools()),
		})
	}
	return failures
}

func (h *Hub) connect(ctx context.Context, spec ServerSpec) (*Client, error) {
	if _, exists := h.Client(spec.Name); exists {
		return nil, &ConnectionError{Server: spec.Name, Err: errors.New("duplicate server name")}
	}

	cfg := spec.Stdio
	cfg.Name = spec.Name
	if cfg.Logger == nil {
		cfg.Logger = h.logger.With("mcp_server", spec.Name)
	}

	tr, err := h.dial(cfg)
	if err != nil {
		return nil, &ConnectionError{Server: spec.Name, Err: fmt.Errorf("spawn: %w", err)}
	}

	client := NewClient(spec.Name, tr, h.opts)
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

// Client returns the connection with the given server name.
func (h *Hub) Client(name string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

// Clients returns the connections in start order.
func (h *Hub) Clients() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, len(h.clients))
	copy(out, h.clients)
	return out
}

// Bridge registers proxies for every connected server's tools, honoring
// each spec's include and exclude lists, plus the use_mcp_tool
// forwarder. It returns the number of proxies registered.
func (h *Hub) Bridge(registry *tools.Registry) int {
	total := 0
	for _, c := range h.Clients() {
		h.mu.RLock()
		spec := h.specs[c.Name()]
		h.mu.RUnlock()
		total += BridgeTools(c, registry, spec.IncludeTools, spec.ExcludeTools, h.logger)
	}
	RegisterUseTool(registry, h)
	return total
}

// Close closes every connection. One failure does not stop the others;
// all failures are joined in the result.
func (h *Hub) Close() error {
	var errs []error
	for _, c := range h.Clients() {
		if err := c.Close(); err != nil {
			h.logger.Warn("failed to close MCP server", "mcp_server", c.Name(), "error", err)
			errs = append(errs, fmt.Errorf("close %s: %w", c.Name(), err))
		}
	}
	return errors.Join(errs...)
}
