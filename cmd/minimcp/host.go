package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/nugget/minimcp/internal/agent"
	"github.com/nugget/minimcp/internal/audit"
	"github.com/nugget/minimcp/internal/config"
	"github.com/nugget/minimcp/internal/events"
	"github.com/nugget/minimcp/internal/llm"
	"github.com/nugget/minimcp/internal/mcp"
	"github.com/nugget/minimcp/internal/tools"
)

// host is everything the agent-side commands share: the MCP
// connections, the tool registry, the LLM client and the optional
// audit ledger.
type host struct {
	cfg      *config.Config
	logger   *slog.Logger
	bus      *events.Bus
	hub      *mcp.Hub
	registry *tools.Registry
	llm      llm.Client

	ledger     *audit.Store
	stopAudit  context.CancelFunc
	auditDone  sync.WaitGroup
	closeLog   func()
	systemText string
}

// hostOptions selects what newHost sets up.
type hostOptions struct {
	// needLLM is false for commands that never talk to a model.
	needLLM bool
}

// newHost connects configured MCP servers, registers tools, and builds
// the LLM client. Servers that fail to start are logged and skipped.
func newHost(ctx context.Context, configPath string, stderr io.Writer, opts hostOptions) (*host, error) {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger, closeLog, err := configLogger(cfg, stderr)
	if err != nil {
		return nil, err
	}
	if cfgPath != "" {
		logger.Debug("config loaded", "path", cfgPath)
	} else {
		logger.Debug("no config file found, using defaults")
	}

	h := &host{
		cfg:      cfg,
		logger:   logger,
		bus:      events.New(),
		registry: tools.NewRegistry(logger),
		closeLog: closeLog,
	}

	fsys, workspace, err := fileAccess(cfg.Agent.Workspace)
	if err != nil {
		h.close()
		return nil, err
	}
	tools.RegisterBuiltins(h.registry, fsys)

	if cfg.Audit.Configured() {
		h.ledger, err = audit.NewStore(cfg.Audit.Path)
		if err != nil {
			h.close()
			return nil, err
		}
		auditCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		h.stopAudit = cancel
		rec := audit.NewRecorder(h.ledger, h.bus, logger)
		h.auditDone.Add(1)
		go func() {
			defer h.auditDone.Done()
			rec.Run(auditCtx)
		}()
	}

	h.hub = mcp.NewHub(mcp.ClientOptions{
		HandshakeTimeout: cfg.MCP.HandshakeTimeout,
		CallTimeout:      cfg.MCP.CallTimeout,
		Roots:            []string{workspace},
		Logger:           logger,
	})
	h.hub.SetBus(h.bus)
	if failures := h.hub.Connect(ctx, serverSpecs(cfg, logger)); len(failures) > 0 {
		logger.Warn("some MCP servers are unavailable", "failed", len(failures))
	}
	bridged := h.hub.Bridge(h.registry)
	logger.Info("tools registered", "total", len(h.registry.Names()), "bridged", bridged)

	if opts.needLLM {
		h.llm, err = llm.New(ctx, cfg.LLM, logger)
		if err != nil {
			h.close()
			return nil, err
		}
		h.systemText, err = h.systemPrompt()
		if err != nil {
			h.close()
			return nil, err
		}
	}
	return h, nil
}

// serverSpecs turns the configured servers into hub specs in name
// order. Disabled servers and non-stdio transports are skipped.
func serverSpecs(cfg *config.Config, logger *slog.Logger) []mcp.ServerSpec {
	var specs []mcp.ServerSpec
	for _, name := range cfg.MCP.ServerNames() {
		s := cfg.MCP.Servers[name]
		if s.Disabled {
			logger.Debug("MCP server disabled", "mcp_server", name)
			continue
		}
		if !s.Stdio() {
			logger.Warn("unsupported MCP transport, skipping server", "mcp_server", name, "type", s.Type)
			continue
		}
		specs = append(specs, mcp.ServerSpec{
			Name: name,
			Stdio: mcp.StdioConfig{
				Command:    s.Command,
				Args:       s.Args,
				Env:        s.EnvList(),
				CloseGrace: cfg.MCP.CloseGrace,
			},
			IncludeTools: s.IncludeTools,
			ExcludeTools: s.ExcludeTools,
		})
	}
	return specs
}

// fileAccess returns the filesystem the built-in file tools use and the
// directory advertised to servers as the root. Without a configured
// workspace the tools read any path and the root is the working directory.
func fileAccess(dir string) (tools.OSFS, string, error) {
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return tools.OSFS{}, "", fmt.Errorf("resolve working directory: %w", err)
		}
		return tools.OSFS{}, cwd, nil
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return tools.OSFS{}, "", fmt.Errorf("resolve workspace: %w", err)
	}
	return tools.OSFS{Root: abs}, abs, nil
}
