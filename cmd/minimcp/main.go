// Minimcp is a small MCP host and server.
//
// As a host it connects to MCP servers over stdio, bridges their tools
// into a streaming agent loop, and chats with a configured LLM. As a
// server it exposes a built-in toolset over newline-delimited JSON-RPC
// on stdin/stdout.
//
// Usage:
//
//	minimcp chat                  Interactive conversation
//	minimcp ask <question>        Answer one question and exit
//	minimcp tools [-check]        List the tools the agent can call
//	minimcp serve [-toolset ts]   Serve a toolset over MCP on stdio
//	minimcp audit [-since 24h]    Summarize the tool-call ledger
//	minimcp init [dir]            Write a starter config
//	minimcp version               Print version and build information
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nugget/minimcp/internal/buildinfo"
	"github.com/nugget/minimcp/internal/config"
)

// main builds the OS-level environment and hands off to [run], keeping
// os.Exit and the standard streams out of the application logic.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		stop()
		os.Exit(1)
	}
}

// run is the real entry point. Arguments are os.Args[1:]. Global flags
// are parsed by hand so that run can be called concurrently from tests;
// each subcommand parses its own flags with a private FlagSet.
func run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case command != "":
			cmdArgs = append(cmdArgs, args[i])
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-"):
			command = args[i]
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "chat":
		return runChat(ctx, stdin, stdout, stderr, configPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return errors.New("usage: minimcp ask <question>")
		}
		return runAsk(ctx, stdout, stderr, configPath, strings.Join(cmdArgs, " "))
	case "tools":
		return runTools(ctx, stdout, stderr, configPath, outputFmt, cmdArgs)
	case "serve":
		return runServe(ctx, stdin, stdout, stderr, configPath, cmdArgs)
	case "audit":
		return runAudit(ctx, stdout, configPath, outputFmt, cmdArgs)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "minimcp - a small MCP host and server")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: minimcp [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  chat                 Interactive conversation (exit or quit to leave)")
	fmt.Fprintln(w, "  ask <question>       Answer one question and exit")
	fmt.Fprintln(w, "  tools [-check]       List the tools the agent can call")
	fmt.Fprintln(w, "  serve [-toolset ts]  Serve weather, docs or all tools over MCP on stdio")
	fmt.Fprintln(w, "  audit [-since dur]   Summarize recorded tool calls")
	fmt.Fprintln(w, "  init [dir]           Write a starter config (default: .)")
	fmt.Fprintln(w, "  version              Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintf(w, "  %s\n", strings.Join(config.DefaultSearchPaths(), ", "))
	return nil
}

// newLogger creates a structured logger that writes to w at the given
// level and format ("text" or "json").
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// configLogger builds the logger the config asks for. Logs go to the
// configured log file, or to fallback (never stdout: in chat it shows
// the conversation and in serve it carries the protocol). The returned
// function closes the log file.
func configLogger(cfg *config.Config, fallback io.Writer) (*slog.Logger, func(), error) {
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	if cfg.LogFile == "" {
		return newLogger(fallback, level, cfg.LogFormat), func() {}, nil
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return newLogger(f, level, cfg.LogFormat), func() { f.Close() }, nil
}

// loadConfig loads the explicit config, or the first one found on the
// search path. With no explicit path and nothing found, defaults are
// used so that minimcp works from environment variables alone.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, "", err
		}
		return config.Default(), "", nil
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}
