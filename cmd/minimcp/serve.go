package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/nugget/minimcp/internal/buildinfo"
	"github.com/nugget/minimcp/internal/docs"
	"github.com/nugget/minimcp/internal/mcp"
	"github.com/nugget/minimcp/internal/weather"
)

// runServe handles "minimcp serve": it answers MCP requests on stdin
// and stdout until end of input or cancellation. Logs never go to
// stdout.
func runServe(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, configPath string, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	toolset := fs.String("toolset", "weather", "toolset to serve: weather, docs or all")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger, closeLog, err := configLogger(cfg, stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	var withWeather, withDocs bool
	switch *toolset {
	case "weather":
		withWeather = true
	case "docs":
		withDocs = true
	case "all":
		withWeather, withDocs = true, true
	default:
		return fmt.Errorf("unknown toolset %q (valid: weather, docs, all)", *toolset)
	}

	var exposed []mcp.ExposedTool
	var notes []string
	if withWeather {
		exposed = append(exposed, weather.NewService(logger).Tools()...)
		notes = append(notes, weather.Instructions)
	}
	if withDocs {
		exposed = append(exposed, docs.Tools()...)
		notes = append(notes, docs.Instructions)
	}

	srv := mcp.NewToolServer(mcp.ToolServerOptions{
		Info:         mcp.ServerInfo{Name: "minimcp-" + *toolset, Version: buildinfo.Version},
		Instructions: strings.Join(notes, "\n"),
		Logger:       logger.With("toolset", *toolset),
	}, exposed)

	err = srv.Serve(ctx, stdin, stdout)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
