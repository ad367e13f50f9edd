package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
)

type toolInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Required    []string `json:"required,omitempty"`
	Optional    []string `json:"optional,omitempty"`
}

type serverStatus struct {
	Name  string `json:"name"`
	Tools int    `json:"tools"`
	Error string `json:"error,omitempty"`
}

// runTools handles "minimcp tools": it lists every tool the agent could
// call. With -check it also pings each connected server and fails if
// any server does not answer.
func runTools(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt string, args []string) error {
	fs := flag.NewFlagSet("tools", flag.ContinueOnError)
	fs.SetOutput(stderr)
	check := fs.Bool("check", false, "ping every connected MCP server")
	if err := fs.Parse(args); err != nil {
		return err
	}

	h, err := newHost(ctx, configPath, stderr, hostOptions{})
	if err != nil {
		return err
	}
	defer h.close()

	var list []toolInfo
	for _, t := range h.registry.List() {
		req, opt := t.Params()
		list = append(list, toolInfo{Name: t.Name, Description: t.Description, Required: req, Optional: opt})
	}

	var statuses []serverStatus
	var failed int
	if *check {
		for _, c := range h.hub.Clients() {
			st := serverStatus{Name: c.Name(), Tools: len(c.Tools())}
			if err := c.Ping(ctx); err != nil {
				st.Error = err.Error()
				failed++
			}
			statuses = append(statuses, st)
		}
	}

	if outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(map[string]any{"tools": list, "servers": statuses}); err != nil {
			return err
		}
	} else {
		tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		for _, t := range list {
			fmt.Fprintf(tw, "%s\t%s\n", t.Name, t.Description)
		}
		tw.Flush()
		for _, st := range statuses {
			if st.Error != "" {
				fmt.Fprintf(stdout, "server %s: FAILED %s\n", st.Name, st.Error)
			} else {
				fmt.Fprintf(stdout, "server %s: ok (%d tools)\n", st.Name, st.Tools)
			}
		}
	}

	if failed > 0 {
		return errors.New("one or more MCP servers failed the health check")
	}
	return nil
}
