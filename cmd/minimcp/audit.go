package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/nugget/minimcp/internal/audit"
)

// runAudit handles "minimcp audit": per-tool totals from the ledger
// over the -since window, and with -recent N the latest calls.
func runAudit(ctx context.Context, stdout io.Writer, configPath, outputFmt string, args []string) error {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	fs.SetOutput(stdout)
	since := fs.Duration("since", 24*time.Hour, "summarize calls newer than this")
	recent := fs.Int("recent", 0, "also list the N most recent calls")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if !cfg.Audit.Configured() {
		return errors.New("audit.path is not configured")
	}

	store, err := audit.NewStore(cfg.Audit.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	end := time.Now().Add(time.Second)
	start := end.Add(-*since)
	total, err := store.Summary(start, end)
	if err != nil {
		return err
	}
	byTool, err := store.SummaryByTool(start, end)
	if err != nil {
		return err
	}
	var calls []audit.Record
	if *recent > 0 {
		calls, err = store.Recent(ctx, *recent)
		if err != nil {
			return err
		}
	}

	if outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"total": total, "tools": byTool, "recent": calls})
	}

	names := make([]string, 0, len(byTool))
	for name := range byTool {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TOOL\tCALLS\tFAILED\tTIME")
	for _, name := range names {
		s := byTool[name]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", name, s.Calls, s.Failures, s.TotalDuration)
	}
	fmt.Fprintf(tw, "total\t%d\t%d\t%s\n", total.Calls, total.Failures, total.TotalDuration)
	tw.Flush()

	for _, r := range calls {
		status := "ok"
		if !r.OK {
			status = "failed"
		}
		fmt.Fprintf(stdout, "%s  %-24s %-6s %s\n", r.Timestamp.Local().Format(time.DateTime), r.Tool, status, r.Duration)
	}
	return nil
}
