// Package buildinfo reports which minimcp build is running. The same
// version string appears in `minimcp version`, in the clientInfo and
// serverInfo of every MCP handshake, and in the User-Agent of provider
// requests.
package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Release builds set these with -ldflags "-X ...". A plain `go build` or
// `go install` leaves them unset and [Info] falls back to the module and
// VCS data the toolchain embeds.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func init() {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if GitCommit == "unknown" {
				GitCommit = shortRevision(s.Value)
			}
		case "vcs.time":
			if BuildTime == "unknown" {
				BuildTime = s.Value
			}
		}
	}
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

// Info returns build and runtime details keyed for `minimcp version`.
func Info() map[string]string {
	return map[string]string{
		"version":    Version,
		"git_commit": GitCommit,
		"build_time": BuildTime,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
	}
}

// String is the one-line form printed first by `minimcp version`.
func String() string {
	return fmt.Sprintf("minimcp %s (%s) built %s", Version, GitCommit, BuildTime)
}

// UserAgent is sent on every LLM provider request.
func UserAgent() string {
	return fmt.Sprintf("minimcp/%s (%s/%s)", Version, runtime.GOOS, runtime.GOARCH)
}
