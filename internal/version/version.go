// Package version holds build information injected via ldflags:
//
//	-X github.com/bissquit/notify-agent/internal/version.Version=1.2.0
package version

import (
	"fmt"
	"runtime/debug"
)

var (
	// Version is the release version of the agent.
	Version = "dev"
	// GitCommit is the commit the binary was built from.
	GitCommit = ""
	// BuildDate is the build timestamp.
	BuildDate = "unknown"
)

func init() {
	if GitCommit != "" {
		return
	}
	GitCommit = "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			GitCommit = s.Value
		}
	}
}

// String returns a one-line description of the build.
func String() string {
	return fmt.Sprintf("notify-agent %s (commit %s, built %s)", Version, GitCommit, BuildDate)
}
