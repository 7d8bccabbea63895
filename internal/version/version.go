// Package version reports build information.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Set at build time with -ldflags "-X voltrack/internal/version.Version=...".
var (
	Version = "dev"
	Commit  = "unknown"
)

// Info describes the running binary.
type Info struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Platform  string `json:"platform" yaml:"platform"`
}

// Get returns the build information. Without ldflags the commit falls back
// to the VCS revision embedded by the Go toolchain.
func Get() Info {
	info := Info{
		Version:   normalizeVersion(Version),
		Commit:    Commit,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if info.Commit == "unknown" {
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, s := range bi.Settings {
				if s.Key == "vcs.revision" && len(s.Value) >= 7 {
					info.Commit = s.Value[:7]
				}
			}
		}
	}
	return info
}

func (i Info) String() string {
	return fmt.Sprintf("voltrack %s (commit: %s, %s, %s)", i.Version, i.Commit, i.GoVersion, i.Platform)
}

func normalizeVersion(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "v")
	return strings.TrimPrefix(v, "V")
}
