// Package version reports build information for amandocs.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Name is the program name shown in version strings and MCP handshakes.
const Name = "amandocs"

// Version is set via ldflags:
//
//	-X github.com/Aman-CERP/amandocs/pkg/version.Version=$(VERSION)
var Version = "dev"

// Build metadata, also set via ldflags. When left unset, Get falls back to
// the VCS stamp the Go toolchain embeds in the binary.
var (
	Commit = "unknown"
	Date   = "unknown"
)

// BuildInfo is structured version information for JSON output.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// Get returns the build information of the running binary.
func Get() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		fillFromSettings(&info, bi.Settings)
	}
	return info
}

// fillFromSettings copies vcs.* build settings into fields ldflags left unset.
func fillFromSettings(info *BuildInfo, settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "unknown" && s.Value != "" {
				info.Commit = shortCommit(s.Value)
			}
		case "vcs.time":
			if info.Date == "unknown" && s.Value != "" {
				info.Date = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
}

func shortCommit(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

// String returns a one-line version string.
func String() string {
	return Get().String()
}

// String formats the build info on one line.
func (b BuildInfo) String() string {
	commit := b.Commit
	if b.Modified {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s %s (commit: %s, built: %s, go: %s, %s/%s)",
		Name, b.Version, commit, b.Date, b.GoVersion, b.OS, b.Arch)
}
