// Package buildinfo reports what binary is running. Release builds set the
// variables with -ldflags, for example
//
//	-X 'github.com/m3rciful/shopbot/core/buildinfo.Version=v1.2.3'
//	-X 'github.com/m3rciful/shopbot/core/buildinfo.Commit=abcdef0'
//	-X 'github.com/m3rciful/shopbot/core/buildinfo.Date=2026-01-30T12:00:00Z'
//
// Local builds fall back to the VCS stamp the Go toolchain embeds.
package buildinfo

import (
	"fmt"
	"runtime/debug"
	"sync"
)

// Build identity, see the package doc.
var (
	Version = "dev"
	Commit  = "local"
	Date    = ""
)

var stampOnce sync.Once

// Stamp fills Commit and Date from the embedded VCS data when ldflags left
// them at their defaults.
func Stamp() {
	stampOnce.Do(func() {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if Commit == "local" && len(s.Value) >= 7 {
					Commit = s.Value[:7]
				}
			case "vcs.time":
				if Date == "" {
					Date = s.Value
				}
			}
		}
	})
}

// String renders the build as "version (commit, date)".
func String() string {
	Stamp()
	if Date == "" {
		return fmt.Sprintf("%s (%s)", Version, Commit)
	}
	return fmt.Sprintf("%s (%s, %s)", Version, Commit, Date)
}
