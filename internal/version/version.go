package version

import (
	"fmt"
	"runtime/debug"
)

// Set at build time with -ldflags "-X github.com/hookdeck/hostnode/internal/version.version=..."
var (
	version = "dev"
	commit  = ""
)

func Version() string {
	return version
}

// VersionWithVCS returns the version followed by the VCS revision when one is
// known, e.g. "1.2.0-a1b2c3d". Falls back to the revision embedded by the Go
// toolchain.
func VersionWithVCS() string {
	rev := commit
	if rev == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" {
					rev = s.Value
					break
				}
			}
		}
	}
	if rev == "" {
		return version
	}
	if len(rev) > 7 {
		rev = rev[:7]
	}
	return fmt.Sprintf("%s-%s", version, rev)
}
