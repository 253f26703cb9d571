// Package version reports the running build, shown in the startup log and
// the health endpoint.
package version

import "runtime/debug"

// commit can be injected with -ldflags "-X ...pkg/version.commit=<sha>" for
// container builds where VCS stamping is unavailable.
var commit string

// Full returns "friendly/<short-sha>", or "friendly/dev" when no build
// metadata is present (go test, non-git builds).
func Full() string {
	return "friendly/" + shortCommit()
}

func shortCommit() string {
	c := commit
	if c == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" {
					c = s.Value
					break
				}
			}
		}
	}
	if c == "" {
		return "dev"
	}
	if len(c) > 8 {
		c = c[:8]
	}
	return c
}
