// Package buildinfo holds version and build metadata stamped at compile
// time via ldflags, falling back to the VCS data the Go toolchain
// embeds when the binary was built without them.
package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// These variables are set at build time via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	GitBranch = "unknown"
	BuildTime = "unknown"
)

// AppName is the application name used for the MQTT software version
// field and as the scrypt salt for sealed configuration secrets.
const AppName = "kioskbridge"

var startTime = time.Now()

type stamp struct {
	version, commit, built string
}

// resolve prefers ldflags values and fills the gaps from
// debug.ReadBuildInfo (e.g. after `go install ...@v1.2.3`).
var resolve = sync.OnceValue(func() stamp {
	s := stamp{version: Version, commit: GitCommit, built: BuildTime}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return s
	}
	if s.version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		s.version = strings.TrimPrefix(bi.Main.Version, "v")
	}
	for _, kv := range bi.Settings {
		switch {
		case kv.Key == "vcs.revision" && s.commit == "unknown":
			s.commit = kv.Value[:min(len(kv.Value), 12)]
		case kv.Key == "vcs.time" && s.built == "unknown":
			s.built = kv.Value
		}
	}
	return s
})

// Info returns all build and runtime info as a map.
func Info() map[string]string {
	s := resolve()
	return map[string]string{
		"version":    s.version,
		"git_commit": s.commit,
		"git_branch": GitBranch,
		"build_time": s.built,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"uptime":     Uptime().String(),
	}
}

// Uptime returns the duration since process start.
func Uptime() time.Duration {
	return time.Since(startTime).Truncate(time.Second)
}

// SoftwareVersion returns the "name-vX" string published as the
// sw_version of the Home Assistant device block.
func SoftwareVersion() string {
	return AppName + "-v" + resolve().version
}

// String returns a one-line summary for logging.
func String() string {
	s := resolve()
	return fmt.Sprintf("Kioskbridge %s (%s@%s) built %s", s.version, s.commit, GitBranch, s.built)
}
