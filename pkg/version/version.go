package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Build variables injected with ldflags:
// -X 'github.com/aethra/keybot/pkg/version.Version=v1.0.0'
// -X 'github.com/aethra/keybot/pkg/version.CommitHash=abc123'
// -X 'github.com/aethra/keybot/pkg/version.BuildDate=2024-01-01T00:00:00Z'
var (
	Version    = "unknown"
	CommitHash = "unknown"
	BuildDate  = "unknown"
)

type Info struct {
	Version    string `json:"version"`
	CommitHash string `json:"commit_hash"`
	BuildDate  string `json:"build_date"`
	GoVersion  string `json:"go_version"`
}

// Get returns build information, falling back to the module build info
// embedded by the Go toolchain when ldflags were not set.
func Get() Info {
	info := Info{
		Version:    Version,
		CommitHash: CommitHash,
		BuildDate:  BuildDate,
		GoVersion:  runtime.Version(),
	}
	build, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "unknown" && build.Main.Version != "" && build.Main.Version != "(devel)" {
		info.Version = build.Main.Version
	}
	for _, setting := range build.Settings {
		switch {
		case setting.Key == "vcs.revision" && info.CommitHash == "unknown":
			info.CommitHash = setting.Value
		case setting.Key == "vcs.time" && info.BuildDate == "unknown":
			info.BuildDate = setting.Value
		}
	}
	return info
}

func (i Info) String() string {
	return fmt.Sprintf("keybot %s (commit %s, built %s, %s)", i.Version, i.CommitHash, i.BuildDate, i.GoVersion)
}
