// Package version exposes build metadata for the harmonize binary.
package version

import (
	"encoding/json"
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set at build time via
// -ldflags "-X github.com/triagekit/harmonize/internal/version.Version=...".
var (
	Version = "0.0.0"
	Commit  = "unknown"
	Date    = "unknown"
)

func init() {
	// Local builds without ldflags still get VCS metadata when the
	// binary was built inside a checkout.
	if Commit != "unknown" {
		return
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			Commit = s.Value
		case "vcs.time":
			Date = s.Value
		}
	}
}

// Info is the machine-readable view of the build metadata.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// shortCommit trims the full SHA for display.
func shortCommit() string {
	if Commit == "unknown" || len(Commit) < 8 {
		return ""
	}
	return Commit[:8]
}

// Short is the terse form used for cobra's --version flag.
func Short() string {
	if sc := shortCommit(); sc != "" {
		return fmt.Sprintf("%s (%s)", Version, sc)
	}
	return Version
}

// String is the full human-readable form.
func String() string {
	info := Get()
	if sc := shortCommit(); sc != "" {
		return fmt.Sprintf("harmonize %s (commit %s, built %s, %s, %s)",
			info.Version, sc, info.Date, info.GoVersion, info.Platform)
	}
	return fmt.Sprintf("harmonize %s (%s, %s)", info.Version, info.GoVersion, info.Platform)
}

// JSON renders the metadata for scripting consumers.
func JSON() string {
	data, err := json.MarshalIndent(Get(), "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(data)
}
