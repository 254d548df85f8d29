package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Overridden with -ldflags "-X github.com/soyeahso/chatdesk/internal/version.Version=...".
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Build describes the running binary.
type Build struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

// Get returns the build description. When no commit was stamped at link
// time the VCS revision recorded by the Go toolchain is used instead.
func Get() Build {
	b := Build{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if b.Commit == "unknown" {
		if rev, ok := vcsRevision(); ok {
			b.Commit = rev
		}
	}
	b.Commit = abbrev(b.Commit)
	return b
}

// Info renders the build for `chatdesk version`.
func Info() string {
	b := Get()
	return fmt.Sprintf("chatdesk %s (commit: %s, built: %s, %s, %s)",
		b.Version, b.Commit, b.Date, b.GoVersion, b.Platform)
}

// UserAgent identifies chatdesk to remote services.
func UserAgent() string {
	return "chatdesk/" + Version
}

func vcsRevision() (string, bool) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", false
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			return s.Value, true
		}
	}
	return "", false
}

func abbrev(commit string) string {
	if len(commit) > 7 {
		return commit[:7]
	}
	return commit
}
