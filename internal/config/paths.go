package config

import (
	"os"
	"path/filepath"
)

// Paths holds resolved filesystem locations under the chatdesk home.
type Paths struct {
	Base        string // ~/.chatdesk
	Config      string // ~/.chatdesk/config.yaml
	Credentials string // gmail oauth client and token files
	Logs        string
	LogFile     string // ~/.chatdesk/logs/chatdesk.log
	Data        string
	Database    string // ~/.chatdesk/data/chat.db
}

// ResolvePaths roots every path at CHATDESK_HOME, or ~/.chatdesk when unset.
func ResolvePaths() (Paths, error) {
	base := os.Getenv("CHATDESK_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, ".chatdesk")
	}

	p := Paths{
		Base:        base,
		Config:      filepath.Join(base, "config.yaml"),
		Credentials: filepath.Join(base, "credentials"),
		Logs:        filepath.Join(base, "logs"),
		Data:        filepath.Join(base, "data"),
	}
	p.LogFile = filepath.Join(p.Logs, "chatdesk.log")
	p.Database = filepath.Join(p.Data, "chat.db")
	return p, nil
}

// EnsureDirs creates the base, credentials, logs and data directories.
func (p Paths) EnsureDirs() error {
	for _, d := range []string{p.Base, p.Credentials, p.Logs, p.Data} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}
