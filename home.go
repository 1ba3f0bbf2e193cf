package convo

import (
	"os"
	"path/filepath"
)

// Home returns the convo home directory.
// It defaults to ~/.convo but can be overridden with the CONVO_HOME environment variable.
func Home() string {
	if v := os.Getenv("CONVO_HOME"); v != "" {
		return v
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".convo")
}

// DefaultDBPath returns the default SQLite database path (~/.convo/convo.db).
func DefaultDBPath() string {
	return filepath.Join(Home(), "convo.db")
}

// DefaultConfigPath returns the default config file path (~/.convo/config.yaml).
func DefaultConfigPath() string {
	return filepath.Join(Home(), "config.yaml")
}

// EnsureHome creates the convo home directory if it doesn't exist.
func EnsureHome() error {
	return os.MkdirAll(Home(), 0o755)
}
