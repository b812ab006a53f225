package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// RunConfig holds configuration for a scheduling run.
type RunConfig struct {
	Scenario  string // Path to the scenario YAML file
	Lookahead int    // Nights handed to the planner per recompute (default 1)
	Strict    bool   // Reject out-of-order timeline entries instead of logging them
	Ranker    string // JavaScript ranker expression; overrides the scenario's
	Save      bool   // Persist the run and its timeline to the store
	Quiet     bool   // Skip printing the timeline
	DBPath    string // SQLite database path (default ~/.nightsched/nightsched.db)
}

// DefaultRunConfig returns sensible defaults.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Lookahead: 1,
	}
}

// ServerConfig holds configuration for the nightsched API server.
type ServerConfig struct {
	Addr      string // Listen address (default ":8080")
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: text, json
	DBPath    string // SQLite database path (default ~/.nightsched/nightsched.db, ":memory:" for testing)
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:      ":8080",
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// ResolveDBPath returns path unchanged when set. Otherwise it creates
// ~/.nightsched and returns the default database file inside it.
func ResolveDBPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".nightsched")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("cannot create %s: %w", dir, err)
	}
	return filepath.Join(dir, "nightsched.db"), nil
}
