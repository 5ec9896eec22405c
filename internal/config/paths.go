package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Paths contains the standard directories for agentd data.
type Paths struct {
	Data   string // ~/.local/share/agentd
	Config string // ~/.config/agentd
	Cache  string // ~/.cache/agentd
	State  string // ~/.local/state/agentd
}

// GetPaths returns the XDG-derived paths for agentd data.
func GetPaths() *Paths {
	return &Paths{
		Data:   filepath.Join(getEnvOrDefault("XDG_DATA_HOME", defaultDataHome()), "agentd"),
		Config: filepath.Join(getEnvOrDefault("XDG_CONFIG_HOME", defaultConfigHome()), "agentd"),
		Cache:  filepath.Join(getEnvOrDefault("XDG_CACHE_HOME", defaultCacheHome()), "agentd"),
		State:  filepath.Join(getEnvOrDefault("XDG_STATE_HOME", defaultStateHome()), "agentd"),
	}
}

// EnsurePaths creates all required directories.
func (p *Paths) EnsurePaths() error {
	for _, dir := range []string{p.Data, p.Config, p.Cache, p.State} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// StoragePath returns the default data directory for the json storage
// backend.
func (p *Paths) StoragePath() string {
	return filepath.Join(p.Data, "storage")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func defaultDataHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "share")
}

func defaultConfigHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".config")
}

func defaultCacheHome() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "cache")
	}
	return filepath.Join(os.Getenv("HOME"), ".cache")
}

func defaultStateHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "state")
}
