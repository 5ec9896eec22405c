// Package config provides configuration loading and path management.
//
// Configuration is assembled from multiple sources in priority order: the
// global config directory, the project directory, an AGENTD_CONFIG file, and
// finally environment variables. Files may be JSON or JSONC and support
// {env:VAR} interpolation.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"

	"github.com/agentd-ai/agentd/pkg/types"
)

// Load assembles the configuration for a run rooted at directory. Sources in
// priority order, later overriding earlier:
//
//  1. Global config (<config dir>/agentd.json, agentd.jsonc)
//  2. Project config (directory/agentd.json, agentd.jsonc)
//  3. AGENTD_CONFIG file
//  4. AGENTD_CONFIG_CONTENT inline JSON
//  5. Environment variables (a .env file in directory is read first)
//
// Missing files are skipped; a file that exists but fails to parse is an
// error.
func Load(directory string) (*types.Config, error) {
	config := &types.Config{}

	loaded := make(map[string]bool)
	loadOnce := func(path string) error {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil
		}
		if loaded[absPath] {
			return nil
		}
		err = loadConfigFile(path, config)
		if err == nil {
			loaded[absPath] = true
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("failed to load config %s: %w", path, err)
		}
		return nil
	}

	globalDir := GetPaths().Config
	for _, name := range []string{"agentd.json", "agentd.jsonc"} {
		if err := loadOnce(filepath.Join(globalDir, name)); err != nil {
			return nil, err
		}
	}

	if directory != "" {
		for _, name := range []string{"agentd.json", "agentd.jsonc"} {
			if err := loadOnce(filepath.Join(directory, name)); err != nil {
				return nil, err
			}
		}
	}

	if path := os.Getenv("AGENTD_CONFIG"); path != "" {
		if err := loadOnce(path); err != nil {
			return nil, err
		}
	}

	if content := os.Getenv("AGENTD_CONFIG_CONTENT"); content != "" {
		var inline types.Config
		if err := json.Unmarshal(jsonc.ToJSON([]byte(content)), &inline); err != nil {
			return nil, fmt.Errorf("failed to parse AGENTD_CONFIG_CONTENT: %w", err)
		}
		merge(config, &inline)
	}

	// A project .env supplies env vars without exporting them; existing
	// variables win.
	if directory != "" {
		_ = godotenv.Load(filepath.Join(directory, ".env"))
	}
	applyEnvOverrides(config)

	return config, nil
}

// loadConfigFile reads one JSON/JSONC file and merges it into config.
func loadConfigFile(path string, config *types.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	data = jsonc.ToJSON(data)
	data = interpolate(data)

	var fileConfig types.Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	merge(config, &fileConfig)
	return nil
}

var envPattern = regexp.MustCompile(`\{env:([^}]+)\}`)

// interpolate expands {env:VAR} placeholders.
func interpolate(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// merge overlays source onto target. Set scalars win; zero values leave the
// target alone.
func merge(target, source *types.Config) {
	if source.LogLevel != "" {
		target.LogLevel = source.LogLevel
	}
	if source.Storage.Backend != "" {
		target.Storage.Backend = source.Storage.Backend
	}
	if source.Storage.Path != "" {
		target.Storage.Path = source.Storage.Path
	}
	if source.Session.MaxSessions != 0 {
		target.Session.MaxSessions = source.Session.MaxSessions
	}
	if source.Session.TTL != 0 {
		target.Session.TTL = source.Session.TTL
	}
	if source.Session.CacheTTL != 0 {
		target.Session.CacheTTL = source.Session.CacheTTL
	}
	if source.LLM.ProviderID != "" {
		target.LLM.ProviderID = source.LLM.ProviderID
	}
	if source.LLM.ModelID != "" {
		target.LLM.ModelID = source.LLM.ModelID
	}
	if source.LLM.MaxTokens != 0 {
		target.LLM.MaxTokens = source.LLM.MaxTokens
	}
	if source.LLM.Temperature != 0 {
		target.LLM.Temperature = source.LLM.Temperature
	}
}

// applyEnvOverrides applies AGENTD_* environment variables, the highest
// priority source.
func applyEnvOverrides(config *types.Config) {
	if v := os.Getenv("AGENTD_LOG_LEVEL"); v != "" {
		config.LogLevel = v
	}
	if v := os.Getenv("AGENTD_STORAGE_BACKEND"); v != "" {
		config.Storage.Backend = v
	}
	if v := os.Getenv("AGENTD_STORAGE_PATH"); v != "" {
		config.Storage.Path = v
	}
	if v := os.Getenv("AGENTD_MAX_SESSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Session.MaxSessions = n
		}
	}
	if v := os.Getenv("AGENTD_SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Session.TTL = types.Duration(d)
		}
	}
	if v := os.Getenv("AGENTD_PROVIDER"); v != "" {
		config.LLM.ProviderID = v
	}
	if v := os.Getenv("AGENTD_MODEL"); v != "" {
		config.LLM.ModelID = v
	}
}

// Save writes config to path, creating parent directories as needed.
func Save(config *types.Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
