package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentd-ai/agentd/pkg/types"
)

// isolateEnv points every config source at empty locations so tests only see
// what they set up themselves.
func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, v := range []string{
		"AGENTD_CONFIG", "AGENTD_CONFIG_CONTENT",
		"AGENTD_LOG_LEVEL", "AGENTD_STORAGE_BACKEND", "AGENTD_STORAGE_PATH",
		"AGENTD_MAX_SESSIONS", "AGENTD_SESSION_TTL", "AGENTD_PROVIDER", "AGENTD_MODEL",
	} {
		// t.Setenv registers the restore; Unsetenv makes the variable truly
		// absent so godotenv can supply it.
		t.Setenv(v, "")
		os.Unsetenv(v)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoad_ProjectFile(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "agentd.json"), `{
		"logLevel": "debug",
		"storage": {"backend": "json", "path": "/tmp/agentd-data"},
		"session": {"maxSessions": 50, "ttl": "30m"},
		"llm": {"providerID": "loopback", "modelID": "echo-1"}
	}`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.Storage.Backend)
	assert.Equal(t, 50, cfg.Session.MaxSessions)
	assert.Equal(t, 30*time.Minute, time.Duration(cfg.Session.TTL))
	assert.Equal(t, "loopback", cfg.LLM.ProviderID)
}

func TestLoad_JSONCComments(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "agentd.jsonc"), `{
		// comments are fine in jsonc
		"logLevel": "warn",
	}`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_ProjectOverridesGlobal(t *testing.T) {
	isolateEnv(t)
	global := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", global)
	writeFile(t, filepath.Join(global, "agentd", "agentd.json"),
		`{"logLevel": "info", "session": {"maxSessions": 10}}`)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "agentd.json"), `{"logLevel": "debug"}`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	// Untouched fields survive the overlay.
	assert.Equal(t, 10, cfg.Session.MaxSessions)
}

func TestLoad_EnvInterpolation(t *testing.T) {
	isolateEnv(t)
	t.Setenv("AGENTD_TEST_MODEL", "echo-9")
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "agentd.json"),
		`{"llm": {"providerID": "loopback", "modelID": "{env:AGENTD_TEST_MODEL}"}}`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "echo-9", cfg.LLM.ModelID)
}

func TestLoad_EnvOverridesWin(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "agentd.json"),
		`{"logLevel": "info", "session": {"maxSessions": 10, "ttl": "1h"}}`)
	t.Setenv("AGENTD_LOG_LEVEL", "trace")
	t.Setenv("AGENTD_MAX_SESSIONS", "7")
	t.Setenv("AGENTD_SESSION_TTL", "5m")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "trace", cfg.LogLevel)
	assert.Equal(t, 7, cfg.Session.MaxSessions)
	assert.Equal(t, 5*time.Minute, time.Duration(cfg.Session.TTL))
}

func TestLoad_DotEnvFile(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".env"), "AGENTD_MODEL=from-dotenv\n")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.LLM.ModelID)
}

func TestLoad_InlineConfigContent(t *testing.T) {
	isolateEnv(t)
	t.Setenv("AGENTD_CONFIG_CONTENT", `{"storage": {"backend": "memory"}}`)

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Backend)
}

func TestLoad_MalformedFileIsAnError(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "agentd.json"), `{"logLevel": `)

	_, err := Load(dir)
	require.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "agentd.json")
	in := &types.Config{
		LogLevel: "debug",
		Session:  types.SessionConfig{TTL: types.Duration(time.Hour)},
	}
	require.NoError(t, Save(in, path))
	require.FileExists(t, path)

	cfg, err := Load(filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, time.Hour, time.Duration(cfg.Session.TTL))
}
