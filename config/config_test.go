package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestDefaults(t *testing.T) {
	cfg, err := Load(Sources{})
	require.NoError(t, err)

	require.Equal(t, DefaultBaseURL, cfg.Backend.URL)
	require.Equal(t, "/api/chat/start", cfg.Backend.StartPath)
	require.Equal(t, "/chat/end/{conversation_id}", cfg.Backend.EndPath)
	require.Equal(t, "/api/chat/status/{conversation_id}", cfg.Backend.StatusPath)
	require.Equal(t, 30*time.Second, cfg.Backend.Timeout)
	require.Equal(t, 15*time.Second, cfg.Backend.StatusInterval)
	require.Equal(t, 30*time.Second, cfg.Connectivity.Interval)
	require.Equal(t, 10*time.Second, cfg.Connectivity.Timeout)
	require.Equal(t, "text", cfg.Log.Format)

	lvl, err := cfg.LogLevel()
	require.NoError(t, err)
	require.Equal(t, slog.LevelInfo, lvl)
}

func TestLayering(t *testing.T) {
	dir := t.TempDir()

	cfgFile := writeFile(t, dir, "tutor.yaml", `
backend:
  url: https://file.example.com
  api_key: from-file
connectivity:
  interval: 5s
log:
  format: json
`)
	envFile := writeFile(t, dir, ".env", "TUTOR_LOG_LEVEL=debug\nTUTOR_BACKEND_API_KEY=from-dotenv\n")
	t.Cleanup(func() {
		_ = os.Unsetenv("TUTOR_LOG_LEVEL")
		_ = os.Unsetenv("TUTOR_BACKEND_API_KEY")
	})

	t.Setenv("TUTOR_BACKEND_URL", "https://env.example.com")

	cfg, err := Load(Sources{ConfigFile: cfgFile, EnvFile: envFile})
	require.NoError(t, err)

	// env beats file
	require.Equal(t, "https://env.example.com", cfg.Backend.URL)
	// .env is exported to the environment and beats the file as well
	require.Equal(t, "from-dotenv", cfg.Backend.APIKey)
	// file beats defaults
	require.Equal(t, 5*time.Second, cfg.Connectivity.Interval)
	require.Equal(t, "json", cfg.Log.Format)

	lvl, err := cfg.LogLevel()
	require.NoError(t, err)
	require.Equal(t, slog.LevelDebug, lvl)
}

func TestMissingExplicitFiles(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(Sources{ConfigFile: filepath.Join(dir, "nope.yaml")})
	require.Error(t, err)

	_, err = Load(Sources{EnvFile: filepath.Join(dir, "nope.env")})
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "scheme", mutate: func(c *Config) { c.Backend.URL = "ftp://x" }},
		{name: "host", mutate: func(c *Config) { c.Backend.URL = "http://" }},
		{name: "timeout", mutate: func(c *Config) { c.Backend.Timeout = 0 }},
		{name: "status interval", mutate: func(c *Config) { c.Backend.StatusInterval = 0 }},
		{name: "interval", mutate: func(c *Config) { c.Connectivity.Interval = -time.Second }},
		{name: "addr", mutate: func(c *Config) { c.HTTP.Addr = "" }},
		{name: "level", mutate: func(c *Config) { c.Log.Level = "loud" }},
		{name: "format", mutate: func(c *Config) { c.Log.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(Sources{})
			require.NoError(t, err)

			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
