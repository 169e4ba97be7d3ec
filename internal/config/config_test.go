package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, "/api", cfg.Server.BasePath)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "memory", cfg.Relay.Backend)
	require.Equal(t, time.Minute, cfg.Overdue.Interval)
	require.Equal(t, 64, cfg.Relay.Buffer)
}

func TestFromYAMLOverridesDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
server:
  addr: 0.0.0.0:9000
relay:
  backend: redis
  redis_addr: redis:6379
overdue:
  interval: 30s
log:
  format: json
`))
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	require.Equal(t, "/api", cfg.Server.BasePath)
	require.Equal(t, "redis", cfg.Relay.Backend)
	require.Equal(t, 30*time.Second, cfg.Overdue.Interval)
	require.Equal(t, "json", cfg.Log.Format)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"driver":        "database:\n  driver: mysql\n",
		"postgres dsn":  "database:\n  driver: postgres\n  dsn: \"\"\n",
		"relay backend": "relay:\n  backend: kafka\n",
		"buffer":        "relay:\n  buffer: 0\n",
		"log level":     "log:\n  level: loud\n",
		"base path":     "server:\n  base_path: api\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)

	_, err = FromFile(Path(dir))
	require.ErrorContains(t, err, "not found")

	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("auth:\n  allow_dev_login: true\n"), 0o644))
	cfg, err = LoadOptional(dir)
	require.NoError(t, err)
	require.True(t, cfg.Auth.AllowDevLogin)

	other := filepath.Join(t.TempDir(), "staging.yml")
	require.NoError(t, os.WriteFile(other, []byte("log:\n  level: debug\n"), 0o644))
	cfg, err = FromFile(other)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Log.Level)
	require.False(t, cfg.Auth.AllowDevLogin)
}
