package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	raw := `{
		"server_port": ":9000",
		"parties": [
			{"name": "p1", "endpoint": "localhost:9001", "stake": 100},
			{"name": "p2", "endpoint": "localhost:9002", "stake": 100}
		],
		"protocol": {
			"default_threshold": 2,
			"session_timeout_seconds": 30
		},
		"database": {"host": "localhost", "user": "frost", "dbname": "frost", "port": 5432},
		"logger": {"level": "debug", "format": "json"}
	}`
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.ServerPort)
	require.Len(t, cfg.Parties, 2)
	require.Equal(t, "p1", cfg.Parties[0].Name)
	require.Equal(t, 2, cfg.Protocol.DefaultThreshold)
	require.Equal(t, 30, cfg.Protocol.SessionTimeoutSeconds)
	require.Equal(t, "localhost", cfg.Database.Host)
	require.Equal(t, "debug", cfg.Logger.Level)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}

func TestLoadConfigMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err := LoadConfig(path)
	require.Error(t, err)
}
