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
	require.Equal(t, 3, cfg.Engine.RetryAttempts)
	require.Equal(t, 25*time.Millisecond, cfg.Engine.RetryBackoff)
	require.Equal(t, 5*time.Second, cfg.Database.BusyTimeout)
	require.Equal(t, 50, cfg.Listing.DefaultLimit)
	require.Equal(t, 200, cfg.Listing.MaxLimit)
	require.Equal(t, "/v0", cfg.Server.BasePath)
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
engine:
  retry_attempts: 5
webhooks:
  - url: http://127.0.0.1:9000/hook
    secret: s3cret
    event_types: [route.status.changed]
    timeout: 2s
`))
	require.NoError(t, err)
	require.Equal(t, 5, cfg.Engine.RetryAttempts)
	require.Equal(t, 5*time.Second, cfg.Engine.StorageTimeout)
	require.Len(t, cfg.Webhooks, 1)
	require.Equal(t, 2*time.Second, cfg.Webhooks[0].Timeout)
	require.Equal(t, []string{"route.status.changed"}, cfg.Webhooks[0].EventTypes)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"retry":   "engine:\n  retry_attempts: 0\n",
		"limit":   "listing:\n  default_limit: 500\n",
		"base":    "server:\n  base_path: v0\n",
		"format":  "log:\n  format: xml\n",
		"webhook": "webhooks:\n  - secret: x\n",
		"db":      "database:\n  path: \"\"\n",
	}
	for name, raw := range cases {
		_, err := FromYAML([]byte(raw))
		require.Error(t, err, name)
	}
	_, err := FromYAML([]byte("engine: ["))
	require.Error(t, err)
}

func TestLoadMissingFileFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(Path(dir))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "cleanops.yml"), []byte("listing:\n  max_limit: 100\n"), 0o644))
	cfg, err = Load(Path(dir))
	require.NoError(t, err)
	require.Equal(t, 100, cfg.Listing.MaxLimit)
}
