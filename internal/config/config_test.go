package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	require.NoError(t, Load(""))
	cfg := Get()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, time.Hour, cfg.Library.ScanInterval)
	assert.Equal(t, 2*time.Second, cfg.Library.SettleInterval)
	assert.Equal(t, 30, cfg.Library.SettleMaxAttempts)
	assert.Equal(t, "m4b", cfg.Conversion.TargetFormat)
	assert.Equal(t, 5*time.Minute, cfg.Playback.SessionTimeout)
	assert.Equal(t, 15*time.Second, cfg.Playback.ReaperInterval)
	assert.Equal(t, 64, cfg.Events.SubscriberBuffer)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audiora.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
library:
  root_dir: /srv/audiobooks
playback:
  session_timeout: 10m
`), 0o644))

	require.NoError(t, Load(path))
	cfg := Get()

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/srv/audiobooks", cfg.Library.RootDir)
	assert.Equal(t, 10*time.Minute, cfg.Playback.SessionTimeout)
	// Unset values still get defaults.
	assert.Equal(t, "m4b", cfg.Conversion.TargetFormat)
}

func TestEnvOverridesFileAndDefaults(t *testing.T) {
	t.Setenv("AUDIORA_PORT", "7070")
	t.Setenv("AUDIORA_SESSION_TIMEOUT", "90s")
	t.Setenv("AUDIORA_AUTO_SCAN", "false")

	require.NoError(t, Load(""))
	cfg := Get()

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 90*time.Second, cfg.Playback.SessionTimeout)
	assert.False(t, cfg.Library.AutoScanEnabled)
}

func TestLoadMissingFileFails(t *testing.T) {
	assert.Error(t, Load(filepath.Join(t.TempDir(), "nope.yaml")))
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("AUDIORA_PORT", "70000")
	assert.Error(t, Load(""))
}
