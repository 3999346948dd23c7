// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	require := require.New(t)

	cfg, err := Load("")
	require.NoError(err)

	require.Equal(460800, cfg.Serial.BaudRate)
	require.Equal(3*time.Second, cfg.Serial.CommandTimeout)
	require.Equal(100*time.Millisecond, cfg.Serial.SettleDelay)
	require.Equal(5*time.Second, cfg.Serial.BackupTimeout)
	require.Equal(100*time.Millisecond, cfg.Serial.PollInterval)

	require.Equal("info", cfg.Logging.Level)
	require.Equal("sensor-autostart", cfg.App.Name)
}

func TestLoadFromFile(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
serial:
  baud_rate: 921600
  backup_timeout: 10s
logging:
  level: debug
`
	require.NoError(os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(err)

	require.Equal(921600, cfg.Serial.BaudRate)
	require.Equal(10*time.Second, cfg.Serial.BackupTimeout)
	require.Equal("debug", cfg.Logging.Level)
	// Untouched keys keep their defaults.
	require.Equal(100*time.Millisecond, cfg.Serial.PollInterval)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	require := require.New(t)

	t.Setenv("SENSOR_TOOL_SERIAL_BAUD_RATE", "230400")
	t.Setenv("SENSOR_TOOL_LOGGING_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(err)
	require.Equal(230400, cfg.Serial.BaudRate)
	require.Equal("warn", cfg.Logging.Level)
}

func TestValidation(t *testing.T) {
	t.Run("invalid log level", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: verbose\n"), 0644))

		_, err := Load(path)
		require.ErrorContains(t, err, "logging.level")
	})

	t.Run("poll interval exceeds backup timeout", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := "serial:\n  backup_timeout: 1s\n  poll_interval: 2s\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		_, err := Load(path)
		require.ErrorContains(t, err, "poll_interval")
	})

	t.Run("non-positive command timeout", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("serial:\n  command_timeout: 0s\n"), 0644))

		_, err := Load(path)
		require.ErrorContains(t, err, "command_timeout")
	})
}
