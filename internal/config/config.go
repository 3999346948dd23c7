// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Serial  SerialConfig  `mapstructure:"serial"`
	Logging LoggingConfig `mapstructure:"logging"`
	App     AppConfig     `mapstructure:"app"`
}

// SerialConfig represents serial link and protocol timing configuration
type SerialConfig struct {
	BaudRate       int           `mapstructure:"baud_rate"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	SettleDelay    time.Duration `mapstructure:"settle_delay"`
	BackupTimeout  time.Duration `mapstructure:"backup_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// Load loads configuration from an optional file and environment variables.
// An empty path means "use config.yaml from the working directory if present";
// a missing file is not an error in that case since the tool runs fine on
// defaults alone.
func Load(path string) (*Config, error) {
	vp := viper.New()

	if path != "" {
		vp.SetConfigFile(path)
	} else {
		vp.SetConfigName("config")
		vp.SetConfigType("yaml")
		vp.AddConfigPath(".")
	}

	// Environment variable support
	vp.SetEnvPrefix("SENSOR_TOOL")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	// Set defaults
	setDefaults(vp)

	// Read config file
	if err := vp.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case path == "" && (errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)):
			// Run on defaults.
		default:
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := vp.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(vp *viper.Viper) {
	// Serial defaults
	vp.SetDefault("serial.baud_rate", 460800)
	vp.SetDefault("serial.command_timeout", "3s")
	vp.SetDefault("serial.settle_delay", "100ms")
	vp.SetDefault("serial.backup_timeout", "5s")
	vp.SetDefault("serial.poll_interval", "100ms")

	// Logging defaults
	vp.SetDefault("logging.level", "info")
	vp.SetDefault("logging.format", "console")
	vp.SetDefault("logging.output", "stderr")
	vp.SetDefault("logging.max_size", 10)
	vp.SetDefault("logging.max_backups", 3)
	vp.SetDefault("logging.max_age", 28)
	vp.SetDefault("logging.compress", true)

	// App defaults
	vp.SetDefault("app.name", "sensor-autostart")
	vp.SetDefault("app.version", "1.0.0")
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Serial.CommandTimeout <= 0 {
		return fmt.Errorf("serial.command_timeout must be positive")
	}
	if config.Serial.BackupTimeout <= 0 {
		return fmt.Errorf("serial.backup_timeout must be positive")
	}
	if config.Serial.PollInterval <= 0 {
		return fmt.Errorf("serial.poll_interval must be positive")
	}
	if config.Serial.PollInterval > config.Serial.BackupTimeout {
		return fmt.Errorf("serial.poll_interval must not exceed serial.backup_timeout")
	}

	// Validate logging level
	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	isValidLevel := false
	for _, level := range validLevels {
		if config.Logging.Level == level {
			isValidLevel = true
			break
		}
	}
	if !isValidLevel {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	return nil
}
