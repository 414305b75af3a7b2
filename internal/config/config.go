// Package config loads the flowreaper configuration file and defaults.
//
// Configuration is layered: viper defaults, then an optional YAML config
// file, then FLOWREAPER_* environment variables. Command-line flags
// override all of it in the cmd layer.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config is the typed view of the loaded configuration.
type Config struct {
	AWS     AWSConfig     `mapstructure:"aws"`
	Reap    ReapConfig    `mapstructure:"reap"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// AWSConfig configures provider clients.
type AWSConfig struct {
	Region   string `mapstructure:"region"`
	Profile  string `mapstructure:"profile"`
	Endpoint string `mapstructure:"endpoint"`
}

// ReapConfig holds reap-run defaults overridable per invocation.
type ReapConfig struct {
	// ScratchURI is the s3://bucket/prefix location for lock markers.
	ScratchURI string `mapstructure:"scratch_uri"`

	// SyncWait is the lock propagation wait before read-back.
	SyncWait time.Duration `mapstructure:"sync_wait"`

	// MaxMinutesLocked is how long an existing lock marker is honored.
	MaxMinutesLocked float64 `mapstructure:"max_minutes_locked"`

	// TerminateRPS caps terminate calls per second. Zero is uncapped.
	TerminateRPS float64 `mapstructure:"terminate_rps"`

	// RunLog is the local run-history database path. Empty disables it.
	RunLog string `mapstructure:"run_log"`
}

// LoggingConfig configures the CLI logger.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// SetDefaults installs configuration defaults into viper.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("aws.region", "")
	v.SetDefault("aws.profile", "")
	v.SetDefault("aws.endpoint", "")

	v.SetDefault("reap.scratch_uri", "")
	v.SetDefault("reap.sync_wait", "5s")
	v.SetDefault("reap.max_minutes_locked", 1.0)
	v.SetDefault("reap.terminate_rps", 0.0)
	v.SetDefault("reap.run_log", "")

	v.SetDefault("logging.level", "info")
}

// Load reads configuration into a typed Config.
//
// cfgFile, when non-empty, names an explicit config file; otherwise the
// standard locations are searched. A missing config file is not an
// error: defaults and environment are enough to run.
func Load(ctx context.Context, v *viper.Viper, cfgFile string) (*Config, error) {
	_ = ctx

	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("flowreaper")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/flowreaper")
		v.AddConfigPath("/etc/flowreaper")
	}

	v.SetEnvPrefix("FLOWREAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return &cfg, nil
}
