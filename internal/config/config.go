// Package config loads the floxctl configuration.
//
// Values come from a YAML file (by default ~/.floxctl.yaml) and are then
// overridden by FLOX_* environment variables, so a checked-in file can be
// combined with secrets from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/birbparty/flox-go/sdk"
)

// DefaultFileName is looked up in the user's home directory.
const DefaultFileName = ".floxctl.yaml"

// Config is the floxctl configuration.
type Config struct {
	// BaseURL is the Flox service address.
	BaseURL string `yaml:"base_url"`

	// GameID and GameKey identify the game.
	GameID  string `yaml:"game_id"`
	GameKey string `yaml:"game_key"`

	// HeroKey, when set, is used to log in before every command. Heroes can
	// access all entities of the game.
	HeroKey string `yaml:"hero_key"`

	// InsecureSkipVerify disables TLS certificate checks.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`

	// Timeout is the per-request timeout, e.g. "30s".
	Timeout Duration `yaml:"timeout"`

	// LogLevel is a logrus level name.
	LogLevel string `yaml:"log_level"`

	// Export configures the log export sinks.
	Export ExportConfig `yaml:"export"`
}

// ExportConfig configures where exported logs go.
type ExportConfig struct {
	// Dir is the target directory of the file sink.
	Dir string `yaml:"dir"`

	S3 S3Config `yaml:"s3"`
}

// S3Config configures the S3 sink. Endpoint is only needed for
// S3-compatible stores.
type S3Config struct {
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// Duration is a time.Duration read from YAML strings such as "30s".
// Plain integers are taken as seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := parseDuration(value.Value)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Default returns the configuration used when nothing is configured.
func Default() *Config {
	return &Config{
		BaseURL:  sdk.DefaultBaseURL,
		Timeout:  Duration(30 * time.Second),
		LogLevel: "warn",
		Export: ExportConfig{
			Dir: ".",
			S3: S3Config{
				Region: "us-east-1",
				Prefix: "flox/",
			},
		},
	}
}

// DefaultPath returns ~/.floxctl.yaml, or "" if there is no home directory.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, DefaultFileName)
}

// Load reads the file at path and applies environment overrides. A missing
// file is only an error if required is set, i.e. the path was given
// explicitly.
func Load(path string, required bool) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !required:
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	overrides := map[string]*string{
		"FLOX_BASE_URL":    &c.BaseURL,
		"FLOX_GAME_ID":     &c.GameID,
		"FLOX_GAME_KEY":    &c.GameKey,
		"FLOX_HERO_KEY":    &c.HeroKey,
		"LOG_LEVEL":        &c.LogLevel,
		"FLOX_EXPORT_DIR":  &c.Export.Dir,
		"FLOX_S3_BUCKET":   &c.Export.S3.Bucket,
		"FLOX_S3_PREFIX":   &c.Export.S3.Prefix,
		"FLOX_S3_REGION":   &c.Export.S3.Region,
		"FLOX_S3_ENDPOINT": &c.Export.S3.Endpoint,
	}
	for key, target := range overrides {
		if value := os.Getenv(key); value != "" {
			*target = value
		}
	}

	if value := os.Getenv("FLOX_INSECURE_SKIP_VERIFY"); value != "" {
		skip, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid FLOX_INSECURE_SKIP_VERIFY: %w", err)
		}
		c.InsecureSkipVerify = skip
	}

	if value := os.Getenv("FLOX_TIMEOUT"); value != "" {
		timeout, err := parseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid FLOX_TIMEOUT: %w", err)
		}
		c.Timeout = Duration(timeout)
	}
	return nil
}

// Validate checks that the game is configured.
func (c *Config) Validate() error {
	if c.GameID == "" {
		return errors.New("game_id is required (set it in the config file or FLOX_GAME_ID)")
	}
	if c.GameKey == "" {
		return errors.New("game_key is required (set it in the config file or FLOX_GAME_KEY)")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	return nil
}

// ToSDK builds the SDK configuration. logger may be nil.
func (c *Config) ToSDK(logger logrus.FieldLogger) *sdk.Config {
	cfg := sdk.DefaultConfig().
		WithBaseURL(c.BaseURL).
		WithGame(c.GameID, c.GameKey)

	if c.Timeout > 0 {
		cfg = cfg.WithTimeout(time.Duration(c.Timeout))
	}
	if c.InsecureSkipVerify {
		cfg = cfg.WithInsecureSkipVerify()
	}
	if logger != nil {
		cfg = cfg.WithLogger(logger)
	}
	return cfg
}

func parseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	if seconds, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}
