// Package config loads cdmcheck settings from a YAML file, a .env file and
// CDMCHECK_* environment variables, in increasing order of precedence.
// Command-line flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/unijord/cdmcheck/internal/logging"
	"github.com/unijord/cdmcheck/pkg/sink"
	"github.com/unijord/cdmcheck/pkg/validate"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CDMCHECK_"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Schemas     string `yaml:"schemas"`
	Rules       string `yaml:"rules"`
	Policy      string `yaml:"policy"`
	Workers     int    `yaml:"workers"`
	AllNullable bool   `yaml:"all_nullable"`
	Quarantine  string `yaml:"quarantine"`
	OutFormat   string `yaml:"out_format"`
	IDColumn    string `yaml:"id_column"`
	Log         Log    `yaml:"log"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	SeqURL string `yaml:"seq_url"`
}

// Default returns the settings used when nothing overrides them.
func Default() *Config {
	return &Config{
		Schemas:   "schemas",
		Policy:    validate.Lenient.String(),
		OutFormat: sink.FormatJSON,
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path (optional), then .env from the working directory when
// present, then the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	str("SCHEMAS", &c.Schemas)
	str("RULES", &c.Rules)
	str("POLICY", &c.Policy)
	str("QUARANTINE", &c.Quarantine)
	str("OUT_FORMAT", &c.OutFormat)
	str("ID_COLUMN", &c.IDColumn)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("SEQ_URL", &c.Log.SeqURL)

	if v, ok := lookup(EnvPrefix + "WORKERS"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %sWORKERS=%q is not a number", ErrInvalidConfig, EnvPrefix, v)
		}
		c.Workers = n
	}
	if v, ok := lookup(EnvPrefix + "ALL_NULLABLE"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %sALL_NULLABLE=%q is not a bool", ErrInvalidConfig, EnvPrefix, v)
		}
		c.AllNullable = b
	}
	return nil
}

// Validate checks the merged settings.
func (c *Config) Validate() error {
	var errs []error
	if c.Schemas == "" {
		errs = append(errs, errors.New("schemas directory is required"))
	}
	if _, err := validate.ParsePolicy(c.Policy); err != nil {
		errs = append(errs, err)
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}
	switch strings.ToLower(c.OutFormat) {
	case sink.FormatJSON, "json", sink.FormatSQL, sink.FormatArrow, sink.FormatAvro:
	default:
		errs = append(errs, fmt.Errorf("unknown out_format %q", c.OutFormat))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// LogOptions converts the log section for logging.Setup.
func (c *Config) LogOptions() logging.Options {
	return logging.Options{Level: c.Log.Level, Format: c.Log.Format, SeqURL: c.Log.SeqURL}
}
