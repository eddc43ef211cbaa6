// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MiniAccount Contributors

// Package config loads accountd configuration from defaults, an optional
// YAML file, command-line flags and the DATABASE_URL environment variable.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Mail backends.
const (
	MailBackendLog  = "log"
	MailBackendAMQP = "amqp"
)

// Config is the full accountd configuration.
type Config struct {
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
	Reset    ResetConfig    `koanf:"reset"`
	Password PasswordConfig `koanf:"password"`
	Mail     MailConfig     `koanf:"mail"`
	Metrics  MetricsConfig  `koanf:"metrics"`
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	URL            string        `koanf:"url"`
	ConnectRetries uint64        `koanf:"connect_retries"`
	ConnectBackoff time.Duration `koanf:"connect_backoff"`
	MaxConns       int32         `koanf:"max_conns"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// ResetConfig configures password reset tokens.
type ResetConfig struct {
	TokenTTL time.Duration `koanf:"token_ttl"`
}

// PasswordConfig configures the credential policy.
type PasswordConfig struct {
	MinLength int `koanf:"min_length"`
}

// MailConfig selects how reset tokens are delivered.
type MailConfig struct {
	Backend string     `koanf:"backend"`
	AMQP    AMQPConfig `koanf:"amqp"`
}

// AMQPConfig configures the RabbitMQ notifier.
type AMQPConfig struct {
	URL   string `koanf:"url"`
	Queue string `koanf:"queue"`
}

// MetricsConfig configures metric export.
type MetricsConfig struct {
	// Textfile is a node-exporter textfile path written after each command.
	// Empty disables it.
	Textfile string `koanf:"textfile"`
}

// Defaults returns the built-in configuration.
func Defaults() map[string]any {
	return map[string]any{
		"database.connect_retries": uint64(5),
		"database.connect_backoff": 500 * time.Millisecond,
		"database.max_conns":       int32(0),
		"log.format":               "json",
		"log.level":                "info",
		"reset.token_ttl":          30 * time.Minute,
		"password.min_length":      1,
		"mail.backend":             MailBackendLog,
		"mail.amqp.queue":          "accountd.password_reset",
	}
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"database-url":     "database.url",
	"connect-retries":  "database.connect_retries",
	"connect-backoff":  "database.connect_backoff",
	"max-conns":        "database.max_conns",
	"log-format":       "log.format",
	"log-level":        "log.level",
	"token-ttl":        "reset.token_ttl",
	"min-password":     "password.min_length",
	"mail-backend":     "mail.backend",
	"amqp-url":         "mail.amqp.url",
	"amqp-queue":       "mail.amqp.queue",
	"metrics-textfile": "metrics.textfile",
}

// BindFlags registers the configuration flags on fs. Their defaults are
// display-only; unset flags never override the file or the built-in defaults.
func BindFlags(fs *pflag.FlagSet) {
	d := Defaults()
	fs.String("database-url", "", "PostgreSQL connection URL (default $DATABASE_URL)")
	fs.Uint64("connect-retries", d["database.connect_retries"].(uint64), "database connect retries")
	fs.Duration("connect-backoff", d["database.connect_backoff"].(time.Duration), "initial database connect backoff")
	fs.Int32("max-conns", 0, "maximum pool connections (0 = pgxpool default)")
	fs.String("log-format", d["log.format"].(string), "log format (json or text)")
	fs.String("log-level", d["log.level"].(string), "log level (debug, info, warn, error)")
	fs.Duration("token-ttl", d["reset.token_ttl"].(time.Duration), "password reset token lifetime")
	fs.Int("min-password", d["password.min_length"].(int), "minimum password length")
	fs.String("mail-backend", d["mail.backend"].(string), "reset token delivery (log or amqp)")
	fs.String("amqp-url", "", "RabbitMQ URL for the amqp mail backend")
	fs.String("amqp-queue", d["mail.amqp.queue"].(string), "RabbitMQ queue for reset messages")
	fs.String("metrics-textfile", "", "write Prometheus metrics to this textfile after each command")
}

// LoadOptions are the sources Load reads.
type LoadOptions struct {
	// File is an optional YAML configuration file.
	File string
	// Flags, when set, overrides file values with explicitly set flags.
	Flags *pflag.FlagSet
	// Getenv reads the environment. Defaults to os.Getenv.
	Getenv func(string) string
}

// Load merges defaults, the YAML file, changed flags and DATABASE_URL, in
// increasing precedence except that DATABASE_URL only fills an empty
// database.url. The result is validated.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	for key, value := range Defaults() {
		if err := k.Set(key, value); err != nil {
			return nil, oops.Code("CONFIG_INVALID").With("key", key).Wrap(err)
		}
	}

	if opts.File != "" {
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("file", opts.File).Wrap(err)
		}
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, f.Value.String()
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "decode").Wrap(err)
	}

	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if cfg.Database.URL == "" {
		cfg.Database.URL = getenv("DATABASE_URL")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is usable. The database URL is
// checked by RequireDatabase since not every command needs one.
func (c *Config) Validate() error {
	invalid := func(key string) oops.OopsErrorBuilder {
		return oops.Code("CONFIG_INVALID").With("key", key)
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format").Errorf("log format must be 'json' or 'text', got %q", c.Log.Format)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level").Errorf("unknown log level %q", c.Log.Level)
	}
	if c.Database.ConnectBackoff <= 0 {
		return invalid("database.connect_backoff").Errorf("connect backoff must be positive")
	}
	if c.Database.MaxConns < 0 {
		return invalid("database.max_conns").Errorf("max conns cannot be negative")
	}
	if c.Reset.TokenTTL <= 0 {
		return invalid("reset.token_ttl").Errorf("token ttl must be positive")
	}
	if c.Password.MinLength < 1 {
		return invalid("password.min_length").Errorf("minimum password length must be at least 1")
	}
	switch c.Mail.Backend {
	case MailBackendLog:
	case MailBackendAMQP:
		if c.Mail.AMQP.URL == "" {
			return invalid("mail.amqp.url").Errorf("amqp url is required for the amqp mail backend")
		}
		if c.Mail.AMQP.Queue == "" {
			return invalid("mail.amqp.queue").Errorf("amqp queue is required for the amqp mail backend")
		}
	default:
		return invalid("mail.backend").Errorf("mail backend must be %q or %q, got %q", MailBackendLog, MailBackendAMQP, c.Mail.Backend)
	}
	return nil
}

// RequireDatabase reports an error when no database URL is configured.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").
			With("key", "database.url").
			Errorf("database url is required (--database-url, config file or DATABASE_URL)")
	}
	return nil
}
