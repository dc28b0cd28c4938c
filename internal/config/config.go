// Package config loads the studyq configuration from a YAML file, the
// environment and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable. A double underscore separates
// nested keys: STUDYQ_DATABASE__DSN sets database.dsn.
const EnvPrefix = "STUDYQ_"

type Config struct {
	Log       Log       `koanf:"log"`
	HTTP      HTTP      `koanf:"http"`
	Database  Database  `koanf:"database"`
	Admission Admission `koanf:"admission"`
	Redis     Redis     `koanf:"redis"`
	NATS      NATS      `koanf:"nats"`
	Study     Study     `koanf:"study"`
}

type Log struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

type HTTP struct {
	Addr string `koanf:"addr" validate:"required"`
	// SessionIdle is how long a running session survives without requests.
	SessionIdle time.Duration `koanf:"session_idle" validate:"gt=0"`
}

type Database struct {
	Driver string `koanf:"driver" validate:"oneof=sqlite postgres"`
	DSN    string `koanf:"dsn" validate:"required"`
}

type Admission struct {
	Tier         string `koanf:"tier" validate:"oneof=free pro enterprise"`
	QuotaBackend string `koanf:"quota_backend" validate:"oneof=database redis memory"`
}

type Redis struct {
	Addr     string `koanf:"addr" validate:"required_with=Password"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db" validate:"min=0"`
}

// NATS is optional; without a URL summaries are only logged.
type NATS struct {
	URL     string `koanf:"url" validate:"omitempty,url"`
	Subject string `koanf:"subject" validate:"required"`
}

type Study struct {
	AbortOnWriteError bool `koanf:"abort_on_write_error"`
	// DayStartHour is the UTC hour at which the srs new-card allowance resets.
	DayStartHour  int `koanf:"day_start_hour" validate:"min=0,max=23"`
	DailyNewLimit int `koanf:"daily_new_limit" validate:"min=0"`
}

// Default returns the configuration used for keys no source sets.
func Default() Config {
	return Config{
		Log:       Log{Level: "info", Format: "text"},
		HTTP:      HTTP{Addr: ":8080", SessionIdle: 2 * time.Hour},
		Database:  Database{Driver: "sqlite", DSN: "studyq.db"},
		Admission: Admission{Tier: "free", QuotaBackend: "database"},
		Redis:     Redis{Addr: "localhost:6379"},
		NATS:      NATS{Subject: "studyq.sessions.completed"},
		Study:     Study{DayStartHour: 4, DailyNewLimit: 20},
	}
}

// RegisterFlags adds the flags Load understands to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", "", "Path to a YAML configuration file")
	fs.String("log.level", d.Log.Level, "Log level: debug, info, warn or error")
	fs.String("log.format", d.Log.Format, "Log format: text or json")
	fs.String("http.addr", d.HTTP.Addr, "Address the HTTP server listens on")
	fs.Duration("http.session_idle", d.HTTP.SessionIdle, "How long an untouched study session is kept")
	fs.String("database.driver", d.Database.Driver, "Database driver: sqlite or postgres")
	fs.String("database.dsn", d.Database.DSN, "Database connection string")
	fs.String("admission.tier", d.Admission.Tier, "Admission tier: free, pro or enterprise")
	fs.String("admission.quota_backend", d.Admission.QuotaBackend, "Quota counter backend: database, redis or memory")
	fs.String("nats.url", d.NATS.URL, "NATS server URL for session summaries")
	fs.Bool("study.abort_on_write_error", d.Study.AbortOnWriteError, "Stop a session when a rating cannot be saved")
}

// Load builds the configuration. path may be empty; when it is, the
// "config" flag of fs is used if set.
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path == "" && fs != nil {
		if f := fs.Lookup("config"); f != nil {
			path = f.Value.String()
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load environment: %w", err)
	}

	if fs != nil {
		if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
			return Config{}, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the ones that span sections.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Admission.QuotaBackend == "redis" && c.Redis.Addr == "" {
		return errors.New("invalid config: redis.addr is required for the redis quota backend")
	}
	return nil
}
