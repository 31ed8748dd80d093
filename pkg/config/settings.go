package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/picogrid/biosim/pkg/ledger"
	"github.com/picogrid/biosim/pkg/ledger/redis"
)

// EnvPrefix prefixes environment variables read into Settings.
const EnvPrefix = "BIOSIM"

// Settings are the global CLI settings, read from config.yaml in Dir() and
// from BIOSIM_* environment variables
type Settings struct {
	LogLevel    string         `mapstructure:"log_level"`
	NoColor     bool           `mapstructure:"no_color"`
	MetricsFile string         `mapstructure:"metrics_file"`
	WorkRoot    string         `mapstructure:"work_root"`
	Ledger      LedgerSettings `mapstructure:"ledger"`
}

// LedgerSettings select where run records are kept
type LedgerSettings struct {
	// Backend is file, memory or redis.
	Backend string `mapstructure:"backend"`
	// Path is the records file of the file backend.
	Path          string        `mapstructure:"path"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	Prefix        string        `mapstructure:"prefix"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// SetDefaults registers the default settings on v and binds BIOSIM_*
// environment variables, e.g. BIOSIM_LEDGER_BACKEND.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("no_color", false)
	v.SetDefault("metrics_file", "")
	v.SetDefault("work_root", "")
	v.SetDefault("ledger.backend", "file")
	v.SetDefault("ledger.path", "")
	v.SetDefault("ledger.redis_addr", "localhost:6379")
	v.SetDefault("ledger.redis_password", "")
	v.SetDefault("ledger.redis_db", 0)
	v.SetDefault("ledger.prefix", "biosim:run:")
	v.SetDefault("ledger.ttl", 0)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// LoadSettings decodes the settings held by v
func LoadSettings(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	return &s, nil
}

// OpenLedger returns the store selected by the settings
func (l LedgerSettings) OpenLedger() (ledger.Store, error) {
	switch strings.ToLower(l.Backend) {
	case "", "file":
		path := l.Path
		if path == "" {
			dir, err := Dir()
			if err != nil {
				return nil, err
			}
			path = filepath.Join(dir, "runs.json")
		}
		return ledger.NewFileStore(path), nil
	case "memory":
		return ledger.NewMemoryStore(), nil
	case "redis":
		return redis.New(l.RedisAddr, l.RedisPassword, l.RedisDB,
			redis.WithPrefix(l.Prefix), redis.WithTTL(l.TTL)), nil
	}
	return nil, fmt.Errorf("unknown ledger backend %q (use file, memory or redis)", l.Backend)
}
