// Package config loads runtime settings from defaults, an optional YAML file,
// an optional .env file and EXPENSES_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. EXPENSES_USER_EMAIL.
const EnvPrefix = "EXPENSES"

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Remote backends.
const (
	BackendDrive = "drive"
	BackendGCS   = "gcs"

	// BackendMemory keeps documents in process memory and loses them on
	// exit. It must be selected explicitly.
	BackendMemory = "memory"
)

// Config holds application configuration.
type Config struct {
	User     UserConfig     `mapstructure:"user"`
	Log      LogConfig      `mapstructure:"log"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Remote   RemoteConfig   `mapstructure:"remote"`
	SMS      SMSConfig      `mapstructure:"sms"`
	BigQuery BigQueryConfig `mapstructure:"bigquery"`
}

// UserConfig identifies the signed-in user.
type UserConfig struct {
	Email string `mapstructure:"email"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// StorageConfig selects the on-device store.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

// RemoteConfig selects the cloud store and document names.
type RemoteConfig struct {
	Backend        string `mapstructure:"backend"`
	AccessToken    string `mapstructure:"access_token"`
	GCSBucket      string `mapstructure:"gcs_bucket"`
	OwnDocument    string `mapstructure:"own_document"`
	SharedDocument string `mapstructure:"shared_document"`
}

// SMSConfig holds the message inbox settings.
type SMSConfig struct {
	InboxDir string `mapstructure:"inbox_dir"`
}

// BigQueryConfig names the timeline export table.
type BigQueryConfig struct {
	Project string `mapstructure:"project"`
	Dataset string `mapstructure:"dataset"`
	Table   string `mapstructure:"table"`
}

// Load reads configuration. EXPENSES_CONFIG names an explicit config file,
// which must exist; otherwise $HOME/.config/expense-sync/config.yaml is read
// if present. A .env file in the working directory is loaded first and never
// overrides variables already set.
func Load() (Config, error) {
	_ = godotenv.Load()

	home, _ := os.UserHomeDir()

	v := viper.New()

	// default values
	v.SetDefault("user.email", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("storage.driver", DriverSQLite)
	v.SetDefault("storage.path", filepath.Join(home, ".local", "share", "expense-sync", "expenses.db"))
	v.SetDefault("remote.backend", BackendDrive)
	v.SetDefault("remote.access_token", "")
	v.SetDefault("remote.gcs_bucket", "")
	v.SetDefault("remote.own_document", "transactions.json")
	v.SetDefault("remote.shared_document", "expenses_app_shared_transactions.json")
	v.SetDefault("sms.inbox_dir", filepath.Join(home, ".local", "share", "expense-sync", "inbox"))
	v.SetDefault("bigquery.project", "")
	v.SetDefault("bigquery.dataset", "expenses")
	v.SetDefault("bigquery.table", "timeline")

	v.SetConfigType("yaml")

	cfgPath := os.Getenv(EnvPrefix + "_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(home, ".config", "expense-sync"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgPath != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	c.User.Email = strings.ToLower(strings.TrimSpace(c.User.Email))
	return c, nil
}

// Validate rejects unknown drivers and missing backend-specific settings.
func (c Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.Path == "" {
			errs = append(errs, errors.New("storage.path is required for the sqlite driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}

	switch c.Remote.Backend {
	case BackendDrive:
		if c.Remote.AccessToken == "" {
			errs = append(errs, errors.New("remote.access_token is required for the drive backend"))
		}
	case BackendGCS:
		if c.Remote.GCSBucket == "" {
			errs = append(errs, errors.New("remote.gcs_bucket is required for the gcs backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown remote.backend %q", c.Remote.Backend))
	}

	if c.User.Email == "" {
		errs = append(errs, errors.New("user.email is required"))
	}
	if c.Remote.OwnDocument == "" || c.Remote.SharedDocument == "" {
		errs = append(errs, errors.New("remote document names must not be empty"))
	}
	if c.Remote.OwnDocument == c.Remote.SharedDocument {
		errs = append(errs, errors.New("remote.own_document and remote.shared_document must differ"))
	}

	return errors.Join(errs...)
}
