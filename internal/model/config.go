package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. MAILSCHED_LOG_LEVEL.
const EnvPrefix = "MAILSCHED"

// DatabaseConfig locates the item store.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`

	// File receives log output when set. The TUI always logs to a file.
	File string `mapstructure:"file" yaml:"file"`
}

// DispatchConfig tunes delivery.
type DispatchConfig struct {
	SendTimeoutSec int `mapstructure:"send_timeout_sec" yaml:"send_timeout_sec"`
	Workers        int `mapstructure:"workers" yaml:"workers"`
}

// CredentialsConfig controls where the SMTP secret is kept.
type CredentialsConfig struct {
	// Keyring stores the secret in the system keyring instead of the
	// database.
	Keyring bool   `mapstructure:"keyring" yaml:"keyring"`
	FileDir string `mapstructure:"file_dir" yaml:"file_dir"`
}

// StorageConfig points at an S3-compatible object store used to resolve
// s3:// attachment references. Empty Endpoint disables it.
type StorageConfig struct {
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl" yaml:"use_ssl"`
}

// ArchiveConfig enables saving a copy of each sent message to an IMAP
// folder, logging in with the SMTP profile's credentials.
type ArchiveConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	IMAPServer string `mapstructure:"imap_server" yaml:"imap_server"`
	IMAPPort   int    `mapstructure:"imap_port" yaml:"imap_port"`
	TLS        bool   `mapstructure:"tls" yaml:"tls"`
	Mailbox    string `mapstructure:"mailbox" yaml:"mailbox"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Database    DatabaseConfig    `mapstructure:"database" yaml:"database"`
	Log         LogConfig         `mapstructure:"log" yaml:"log"`
	Dispatch    DispatchConfig    `mapstructure:"dispatch" yaml:"dispatch"`
	Credentials CredentialsConfig `mapstructure:"credentials" yaml:"credentials"`
	Storage     StorageConfig     `mapstructure:"storage" yaml:"storage"`
	Archive     ArchiveConfig     `mapstructure:"archive" yaml:"archive"`
}

// configDir returns ~/.config/mailscheduler, or "." when there is no home.
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "mailscheduler")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailscheduler/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	dir := configDir()
	return &AppConfig{
		Database: DatabaseConfig{Path: filepath.Join(dir, "scheduler.db")},
		Log:      LogConfig{Level: "info"},
		Dispatch: DispatchConfig{SendTimeoutSec: 20, Workers: 4},
		Credentials: CredentialsConfig{
			FileDir: filepath.Join(dir, "keyring"),
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := defaultAppConfig()
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", "")
	v.SetDefault("dispatch.send_timeout_sec", d.Dispatch.SendTimeoutSec)
	v.SetDefault("dispatch.workers", d.Dispatch.Workers)
	v.SetDefault("credentials.keyring", false)
	v.SetDefault("credentials.file_dir", d.Credentials.FileDir)
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.imap_server", "")
	v.SetDefault("archive.imap_port", 993)
	v.SetDefault("archive.tls", true)
	v.SetDefault("archive.mailbox", "Sent")
}

// flagKeys maps command-line flag names onto config keys.
var flagKeys = map[string]string{
	"db":        "database.path",
	"log-level": "log.level",
	"log-file":  "log.file",
	"workers":   "dispatch.workers",
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, defaults are used. Environment variables
// prefixed with MAILSCHED_ and any flags in flags that were set override the
// file. flags may be nil.
func LoadConfig(path string, flags *pflag.FlagSet) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Dispatch.SendTimeoutSec <= 0 {
		cfg.Dispatch.SendTimeoutSec = 20
	}
	if cfg.Dispatch.Workers <= 0 {
		cfg.Dispatch.Workers = 1
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("database", cfg.Database)
	v.Set("log", cfg.Log)
	v.Set("dispatch", cfg.Dispatch)
	v.Set("credentials", cfg.Credentials)
	v.Set("storage", cfg.Storage)
	v.Set("archive", cfg.Archive)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
