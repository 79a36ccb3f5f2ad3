package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Dispatch.SendTimeoutSec != 20 {
		t.Fatalf("send timeout = %d, want 20", cfg.Dispatch.SendTimeoutSec)
	}
	if cfg.Dispatch.Workers != 4 {
		t.Fatalf("workers = %d, want 4", cfg.Dispatch.Workers)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("log level = %q, want info", cfg.Log.Level)
	}
	if cfg.Database.Path == "" {
		t.Fatal("database path empty")
	}
	if cfg.Credentials.Keyring {
		t.Fatal("keyring enabled by default")
	}
	if cfg.Archive.Enabled || cfg.Archive.IMAPPort != 993 || cfg.Archive.Mailbox != "Sent" {
		t.Fatalf("archive defaults = %+v", cfg.Archive)
	}
}

func TestLoadConfigFileEnvAndFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `database:
  path: /tmp/items.db
log:
  level: debug
dispatch:
  send_timeout_sec: 5
  workers: 2
storage:
  endpoint: localhost:9000
  use_ssl: false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("MAILSCHED_LOG_LEVEL", "warn")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("db", "", "")
	flags.Int("workers", 0, "")
	if err := flags.Parse([]string{"--workers", "8"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path, flags)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Database.Path != "/tmp/items.db" {
		t.Fatalf("database path = %q", cfg.Database.Path)
	}
	if cfg.Log.Level != "warn" {
		t.Fatalf("log level = %q, want env override warn", cfg.Log.Level)
	}
	if cfg.Dispatch.Workers != 8 {
		t.Fatalf("workers = %d, want flag override 8", cfg.Dispatch.Workers)
	}
	if cfg.Dispatch.SendTimeoutSec != 5 {
		t.Fatalf("send timeout = %d, want 5", cfg.Dispatch.SendTimeoutSec)
	}
	if cfg.Storage.Endpoint != "localhost:9000" || cfg.Storage.UseSSL {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
}

func TestLoadConfigMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("log: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path, nil); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	want := defaultAppConfig()
	want.Log.Level = "debug"
	want.Dispatch.Workers = 3
	want.Credentials.Keyring = true

	if err := SaveConfig(path, want); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	got, err := LoadConfig(path, nil)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got.Log.Level != "debug" || got.Dispatch.Workers != 3 || !got.Credentials.Keyring {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}
