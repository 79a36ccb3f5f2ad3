package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/nhle/mail-scheduler/internal/apperr"
	"github.com/nhle/mail-scheduler/internal/attachment"
	"github.com/nhle/mail-scheduler/internal/clock"
	"github.com/nhle/mail-scheduler/internal/credential"
	"github.com/nhle/mail-scheduler/internal/dispatch"
	"github.com/nhle/mail-scheduler/internal/logger"
	"github.com/nhle/mail-scheduler/internal/mailer"
	"github.com/nhle/mail-scheduler/internal/model"
	"github.com/nhle/mail-scheduler/internal/poller"
	"github.com/nhle/mail-scheduler/internal/store"
)

// newFlagSet returns a flag set carrying the flags every command shares.
// The names match the config keys they override.
func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("app-config", model.DefaultConfigPath(), "application config file")
	fs.String("db", "", "SQLite database path")
	fs.String("log-level", "", "log level: debug, info, warn, error")
	fs.String("log-file", "", "write logs to this file")
	fs.Int("workers", 0, "maximum concurrent sends per check")
	return fs
}

// env holds the long-lived collaborators of a command.
type env struct {
	cfg        *model.AppConfig
	log        *zap.Logger
	clock      clock.Clocker
	store      store.Store
	dispatcher *dispatch.Dispatcher
}

// loadConfig reads the application config named by --app-config, with
// flag overrides applied.
func loadConfig(fs *pflag.FlagSet) (*model.AppConfig, error) {
	path, _ := fs.GetString("app-config")
	cfg, err := model.LoadConfig(path, fs)
	if err != nil {
		return nil, apperr.Configuration("loading config", err)
	}
	return cfg, nil
}

// newLogger builds the logger. When forceFile is set and no file is
// configured, logs go next to the application config.
func newLogger(cfg *model.AppConfig, forceFile bool) (*zap.Logger, error) {
	file := cfg.Log.File
	if file == "" && forceFile {
		dir := filepath.Dir(model.DefaultConfigPath())
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		file = filepath.Join(dir, "mailscheduler.log")
	}
	log, err := logger.New(cfg.Log.Level, file)
	if err != nil {
		return nil, apperr.Configuration("building logger", err)
	}
	return log, nil
}

// openEnv loads config, builds the logger and opens the SQLite store.
func openEnv(fs *pflag.FlagSet, logToFile bool) (*env, error) {
	cfg, err := loadConfig(fs)
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg, logToFile)
	if err != nil {
		return nil, err
	}

	var opts []store.Option
	if cfg.Credentials.Keyring {
		ring, err := credential.Open(cfg.Credentials.FileDir)
		if err != nil {
			return nil, apperr.Configuration("opening keyring", err)
		}
		opts = append(opts, store.WithSecrets(ring))
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path, opts...)
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, log: log, clock: clock.New(), store: s}
	e.dispatcher, err = newDispatcher(cfg, log, e.clock, s)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return e, nil
}

// Close releases the store and flushes the logger.
func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		e.log.Warn("closing store", zap.Error(err))
	}
	_ = e.log.Sync()
}

// poller builds the poll loop over e's store and dispatcher.
func (e *env) poller() *poller.Poller {
	return newPoller(e.cfg, e.log, e.clock, e.store, e.dispatcher)
}

func newDispatcher(cfg *model.AppConfig, log *zap.Logger, c clock.Clocker, s store.Store) (*dispatch.Dispatcher, error) {
	resolver, err := newResolver(cfg)
	if err != nil {
		return nil, err
	}
	timeout := time.Duration(cfg.Dispatch.SendTimeoutSec) * time.Second

	transport := mailer.NewSMTPTransport()
	transport.Log = log.Named("mailer")
	if cfg.Archive.Enabled {
		if cfg.Archive.IMAPServer == "" {
			return nil, apperr.Configuration("archive", fmt.Errorf("archive.imap_server is required when archive is enabled"))
		}
		transport.Archive = &mailer.IMAPArchive{
			Host:    cfg.Archive.IMAPServer,
			Port:    cfg.Archive.IMAPPort,
			TLS:     cfg.Archive.TLS,
			Mailbox: cfg.Archive.Mailbox,
			Timeout: timeout,
		}
	}

	return dispatch.New(s, transport,
		dispatch.WithTimeout(timeout),
		dispatch.WithResolver(resolver),
		dispatch.WithClock(c),
		dispatch.WithLogger(log.Named("dispatch")),
	), nil
}

func newPoller(cfg *model.AppConfig, log *zap.Logger, c clock.Clocker, s store.Store, d *dispatch.Dispatcher) *poller.Poller {
	return poller.New(s, d,
		poller.WithWorkers(cfg.Dispatch.Workers),
		poller.WithClock(c),
		poller.WithLogger(log.Named("poller")),
	)
}

// newResolver serves local paths from the OS filesystem and s3:// refs
// from object storage when an endpoint is configured.
func newResolver(cfg *model.AppConfig) (attachment.Resolver, error) {
	r := &attachment.Router{File: attachment.NewFileResolver(afero.NewOsFs())}
	if cfg.Storage.Endpoint != "" {
		obj, err := attachment.NewObjectResolver(attachment.ObjectOptions{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
		})
		if err != nil {
			return nil, apperr.Configuration("object storage", err)
		}
		r.Object = obj
	}
	return r, nil
}
