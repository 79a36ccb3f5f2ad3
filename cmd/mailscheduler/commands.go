package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"go.uber.org/zap"

	"github.com/nhle/mail-scheduler/internal/app"
	"github.com/nhle/mail-scheduler/internal/apperr"
	"github.com/nhle/mail-scheduler/internal/clock"
	"github.com/nhle/mail-scheduler/internal/dispatch"
	"github.com/nhle/mail-scheduler/internal/model"
	"github.com/nhle/mail-scheduler/internal/poller"
	"github.com/nhle/mail-scheduler/internal/schedule"
	"github.com/nhle/mail-scheduler/internal/store"
)

// cmdRun runs the poll loop until the process is signalled.
func cmdRun(ctx context.Context, args []string, _ io.Writer) error {
	fs := newFlagSet("run")
	if err := fs.Parse(args); err != nil {
		return err
	}
	e, err := openEnv(fs, false)
	if err != nil {
		return err
	}
	defer e.Close()

	if _, err := e.store.GetSMTPProfile(ctx); errors.Is(err, store.ErrNoProfile) {
		e.log.Warn("no SMTP profile saved; sends will fail until one is added with 'mailscheduler smtp'")
	}
	return e.poller().Run(ctx)
}

// cmdTUI opens the interactive manager with the poll loop running in the
// same process. Logs go to a file so the terminal stays clean.
func cmdTUI(ctx context.Context, args []string, _ io.Writer) error {
	fs := newFlagSet("tui")
	if err := fs.Parse(args); err != nil {
		return err
	}
	e, err := openEnv(fs, true)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := e.poller()
	loopDone := make(chan error, 1)
	go func() { loopDone <- p.Run(ctx) }()

	program := tea.NewProgram(app.New(e.store, e.dispatcher, p, e.clock), tea.WithAltScreen(), tea.WithContext(ctx))
	_, runErr := program.Run()

	cancel()
	<-loopDone
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return fmt.Errorf("running TUI: %w", runErr)
	}
	return nil
}

// cmdFixed runs the single item described by a fixed-deployment file and
// reloads it when the file changes.
func cmdFixed(ctx context.Context, args []string, _ io.Writer) error {
	fs := newFlagSet("fixed")
	path := fs.String("config", "", "fixed deployment YAML file (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return apperr.Configuration("fixed", errors.New("--config is required"))
	}

	cfg, err := loadConfig(fs)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg, false)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	src, err := model.OpenFixed(*path)
	if err != nil {
		return err
	}
	dep, err := src.Load()
	if err != nil {
		return err
	}
	logWarnings(log, dep)

	st := store.NewStaticStore(dep.Item, dep.Profile)
	c := clock.New()
	d, err := newDispatcher(cfg, log, c, st)
	if err != nil {
		return err
	}
	return runFixed(ctx, log, src, dep, st, d, newPoller(cfg, log, c, st, d))
}

// runFixed watches the deployment file, performs the send-on-start and
// runs the loop until ctx is done. A reload replaces the single row,
// keeping its last_sent, and asks the loop for an immediate check.
func runFixed(ctx context.Context, log *zap.Logger, src *model.FixedSource, dep *model.FixedDeployment,
	st *store.StaticStore, d *dispatch.Dispatcher, p *poller.Poller) error {
	src.Watch(func(next *model.FixedDeployment, err error) {
		if err != nil {
			log.Error("reloading fixed config; keeping previous settings", zap.String("path", src.Path()), zap.Error(err))
			return
		}
		logWarnings(log, next)
		st.Replace(next.Item, next.Profile)
		log.Info("fixed config reloaded", zap.String("path", src.Path()))
		p.Trigger()
	})

	log.Info("fixed deployment started",
		zap.String("path", src.Path()),
		zap.String("subject", dep.Item.Subject),
		zap.String("schedule", dep.Item.ScheduleLabel()),
	)
	if dep.SendOnStart {
		// Failures are logged by the dispatcher and retried by the loop.
		_ = d.SendNow(ctx, model.FixedItemID)
	}
	return p.Run(ctx)
}

func logWarnings(log *zap.Logger, dep *model.FixedDeployment) {
	for _, w := range dep.Warnings {
		log.Warn(w)
	}
}

// cmdList prints every item with its next send.
func cmdList(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	e, err := openEnv(fs, false)
	if err != nil {
		return err
	}
	defer e.Close()

	items, err := e.store.ListItems(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, renderItems(items, e.clock.Now()))
	return err
}

// renderItems formats items as a table.
func renderItems(items []model.ScheduleItem, now time.Time) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "SUBJECT", "RECIPIENTS", "SCHEDULE", "TIME", "LAST SENT", "NEXT SEND")
	for _, item := range items {
		last := "never"
		if item.LastSent != nil {
			last = item.LastSent.In(now.Location()).Format(schedule.DisplayLayout)
		}
		at := item.ScheduleTime
		if item.Mode != model.ModeTime {
			at = "-"
		}
		t.Row(
			item.ID,
			item.Subject,
			model.JoinRecipients(item.Recipients),
			item.ScheduleLabel(),
			at,
			last,
			schedule.NextFire(item, now).String(),
		)
	}
	return t.String()
}

// cmdAdd validates and stores a new item.
func cmdAdd(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("add")
	subject := fs.String("subject", "", "email subject")
	to := fs.StringSlice("to", nil, "recipient address, repeatable or comma-separated")
	body := fs.String("body", "", "email body")
	attach := fs.String("attachment", "", "file path or s3://bucket/key")
	mode := fs.String("mode", string(model.ModeInterval), "Interval or Time")
	every := fs.Int("every", 0, "interval in minutes (Interval mode)")
	at := fs.String("at", "", "time of day HH:MM (Time mode)")
	freq := fs.String("frequency", string(model.FrequencyDaily), "Once, Daily, Weekly or Monthly (Time mode)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	item := model.ScheduleItem{
		Subject:    strings.TrimSpace(*subject),
		Recipients: model.SplitRecipients(strings.Join(*to, ",")),
		Body:       *body,
		Attachment: strings.TrimSpace(*attach),
	}
	switch {
	case strings.EqualFold(*mode, string(model.ModeTime)):
		item.Mode = model.ModeTime
		item.ScheduleTime = *at
		f, ok := model.ParseFrequency(*freq)
		if !ok {
			return apperr.Validation(map[string]string{"frequency": fmt.Sprintf("unknown frequency %q", *freq)})
		}
		item.Frequency = f
	case strings.EqualFold(*mode, string(model.ModeInterval)):
		item.Mode = model.ModeInterval
		item.IntervalMinutes = *every
	default:
		return apperr.Validation(map[string]string{"mode": fmt.Sprintf("unknown mode %q", *mode)})
	}
	if err := model.ValidateItem(item); err != nil {
		return err
	}

	e, err := openEnv(fs, false)
	if err != nil {
		return err
	}
	defer e.Close()

	created, err := e.store.InsertItem(ctx, item)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, created.ID)
	return err
}

// cmdRemove deletes the item named by the first argument.
func cmdRemove(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("remove")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := singleID(fs.Args())
	if err != nil {
		return err
	}
	e, err := openEnv(fs, false)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.store.DeleteItem(ctx, id); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "removed %s\n", id)
	return err
}

// cmdSend sends the item named by the first argument now.
func cmdSend(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("send")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := singleID(fs.Args())
	if err != nil {
		return err
	}
	e, err := openEnv(fs, false)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.dispatcher.SendNow(ctx, id); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "sent %s\n", id)
	return err
}

// cmdSMTP replaces the stored SMTP profile.
func cmdSMTP(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("smtp")
	server := fs.String("server", "", "SMTP host")
	port := fs.Int("port", 587, "SMTP port")
	address := fs.String("address", "", "sender address, also the login name")
	secret := fs.String("password", "", "SMTP password or app token")
	enc := fs.String("encryption", string(model.EncryptionSTARTTLS), "SSL, STARTTLS or NONE")
	if err := fs.Parse(args); err != nil {
		return err
	}

	encryption, err := model.ParseEncryption(*enc)
	if err != nil {
		return apperr.Validation(map[string]string{"encryption": err.Error()})
	}
	profile := model.SMTPProfile{
		Server:     strings.TrimSpace(*server),
		Port:       *port,
		Address:    strings.TrimSpace(*address),
		Secret:     *secret,
		Encryption: encryption,
	}
	if err := model.ValidateProfile(profile); err != nil {
		return err
	}

	e, err := openEnv(fs, false)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.store.SaveSMTPProfile(ctx, profile); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "saved SMTP profile for %s\n", profile.Address)
	return err
}

func singleID(args []string) (string, error) {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return "", apperr.Validation(map[string]string{"id": "expected exactly one item id"})
	}
	return args[0], nil
}
