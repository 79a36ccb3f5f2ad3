package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/nhle/mail-scheduler/internal/apperr"
)

// FixedItemID is the id of the single item of a fixed deployment.
const FixedItemID = "fixed"

// Fixed-deployment fallbacks.
const (
	DefaultFixedInterval = 15
	DefaultFixedTime     = "05:00"
)

// FixedDeployment is a single statically configured item and SMTP profile.
type FixedDeployment struct {
	Profile     SMTPProfile
	Item        ScheduleItem
	SendOnStart bool

	// Warnings lists fallbacks that were applied while loading.
	Warnings []string
}

// FixedSource reads a fixed-deployment YAML file:
//
//	smtp:
//	  server: smtp.example.com
//	  port: 587
//	  email: me@example.com
//	  password: secret
//	  encryption: STARTTLS
//	email:
//	  to: a@example.com, b@example.com
//	  subject: Check-in
//	  body: Still alive.
//	  attachment: /path/to/file.pdf
//	schedule:
//	  mode: timer        # timer | interval | time
//	  interval: 15       # minutes, timer mode
//	  time: "05:00"      # time mode
//	  frequency: Daily   # time mode
//	  send_on_start: true
type FixedSource struct {
	path string
	v    *viper.Viper
}

// OpenFixed reads the file at path. A missing or unreadable file is a
// configuration error.
func OpenFixed(path string) (*FixedSource, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("smtp.encryption", string(EncryptionSTARTTLS))
	v.SetDefault("smtp.password", "")
	v.SetDefault("schedule.mode", "timer")
	v.SetDefault("schedule.frequency", string(FrequencyDaily))
	v.SetDefault("schedule.send_on_start", true)

	if err := v.ReadInConfig(); err != nil {
		return nil, apperr.Configuration("reading "+path, err)
	}
	return &FixedSource{path: path, v: v}, nil
}

// Path returns the file being read.
func (s *FixedSource) Path() string {
	return s.path
}

// Load builds the deployment from the current file contents.
func (s *FixedSource) Load() (*FixedDeployment, error) {
	return parseFixed(s.v)
}

// Watch reloads the file on every change and calls fn with the result.
// fn runs on the watcher goroutine.
func (s *FixedSource) Watch(fn func(*FixedDeployment, error)) {
	s.v.OnConfigChange(func(fsnotify.Event) {
		fn(parseFixed(s.v))
	})
	s.v.WatchConfig()
}

func parseFixed(v *viper.Viper) (*FixedDeployment, error) {
	d := &FixedDeployment{SendOnStart: v.GetBool("schedule.send_on_start")}

	enc, err := ParseEncryption(v.GetString("smtp.encryption"))
	if err != nil {
		return nil, apperr.Configuration("smtp.encryption", err)
	}
	d.Profile = SMTPProfile{
		Server:     strings.TrimSpace(v.GetString("smtp.server")),
		Address:    strings.TrimSpace(v.GetString("smtp.email")),
		Secret:     v.GetString("smtp.password"),
		Encryption: enc,
	}
	if d.Profile.Server == "" {
		return nil, apperr.Configuration("smtp.server is required", nil)
	}
	if d.Profile.Address == "" {
		return nil, apperr.Configuration("smtp.email is required", nil)
	}
	port, err := strconv.Atoi(strings.TrimSpace(v.GetString("smtp.port")))
	if err != nil || port <= 0 || port > 65535 {
		return nil, apperr.Configuration(fmt.Sprintf("smtp.port %q is not a valid port", v.GetString("smtp.port")), nil)
	}
	d.Profile.Port = port

	recipients := recipientsOf(v.Get("email.to"))
	if len(recipients) == 0 {
		return nil, apperr.Configuration("email.to is required", nil)
	}

	item := ScheduleItem{
		ID:         FixedItemID,
		Subject:    v.GetString("email.subject"),
		Recipients: recipients,
		Body:       v.GetString("email.body"),
		Attachment: strings.TrimSpace(v.GetString("email.attachment")),
	}

	switch mode := strings.ToLower(strings.TrimSpace(v.GetString("schedule.mode"))); mode {
	case "timer", "interval":
		item.Mode = ModeInterval
		n, err := strconv.Atoi(strings.TrimSpace(v.GetString("schedule.interval")))
		if err != nil || n <= 0 {
			d.Warnings = append(d.Warnings, fmt.Sprintf("invalid or missing schedule.interval, defaulting to %d minutes", DefaultFixedInterval))
			n = DefaultFixedInterval
		}
		item.IntervalMinutes = n
	case "time":
		item.Mode = ModeTime
		item.ScheduleTime = strings.TrimSpace(v.GetString("schedule.time"))
		if item.ScheduleTime == "" {
			d.Warnings = append(d.Warnings, "missing schedule.time, defaulting to "+DefaultFixedTime)
			item.ScheduleTime = DefaultFixedTime
		}
		if _, _, ok := ParseClock(item.ScheduleTime); !ok {
			return nil, apperr.Configuration(fmt.Sprintf("schedule.time %q is not HH:MM", item.ScheduleTime), nil)
		}
		freq, ok := ParseFrequency(v.GetString("schedule.frequency"))
		if !ok {
			return nil, apperr.Configuration(fmt.Sprintf("schedule.frequency %q is not Once, Daily, Weekly or Monthly", v.GetString("schedule.frequency")), nil)
		}
		item.Frequency = freq
	default:
		return nil, apperr.Configuration(fmt.Sprintf("invalid schedule.mode %q (want timer or time)", mode), nil)
	}

	if err := ValidateItem(item); err != nil {
		return nil, apperr.Configuration("email", err)
	}
	d.Item = item
	return d, nil
}

// recipientsOf accepts either a comma-separated string or a YAML list.
func recipientsOf(raw any) []string {
	switch val := raw.(type) {
	case string:
		return SplitRecipients(val)
	case []any:
		var out []string
		for _, r := range val {
			out = append(out, SplitRecipients(fmt.Sprint(r))...)
		}
		return out
	case []string:
		return SplitRecipients(strings.Join(val, ","))
	default:
		return nil
	}
}
