package model

import (
	"strconv"
	"strings"
	"time"
)

// Mode selects which schedule fields of an item are meaningful.
type Mode string

// Mode constants.
const (
	ModeTime     Mode = "Time"
	ModeInterval Mode = "Interval"
)

// Frequency is the recurrence of a Time-mode item.
type Frequency string

// Frequency constants.
const (
	FrequencyOnce    Frequency = "Once"
	FrequencyDaily   Frequency = "Daily"
	FrequencyWeekly  Frequency = "Weekly"
	FrequencyMonthly Frequency = "Monthly"
)

// Modes lists the accepted modes in display order.
var Modes = []Mode{ModeTime, ModeInterval}

// Frequencies lists the accepted frequencies in display order.
var Frequencies = []Frequency{
	FrequencyOnce,
	FrequencyDaily,
	FrequencyWeekly,
	FrequencyMonthly,
}

// ScheduleItem is one schedulable email message.
type ScheduleItem struct {
	ID         string   `json:"id" db:"id"`
	Subject    string   `json:"subject" db:"subject"`
	Recipients []string `json:"recipients" db:"-"`
	Body       string   `json:"body" db:"body"`

	// Attachment is an optional reference (file path or s3://bucket/key)
	// resolved at send time.
	Attachment string `json:"attachment,omitempty" db:"attachment"`

	Mode Mode `json:"mode" db:"mode"`

	// Frequency and ScheduleTime are meaningful only for ModeTime.
	Frequency    Frequency `json:"frequency,omitempty" db:"frequency"`
	ScheduleTime string    `json:"schedule_time,omitempty" db:"schedule_time"`

	// IntervalMinutes is meaningful only for ModeInterval.
	IntervalMinutes int `json:"interval_minutes,omitempty" db:"interval_minutes"`

	LastSent  *time.Time `json:"last_sent,omitempty" db:"last_sent"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// HasAttachment reports whether an attachment reference is set.
func (i ScheduleItem) HasAttachment() bool {
	return strings.TrimSpace(i.Attachment) != ""
}

// ScheduleLabel describes the recurrence for list views,
// e.g. "Daily" or "Every 30 min".
func (i ScheduleItem) ScheduleLabel() string {
	if i.Mode == ModeInterval {
		if i.IntervalMinutes > 0 {
			return "Every " + strconv.Itoa(i.IntervalMinutes) + " min"
		}
		return "N/A"
	}
	return string(i.Frequency)
}

// JoinRecipients renders recipients as the comma-separated form used
// for storage and forms.
func JoinRecipients(recipients []string) string {
	return strings.Join(recipients, ", ")
}

// SplitRecipients parses a comma-separated address list, dropping blanks.
func SplitRecipients(s string) []string {
	var out []string
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// ParseFrequency matches s case-insensitively against the known frequencies.
func ParseFrequency(s string) (Frequency, bool) {
	for _, f := range Frequencies {
		if strings.EqualFold(strings.TrimSpace(s), string(f)) {
			return f, true
		}
	}
	return "", false
}
