package testutil

import "github.com/nhle/mail-scheduler/internal/model"

// IntervalItem returns a valid Interval-mode item firing every minutes.
func IntervalItem(subject string, minutes int) model.ScheduleItem {
	return model.ScheduleItem{
		Subject:         subject,
		Recipients:      []string{"ops@example.com", "lead@example.com"},
		Body:            "Status update for " + subject,
		Mode:            model.ModeInterval,
		IntervalMinutes: minutes,
	}
}

// DailyItem returns a valid Daily item firing at hhmm.
func DailyItem(subject, hhmm string) model.ScheduleItem {
	return model.ScheduleItem{
		Subject:      subject,
		Recipients:   []string{"ops@example.com"},
		Body:         "Daily note: " + subject,
		Mode:         model.ModeTime,
		Frequency:    model.FrequencyDaily,
		ScheduleTime: hhmm,
	}
}

// Profile returns a plain SMTP profile pointing at addr's host and port.
func Profile(host string, port int) model.SMTPProfile {
	return model.SMTPProfile{
		Server:     host,
		Port:       port,
		Address:    "scheduler@example.com",
		Secret:     "s3cret",
		Encryption: model.EncryptionNone,
	}
}
