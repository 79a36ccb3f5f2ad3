package model

import (
	"testing"

	"github.com/nhle/mail-scheduler/internal/apperr"
)

func validItem() ScheduleItem {
	return ScheduleItem{
		Subject:      "Weekly report",
		Recipients:   []string{"ops@example.com", "lead@example.com"},
		Body:         "See attached.",
		Mode:         ModeTime,
		Frequency:    FrequencyDaily,
		ScheduleTime: "09:00",
	}
}

func TestValidateItemAccepts(t *testing.T) {
	if err := ValidateItem(validItem()); err != nil {
		t.Fatalf("ValidateItem: %v", err)
	}

	interval := validItem()
	interval.Mode = ModeInterval
	interval.Frequency = ""
	interval.ScheduleTime = ""
	interval.IntervalMinutes = 15
	if err := ValidateItem(interval); err != nil {
		t.Fatalf("ValidateItem interval: %v", err)
	}
}

func TestValidateItemRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ScheduleItem)
		field  string
	}{
		{"missing subject", func(i *ScheduleItem) { i.Subject = "" }, "subject"},
		{"no recipients", func(i *ScheduleItem) { i.Recipients = nil }, "recipients"},
		{"bad recipient", func(i *ScheduleItem) { i.Recipients = []string{"not-an-address"} }, "recipients[0]"},
		{"unknown mode", func(i *ScheduleItem) { i.Mode = "Cron" }, "mode"},
		{"bad time", func(i *ScheduleItem) { i.ScheduleTime = "25:00" }, "schedule_time"},
		{"missing time", func(i *ScheduleItem) { i.ScheduleTime = "" }, "schedule_time"},
		{"unknown frequency", func(i *ScheduleItem) { i.Frequency = "Yearly" }, "frequency"},
		{"zero interval", func(i *ScheduleItem) {
			i.Mode = ModeInterval
			i.IntervalMinutes = 0
		}, "interval_minutes"},
		{"negative interval", func(i *ScheduleItem) {
			i.Mode = ModeInterval
			i.IntervalMinutes = -3
		}, "interval_minutes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := validItem()
			tt.mutate(&item)
			err := ValidateItem(item)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !apperr.Is(err, apperr.KindValidation) {
				t.Fatalf("error kind: %v", err)
			}
			fields := apperr.FieldsOf(err)
			if _, ok := fields[tt.field]; !ok {
				t.Fatalf("fields = %v, want key %q", fields, tt.field)
			}
		})
	}
}

func TestValidateProfile(t *testing.T) {
	p := SMTPProfile{Server: "smtp.example.com", Port: 465, Address: "me@example.com", Encryption: EncryptionSSL}
	if err := ValidateProfile(p); err != nil {
		t.Fatalf("ValidateProfile: %v", err)
	}

	p.Port = 0
	p.Encryption = "PLAIN"
	err := ValidateProfile(p)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	fields := apperr.FieldsOf(err)
	for _, k := range []string{"port", "encryption"} {
		if _, ok := fields[k]; !ok {
			t.Fatalf("fields = %v, missing %q", fields, k)
		}
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in     string
		h, m   int
		wantOK bool
	}{
		{"09:00", 9, 0, true},
		{"9:5", 9, 5, true},
		{"23:59", 23, 59, true},
		{"00:00", 0, 0, true},
		{"24:00", 0, 0, false},
		{"12:60", 0, 0, false},
		{"-1:00", 0, 0, false},
		{"1200", 0, 0, false},
		{"", 0, 0, false},
		{"ab:cd", 0, 0, false},
	}
	for _, tt := range tests {
		h, m, ok := ParseClock(tt.in)
		if ok != tt.wantOK || (ok && (h != tt.h || m != tt.m)) {
			t.Fatalf("ParseClock(%q) = %d, %d, %v", tt.in, h, m, ok)
		}
	}
}

func TestSplitRecipients(t *testing.T) {
	got := SplitRecipients(" a@example.com, ,b@example.com ,")
	if len(got) != 2 || got[0] != "a@example.com" || got[1] != "b@example.com" {
		t.Fatalf("SplitRecipients = %q", got)
	}
	if JoinRecipients(got) != "a@example.com, b@example.com" {
		t.Fatalf("JoinRecipients = %q", JoinRecipients(got))
	}
}

func TestParseEncryption(t *testing.T) {
	for in, want := range map[string]Encryption{
		"":         EncryptionSSL,
		"ssl":      EncryptionSSL,
		"StartTLS": EncryptionSTARTTLS,
		"none":     EncryptionNone,
	} {
		got, err := ParseEncryption(in)
		if err != nil || got != want {
			t.Fatalf("ParseEncryption(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseEncryption("ssh"); err == nil {
		t.Fatal("expected error for unknown encryption")
	}
}
