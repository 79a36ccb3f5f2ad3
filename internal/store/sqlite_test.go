package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nhle/mail-scheduler/internal/credential"
	"github.com/nhle/mail-scheduler/internal/model"
	"github.com/nhle/mail-scheduler/internal/store"
	"github.com/nhle/mail-scheduler/internal/testutil"
)

func TestInsertGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	want := model.ScheduleItem{
		Subject:      "Quarterly numbers",
		Recipients:   []string{"cfo@example.com", "ceo@example.com"},
		Body:         "Line one\nLine two, with comma",
		Attachment:   "/srv/reports/q3.pdf",
		Mode:         model.ModeTime,
		Frequency:    model.FrequencyMonthly,
		ScheduleTime: "06:30",
	}
	created, err := s.InsertItem(ctx, want)
	if err != nil {
		t.Fatalf("InsertItem: %v", err)
	}
	if created.ID == "" {
		t.Fatal("InsertItem did not assign an id")
	}

	got, err := s.GetItem(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	assertSameFields(t, *got, want)
	if got.LastSent != nil {
		t.Fatalf("LastSent = %v, want nil", got.LastSent)
	}

	list, err := s.ListItems(ctx)
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("ListItems = %+v", list)
	}
	assertSameFields(t, list[0], want)
}

func TestInsertIgnoresCallerIDAndLastSent(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	item := testutil.IntervalItem("heartbeat", 5)
	item.ID = "chosen-by-caller"
	sent := time.Now()
	item.LastSent = &sent

	created, err := s.InsertItem(ctx, item)
	if err != nil {
		t.Fatalf("InsertItem: %v", err)
	}
	if created.ID == "chosen-by-caller" {
		t.Fatal("store kept caller id")
	}
	got, err := s.GetItem(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got.LastSent != nil {
		t.Fatal("insert persisted last_sent")
	}
}

func TestGetItemNotFound(t *testing.T) {
	s := testutil.NewTestStore(t)
	if _, err := s.GetItem(context.Background(), "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetItem missing: %v", err)
	}
}

func TestUpdateItemKeepsLastSent(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	created, err := s.InsertItem(ctx, testutil.IntervalItem("heartbeat", 5))
	if err != nil {
		t.Fatalf("InsertItem: %v", err)
	}
	stamp := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	if err := s.UpdateLastSent(ctx, created.ID, stamp); err != nil {
		t.Fatalf("UpdateLastSent: %v", err)
	}

	edited := *created
	edited.IntervalMinutes = 45
	edited.Subject = "heartbeat (slow)"
	edited.LastSent = nil
	if err := s.UpdateItem(ctx, edited); err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}

	got, err := s.GetItem(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got.IntervalMinutes != 45 || got.Subject != "heartbeat (slow)" {
		t.Fatalf("edit not applied: %+v", got)
	}
	if got.LastSent == nil || !got.LastSent.Equal(stamp) {
		t.Fatalf("LastSent = %v, want %v", got.LastSent, stamp)
	}
}

func TestUpdateAndDeleteMissing(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	item := testutil.IntervalItem("ghost", 5)
	item.ID = "missing"
	if err := s.UpdateItem(ctx, item); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("UpdateItem missing: %v", err)
	}
	if err := s.DeleteItem(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("DeleteItem missing: %v", err)
	}
	if err := s.UpdateLastSent(ctx, "missing", time.Now()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("UpdateLastSent missing: %v", err)
	}
}

func TestDeleteItem(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	a, _ := s.InsertItem(ctx, testutil.IntervalItem("a", 5))
	b, _ := s.InsertItem(ctx, testutil.IntervalItem("b", 5))
	if err := s.DeleteItem(ctx, a.ID); err != nil {
		t.Fatalf("DeleteItem: %v", err)
	}
	list, err := s.ListItems(ctx)
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(list) != 1 || list[0].ID != b.ID {
		t.Fatalf("ListItems after delete = %+v", list)
	}
}

func TestUpdateLastSentOnlyMovesForward(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	created, _ := s.InsertItem(ctx, testutil.IntervalItem("a", 5))
	later := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	earlier := later.Add(-time.Hour)

	if err := s.UpdateLastSent(ctx, created.ID, later); err != nil {
		t.Fatalf("UpdateLastSent: %v", err)
	}
	if err := s.UpdateLastSent(ctx, created.ID, earlier); err != nil {
		t.Fatalf("UpdateLastSent earlier: %v", err)
	}
	got, _ := s.GetItem(ctx, created.ID)
	if got.LastSent == nil || !got.LastSent.Equal(later) {
		t.Fatalf("LastSent = %v, want %v", got.LastSent, later)
	}
}

func TestConcurrentEditAndStamp(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	created, _ := s.InsertItem(ctx, testutil.IntervalItem("a", 5))
	stamp := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			edit := *created
			edit.IntervalMinutes = 10 + n
			if err := s.UpdateItem(ctx, edit); err != nil {
				t.Errorf("UpdateItem: %v", err)
			}
		}(i)
		go func(n int) {
			defer wg.Done()
			if err := s.UpdateLastSent(ctx, created.ID, stamp.Add(time.Duration(n)*time.Minute)); err != nil {
				t.Errorf("UpdateLastSent: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, _ := s.GetItem(ctx, created.ID)
	if want := stamp.Add(19 * time.Minute); got.LastSent == nil || !got.LastSent.Equal(want) {
		t.Fatalf("LastSent = %v, want %v", got.LastSent, want)
	}
	if got.IntervalMinutes < 10 || got.IntervalMinutes > 29 {
		t.Fatalf("IntervalMinutes = %d", got.IntervalMinutes)
	}
}

func TestSMTPProfileReplaceAll(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	if _, err := s.GetSMTPProfile(ctx); !errors.Is(err, store.ErrNoProfile) {
		t.Fatalf("GetSMTPProfile empty: %v", err)
	}

	first := model.SMTPProfile{Server: "smtp.one.test", Port: 465, Address: "a@one.test", Secret: "x", Encryption: model.EncryptionSSL}
	second := model.SMTPProfile{Server: "smtp.two.test", Port: 587, Address: "b@two.test", Secret: "y", Encryption: model.EncryptionSTARTTLS}
	if err := s.SaveSMTPProfile(ctx, first); err != nil {
		t.Fatalf("SaveSMTPProfile: %v", err)
	}
	if err := s.SaveSMTPProfile(ctx, second); err != nil {
		t.Fatalf("SaveSMTPProfile: %v", err)
	}

	got, err := s.GetSMTPProfile(ctx)
	if err != nil {
		t.Fatalf("GetSMTPProfile: %v", err)
	}
	if *got != second {
		t.Fatalf("profile = %+v, want %+v", *got, second)
	}
}

func TestSMTPProfileSecretInKeyring(t *testing.T) {
	ctx := context.Background()
	ring := credential.NewInMemory()
	s := testutil.NewTestStore(t, store.WithSecrets(ring))

	p := model.SMTPProfile{Server: "smtp.one.test", Port: 465, Address: "a@one.test", Secret: "hunter2", Encryption: model.EncryptionSSL}
	if err := s.SaveSMTPProfile(ctx, p); err != nil {
		t.Fatalf("SaveSMTPProfile: %v", err)
	}
	if v, err := ring.Get("smtp:a@one.test"); err != nil || v != "hunter2" {
		t.Fatalf("keyring value = %q, %v", v, err)
	}
	got, err := s.GetSMTPProfile(ctx)
	if err != nil {
		t.Fatalf("GetSMTPProfile: %v", err)
	}
	if got.Secret != "hunter2" {
		t.Fatalf("Secret = %q", got.Secret)
	}

	p.Address = "b@one.test"
	if err := s.SaveSMTPProfile(ctx, p); err != nil {
		t.Fatalf("SaveSMTPProfile: %v", err)
	}
	if _, err := ring.Get("smtp:a@one.test"); !errors.Is(err, credential.ErrNotFound) {
		t.Fatalf("stale secret kept: %v", err)
	}
}

func TestFileStorePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "scheduler.db")

	s, err := store.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	created, err := s.InsertItem(ctx, testutil.DailyItem("standup", "09:15"))
	if err != nil {
		t.Fatalf("InsertItem: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = store.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	defer s.Close()
	got, err := s.GetItem(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetItem after reopen: %v", err)
	}
	if got.ScheduleTime != "09:15" {
		t.Fatalf("ScheduleTime = %q", got.ScheduleTime)
	}
}

func assertSameFields(t *testing.T, got, want model.ScheduleItem) {
	t.Helper()
	if got.Subject != want.Subject || got.Body != want.Body || got.Attachment != want.Attachment {
		t.Fatalf("text fields differ: got %+v, want %+v", got, want)
	}
	if got.Mode != want.Mode || got.Frequency != want.Frequency ||
		got.ScheduleTime != want.ScheduleTime || got.IntervalMinutes != want.IntervalMinutes {
		t.Fatalf("schedule fields differ: got %+v, want %+v", got, want)
	}
	if len(got.Recipients) != len(want.Recipients) {
		t.Fatalf("recipients = %v, want %v", got.Recipients, want.Recipients)
	}
	for i := range want.Recipients {
		if got.Recipients[i] != want.Recipients[i] {
			t.Fatalf("recipients = %v, want %v", got.Recipients, want.Recipients)
		}
	}
}

// committedCheckRing records, on every Set, which server the store
// reports at that moment.
type committedCheckRing struct {
	*credential.Keyring
	store     *store.SQLiteStore
	seen      string
	lookupErr error
}

func (r *committedCheckRing) Set(key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p, err := r.store.GetSMTPProfile(ctx)
	if err != nil {
		r.lookupErr = err
	} else {
		r.seen = p.Server
	}
	return r.Keyring.Set(key, value)
}

func TestSMTPSecretWrittenAfterCommit(t *testing.T) {
	ring := &committedCheckRing{Keyring: credential.NewInMemory()}
	s := testutil.NewTestStore(t, store.WithSecrets(ring))
	ring.store = s

	p := model.SMTPProfile{Server: "smtp.one.test", Port: 465, Address: "a@one.test", Secret: "hunter2", Encryption: model.EncryptionSSL}
	if err := s.SaveSMTPProfile(context.Background(), p); err != nil {
		t.Fatalf("SaveSMTPProfile: %v", err)
	}
	if ring.lookupErr != nil || ring.seen != "smtp.one.test" {
		t.Fatalf("profile at keyring write = %q, %v", ring.seen, ring.lookupErr)
	}
}

type failingRing struct{ *credential.Keyring }

func (failingRing) Set(string, string) error { return errors.New("keyring locked") }

func TestSMTPSecretFailureReported(t *testing.T) {
	s := testutil.NewTestStore(t, store.WithSecrets(failingRing{credential.NewInMemory()}))
	p := model.SMTPProfile{Server: "smtp.one.test", Port: 465, Address: "a@one.test", Secret: "hunter2", Encryption: model.EncryptionSSL}
	if err := s.SaveSMTPProfile(context.Background(), p); err == nil {
		t.Fatal("keyring failure not reported")
	}
}
