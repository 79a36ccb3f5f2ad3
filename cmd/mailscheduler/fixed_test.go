package main

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/mail-scheduler/internal/dispatch"
	"github.com/nhle/mail-scheduler/internal/mailer"
	"github.com/nhle/mail-scheduler/internal/model"
	"github.com/nhle/mail-scheduler/internal/poller"
	"github.com/nhle/mail-scheduler/internal/store"
)

const fixedFile = `smtp:
  server: smtp.example.com
  port: 587
  email: me@example.com
  password: hunter2
email:
  to: a@example.com
  subject: Check-in
  body: Still alive.
schedule:
  mode: timer
  send_on_start: true
`

type countingTransport struct {
	mu   sync.Mutex
	sent int
}

func (c *countingTransport) Send(context.Context, model.SMTPProfile, mailer.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent++
	return nil
}

func (c *countingTransport) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent
}

// eventually polls cond every 10ms until it holds or 5s pass.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRunFixedSendsOnStartAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "check.yaml")
	if err := os.WriteFile(path, []byte(fixedFile+"  interval: 15\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	src, err := model.OpenFixed(path)
	if err != nil {
		t.Fatalf("OpenFixed: %v", err)
	}
	dep, err := src.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	st := store.NewStaticStore(dep.Item, dep.Profile)
	tr := &countingTransport{}
	d := dispatch.New(st, tr)
	p := poller.New(st, d, poller.WithInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runFixed(ctx, zap.NewNop(), src, dep, st, d, p) }()

	var stamp time.Time
	eventually(t, "send-on-start stamp", func() bool {
		item, err := st.GetItem(context.Background(), model.FixedItemID)
		if err != nil || item.LastSent == nil {
			return false
		}
		stamp = *item.LastSent
		return true
	})

	if err := os.WriteFile(path, []byte(fixedFile+"  interval: 45\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	eventually(t, "reloaded interval", func() bool {
		item, err := st.GetItem(context.Background(), model.FixedItemID)
		return err == nil && item.IntervalMinutes == 45
	})

	item, _ := st.GetItem(context.Background(), model.FixedItemID)
	if item.LastSent == nil || !item.LastSent.Equal(stamp) {
		t.Fatalf("LastSent after reload = %v, want %v", item.LastSent, stamp)
	}
	if n := tr.count(); n != 1 {
		t.Fatalf("sent %d messages, want only the send-on-start", n)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runFixed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runFixed did not stop after cancel")
	}
}
