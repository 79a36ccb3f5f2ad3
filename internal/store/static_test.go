package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nhle/mail-scheduler/internal/model"
	"github.com/nhle/mail-scheduler/internal/store"
	"github.com/nhle/mail-scheduler/internal/testutil"
)

func newStatic() *store.StaticStore {
	item := testutil.IntervalItem("check-in", 15)
	item.ID = model.FixedItemID
	return store.NewStaticStore(item, testutil.Profile("smtp.example.com", 587))
}

func TestStaticStoreSingleRow(t *testing.T) {
	ctx := context.Background()
	s := newStatic()

	items, err := s.ListItems(ctx)
	if err != nil || len(items) != 1 {
		t.Fatalf("ListItems = %v, %v", items, err)
	}
	if items[0].ID != model.FixedItemID || items[0].LastSent != nil {
		t.Fatalf("item = %+v", items[0])
	}
	if _, err := s.InsertItem(ctx, testutil.IntervalItem("extra", 5)); err == nil {
		t.Fatal("InsertItem should be rejected")
	}
	if err := s.DeleteItem(ctx, model.FixedItemID); err == nil {
		t.Fatal("DeleteItem should be rejected")
	}
	if _, err := s.GetItem(ctx, "other"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetItem other: %v", err)
	}
}

func TestStaticStoreStampAndReplace(t *testing.T) {
	ctx := context.Background()
	s := newStatic()

	stamp := time.Date(2024, 6, 1, 5, 0, 0, 0, time.UTC)
	if err := s.UpdateLastSent(ctx, model.FixedItemID, stamp); err != nil {
		t.Fatalf("UpdateLastSent: %v", err)
	}
	if err := s.UpdateLastSent(ctx, model.FixedItemID, stamp.Add(-time.Hour)); err != nil {
		t.Fatalf("UpdateLastSent earlier: %v", err)
	}

	reloaded := testutil.DailyItem("check-in", "05:00")
	reloaded.ID = "ignored"
	s.Replace(reloaded, testutil.Profile("smtp.other.test", 25))

	got, err := s.GetItem(ctx, model.FixedItemID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got.Mode != model.ModeTime || got.ScheduleTime != "05:00" {
		t.Fatalf("Replace not applied: %+v", got)
	}
	if got.LastSent == nil || !got.LastSent.Equal(stamp) {
		t.Fatalf("LastSent = %v, want %v", got.LastSent, stamp)
	}
	p, _ := s.GetSMTPProfile(ctx)
	if p.Server != "smtp.other.test" {
		t.Fatalf("profile = %+v", p)
	}
}

func TestStaticStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := newStatic()

	items, _ := s.ListItems(ctx)
	items[0].Recipients[0] = "mutated@example.com"

	again, _ := s.GetItem(ctx, model.FixedItemID)
	if again.Recipients[0] == "mutated@example.com" {
		t.Fatal("ListItems leaked internal slice")
	}
}
