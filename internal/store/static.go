package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nhle/mail-scheduler/internal/model"
)

// StaticStore is an in-memory Store for the fixed deployment: one item
// and one profile, both supplied by a config file. Items cannot be added
// or removed; Replace swaps the configuration while keeping last_sent.
type StaticStore struct {
	mu      sync.RWMutex
	item    model.ScheduleItem
	profile model.SMTPProfile
}

// NewStaticStore returns a store holding exactly item and profile.
func NewStaticStore(item model.ScheduleItem, profile model.SMTPProfile) *StaticStore {
	item.LastSent = nil
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	return &StaticStore{item: item, profile: profile}
}

// Replace installs a reloaded configuration. The item keeps its id and
// last_sent.
func (s *StaticStore) Replace(item model.ScheduleItem, profile model.SMTPProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item.ID = s.item.ID
	item.LastSent = s.item.LastSent
	item.CreatedAt = s.item.CreatedAt
	item.UpdatedAt = time.Now().UTC()
	s.item = item
	s.profile = profile
}

// ListItems returns the single item.
func (s *StaticStore) ListItems(context.Context) ([]model.ScheduleItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return []model.ScheduleItem{s.copyItem()}, nil
}

// GetItem returns the item if id matches.
func (s *StaticStore) GetItem(_ context.Context, id string) (*model.ScheduleItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id != s.item.ID {
		return nil, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	item := s.copyItem()
	return &item, nil
}

// InsertItem is not supported by a fixed deployment.
func (s *StaticStore) InsertItem(context.Context, model.ScheduleItem) (*model.ScheduleItem, error) {
	return nil, fmt.Errorf("fixed deployment: items are defined by the config file")
}

// UpdateItem rewrites the item's editable fields.
func (s *StaticStore) UpdateItem(_ context.Context, item model.ScheduleItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID != s.item.ID {
		return fmt.Errorf("item %s: %w", item.ID, ErrNotFound)
	}
	item.LastSent = s.item.LastSent
	item.CreatedAt = s.item.CreatedAt
	item.UpdatedAt = time.Now().UTC()
	s.item = item
	return nil
}

// DeleteItem is not supported by a fixed deployment.
func (s *StaticStore) DeleteItem(context.Context, string) error {
	return fmt.Errorf("fixed deployment: items are defined by the config file")
}

// UpdateLastSent stamps the item, ignoring stamps older than the current one.
func (s *StaticStore) UpdateLastSent(_ context.Context, id string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != s.item.ID {
		return fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	if s.item.LastSent != nil && ts.Before(*s.item.LastSent) {
		return nil
	}
	ts = ts.UTC()
	s.item.LastSent = &ts
	return nil
}

// GetSMTPProfile returns the configured profile.
func (s *StaticStore) GetSMTPProfile(context.Context) (*model.SMTPProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p := s.profile
	return &p, nil
}

// SaveSMTPProfile replaces the in-memory profile.
func (s *StaticStore) SaveSMTPProfile(_ context.Context, p model.SMTPProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = p
	return nil
}

// Close is a no-op.
func (s *StaticStore) Close() error { return nil }

// copyItem returns a copy that shares no slices or pointers with the store.
// Callers must hold mu.
func (s *StaticStore) copyItem() model.ScheduleItem {
	item := s.item
	item.Recipients = append([]string(nil), s.item.Recipients...)
	if s.item.LastSent != nil {
		ts := *s.item.LastSent
		item.LastSent = &ts
	}
	return item
}
