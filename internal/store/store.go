package store

import (
	"context"
	"errors"
	"time"

	"github.com/nhle/mail-scheduler/internal/apperr"
	"github.com/nhle/mail-scheduler/internal/model"
)

// ErrNotFound is returned when an item id does not exist.
var ErrNotFound = apperr.ErrNotFound

// ErrNoProfile is returned by GetSMTPProfile before any profile is saved.
var ErrNoProfile = errors.New("smtp profile not configured")

// Store is durable storage for schedule items and the SMTP profile.
// It holds no scheduling policy.
type Store interface {
	// ListItems returns every item ordered by creation time.
	ListItems(ctx context.Context) ([]model.ScheduleItem, error)
	GetItem(ctx context.Context, id string) (*model.ScheduleItem, error)

	// InsertItem stores a new item, assigning its id and clearing
	// last_sent, and returns the stored copy.
	InsertItem(ctx context.Context, item model.ScheduleItem) (*model.ScheduleItem, error)

	// UpdateItem rewrites the editable fields of an existing item.
	// last_sent is never touched.
	UpdateItem(ctx context.Context, item model.ScheduleItem) error
	DeleteItem(ctx context.Context, id string) error

	// UpdateLastSent stamps a successful send. A stamp older than the
	// stored one is ignored.
	UpdateLastSent(ctx context.Context, id string, ts time.Time) error

	GetSMTPProfile(ctx context.Context) (*model.SMTPProfile, error)

	// SaveSMTPProfile replaces the single stored profile.
	SaveSMTPProfile(ctx context.Context, profile model.SMTPProfile) error

	Close() error
}

// SecretStore keeps SMTP secrets outside the item database.
type SecretStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// secretKey is the SecretStore key of the profile for address.
func secretKey(address string) string {
	return "smtp:" + address
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*StaticStore)(nil)
)
