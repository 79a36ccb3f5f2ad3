// Package dispatch sends one schedule item through the mail transport and
// records the send.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/mail-scheduler/internal/apperr"
	"github.com/nhle/mail-scheduler/internal/attachment"
	"github.com/nhle/mail-scheduler/internal/clock"
	"github.com/nhle/mail-scheduler/internal/mailer"
	"github.com/nhle/mail-scheduler/internal/model"
	"github.com/nhle/mail-scheduler/internal/schedule"
	"github.com/nhle/mail-scheduler/internal/store"
)

// DefaultTimeout bounds a single send.
const DefaultTimeout = 20 * time.Second

// ErrInFlight is returned when the item is already being sent.
var ErrInFlight = errors.New("send already in progress")

// ErrNotDue is returned by DispatchIfDue when the stored item no longer
// needs sending.
var ErrNotDue = errors.New("item is not due")

// ErrTimeout is wrapped when the transport did not finish in time.
var ErrTimeout = errors.New("send timed out")

// Dispatcher sends items and stamps last_sent on success.
type Dispatcher struct {
	store     store.Store
	transport mailer.Transport
	resolver  attachment.Resolver
	clock     clock.Clocker
	log       *zap.Logger
	timeout   time.Duration

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout overrides DefaultTimeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(dp *Dispatcher) {
		if d > 0 {
			dp.timeout = d
		}
	}
}

// WithClock sets the clock used for last_sent stamps.
func WithClock(c clock.Clocker) Option {
	return func(dp *Dispatcher) { dp.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(dp *Dispatcher) { dp.log = l }
}

// WithResolver sets the attachment resolver. Without one, items carrying
// an attachment fail to send.
func WithResolver(r attachment.Resolver) Option {
	return func(dp *Dispatcher) { dp.resolver = r }
}

// New creates a Dispatcher.
func New(s store.Store, t mailer.Transport, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:     s,
		transport: t,
		clock:     clock.New(),
		log:       zap.NewNop(),
		timeout:   DefaultTimeout,
		inFlight:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Timeout returns the per-send timeout.
func (d *Dispatcher) Timeout() time.Duration { return d.timeout }

// SendNow loads the item and sends it regardless of its schedule.
func (d *Dispatcher) SendNow(ctx context.Context, id string) error {
	item, err := d.store.GetItem(ctx, id)
	if err != nil {
		return err
	}
	return d.Dispatch(ctx, *item)
}

// Dispatch sends item and, on success, stamps its last_sent with the
// current time. Nothing is written when the send fails.
func (d *Dispatcher) Dispatch(ctx context.Context, item model.ScheduleItem) error {
	if !d.acquire(item.ID) {
		return fmt.Errorf("item %s: %w", item.ID, ErrInFlight)
	}
	defer d.release(item.ID)

	return d.dispatch(ctx, item)
}

// DispatchIfDue reloads the item while holding its in-flight lock and
// sends it only if it is still due. A send or edit that landed after the
// caller listed the item is therefore honoured.
func (d *Dispatcher) DispatchIfDue(ctx context.Context, id string) error {
	if !d.acquire(id) {
		return fmt.Errorf("item %s: %w", id, ErrInFlight)
	}
	defer d.release(id)

	item, err := d.store.GetItem(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("item %s removed: %w", id, ErrNotDue)
	}
	if err != nil {
		return err
	}
	if !schedule.IsDue(*item, d.clock.Now()) {
		return fmt.Errorf("item %s: %w", id, ErrNotDue)
	}
	return d.dispatch(ctx, *item)
}

// dispatch sends and stamps item. The caller holds the item's lock.
func (d *Dispatcher) dispatch(ctx context.Context, item model.ScheduleItem) error {
	log := d.log.With(zap.String("item_id", item.ID), zap.String("subject", item.Subject))

	if err := d.send(ctx, item); err != nil {
		log.Error("send failed", zap.Error(err))
		return err
	}

	// A completed send is recorded even if the caller is shutting down.
	sentAt := d.clock.Now()
	if err := d.store.UpdateLastSent(context.WithoutCancel(ctx), item.ID, sentAt); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("item removed while sending")
			return nil
		}
		log.Error("recording send", zap.Error(err))
		return err
	}

	log.Info("email sent",
		zap.Int("recipients", len(item.Recipients)),
		zap.Time("sent_at", sentAt),
	)
	return nil
}

func (d *Dispatcher) send(ctx context.Context, item model.ScheduleItem) error {
	profile, err := d.store.GetSMTPProfile(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNoProfile) {
			return apperr.Configuration("send", err)
		}
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	msg := mailer.Message{
		Subject: item.Subject,
		From:    profile.Address,
		To:      item.Recipients,
		Body:    item.Body,
	}
	if item.HasAttachment() {
		if d.resolver == nil {
			return apperr.Transport("attach", fmt.Errorf("%w: no resolver configured", attachment.ErrUnavailable))
		}
		a, err := d.resolver.Resolve(ctx, item.Attachment)
		if err != nil {
			return apperr.Transport("attach", err)
		}
		msg.Attachment = a
	}

	done := make(chan error, 1)
	go func() {
		done <- d.transport.Send(ctx, *profile, msg)
	}()

	return d.await(ctx, done)
}

// await returns the transport's result, or a timeout once ctx is done. A
// result that is ready when ctx ends still wins, so a delivered message is
// never reported as failed.
func (d *Dispatcher) await(ctx context.Context, done <-chan error) error {
	select {
	case err := <-done:
		return apperr.Transport("send", err)
	case <-ctx.Done():
		select {
		case err := <-done:
			return apperr.Transport("send", err)
		default:
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return apperr.Transport("send", fmt.Errorf("%w after %s", ErrTimeout, d.timeout))
		}
		return apperr.Transport("send", ctx.Err())
	}
}

func (d *Dispatcher) acquire(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.inFlight[id]; busy {
		return false
	}
	d.inFlight[id] = struct{}{}
	return true
}

func (d *Dispatcher) release(id string) {
	d.mu.Lock()
	delete(d.inFlight, id)
	d.mu.Unlock()
}
