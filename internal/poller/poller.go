// Package poller runs the periodic due check and hands due items to the
// dispatcher.
package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/mail-scheduler/internal/clock"
	"github.com/nhle/mail-scheduler/internal/dispatch"
	"github.com/nhle/mail-scheduler/internal/model"
	"github.com/nhle/mail-scheduler/internal/schedule"
	"github.com/nhle/mail-scheduler/internal/store"
)

// Interval is the time between ticks.
const Interval = 60 * time.Second

// DefaultWorkers bounds concurrent dispatches within one tick.
const DefaultWorkers = 4

// eventBuffer is the capacity of the events channel.
const eventBuffer = 64

// EventKind identifies what happened.
type EventKind int

const (
	EventTickFinished EventKind = iota
	EventItemSent
	EventItemFailed
)

// Event is published after each dispatch and at the end of every tick. It
// doubles as a tea.Msg for interactive consumers.
type Event struct {
	Kind    EventKind
	At      time.Time
	ItemID  string
	Subject string
	Err     error

	// Tick totals, set on EventTickFinished.
	Due    int
	Sent   int
	Failed int
}

// Dispatcher sends one item if the stored copy is still due.
type Dispatcher interface {
	DispatchIfDue(ctx context.Context, id string) error
}

// Poller evaluates every item on a fixed tick and dispatches the due ones.
type Poller struct {
	store      store.Store
	dispatcher Dispatcher
	clock      clock.Clocker
	log        *zap.Logger
	workers    int
	interval   time.Duration

	events  chan Event
	trigger chan struct{}
}

// Option configures a Poller.
type Option func(*Poller)

// WithWorkers sets the dispatch parallelism. Values below 1 mean 1.
func WithWorkers(n int) Option {
	return func(p *Poller) {
		if n < 1 {
			n = 1
		}
		p.workers = n
	}
}

// WithInterval overrides Interval.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithClock sets the clock the due check runs against.
func WithClock(c clock.Clocker) Option {
	return func(p *Poller) { p.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Poller) { p.log = l }
}

// New creates a Poller.
func New(s store.Store, d Dispatcher, opts ...Option) *Poller {
	p := &Poller{
		store:      s,
		dispatcher: d,
		clock:      clock.New(),
		log:        zap.NewNop(),
		workers:    DefaultWorkers,
		interval:   Interval,
		events:     make(chan Event, eventBuffer),
		trigger:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Events returns the event stream. Events are dropped when it is full.
func (p *Poller) Events() <-chan Event {
	return p.events
}

// WaitForEvent returns a tea.Cmd that delivers the next Event. Call it
// again after handling each event to keep listening.
func (p *Poller) WaitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-p.events
		if !ok {
			return nil
		}
		return ev
	}
}

// Trigger requests an extra tick as soon as the loop is idle.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Run ticks immediately and then every interval until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info("poll loop started", zap.Duration("interval", p.interval), zap.Int("workers", p.workers))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			p.log.Info("poll loop stopped")
			return nil
		case <-ticker.C:
			p.Tick(ctx)
		case <-p.trigger:
			p.Tick(ctx)
		}
	}
}

// Tick runs one due check and waits for the resulting dispatches.
func (p *Poller) Tick(ctx context.Context) {
	now := p.clock.Now()

	items, err := p.store.ListItems(ctx)
	if err != nil {
		p.log.Error("listing items", zap.Error(err))
		p.publish(Event{Kind: EventTickFinished, At: now, Err: err})
		return
	}

	due := lo.Filter(items, func(item model.ScheduleItem, _ int) bool {
		return schedule.IsDue(item, now)
	})

	var sent, failed atomic.Int32
	var g errgroup.Group
	g.SetLimit(p.workers)
	for _, item := range due {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			err := p.dispatcher.DispatchIfDue(ctx, item.ID)
			switch {
			case err == nil:
				sent.Add(1)
				p.publish(Event{Kind: EventItemSent, At: p.clock.Now(), ItemID: item.ID, Subject: item.Subject})
			case errors.Is(err, dispatch.ErrInFlight):
				p.log.Debug("skipping item already in flight", zap.String("item_id", item.ID))
			case errors.Is(err, dispatch.ErrNotDue):
				p.log.Debug("skipping item no longer due", zap.String("item_id", item.ID))
			default:
				failed.Add(1)
				p.publish(Event{Kind: EventItemFailed, At: p.clock.Now(), ItemID: item.ID, Subject: item.Subject, Err: err})
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(due) > 0 {
		p.log.Info("tick finished",
			zap.Int("due", len(due)),
			zap.Int32("sent", sent.Load()),
			zap.Int32("failed", failed.Load()),
		)
	}
	p.publish(Event{
		Kind:   EventTickFinished,
		At:     now,
		Due:    len(due),
		Sent:   int(sent.Load()),
		Failed: int(failed.Load()),
	})
}

// publish sends ev without blocking the loop.
func (p *Poller) publish(ev Event) {
	select {
	case p.events <- ev:
	default:
	}
}
