// Package schedule decides when a ScheduleItem fires.
//
// Everything here is a pure function of the item and the supplied "now":
// no I/O, no hidden state, no errors. Malformed items are simply never due
// and report NotApplicable as their next fire. All times are naive local
// wall-clock; the slot for a time of day is built in now's location.
package schedule

import (
	"time"

	"github.com/nhle/mail-scheduler/internal/model"
)

// Recurrence periods for the calendar-free frequencies.
const (
	WeekPeriod  = 7 * 24 * time.Hour
	MonthPeriod = 30 * 24 * time.Hour
)

// DisplayLayout is the layout used when rendering a fire time.
const DisplayLayout = "2006-01-02 15:04"

// Kind classifies a Next value.
type Kind int

const (
	// KindAt means Next.At holds the estimated fire time.
	KindAt Kind = iota
	// KindNow means an interval item that has never been sent.
	KindNow
	// KindNoFuture means a one-off item that will not fire again.
	KindNoFuture
	// KindNotApplicable means the item's schedule is invalid.
	KindNotApplicable
)

// Next is the estimate returned by NextFire.
type Next struct {
	Kind Kind
	At   time.Time
}

// String renders the estimate for list views.
func (n Next) String() string {
	switch n.Kind {
	case KindAt:
		return n.At.Format(DisplayLayout)
	case KindNow:
		return "Now"
	case KindNoFuture:
		return "No future"
	default:
		return "N/A"
	}
}

func at(t time.Time) Next { return Next{Kind: KindAt, At: t} }

// IsDue reports whether item should be sent at now.
func IsDue(item model.ScheduleItem, now time.Time) bool {
	last := lastSent(item, now)

	switch item.Mode {
	case model.ModeInterval:
		if item.IntervalMinutes <= 0 {
			return false
		}
		if last == nil {
			return true
		}
		return now.Sub(*last) >= interval(item)

	case model.ModeTime:
		slot, ok := Slot(item.ScheduleTime, now)
		if !ok || now.Before(slot) {
			return false
		}
		switch item.Frequency {
		case model.FrequencyOnce:
			return last == nil
		case model.FrequencyDaily:
			return last == nil || dateBefore(*last, now)
		case model.FrequencyWeekly:
			return last == nil || now.Sub(*last) >= WeekPeriod
		case model.FrequencyMonthly:
			return last == nil || now.Sub(*last) >= MonthPeriod
		}
	}
	return false
}

// NextFire estimates when item fires next, as seen from now.
func NextFire(item model.ScheduleItem, now time.Time) Next {
	last := lastSent(item, now)

	switch item.Mode {
	case model.ModeInterval:
		if item.IntervalMinutes <= 0 {
			return Next{Kind: KindNotApplicable}
		}
		if last == nil {
			return Next{Kind: KindNow}
		}
		return at(last.Add(interval(item)))

	case model.ModeTime:
		slot, ok := Slot(item.ScheduleTime, now)
		if !ok {
			return Next{Kind: KindNotApplicable}
		}
		switch item.Frequency {
		case model.FrequencyOnce:
			if last == nil && !now.After(slot) {
				return at(slot)
			}
			return Next{Kind: KindNoFuture}
		case model.FrequencyDaily:
			if !now.After(slot) || last == nil || dateBefore(*last, now) {
				return at(slot)
			}
			return at(slot.AddDate(0, 0, 1))
		case model.FrequencyWeekly:
			return periodic(last, slot, now, WeekPeriod)
		case model.FrequencyMonthly:
			return periodic(last, slot, now, MonthPeriod)
		}
	}
	return Next{Kind: KindNotApplicable}
}

// Slot returns today's fire time for an "HH:MM" schedule time, in now's
// location. ok is false when hhmm does not parse.
func Slot(hhmm string, now time.Time) (time.Time, bool) {
	h, m, ok := model.ParseClock(hhmm)
	if !ok {
		return time.Time{}, false
	}
	y, mo, d := now.Date()
	return time.Date(y, mo, d, h, m, 0, 0, now.Location()), true
}

func periodic(last *time.Time, slot, now time.Time, period time.Duration) Next {
	if last != nil {
		return at(last.Add(period))
	}
	if !now.After(slot) {
		return at(slot)
	}
	return at(now.Add(period))
}

func interval(item model.ScheduleItem) time.Duration {
	return time.Duration(item.IntervalMinutes) * time.Minute
}

// lastSent returns the item's last send time in now's location so calendar
// date comparisons line up with the slot.
func lastSent(item model.ScheduleItem, now time.Time) *time.Time {
	if item.LastSent == nil || item.LastSent.IsZero() {
		return nil
	}
	t := item.LastSent.In(now.Location())
	return &t
}

// dateBefore reports whether a's calendar date is strictly before b's.
func dateBefore(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	if ay != by {
		return ay < by
	}
	if am != bm {
		return am < bm
	}
	return ad < bd
}
