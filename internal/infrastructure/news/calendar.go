package news

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Event is one scheduled economic release.
type Event struct {
	Time     time.Time
	Currency string
	Impact   string
	Title    string
}

// Calendar gates trading around scheduled high-impact events. Events are
// injected by an external refresher; the calendar itself never fetches.
// Opening fails closed once the data is older than maxStale, while the
// close-positions check stays quiet on stale data so positions are not
// dumped on a dead feed.
type Calendar struct {
	mu        sync.RWMutex
	events    []Event
	fetchedAt time.Time

	preWindow  time.Duration
	postWindow time.Duration
	maxStale   time.Duration
	now        func() time.Time
}

func NewCalendar(preMinutes, postMinutes int) *Calendar {
	return &Calendar{
		preWindow:  time.Duration(preMinutes) * time.Minute,
		postWindow: time.Duration(postMinutes) * time.Minute,
		maxStale:   4 * time.Hour,
		now:        time.Now,
	}
}

// SetEvents replaces the event set and stamps the fetch time.
func (c *Calendar) SetEvents(events []Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append([]Event(nil), events...)
	c.fetchedAt = c.now()
}

func (c *Calendar) stale() bool {
	return c.fetchedAt.IsZero() || c.now().Sub(c.fetchedAt) > c.maxStale
}

// affects reports whether the event's currency is one of the instrument's
// legs, e.g. a USD event affects EUR_USD.
func affects(e Event, instrument string) bool {
	parts := strings.SplitN(instrument, "_", 2)
	if len(parts) != 2 {
		return false
	}
	return e.Currency == parts[0] || e.Currency == parts[1]
}

// CanOpen reports whether a new position on the instrument is allowed now.
func (c *Calendar) CanOpen(instrument string, at time.Time) (bool, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.stale() {
		return false, "news calendar stale"
	}
	for _, e := range c.events {
		if e.Impact != "High" || !affects(e, instrument) {
			continue
		}
		if !at.Before(e.Time.Add(-c.preWindow)) && !at.After(e.Time.Add(c.postWindow)) {
			return false, fmt.Sprintf("%s %s at %s", e.Currency, e.Title, e.Time.Format("15:04"))
		}
	}
	return true, ""
}

// ShouldClose reports whether open positions on the instrument should be
// closed ahead of an imminent event.
func (c *Calendar) ShouldClose(instrument string, at time.Time) (bool, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.stale() {
		return false, ""
	}
	for _, e := range c.events {
		if e.Impact != "High" || !affects(e, instrument) {
			continue
		}
		if at.Before(e.Time) && !at.Before(e.Time.Add(-c.preWindow)) {
			return true, fmt.Sprintf("%s %s in %s", e.Currency, e.Title, e.Time.Sub(at).Round(time.Minute))
		}
	}
	return false, ""
}
