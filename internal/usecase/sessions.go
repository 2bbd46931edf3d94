package usecase

import (
	"fmt"
	"time"

	"breakout-backend/internal/domain"
)

// SessionFilter blocks entries in the thin minutes right after a session
// open and on weekend days.
type SessionFilter struct {
	opens        map[string]int
	avoidMinutes int
	weekendDays  map[time.Weekday]bool

	newYork *time.Location
}

func NewSessionFilter(cfg *domain.Config) *SessionFilter {
	weekend := make(map[time.Weekday]bool, len(cfg.Hours.WeekendDays))
	for _, d := range cfg.Hours.WeekendDays {
		weekend[d] = true
	}
	// Fall back to fixed UTC-5 if the tz database is unavailable.
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		ny = time.FixedZone("EST", -5*3600)
	}
	return &SessionFilter{
		opens:        cfg.Hours.SessionOpens,
		avoidMinutes: cfg.Hours.OpenAvoidMinutes,
		weekendDays:  weekend,
		newYork:      ny,
	}
}

// IsWeekend reports whether the UTC day is a configured weekend day. Used by
// the backtest, where candle data already reflects market hours.
func (f *SessionFilter) IsWeekend(t time.Time) bool {
	return f.weekendDays[t.UTC().Weekday()]
}

// IsForexWeekend reports whether the forex market is closed: from Friday
// 17:00 to Sunday 17:00 New York time. Used live.
func (f *SessionFilter) IsForexWeekend(t time.Time) bool {
	ny := t.In(f.newYork)
	switch ny.Weekday() {
	case time.Saturday:
		return true
	case time.Friday:
		return ny.Hour() >= 17
	case time.Sunday:
		return ny.Hour() < 17
	}
	return false
}

// NearSessionOpen reports whether t falls within the avoid window right
// after any session open. The window is [open, open+avoidMinutes); the
// boundary minute itself is allowed.
func (f *SessionFilter) NearSessionOpen(t time.Time) (bool, string) {
	u := t.UTC()
	for name, hour := range f.opens {
		if u.Hour() == hour && u.Minute() < f.avoidMinutes {
			return true, name
		}
	}
	return false, ""
}

// SafeToEnter combines the backtest-grade checks with a reason.
func (f *SessionFilter) SafeToEnter(t time.Time) (bool, string) {
	if f.IsWeekend(t) {
		return false, "weekend"
	}
	if near, name := f.NearSessionOpen(t); near {
		return false, fmt.Sprintf("within %dm of %s open", f.avoidMinutes, name)
	}
	return true, ""
}
