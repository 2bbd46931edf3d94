package usecase

import (
	"log"
	"sync"
	"time"

	"breakout-backend/internal/domain"
)

// LossStreak tracks consecutive losing trades and enforces a cooldown once
// the threshold is hit. Time is always passed in, so the backtest drives it
// with bar timestamps and the live monitor with the wall clock.
type LossStreak struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration

	losses int
	until  time.Time
}

func NewLossStreak(cfg *domain.Config) *LossStreak {
	return &LossStreak{
		threshold: cfg.Risk.MaxConsecutiveLosses,
		cooldown:  cfg.CooldownDuration(),
	}
}

// RecordClose updates the streak from a closed trade's total P&L. Wins reset
// the streak and clear any cooldown; breakeven closes change nothing.
func (s *LossStreak) RecordClose(pl float64, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case pl > 0:
		s.losses = 0
		s.until = time.Time{}
	case pl < 0:
		s.losses++
		// Further losses while already paused push the deadline out.
		if s.losses >= s.threshold {
			s.until = now.Add(s.cooldown)
			log.Printf("⛔ %d consecutive losses, trading paused until %s",
				s.losses, s.until.Format(time.RFC3339))
		}
	}
}

// Blocked reports whether entries are paused. An expired cooldown clears
// itself and resets the streak.
func (s *LossStreak) Blocked(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.until.IsZero() {
		return false
	}
	if !now.Before(s.until) {
		s.until = time.Time{}
		s.losses = 0
		return false
	}
	return true
}

// Stats returns the current streak length and cooldown deadline.
func (s *LossStreak) Stats() (losses int, until time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.losses, s.until
}
