package usecase

import (
	"testing"
	"time"

	"breakout-backend/internal/domain"
)

func TestLossStreakCooldown(t *testing.T) {
	cfg := domain.DefaultConfig() // 4 losses, 6h cooldown
	s := NewLossStreak(cfg)
	now := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		s.RecordClose(-50, now)
	}
	if s.Blocked(now) {
		t.Fatal("blocked below the threshold")
	}

	s.RecordClose(-50, now)
	if !s.Blocked(now.Add(5 * time.Hour)) {
		t.Fatal("not blocked after 4th loss")
	}

	// Expiry clears the cooldown and resets the streak.
	if s.Blocked(now.Add(7 * time.Hour)) {
		t.Fatal("still blocked after cooldown expiry")
	}
	if losses, until := s.Stats(); losses != 0 || !until.IsZero() {
		t.Errorf("stats after expiry = %d, %v", losses, until)
	}
}

func TestLossStreakExtendsWhilePaused(t *testing.T) {
	s := NewLossStreak(domain.DefaultConfig())
	now := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		s.RecordClose(-50, now)
	}
	// A further loss two hours in pushes the deadline out.
	s.RecordClose(-50, now.Add(2*time.Hour))
	if _, until := s.Stats(); !until.Equal(now.Add(8 * time.Hour)) {
		t.Errorf("deadline = %v, want extended to +8h", until)
	}
}

func TestLossStreakWinClears(t *testing.T) {
	s := NewLossStreak(domain.DefaultConfig())
	now := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		s.RecordClose(-50, now)
	}
	s.RecordClose(120, now.Add(time.Hour))
	if s.Blocked(now.Add(time.Hour)) {
		t.Fatal("win should clear the cooldown")
	}
	if losses, _ := s.Stats(); losses != 0 {
		t.Errorf("losses = %d after win", losses)
	}
}

func TestLossStreakBreakevenNeutral(t *testing.T) {
	s := NewLossStreak(domain.DefaultConfig())
	now := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

	s.RecordClose(-50, now)
	s.RecordClose(-50, now)
	s.RecordClose(0, now)
	if losses, _ := s.Stats(); losses != 2 {
		t.Errorf("breakeven changed the streak: %d", losses)
	}
}
