package usecase

import (
	"fmt"
	"log"
	"sync"
	"time"

	"breakout-backend/internal/domain"
	"breakout-backend/internal/infrastructure/fcm"
	"breakout-backend/internal/repository"
)

const notifyCooldown = 5 * time.Minute

// Notifier pushes FCM alerts on trade opens and closes, with a per-instrument
// cooldown so a flapping instrument does not spam devices.
type Notifier struct {
	fcmClient *fcm.Client
	tokenRepo *repository.TokenRepository

	mu       sync.Mutex
	lastSent map[string]time.Time
}

func NewNotifier(fcmClient *fcm.Client, tokenRepo *repository.TokenRepository) *Notifier {
	return &Notifier{
		fcmClient: fcmClient,
		tokenRepo: tokenRepo,
		lastSent:  make(map[string]time.Time),
	}
}

func (n *Notifier) allowed(key string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := time.Now()
	if last, ok := n.lastSent[key]; ok && now.Sub(last) < notifyCooldown {
		return false
	}
	n.lastSent[key] = now

	for k, ts := range n.lastSent {
		if now.Sub(ts) > notifyCooldown*2 {
			delete(n.lastSent, k)
		}
	}
	return true
}

func (n *Notifier) send(key, title, body string, data map[string]string) {
	if n.fcmClient == nil || !n.fcmClient.IsEnabled() {
		return
	}
	tokens := n.tokenRepo.GetAllTokens()
	if len(tokens) == 0 {
		return
	}
	if !n.allowed(key) {
		return
	}
	if err := n.fcmClient.SendMulticast(tokens, title, body, data); err != nil {
		log.Printf("Error sending notification: %v", err)
		return
	}
	log.Printf("Sent notification %q to %d devices", title, len(tokens))
}

// NotifyOpen announces a newly opened position.
func (n *Notifier) NotifyOpen(p *domain.Position) {
	title := fmt.Sprintf("🚀 %s %s opened", p.Instrument, p.Direction)
	body := fmt.Sprintf("%.0f units @ %.5f | SL %.5f | TP %.5f",
		p.Units, p.EntryPrice, p.StopLoss, p.TakeProfit)
	n.send("open:"+p.Instrument, title, body, map[string]string{
		"instrument": p.Instrument,
		"direction":  string(p.Direction),
		"type":       "open",
	})
}

// NotifyClose announces a closed position with its result.
func (n *Notifier) NotifyClose(p *domain.Position) {
	emoji := "✅"
	if p.RealizedPL < 0 {
		emoji = "🔻"
	}
	title := fmt.Sprintf("%s %s %s closed (%s)", emoji, p.Instrument, p.Direction, p.CloseReason)
	body := fmt.Sprintf("P&L %.2f (%.1f pips)", p.RealizedPL, p.RealizedPips)
	n.send("close:"+p.Instrument, title, body, map[string]string{
		"instrument": p.Instrument,
		"reason":     p.CloseReason,
		"type":       "close",
	})
}
