package providers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"breakout-backend/internal/domain"
	"breakout-backend/internal/usecase"
)

// WebhookProvider accepts external signals over HTTP POST and hands them out
// on the next Fetch. Signals older than maxAge are dropped unread.
type WebhookProvider struct {
	mu      sync.Mutex
	pending []usecase.ExternalSignal
	maxAge  time.Duration
}

func NewWebhookProvider() *WebhookProvider {
	return &WebhookProvider{maxAge: 15 * time.Minute}
}

func (p *WebhookProvider) Name() string { return "webhook" }

// Fetch drains the pending queue, discarding anything stale.
func (p *WebhookProvider) Fetch(ctx context.Context) ([]usecase.ExternalSignal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := time.Now().UTC().Add(-p.maxAge)
	var out []usecase.ExternalSignal
	for _, s := range p.pending {
		if s.Timestamp.After(cutoff) {
			out = append(out, s)
		}
	}
	p.pending = nil
	return out, nil
}

// Handle is the HTTP endpoint receiving posted signals.
func (p *WebhookProvider) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var s usecase.ExternalSignal
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	if s.Instrument == "" || (s.Direction != domain.Long && s.Direction != domain.Short) {
		http.Error(w, "instrument and direction required", http.StatusBadRequest)
		return
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now().UTC()
	}
	s.Provider = p.Name()

	p.mu.Lock()
	p.pending = append(p.pending, s)
	p.mu.Unlock()

	log.Printf("External signal received: %s %s (confidence %.2f)", s.Instrument, s.Direction, s.Confidence)
	w.WriteHeader(http.StatusAccepted)
}
