package usecase

import (
	"context"
	"log"
	"time"

	"breakout-backend/internal/domain"
)

// ExternalSignal is a trade idea from an outside source (webhook, feed).
type ExternalSignal struct {
	Provider   string           `json:"provider"`
	Instrument string           `json:"instrument"`
	Direction  domain.Direction `json:"direction"`
	Confidence float64          `json:"confidence"`
	Timestamp  time.Time        `json:"timestamp"`
}

// Provider supplies external signals on demand.
type Provider interface {
	Name() string
	Fetch(ctx context.Context) ([]ExternalSignal, error)
}

// ProviderRegistry aggregates external signal sources. It is assembled once
// at startup and passed to whoever consumes it; providers that error are
// logged and skipped so one broken feed never blocks the rest.
type ProviderRegistry struct {
	providers []Provider
}

func NewProviderRegistry(providers ...Provider) *ProviderRegistry {
	return &ProviderRegistry{providers: providers}
}

func (r *ProviderRegistry) Add(p Provider) {
	r.providers = append(r.providers, p)
}

// FetchAll collects signals from every provider.
func (r *ProviderRegistry) FetchAll(ctx context.Context) []ExternalSignal {
	var out []ExternalSignal
	for _, p := range r.providers {
		signals, err := p.Fetch(ctx)
		if err != nil {
			log.Printf("provider %s: %v", p.Name(), err)
			continue
		}
		out = append(out, signals...)
	}
	return out
}

// FetchConfident returns only signals at or above the confidence floor.
func (r *ProviderRegistry) FetchConfident(ctx context.Context, min float64) []ExternalSignal {
	var out []ExternalSignal
	for _, s := range r.FetchAll(ctx) {
		if s.Confidence >= min {
			out = append(out, s)
		}
	}
	return out
}
