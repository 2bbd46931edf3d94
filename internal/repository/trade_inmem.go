package repository

import (
	"sort"
	"sync"

	"breakout-backend/internal/domain"
)

// InMemoryTradeRepository keeps positions in process memory. It is the
// default store when no DATABASE_URL is configured and the store used by the
// backtester and tests.
type InMemoryTradeRepository struct {
	mu     sync.RWMutex
	open   map[string]*domain.Position
	closed []*domain.Position
}

func NewInMemoryTradeRepository() *InMemoryTradeRepository {
	return &InMemoryTradeRepository{
		open: make(map[string]*domain.Position),
	}
}

func (r *InMemoryTradeRepository) Create(p *domain.Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.open[p.ID] = &cp
	return nil
}

func (r *InMemoryTradeRepository) Update(p *domain.Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.open[p.ID] = &cp
	return nil
}

func (r *InMemoryTradeRepository) Close(p *domain.Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.open, p.ID)
	cp := *p
	r.closed = append(r.closed, &cp)
	return nil
}

// Open returns copies of the open positions sorted by ID so iteration order
// is stable.
func (r *InMemoryTradeRepository) Open() []*domain.Position {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Position, 0, len(r.open))
	for _, p := range r.open {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *InMemoryTradeRepository) OpenByInstrument(instrument string) []*domain.Position {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Position
	for _, p := range r.open {
		if p.Instrument == instrument {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *InMemoryTradeRepository) Closed() []*domain.Position {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Position, len(r.closed))
	for i, p := range r.closed {
		cp := *p
		out[i] = &cp
	}
	return out
}
