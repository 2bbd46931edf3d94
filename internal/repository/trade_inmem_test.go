package repository

import (
	"testing"

	"breakout-backend/internal/domain"
)

func pos(id, instrument string) *domain.Position {
	return &domain.Position{
		ID:             id,
		Instrument:     instrument,
		Direction:      domain.Long,
		Units:          1000,
		RemainingUnits: 1000,
	}
}

func TestInMemoryTradeRepositoryLifecycle(t *testing.T) {
	r := NewInMemoryTradeRepository()

	if err := r.Create(pos("2", "EUR_USD")); err != nil {
		t.Fatal(err)
	}
	if err := r.Create(pos("1", "USD_JPY")); err != nil {
		t.Fatal(err)
	}

	open := r.Open()
	if len(open) != 2 || open[0].ID != "1" || open[1].ID != "2" {
		t.Fatalf("open = %+v, want sorted by ID", open)
	}

	byPair := r.OpenByInstrument("EUR_USD")
	if len(byPair) != 1 || byPair[0].ID != "2" {
		t.Fatalf("by instrument = %+v", byPair)
	}

	p := open[1]
	p.RemainingUnits = 500
	if err := r.Update(p); err != nil {
		t.Fatal(err)
	}
	if got := r.OpenByInstrument("EUR_USD")[0].RemainingUnits; got != 500 {
		t.Errorf("update not visible: %v", got)
	}

	p.RemainingUnits = 0
	p.CloseReason = domain.ReasonStopLoss
	if err := r.Close(p); err != nil {
		t.Fatal(err)
	}
	if len(r.Open()) != 1 {
		t.Error("closed position still open")
	}
	closed := r.Closed()
	if len(closed) != 1 || closed[0].CloseReason != domain.ReasonStopLoss {
		t.Errorf("closed = %+v", closed)
	}
}

func TestInMemoryTradeRepositoryReturnsCopies(t *testing.T) {
	r := NewInMemoryTradeRepository()
	if err := r.Create(pos("1", "EUR_USD")); err != nil {
		t.Fatal(err)
	}

	// Mutating a returned position must not leak into the store.
	r.Open()[0].RemainingUnits = 0
	if got := r.Open()[0].RemainingUnits; got != 1000 {
		t.Errorf("store mutated through a returned copy: %v", got)
	}
}
