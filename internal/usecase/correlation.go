package usecase

import (
	"fmt"
	"strings"

	"breakout-backend/internal/domain"
)

// Exposure is an open position reduced to what the correlation filter needs.
type Exposure struct {
	Instrument string
	Direction  domain.Direction
}

// CorrelationFilter rejects entries that would duplicate existing exposure:
// the same pair, a positively correlated pair in the same direction, or a
// negatively correlated pair in the opposite direction. Pairs missing from
// the table are allowed.
type CorrelationFilter struct {
	threshold float64
	coeffs    map[[2]string]float64
}

func NewCorrelationFilter(cfg *domain.Config) *CorrelationFilter {
	f := &CorrelationFilter{
		threshold: cfg.Indicators.CorrelationThreshold,
		coeffs:    make(map[[2]string]float64),
	}
	for _, c := range cfg.Pairs.PositiveCorrelations {
		f.put(c.A, c.B, c.Coefficient)
	}
	for _, c := range cfg.Pairs.NegativeCorrelations {
		f.put(c.A, c.B, c.Coefficient)
	}
	return f
}

func (f *CorrelationFilter) put(a, b string, coeff float64) {
	f.coeffs[pairKey(a, b)] = coeff
}

func pairKey(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

// Coefficient returns the known correlation between two instruments.
func (f *CorrelationFilter) Coefficient(a, b string) (float64, bool) {
	c, ok := f.coeffs[pairKey(a, b)]
	return c, ok
}

// WouldDuplicate reports whether opening instrument/direction overlaps the
// given exposures, with a reason for the rejection.
func (f *CorrelationFilter) WouldDuplicate(instrument string, direction domain.Direction, open []Exposure) (bool, string) {
	for _, e := range open {
		if e.Instrument == instrument {
			return true, fmt.Sprintf("already holding %s", instrument)
		}
		coeff, ok := f.Coefficient(instrument, e.Instrument)
		if !ok {
			continue
		}
		if coeff >= f.threshold && direction == e.Direction {
			return true, fmt.Sprintf("%s correlates +%.2f with open %s %s",
				instrument, coeff, e.Instrument, e.Direction)
		}
		if coeff <= -f.threshold && direction != e.Direction {
			return true, fmt.Sprintf("%s correlates %.2f with open %s %s",
				instrument, coeff, e.Instrument, e.Direction)
		}
	}
	return false, ""
}

// ExposureSummary counts open exposure per currency leg, e.g. a EUR_USD long
// adds long EUR and short USD.
func ExposureSummary(open []Exposure) map[string]int {
	out := make(map[string]int)
	for _, e := range open {
		parts := strings.SplitN(e.Instrument, "_", 2)
		if len(parts) != 2 {
			continue
		}
		if e.Direction == domain.Long {
			out[parts[0]]++
			out[parts[1]]--
		} else {
			out[parts[0]]--
			out[parts[1]]++
		}
	}
	return out
}

// ExposuresOf adapts open positions for the filter.
func ExposuresOf(positions []*domain.Position) []Exposure {
	out := make([]Exposure, 0, len(positions))
	for _, p := range positions {
		out = append(out, Exposure{Instrument: p.Instrument, Direction: p.Direction})
	}
	return out
}
