package costs

import (
	"sort"
	"sync"
)

// BackendPricing holds per-unit prices for one model backend.
type BackendPricing struct {
	// InputPricePerUnit is the cost of one input unit (e.g., one token).
	InputPricePerUnit float64

	// OutputPricePerUnit is the cost of one output unit.
	OutputPricePerUnit float64
}

// Pricing is the injected pricing table mapping backend names to unit
// prices. It is thread-safe and supports hot reload of the whole table.
type Pricing struct {
	mu       sync.RWMutex
	backends map[string]BackendPricing
}

// NewPricing creates a pricing table from the given backend prices.
func NewPricing(backends map[string]BackendPricing) *Pricing {
	table := make(map[string]BackendPricing, len(backends))
	for name, pricing := range backends {
		table[name] = pricing
	}
	return &Pricing{backends: table}
}

// Lookup returns the pricing for a backend. A missing backend is a
// configuration error and fails loudly; it is never priced at zero.
func (p *Pricing) Lookup(backend string) (BackendPricing, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	pricing, ok := p.backends[backend]
	if !ok {
		return BackendPricing{}, &UnknownBackendError{
			Backend:       backend,
			KnownBackends: p.knownLocked(),
		}
	}
	return pricing, nil
}

// Estimate computes the cost of the given unit counts on a backend.
func (p *Pricing) Estimate(backend string, inputUnits, outputUnits int64) (float64, error) {
	pricing, err := p.Lookup(backend)
	if err != nil {
		return 0, err
	}
	return float64(inputUnits)*pricing.InputPricePerUnit +
		float64(outputUnits)*pricing.OutputPricePerUnit, nil
}

// Reload atomically replaces the whole table. Used on configuration
// reload events.
func (p *Pricing) Reload(backends map[string]BackendPricing) {
	table := make(map[string]BackendPricing, len(backends))
	for name, pricing := range backends {
		table[name] = pricing
	}

	p.mu.Lock()
	p.backends = table
	p.mu.Unlock()
}

// Backends returns the known backend names in sorted order.
func (p *Pricing) Backends() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.knownLocked()
}

func (p *Pricing) knownLocked() []string {
	names := make([]string, 0, len(p.backends))
	for name := range p.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
