// Package sim is a scripted market source used by tests and by
// market.source=sim runs: callers queue snapshots per symbol and each
// GetSnapshot pops the next one, holding the last forever.
package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"condor/internal/market"

	"github.com/shopspring/decimal"
)

type Source struct {
	mu        sync.Mutex
	scripts   map[string][]market.Snapshot
	staleness time.Duration
	nowFn     func() time.Time
}

func New(staleness time.Duration) *Source {
	if staleness <= 0 {
		staleness = 30 * time.Second
	}
	return &Source{
		scripts:   make(map[string][]market.Snapshot),
		staleness: staleness,
		nowFn:     time.Now,
	}
}

// Push appends snapshots to the symbol's script.
func (s *Source) Push(symbol string, snaps ...market.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[symbol] = append(s.scripts[symbol], snaps...)
}

// PushPrice is a shorthand for a price-only snapshot stamped now.
func (s *Source) PushPrice(symbol string, price float64) {
	p := decimal.NewFromFloat(price)
	s.Push(symbol, market.Snapshot{
		Symbol:    symbol,
		Price:     p,
		Bid:       p,
		Ask:       p,
		Timestamp: s.nowFn(),
	})
}

func (s *Source) GetSnapshot(_ context.Context, symbol string) (market.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	script := s.scripts[symbol]
	if len(script) == 0 {
		return market.Snapshot{}, fmt.Errorf("%w: %s", market.ErrNoData, symbol)
	}
	snap := script[0]
	if len(script) > 1 {
		s.scripts[symbol] = script[1:]
	}
	if snap.Stale(s.nowFn(), s.staleness) {
		return market.Snapshot{}, fmt.Errorf("%w: %s last=%s", market.ErrStaleSnapshot, symbol, snap.Timestamp.Format(time.RFC3339))
	}
	return snap, nil
}
