// Package market defines the narrow interface the engine consumes for market
// data. Implementations live in subpackages (binance, sim).
package market

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNoData means the source has nothing for the symbol (yet).
	ErrNoData = errors.New("market: no data for symbol")
	// ErrStaleSnapshot means the newest sample is older than the configured
	// staleness threshold. Evaluation must treat it as an error, never as a
	// level that could fire a trigger.
	ErrStaleSnapshot = errors.New("market: snapshot is stale")
)

// Snapshot is one observation of a symbol. Indicators carries derived values
// (rsi_14, ema_20, ...) keyed by the symbolic names technical conditions use.
type Snapshot struct {
	Symbol     string
	Price      decimal.Decimal
	Volume     decimal.Decimal
	Bid        decimal.Decimal
	Ask        decimal.Decimal
	BidQty     decimal.Decimal
	AskQty     decimal.Decimal
	Indicators map[string]decimal.Decimal
	Timestamp  time.Time
}

// Spread returns (ask-bid)/mid as a ratio, 0 when the book side is missing.
func (s Snapshot) Spread() decimal.Decimal {
	if s.Bid.IsZero() || s.Ask.IsZero() {
		return decimal.Zero
	}
	mid := s.Bid.Add(s.Ask).Div(decimal.NewFromInt(2))
	if mid.IsZero() {
		return decimal.Zero
	}
	return s.Ask.Sub(s.Bid).Div(mid)
}

// Stale reports whether the snapshot is older than threshold at now.
func (s Snapshot) Stale(now time.Time, threshold time.Duration) bool {
	if s.Timestamp.IsZero() {
		return true
	}
	return now.Sub(s.Timestamp) > threshold
}

// Source supplies snapshots. Implementations must return ErrNoData or
// ErrStaleSnapshot (possibly wrapped) for the corresponding failure modes.
type Source interface {
	GetSnapshot(ctx context.Context, symbol string) (Snapshot, error)
}
