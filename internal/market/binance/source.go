// 基于 go-binance SDK 的行情源：bookTicker 提供买卖价差，24h 统计提供
// 最新价与成交量，K 线收盘序列用于计算技术指标。
package binance

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"condor/internal/logger"
	"condor/internal/market"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
)

type Config struct {
	RESTBaseURL   string
	KlineInterval string
	KlineLimit    int
	HTTPTimeout   time.Duration
	Staleness     time.Duration
	// IndicatorKeys extends market.DefaultIndicatorKeys with the symbolic
	// keys referenced by configured technical conditions.
	IndicatorKeys []string
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.RESTBaseURL) == "" {
		c.RESTBaseURL = "https://fapi.binance.com"
	}
	if c.KlineInterval == "" {
		c.KlineInterval = "1m"
	}
	if c.KlineLimit <= 0 {
		c.KlineLimit = 200
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	if c.Staleness <= 0 {
		c.Staleness = 30 * time.Second
	}
	return c
}

type Source struct {
	cfg    Config
	client *futures.Client

	mu    sync.Mutex
	cache map[string]market.Snapshot
}

func New(cfg Config) *Source {
	final := cfg.withDefaults()
	client := futures.NewClient("", "")
	client.BaseURL = strings.TrimSpace(final.RESTBaseURL)
	client.HTTPClient = &http.Client{Timeout: final.HTTPTimeout}
	return &Source{
		cfg:    final,
		client: client,
		cache:  make(map[string]market.Snapshot),
	}
}

// GetSnapshot fetches a fresh snapshot; on upstream failure it falls back to
// the cached sample when that is still within the staleness budget, otherwise
// it surfaces ErrStaleSnapshot so the evaluation is marked as an error.
func (s *Source) GetSnapshot(ctx context.Context, symbol string) (market.Snapshot, error) {
	pair := normalizePair(symbol)
	snap, err := s.fetch(ctx, pair)
	if err == nil {
		snap.Symbol = symbol
		s.mu.Lock()
		s.cache[pair] = snap
		s.mu.Unlock()
		return snap, nil
	}

	s.mu.Lock()
	cached, ok := s.cache[pair]
	s.mu.Unlock()
	if ok && !cached.Stale(time.Now(), s.cfg.Staleness) {
		logger.Warnf("binance source: using cached snapshot symbol=%s age=%s err=%v",
			symbol, time.Since(cached.Timestamp).Truncate(time.Millisecond), err)
		return cached, nil
	}
	if ok {
		return market.Snapshot{}, fmt.Errorf("%w: %s last=%s", market.ErrStaleSnapshot, symbol, cached.Timestamp.Format(time.RFC3339))
	}
	return market.Snapshot{}, fmt.Errorf("%w: %s (%v)", market.ErrNoData, symbol, err)
}

func (s *Source) fetch(ctx context.Context, pair string) (market.Snapshot, error) {
	books, err := s.client.NewListBookTickersService().Symbol(pair).Do(ctx)
	if err != nil {
		return market.Snapshot{}, fmt.Errorf("book ticker %s: %w", pair, err)
	}
	if len(books) == 0 {
		return market.Snapshot{}, fmt.Errorf("book ticker %s: empty response", pair)
	}
	book := books[0]

	stats, err := s.client.NewListPriceChangeStatsService().Symbol(pair).Do(ctx)
	if err != nil {
		return market.Snapshot{}, fmt.Errorf("24h stats %s: %w", pair, err)
	}
	if len(stats) == 0 {
		return market.Snapshot{}, fmt.Errorf("24h stats %s: empty response", pair)
	}
	st := stats[0]

	klines, err := s.client.NewKlinesService().
		Symbol(pair).
		Interval(s.cfg.KlineInterval).
		Limit(s.cfg.KlineLimit).
		Do(ctx)
	if err != nil {
		return market.Snapshot{}, fmt.Errorf("klines %s: %w", pair, err)
	}
	closes := make([]float64, 0, len(klines))
	for _, k := range klines {
		d, convErr := decimal.NewFromString(k.Close)
		if convErr != nil {
			continue
		}
		f, _ := d.Float64()
		closes = append(closes, f)
	}

	keys := append(append([]string{}, market.DefaultIndicatorKeys...), s.cfg.IndicatorKeys...)
	snap := market.Snapshot{
		Price:      mustDecimal(st.LastPrice),
		Volume:     mustDecimal(st.Volume),
		Bid:        mustDecimal(book.BidPrice),
		Ask:        mustDecimal(book.AskPrice),
		BidQty:     mustDecimal(book.BidQuantity),
		AskQty:     mustDecimal(book.AskQuantity),
		Indicators: market.ComputeIndicators(closes, keys),
		Timestamp:  time.Now(),
	}
	return snap, nil
}

// normalizePair turns "BTC/USDT" into the exchange symbol "BTCUSDT".
func normalizePair(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	s = strings.ReplaceAll(s, "/", "")
	s = strings.ReplaceAll(s, "-", "")
	return s
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}
