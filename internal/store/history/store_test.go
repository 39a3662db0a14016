package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"condor/internal/model"
	"condor/internal/store/gormstore"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seed writes a small but representative data set through the gorm store and
// opens a read-side store on the same file.
func seed(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "condor.db")
	w, err := gormstore.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	ctx := context.Background()
	cond := &model.Condition{
		ID: "c1", Name: "btc above 50k", Type: model.ConditionTypePrice,
		Operator: model.OpGreater, Value: model.NumberValue(decimal.NewFromInt(50000)),
		Symbol: "BTC/USDT", Priority: 3, Enabled: true, Status: model.ConditionIdle,
	}
	require.NoError(t, w.SaveCondition(ctx, cond))
	require.NoError(t, w.RecordTrigger(ctx, "c1", time.Now()))
	require.NoError(t, w.RecordTrigger(ctx, "c1", time.Now()))

	orders := []struct {
		id, symbol string
	}{{"o1", "BTC/USDT"}, {"o2", "ETH/USDT"}}
	for _, o := range orders {
		require.NoError(t, w.SaveAutoOrder(ctx, &model.AutoOrder{
			ID: o.id, StrategyName: "breakout", Symbol: o.symbol,
			MarketType: model.MarketFutures, Side: model.SideBuy,
			Quantity: decimal.NewFromInt(1), EntryConditionID: "c1",
			IsActive: true,
		}))
	}

	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	completed := base.Add(time.Minute)
	execs := []*model.OrderExecution{
		{ID: "e1", AutoOrderID: "o1", Status: model.ExecutionCompleted, RequestedAt: base, CompletedAt: &completed},
		{ID: "e2", AutoOrderID: "o1", Status: model.ExecutionFailed, RequestedAt: base.Add(2 * time.Minute), FailureReason: "gateway unavailable"},
		// Retry chain on o2: superseded record stays retrying, the newer one is
		// still executing.
		{ID: "e3", AutoOrderID: "o2", Status: model.ExecutionRetrying, RequestedAt: base.Add(3 * time.Minute)},
		{ID: "e4", AutoOrderID: "o2", Status: model.ExecutionExecuting, RequestedAt: base.Add(4 * time.Minute), RetryAttempt: 1},
	}
	for _, e := range execs {
		require.NoError(t, w.SaveExecution(ctx, e))
	}

	r, err := OpenRW(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestListFilters(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	all, err := s.List(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
	// 按 requested_at 倒序。
	assert.Equal(t, "e4", all[0].ExecutionID)

	btc, err := s.List(ctx, ListOptions{Symbol: "BTC/USDT"})
	require.NoError(t, err)
	assert.Len(t, btc, 2)

	failed, err := s.List(ctx, ListOptions{Status: "failed"})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "e2", failed[0].ExecutionID)
	assert.Equal(t, "gateway unavailable", failed[0].FailureReason)

	page, err := s.List(ctx, ListOptions{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, page, 2)
}

func TestStats(t *testing.T) {
	s := seed(t)
	st, err := s.Stats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(4), st.TotalExecutions)
	assert.Equal(t, int64(1), st.Completed)
	assert.Equal(t, int64(1), st.Failed)
	assert.InDelta(t, 0.5, st.SuccessRate, 1e-9)
	// 只统计链上最新记录：e3 被 e4 取代，不算在途。
	assert.Equal(t, int64(1), st.InFlight)
	assert.Equal(t, int64(2), st.TotalTriggers)
	assert.Equal(t, int64(2), st.BySymbol["BTC/USDT"])
	assert.Equal(t, int64(2), st.BySymbol["ETH/USDT"])
}

func TestInFlight(t *testing.T) {
	s := seed(t)
	live, err := s.InFlight(context.Background())
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "e4", live[0].ExecutionID)
	assert.Equal(t, "ETH/USDT", live[0].Symbol)
	assert.Equal(t, uint(1), live[0].RetryAttempt)
}
