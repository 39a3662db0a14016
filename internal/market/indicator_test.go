package market

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIndicatorKey(t *testing.T) {
	name, period, err := parseIndicatorKey("rsi_14")
	require.NoError(t, err)
	assert.Equal(t, "rsi", name)
	assert.Equal(t, 14, period)

	name, period, err = parseIndicatorKey(" EMA_200 ")
	require.NoError(t, err)
	assert.Equal(t, "ema", name)
	assert.Equal(t, 200, period)

	_, _, err = parseIndicatorKey("rsi")
	assert.Error(t, err)
	_, _, err = parseIndicatorKey("rsi_abc")
	assert.Error(t, err)
	_, _, err = parseIndicatorKey("rsi_0")
	assert.Error(t, err)
}

func TestComputeIndicators(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	out := ComputeIndicators(closes, []string{"rsi_14", "sma_20", "ema_20", "bogus_10", "rsi"})

	// 单调上涨序列 RSI 应接近 100。
	rsi, ok := out["rsi_14"]
	require.True(t, ok)
	assert.True(t, rsi.GreaterThan(decimal.NewFromInt(90)), "rsi=%s", rsi)

	sma, ok := out["sma_20"]
	require.True(t, ok)
	// 最后 20 个收盘均值 = mean(140..159) = 149.5
	assert.True(t, sma.Equal(decimal.RequireFromString("149.5")), "sma=%s", sma)

	_, ok = out["bogus_10"]
	assert.False(t, ok)
	_, ok = out["rsi"]
	assert.False(t, ok)
}

func TestComputeIndicatorsShortSeries(t *testing.T) {
	out := ComputeIndicators([]float64{1, 2, 3}, []string{"rsi_14"})
	assert.Empty(t, out)
}

func TestSnapshotSpread(t *testing.T) {
	s := Snapshot{Bid: decimal.NewFromInt(99), Ask: decimal.NewFromInt(101)}
	// (101-99)/100 = 0.02
	assert.True(t, s.Spread().Equal(decimal.RequireFromString("0.02")))

	assert.True(t, Snapshot{Ask: decimal.NewFromInt(101)}.Spread().IsZero())
}

func TestSnapshotStale(t *testing.T) {
	now := time.Now()
	fresh := Snapshot{Timestamp: now.Add(-10 * time.Second)}
	assert.False(t, fresh.Stale(now, 30*time.Second))
	assert.True(t, fresh.Stale(now, 5*time.Second))
	assert.True(t, Snapshot{}.Stale(now, time.Hour), "零值时间戳视为过期")
}
