package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func validOrder() AutoOrder {
	sl, tp := dec("48000"), dec("55000")
	return AutoOrder{
		ID:               "o1",
		StrategyName:     "breakout",
		Symbol:           "BTC/USDT",
		MarketType:       MarketFutures,
		Side:             SideBuy,
		Quantity:         dec("0.5"),
		EntryConditionID: "c1",
		StopLossPrice:    &sl,
		TakeProfitPrice:  &tp,
		MaxSlippage:      0.01,
		MaxSpread:        0.005,
		IsActive:         true,
	}
}

func TestAutoOrderState(t *testing.T) {
	o := validOrder()
	assert.Equal(t, AutoOrderActive, o.State())

	o.IsActive = false
	o.IsPaused = true
	assert.Equal(t, AutoOrderPaused, o.State())

	o.IsPaused = false
	assert.Equal(t, AutoOrderStopped, o.State())
}

func TestAutoOrderValidate(t *testing.T) {
	o := validOrder()
	assert.NoError(t, o.Validate())

	o = validOrder()
	o.Quantity = dec("0")
	assert.Error(t, o.Validate())

	o = validOrder()
	o.MaxSlippage = 1.5
	assert.Error(t, o.Validate())

	o = validOrder()
	o.IsPaused = true
	assert.Error(t, o.Validate(), "active 与 paused 互斥")

	// buy 要求 SL < TP。
	o = validOrder()
	sl, tp := dec("55000"), dec("48000")
	o.StopLossPrice, o.TakeProfitPrice = &sl, &tp
	assert.Error(t, o.Validate())

	// sell 要求 SL > TP。
	o.Side = SideSell
	assert.NoError(t, o.Validate())
	sl2, tp2 := dec("48000"), dec("55000")
	o.StopLossPrice, o.TakeProfitPrice = &sl2, &tp2
	assert.Error(t, o.Validate())

	// 单边设置不检查相对顺序。
	o = validOrder()
	o.TakeProfitPrice = nil
	assert.NoError(t, o.Validate())
}

func TestExecutionStatusTerminal(t *testing.T) {
	assert.True(t, ExecutionCompleted.Terminal())
	assert.True(t, ExecutionFailed.Terminal())
	assert.False(t, ExecutionPending.Terminal())
	assert.False(t, ExecutionExecuting.Terminal())
	assert.False(t, ExecutionRetrying.Terminal())
}

func TestChannelStatsSuccessRate(t *testing.T) {
	var s ChannelStats
	assert.Equal(t, 0.0, s.SuccessRate())
	s.TotalSent = 4
	s.TotalSuccessful = 3
	s.TotalFailed = 1
	assert.InDelta(t, 0.75, s.SuccessRate(), 1e-9)
}
