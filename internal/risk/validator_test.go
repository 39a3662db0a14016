package risk

import (
	"testing"

	"condor/internal/market"
	"condor/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func buyOrder() *model.AutoOrder {
	sl, tp := dec("48000"), dec("55000")
	return &model.AutoOrder{
		ID:               "o1",
		StrategyName:     "breakout",
		Symbol:           "BTC/USDT",
		MarketType:       model.MarketFutures,
		Side:             model.SideBuy,
		Quantity:         dec("1"),
		EntryConditionID: "c1",
		StopLossPrice:    &sl,
		TakeProfitPrice:  &tp,
		MaxSlippage:      0.01,
		MaxSpread:        0.005,
		IsActive:         true,
	}
}

func tightBook(price string) market.Snapshot {
	p := dec(price)
	return market.Snapshot{
		Symbol: "BTC/USDT",
		Price:  p,
		Bid:    p.Sub(dec("1")),
		Ask:    p.Add(dec("1")),
		BidQty: dec("100"),
		AskQty: dec("100"),
	}
}

func TestCheckAllows(t *testing.T) {
	v := NewValidator()
	d := v.Check(buyOrder(), tightBook("50000"))
	assert.True(t, d.Allowed, "detail=%s", d.Detail)
}

func TestCheckRejectsInactiveAndPaused(t *testing.T) {
	v := NewValidator()

	o := buyOrder()
	o.IsActive = false
	d := v.Check(o, tightBook("50000"))
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonInactive, d.Reason)

	o = buyOrder()
	o.IsActive = false
	o.IsPaused = true
	d = v.Check(o, tightBook("50000"))
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonPaused, d.Reason)
}

func TestCheckRejectsWideSpread(t *testing.T) {
	v := NewValidator()
	o := buyOrder()
	o.MaxSpread = 0.005

	snap := tightBook("50000")
	snap.Bid = dec("49000")
	snap.Ask = dec("51000") // spread = 2000/50000 = 4%
	d := v.Check(o, snap)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonSpread, d.Reason)
}

func TestCheckRejectsProjectedSlippage(t *testing.T) {
	v := NewValidator()
	o := buyOrder()
	o.MaxSpread = 0.01
	o.MaxSlippage = 0.004
	o.Quantity = dec("1000") // far beyond visible ask size

	snap := tightBook("50000")
	snap.Bid = dec("49900")
	snap.Ask = dec("50100") // spread 0.4%, half = 0.2%
	snap.AskQty = dec("10") // 1000/10 scales slippage to 20%
	d := v.Check(o, snap)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonSlippage, d.Reason)

	// Within visible size the half-spread bound applies and passes.
	o.Quantity = dec("5")
	d = v.Check(o, snap)
	assert.True(t, d.Allowed, "detail=%s", d.Detail)
}

func TestCheckRejectsStopTakeAgainstLivePrice(t *testing.T) {
	v := NewValidator()

	// 买单：价格已低于止损。
	o := buyOrder()
	d := v.Check(o, tightBook("47000"))
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonStopTakeOrder, d.Reason)

	// 买单：价格已越过止盈。
	d = v.Check(buyOrder(), tightBook("56000"))
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonStopTakeOrder, d.Reason)

	// 卖单方向相反。
	o = buyOrder()
	o.Side = model.SideSell
	sl, tp := dec("55000"), dec("48000")
	o.StopLossPrice, o.TakeProfitPrice = &sl, &tp
	d = v.Check(o, tightBook("50000"))
	assert.True(t, d.Allowed, "detail=%s", d.Detail)
	d = v.Check(o, tightBook("56000"))
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonStopTakeOrder, d.Reason)
}

func TestCheckSkipsStopTakeWithoutPrice(t *testing.T) {
	v := NewValidator()
	snap := market.Snapshot{Symbol: "BTC/USDT"}
	d := v.Check(buyOrder(), snap)
	assert.True(t, d.Allowed)
}
