// Package risk decides whether a triggered auto order may be submitted.
// Checks run in a fixed order and short-circuit on the first failure; a
// rejection is an expected outcome, not an error.
package risk

import (
	"fmt"

	"condor/internal/market"
	"condor/internal/model"

	"github.com/shopspring/decimal"
)

type RejectReason string

const (
	ReasonInactive      RejectReason = "auto_order_inactive"
	ReasonPaused        RejectReason = "auto_order_paused"
	ReasonSpread        RejectReason = "spread_exceeded"
	ReasonSlippage      RejectReason = "slippage_exceeded"
	ReasonStopTakeOrder RejectReason = "stop_take_ordering_violated"
)

type Decision struct {
	Allowed bool
	Reason  RejectReason
	Detail  string
}

func allowed() Decision { return Decision{Allowed: true} }

func rejected(reason RejectReason, format string, v ...any) Decision {
	return Decision{Allowed: false, Reason: reason, Detail: fmt.Sprintf(format, v...)}
}

type Validator struct{}

func NewValidator() *Validator { return &Validator{} }

// Check validates the order against the snapshot taken at trigger time.
func (*Validator) Check(order *model.AutoOrder, snap market.Snapshot) Decision {
	switch order.State() {
	case model.AutoOrderPaused:
		return rejected(ReasonPaused, "auto order %s is paused", order.ID)
	case model.AutoOrderStopped:
		return rejected(ReasonInactive, "auto order %s is not active", order.ID)
	}

	spread := snap.Spread()
	maxSpread := decimal.NewFromFloat(order.MaxSpread)
	if spread.GreaterThan(maxSpread) {
		return rejected(ReasonSpread, "spread %s > max %s", spread, maxSpread)
	}

	slip := projectSlippage(order, snap)
	maxSlip := decimal.NewFromFloat(order.MaxSlippage)
	if slip.GreaterThan(maxSlip) {
		return rejected(ReasonSlippage, "projected slippage %s > max %s", slip, maxSlip)
	}

	if d := checkStopTake(order, snap.Price); !d.Allowed {
		return d
	}
	return allowed()
}

// projectSlippage estimates execution slippage as a ratio: half the spread,
// scaled up when the requested quantity exceeds the visible size on the side
// we would take. A book without sizes degrades to the half-spread bound.
func projectSlippage(order *model.AutoOrder, snap market.Snapshot) decimal.Decimal {
	half := snap.Spread().Div(decimal.NewFromInt(2))
	var visible decimal.Decimal
	if order.Side == model.SideBuy {
		visible = snap.AskQty
	} else {
		visible = snap.BidQty
	}
	if visible.IsZero() || !order.Quantity.GreaterThan(visible) {
		return half
	}
	return half.Mul(order.Quantity.Div(visible))
}

// checkStopTake re-validates the stop-loss/take-profit ordering against the
// live price: buy requires SL < price < TP, sell the inverse, each leg only
// when set.
func checkStopTake(order *model.AutoOrder, price decimal.Decimal) Decision {
	if price.IsZero() {
		return allowed()
	}
	sl, tp := order.StopLossPrice, order.TakeProfitPrice
	switch order.Side {
	case model.SideBuy:
		if sl != nil && !sl.LessThan(price) {
			return rejected(ReasonStopTakeOrder, "buy stop loss %s >= price %s", sl, price)
		}
		if tp != nil && !tp.GreaterThan(price) {
			return rejected(ReasonStopTakeOrder, "buy take profit %s <= price %s", tp, price)
		}
	case model.SideSell:
		if sl != nil && !sl.GreaterThan(price) {
			return rejected(ReasonStopTakeOrder, "sell stop loss %s <= price %s", sl, price)
		}
		if tp != nil && !tp.LessThan(price) {
			return rejected(ReasonStopTakeOrder, "sell take profit %s >= price %s", tp, price)
		}
	}
	return allowed()
}
