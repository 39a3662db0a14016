package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type MarketType string

const (
	MarketSpot    MarketType = "spot"
	MarketFutures MarketType = "futures"
)

func ParseMarketType(s string) (MarketType, error) {
	switch MarketType(strings.ToLower(strings.TrimSpace(s))) {
	case MarketSpot:
		return MarketSpot, nil
	case MarketFutures:
		return MarketFutures, nil
	default:
		return "", fmt.Errorf("unknown market type %q", s)
	}
}

type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

func ParseOrderSide(s string) (OrderSide, error) {
	switch OrderSide(strings.ToLower(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	default:
		return "", fmt.Errorf("unknown order side %q", s)
	}
}

// AutoOrderState is derived from the IsActive/IsPaused pair; exactly one of
// the three states holds at any time.
type AutoOrderState string

const (
	AutoOrderActive  AutoOrderState = "active"
	AutoOrderPaused  AutoOrderState = "paused"
	AutoOrderStopped AutoOrderState = "stopped"
)

// AutoOrder binds an entry condition to an order template plus risk limits.
type AutoOrder struct {
	ID               string           `json:"id"`
	StrategyName     string           `json:"strategy_name"`
	Symbol           string           `json:"symbol"`
	MarketType       MarketType       `json:"market_type"`
	Side             OrderSide        `json:"order_side"`
	Quantity         decimal.Decimal  `json:"quantity"`
	EntryConditionID string           `json:"entry_condition_id"`
	StopLossPrice    *decimal.Decimal `json:"stop_loss_price,omitempty"`
	TakeProfitPrice  *decimal.Decimal `json:"take_profit_price,omitempty"`
	MaxSlippage      float64          `json:"max_slippage"`
	MaxSpread        float64          `json:"max_spread"`
	IsActive         bool             `json:"is_active"`
	IsPaused         bool             `json:"is_paused"`
	ExecutionCount   uint64           `json:"execution_count"`
	LastExecutionResult string        `json:"last_execution_result,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// State collapses the flag pair into the single derived state. A paused
// order keeps IsActive=false so that active/paused/stopped are disjoint.
func (o *AutoOrder) State() AutoOrderState {
	switch {
	case o.IsActive && !o.IsPaused:
		return AutoOrderActive
	case o.IsPaused:
		return AutoOrderPaused
	default:
		return AutoOrderStopped
	}
}

// Validate checks the static invariants of the template. The stop/take
// ordering against the live price is re-checked by the risk validator at
// trigger time; here only the relative ordering of the two levels is
// enforced.
func (o *AutoOrder) Validate() error {
	if strings.TrimSpace(o.StrategyName) == "" {
		return fmt.Errorf("strategy name is required")
	}
	if strings.TrimSpace(o.Symbol) == "" {
		return fmt.Errorf("symbol is required")
	}
	if strings.TrimSpace(o.EntryConditionID) == "" {
		return fmt.Errorf("entry condition id is required")
	}
	if _, err := ParseMarketType(string(o.MarketType)); err != nil {
		return err
	}
	if _, err := ParseOrderSide(string(o.Side)); err != nil {
		return err
	}
	if !o.Quantity.IsPositive() {
		return fmt.Errorf("quantity must be positive, got %s", o.Quantity)
	}
	if o.MaxSlippage < 0 || o.MaxSlippage > 1 {
		return fmt.Errorf("max_slippage must be in [0,1], got %v", o.MaxSlippage)
	}
	if o.MaxSpread < 0 || o.MaxSpread > 1 {
		return fmt.Errorf("max_spread must be in [0,1], got %v", o.MaxSpread)
	}
	if o.IsActive && o.IsPaused {
		return fmt.Errorf("auto order cannot be active and paused at once")
	}
	if o.StopLossPrice != nil && o.TakeProfitPrice != nil {
		sl, tp := *o.StopLossPrice, *o.TakeProfitPrice
		switch o.Side {
		case SideBuy:
			if !sl.LessThan(tp) {
				return fmt.Errorf("buy order requires stop_loss < take_profit (got %s >= %s)", sl, tp)
			}
		case SideSell:
			if !sl.GreaterThan(tp) {
				return fmt.Errorf("sell order requires stop_loss > take_profit (got %s <= %s)", sl, tp)
			}
		}
	}
	return nil
}
