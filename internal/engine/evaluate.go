package engine

import (
	"fmt"
	"strconv"
	"strings"

	"condor/internal/market"
	"condor/internal/model"

	"github.com/shopspring/decimal"
)

// operand/threshold resolution per condition type. Symbolic values encode
// "<metric>:<threshold>" (e.g. "rsi_14:70", "spread:0.01"); time conditions
// use "HH:MM" and compare minutes since midnight of the snapshot timestamp.

func resolveComparison(c *model.Condition, snap market.Snapshot) (operand, threshold decimal.Decimal, err error) {
	switch c.Type {
	case model.ConditionTypePrice:
		num, ok := c.Value.Number()
		if !ok {
			return decimal.Zero, decimal.Zero, fmt.Errorf("price condition %s carries a symbolic value", c.ID)
		}
		if snap.Price.IsZero() {
			return decimal.Zero, decimal.Zero, fmt.Errorf("no price for %s", c.Symbol)
		}
		return snap.Price, num, nil

	case model.ConditionTypeVolume:
		num, ok := c.Value.Number()
		if !ok {
			return decimal.Zero, decimal.Zero, fmt.Errorf("volume condition %s carries a symbolic value", c.ID)
		}
		return snap.Volume, num, nil

	case model.ConditionTypeTechnical, model.ConditionTypeMarket:
		sym, ok := c.Value.Symbol()
		if !ok {
			return decimal.Zero, decimal.Zero, fmt.Errorf("%s condition %s carries a numeric value", c.Type, c.ID)
		}
		metric, th, parseErr := splitSymbolic(sym)
		if parseErr != nil {
			return decimal.Zero, decimal.Zero, parseErr
		}
		op, resolveErr := resolveMetric(metric, snap)
		if resolveErr != nil {
			return decimal.Zero, decimal.Zero, resolveErr
		}
		return op, th, nil

	case model.ConditionTypeTime:
		sym, ok := c.Value.Symbol()
		if !ok {
			return decimal.Zero, decimal.Zero, fmt.Errorf("time condition %s carries a numeric value", c.ID)
		}
		th, parseErr := parseClock(sym)
		if parseErr != nil {
			return decimal.Zero, decimal.Zero, parseErr
		}
		ts := snap.Timestamp
		minutes := int64(ts.Hour())*60 + int64(ts.Minute())
		return decimal.NewFromInt(minutes), th, nil

	default:
		return decimal.Zero, decimal.Zero, fmt.Errorf("unknown condition type %q", c.Type)
	}
}

// resolveMetric maps a symbolic metric name onto the snapshot: book fields
// first, then the indicator map.
func resolveMetric(metric string, snap market.Snapshot) (decimal.Decimal, error) {
	switch strings.ToLower(metric) {
	case "price":
		return snap.Price, nil
	case "volume":
		return snap.Volume, nil
	case "spread":
		return snap.Spread(), nil
	case "bid":
		return snap.Bid, nil
	case "ask":
		return snap.Ask, nil
	}
	if v, ok := snap.Indicators[strings.ToLower(metric)]; ok {
		return v, nil
	}
	return decimal.Zero, fmt.Errorf("metric %q not present in snapshot", metric)
}

func splitSymbolic(sym string) (metric string, threshold decimal.Decimal, err error) {
	parts := strings.SplitN(strings.TrimSpace(sym), ":", 2)
	if len(parts) != 2 {
		return "", decimal.Zero, fmt.Errorf("symbolic value must be metric:threshold, got %q", sym)
	}
	th, convErr := decimal.NewFromString(strings.TrimSpace(parts[1]))
	if convErr != nil {
		return "", decimal.Zero, fmt.Errorf("bad threshold in %q: %w", sym, convErr)
	}
	return strings.TrimSpace(parts[0]), th, nil
}

func parseClock(sym string) (decimal.Decimal, error) {
	parts := strings.SplitN(strings.TrimSpace(sym), ":", 2)
	if len(parts) != 2 {
		return decimal.Zero, fmt.Errorf("time value must be HH:MM, got %q", sym)
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return decimal.Zero, fmt.Errorf("time value must be HH:MM, got %q", sym)
	}
	return decimal.NewFromInt(int64(h)*60 + int64(m)), nil
}

// satisfied applies a level operator.
func satisfied(op model.ConditionOperator, operand, threshold decimal.Decimal) (bool, error) {
	switch op {
	case model.OpGreater:
		return operand.GreaterThan(threshold), nil
	case model.OpLess:
		return operand.LessThan(threshold), nil
	case model.OpGreaterEq:
		return operand.GreaterThanOrEqual(threshold), nil
	case model.OpLessEq:
		return operand.LessThanOrEqual(threshold), nil
	case model.OpEqual:
		return operand.Equal(threshold), nil
	default:
		return false, fmt.Errorf("operator %q is not a level operator", op)
	}
}

// crossed applies an edge operator against the previous sample. Without a
// previous sample there is no crossing.
func crossed(op model.ConditionOperator, prev *decimal.Decimal, operand, threshold decimal.Decimal) bool {
	if prev == nil {
		return false
	}
	switch op {
	case model.OpCrossesAbove:
		return prev.LessThan(threshold) && operand.GreaterThanOrEqual(threshold)
	case model.OpCrossesBelow:
		return prev.GreaterThan(threshold) && operand.LessThanOrEqual(threshold)
	default:
		return false
	}
}
