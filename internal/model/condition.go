// Package model holds the domain entities shared by the evaluation engine,
// dispatcher, tracker and notification components.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type ConditionType string

const (
	ConditionTypePrice     ConditionType = "price"
	ConditionTypeVolume    ConditionType = "volume"
	ConditionTypeTime      ConditionType = "time"
	ConditionTypeTechnical ConditionType = "technical"
	ConditionTypeMarket    ConditionType = "market"
)

func ParseConditionType(s string) (ConditionType, error) {
	switch ConditionType(strings.ToLower(strings.TrimSpace(s))) {
	case ConditionTypePrice:
		return ConditionTypePrice, nil
	case ConditionTypeVolume:
		return ConditionTypeVolume, nil
	case ConditionTypeTime:
		return ConditionTypeTime, nil
	case ConditionTypeTechnical:
		return ConditionTypeTechnical, nil
	case ConditionTypeMarket:
		return ConditionTypeMarket, nil
	default:
		return "", fmt.Errorf("unknown condition type %q", s)
	}
}

// Numeric reports whether conditions of this type compare against a numeric
// value. The remaining types carry a symbolic value (indicator key, market
// phase, time expression).
func (t ConditionType) Numeric() bool {
	return t == ConditionTypePrice || t == ConditionTypeVolume
}

type ConditionOperator string

const (
	OpGreater      ConditionOperator = ">"
	OpLess         ConditionOperator = "<"
	OpGreaterEq    ConditionOperator = ">="
	OpLessEq       ConditionOperator = "<="
	OpEqual        ConditionOperator = "=="
	OpCrossesAbove ConditionOperator = "crosses_above"
	OpCrossesBelow ConditionOperator = "crosses_below"
)

func ParseConditionOperator(s string) (ConditionOperator, error) {
	switch ConditionOperator(strings.TrimSpace(s)) {
	case OpGreater, OpLess, OpGreaterEq, OpLessEq, OpEqual, OpCrossesAbove, OpCrossesBelow:
		return ConditionOperator(strings.TrimSpace(s)), nil
	default:
		return "", fmt.Errorf("unknown condition operator %q", s)
	}
}

// Edge reports whether the operator is edge-triggered (fires on a crossing,
// not while the level holds).
func (op ConditionOperator) Edge() bool {
	return op == OpCrossesAbove || op == OpCrossesBelow
}

type ConditionStatus string

const (
	ConditionIdle       ConditionStatus = "idle"
	ConditionEvaluating ConditionStatus = "evaluating"
	ConditionTriggered  ConditionStatus = "triggered"
	ConditionError      ConditionStatus = "error"
	ConditionDisabled   ConditionStatus = "disabled"
)

// ValueKind discriminates the two arms of ConditionValue.
type ValueKind int

const (
	ValueKindNumber ValueKind = iota
	ValueKindSymbol
)

// ConditionValue is a tagged union: numeric for price/volume conditions,
// symbolic for technical/time/market ones. The zero value is the number 0.
type ConditionValue struct {
	kind   ValueKind
	number decimal.Decimal
	symbol string
}

func NumberValue(d decimal.Decimal) ConditionValue {
	return ConditionValue{kind: ValueKindNumber, number: d}
}

func SymbolValue(s string) ConditionValue {
	return ConditionValue{kind: ValueKindSymbol, symbol: s}
}

func (v ConditionValue) Kind() ValueKind { return v.kind }

// Number returns the numeric arm. Ok is false for symbolic values.
func (v ConditionValue) Number() (decimal.Decimal, bool) {
	if v.kind != ValueKindNumber {
		return decimal.Zero, false
	}
	return v.number, true
}

// Symbol returns the symbolic arm. Ok is false for numeric values.
func (v ConditionValue) Symbol() (string, bool) {
	if v.kind != ValueKindSymbol {
		return "", false
	}
	return v.symbol, true
}

func (v ConditionValue) String() string {
	if v.kind == ValueKindSymbol {
		return v.symbol
	}
	return v.number.String()
}

func (v ConditionValue) MarshalJSON() ([]byte, error) {
	if v.kind == ValueKindSymbol {
		return json.Marshal(v.symbol)
	}
	return []byte(v.number.String()), nil
}

func (v *ConditionValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = SymbolValue(s)
		return nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(string(data)))
	if err != nil {
		return fmt.Errorf("condition value must be a number or a string: %w", err)
	}
	*v = NumberValue(d)
	return nil
}

// Condition is a user-defined predicate over market data. The engine is the
// only writer of Status, TriggerCount and LastTriggered.
type Condition struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Description  string            `json:"description,omitempty"`
	Type         ConditionType     `json:"type"`
	Operator     ConditionOperator `json:"operator"`
	Value        ConditionValue    `json:"value"`
	Symbol       string            `json:"symbol"`
	Priority     int               `json:"priority"`
	Enabled      bool              `json:"enabled"`
	Status       ConditionStatus   `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	LastTriggered *time.Time       `json:"last_triggered,omitempty"`
	TriggerCount uint64            `json:"trigger_count"`
}

// Validate checks the static invariants: priority range, symbol presence and
// the type/value tag agreement. Status consistency (disabled iff !enabled) is
// enforced by the store on write.
func (c *Condition) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("condition name is required")
	}
	if strings.TrimSpace(c.Symbol) == "" {
		return fmt.Errorf("condition symbol is required")
	}
	if _, err := ParseConditionType(string(c.Type)); err != nil {
		return err
	}
	if _, err := ParseConditionOperator(string(c.Operator)); err != nil {
		return err
	}
	if c.Priority < 1 || c.Priority > 5 {
		return fmt.Errorf("condition priority must be in [1,5], got %d", c.Priority)
	}
	if c.Type.Numeric() && c.Value.Kind() != ValueKindNumber {
		return fmt.Errorf("%s condition requires a numeric value", c.Type)
	}
	if !c.Type.Numeric() && c.Value.Kind() != ValueKindSymbol {
		return fmt.Errorf("%s condition requires a symbolic value", c.Type)
	}
	return nil
}

// Category maps a condition to the notification template category used when
// it triggers.
func (c *Condition) Category() EventCategory {
	switch c.Type {
	case ConditionTypePrice:
		return CategoryPriceAlert
	case ConditionTypeVolume:
		return CategoryVolumeAlert
	case ConditionTypeTechnical:
		return CategoryTechnicalAlert
	default:
		return CategoryCustom
	}
}
