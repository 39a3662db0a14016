package model

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCondition() Condition {
	return Condition{
		ID:       "c1",
		Name:     "btc above 50k",
		Type:     ConditionTypePrice,
		Operator: OpGreater,
		Value:    NumberValue(decimal.NewFromInt(50000)),
		Symbol:   "BTC/USDT",
		Priority: 3,
		Enabled:  true,
		Status:   ConditionIdle,
	}
}

func TestConditionValueJSONRoundTrip(t *testing.T) {
	num := NumberValue(decimal.RequireFromString("50000.5"))
	raw, err := json.Marshal(num)
	require.NoError(t, err)
	assert.Equal(t, "50000.5", string(raw))

	var back ConditionValue
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, ValueKindNumber, back.Kind())
	n, ok := back.Number()
	require.True(t, ok)
	assert.True(t, n.Equal(decimal.RequireFromString("50000.5")))

	sym := SymbolValue("rsi_14:70")
	raw, err = json.Marshal(sym)
	require.NoError(t, err)
	assert.Equal(t, `"rsi_14:70"`, string(raw))

	require.NoError(t, json.Unmarshal(raw, &back))
	s, ok := back.Symbol()
	require.True(t, ok)
	assert.Equal(t, "rsi_14:70", s)
}

func TestConditionValueRejectsGarbage(t *testing.T) {
	var v ConditionValue
	assert.Error(t, json.Unmarshal([]byte(`{"x":1}`), &v))
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &v))
}

func TestConditionValidate(t *testing.T) {
	c := validCondition()
	assert.NoError(t, c.Validate())

	c = validCondition()
	c.Priority = 0
	assert.Error(t, c.Validate())
	c.Priority = 6
	assert.Error(t, c.Validate())

	c = validCondition()
	c.Name = "  "
	assert.Error(t, c.Validate())

	c = validCondition()
	c.Symbol = ""
	assert.Error(t, c.Validate())

	c = validCondition()
	c.Operator = "between"
	assert.Error(t, c.Validate())

	// price 条件必须用数值。
	c = validCondition()
	c.Value = SymbolValue("rsi_14:70")
	assert.Error(t, c.Validate())

	// technical 条件必须用符号值。
	c = validCondition()
	c.Type = ConditionTypeTechnical
	assert.Error(t, c.Validate())
	c.Value = SymbolValue("rsi_14:70")
	assert.NoError(t, c.Validate())
}

func TestConditionCategory(t *testing.T) {
	c := validCondition()
	assert.Equal(t, CategoryPriceAlert, c.Category())
	c.Type = ConditionTypeVolume
	assert.Equal(t, CategoryVolumeAlert, c.Category())
	c.Type = ConditionTypeTechnical
	assert.Equal(t, CategoryTechnicalAlert, c.Category())
	c.Type = ConditionTypeTime
	assert.Equal(t, CategoryCustom, c.Category())
	c.Type = ConditionTypeMarket
	assert.Equal(t, CategoryCustom, c.Category())
}

func TestOperatorEdge(t *testing.T) {
	assert.True(t, OpCrossesAbove.Edge())
	assert.True(t, OpCrossesBelow.Edge())
	assert.False(t, OpGreater.Edge())
	assert.False(t, OpEqual.Edge())
}
