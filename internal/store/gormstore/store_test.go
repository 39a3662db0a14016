package gormstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"condor/internal/model"
	"condor/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "condor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testCondition(id string) *model.Condition {
	return &model.Condition{
		ID:       id,
		Name:     "btc above 50k",
		Type:     model.ConditionTypePrice,
		Operator: model.OpGreater,
		Value:    model.NumberValue(decimal.NewFromInt(50000)),
		Symbol:   "BTC/USDT",
		Priority: 3,
		Enabled:  true,
		Status:   model.ConditionIdle,
	}
}

func testAutoOrder(id, conditionID string) *model.AutoOrder {
	return &model.AutoOrder{
		ID:               id,
		StrategyName:     "breakout",
		Symbol:           "BTC/USDT",
		MarketType:       model.MarketFutures,
		Side:             model.SideBuy,
		Quantity:         decimal.RequireFromString("0.5"),
		EntryConditionID: conditionID,
		MaxSlippage:      0.01,
		MaxSpread:        0.005,
		IsActive:         true,
	}
}

func TestConditionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := testCondition("c1")
	require.NoError(t, s.SaveCondition(ctx, c))

	got, err := s.GetCondition(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, c.Name, got.Name)
	assert.Equal(t, model.ValueKindNumber, got.Value.Kind())
	n, _ := got.Value.Number()
	assert.True(t, n.Equal(decimal.NewFromInt(50000)))
	assert.True(t, got.Enabled)
	assert.Equal(t, model.ConditionIdle, got.Status)

	// Symbolic value survives the JSON column.
	tech := testCondition("c2")
	tech.Type = model.ConditionTypeTechnical
	tech.Value = model.SymbolValue("rsi_14:70")
	require.NoError(t, s.SaveCondition(ctx, tech))
	got, err = s.GetCondition(ctx, "c2")
	require.NoError(t, err)
	sym, ok := got.Value.Symbol()
	require.True(t, ok)
	assert.Equal(t, "rsi_14:70", sym)

	_, err = s.GetCondition(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSaveConditionRejectsInvalid(t *testing.T) {
	s := newTestStore(t)
	c := testCondition("c1")
	c.Priority = 9
	assert.Error(t, s.SaveCondition(context.Background(), c))
}

func TestListEnabledConditions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveCondition(ctx, testCondition("c1")))
	off := testCondition("c2")
	off.Enabled = false
	require.NoError(t, s.SaveCondition(ctx, off))

	all, err := s.ListConditions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	enabled, err := s.ListEnabledConditions(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, "c1", enabled[0].ID)

	// 禁用条件的 status 固定为 disabled。
	got, err := s.GetCondition(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, model.ConditionDisabled, got.Status)
}

func TestSetConditionEnabledOwnsStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveCondition(ctx, testCondition("c1")))

	require.NoError(t, s.SetConditionEnabled(ctx, "c1", false))
	got, _ := s.GetCondition(ctx, "c1")
	assert.Equal(t, model.ConditionDisabled, got.Status)

	// 禁用期间状态写入被忽略。
	require.NoError(t, s.SetConditionStatus(ctx, "c1", model.ConditionEvaluating))
	got, _ = s.GetCondition(ctx, "c1")
	assert.Equal(t, model.ConditionDisabled, got.Status)

	require.NoError(t, s.SetConditionEnabled(ctx, "c1", true))
	got, _ = s.GetCondition(ctx, "c1")
	assert.Equal(t, model.ConditionIdle, got.Status)

	assert.ErrorIs(t, s.SetConditionEnabled(ctx, "nope", true), store.ErrNotFound)
}

func TestRecordTrigger(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveCondition(ctx, testCondition("c1")))

	at := time.Now().Truncate(time.Second)
	require.NoError(t, s.RecordTrigger(ctx, "c1", at))
	require.NoError(t, s.RecordTrigger(ctx, "c1", at.Add(time.Minute)))

	got, err := s.GetCondition(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.TriggerCount, "trigger_count 单调递增")
	require.NotNil(t, got.LastTriggered)
	assert.Equal(t, at.Add(time.Minute).Unix(), got.LastTriggered.Unix())
	assert.Equal(t, model.ConditionTriggered, got.Status)

	// 已禁用的条件不再记录触发。
	require.NoError(t, s.SetConditionEnabled(ctx, "c1", false))
	assert.ErrorIs(t, s.RecordTrigger(ctx, "c1", at), store.ErrNotFound)
}

func TestAutoOrderRoundTripAndState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveCondition(ctx, testCondition("c1")))

	o := testAutoOrder("o1", "c1")
	sl, tp := decimal.RequireFromString("48000.5"), decimal.RequireFromString("55000")
	o.StopLossPrice, o.TakeProfitPrice = &sl, &tp
	require.NoError(t, s.SaveAutoOrder(ctx, o))

	got, err := s.GetAutoOrder(ctx, "o1")
	require.NoError(t, err)
	assert.True(t, got.Quantity.Equal(decimal.RequireFromString("0.5")))
	require.NotNil(t, got.StopLossPrice)
	assert.True(t, got.StopLossPrice.Equal(sl))
	assert.Equal(t, model.AutoOrderActive, got.State())

	byCond, err := s.GetAutoOrderByCondition(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "o1", byCond.ID)

	require.NoError(t, s.SetAutoOrderState(ctx, "o1", model.AutoOrderPaused))
	got, _ = s.GetAutoOrder(ctx, "o1")
	assert.Equal(t, model.AutoOrderPaused, got.State())

	require.NoError(t, s.SetAutoOrderState(ctx, "o1", model.AutoOrderStopped))
	got, _ = s.GetAutoOrder(ctx, "o1")
	assert.Equal(t, model.AutoOrderStopped, got.State())

	assert.ErrorIs(t, s.SetAutoOrderState(ctx, "nope", model.AutoOrderPaused), store.ErrNotFound)
}

func TestRecordExecutionResult(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveAutoOrder(ctx, testAutoOrder("o1", "c1")))

	// Non-terminal transitions update the result without bumping the count.
	require.NoError(t, s.RecordExecutionResult(ctx, "o1", "executing", false))
	got, _ := s.GetAutoOrder(ctx, "o1")
	assert.Equal(t, "executing", got.LastExecutionResult)
	assert.Equal(t, uint64(0), got.ExecutionCount)

	require.NoError(t, s.RecordExecutionResult(ctx, "o1", "completed", true))
	got, _ = s.GetAutoOrder(ctx, "o1")
	assert.Equal(t, uint64(1), got.ExecutionCount)
}

func execRecord(id, orderID string, status model.ExecutionStatus, requested time.Time, attempt uint) *model.OrderExecution {
	return &model.OrderExecution{
		ID:           id,
		AutoOrderID:  orderID,
		Status:       status,
		RequestedAt:  requested,
		RetryAttempt: attempt,
	}
}

func TestActiveExecutionUsesNewestChainRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Minute).Truncate(time.Second)

	// 被取代的记录永远停在 retrying。
	require.NoError(t, s.SaveExecution(ctx, execRecord("e1", "o1", model.ExecutionRetrying, base, 0)))
	require.NoError(t, s.SaveExecution(ctx, execRecord("e2", "o1", model.ExecutionExecuting, base.Add(10*time.Second), 1)))

	active, err := s.ActiveExecution(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "e2", active.ID)

	// Newest record terminal => nothing active, despite the stale retrying row.
	require.NoError(t, s.SaveExecution(ctx, execRecord("e3", "o1", model.ExecutionCompleted, base.Add(20*time.Second), 2)))
	_, err = s.ActiveExecution(ctx, "o1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.ActiveExecution(ctx, "other")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListExecutionsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	for i := 0; i < 5; i++ {
		rec := execRecord("e"+string(rune('1'+i)), "o1", model.ExecutionCompleted, base.Add(time.Duration(i)*time.Minute), 0)
		require.NoError(t, s.SaveExecution(ctx, rec))
	}
	execs, err := s.ListExecutions(ctx, "o1", 3)
	require.NoError(t, err)
	require.Len(t, execs, 3)
	assert.Equal(t, "e5", execs[0].ID)
}

func TestChannelStatsUpsertByType(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	first := &model.ChannelStats{ID: "s1", Type: model.ChannelTelegram, Enabled: true, TotalSent: 1, TotalSuccessful: 1, LastUsed: &now}
	require.NoError(t, s.SaveChannelStats(ctx, first))
	first.TotalSent = 2
	first.TotalFailed = 1
	first.Degraded = true
	require.NoError(t, s.SaveChannelStats(ctx, first))

	all, err := s.ListChannelStats(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1, "同一渠道类型只保留一行")
	assert.Equal(t, uint64(2), all[0].TotalSent)
	assert.True(t, all[0].Degraded)
}
