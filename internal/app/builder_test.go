package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	condorcfg "condor/internal/config"
	"condor/internal/model"
	"condor/internal/store"
	"condor/internal/store/gormstore"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(sqlitePath string) *condorcfg.Config {
	return &condorcfg.Config{
		Engine: condorcfg.EngineConfig{
			EvalIntervalSeconds: 60,
			MaxConcurrentEvals:  2,
			StalenessSeconds:    120,
			TriggerQueueSize:    8,
		},
		Market: condorcfg.MarketConfig{Source: "sim"},
		Execution: condorcfg.ExecutionConfig{
			MaxRetries:        1,
			RetryDelaySeconds: 1,
		},
		Store: condorcfg.StoreConfig{SQLitePath: sqlitePath},
	}
}

// 重启后上一进程遗留的非终态执行必须在装配阶段被关闭，
// 否则自动订单会被幽灵在途记录永久占用。
func TestBuildFailsOverStaleExecutions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "condor.db")
	ctx := context.Background()

	seed, err := gormstore.New(path)
	require.NoError(t, err)
	require.NoError(t, seed.SaveCondition(ctx, &model.Condition{
		ID: "c1", Name: "btc above 50k", Type: model.ConditionTypePrice,
		Operator: model.OpGreater, Value: model.NumberValue(decimal.NewFromInt(50000)),
		Symbol: "BTC/USDT", Priority: 3, Enabled: true, Status: model.ConditionIdle,
	}))
	require.NoError(t, seed.SaveAutoOrder(ctx, &model.AutoOrder{
		ID: "o1", StrategyName: "breakout", Symbol: "BTC/USDT",
		MarketType: model.MarketFutures, Side: model.SideBuy,
		Quantity: decimal.NewFromInt(1), EntryConditionID: "c1", IsActive: true,
	}))
	require.NoError(t, seed.SaveExecution(ctx, &model.OrderExecution{
		ID: "e1", AutoOrderID: "o1", Status: model.ExecutionExecuting,
		RequestedAt: time.Now().Add(-time.Minute),
	}))
	require.NoError(t, seed.Close())

	app, err := NewAppBuilder(testConfig(path)).Build(ctx)
	require.NoError(t, err)
	t.Cleanup(app.Close)

	_, err = app.store.ActiveExecution(ctx, "o1")
	assert.ErrorIs(t, err, store.ErrNotFound, "遗留执行关闭后不再在途")

	execs, err := app.store.ListExecutions(ctx, "o1", 10)
	require.NoError(t, err)
	require.NotEmpty(t, execs)
	assert.Equal(t, model.ExecutionFailed, execs[0].Status)
	assert.Equal(t, "interrupted by restart", execs[0].FailureReason)
	assert.False(t, app.dispatcher.InFlight("o1"))
}
