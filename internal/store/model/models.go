// Package model holds the gorm row types backing the domain entities.
// Times are stored as unix-second integers; structured payloads go into JSON
// text columns.
package model

import (
	"gorm.io/datatypes"
)

type ConditionModel struct {
	ID            string         `gorm:"column:id;primaryKey"`
	Name          string         `gorm:"column:name"`
	Description   string         `gorm:"column:description"`
	Type          string         `gorm:"column:type;index"`
	Operator      string         `gorm:"column:operator"`
	ValueJSON     datatypes.JSON `gorm:"column:value_json;type:TEXT"`
	Symbol        string         `gorm:"column:symbol;index"`
	Priority      int            `gorm:"column:priority"`
	Enabled       int            `gorm:"column:enabled;index"`
	Status        string         `gorm:"column:status"`
	TriggerCount  uint64         `gorm:"column:trigger_count"`
	LastTriggered *int64         `gorm:"column:last_triggered"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
	UpdatedAtUnix int64          `gorm:"column:updated_at"`
}

func (ConditionModel) TableName() string { return "conditions" }

type AutoOrderModel struct {
	ID                  string  `gorm:"column:id;primaryKey"`
	StrategyName        string  `gorm:"column:strategy_name"`
	Symbol              string  `gorm:"column:symbol;index"`
	MarketType          string  `gorm:"column:market_type"`
	Side                string  `gorm:"column:order_side"`
	Quantity            string  `gorm:"column:quantity"`
	EntryConditionID    string  `gorm:"column:entry_condition_id;index"`
	StopLossPrice       *string `gorm:"column:stop_loss_price"`
	TakeProfitPrice     *string `gorm:"column:take_profit_price"`
	MaxSlippage         float64 `gorm:"column:max_slippage"`
	MaxSpread           float64 `gorm:"column:max_spread"`
	IsActive            int     `gorm:"column:is_active;index"`
	IsPaused            int     `gorm:"column:is_paused"`
	ExecutionCount      uint64  `gorm:"column:execution_count"`
	LastExecutionResult string  `gorm:"column:last_execution_result"`
	CreatedAtUnix       int64   `gorm:"column:created_at"`
	UpdatedAtUnix       int64   `gorm:"column:updated_at"`
}

func (AutoOrderModel) TableName() string { return "auto_orders" }

type OrderExecutionModel struct {
	ID            string `gorm:"column:id;primaryKey"`
	AutoOrderID   string `gorm:"column:auto_order_id;index"`
	ExternalID    string `gorm:"column:external_id"`
	Status        string `gorm:"column:status;index"`
	FailureReason string `gorm:"column:failure_reason"`
	RetryAttempt  uint   `gorm:"column:retry_attempt"`
	RequestedAt   int64  `gorm:"column:requested_at"`
	SubmittedAt   *int64 `gorm:"column:submitted_at"`
	CompletedAt   *int64 `gorm:"column:completed_at"`
}

func (OrderExecutionModel) TableName() string { return "order_executions" }

type ChannelStatsModel struct {
	ID              string `gorm:"column:id;primaryKey"`
	Type            string `gorm:"column:type;uniqueIndex"`
	Enabled         int    `gorm:"column:enabled"`
	Degraded        int    `gorm:"column:degraded"`
	TotalSent       uint64 `gorm:"column:total_sent"`
	TotalSuccessful uint64 `gorm:"column:total_successful"`
	TotalFailed     uint64 `gorm:"column:total_failed"`
	LastUsed        *int64 `gorm:"column:last_used"`
}

func (ChannelStatsModel) TableName() string { return "notification_channels" }
