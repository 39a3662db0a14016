// Package store owns persistence of conditions, auto orders, execution
// records and channel statistics. Ownership is split by writer: the engine
// writes condition runtime state, the tracker writes executions and auto
// order counters, the notification dispatcher writes channel stats.
package store

import (
	"context"
	"errors"
	"time"

	"condor/internal/model"
)

var (
	ErrNotFound = errors.New("store: not found")
	// ErrReferenced is returned when deleting an entity that history still
	// points at; callers must soft-disable instead.
	ErrReferenced = errors.New("store: entity referenced by history")
)

type Store interface {
	// Conditions.
	SaveCondition(ctx context.Context, c *model.Condition) error
	GetCondition(ctx context.Context, id string) (*model.Condition, error)
	ListConditions(ctx context.Context) ([]model.Condition, error)
	ListEnabledConditions(ctx context.Context) ([]model.Condition, error)
	SetConditionEnabled(ctx context.Context, id string, enabled bool) error
	SetConditionStatus(ctx context.Context, id string, status model.ConditionStatus) error
	// RecordTrigger bumps trigger_count (monotonic) and last_triggered and
	// moves the condition to triggered.
	RecordTrigger(ctx context.Context, id string, at time.Time) error

	// Auto orders.
	SaveAutoOrder(ctx context.Context, o *model.AutoOrder) error
	GetAutoOrder(ctx context.Context, id string) (*model.AutoOrder, error)
	GetAutoOrderByCondition(ctx context.Context, conditionID string) (*model.AutoOrder, error)
	ListAutoOrders(ctx context.Context) ([]model.AutoOrder, error)
	SetAutoOrderState(ctx context.Context, id string, state model.AutoOrderState) error
	// RecordExecutionResult sets last_execution_result and, when terminal is
	// true, increments execution_count.
	RecordExecutionResult(ctx context.Context, autoOrderID, result string, terminal bool) error

	// Executions (append-only per auto order).
	SaveExecution(ctx context.Context, e *model.OrderExecution) error
	GetExecution(ctx context.Context, id string) (*model.OrderExecution, error)
	ListExecutions(ctx context.Context, autoOrderID string, limit int) ([]model.OrderExecution, error)
	// ActiveExecution returns the non-terminal execution for the auto order,
	// or ErrNotFound when everything is settled.
	ActiveExecution(ctx context.Context, autoOrderID string) (*model.OrderExecution, error)

	// Channel statistics.
	SaveChannelStats(ctx context.Context, s *model.ChannelStats) error
	ListChannelStats(ctx context.Context) ([]model.ChannelStats, error)

	Close() error
}
