// Package gormstore implements store.Store on gorm + SQLite.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"condor/internal/model"
	"condor/internal/store"
	storemodel "condor/internal/store/model"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

type GormStore struct {
	db    *gorm.DB
	nowFn func() time.Time
}

var _ store.Store = (*GormStore)(nil)

// New opens (and migrates) the SQLite database at path.
func New(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: sqlite 路径不能为空")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(
		&storemodel.ConditionModel{},
		&storemodel.AutoOrderModel{},
		&storemodel.OrderExecutionModel{},
		&storemodel.ChannelStatsModel{},
	); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: keep contention low while allowing concurrent HTTP reads.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db, nowFn: time.Now}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ---- conditions ----

func (s *GormStore) SaveCondition(ctx context.Context, c *model.Condition) error {
	if err := c.Validate(); err != nil {
		return err
	}
	row, err := conditionToRow(c, s.nowFn())
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(row).Error
}

func (s *GormStore) GetCondition(ctx context.Context, id string) (*model.Condition, error) {
	var row storemodel.ConditionModel
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: condition %s", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return rowToCondition(&row)
}

func (s *GormStore) ListConditions(ctx context.Context) ([]model.Condition, error) {
	return s.listConditions(ctx, s.db.WithContext(ctx))
}

func (s *GormStore) ListEnabledConditions(ctx context.Context) ([]model.Condition, error) {
	return s.listConditions(ctx, s.db.WithContext(ctx).Where("enabled = ?", 1))
}

func (s *GormStore) listConditions(_ context.Context, tx *gorm.DB) ([]model.Condition, error) {
	var rows []storemodel.ConditionModel
	if err := tx.Order("priority asc, created_at asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Condition, 0, len(rows))
	for i := range rows {
		c, err := rowToCondition(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, nil
}

// SetConditionEnabled keeps the invariant status==disabled iff enabled==false.
func (s *GormStore) SetConditionEnabled(ctx context.Context, id string, enabled bool) error {
	status := string(model.ConditionDisabled)
	flag := 0
	if enabled {
		status = string(model.ConditionIdle)
		flag = 1
	}
	res := s.db.WithContext(ctx).Model(&storemodel.ConditionModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"enabled":    flag,
			"status":     status,
			"updated_at": s.nowFn().Unix(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: condition %s", store.ErrNotFound, id)
	}
	return nil
}

// SetConditionStatus is a no-op on disabled conditions: their status is owned
// by the enabled flag.
func (s *GormStore) SetConditionStatus(ctx context.Context, id string, status model.ConditionStatus) error {
	res := s.db.WithContext(ctx).Model(&storemodel.ConditionModel{}).
		Where("id = ? AND enabled = ?", id, 1).
		Updates(map[string]any{
			"status":     string(status),
			"updated_at": s.nowFn().Unix(),
		})
	return res.Error
}

func (s *GormStore) RecordTrigger(ctx context.Context, id string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&storemodel.ConditionModel{}).
		Where("id = ? AND enabled = ?", id, 1).
		Updates(map[string]any{
			"trigger_count":  gorm.Expr("trigger_count + 1"),
			"last_triggered": at.Unix(),
			"status":         string(model.ConditionTriggered),
			"updated_at":     s.nowFn().Unix(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: enabled condition %s", store.ErrNotFound, id)
	}
	return nil
}

// ---- auto orders ----

func (s *GormStore) SaveAutoOrder(ctx context.Context, o *model.AutoOrder) error {
	if err := o.Validate(); err != nil {
		return err
	}
	row := autoOrderToRow(o, s.nowFn())
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(row).Error
}

func (s *GormStore) GetAutoOrder(ctx context.Context, id string) (*model.AutoOrder, error) {
	var row storemodel.AutoOrderModel
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: auto order %s", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return rowToAutoOrder(&row)
}

func (s *GormStore) GetAutoOrderByCondition(ctx context.Context, conditionID string) (*model.AutoOrder, error) {
	var row storemodel.AutoOrderModel
	err := s.db.WithContext(ctx).First(&row, "entry_condition_id = ?", conditionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: auto order for condition %s", store.ErrNotFound, conditionID)
	}
	if err != nil {
		return nil, err
	}
	return rowToAutoOrder(&row)
}

func (s *GormStore) ListAutoOrders(ctx context.Context) ([]model.AutoOrder, error) {
	var rows []storemodel.AutoOrderModel
	if err := s.db.WithContext(ctx).Order("created_at asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.AutoOrder, 0, len(rows))
	for i := range rows {
		o, err := rowToAutoOrder(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, nil
}

func (s *GormStore) SetAutoOrderState(ctx context.Context, id string, state model.AutoOrderState) error {
	var active, paused int
	switch state {
	case model.AutoOrderActive:
		active, paused = 1, 0
	case model.AutoOrderPaused:
		active, paused = 0, 1
	case model.AutoOrderStopped:
		active, paused = 0, 0
	default:
		return fmt.Errorf("unknown auto order state %q", state)
	}
	res := s.db.WithContext(ctx).Model(&storemodel.AutoOrderModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_active":  active,
			"is_paused":  paused,
			"updated_at": s.nowFn().Unix(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: auto order %s", store.ErrNotFound, id)
	}
	return nil
}

func (s *GormStore) RecordExecutionResult(ctx context.Context, autoOrderID, result string, terminal bool) error {
	updates := map[string]any{
		"last_execution_result": result,
		"updated_at":            s.nowFn().Unix(),
	}
	if terminal {
		updates["execution_count"] = gorm.Expr("execution_count + 1")
	}
	res := s.db.WithContext(ctx).Model(&storemodel.AutoOrderModel{}).
		Where("id = ?", autoOrderID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: auto order %s", store.ErrNotFound, autoOrderID)
	}
	return nil
}

// ---- executions ----

func (s *GormStore) SaveExecution(ctx context.Context, e *model.OrderExecution) error {
	row := executionToRow(e)
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(row).Error
}

func (s *GormStore) GetExecution(ctx context.Context, id string) (*model.OrderExecution, error) {
	var row storemodel.OrderExecutionModel
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: execution %s", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return rowToExecution(&row), nil
}

func (s *GormStore) ListExecutions(ctx context.Context, autoOrderID string, limit int) ([]model.OrderExecution, error) {
	q := s.db.WithContext(ctx).Where("auto_order_id = ?", autoOrderID).Order("requested_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []storemodel.OrderExecutionModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.OrderExecution, 0, len(rows))
	for i := range rows {
		out = append(out, *rowToExecution(&rows[i]))
	}
	return out, nil
}

// ActiveExecution inspects only the newest record of the retry chain: a
// superseded record keeps its retrying status forever, so raw non-terminal
// filtering would overcount.
func (s *GormStore) ActiveExecution(ctx context.Context, autoOrderID string) (*model.OrderExecution, error) {
	var row storemodel.OrderExecutionModel
	err := s.db.WithContext(ctx).
		Where("auto_order_id = ?", autoOrderID).
		Order("requested_at desc, retry_attempt desc").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: active execution for %s", store.ErrNotFound, autoOrderID)
	}
	if err != nil {
		return nil, err
	}
	exec := rowToExecution(&row)
	if exec.Status.Terminal() {
		return nil, fmt.Errorf("%w: active execution for %s", store.ErrNotFound, autoOrderID)
	}
	return exec, nil
}

// ---- channel stats ----

func (s *GormStore) SaveChannelStats(ctx context.Context, c *model.ChannelStats) error {
	row := channelToRow(c)
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "type"}}, UpdateAll: true}).
		Create(row).Error
}

func (s *GormStore) ListChannelStats(ctx context.Context) ([]model.ChannelStats, error) {
	var rows []storemodel.ChannelStatsModel
	if err := s.db.WithContext(ctx).Order("type asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.ChannelStats, 0, len(rows))
	for i := range rows {
		out = append(out, *rowToChannel(&rows[i]))
	}
	return out, nil
}

// ---- converters ----

func conditionToRow(c *model.Condition, now time.Time) (*storemodel.ConditionModel, error) {
	valueJSON, err := json.Marshal(c.Value)
	if err != nil {
		return nil, fmt.Errorf("marshal condition value: %w", err)
	}
	created := c.CreatedAt
	if created.IsZero() {
		created = now
	}
	status := c.Status
	if !c.Enabled {
		status = model.ConditionDisabled
	} else if status == "" || status == model.ConditionDisabled {
		status = model.ConditionIdle
	}
	row := &storemodel.ConditionModel{
		ID:            c.ID,
		Name:          c.Name,
		Description:   c.Description,
		Type:          string(c.Type),
		Operator:      string(c.Operator),
		ValueJSON:     datatypes.JSON(valueJSON),
		Symbol:        c.Symbol,
		Priority:      c.Priority,
		Enabled:       boolToInt(c.Enabled),
		Status:        string(status),
		TriggerCount:  c.TriggerCount,
		CreatedAtUnix: created.Unix(),
		UpdatedAtUnix: now.Unix(),
	}
	if c.LastTriggered != nil {
		ts := c.LastTriggered.Unix()
		row.LastTriggered = &ts
	}
	return row, nil
}

func rowToCondition(row *storemodel.ConditionModel) (*model.Condition, error) {
	var value model.ConditionValue
	if len(row.ValueJSON) > 0 {
		if err := json.Unmarshal(row.ValueJSON, &value); err != nil {
			return nil, fmt.Errorf("unmarshal condition value (%s): %w", row.ID, err)
		}
	}
	c := &model.Condition{
		ID:           row.ID,
		Name:         row.Name,
		Description:  row.Description,
		Type:         model.ConditionType(row.Type),
		Operator:     model.ConditionOperator(row.Operator),
		Value:        value,
		Symbol:       row.Symbol,
		Priority:     row.Priority,
		Enabled:      row.Enabled == 1,
		Status:       model.ConditionStatus(row.Status),
		TriggerCount: row.TriggerCount,
		CreatedAt:    time.Unix(row.CreatedAtUnix, 0),
		UpdatedAt:    time.Unix(row.UpdatedAtUnix, 0),
	}
	if row.LastTriggered != nil {
		t := time.Unix(*row.LastTriggered, 0)
		c.LastTriggered = &t
	}
	return c, nil
}

func autoOrderToRow(o *model.AutoOrder, now time.Time) *storemodel.AutoOrderModel {
	created := o.CreatedAt
	if created.IsZero() {
		created = now
	}
	row := &storemodel.AutoOrderModel{
		ID:                  o.ID,
		StrategyName:        o.StrategyName,
		Symbol:              o.Symbol,
		MarketType:          string(o.MarketType),
		Side:                string(o.Side),
		Quantity:            o.Quantity.String(),
		EntryConditionID:    o.EntryConditionID,
		MaxSlippage:         o.MaxSlippage,
		MaxSpread:           o.MaxSpread,
		IsActive:            boolToInt(o.IsActive),
		IsPaused:            boolToInt(o.IsPaused),
		ExecutionCount:      o.ExecutionCount,
		LastExecutionResult: o.LastExecutionResult,
		CreatedAtUnix:       created.Unix(),
		UpdatedAtUnix:       now.Unix(),
	}
	if o.StopLossPrice != nil {
		v := o.StopLossPrice.String()
		row.StopLossPrice = &v
	}
	if o.TakeProfitPrice != nil {
		v := o.TakeProfitPrice.String()
		row.TakeProfitPrice = &v
	}
	return row
}

func rowToAutoOrder(row *storemodel.AutoOrderModel) (*model.AutoOrder, error) {
	qty, err := decimal.NewFromString(row.Quantity)
	if err != nil {
		return nil, fmt.Errorf("auto order %s: bad quantity %q", row.ID, row.Quantity)
	}
	o := &model.AutoOrder{
		ID:                  row.ID,
		StrategyName:        row.StrategyName,
		Symbol:              row.Symbol,
		MarketType:          model.MarketType(row.MarketType),
		Side:                model.OrderSide(row.Side),
		Quantity:            qty,
		EntryConditionID:    row.EntryConditionID,
		MaxSlippage:         row.MaxSlippage,
		MaxSpread:           row.MaxSpread,
		IsActive:            row.IsActive == 1,
		IsPaused:            row.IsPaused == 1,
		ExecutionCount:      row.ExecutionCount,
		LastExecutionResult: row.LastExecutionResult,
		CreatedAt:           time.Unix(row.CreatedAtUnix, 0),
		UpdatedAt:           time.Unix(row.UpdatedAtUnix, 0),
	}
	if row.StopLossPrice != nil {
		d, convErr := decimal.NewFromString(*row.StopLossPrice)
		if convErr != nil {
			return nil, fmt.Errorf("auto order %s: bad stop loss %q", row.ID, *row.StopLossPrice)
		}
		o.StopLossPrice = &d
	}
	if row.TakeProfitPrice != nil {
		d, convErr := decimal.NewFromString(*row.TakeProfitPrice)
		if convErr != nil {
			return nil, fmt.Errorf("auto order %s: bad take profit %q", row.ID, *row.TakeProfitPrice)
		}
		o.TakeProfitPrice = &d
	}
	return o, nil
}

func executionToRow(e *model.OrderExecution) *storemodel.OrderExecutionModel {
	row := &storemodel.OrderExecutionModel{
		ID:            e.ID,
		AutoOrderID:   e.AutoOrderID,
		ExternalID:    e.ExternalID,
		Status:        string(e.Status),
		FailureReason: e.FailureReason,
		RetryAttempt:  e.RetryAttempt,
		RequestedAt:   e.RequestedAt.Unix(),
	}
	if e.SubmittedAt != nil {
		ts := e.SubmittedAt.Unix()
		row.SubmittedAt = &ts
	}
	if e.CompletedAt != nil {
		ts := e.CompletedAt.Unix()
		row.CompletedAt = &ts
	}
	return row
}

func rowToExecution(row *storemodel.OrderExecutionModel) *model.OrderExecution {
	e := &model.OrderExecution{
		ID:            row.ID,
		AutoOrderID:   row.AutoOrderID,
		ExternalID:    row.ExternalID,
		Status:        model.ExecutionStatus(row.Status),
		FailureReason: row.FailureReason,
		RetryAttempt:  row.RetryAttempt,
		RequestedAt:   time.Unix(row.RequestedAt, 0),
	}
	if row.SubmittedAt != nil {
		t := time.Unix(*row.SubmittedAt, 0)
		e.SubmittedAt = &t
	}
	if row.CompletedAt != nil {
		t := time.Unix(*row.CompletedAt, 0)
		e.CompletedAt = &t
	}
	return e
}

func channelToRow(c *model.ChannelStats) *storemodel.ChannelStatsModel {
	row := &storemodel.ChannelStatsModel{
		ID:              c.ID,
		Type:            string(c.Type),
		Enabled:         boolToInt(c.Enabled),
		Degraded:        boolToInt(c.Degraded),
		TotalSent:       c.TotalSent,
		TotalSuccessful: c.TotalSuccessful,
		TotalFailed:     c.TotalFailed,
	}
	if c.LastUsed != nil {
		ts := c.LastUsed.Unix()
		row.LastUsed = &ts
	}
	return row
}

func rowToChannel(row *storemodel.ChannelStatsModel) *model.ChannelStats {
	c := &model.ChannelStats{
		ID:              row.ID,
		Type:            model.ChannelType(row.Type),
		Enabled:         row.Enabled == 1,
		Degraded:        row.Degraded == 1,
		TotalSent:       row.TotalSent,
		TotalSuccessful: row.TotalSuccessful,
		TotalFailed:     row.TotalFailed,
	}
	if row.LastUsed != nil {
		t := time.Unix(*row.LastUsed, 0)
		c.LastUsed = &t
	}
	return c
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
