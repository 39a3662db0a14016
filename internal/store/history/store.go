// Package history is the read side of the order history surface: plain SQL
// over the same SQLite file the gorm store writes, serving the
// /order-history endpoints and aggregate statistics.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("history store: sqlite 路径不能为空")
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&mode=ro", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	return &Store{db: db}, nil
}

// OpenRW opens the store without read-only mode (used by tests that share a
// fresh file with the writer).
func OpenRW(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", strings.TrimSpace(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Entry is one row of the order history list: an execution joined with its
// owning auto order.
type Entry struct {
	ExecutionID   string     `json:"execution_id"`
	AutoOrderID   string     `json:"auto_order_id"`
	StrategyName  string     `json:"strategy_name"`
	Symbol        string     `json:"symbol"`
	Side          string     `json:"order_side"`
	Quantity      string     `json:"quantity"`
	Status        string     `json:"status"`
	FailureReason string     `json:"failure_reason,omitempty"`
	RetryAttempt  uint       `json:"retry_attempt"`
	RequestedAt   time.Time  `json:"requested_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

type ListOptions struct {
	Symbol string
	Status string
	Limit  int
	Offset int
}

func (s *Store) List(ctx context.Context, opts ListOptions) ([]Entry, error) {
	query := `SELECT e.id, e.auto_order_id, o.strategy_name, o.symbol, o.order_side, o.quantity,
		e.status, e.failure_reason, e.retry_attempt, e.requested_at, e.completed_at
		FROM order_executions e
		JOIN auto_orders o ON o.id = e.auto_order_id`
	var conds []string
	var args []any
	if strings.TrimSpace(opts.Symbol) != "" {
		conds = append(conds, "o.symbol = ?")
		args = append(args, strings.TrimSpace(opts.Symbol))
	}
	if strings.TrimSpace(opts.Status) != "" {
		conds = append(conds, "e.status = ?")
		args = append(args, strings.TrimSpace(opts.Status))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY e.requested_at DESC"
	limit := opts.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var requested int64
		var completed sql.NullInt64
		var failure sql.NullString
		if err := rows.Scan(&e.ExecutionID, &e.AutoOrderID, &e.StrategyName, &e.Symbol, &e.Side,
			&e.Quantity, &e.Status, &failure, &e.RetryAttempt, &requested, &completed); err != nil {
			return nil, err
		}
		e.RequestedAt = time.Unix(requested, 0)
		if completed.Valid {
			t := time.Unix(completed.Int64, 0)
			e.CompletedAt = &t
		}
		e.FailureReason = failure.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// Stats aggregates execution outcomes and trigger totals for the reporting
// surface.
type Stats struct {
	TotalExecutions int64            `json:"total_executions"`
	Completed       int64            `json:"completed"`
	Failed          int64            `json:"failed"`
	InFlight        int64            `json:"in_flight"`
	SuccessRate     float64          `json:"success_rate"`
	TotalTriggers   int64            `json:"total_triggers"`
	BySymbol        map[string]int64 `json:"by_symbol"`
}

func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{BySymbol: make(map[string]int64)}
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*),
		COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
		FROM order_executions`)
	if err := row.Scan(&st.TotalExecutions, &st.Completed, &st.Failed); err != nil {
		return nil, err
	}
	// In-flight counts only the newest record of each retry chain; superseded
	// records keep their retrying status.
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM order_executions e
		WHERE e.status NOT IN ('completed','failed') AND NOT EXISTS (
			SELECT 1 FROM order_executions n
			WHERE n.auto_order_id = e.auto_order_id
			  AND (n.requested_at > e.requested_at
			       OR (n.requested_at = e.requested_at AND n.retry_attempt > e.retry_attempt))
		)`).Scan(&st.InFlight); err != nil {
		return nil, err
	}
	terminal := st.Completed + st.Failed
	if terminal > 0 {
		st.SuccessRate = float64(st.Completed) / float64(terminal)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(trigger_count), 0) FROM conditions`).Scan(&st.TotalTriggers); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT o.symbol, COUNT(*)
		FROM order_executions e JOIN auto_orders o ON o.id = e.auto_order_id
		GROUP BY o.symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var symbol string
		var n int64
		if err := rows.Scan(&symbol, &n); err != nil {
			return nil, err
		}
		st.BySymbol[symbol] = n
	}
	return st, rows.Err()
}

// InFlight lists only non-terminal executions (the real-time status view the
// client polls every few seconds).
func (s *Store) InFlight(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT e.id, e.auto_order_id, o.strategy_name, o.symbol,
		o.order_side, o.quantity, e.status, e.failure_reason, e.retry_attempt, e.requested_at, e.completed_at
		FROM order_executions e
		JOIN auto_orders o ON o.id = e.auto_order_id
		WHERE e.status NOT IN ('completed','failed') AND NOT EXISTS (
			SELECT 1 FROM order_executions n
			WHERE n.auto_order_id = e.auto_order_id
			  AND (n.requested_at > e.requested_at
			       OR (n.requested_at = e.requested_at AND n.retry_attempt > e.retry_attempt))
		)
		ORDER BY e.requested_at DESC LIMIT 100`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		var requested int64
		var completed sql.NullInt64
		var failure sql.NullString
		if err := rows.Scan(&e.ExecutionID, &e.AutoOrderID, &e.StrategyName, &e.Symbol, &e.Side,
			&e.Quantity, &e.Status, &failure, &e.RetryAttempt, &requested, &completed); err != nil {
			return nil, err
		}
		e.RequestedAt = time.Unix(requested, 0)
		if completed.Valid {
			t := time.Unix(completed.Int64, 0)
			e.CompletedAt = &t
		}
		e.FailureReason = failure.String
		out = append(out, e)
	}
	return out, rows.Err()
}
