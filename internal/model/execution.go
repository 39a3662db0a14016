package model

import (
	"time"
)

type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionExecuting ExecutionStatus = "executing"
	ExecutionRetrying  ExecutionStatus = "retrying"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// Terminal reports whether the status admits no further transition.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed
}

// OrderExecution is one attempt to submit and complete the order bound to a
// triggered AutoOrder. Records are append-only per AutoOrder: a retry
// supersedes the previous record instead of mutating it.
type OrderExecution struct {
	ID            string          `json:"id"`
	AutoOrderID   string          `json:"auto_order_id"`
	ExternalID    string          `json:"external_id,omitempty"`
	RequestedAt   time.Time       `json:"requested_at"`
	SubmittedAt   *time.Time      `json:"submitted_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	Status        ExecutionStatus `json:"status"`
	FailureReason string          `json:"failure_reason,omitempty"`
	RetryAttempt  uint            `json:"retry_attempt"`
}
