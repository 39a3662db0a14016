package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventCategory string

const (
	CategoryPriceAlert     EventCategory = "priceAlert"
	CategoryVolumeAlert    EventCategory = "volumeAlert"
	CategoryTechnicalAlert EventCategory = "technicalAlert"
	CategoryEmergencyAlert EventCategory = "emergencyAlert"
	CategoryCustom         EventCategory = "custom"
)

// TriggerEvent is produced when a condition transitions from not-satisfied to
// satisfied on a qualifying edge. One event per edge; the dispatcher is the
// single consumer.
type TriggerEvent struct {
	ID          string          `json:"id"`
	ConditionID string          `json:"condition_id"`
	Condition   Condition       `json:"condition"`
	Observed    decimal.Decimal `json:"observed"`
	FiredAt     time.Time       `json:"fired_at"`
}

// ExecutionEvent is published by the tracker on every execution state
// transition. Consumed by the notification dispatcher and the statistics
// surface.
type ExecutionEvent struct {
	Execution OrderExecution `json:"execution"`
	AutoOrder AutoOrder      `json:"auto_order"`
	Category  EventCategory  `json:"category"`
	Occurred  time.Time      `json:"occurred"`
}
