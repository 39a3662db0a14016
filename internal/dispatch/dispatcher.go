// Package dispatch converts allowed triggers into submitted orders, with an
// at-most-one in-flight submission guarantee per auto order: a trigger that
// arrives while a previous execution is still live is coalesced (dropped with
// a logged skip), never queued.
package dispatch

import (
	"context"
	"sync"
	"time"

	"condor/internal/engine"
	"condor/internal/logger"
	"condor/internal/model"
	"condor/internal/risk"
	"condor/internal/tracker"

	"github.com/google/uuid"
)

// AutoOrderStore is the slice of the store the dispatcher reads.
type AutoOrderStore interface {
	GetAutoOrderByCondition(ctx context.Context, conditionID string) (*model.AutoOrder, error)
}

// TriggerNotifier receives the trigger-fired event for user notification.
type TriggerNotifier interface {
	NotifyTrigger(ctx context.Context, ev model.TriggerEvent)
}

type Dispatcher struct {
	store     AutoOrderStore
	validator *risk.Validator
	tracker   *tracker.Tracker
	notifier  TriggerNotifier // optional

	// inflight holds auto order ids with a live execution; the check-and-set
	// on this map is the cross-cutting invariant.
	inflight sync.Map

	nowFn func() time.Time
}

func New(store AutoOrderStore, validator *risk.Validator, tr *tracker.Tracker, notifier TriggerNotifier) *Dispatcher {
	d := &Dispatcher{
		store:     store,
		validator: validator,
		tracker:   tr,
		notifier:  notifier,
		nowFn:     time.Now,
	}
	// The gate clears when the tracker reports a terminal state; in-flight
	// executions are never aborted, only left to finish.
	tr.Subscribe(func(ev model.ExecutionEvent) {
		if ev.Execution.Status.Terminal() {
			d.inflight.Delete(ev.AutoOrder.ID)
		}
	})
	return d
}

// Run consumes the engine's trigger queue until ctx is done. It is the single
// consumer: acking each trigger re-arms its condition.
func (d *Dispatcher) Run(ctx context.Context, triggers <-chan engine.Trigger) {
	for {
		select {
		case <-ctx.Done():
			return
		case trig, ok := <-triggers:
			if !ok {
				return
			}
			d.Handle(ctx, trig)
			trig.Ack()
		}
	}
}

// Handle processes one trigger end to end. Every outcome counts as consumed.
func (d *Dispatcher) Handle(ctx context.Context, trig engine.Trigger) {
	ev := trig.Event
	if d.notifier != nil {
		d.notifier.NotifyTrigger(ctx, ev)
	}

	order, err := d.store.GetAutoOrderByCondition(ctx, ev.ConditionID)
	if err != nil {
		logger.Warnf("dispatch: trigger=%s condition=%s has no auto order err=%v", ev.ID, ev.ConditionID, err)
		return
	}

	decision := d.validator.Check(order, trig.Snapshot)
	if !decision.Allowed {
		// Risk rejection is expected: log the skipped execution and leave the
		// condition eligible for its next edge.
		logger.Infof("dispatch: skipped trigger=%s order=%s reason=%s detail=%s",
			ev.ID, order.ID, decision.Reason, decision.Detail)
		return
	}

	if _, loaded := d.inflight.LoadOrStore(order.ID, ev.ID); loaded {
		logger.Infof("dispatch: coalesced trigger=%s order=%s (execution in flight)", ev.ID, order.ID)
		return
	}

	exec := model.OrderExecution{
		ID:          uuid.NewString(),
		AutoOrderID: order.ID,
		RequestedAt: d.nowFn(),
		Status:      model.ExecutionPending,
	}
	if err := d.tracker.Begin(ctx, *order, exec); err != nil {
		d.inflight.Delete(order.ID)
		logger.Errorf("dispatch: begin failed trigger=%s order=%s err=%v", ev.ID, order.ID, err)
		return
	}
	logger.Infof("dispatch: submitted trigger=%s order=%s exec=%s", ev.ID, order.ID, exec.ID)
}

// InFlight reports whether the auto order currently holds the gate.
func (d *Dispatcher) InFlight(autoOrderID string) bool {
	_, ok := d.inflight.Load(autoOrderID)
	return ok
}
