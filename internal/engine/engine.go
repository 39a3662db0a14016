// Package engine evaluates enabled conditions against market snapshots on a
// fixed cadence and emits one trigger per qualifying edge.
package engine

import (
	"context"
	"sync"
	"time"

	"condor/internal/logger"
	"condor/internal/market"
	"condor/internal/model"
	"condor/internal/pkg/circuit"
	"condor/internal/scheduler"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// ConditionStore is the slice of the store the engine needs.
type ConditionStore interface {
	ListEnabledConditions(ctx context.Context) ([]model.Condition, error)
	SetConditionStatus(ctx context.Context, id string, status model.ConditionStatus) error
	RecordTrigger(ctx context.Context, id string, at time.Time) error
}

// Trigger pairs the emitted event with the snapshot it was evaluated against.
// Ack must be called exactly once by the consumer; it returns the condition
// to idle and re-arms it for the next edge.
type Trigger struct {
	Event    model.TriggerEvent
	Snapshot market.Snapshot
	Ack      func()
}

type Params struct {
	Store            ConditionStore
	Source           market.Source
	Breaker          *circuit.Breaker
	EvalInterval     time.Duration
	MaxConcurrent    int
	TriggerQueueSize int
	RunImmediately   bool
}

type Engine struct {
	store         ConditionStore
	source        market.Source
	breaker       *circuit.Breaker
	interval      time.Duration
	maxConcurrent int
	runImmediate  bool

	triggers chan Trigger

	mu      sync.Mutex
	runtime map[string]*conditionRuntime

	nowFn func() time.Time
}

// conditionRuntime is the per-condition evaluation memory. Its mutex
// serializes status mutation and trigger emission for one condition; the
// pending flag holds the condition out of evaluation until the dispatcher
// acks the previous trigger.
type conditionRuntime struct {
	mu      sync.Mutex
	prev    *decimal.Decimal
	prevSat bool
	sampled bool
	pending bool
}

func New(p Params) *Engine {
	if p.MaxConcurrent <= 0 {
		p.MaxConcurrent = 8
	}
	if p.TriggerQueueSize <= 0 {
		p.TriggerQueueSize = 64
	}
	if p.Breaker == nil {
		p.Breaker = circuit.NewBreaker("market-source", 5, 2*time.Minute)
	}
	return &Engine{
		store:         p.Store,
		source:        p.Source,
		breaker:       p.Breaker,
		interval:      p.EvalInterval,
		maxConcurrent: p.MaxConcurrent,
		runImmediate:  p.RunImmediately,
		triggers:      make(chan Trigger, p.TriggerQueueSize),
		runtime:       make(map[string]*conditionRuntime),
		nowFn:         time.Now,
	}
}

// Triggers is the single-consumer trigger queue read by the dispatcher.
func (e *Engine) Triggers() <-chan Trigger { return e.triggers }

// Run blocks evaluating cycles until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	sched := scheduler.NewIntervalScheduler(ctx, e.interval)
	sched.Name = "condition-eval"
	sched.RunImmediately = e.runImmediate
	sched.Start(func() {
		if err := e.Cycle(ctx); err != nil {
			logger.Errorf("engine: cycle failed err=%v", err)
		}
	})
}

// Cycle evaluates every enabled condition once. Conditions are independent
// and evaluated concurrently; a failure on one never aborts the others.
func (e *Engine) Cycle(ctx context.Context) error {
	conditions, err := e.store.ListEnabledConditions(ctx)
	if err != nil {
		return err
	}
	if len(conditions) == 0 {
		return nil
	}
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(e.maxConcurrent)
	for i := range conditions {
		cond := conditions[i]
		group.Go(func() error {
			e.evaluateOne(gctx, &cond)
			return nil
		})
	}
	return group.Wait()
}

func (e *Engine) runtimeFor(id string) *conditionRuntime {
	e.mu.Lock()
	defer e.mu.Unlock()
	rt, ok := e.runtime[id]
	if !ok {
		rt = &conditionRuntime{}
		e.runtime[id] = rt
	}
	return rt
}

// evaluateOne runs the idle→evaluating→{triggered|idle|error} transition for
// a single condition. All outcomes are absorbed here; evaluation errors mark
// the condition and retry next cycle.
func (e *Engine) evaluateOne(ctx context.Context, cond *model.Condition) {
	rt := e.runtimeFor(cond.ID)
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.pending {
		// Previous trigger not yet consumed; never double-fire one edge.
		logger.Debugf("engine: condition=%s trigger pending, skip", cond.ID)
		return
	}

	_ = e.store.SetConditionStatus(ctx, cond.ID, model.ConditionEvaluating)

	var snap market.Snapshot
	err := e.breaker.Do(func() error {
		var ferr error
		snap, ferr = e.source.GetSnapshot(ctx, cond.Symbol)
		return ferr
	})
	if err != nil {
		e.markError(ctx, cond, err)
		return
	}

	operand, threshold, err := resolveComparison(cond, snap)
	if err != nil {
		e.markError(ctx, cond, err)
		return
	}

	fire := false
	if cond.Operator.Edge() {
		fire = crossed(cond.Operator, rt.prev, operand, threshold)
	} else {
		sat, satErr := satisfied(cond.Operator, operand, threshold)
		if satErr != nil {
			e.markError(ctx, cond, satErr)
			return
		}
		// Level operators are still transition-triggered: fire on
		// not-satisfied→satisfied, including the first observation.
		fire = sat && (!rt.sampled || !rt.prevSat)
		rt.prevSat = sat
	}
	prev := operand
	rt.prev = &prev
	rt.sampled = true

	if !fire {
		_ = e.store.SetConditionStatus(ctx, cond.ID, model.ConditionIdle)
		return
	}

	now := e.nowFn()
	if err := e.store.RecordTrigger(ctx, cond.ID, now); err != nil {
		// The condition may have been disabled between the list and now;
		// dropping the trigger honors cancellation semantics.
		logger.Warnf("engine: condition=%s trigger not recorded err=%v", cond.ID, err)
		return
	}
	rt.pending = true

	trig := Trigger{
		Event: model.TriggerEvent{
			ID:          uuid.NewString(),
			ConditionID: cond.ID,
			Condition:   *cond,
			Observed:    operand,
			FiredAt:     now,
		},
		Snapshot: snap,
		Ack: func() {
			rt.mu.Lock()
			rt.pending = false
			rt.mu.Unlock()
			_ = e.store.SetConditionStatus(context.Background(), cond.ID, model.ConditionIdle)
		},
	}

	select {
	case e.triggers <- trig:
		logger.Infof("engine: condition=%s (%s) triggered symbol=%s observed=%s",
			cond.ID, cond.Name, cond.Symbol, operand)
	case <-ctx.Done():
		rt.pending = false
		logger.Warnf("engine: ctx done before trigger handoff condition=%s", cond.ID)
	}
}

func (e *Engine) markError(ctx context.Context, cond *model.Condition, cause error) {
	logger.Warnf("engine: condition=%s evaluation error symbol=%s err=%v", cond.ID, cond.Symbol, cause)
	_ = e.store.SetConditionStatus(ctx, cond.ID, model.ConditionError)
}
