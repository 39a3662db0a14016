// Package tracker owns the OrderExecution lifecycle:
//
//	pending → executing → {completed | retrying → executing | failed}
//
// Retries are bounded and time-delayed off the evaluation loop; terminal
// records are never mutated, a retry appends a superseding record.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"condor/internal/logger"
	"condor/internal/model"

	"github.com/google/uuid"
)

var (
	ErrUnknownExecution = errors.New("tracker: unknown execution")
	ErrTerminalState    = errors.New("tracker: execution already terminal")
	ErrInvalidTransition = errors.New("tracker: invalid state transition")
)

// ExecutionStore is the slice of the store the tracker writes.
type ExecutionStore interface {
	SaveExecution(ctx context.Context, e *model.OrderExecution) error
	RecordExecutionResult(ctx context.Context, autoOrderID, result string, terminal bool) error
}

// OrderPlacer submits the order to the external placement API.
type OrderPlacer interface {
	SubmitOrder(ctx context.Context, order *model.AutoOrder) (externalID string, err error)
}

type Config struct {
	MaxRetries int           // bounded 0–10 by config validation
	RetryDelay time.Duration // linear: attempt n waits n*RetryDelay
}

type Tracker struct {
	store  ExecutionStore
	placer OrderPlacer
	cfg    Config

	mu      sync.Mutex
	tracked map[string]*trackedExecution // by execution id

	subsMu sync.RWMutex
	subs   []func(model.ExecutionEvent)

	// baseCtx governs background attempt loops and scheduled retries. Callers
	// like the webhook handler pass request-scoped contexts that die the
	// moment the response is written, so retry work must not inherit them.
	baseCtx context.Context

	nowFn func() time.Time
	// delayFn waits the given duration or until ctx is done; swapped in tests.
	delayFn func(ctx context.Context, d time.Duration) error
}

type trackedExecution struct {
	exec  model.OrderExecution
	order model.AutoOrder
}

func New(store ExecutionStore, placer OrderPlacer, cfg Config) *Tracker {
	return &Tracker{
		store:   store,
		placer:  placer,
		cfg:     cfg,
		tracked: make(map[string]*trackedExecution),
		baseCtx: context.Background(),
		nowFn:   time.Now,
		delayFn: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
	}
}

// Subscribe registers a transition listener. Listeners are called
// synchronously in registration order and must not block.
func (t *Tracker) Subscribe(fn func(model.ExecutionEvent)) {
	t.subsMu.Lock()
	t.subs = append(t.subs, fn)
	t.subsMu.Unlock()
}

func (t *Tracker) publish(exec model.OrderExecution, order model.AutoOrder) {
	category := model.CategoryCustom
	if exec.Status == model.ExecutionFailed {
		category = model.CategoryEmergencyAlert
	}
	ev := model.ExecutionEvent{
		Execution: exec,
		AutoOrder: order,
		Category:  category,
		Occurred:  t.nowFn(),
	}
	t.subsMu.RLock()
	subs := append([]func(model.ExecutionEvent){}, t.subs...)
	t.subsMu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// Begin takes ownership of a fresh pending execution and drives the
// submission attempt loop in the background.
func (t *Tracker) Begin(ctx context.Context, order model.AutoOrder, exec model.OrderExecution) error {
	if exec.Status != model.ExecutionPending {
		return fmt.Errorf("%w: begin requires pending, got %s", ErrInvalidTransition, exec.Status)
	}
	if err := t.store.SaveExecution(ctx, &exec); err != nil {
		return err
	}
	t.mu.Lock()
	t.tracked[exec.ID] = &trackedExecution{exec: exec, order: order}
	t.mu.Unlock()
	t.publish(exec, order)

	go t.attemptLoop(t.baseCtx, exec.ID)
	return nil
}

// attemptLoop submits and, on submission failure, walks the retry policy.
// Each retry supersedes the current record with a new one carrying
// retryAttempt+1.
func (t *Tracker) attemptLoop(ctx context.Context, execID string) {
	for {
		te, ok := t.get(execID)
		if !ok {
			return
		}
		if err := t.transition(ctx, execID, model.ExecutionExecuting, ""); err != nil {
			logger.Errorf("tracker: executing transition failed exec=%s err=%v", execID, err)
			return
		}

		extID, err := t.placer.SubmitOrder(ctx, &te.order)
		if err == nil {
			t.markSubmitted(ctx, execID, extID)
			return
		}

		attempt := te.exec.RetryAttempt
		if int(attempt) >= t.cfg.MaxRetries {
			if ferr := t.transition(ctx, execID, model.ExecutionFailed,
				fmt.Sprintf("submit failed after %d retries: %v", attempt, err)); ferr != nil {
				logger.Errorf("tracker: fail transition err=%v", ferr)
			}
			return
		}

		if terr := t.transition(ctx, execID, model.ExecutionRetrying, err.Error()); terr != nil {
			logger.Errorf("tracker: retrying transition failed exec=%s err=%v", execID, terr)
			return
		}
		// Linear backoff in whole retry-delay units.
		wait := time.Duration(attempt+1) * t.cfg.RetryDelay
		if derr := t.delayFn(ctx, wait); derr != nil {
			logger.Warnf("tracker: retry wait aborted exec=%s err=%v", execID, derr)
			return
		}

		nextID, serr := t.supersede(ctx, execID)
		if serr != nil {
			logger.Errorf("tracker: supersede failed exec=%s err=%v", execID, serr)
			return
		}
		execID = nextID
	}
}

// supersede appends the retry record and retires the superseded one from the
// tracked set. The old record keeps its final retrying status.
func (t *Tracker) supersede(ctx context.Context, execID string) (string, error) {
	t.mu.Lock()
	te, ok := t.tracked[execID]
	if !ok {
		t.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrUnknownExecution, execID)
	}
	next := model.OrderExecution{
		ID:           uuid.NewString(),
		AutoOrderID:  te.exec.AutoOrderID,
		RequestedAt:  t.nowFn(),
		Status:       model.ExecutionPending,
		RetryAttempt: te.exec.RetryAttempt + 1,
	}
	order := te.order
	delete(t.tracked, execID)
	t.tracked[next.ID] = &trackedExecution{exec: next, order: order}
	t.mu.Unlock()

	if err := t.store.SaveExecution(ctx, &next); err != nil {
		return "", err
	}
	t.publish(next, order)
	return next.ID, nil
}

func (t *Tracker) get(execID string) (trackedExecution, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	te, ok := t.tracked[execID]
	if !ok {
		return trackedExecution{}, false
	}
	return *te, true
}

func (t *Tracker) markSubmitted(ctx context.Context, execID, externalID string) {
	t.mu.Lock()
	te, ok := t.tracked[execID]
	if ok {
		te.exec.ExternalID = externalID
		now := t.nowFn()
		te.exec.SubmittedAt = &now
	}
	var snapshot trackedExecution
	if ok {
		snapshot = *te
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	if err := t.store.SaveExecution(ctx, &snapshot.exec); err != nil {
		logger.Errorf("tracker: persist submitted exec=%s err=%v", execID, err)
	}
	logger.Infof("tracker: submitted exec=%s external=%s order=%s", execID, externalID, snapshot.exec.AutoOrderID)
}

// transition applies a state change, persists it, updates the owning auto
// order and publishes the event.
func (t *Tracker) transition(ctx context.Context, execID string, to model.ExecutionStatus, failureReason string) error {
	t.mu.Lock()
	te, ok := t.tracked[execID]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownExecution, execID)
	}
	from := te.exec.Status
	if from.Terminal() {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrTerminalState, execID, from)
	}
	if !validTransition(from, to) {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	te.exec.Status = to
	if failureReason != "" {
		te.exec.FailureReason = failureReason
	}
	if to.Terminal() {
		now := t.nowFn()
		te.exec.CompletedAt = &now
	}
	snapshot := *te
	if to.Terminal() {
		delete(t.tracked, execID)
	}
	t.mu.Unlock()

	if err := t.store.SaveExecution(ctx, &snapshot.exec); err != nil {
		return err
	}
	if err := t.store.RecordExecutionResult(ctx, snapshot.exec.AutoOrderID, string(to), to.Terminal()); err != nil {
		logger.Warnf("tracker: auto order result update failed order=%s err=%v", snapshot.exec.AutoOrderID, err)
	}
	t.publish(snapshot.exec, snapshot.order)
	return nil
}

func validTransition(from, to model.ExecutionStatus) bool {
	switch from {
	case model.ExecutionPending:
		return to == model.ExecutionExecuting
	case model.ExecutionExecuting:
		return to == model.ExecutionCompleted || to == model.ExecutionRetrying || to == model.ExecutionFailed
	case model.ExecutionRetrying:
		return to == model.ExecutionExecuting || to == model.ExecutionFailed
	default:
		return false
	}
}

// Confirm marks a submitted execution completed (placement API callback or
// synchronous fill).
func (t *Tracker) Confirm(ctx context.Context, execID string) error {
	return t.transition(ctx, execID, model.ExecutionCompleted, "")
}

// Fail reports an external failure for a submitted execution. It walks the
// same retry policy as submission failures.
func (t *Tracker) Fail(ctx context.Context, execID, reason string) error {
	te, ok := t.get(execID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownExecution, execID)
	}
	if te.exec.Status != model.ExecutionExecuting {
		return fmt.Errorf("%w: fail requires executing, got %s", ErrInvalidTransition, te.exec.Status)
	}
	attempt := te.exec.RetryAttempt
	if int(attempt) >= t.cfg.MaxRetries {
		return t.transition(ctx, execID, model.ExecutionFailed, reason)
	}
	if err := t.transition(ctx, execID, model.ExecutionRetrying, reason); err != nil {
		return err
	}
	go func() {
		// The scheduled retry outlives the caller: request-scoped contexts are
		// canceled when the handler returns, which must not strand the
		// execution in retrying with budget left.
		wait := time.Duration(attempt+1) * t.cfg.RetryDelay
		if err := t.delayFn(t.baseCtx, wait); err != nil {
			return
		}
		nextID, err := t.supersede(t.baseCtx, execID)
		if err != nil {
			logger.Errorf("tracker: supersede failed exec=%s err=%v", execID, err)
			return
		}
		t.attemptLoop(t.baseCtx, nextID)
	}()
	return nil
}

// FailOver closes an execution a previous process left non-terminal. After a
// restart the upstream outcome is unknowable, so the record is failed and the
// terminal event published instead of resuming the attempt.
func (t *Tracker) FailOver(ctx context.Context, order model.AutoOrder, exec model.OrderExecution, reason string) error {
	if exec.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrTerminalState, exec.ID, exec.Status)
	}
	exec.Status = model.ExecutionFailed
	exec.FailureReason = reason
	now := t.nowFn()
	exec.CompletedAt = &now
	if err := t.store.SaveExecution(ctx, &exec); err != nil {
		return err
	}
	if err := t.store.RecordExecutionResult(ctx, exec.AutoOrderID, string(model.ExecutionFailed), true); err != nil {
		logger.Warnf("tracker: auto order result update failed order=%s err=%v", exec.AutoOrderID, err)
	}
	t.publish(exec, order)
	return nil
}

// ByExternalID resolves a tracked execution from the placement API's id, for
// webhook status updates.
func (t *Tracker) ByExternalID(externalID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, te := range t.tracked {
		if te.exec.ExternalID == externalID {
			return id, true
		}
	}
	return "", false
}
