package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"condor/internal/engine"
	"condor/internal/market"
	"condor/internal/model"
	"condor/internal/risk"
	"condor/internal/tracker"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrderStore struct {
	mu     sync.Mutex
	orders map[string]*model.AutoOrder
}

func (f *fakeOrderStore) GetAutoOrderByCondition(_ context.Context, conditionID string) (*model.AutoOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[conditionID]
	if !ok {
		return nil, context.Canceled
	}
	cp := *o
	return &cp, nil
}

type nullExecStore struct{}

func (nullExecStore) SaveExecution(context.Context, *model.OrderExecution) error { return nil }
func (nullExecStore) RecordExecutionResult(context.Context, string, string, bool) error {
	return nil
}

// gatePlacer blocks every submit until released, keeping the execution in
// flight for as long as the test needs.
type gatePlacer struct {
	release chan struct{}
	mu      sync.Mutex
	submits int
}

func (p *gatePlacer) SubmitOrder(ctx context.Context, _ *model.AutoOrder) (string, error) {
	p.mu.Lock()
	p.submits++
	p.mu.Unlock()
	select {
	case <-p.release:
		return "ext-1", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (p *gatePlacer) submitCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.submits
}

type countingNotifier struct {
	mu    sync.Mutex
	count int
}

func (n *countingNotifier) NotifyTrigger(context.Context, model.TriggerEvent) {
	n.mu.Lock()
	n.count++
	n.mu.Unlock()
}

func (n *countingNotifier) triggers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.count
}

func activeOrder(conditionID string) *model.AutoOrder {
	return &model.AutoOrder{
		ID:               "order-1",
		StrategyName:     "breakout",
		Symbol:           "BTC/USDT",
		MarketType:       model.MarketFutures,
		Side:             model.SideBuy,
		Quantity:         decimal.NewFromInt(1),
		EntryConditionID: conditionID,
		MaxSlippage:      1,
		MaxSpread:        1,
		IsActive:         true,
	}
}

func trigger(conditionID, trigID string) engine.Trigger {
	p := decimal.NewFromInt(50000)
	return engine.Trigger{
		Event: model.TriggerEvent{
			ID:          trigID,
			ConditionID: conditionID,
			Condition:   model.Condition{ID: conditionID, Name: conditionID, Symbol: "BTC/USDT", Type: model.ConditionTypePrice, Priority: 3},
			Observed:    p,
			FiredAt:     time.Now(),
		},
		Snapshot: market.Snapshot{Symbol: "BTC/USDT", Price: p, Bid: p, Ask: p, Timestamp: time.Now()},
		Ack:      func() {},
	}
}

func TestHandleCoalescesWhileInFlight(t *testing.T) {
	store := &fakeOrderStore{orders: map[string]*model.AutoOrder{"c1": activeOrder("c1")}}
	placer := &gatePlacer{release: make(chan struct{})}
	tr := tracker.New(nullExecStore{}, placer, tracker.Config{MaxRetries: 0, RetryDelay: time.Millisecond})
	notifier := &countingNotifier{}
	d := New(store, risk.NewValidator(), tr, notifier)

	ctx := context.Background()
	d.Handle(ctx, trigger("c1", "t1"))
	assert.Eventually(t, func() bool { return placer.submitCount() == 1 }, time.Second, 5*time.Millisecond)
	require.True(t, d.InFlight("order-1"))

	// 洪水触发：在执行完成前的触发全部被吞并。
	for i := 0; i < 10; i++ {
		d.Handle(ctx, trigger("c1", "tn"))
	}
	assert.Equal(t, 1, placer.submitCount())
	// 每个触发仍各自发出一次通知。
	assert.Equal(t, 11, notifier.triggers())

	// Completion clears the gate; the next trigger dispatches again.
	close(placer.release)
	assert.Eventually(t, func() bool {
		id, ok := tr.ByExternalID("ext-1")
		if !ok {
			return false
		}
		return tr.Confirm(ctx, id) == nil
	}, time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return !d.InFlight("order-1") }, time.Second, 5*time.Millisecond)
	placer.release = make(chan struct{})
	d.Handle(ctx, trigger("c1", "t2"))
	assert.Eventually(t, func() bool { return placer.submitCount() == 2 }, time.Second, 5*time.Millisecond)
}

func TestConcurrentTriggersSingleSubmission(t *testing.T) {
	store := &fakeOrderStore{orders: map[string]*model.AutoOrder{"c1": activeOrder("c1")}}
	placer := &gatePlacer{release: make(chan struct{})}
	t.Cleanup(func() { close(placer.release) })
	tr := tracker.New(nullExecStore{}, placer, tracker.Config{MaxRetries: 0, RetryDelay: time.Millisecond})
	d := New(store, risk.NewValidator(), tr, nil)

	// 并发洪水：同一条件的 N 个触发同时到达，闸门只放行一个。
	const n = 16
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(seq int) {
			defer wg.Done()
			<-start
			d.Handle(context.Background(), trigger("c1", fmt.Sprintf("t%d", seq)))
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Eventually(t, func() bool { return placer.submitCount() == 1 }, time.Second, 5*time.Millisecond)
	require.True(t, d.InFlight("order-1"))

	// Give any stray goroutine time to misbehave before asserting exactly one.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, placer.submitCount())
}

func TestHandleSkipsRiskRejected(t *testing.T) {
	order := activeOrder("c1")
	order.IsActive = false // stopped
	store := &fakeOrderStore{orders: map[string]*model.AutoOrder{"c1": order}}
	placer := &gatePlacer{release: make(chan struct{})}
	tr := tracker.New(nullExecStore{}, placer, tracker.Config{})
	d := New(store, risk.NewValidator(), tr, nil)

	d.Handle(context.Background(), trigger("c1", "t1"))
	assert.Equal(t, 0, placer.submitCount())
	assert.False(t, d.InFlight("order-1"))
}

func TestHandleWithoutAutoOrder(t *testing.T) {
	store := &fakeOrderStore{orders: map[string]*model.AutoOrder{}}
	placer := &gatePlacer{release: make(chan struct{})}
	tr := tracker.New(nullExecStore{}, placer, tracker.Config{})
	d := New(store, risk.NewValidator(), tr, nil)

	// 没有绑定自动订单的条件只通知、不下单。
	d.Handle(context.Background(), trigger("orphan", "t1"))
	assert.Equal(t, 0, placer.submitCount())
}

func TestRunConsumesAndAcks(t *testing.T) {
	store := &fakeOrderStore{orders: map[string]*model.AutoOrder{}}
	tr := tracker.New(nullExecStore{}, &gatePlacer{release: make(chan struct{})}, tracker.Config{})
	d := New(store, risk.NewValidator(), tr, nil)

	acked := make(chan struct{})
	trig := trigger("orphan", "t1")
	trig.Ack = func() { close(acked) }

	triggers := make(chan engine.Trigger, 1)
	triggers <- trig
	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx, triggers)

	select {
	case <-acked:
	case <-time.After(time.Second):
		t.Fatal("trigger was not acked")
	}
	cancel()
}
