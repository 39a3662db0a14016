// Package notify fans trigger/result events out to the configured channels.
// Channels are independent: a slow or failing channel never blocks another,
// and per-channel retries stay inside that channel's goroutine.
package notify

import (
	"context"
	"sync"
	"time"

	"condor/internal/logger"
	"condor/internal/model"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Settings is the immutable dispatcher configuration; updates go through
// Reload with a fresh value, never by mutating shared state.
type Settings struct {
	MaxRetries int
	RetryDelay time.Duration
	Channels   []Channel
}

// ChannelStatsStore persists per-channel delivery statistics.
type ChannelStatsStore interface {
	SaveChannelStats(ctx context.Context, s *model.ChannelStats) error
	ListChannelStats(ctx context.Context) ([]model.ChannelStats, error)
}

type Dispatcher struct {
	registry   *Registry
	statsStore ChannelStatsStore // optional

	mu       sync.RWMutex
	settings Settings
	stats    map[model.ChannelType]*model.ChannelStats

	nowFn   func() time.Time
	delayFn func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(ctx context.Context, settings Settings, registry *Registry, statsStore ChannelStatsStore) *Dispatcher {
	d := &Dispatcher{
		registry:   registry,
		statsStore: statsStore,
		settings:   settings,
		stats:      make(map[model.ChannelType]*model.ChannelStats),
		nowFn:      time.Now,
		delayFn: func(ctx context.Context, wait time.Duration) error {
			t := time.NewTimer(wait)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
	}
	d.seedStats(ctx)
	return d
}

func (d *Dispatcher) seedStats(ctx context.Context) {
	if d.statsStore != nil {
		persisted, err := d.statsStore.ListChannelStats(ctx)
		if err != nil {
			logger.Warnf("notify: loading channel stats failed err=%v", err)
		}
		for i := range persisted {
			s := persisted[i]
			d.stats[s.Type] = &s
		}
	}
	for _, ch := range d.settings.Channels {
		if _, ok := d.stats[ch.Type()]; !ok {
			d.stats[ch.Type()] = &model.ChannelStats{
				ID:      uuid.NewString(),
				Type:    ch.Type(),
				Enabled: true,
			}
		} else {
			d.stats[ch.Type()].Enabled = true
		}
	}
}

// Reload swaps in a new settings value and seeds stats rows for channels it
// introduces. In-flight deliveries finish against the settings they started
// with.
func (d *Dispatcher) Reload(settings Settings) {
	d.mu.Lock()
	d.settings = settings
	for _, ch := range settings.Channels {
		if _, ok := d.stats[ch.Type()]; !ok {
			d.stats[ch.Type()] = &model.ChannelStats{ID: uuid.NewString(), Type: ch.Type(), Enabled: true}
		}
	}
	d.mu.Unlock()
	logger.Infof("notify: settings reloaded channels=%d", len(settings.Channels))
}

// NotifyTrigger delivers a condition-trigger event. Non-blocking: the fan-out
// runs on its own goroutine so the dispatcher loop is never delayed.
func (d *Dispatcher) NotifyTrigger(ctx context.Context, ev model.TriggerEvent) {
	category := ev.Condition.Category()
	data := triggerData(ev)
	go d.Dispatch(ctx, category, data)
}

// HandleExecution is subscribed to the tracker; only terminal outcomes reach
// the user.
func (d *Dispatcher) HandleExecution(ev model.ExecutionEvent) {
	if !ev.Execution.Status.Terminal() {
		return
	}
	go d.Dispatch(context.Background(), ev.Category, executionData(ev))
}

// Dispatch renders the category template and fans out to every channel.
// Failures are isolated per channel; the aggregate error is only logged.
func (d *Dispatcher) Dispatch(ctx context.Context, category model.EventCategory, data map[string]string) {
	tpl := d.registry.Resolve(category)
	subject := Render(tpl.Subject, data)
	body := Render(tpl.Body, data)

	d.mu.RLock()
	settings := d.settings
	d.mu.RUnlock()

	group, gctx := errgroup.WithContext(ctx)
	for _, ch := range settings.Channels {
		ch := ch
		group.Go(func() error {
			d.deliver(gctx, ch, settings, subject, body)
			return nil
		})
	}
	_ = group.Wait()
}

// deliver attempts one channel with the global retry budget, then records
// the outcome atomically with the stats update.
func (d *Dispatcher) deliver(ctx context.Context, ch Channel, settings Settings, subject, body string) {
	var err error
	for attempt := 0; ; attempt++ {
		err = ch.Send(ctx, subject, body)
		if err == nil {
			break
		}
		if attempt >= settings.MaxRetries {
			break
		}
		logger.Warnf("notify: channel=%s attempt=%d failed err=%v", ch.Type(), attempt, err)
		if derr := d.delayFn(ctx, settings.RetryDelay); derr != nil {
			break
		}
	}
	d.recordOutcome(ctx, ch.Type(), err)
}

func (d *Dispatcher) recordOutcome(ctx context.Context, chType model.ChannelType, sendErr error) {
	d.mu.Lock()
	stat, ok := d.stats[chType]
	if !ok {
		stat = &model.ChannelStats{ID: uuid.NewString(), Type: chType, Enabled: true}
		d.stats[chType] = stat
	}
	now := d.nowFn()
	stat.TotalSent++
	stat.LastUsed = &now
	if sendErr != nil {
		stat.TotalFailed++
		// Degraded, never auto-disabled: the channel keeps receiving events.
		stat.Degraded = true
	} else {
		stat.TotalSuccessful++
		stat.Degraded = false
	}
	snapshot := *stat
	d.mu.Unlock()

	if sendErr != nil {
		logger.Errorf("notify: channel=%s delivery failed after retries err=%v", chType, sendErr)
	}
	if d.statsStore != nil {
		if err := d.statsStore.SaveChannelStats(ctx, &snapshot); err != nil {
			logger.Warnf("notify: persisting channel stats failed channel=%s err=%v", chType, err)
		}
	}
}

// Stats returns a copy of the current per-channel statistics.
func (d *Dispatcher) Stats() []model.ChannelStats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]model.ChannelStats, 0, len(d.stats))
	for _, s := range d.stats {
		out = append(out, *s)
	}
	return out
}
