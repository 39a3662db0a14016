package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	condorcfg "condor/internal/config"
	"condor/internal/dispatch"
	"condor/internal/engine"
	"condor/internal/gateway/orderapi"
	"condor/internal/logger"
	"condor/internal/market"
	"condor/internal/market/binance"
	"condor/internal/market/sim"
	"condor/internal/model"
	"condor/internal/notify"
	"condor/internal/pkg/circuit"
	"condor/internal/risk"
	"condor/internal/store"
	"condor/internal/store/gormstore"
	"condor/internal/store/history"
	"condor/internal/tracker"
	apihttp "condor/internal/transport/http"
)

type AppBuilder struct {
	cfg *condorcfg.Config

	marketSourceFn func(context.Context, *condorcfg.Config, []string) (market.Source, error)
	placerFn       func(condorcfg.ExecutionConfig) tracker.OrderPlacer

	storeOverride store.Store
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *condorcfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:            cfg,
		marketSourceFn: buildMarketSource,
		placerFn:       buildPlacer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg

	app := &App{cfg: cfg}

	st := b.storeOverride
	if st == nil {
		gs, err := gormstore.New(cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("初始化存储失败: %w", err)
		}
		st = gs
		app.closers = append(app.closers, gs.Close)
	}
	app.store = st

	var hist *history.Store
	if strings.TrimSpace(cfg.Store.SQLitePath) != "" {
		h, err := history.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("初始化历史库失败: %w", err)
		}
		hist = h
		app.closers = append(app.closers, h.Close)
	}

	indicatorKeys, err := collectIndicatorKeys(ctx, st)
	if err != nil {
		logger.Warnf("读取既有条件失败，指标键使用默认集 err=%v", err)
	}
	source, err := b.marketSourceFn(ctx, cfg, indicatorKeys)
	if err != nil {
		return nil, fmt.Errorf("初始化行情源失败: %w", err)
	}

	placer := b.placerFn(cfg.Execution)
	tr := tracker.New(st, placer, tracker.Config{
		MaxRetries: cfg.Execution.MaxRetries,
		RetryDelay: time.Duration(cfg.Execution.RetryDelaySeconds) * time.Second,
	})

	templates, err := notify.NewRegistry(cfg.Notify.TemplatesPath)
	if err != nil {
		return nil, fmt.Errorf("初始化通知模板失败: %w", err)
	}
	app.templates = templates
	app.closers = append(app.closers, templates.Close)

	popup, settings := buildNotifySettings(cfg.Notify, nil)
	notifier := notify.NewDispatcher(ctx, settings, templates, st)
	tr.Subscribe(notifier.HandleExecution)
	app.notifier = notifier

	// 渠道设置随配置文件热更新；弹窗通道实例保持不变，HTTP 拉取端不受影响。
	var reloadSettings func() error
	if strings.TrimSpace(cfg.Path) != "" {
		reloadSettings = func() error {
			fresh, err := condorcfg.Load(cfg.Path)
			if err != nil {
				return err
			}
			_, next := buildNotifySettings(fresh.Notify, popup)
			notifier.Reload(next)
			return nil
		}
	}

	breaker := circuit.NewBreaker("market-source", 5, 2*time.Minute)
	eng := engine.New(engine.Params{
		Store:            st,
		Source:           source,
		Breaker:          breaker,
		EvalInterval:     time.Duration(cfg.Engine.EvalIntervalSeconds) * time.Second,
		MaxConcurrent:    cfg.Engine.MaxConcurrentEvals,
		TriggerQueueSize: cfg.Engine.TriggerQueueSize,
		RunImmediately:   cfg.Engine.RunImmediately,
	})
	app.engine = eng

	dispatcher := dispatch.New(st, risk.NewValidator(), tr, notifier)
	app.dispatcher = dispatcher

	if err := recoverStaleExecutions(ctx, st, tr); err != nil {
		logger.Warnf("恢复遗留执行记录失败 err=%v", err)
	}

	srv, err := apihttp.NewServer(apihttp.ServerConfig{
		Addr:           cfg.App.HTTPAddr,
		Store:          st,
		History:        hist,
		Tracker:        tr,
		Dispatcher:     dispatcher,
		Notifier:       notifier,
		Templates:      templates,
		Popup:          popup,
		ReloadSettings: reloadSettings,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 HTTP 服务失败: %w", err)
	}
	app.httpServer = srv

	logger.Infof("✓ 组件就绪 source=%s channels=%d sqlite=%s",
		cfg.Market.Source, len(settings.Channels), cfg.Store.SQLitePath)
	return app, nil
}

// recoverStaleExecutions closes executions a previous process left
// non-terminal. Their upstream outcome is unknowable after a restart, so each
// is failed over rather than resumed, freeing the auto order for new
// triggers and keeping the real-time status view honest.
func recoverStaleExecutions(ctx context.Context, st store.Store, tr *tracker.Tracker) error {
	orders, err := st.ListAutoOrders(ctx)
	if err != nil {
		return err
	}
	for _, o := range orders {
		exec, err := st.ActiveExecution(ctx, o.ID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if ferr := tr.FailOver(ctx, o, *exec, "interrupted by restart"); ferr != nil {
			logger.Warnf("遗留执行关闭失败 exec=%s order=%s err=%v", exec.ID, o.ID, ferr)
			continue
		}
		logger.Warnf("遗留执行已关闭 exec=%s order=%s attempt=%d", exec.ID, o.ID, exec.RetryAttempt)
	}
	return nil
}

// collectIndicatorKeys extends the default indicator set with the symbolic
// keys referenced by already-configured technical conditions, so the market
// source precomputes exactly what evaluation will ask for.
func collectIndicatorKeys(ctx context.Context, st store.Store) ([]string, error) {
	keys := map[string]struct{}{}
	for _, k := range market.DefaultIndicatorKeys {
		keys[k] = struct{}{}
	}
	conditions, err := st.ListConditions(ctx)
	if err != nil {
		return sortedKeys(keys), err
	}
	for _, c := range conditions {
		if c.Type != model.ConditionTypeTechnical {
			continue
		}
		sym, ok := c.Value.Symbol()
		if !ok {
			continue
		}
		metric := sym
		if i := strings.Index(sym, ":"); i >= 0 {
			metric = sym[:i]
		}
		if metric = strings.TrimSpace(metric); metric != "" {
			keys[metric] = struct{}{}
		}
	}
	return sortedKeys(keys), nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func buildMarketSource(_ context.Context, cfg *condorcfg.Config, indicatorKeys []string) (market.Source, error) {
	staleness := time.Duration(cfg.Engine.StalenessSeconds) * time.Second
	switch strings.ToLower(strings.TrimSpace(cfg.Market.Source)) {
	case "sim":
		return sim.New(staleness), nil
	case "", "binance":
		return binance.New(binance.Config{
			RESTBaseURL:   cfg.Market.RESTBaseURL,
			KlineInterval: cfg.Market.KlineInterval,
			KlineLimit:    cfg.Market.KlineLimit,
			HTTPTimeout:   time.Duration(cfg.Market.TimeoutSeconds) * time.Second,
			Staleness:     staleness,
			IndicatorKeys: indicatorKeys,
		}), nil
	default:
		return nil, fmt.Errorf("未知行情源 %q", cfg.Market.Source)
	}
}

func buildPlacer(cfg condorcfg.ExecutionConfig) tracker.OrderPlacer {
	if strings.TrimSpace(cfg.OrderAPIBaseURL) == "" {
		logger.Warnf("execution.order_api_base_url 未配置，使用内置模拟下单器")
		return orderapi.NewSimulated()
	}
	return orderapi.NewClient(cfg.OrderAPIBaseURL, time.Duration(cfg.TimeoutSeconds)*time.Second)
}

// buildNotifySettings assembles the channel set from the per-channel enable
// flags. The popup channel instance is returned so the HTTP feed can drain
// it; on reload an existing instance is passed back in and reused so the
// feed survives the swap.
func buildNotifySettings(cfg condorcfg.NotifyConfig, popup *notify.PopupChannel) (*notify.PopupChannel, notify.Settings) {
	var channels []notify.Channel
	if cfg.Popup.Enabled {
		if popup == nil {
			popup = notify.NewPopupChannel(cfg.Popup.FeedSize)
		}
		channels = append(channels, popup)
	}
	if cfg.Desktop.Enabled {
		channels = append(channels, notify.NewDesktopChannel(cfg.Desktop.Command))
	}
	if cfg.Telegram.Enabled {
		channels = append(channels, notify.NewTelegramChannel(cfg.Telegram.BotToken, cfg.Telegram.ChatID))
	}
	if cfg.Email.Enabled {
		channels = append(channels, notify.NewEmailChannel(cfg.Email.SMTPAddr, cfg.Email.From, cfg.Email.To, cfg.Email.Username, cfg.Email.Password))
	}
	return popup, notify.Settings{
		MaxRetries: cfg.MaxRetries,
		RetryDelay: time.Duration(cfg.RetryDelaySeconds) * time.Second,
		Channels:   channels,
	}
}

func WithMarketSource(fn func(context.Context, *condorcfg.Config, []string) (market.Source, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.marketSourceFn = fn
		}
	}
}

func WithPlacer(fn func(condorcfg.ExecutionConfig) tracker.OrderPlacer) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.placerFn = fn
		}
	}
}

func WithStoreOverride(st store.Store) AppBuilderOption {
	return func(b *AppBuilder) {
		if st != nil {
			b.storeOverride = st
		}
	}
}
