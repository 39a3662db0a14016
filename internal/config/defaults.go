package config

import "strings"

// 默认值常量
const (
	defaultAppEnv           = "dev"
	defaultAppLogLevel      = "info"
	defaultAppLogFormat     = "text"
	defaultAppHTTPAddr      = ":9982"
	defaultEvalInterval     = 5
	defaultMaxConcurrent    = 8
	defaultStaleness        = 30
	defaultTriggerQueue     = 64
	defaultMarketSource     = "binance"
	defaultMarketREST       = "https://fapi.binance.com"
	defaultKlineInterval    = "1m"
	defaultKlineLimit       = 200
	defaultMarketTimeout    = 10
	defaultExecTimeout      = 15
	defaultExecMaxRetries   = 5
	defaultExecRetryDelay   = 3
	defaultNotifyRetries    = 3
	defaultNotifyRetryDelay = 2
	defaultTemplatesPath    = "configs/templates.yaml"
	defaultPopupFeedSize    = 100
	defaultDesktopCommand   = "notify-send"
	defaultSQLitePath       = "data/condor.db"
)

func (c *Config) applyDefaults() {
	c.App.applyDefaults()
	c.Engine.applyDefaults()
	c.Market.applyDefaults()
	c.Execution.applyDefaults()
	c.Notify.applyDefaults()
	c.Store.applyDefaults()
}

func (a *AppConfig) applyDefaults() {
	if strings.TrimSpace(a.Env) == "" {
		a.Env = defaultAppEnv
	}
	if strings.TrimSpace(a.LogLevel) == "" {
		a.LogLevel = defaultAppLogLevel
	}
	if strings.TrimSpace(a.LogFormat) == "" {
		a.LogFormat = defaultAppLogFormat
	}
	if strings.TrimSpace(a.HTTPAddr) == "" {
		a.HTTPAddr = defaultAppHTTPAddr
	}
}

func (e *EngineConfig) applyDefaults() {
	if e.EvalIntervalSeconds <= 0 {
		e.EvalIntervalSeconds = defaultEvalInterval
	}
	if e.MaxConcurrentEvals <= 0 {
		e.MaxConcurrentEvals = defaultMaxConcurrent
	}
	if e.StalenessSeconds <= 0 {
		e.StalenessSeconds = defaultStaleness
	}
	if e.TriggerQueueSize <= 0 {
		e.TriggerQueueSize = defaultTriggerQueue
	}
}

func (m *MarketConfig) applyDefaults() {
	if strings.TrimSpace(m.Source) == "" {
		m.Source = defaultMarketSource
	}
	if strings.TrimSpace(m.RESTBaseURL) == "" {
		m.RESTBaseURL = defaultMarketREST
	}
	if strings.TrimSpace(m.KlineInterval) == "" {
		m.KlineInterval = defaultKlineInterval
	}
	if m.KlineLimit <= 0 {
		m.KlineLimit = defaultKlineLimit
	}
	if m.TimeoutSeconds <= 0 {
		m.TimeoutSeconds = defaultMarketTimeout
	}
}

func (e *ExecutionConfig) applyDefaults() {
	if e.TimeoutSeconds <= 0 {
		e.TimeoutSeconds = defaultExecTimeout
	}
	// 0 是合法取值（不重试），仅负数回落到默认。
	if e.MaxRetries < 0 {
		e.MaxRetries = defaultExecMaxRetries
	}
	if e.RetryDelaySeconds <= 0 {
		e.RetryDelaySeconds = defaultExecRetryDelay
	}
}

func (n *NotifyConfig) applyDefaults() {
	if strings.TrimSpace(n.TemplatesPath) == "" {
		n.TemplatesPath = defaultTemplatesPath
	}
	if n.MaxRetries < 0 {
		n.MaxRetries = defaultNotifyRetries
	}
	if n.RetryDelaySeconds <= 0 {
		n.RetryDelaySeconds = defaultNotifyRetryDelay
	}
	if n.Popup.FeedSize <= 0 {
		n.Popup.FeedSize = defaultPopupFeedSize
	}
	if strings.TrimSpace(n.Desktop.Command) == "" {
		n.Desktop.Command = defaultDesktopCommand
	}
}

func (s *StoreConfig) applyDefaults() {
	if strings.TrimSpace(s.SQLitePath) == "" {
		s.SQLitePath = defaultSQLitePath
	}
}
