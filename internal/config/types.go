package config

// Config 是 condor 的主配置载体。
type Config struct {
	// Path 记录配置文件来源，供热重载再次读取。
	Path string `toml:"-"`

	App       AppConfig       `toml:"app"`
	Engine    EngineConfig    `toml:"engine"`
	Market    MarketConfig    `toml:"market"`
	Execution ExecutionConfig `toml:"execution"`
	Notify    NotifyConfig    `toml:"notify"`
	Store     StoreConfig     `toml:"store"`
}

type AppConfig struct {
	Env       string `toml:"env"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	LogPath   string `toml:"log_path"`
	HTTPAddr  string `toml:"http_addr"`
}

// EngineConfig controls the condition evaluation loop.
type EngineConfig struct {
	EvalIntervalSeconds int  `toml:"eval_interval_seconds"`
	MaxConcurrentEvals  int  `toml:"max_concurrent_evals"`
	StalenessSeconds    int  `toml:"staleness_seconds"`
	RunImmediately      bool `toml:"run_immediately"`
	TriggerQueueSize    int  `toml:"trigger_queue_size"`
}

type MarketConfig struct {
	Source      string `toml:"source"` // binance | sim
	RESTBaseURL string `toml:"rest_base_url"`
	// KlineInterval 与 KlineLimit 决定 technical 指标计算的输入窗口。
	KlineInterval  string `toml:"kline_interval"`
	KlineLimit     int    `toml:"kline_limit"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// ExecutionConfig holds the order endpoint and the tracker retry policy.
type ExecutionConfig struct {
	OrderAPIBaseURL   string `toml:"order_api_base_url"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
	MaxRetries        int    `toml:"max_retries"`         // 0–10
	RetryDelaySeconds int    `toml:"retry_delay_seconds"` // linear backoff unit
}

type NotifyConfig struct {
	TemplatesPath     string         `toml:"templates_path"`
	MaxRetries        int            `toml:"max_retries"`
	RetryDelaySeconds int            `toml:"retry_delay_seconds"`
	Popup             PopupConfig    `toml:"popup"`
	Desktop           DesktopConfig  `toml:"desktop"`
	Telegram          TelegramConfig `toml:"telegram"`
	Email             EmailConfig    `toml:"email"`
}

type PopupConfig struct {
	Enabled bool `toml:"enabled"`
	// FeedSize 限制待 UI 拉取的弹窗队列长度。
	FeedSize int `toml:"feed_size"`
}

type DesktopConfig struct {
	Enabled bool   `toml:"enabled"`
	Command string `toml:"command"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

type EmailConfig struct {
	Enabled  bool     `toml:"enabled"`
	SMTPAddr string   `toml:"smtp_addr"`
	From     string   `toml:"from"`
	To       []string `toml:"to"`
	Username string   `toml:"username"`
	Password string   `toml:"password"`
}

type StoreConfig struct {
	SQLitePath string `toml:"sqlite_path"`
}
