package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Engine.validate(); err != nil {
		return err
	}
	if err := c.Market.validate(); err != nil {
		return err
	}
	if err := c.Execution.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	return nil
}

func (e *EngineConfig) validate() error {
	if e.EvalIntervalSeconds <= 0 {
		return fmt.Errorf("engine.eval_interval_seconds must be > 0")
	}
	if e.StalenessSeconds < e.EvalIntervalSeconds {
		return fmt.Errorf("engine.staleness_seconds (%d) must cover at least one eval interval (%d)",
			e.StalenessSeconds, e.EvalIntervalSeconds)
	}
	return nil
}

func (m *MarketConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(m.Source)) {
	case "binance", "sim":
		return nil
	default:
		return fmt.Errorf("market.source must be binance or sim, got %q", m.Source)
	}
}

func (e *ExecutionConfig) validate() error {
	if e.MaxRetries < 0 || e.MaxRetries > 10 {
		return fmt.Errorf("execution.max_retries must be in [0,10], got %d", e.MaxRetries)
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	if n.MaxRetries < 0 || n.MaxRetries > 10 {
		return fmt.Errorf("notify.max_retries must be in [0,10], got %d", n.MaxRetries)
	}
	if n.Telegram.Enabled {
		if strings.TrimSpace(n.Telegram.BotToken) == "" || strings.TrimSpace(n.Telegram.ChatID) == "" {
			return fmt.Errorf("notify.telegram requires bot_token and chat_id when enabled")
		}
	}
	if n.Email.Enabled {
		if strings.TrimSpace(n.Email.SMTPAddr) == "" || strings.TrimSpace(n.Email.From) == "" || len(n.Email.To) == 0 {
			return fmt.Errorf("notify.email requires smtp_addr, from and to when enabled")
		}
	}
	return nil
}
