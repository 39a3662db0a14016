package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/smtp"
	"os/exec"
	"strings"
	"sync"
	"time"

	"condor/internal/model"
)

// Channel is one delivery backend. Send performs a single attempt; retrying
// is the dispatcher's job.
type Channel interface {
	Type() model.ChannelType
	Send(ctx context.Context, subject, body string) error
}

// ---- telegram ----

// 中文说明：
// Telegram 通知渠道：触发/执行结果推送至指定群或频道。

type TelegramChannel struct {
	BotToken string
	ChatID   string
	Client   *http.Client
}

func NewTelegramChannel(botToken, chatID string) *TelegramChannel {
	return &TelegramChannel{
		BotToken: botToken,
		ChatID:   chatID,
		Client:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (t *TelegramChannel) Type() model.ChannelType { return model.ChannelTelegram }

func (t *TelegramChannel) Send(ctx context.Context, subject, body string) error {
	if t.BotToken == "" || t.ChatID == "" {
		return fmt.Errorf("Telegram 配置不完整")
	}
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.BotToken)
	payload := map[string]any{
		"chat_id":    t.ChatID,
		"text":       subject + "\n" + body,
		"parse_mode": "Markdown",
	}
	raw, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.Client.Do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("telegram status=%d", resp.StatusCode)
	}
	return nil
}

// ---- email ----

// EmailChannel delivers via plain SMTP. One AUTH+send per message.
type EmailChannel struct {
	Addr     string // host:port
	From     string
	To       []string
	Username string
	Password string
}

func NewEmailChannel(addr, from string, to []string, username, password string) *EmailChannel {
	return &EmailChannel{Addr: addr, From: from, To: to, Username: username, Password: password}
}

func (e *EmailChannel) Type() model.ChannelType { return model.ChannelEmail }

func (e *EmailChannel) Send(_ context.Context, subject, body string) error {
	if e.Addr == "" || e.From == "" || len(e.To) == 0 {
		return fmt.Errorf("email channel not configured")
	}
	var auth smtp.Auth
	if e.Username != "" {
		host := e.Addr
		if i := strings.Index(host, ":"); i >= 0 {
			host = host[:i]
		}
		auth = smtp.PlainAuth("", e.Username, e.Password, host)
	}
	msg := []byte("From: " + e.From + "\r\n" +
		"To: " + strings.Join(e.To, ", ") + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"MIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n" +
		body + "\r\n")
	return smtp.SendMail(e.Addr, auth, e.From, e.To, msg)
}

// ---- desktop ----

// DesktopChannel shells out to a local notifier (notify-send by default).
type DesktopChannel struct {
	Command string
}

func NewDesktopChannel(command string) *DesktopChannel {
	if strings.TrimSpace(command) == "" {
		command = "notify-send"
	}
	return &DesktopChannel{Command: command}
}

func (d *DesktopChannel) Type() model.ChannelType { return model.ChannelDesktop }

func (d *DesktopChannel) Send(ctx context.Context, subject, body string) error {
	cmd := exec.CommandContext(ctx, d.Command, subject, body)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w (%s)", d.Command, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// ---- popup ----

// PopupMessage is one entry of the in-process popup feed the UI polls.
type PopupMessage struct {
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	SentAt  time.Time `json:"sent_at"`
}

// PopupChannel buffers messages for the HTTP popup feed; delivery never
// fails, old entries are dropped when the feed overflows.
type PopupChannel struct {
	mu   sync.Mutex
	feed []PopupMessage
	size int
}

func NewPopupChannel(size int) *PopupChannel {
	if size <= 0 {
		size = 100
	}
	return &PopupChannel{size: size}
}

func (p *PopupChannel) Type() model.ChannelType { return model.ChannelPopup }

func (p *PopupChannel) Send(_ context.Context, subject, body string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.feed = append(p.feed, PopupMessage{Subject: subject, Body: body, SentAt: time.Now()})
	if len(p.feed) > p.size {
		p.feed = p.feed[len(p.feed)-p.size:]
	}
	return nil
}

// Drain returns and clears the pending popup messages.
func (p *PopupChannel) Drain() []PopupMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.feed
	p.feed = nil
	return out
}
