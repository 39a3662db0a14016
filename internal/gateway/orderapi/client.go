// Package orderapi talks to the external order placement API. The core
// treats it as fallible and fully asynchronous: a successful submit only
// returns the upstream execution id, completion arrives later via webhook.
package orderapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"condor/internal/model"

	"github.com/tidwall/gjson"
)

type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// SubmitOrder posts the order and extracts the upstream execution id. The
// upstream payload shape is not fully pinned down, so the id is probed from
// the known variants.
func (c *Client) SubmitOrder(ctx context.Context, order *model.AutoOrder) (string, error) {
	if c.baseURL == "" {
		return "", fmt.Errorf("order api: base url not configured")
	}
	payload := map[string]any{
		"symbol":      order.Symbol,
		"side":        string(order.Side),
		"quantity":    order.Quantity.String(),
		"market_type": string(order.MarketType),
		"strategy":    order.StrategyName,
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("order api: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("order api: read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		msg := gjson.GetBytes(raw, "error").String()
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return "", fmt.Errorf("order api: status=%d %s", resp.StatusCode, msg)
	}

	for _, key := range []string{"execution_id", "executionId", "id", "data.execution_id"} {
		if v := gjson.GetBytes(raw, key); v.Exists() && v.String() != "" {
			return v.String(), nil
		}
	}
	return "", fmt.Errorf("order api: response carries no execution id: %s", strings.TrimSpace(string(raw)))
}
