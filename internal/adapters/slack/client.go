/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/example/issue-unfurl/internal/config"
	"github.com/example/issue-unfurl/internal/obs"
	"github.com/rs/zerolog"
)

var ErrMissingToken = errors.New("slack: missing token")

// APIError is a Slack Web API response with ok=false.
type APIError struct {
	Method string
	Code   string
}

func (e *APIError) Error() string { return fmt.Sprintf("slack %s: %s", e.Method, e.Code) }

type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
	return &Client{baseURL: cfg.SlackAPIURL, http: &http.Client{Timeout: cfg.HTTPTimeout}, log: log}
}

// Unfurl attaches previews to the links of a posted message via chat.unfurl.
// unfurls is keyed by the exact URL Slack reported in the link_shared event.
func (c *Client) Unfurl(ctx context.Context, token, channel, ts string, unfurls any) error {
	body := map[string]any{"channel": channel, "ts": ts, "unfurls": unfurls}
	err := c.call(ctx, "chat.unfurl", token, body)
	result := "ok"
	if err != nil {
		result = "error"
	}
	obs.SlackRequestsTotal.WithLabelValues("chat.unfurl", result).Inc()
	return err
}

func (c *Client) call(ctx context.Context, method, token string, body any) error {
	if token == "" {
		return ErrMissingToken
	}
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("slack %s: encode: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("slack %s status=%d body=%s", method, resp.StatusCode, string(bodyBytes))
	}
	var r struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return fmt.Errorf("slack %s: decode: %w", method, err)
	}
	if !r.OK {
		return &APIError{Method: method, Code: r.Error}
	}
	return nil
}
