package myxl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"log/slog"

	coreconfig "github.com/aprizal/myxl-bot/core/config"
	"github.com/aprizal/myxl-bot/core/logger"
	"github.com/aprizal/myxl-bot/core/netutil"
)

const defaultTimeout = 30 * time.Second

// Client talks to the MyXL gateway. All calls carry the shared API key and
// run on a retrying HTTP transport.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient builds a client from configuration. Timeout falls back to 30s
// when unset.
func NewClient(cfg coreconfig.MyXLConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    netutil.BuildHTTPClient(timeout),
	}
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// RequestOTP asks the gateway to send a one-time password to the number. The
// returned subscriber ID correlates the number with its pending challenge.
func (c *Client) RequestOTP(ctx context.Context, phoneNumber string) (string, error) {
	start := time.Now()
	var out struct {
		SubscriberID string `json:"subscriber_id"`
	}
	err := c.post(ctx, "/auth/otp/request", map[string]string{
		"msisdn": phoneNumber,
	}, &out)
	if err == nil && out.SubscriberID == "" {
		err = fmt.Errorf("empty subscriber id in response")
	}
	if err != nil {
		logger.API.Warn("otp request failed",
			slog.String("event", "api.otp_request"),
			slog.String("status", "fail"),
			slog.String("phone", phoneNumber),
			slog.Duration("duration", logger.Took(start)),
			slog.String("err", err.Error()),
		)
		return "", fmt.Errorf("%w: %v", ErrOTPRequestFailed, err)
	}
	logger.API.Info("otp requested",
		slog.String("event", "api.otp_request"),
		slog.String("status", "ok"),
		slog.String("phone", phoneNumber),
		slog.Duration("duration", logger.Took(start)),
	)
	return out.SubscriberID, nil
}

// SubmitOTP trades the code for a refresh and identity token pair.
func (c *Client) SubmitOTP(ctx context.Context, phoneNumber, code string) (TokenPair, error) {
	start := time.Now()
	var pair TokenPair
	err := c.post(ctx, "/auth/otp/submit", map[string]string{
		"msisdn": phoneNumber,
		"code":   code,
	}, &pair)
	if err == nil && (pair.RefreshToken == "" || pair.IDToken == "") {
		err = fmt.Errorf("incomplete token pair in response")
	}
	if err != nil {
		logger.API.Warn("otp submit failed",
			slog.String("event", "api.otp_submit"),
			slog.String("status", "fail"),
			slog.String("phone", phoneNumber),
			slog.Duration("duration", logger.Took(start)),
			slog.String("err", err.Error()),
		)
		return TokenPair{}, fmt.Errorf("%w: %v", ErrOTPSubmitFailed, err)
	}
	logger.API.Info("otp accepted",
		slog.String("event", "api.otp_submit"),
		slog.String("status", "ok"),
		slog.String("phone", phoneNumber),
		slog.Duration("duration", logger.Took(start)),
	)
	return pair, nil
}

// ExchangeToken trades a refresh token for a fresh identity token.
func (c *Client) ExchangeToken(ctx context.Context, refreshToken string) (string, error) {
	start := time.Now()
	var out struct {
		IDToken string `json:"id_token"`
	}
	err := c.post(ctx, "/auth/token/refresh", map[string]string{
		"refresh_token": refreshToken,
	}, &out)
	if err == nil && out.IDToken == "" {
		err = fmt.Errorf("empty id token in response")
	}
	if err != nil {
		logger.API.Warn("token exchange failed",
			slog.String("event", "api.token_exchange"),
			slog.String("status", "fail"),
			slog.Duration("duration", logger.Took(start)),
			slog.String("err", err.Error()),
		)
		return "", fmt.Errorf("%w: %v", ErrTokenExchangeFailed, err)
	}
	logger.API.Debug("token exchanged",
		slog.String("event", "api.token_exchange"),
		slog.String("status", "ok"),
		slog.Duration("duration", logger.Took(start)),
	)
	return out.IDToken, nil
}

// GetBalance fetches the remaining credit for the account behind idToken.
func (c *Client) GetBalance(ctx context.Context, idToken string) (Balance, error) {
	start := time.Now()
	var bal Balance
	err := c.post(ctx, "/account/balance", map[string]string{
		"id_token": idToken,
	}, &bal)
	if err != nil {
		logger.API.Warn("balance fetch failed",
			slog.String("event", "api.balance"),
			slog.String("status", "fail"),
			slog.Duration("duration", logger.Took(start)),
			slog.String("err", err.Error()),
		)
		return Balance{}, fmt.Errorf("%w: %v", ErrBalanceFetchFailed, err)
	}
	logger.API.Info("balance fetched",
		slog.String("event", "api.balance"),
		slog.String("status", "ok"),
		slog.Duration("duration", logger.Took(start)),
	)
	return bal, nil
}

// post sends a JSON body and decodes the data field of the envelope into out.
func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("http %d: %s", resp.StatusCode, snippet(payload))
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if env.Status != "" && env.Status != "success" {
		return fmt.Errorf("gateway status %q: %s", env.Status, env.Message)
	}
	if out == nil {
		return nil
	}
	if len(env.Data) == 0 {
		return fmt.Errorf("empty data in response")
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

func snippet(b []byte) string {
	const limit = 200
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
