package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"voice-agent-platform/pkg/logger"

	"github.com/cenkalti/backoff/v4"
)

const idempotencyHeader = "Idempotency-Key"

type ClientConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
}

// Client talks to the control plane over HTTP. 429 and 5xx responses and
// transport errors are retried with exponential backoff; other 4xx are final.
type Client struct {
	baseURL    string
	apiKey     string
	http       *http.Client
	maxRetries uint64

	newBackOff func() backoff.BackOff
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base url required", ErrInvalidArgument)
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("%w: base url: %v", ErrInvalidArgument, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		http:       &http.Client{Timeout: cfg.Timeout},
		maxRetries: uint64(cfg.MaxRetries),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			b.MaxElapsedTime = 30 * time.Second
			return b
		},
	}, nil
}

func (c *Client) GetPhoneNumber(ctx context.Context, providerNumberID string) (Binding, error) {
	if providerNumberID == "" {
		return Binding{}, ErrInvalidArgument
	}
	return c.do(ctx, http.MethodGet, providerNumberID, nil, "")
}

func (c *Client) SetAssistant(ctx context.Context, providerNumberID, assistantID, idempotencyKey string) (Binding, error) {
	if providerNumberID == "" {
		return Binding{}, ErrInvalidArgument
	}
	// A null assistantId clears the binding.
	body := map[string]any{"assistantId": nil}
	if assistantID != "" {
		body["assistantId"] = assistantID
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return Binding{}, err
	}
	return c.do(ctx, http.MethodPatch, providerNumberID, raw, idempotencyKey)
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return "telephony: status " + strconv.Itoa(e.code) + ": " + e.body
}

func retryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func (c *Client) do(ctx context.Context, method, providerNumberID string, body []byte, idempotencyKey string) (Binding, error) {
	endpoint := c.baseURL + "/phone-number/" + url.PathEscape(providerNumberID)
	log := logger.From(ctx)

	var out Binding
	attempt := 0
	op := func() error {
		attempt++
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, rd)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		if idempotencyKey != "" {
			req.Header.Set(idempotencyHeader, idempotencyKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			log.Debug("control plane request failed", "method", method, "attempt", attempt, "err", err)
			return err
		}
		defer resp.Body.Close()
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(ErrNotFound)
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			var b Binding
			if len(payload) > 0 {
				if err := json.Unmarshal(payload, &b); err != nil {
					return backoff.Permanent(fmt.Errorf("telephony: decode response: %w", err))
				}
			}
			if b.ProviderNumberID == "" {
				b.ProviderNumberID = providerNumberID
			}
			out = b
			return nil
		default:
			serr := &statusError{code: resp.StatusCode, body: string(payload)}
			if retryable(resp.StatusCode) {
				log.Debug("control plane retryable status", "method", method, "attempt", attempt, "status", resp.StatusCode)
				return serr
			}
			return backoff.Permanent(serr)
		}
	}

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Binding{}, err
		}
		var serr *statusError
		if errors.As(err, &serr) && !retryable(serr.code) {
			return Binding{}, err
		}
		return Binding{}, fmt.Errorf("%w: %s %s after %d attempts: %w", ErrUnavailable, method, providerNumberID, attempt, err)
	}
	return out, nil
}
