package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/moonrox420/chimera-gateway/pkg/config"
)

// Client issues streaming generation requests to the model server.
//
// The client holds a pooled HTTP client bounded by the configured exchange
// timeout. It is safe for concurrent use by every connection handler.
type Client struct {
	baseURL string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

// NewClient creates a client for the configured model server.
func NewClient(cfg config.UpstreamConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		ForceAttemptHTTP2:   true,
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		client: &http.Client{
			Transport: transport,
			// Bounds the whole exchange, headers through last body byte.
			// Generation is slow, so the ceiling is generous.
			Timeout: cfg.Timeout,
		},
		logger: logger.With("component", "model.client"),
	}
}

// Generate issues a streaming generation request for the given prompt.
//
// A non-nil error means the request failed before any output: connect
// failure, a non-2xx status, or context cancellation. On success the caller
// owns the returned Stream and must close it.
func (c *Client) Generate(ctx context.Context, prompt string) (*Stream, error) {
	reqBody := GenerationRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: true,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal generation request: %w", err)
	}

	url := c.baseURL + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to build generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &UpstreamError{
			Message: "request failed",
			Cause:   err,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Read a bounded amount of the body for the error message.
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &UpstreamError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}

	c.logger.Debug("generation stream opened", "model", c.model)

	return newStream(resp.Body), nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// HealthCheck verifies the model server is reachable.
// It issues a GET against the server root; any response means reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("failed to build health check request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &UpstreamError{Message: "health check failed", Cause: err}
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
	resp.Body.Close()

	return nil
}
