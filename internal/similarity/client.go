// Package similarity wraps the external semantic-similarity scorer. The
// scorer is consumed as an opaque service: transport errors and 5xx
// responses surface as ErrUnavailable so callers can degrade instead of
// failing validation outright.
package similarity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrUnavailable signals that the scorer could not be reached or answered
// with a server error. Callers must fail open into a degraded outcome.
var ErrUnavailable = errors.New("similarity scorer unavailable")

// Request carries the description to score against a cluster's canon.
type Request struct {
	Description string `json:"description"`
	ClusterID   string `json:"clusterId"`
}

// Result is the scorer's verdict.
type Result struct {
	Valid      bool    `json:"valid"`
	Similarity float64 `json:"similarity"`
	Reason     string  `json:"reason"`
}

// Client scores a description against its assigned cluster.
type Client interface {
	Score(ctx context.Context, req Request) (Result, error)
}

// StaticClient returns a fixed verdict based on a minimum description
// length. Useful for development and tests without a scorer deployment.
type StaticClient struct {
	MinLength int
}

func NewStaticClient(minLength int) *StaticClient {
	return &StaticClient{MinLength: minLength}
}

func (c *StaticClient) Score(ctx context.Context, req Request) (Result, error) {
	if len(req.Description) < c.MinLength {
		return Result{
			Valid:      false,
			Similarity: 0,
			Reason:     "description below minimum length",
		}, nil
	}
	return Result{Valid: true, Similarity: 1, Reason: "static pass"}, nil
}

// HTTPClientConfig configures the scorer HTTP client.
type HTTPClientConfig struct {
	BaseURL    string
	Path       string
	Timeout    time.Duration
	Retries    int
	HTTPClient *http.Client
}

// HTTPClient calls the scorer over HTTP with a short bounded timeout.
type HTTPClient struct {
	baseURL string
	path    string
	client  *http.Client
	timeout time.Duration
	retries int
}

func NewHTTPClient(cfg HTTPClientConfig) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("similarity base url required")
	}
	path := cfg.Path
	if path == "" {
		path = "/similarity/score"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}
	return &HTTPClient{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		path:    path,
		client:  client,
		timeout: timeout,
		retries: retries,
	}, nil
}

func (c *HTTPClient) Score(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("similarity marshal request: %w", err)
	}

	attempts := c.retries + 1
	var lastErr error
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		}
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+c.path, bytes.NewReader(body))
		if err != nil {
			cancel()
			return Result{}, fmt.Errorf("similarity build request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		resp, err := c.client.Do(httpReq)
		cancel()
		if err != nil {
			lastErr = err
		} else {
			result, parseErr := decodeResult(resp)
			resp.Body.Close()
			if parseErr == nil {
				return result, nil
			}
			lastErr = parseErr
		}
		if i < attempts-1 {
			time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
		}
	}
	return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func decodeResult(resp *http.Response) (Result, error) {
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("scorer returned %s", resp.Status)
	}
	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, fmt.Errorf("scorer decode response: %w", err)
	}
	return result, nil
}
