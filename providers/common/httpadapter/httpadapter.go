// Package httpadapter provides shared plumbing for HTTP provider adapters:
// request construction, API-key injection, and normalization of transport
// and status failures into a small outcome taxonomy the callers can route on.
package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// OutcomeClass is the normalized result class of one provider attempt.
type OutcomeClass string

const (
	OutcomeSuccess               OutcomeClass = "success"
	OutcomeTimeout               OutcomeClass = "timeout"
	OutcomeOverload              OutcomeClass = "overload"
	OutcomeBlocked               OutcomeClass = "blocked"
	OutcomeInfrastructureFailure OutcomeClass = "infrastructure_failure"
	OutcomeCancelled             OutcomeClass = "cancelled"
)

// Outcome is the normalized result of one provider attempt.
type Outcome struct {
	Class      OutcomeClass
	Retryable  bool
	Reason     string
	StatusCode int
	BackoffMS  int64
}

// Failed reports whether the attempt should count against provider health.
// Cancellation is the caller's doing and is not a provider failure.
func (o Outcome) Failed() bool {
	return o.Class != OutcomeSuccess && o.Class != OutcomeCancelled
}

// Config configures an HTTP provider adapter.
type Config struct {
	Name             string
	Endpoint         string
	Method           string
	APIKey           string
	APIKeyHeader     string
	APIKeyPrefix     string
	QueryAPIKeyParam string
	StaticHeaders    map[string]string
	Timeout          time.Duration
	Client           *http.Client
}

func (c Config) withDefaults() Config {
	if c.Method == "" {
		c.Method = http.MethodPost
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.Client == nil {
		c.Client = &http.Client{}
	}
	return c
}

// Adapter executes requests against a single provider endpoint.
type Adapter struct {
	cfg Config
}

// New constructs an adapter. Name and Endpoint are required.
func New(cfg Config) (*Adapter, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("adapter name is required")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("adapter %s: endpoint is required", cfg.Name)
	}
	return &Adapter{cfg: cfg.withDefaults()}, nil
}

// Name returns the adapter identity used in health and telemetry records.
func (a *Adapter) Name() string { return a.cfg.Name }

// Result carries the normalized outcome plus the raw response body.
type Result struct {
	Outcome Outcome
	Body    []byte
}

// DoJSON marshals payload as JSON and executes one attempt.
func (a *Adapter) DoJSON(ctx context.Context, payload any) (Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("adapter %s: marshal request: %w", a.cfg.Name, err)
	}
	return a.Do(ctx, body, "application/json")
}

// Do executes one attempt with a raw body and normalizes the outcome.
// A non-nil error means the request could not be attempted at all;
// provider-side failures come back as non-success outcomes with err == nil.
func (a *Adapter) Do(ctx context.Context, body []byte, contentType string) (Result, error) {
	endpoint := a.cfg.Endpoint
	if a.cfg.QueryAPIKeyParam != "" && a.cfg.APIKey != "" {
		var err error
		endpoint, err = WithQuery(endpoint, a.cfg.QueryAPIKeyParam, a.cfg.APIKey)
		if err != nil {
			return Result{}, fmt.Errorf("adapter %s: %w", a.cfg.Name, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, a.cfg.Method, endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("adapter %s: build request: %w", a.cfg.Name, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if a.cfg.APIKeyHeader != "" && a.cfg.APIKey != "" {
		req.Header.Set(a.cfg.APIKeyHeader, a.cfg.APIKeyPrefix+a.cfg.APIKey)
	}
	for key, value := range a.cfg.StaticHeaders {
		req.Header.Set(key, value)
	}

	resp, err := a.cfg.Client.Do(req)
	if err != nil {
		return Result{Outcome: NormalizeNetworkError(err)}, nil
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)
	outcome := NormalizeStatus(resp.StatusCode, resp.Header.Get("Retry-After"))
	if readErr != nil && outcome.Class == OutcomeSuccess {
		outcome = Outcome{
			Class:     OutcomeInfrastructureFailure,
			Retryable: true,
			Reason:    "response_read_error",
		}
	}
	return Result{Outcome: outcome, Body: respBody}, nil
}

// WithQuery appends/overrides a query key on an endpoint URL.
func WithQuery(rawEndpoint string, key string, value string) (string, error) {
	u, err := url.Parse(rawEndpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// NormalizeNetworkError maps transport-level errors to normalized outcomes.
func NormalizeNetworkError(err error) Outcome {
	if errors.Is(err, context.Canceled) {
		return Outcome{Class: OutcomeCancelled, Reason: "call_cancelled"}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Outcome{Class: OutcomeTimeout, Retryable: true, Reason: "call_timeout"}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Outcome{Class: OutcomeTimeout, Retryable: true, Reason: "call_timeout"}
	}
	return Outcome{Class: OutcomeInfrastructureFailure, Retryable: true, Reason: "transport_error"}
}

// NormalizeStatus maps an HTTP status and Retry-After header to an outcome.
func NormalizeStatus(status int, retryAfter string) Outcome {
	outcome := Outcome{StatusCode: status}
	switch {
	case status >= 200 && status <= 299:
		outcome.Class = OutcomeSuccess
		return outcome
	case status == http.StatusTooManyRequests:
		outcome.Class = OutcomeOverload
		outcome.Retryable = true
		outcome.Reason = "provider_overload"
		outcome.BackoffMS = retryAfterToMS(retryAfter)
		return outcome
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		outcome.Class = OutcomeTimeout
		outcome.Retryable = true
		outcome.Reason = "provider_timeout"
		return outcome
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		outcome.Class = OutcomeBlocked
		outcome.Reason = "auth_or_policy_block"
		return outcome
	case status >= 400 && status <= 499:
		outcome.Class = OutcomeBlocked
		outcome.Reason = "client_error"
		return outcome
	default:
		outcome.Class = OutcomeInfrastructureFailure
		outcome.Retryable = true
		outcome.Reason = "server_error"
		return outcome
	}
}

func retryAfterToMS(retryAfter string) int64 {
	trimmed := strings.TrimSpace(retryAfter)
	if trimmed == "" {
		return 500
	}
	seconds, err := strconv.Atoi(trimmed)
	if err != nil || seconds < 1 {
		return 500
	}
	return int64(seconds) * 1000
}
