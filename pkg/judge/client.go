package judge

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	submitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "codequest",
		Subsystem: "judge",
		Name:      "submit_duration_seconds",
		Help:      "Duration of judge submission round trips",
		Buckets:   prometheus.DefBuckets,
	})

	pollAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "codequest",
		Subsystem: "judge",
		Name:      "poll_attempts_total",
		Help:      "Number of status polls issued against the judge",
	})

	pollRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "codequest",
		Subsystem: "judge",
		Name:      "poll_rate_limited_total",
		Help:      "Number of polls the judge answered with HTTP 429",
	})

	pollTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "codequest",
		Subsystem: "judge",
		Name:      "poll_timeouts_total",
		Help:      "Number of submissions abandoned before reaching a terminal status",
	})
)

// Client talks to the remote judge.
type Client interface {
	Submit(ctx context.Context, source string, languageID int, stdin string) (string, error)
	Wait(ctx context.Context, token string) (Result, error)
}

// Config groups judge client settings. All values are injected at
// construction so tests can point the client at a fake backend.
type Config struct {
	BaseURL         string
	APIKey          string
	APIHost         string
	HTTPTimeout     time.Duration
	PollInterval    time.Duration
	PollMaxInterval time.Duration
	PollBackoff     float64
	PollMaxAttempts int
}

func (c *Config) applyDefaults() {
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 30 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.PollMaxInterval <= 0 {
		c.PollMaxInterval = 5 * time.Second
	}
	if c.PollBackoff < 1 {
		c.PollBackoff = 1.5
	}
	if c.PollMaxAttempts <= 0 {
		c.PollMaxAttempts = 10
	}
}

// HTTPClient constructs a judge client over HTTP.
type HTTPClient struct {
	cfg    Config
	http   *http.Client
	sleep  func(context.Context, time.Duration) error
	tracer trace.Tracer
	logger zerolog.Logger
}

// Option customises the client; used by tests to remove real delays.
type Option func(*HTTPClient)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) {
		c.http = hc
	}
}

// WithSleep overrides the inter-poll sleep function.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(c *HTTPClient) {
		c.sleep = sleep
	}
}

// NewHTTPClient constructs a client for a Judge0-compatible backend.
func NewHTTPClient(cfg Config, logger zerolog.Logger, opts ...Option) *HTTPClient {
	cfg.applyDefaults()

	client := &HTTPClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.HTTPTimeout},
		sleep:  sleepContext,
		tracer: otel.Tracer("github.com/codequest-edu/codequest-go-api/pkg/judge"),
		logger: logger.With().Str("component", "judge_client").Logger(),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

type submitPayload struct {
	SourceCode string `json:"source_code"`
	LanguageID int    `json:"language_id"`
	Stdin      string `json:"stdin,omitempty"`
}

type submitResponse struct {
	Token string `json:"token"`
}

type statusBody struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

type resultResponse struct {
	Token         string     `json:"token"`
	Status        statusBody `json:"status"`
	Stdout        string     `json:"stdout"`
	Stderr        string     `json:"stderr"`
	CompileOutput string     `json:"compile_output"`
	Message       string     `json:"message"`
	Time          string     `json:"time"`
	Memory        float64    `json:"memory"`
}

// Submit sends one code+stdin pair to the judge and returns the tracking token.
func (c *HTTPClient) Submit(ctx context.Context, source string, languageID int, stdin string) (string, error) {
	if strings.TrimSpace(c.cfg.BaseURL) == "" {
		return "", ErrNotConfigured
	}

	ctx, span := c.tracer.Start(ctx, "judge.submit", trace.WithAttributes(
		attribute.Int("judge.language_id", languageID),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		submitDuration.Observe(time.Since(start).Seconds())
	}()

	payload := submitPayload{
		SourceCode: base64.StdEncoding.EncodeToString([]byte(source)),
		LanguageID: languageID,
		Stdin:      base64.StdEncoding.EncodeToString([]byte(stdin)),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode submission: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/submissions?base64_encoded=true&wait=false"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuthHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit transport failure")
		return "", &ConnectionError{Op: "submit", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		span.SetStatus(codes.Error, "submit rejected")
		return "", &ConnectionError{Op: "submit", Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var parsed submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &ConnectionError{Op: "submit", Err: fmt.Errorf("decode response: %w", err)}
	}
	if parsed.Token == "" {
		return "", &ConnectionError{Op: "submit", Err: fmt.Errorf("judge returned no token")}
	}

	span.SetAttributes(attribute.String("judge.token", parsed.Token))
	return parsed.Token, nil
}

// Wait polls the judge until the submission reaches a terminal status or the
// retry budget is exhausted. The schedule starts at PollInterval, grows by
// PollBackoff per attempt up to PollMaxInterval, and an HTTP 429 answer
// doubles the current interval on the spot.
func (c *HTTPClient) Wait(ctx context.Context, token string) (Result, error) {
	if strings.TrimSpace(c.cfg.BaseURL) == "" {
		return Result{}, ErrNotConfigured
	}

	ctx, span := c.tracer.Start(ctx, "judge.wait", trace.WithAttributes(
		attribute.String("judge.token", token),
	))
	defer span.End()

	interval := c.cfg.PollInterval
	for attempt := 1; attempt <= c.cfg.PollMaxAttempts; attempt++ {
		pollAttempts.Inc()

		result, retryAfter, err := c.fetch(ctx, token)
		switch {
		case err != nil:
			span.RecordError(err)
			return Result{}, err
		case retryAfter:
			pollRateLimited.Inc()
			interval = interval * 2
		case result.Terminal():
			span.SetAttributes(attribute.Int("judge.status_id", result.StatusID))
			return result, nil
		}

		if attempt == c.cfg.PollMaxAttempts {
			break
		}

		if err := c.sleep(ctx, interval); err != nil {
			return Result{}, err
		}
		interval = nextInterval(interval, c.cfg.PollBackoff, c.cfg.PollMaxInterval)
	}

	pollTimeouts.Inc()
	span.SetStatus(codes.Error, "poll budget exhausted")
	c.logger.Warn().Str("token", token).Int("attempts", c.cfg.PollMaxAttempts).Msg("judge result still pending")
	return Result{}, &TimeoutError{Token: token, Attempts: c.cfg.PollMaxAttempts}
}

// fetch performs one status request. The second return value reports that the
// judge asked us to back off (HTTP 429).
func (c *HTTPClient) fetch(ctx context.Context, token string) (Result, bool, error) {
	url := fmt.Sprintf("%s/submissions/%s?base64_encoded=true&fields=token,status,stdout,stderr,compile_output,message,time,memory", strings.TrimRight(c.cfg.BaseURL, "/"), token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, false, fmt.Errorf("build poll request: %w", err)
	}
	c.setAuthHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, false, &ConnectionError{Op: "poll", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, resp.Body)
		return Result{}, true, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Result{}, false, &ConnectionError{Op: "poll", Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var parsed resultResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{}, false, &ConnectionError{Op: "poll", Err: fmt.Errorf("decode response: %w", err)}
	}

	result := Result{
		Token:         token,
		StatusID:      parsed.Status.ID,
		StatusName:    parsed.Status.Description,
		Stdout:        DecodeField(parsed.Stdout),
		Stderr:        DecodeField(parsed.Stderr),
		CompileOutput: DecodeField(parsed.CompileOutput),
		Message:       DecodeField(parsed.Message),
		MemoryKB:      int64(parsed.Memory),
	}
	if parsed.Time != "" {
		seconds, err := strconv.ParseFloat(strings.TrimSpace(parsed.Time), 64)
		if err != nil {
			c.logger.Warn().Str("token", token).Str("time", parsed.Time).Msg("judge returned an unparsable time field")
		} else {
			result.TimeSec = seconds
		}
	}

	return result, false, nil
}

func (c *HTTPClient) setAuthHeaders(req *http.Request) {
	if c.cfg.APIKey != "" {
		req.Header.Set("X-RapidAPI-Key", c.cfg.APIKey)
	}
	if c.cfg.APIHost != "" {
		req.Header.Set("X-RapidAPI-Host", c.cfg.APIHost)
	}
}

// nextInterval advances the retry schedule one step.
func nextInterval(current time.Duration, backoff float64, max time.Duration) time.Duration {
	next := time.Duration(float64(current) * backoff)
	if next > max {
		return max
	}
	return next
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
