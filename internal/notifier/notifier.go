// Package notifier formats and retry-delivers webhook notifications for
// Project-level events (session summaries, schedule results, team-task
// completions, error alerts, and generic messages).
package notifier

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Level is a notification severity, filtered against a Project's configured
// minimum level before dispatch.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

var levelRank = map[Level]int{LevelInfo: 0, LevelWarning: 1, LevelError: 2}

// meets reports whether l is at or above min (defaulting to info when min is
// empty or unrecognized).
func meets(l, min Level) bool {
	minRank, ok := levelRank[min]
	if !ok {
		minRank = levelRank[LevelInfo]
	}
	rank, ok := levelRank[l]
	if !ok {
		rank = levelRank[LevelInfo]
	}
	return rank >= minRank
}

// Platform selects the payload adapter used for a delivery.
type Platform string

const (
	PlatformFeishu Platform = "feishu"
	PlatformWeChat Platform = "wechat"
	PlatformSlack  Platform = "slack"
	PlatformCustom Platform = "custom"
)

const (
	defaultBase    = 1000 * time.Millisecond
	testModeBase   = 10 * time.Millisecond
	attemptTimeout = 10 * time.Second
	maxAttempts    = 3
)

// Target describes where and how to deliver a notification for one Project.
type Target struct {
	Webhook  string
	Platform Platform
	MinLevel Level
}

// Notifier delivers formatted webhook notifications with retry.
type Notifier struct {
	client   *http.Client
	logger   *slog.Logger
	base     time.Duration
	testMode bool
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithTestMode shrinks the retry base delay to 10ms, matching the reference
// TEST_MODE behavior so retry-dependent tests run quickly.
func WithTestMode() Option {
	return func(n *Notifier) { n.testMode = true; n.base = testModeBase }
}

// WithHTTPClient overrides the http.Client used for delivery.
func WithHTTPClient(c *http.Client) Option {
	return func(n *Notifier) { n.client = c }
}

// New creates a Notifier.
func New(logger *slog.Logger, opts ...Option) *Notifier {
	n := &Notifier{
		client: &http.Client{Timeout: attemptTimeout},
		logger: logger,
		base:   defaultBase,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// permanentHTTPError wraps a non-retryable delivery failure.
type permanentHTTPError struct {
	statusCode int
}

func (e *permanentHTTPError) Error() string {
	return fmt.Sprintf("notifier: non-retryable status %d", e.statusCode)
}

// retryableHTTPError wraps a delivery failure eligible for another attempt.
type retryableHTTPError struct {
	statusCode int
	cause      error
}

func (e *retryableHTTPError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("notifier: transport error: %s", e.cause)
	}
	return fmt.Sprintf("notifier: retryable status %d", e.statusCode)
}

// Deliver formats trigger for target's Platform, drops it if below
// target.MinLevel, and POSTs it with up to 3 attempts at linear back-off
// (base·attempt) on transport errors or HTTP >=500/429.
func (n *Notifier) Deliver(ctx context.Context, target Target, trigger Trigger) error {
	level := trigger.Level()
	if !meets(level, target.MinLevel) {
		n.logger.Debug("notification below minimum level, dropped", "level", level, "min", target.MinLevel)
		return nil
	}

	body, headers := adaptPayload(target.Platform, trigger)

	op := func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.Webhook, bytes.NewReader(body))
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			return nil, &retryableHTTPError{cause: err}
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return resp, nil
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return nil, &retryableHTTPError{statusCode: resp.StatusCode}
		default:
			return nil, backoff.Permanent(&permanentHTTPError{statusCode: resp.StatusCode})
		}
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(&linearBackOff{base: n.base}),
		backoff.WithMaxTries(maxAttempts),
	)
	if err != nil {
		n.logger.Warn("notification delivery failed", "webhook", target.Webhook, "error", err)
		return err
	}
	return nil
}

// linearBackOff implements backoff.BackOff with the base·attempt policy
// required by the webhook retry contract, rather than the library's default
// exponential policy.
type linearBackOff struct {
	base    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.base * time.Duration(b.attempt)
}

func (b *linearBackOff) Reset() { b.attempt = 0 }
