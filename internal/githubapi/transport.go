package githubapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/devinsights/scm-normalizer/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RetryConfig configures GitHub request retry behavior.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// RateLimitPolicy decides when the transport must pause instead of
// burning the remaining GitHub request budget on backfill pagination.
type RateLimitPolicy struct {
	MinRemainingThreshold int
	MinResetBuffer        time.Duration
	SecondaryLimitBackoff time.Duration
	Now                   func() time.Time
}

// rateBudget is the per-response view of the GitHub rate-limit state.
type rateBudget struct {
	remaining        int
	resetUnix        int64
	retryAfter       time.Duration
	secondaryLimited bool
}

// parseRateBudget reads the rate-limit and retry headers from one
// response. A 429, or a 403 carrying Retry-After, signals the secondary
// (abuse) limit rather than budget exhaustion.
func parseRateBudget(header http.Header, statusCode int) rateBudget {
	budget := rateBudget{
		remaining: headerInt(header, "X-RateLimit-Remaining"),
		resetUnix: headerInt64(header, "X-RateLimit-Reset"),
	}
	if seconds := headerInt(header, "Retry-After"); seconds > 0 {
		budget.retryAfter = time.Duration(seconds) * time.Second
	}
	switch {
	case statusCode == http.StatusTooManyRequests:
		budget.secondaryLimited = true
	case statusCode == http.StatusForbidden && budget.retryAfter > 0:
		budget.secondaryLimited = true
	}
	return budget
}

// rateDecision is the policy outcome for one response.
type rateDecision struct {
	allow   bool
	waitFor time.Duration
	reason  string
}

func (p RateLimitPolicy) evaluate(budget rateBudget) rateDecision {
	now := time.Now()
	if p.Now != nil {
		now = p.Now()
	}

	if budget.secondaryLimited {
		waitFor := p.SecondaryLimitBackoff
		if budget.retryAfter > waitFor {
			waitFor = budget.retryAfter
		}
		return rateDecision{allow: false, waitFor: waitFor, reason: "secondary_limit"}
	}

	if budget.remaining >= p.MinRemainingThreshold {
		return rateDecision{allow: true, reason: "within_budget"}
	}

	resetAt := time.Unix(budget.resetUnix, 0)
	if !resetAt.After(now) {
		return rateDecision{allow: true, reason: "reset_elapsed"}
	}
	return rateDecision{
		allow:   false,
		waitFor: resetAt.Sub(now) + p.MinResetBuffer,
		reason:  "remaining_below_threshold",
	}
}

func headerInt(header http.Header, key string) int {
	parsed, err := strconv.Atoi(header.Get(key))
	if err != nil {
		return 0
	}
	return parsed
}

func headerInt64(header http.Header, key string) int64 {
	parsed, err := strconv.ParseInt(header.Get(key), 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}

// RetryTransport is an http.RoundTripper that retries transient failures
// and pauses on rate-limit exhaustion. It sits under the go-github client
// so every typed call inherits the same budget handling.
type RetryTransport struct {
	base       http.RoundTripper
	retry      RetryConfig
	ratePolicy RateLimitPolicy
	// Sleep is injected for testability.
	Sleep func(duration time.Duration)
}

// NewRetryTransport wraps a base transport with retry and rate-limit
// controls. A nil base falls back to http.DefaultTransport.
func NewRetryTransport(base http.RoundTripper, retry RetryConfig, ratePolicy RateLimitPolicy) *RetryTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	return &RetryTransport{
		base:       base,
		retry:      retry,
		ratePolicy: ratePolicy,
		Sleep:      time.Sleep,
	}
}

// RoundTrip executes a request with retry and rate-limit awareness.
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
	}

	ctx := req.Context()
	var span trace.Span
	if telemetry.CurrentMode().TracesDependencies() {
		ctx, span = otel.Tracer("scm-normalizer/internal/githubapi").Start(
			ctx,
			"githubapi.transport.roundtrip",
			trace.WithAttributes(
				attribute.String("http.method", req.Method),
				attribute.String("http.path", req.URL.EscapedPath()),
				attribute.Int("github.max_attempts", t.retry.MaxAttempts),
			),
		)
		defer span.End()
	}

	for attempt := 1; attempt <= t.retry.MaxAttempts; attempt++ {
		nextReq := req.Clone(ctx)
		resp, err := t.base.RoundTrip(nextReq)
		if err != nil {
			if span != nil {
				span.RecordError(err)
				span.AddEvent("attempt_failed", trace.WithAttributes(
					attribute.Int("github.attempt", attempt),
				))
			}
			if attempt == t.retry.MaxAttempts {
				if span != nil {
					span.SetStatus(codes.Error, err.Error())
				}
				return nil, err
			}
			t.Sleep(backoffForAttempt(t.retry, attempt))
			continue
		}

		budget := parseRateBudget(resp.Header, resp.StatusCode)
		decision := t.ratePolicy.evaluate(budget)

		if span != nil {
			span.AddEvent("attempt_completed", trace.WithAttributes(
				attribute.Int("github.attempt", attempt),
				attribute.Int("http.status_code", resp.StatusCode),
				attribute.Int("github.rate_limit_remaining", budget.remaining),
				attribute.Int64("github.rate_limit_reset_unix", budget.resetUnix),
				attribute.Bool("github.rate_limit_allow", decision.allow),
				attribute.String("github.rate_limit_reason", decision.reason),
			))
		}

		if !decision.allow {
			if attempt == t.retry.MaxAttempts {
				if span != nil {
					span.SetStatus(codes.Error, "rate-limited")
				}
				return resp, nil
			}
			if resp.Body != nil {
				_ = resp.Body.Close()
			}
			t.Sleep(decision.waitFor)
			continue
		}

		if isTransientStatus(resp.StatusCode) {
			if attempt == t.retry.MaxAttempts {
				if span != nil {
					span.SetStatus(codes.Error, fmt.Sprintf("transient status %d", resp.StatusCode))
				}
				return resp, nil
			}
			if resp.Body != nil {
				_ = resp.Body.Close()
			}
			t.Sleep(backoffForAttempt(t.retry, attempt))
			continue
		}

		if span != nil {
			span.SetStatus(codes.Ok, "request completed")
		}
		return resp, nil
	}

	if span != nil {
		span.SetStatus(codes.Error, "request attempts exhausted")
	}
	return nil, fmt.Errorf("request attempts exhausted")
}

func isTransientStatus(statusCode int) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	return statusCode >= 500 && statusCode <= 599
}

func backoffForAttempt(retry RetryConfig, attempt int) time.Duration {
	backoff := retry.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if retry.MaxBackoff > 0 && backoff > retry.MaxBackoff {
			return retry.MaxBackoff
		}
	}
	if retry.MaxBackoff > 0 && backoff > retry.MaxBackoff {
		return retry.MaxBackoff
	}
	return backoff
}
