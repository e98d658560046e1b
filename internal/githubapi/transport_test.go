package githubapi

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

type scriptedRoundTripper struct {
	responses []*http.Response
	errs      []error
	calls     int
}

func (s *scriptedRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	index := s.calls
	s.calls++
	if index >= len(s.responses) {
		return nil, errors.New("no scripted response")
	}
	return s.responses[index], s.errs[index]
}

func scriptedResponse(statusCode int, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode: statusCode,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader("")),
	}
}

func newTestRequest(t *testing.T) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, "https://api.example.test/repos/o/r/commits", nil)
	if err != nil {
		t.Fatalf("http.NewRequest() unexpected error: %v", err)
	}
	return req
}

func TestRoundTripRetriesTransientStatus(t *testing.T) {
	t.Parallel()

	base := &scriptedRoundTripper{
		responses: []*http.Response{
			scriptedResponse(http.StatusBadGateway, nil),
			scriptedResponse(http.StatusOK, nil),
		},
		errs: []error{nil, nil},
	}
	transport := NewRetryTransport(base, RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond}, RateLimitPolicy{})

	var slept []time.Duration
	transport.Sleep = func(d time.Duration) { slept = append(slept, d) }

	resp, err := transport.RoundTrip(newTestRequest(t))
	if err != nil {
		t.Fatalf("RoundTrip() unexpected error: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("StatusCode = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if base.calls != 2 {
		t.Fatalf("base transport calls = %d, want 2", base.calls)
	}
	if len(slept) != 1 || slept[0] != time.Millisecond {
		t.Fatalf("sleeps = %v, want one initial backoff", slept)
	}
}

func TestRoundTripRetriesTransportError(t *testing.T) {
	t.Parallel()

	base := &scriptedRoundTripper{
		responses: []*http.Response{nil, scriptedResponse(http.StatusOK, nil)},
		errs:      []error{errors.New("connection reset"), nil},
	}
	transport := NewRetryTransport(base, RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond}, RateLimitPolicy{})
	transport.Sleep = func(time.Duration) {}

	resp, err := transport.RoundTrip(newTestRequest(t))
	if err != nil {
		t.Fatalf("RoundTrip() unexpected error: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("StatusCode = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestRoundTripWaitsOnRateLimitExhaustion(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	limitedHeader := http.Header{}
	limitedHeader.Set("X-RateLimit-Remaining", "1")
	limitedHeader.Set("X-RateLimit-Reset", "1700000030")

	recoveredHeader := http.Header{}
	recoveredHeader.Set("X-RateLimit-Remaining", "100")

	base := &scriptedRoundTripper{
		responses: []*http.Response{
			scriptedResponse(http.StatusOK, limitedHeader),
			scriptedResponse(http.StatusOK, recoveredHeader),
		},
		errs: []error{nil, nil},
	}
	policy := RateLimitPolicy{
		MinRemainingThreshold: 10,
		MinResetBuffer:        time.Second,
		Now:                   func() time.Time { return now },
	}
	transport := NewRetryTransport(base, RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond}, policy)

	var slept []time.Duration
	transport.Sleep = func(d time.Duration) { slept = append(slept, d) }

	resp, err := transport.RoundTrip(newTestRequest(t))
	if err != nil {
		t.Fatalf("RoundTrip() unexpected error: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if base.calls != 2 {
		t.Fatalf("base transport calls = %d, want 2", base.calls)
	}
	if len(slept) != 1 || slept[0] != 31*time.Second {
		t.Fatalf("sleeps = %v, want one wait until reset plus buffer", slept)
	}
}

func TestRoundTripReturnsLastTransientResponse(t *testing.T) {
	t.Parallel()

	base := &scriptedRoundTripper{
		responses: []*http.Response{
			scriptedResponse(http.StatusServiceUnavailable, nil),
			scriptedResponse(http.StatusServiceUnavailable, nil),
		},
		errs: []error{nil, nil},
	}
	transport := NewRetryTransport(base, RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond}, RateLimitPolicy{})
	transport.Sleep = func(time.Duration) {}

	resp, err := transport.RoundTrip(newTestRequest(t))
	if err != nil {
		t.Fatalf("RoundTrip() unexpected error: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("StatusCode = %d, want the exhausted response", resp.StatusCode)
	}
}

func TestBackoffForAttemptCapsAtMax(t *testing.T) {
	t.Parallel()

	retry := RetryConfig{InitialBackoff: time.Second, MaxBackoff: 3 * time.Second}
	if got := backoffForAttempt(retry, 1); got != time.Second {
		t.Fatalf("attempt 1 backoff = %v, want %v", got, time.Second)
	}
	if got := backoffForAttempt(retry, 2); got != 2*time.Second {
		t.Fatalf("attempt 2 backoff = %v, want %v", got, 2*time.Second)
	}
	if got := backoffForAttempt(retry, 5); got != 3*time.Second {
		t.Fatalf("attempt 5 backoff = %v, want capped %v", got, 3*time.Second)
	}
}

func TestParseRateBudget(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		headers    map[string]string
		statusCode int
		want       rateBudget
	}{
		{
			name: "primary_headers",
			headers: map[string]string{
				"X-RateLimit-Remaining": "41",
				"X-RateLimit-Reset":     "1700000123",
			},
			statusCode: http.StatusOK,
			want:       rateBudget{remaining: 41, resetUnix: 1700000123},
		},
		{
			name:       "too_many_requests_is_secondary",
			headers:    map[string]string{"Retry-After": "7"},
			statusCode: http.StatusTooManyRequests,
			want:       rateBudget{retryAfter: 7 * time.Second, secondaryLimited: true},
		},
		{
			name:       "forbidden_with_retry_after_is_secondary",
			headers:    map[string]string{"Retry-After": "30"},
			statusCode: http.StatusForbidden,
			want:       rateBudget{retryAfter: 30 * time.Second, secondaryLimited: true},
		},
		{
			name:       "forbidden_without_retry_after_is_not",
			headers:    map[string]string{},
			statusCode: http.StatusForbidden,
			want:       rateBudget{},
		},
		{
			name:       "garbage_headers_parse_to_zero",
			headers:    map[string]string{"X-RateLimit-Remaining": "many", "X-RateLimit-Reset": "soon"},
			statusCode: http.StatusOK,
			want:       rateBudget{},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			header := make(http.Header)
			for key, value := range tc.headers {
				header.Set(key, value)
			}
			if got := parseRateBudget(header, tc.statusCode); got != tc.want {
				t.Fatalf("parseRateBudget() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestRateLimitPolicyEvaluate(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	policy := RateLimitPolicy{
		MinRemainingThreshold: 10,
		MinResetBuffer:        time.Second,
		SecondaryLimitBackoff: 5 * time.Second,
		Now:                   func() time.Time { return now },
	}

	testCases := []struct {
		name   string
		budget rateBudget
		want   rateDecision
	}{
		{
			name:   "within_budget",
			budget: rateBudget{remaining: 50},
			want:   rateDecision{allow: true, reason: "within_budget"},
		},
		{
			name:   "below_threshold_waits_for_reset",
			budget: rateBudget{remaining: 3, resetUnix: now.Unix() + 60},
			want:   rateDecision{allow: false, waitFor: 61 * time.Second, reason: "remaining_below_threshold"},
		},
		{
			name:   "reset_already_elapsed",
			budget: rateBudget{remaining: 3, resetUnix: now.Unix() - 1},
			want:   rateDecision{allow: true, reason: "reset_elapsed"},
		},
		{
			name:   "secondary_limit_uses_backoff_floor",
			budget: rateBudget{secondaryLimited: true, retryAfter: 2 * time.Second},
			want:   rateDecision{allow: false, waitFor: 5 * time.Second, reason: "secondary_limit"},
		},
		{
			name:   "secondary_limit_honors_longer_retry_after",
			budget: rateBudget{secondaryLimited: true, retryAfter: 30 * time.Second},
			want:   rateDecision{allow: false, waitFor: 30 * time.Second, reason: "secondary_limit"},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := policy.evaluate(tc.budget); got != tc.want {
				t.Fatalf("evaluate() = %+v, want %+v", got, tc.want)
			}
		})
	}
}
