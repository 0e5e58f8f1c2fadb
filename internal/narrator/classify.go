package narrator

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// failureClass buckets provider call failures for the retry policy.
type failureClass int

const (
	// classTransient failures are retried with backoff.
	classTransient failureClass = iota
	// classAuth failures surface immediately as AuthOrQuotaError.
	classAuth
	// classFatal failures surface immediately as-is (malformed request etc.).
	classFatal
)

// classify decides how a provider call failure is handled. Structured API
// errors are classified by status code; everything else falls back to
// substring matching on the error text, since the HTTP providers only
// surface formatted errors.
func classify(err error) failureClass {
	if errors.Is(err, context.DeadlineExceeded) {
		return classTransient
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusPaymentRequired:
			return classAuth
		case http.StatusTooManyRequests, http.StatusRequestTimeout:
			return classTransient
		}
		if apiErr.HTTPStatusCode >= 500 {
			return classTransient
		}
		if code, ok := apiErr.Code.(string); ok && strings.Contains(code, "insufficient_quota") {
			return classAuth
		}
		return classFatal
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return classTransient
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "401", "403", "unauthorized", "authentication", "invalid api key", "invalid x-api-key", "insufficient_quota", "billing"):
		return classAuth
	case containsAny(msg, "rate_limit", "rate limit", "429", "too many requests", "overloaded", "timeout", "timed out", "connection refused", "connection reset", "status 500", "status 502", "status 503", "status 529"):
		return classTransient
	default:
		return classFatal
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
