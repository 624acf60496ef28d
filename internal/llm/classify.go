package llm

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sumbench/internal/errs"
)

// classifyTransport tags errors from http.Client.Do. Deadline expiry is
// a model timeout; caller cancellation passes through untouched so the
// orchestrator can tell a pause from a failure.
func classifyTransport(op, model string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return errs.E(errs.KindTimeout, op, err).WithModel(model)
	default:
		return errs.E(errs.KindUnknown, op, err).WithModel(model)
	}
}

// classifyStatus tags non-200 HTTP responses. Only 429 is retryable.
func classifyStatus(op, model string, status int, header http.Header, body []byte) error {
	if status == http.StatusTooManyRequests {
		return errs.RateLimited(op, retryAfterFrom(header),
			errs.New(errs.KindRateLimit, "", "status 429: %s", truncate(body))).WithModel(model)
	}
	return errs.New(errs.KindUnknown, op, "status %d: %s", status, truncate(body)).WithModel(model)
}

// classifyStop tags terminal finish reasons. A nil return means the
// completion finished normally.
func classifyStop(op, model, stopReason string) error {
	switch stopReason {
	case "max_tokens", "length", "MAX_TOKENS":
		return errs.New(errs.KindMaxTokens, op, "completion truncated (%s)", stopReason).WithModel(model)
	case "content_filter", "SAFETY", "PROHIBITED_CONTENT", "BLOCKLIST", "refusal":
		return errs.New(errs.KindContentFilter, op, "completion blocked (%s)", stopReason).WithModel(model)
	}
	return nil
}

// retryAfterFrom parses a Retry-After header, either delta-seconds or
// an HTTP date. Zero when absent or unparsable.
func retryAfterFrom(header http.Header) time.Duration {
	v := header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// truncate keeps provider error bodies readable in logs.
func truncate(body []byte) string {
	const max = 500
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
