// Package errs defines the tagged error values used across the pipeline.
// Classification (retryable, per-item, fatal) is a property of the Kind,
// never of provider message text; transports classify once at the edge
// and everything above switches on KindOf.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// Kind tags an error with its handling category.
type Kind string

const (
	KindConfig                  Kind = "config"
	KindExtraction              Kind = "extraction"
	KindRateLimit               Kind = "rate_limit"
	KindMaxTokens               Kind = "max_tokens"
	KindContentFilter           Kind = "content_filter"
	KindTimeout                 Kind = "timeout"
	KindInvalidResponse         Kind = "invalid_response"
	KindSelfJudging             Kind = "self_judging"
	KindInsufficientDistractors Kind = "insufficient_distractors"
	KindInsufficientJudges      Kind = "insufficient_judges"
	KindStorage                 Kind = "storage"
	KindCorruptedData           Kind = "corrupted_data"
	KindInvalidTransition       Kind = "invalid_transition"
	KindUnknown                 Kind = "unknown"
)

// Error is a tagged error. Op names the failing operation, Model the
// model involved (when one is), RetryAfter the provider-suggested wait
// for rate limits, and RowID the offending row for corrupted data.
type Error struct {
	Kind       Kind
	Op         string
	Model      string
	RetryAfter time.Duration
	RowID      string
	Err        error
	msg        string
}

func (e *Error) Error() string {
	prefix := string(e.Kind)
	if e.Op != "" {
		prefix = e.Op + ": " + prefix
	}
	switch {
	case e.msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", prefix, e.msg, e.Err)
	case e.msg != "":
		return fmt.Sprintf("%s: %s", prefix, e.msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", prefix, e.Err)
	default:
		return prefix
	}
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a tagged error wrapping err.
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// New builds a tagged error with a formatted message and no cause.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, msg: fmt.Sprintf(format, args...)}
}

// WithModel attaches the model id involved in the failure.
func (e *Error) WithModel(model string) *Error {
	e.Model = model
	return e
}

// RateLimited builds a rate-limit error carrying the provider's
// suggested wait (zero when the provider gave none).
func RateLimited(op string, retryAfter time.Duration, err error) *Error {
	return &Error{Kind: KindRateLimit, Op: op, RetryAfter: retryAfter, Err: err}
}

// CorruptedRow builds the storage error for an undecodable row.
func CorruptedRow(op, rowID string, err error) *Error {
	return &Error{Kind: KindCorruptedData, Op: op, RowID: rowID, Err: err}
}

// KindOf walks the wrap chain and returns the first tag found, or
// KindUnknown for untagged errors. nil maps to the empty Kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is lets errors.Is match on kind: errors.Is(err, &Error{Kind: k}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// RetryAfterOf returns the suggested wait attached to a rate-limit
// error, or zero.
func RetryAfterOf(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// ModelOf returns the model id attached to the error, or "".
func ModelOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Model
	}
	return ""
}

// MaxAttempts returns how many total attempts a call with this failure
// kind deserves: rate limits back off and retry up to 5 times, content
// filters get one short retry pair, everything else is single-shot.
func MaxAttempts(kind Kind) int {
	switch kind {
	case KindRateLimit:
		return 5
	case KindContentFilter:
		return 2
	default:
		return 1
	}
}

// PhaseFatal reports whether the kind aborts the surrounding phase
// rather than being recorded as a per-item failure.
func PhaseFatal(kind Kind) bool {
	switch kind {
	case KindConfig, KindStorage, KindCorruptedData, KindInvalidTransition:
		return true
	}
	return false
}
