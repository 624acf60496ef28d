package errs

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestKindOf(t *testing.T) {
	base := New(KindRateLimit, "llm.complete", "too many requests")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"tagged", base, KindRateLimit},
		{"wrapped once", fmt.Errorf("judge gpt-5-mini: %w", base), KindRateLimit},
		{"wrapped twice", fmt.Errorf("phase: %w", fmt.Errorf("item: %w", base)), KindRateLimit},
		{"untagged", errors.New("boom"), KindUnknown},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("%s: KindOf = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestErrorString(t *testing.T) {
	cause := errors.New("connection reset")

	tests := []struct {
		err  *Error
		want string
	}{
		{New(KindTimeout, "llm.complete", "no response in %s", "2m"), "llm.complete: timeout: no response in 2m"},
		{E(KindStorage, "store.InsertSummary", cause), "store.InsertSummary: storage: connection reset"},
		{&Error{Kind: KindUnknown}, "unknown"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestUnwrapAndIs(t *testing.T) {
	cause := errors.New("429")
	err := RateLimited("llm.complete", 3*time.Second, cause)

	if !errors.Is(err, cause) {
		t.Error("wrapped cause not reachable via errors.Is")
	}
	if !errors.Is(err, &Error{Kind: KindRateLimit}) {
		t.Error("kind matching via errors.Is failed")
	}
	if errors.Is(err, &Error{Kind: KindTimeout}) {
		t.Error("kind matching matched the wrong kind")
	}
}

func TestRetryAfterOf(t *testing.T) {
	err := RateLimited("llm.complete", 7*time.Second, errors.New("429"))
	if got := RetryAfterOf(err); got != 7*time.Second {
		t.Errorf("RetryAfterOf = %v, want 7s", got)
	}
	if got := RetryAfterOf(errors.New("plain")); got != 0 {
		t.Errorf("RetryAfterOf(plain) = %v, want 0", got)
	}
}

func TestModelOf(t *testing.T) {
	err := New(KindContentFilter, "llm.complete", "blocked").WithModel("gemini-2.5-flash")
	if got := ModelOf(err); got != "gemini-2.5-flash" {
		t.Errorf("ModelOf = %q, want gemini-2.5-flash", got)
	}
	if got := ModelOf(fmt.Errorf("outer: %w", err)); got != "gemini-2.5-flash" {
		t.Errorf("ModelOf(wrapped) = %q, want gemini-2.5-flash", got)
	}
}

func TestCorruptedRow(t *testing.T) {
	err := CorruptedRow("store.GetSummary", "sum-42", errors.New("bad json"))
	if KindOf(err) != KindCorruptedData {
		t.Errorf("kind = %v, want %v", KindOf(err), KindCorruptedData)
	}
	if err.RowID != "sum-42" {
		t.Errorf("RowID = %q, want sum-42", err.RowID)
	}
}

func TestMaxAttempts(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindRateLimit, 5},
		{KindContentFilter, 2},
		{KindTimeout, 1},
		{KindMaxTokens, 1},
		{KindInvalidResponse, 1},
		{KindUnknown, 1},
	}
	for _, tt := range tests {
		if got := MaxAttempts(tt.kind); got != tt.want {
			t.Errorf("MaxAttempts(%s) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestPhaseFatal(t *testing.T) {
	fatal := []Kind{KindConfig, KindStorage, KindCorruptedData, KindInvalidTransition}
	for _, k := range fatal {
		if !PhaseFatal(k) {
			t.Errorf("PhaseFatal(%s) = false, want true", k)
		}
	}
	perItem := []Kind{KindRateLimit, KindTimeout, KindContentFilter, KindInvalidResponse, KindExtraction, KindUnknown}
	for _, k := range perItem {
		if PhaseFatal(k) {
			t.Errorf("PhaseFatal(%s) = true, want false", k)
		}
	}
}
