package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"sumbench/internal/errs"
)

func TestClassifyStop(t *testing.T) {
	tests := []struct {
		reason string
		want   errs.Kind
	}{
		{"end_turn", ""},
		{"stop", ""},
		{"STOP", ""},
		{"max_tokens", errs.KindMaxTokens},
		{"length", errs.KindMaxTokens},
		{"MAX_TOKENS", errs.KindMaxTokens},
		{"content_filter", errs.KindContentFilter},
		{"SAFETY", errs.KindContentFilter},
		{"refusal", errs.KindContentFilter},
	}

	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			err := classifyStop("test", "model-x", tt.reason)
			if tt.want == "" {
				if err != nil {
					t.Fatalf("expected nil for %q, got %v", tt.reason, err)
				}
				return
			}
			if errs.KindOf(err) != tt.want {
				t.Errorf("kind = %s, want %s", errs.KindOf(err), tt.want)
			}
			if errs.ModelOf(err) != "model-x" {
				t.Errorf("model = %s", errs.ModelOf(err))
			}
		})
	}
}

func TestClassifyStatusRateLimit(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "7")

	err := classifyStatus("test", "model-x", 429, h, []byte("slow down"))
	if errs.KindOf(err) != errs.KindRateLimit {
		t.Fatalf("kind = %s, want rate_limit", errs.KindOf(err))
	}
	if got := errs.RetryAfterOf(err); got != 7*time.Second {
		t.Errorf("retry after = %v, want 7s", got)
	}

	err = classifyStatus("test", "model-x", 500, http.Header{}, []byte("boom"))
	if errs.KindOf(err) != errs.KindUnknown {
		t.Errorf("kind = %s, want unknown", errs.KindOf(err))
	}
}

func TestClassifyTransport(t *testing.T) {
	if err := classifyTransport("test", "m", context.DeadlineExceeded); errs.KindOf(err) != errs.KindTimeout {
		t.Errorf("deadline: kind = %s, want timeout", errs.KindOf(err))
	}
	// url.Error wrapping, as http.Client returns.
	wrapped := fmt.Errorf("Post \"http://x\": %w", context.DeadlineExceeded)
	if err := classifyTransport("test", "m", wrapped); errs.KindOf(err) != errs.KindTimeout {
		t.Errorf("wrapped deadline: kind = %s, want timeout", errs.KindOf(err))
	}
	if err := classifyTransport("test", "m", context.Canceled); !errors.Is(err, context.Canceled) {
		t.Error("cancellation should pass through untagged")
	}
	if err := classifyTransport("test", "m", errors.New("conn refused")); errs.KindOf(err) != errs.KindUnknown {
		t.Errorf("other: kind = %s, want unknown", errs.KindOf(err))
	}
}

func TestRetryAfterFrom(t *testing.T) {
	h := http.Header{}
	if got := retryAfterFrom(h); got != 0 {
		t.Errorf("absent header: %v, want 0", got)
	}

	h.Set("Retry-After", "30")
	if got := retryAfterFrom(h); got != 30*time.Second {
		t.Errorf("seconds form: %v, want 30s", got)
	}

	h.Set("Retry-After", time.Now().Add(90*time.Second).UTC().Format(http.TimeFormat))
	got := retryAfterFrom(h)
	if got < 80*time.Second || got > 90*time.Second {
		t.Errorf("date form: %v, want about 90s", got)
	}

	h.Set("Retry-After", "garbage")
	if got := retryAfterFrom(h); got != 0 {
		t.Errorf("garbage: %v, want 0", got)
	}
}
