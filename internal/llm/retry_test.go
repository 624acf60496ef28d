package llm

import (
	"context"
	"testing"
	"time"

	"sumbench/internal/errs"
)

// scriptedClient returns its queued errors in order, then succeeds.
type scriptedClient struct {
	queue []error
	calls int
}

func (s *scriptedClient) Complete(ctx context.Context, req *Request) (*Completion, error) {
	i := s.calls
	s.calls++
	if i < len(s.queue) {
		return nil, s.queue[i]
	}
	return &Completion{Content: "ok", Model: s.Model()}, nil
}

func (s *scriptedClient) Model() string    { return "scripted" }
func (s *scriptedClient) Provider() string { return "test" }
func (s *scriptedClient) Local() bool      { return true }

func TestRetryContentFilterGetsSecondAttempt(t *testing.T) {
	c := &scriptedClient{queue: []error{
		errs.New(errs.KindContentFilter, "test", "blocked"),
	}}

	comp, err := CompleteWithRetry(context.Background(), c, UserRequest("", "hi"))
	if err != nil {
		t.Fatalf("CompleteWithRetry failed: %v", err)
	}
	if comp.Content != "ok" {
		t.Errorf("content = %q", comp.Content)
	}
	if c.calls != 2 {
		t.Errorf("calls = %d, want 2", c.calls)
	}
}

func TestRetryContentFilterStopsAfterTwo(t *testing.T) {
	c := &scriptedClient{queue: []error{
		errs.New(errs.KindContentFilter, "test", "blocked"),
		errs.New(errs.KindContentFilter, "test", "blocked again"),
	}}

	_, err := CompleteWithRetry(context.Background(), c, UserRequest("", "hi"))
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if errs.KindOf(err) != errs.KindContentFilter {
		t.Errorf("kind = %s", errs.KindOf(err))
	}
	if c.calls != 2 {
		t.Errorf("calls = %d, want 2", c.calls)
	}
}

func TestRetryUnknownAndMaxTokensAreSingleShot(t *testing.T) {
	for _, kind := range []errs.Kind{errs.KindUnknown, errs.KindMaxTokens, errs.KindTimeout} {
		c := &scriptedClient{queue: []error{errs.New(kind, "test", "nope")}}
		if _, err := CompleteWithRetry(context.Background(), c, UserRequest("", "hi")); err == nil {
			t.Errorf("%s: expected error", kind)
		}
		if c.calls != 1 {
			t.Errorf("%s: calls = %d, want 1", kind, c.calls)
		}
	}
}

func TestRetryHonorsCancellation(t *testing.T) {
	c := &scriptedClient{queue: []error{
		errs.RateLimited("test", 5*time.Second, nil),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := CompleteWithRetry(ctx, c, UserRequest("", "hi"))
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("cancellation did not interrupt the backoff wait")
	}
}

func TestBackoffFloorsAtRetryAfter(t *testing.T) {
	d := backoff(1, 10*time.Second)
	if d < 10*time.Second {
		t.Errorf("backoff %v below provider suggestion", d)
	}
	if d > 13*time.Second {
		t.Errorf("backoff %v exceeds suggestion plus jitter", d)
	}

	d = backoff(1, 0)
	if d < time.Second || d > 1250*time.Millisecond {
		t.Errorf("first backoff %v outside [1s, 1.25s]", d)
	}
}
