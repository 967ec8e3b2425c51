package provider

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

// scriptedClient returns one Status per PollStatus call, in order; the last
// entry repeats.
type scriptedClient struct {
	statuses []Status
	errs     []error
	calls    int
}

func (s *scriptedClient) Submit(context.Context, string, string) (*SyncResult, *AsyncHandle, error) {
	panic("not used")
}

func (s *scriptedClient) PollStatus(context.Context, *AsyncHandle) (*Status, error) {
	i := s.calls
	if i >= len(s.statuses) {
		i = len(s.statuses) - 1
	}
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	st := s.statuses[i]
	return &st, nil
}

func newTestPoller(c Client) *Poller {
	return NewPoller(c, 5*time.Millisecond, 200*time.Millisecond, zap.NewNop())
}

func TestAwaitCompletion_CompletesAfterPolls(t *testing.T) {
	c := &scriptedClient{statuses: []Status{
		{},
		{},
		{Done: true, ResultRef: "ref-1"},
	}}

	ref, err := newTestPoller(c).AwaitCompletion(context.Background(), &AsyncHandle{JobID: "j1"})
	if err != nil {
		t.Fatalf("AwaitCompletion: %v", err)
	}
	if ref != "ref-1" {
		t.Errorf("ref: got %q want ref-1", ref)
	}
	if c.calls < 3 {
		t.Errorf("expected at least 3 polls, got %d", c.calls)
	}
}

func TestAwaitCompletion_JobFailed(t *testing.T) {
	c := &scriptedClient{statuses: []Status{{Done: true, Err: "render crashed"}}}

	_, err := newTestPoller(c).AwaitCompletion(context.Background(), &AsyncHandle{JobID: "j2"})
	if err == nil || !strings.Contains(err.Error(), "render crashed") {
		t.Fatalf("expected job failure error, got %v", err)
	}
	if errors.Is(err, ErrTimedOut) {
		t.Fatal("job failure must not be reported as a timeout")
	}
}

func TestAwaitCompletion_TimesOut(t *testing.T) {
	c := &scriptedClient{statuses: []Status{{}}} // never done

	_, err := newTestPoller(c).AwaitCompletion(context.Background(), &AsyncHandle{JobID: "j3"})
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("expected ErrTimedOut, got %v", err)
	}
}

func TestAwaitCompletion_TransientPollErrorsRetried(t *testing.T) {
	c := &scriptedClient{
		statuses: []Status{{}, {}, {Done: true, ResultRef: "ref-2"}},
		errs:     []error{errors.New("connection reset"), nil, nil},
	}

	ref, err := newTestPoller(c).AwaitCompletion(context.Background(), &AsyncHandle{JobID: "j4"})
	if err != nil {
		t.Fatalf("AwaitCompletion: %v", err)
	}
	if ref != "ref-2" {
		t.Errorf("ref: got %q", ref)
	}
}

func TestAwaitCompletion_ContextCancelled(t *testing.T) {
	c := &scriptedClient{statuses: []Status{{}}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestPoller(c).AwaitCompletion(ctx, &AsyncHandle{JobID: "j5"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestAwaitCompletion_BudgetUsesEstimate(t *testing.T) {
	// With a zero buffer the budget is exactly the provider estimate.
	c := &scriptedClient{statuses: []Status{{}}}
	p := NewPoller(c, 5*time.Millisecond, 0, zap.NewNop())

	start := time.Now()
	_, err := p.AwaitCompletion(context.Background(), &AsyncHandle{JobID: "j6", EstimatedSeconds: 0})
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("expected ErrTimedOut, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("zero budget should time out promptly")
	}
}
