package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrTimedOut means the async job did not reach a terminal state within its
// wait budget.
var ErrTimedOut = errors.New("provider: generation timed out")

// Poller waits for async provider jobs to reach a terminal state. A single
// instance is shared; each AwaitCompletion call runs its own ticker.
type Poller struct {
	client   Client
	interval time.Duration
	buffer   time.Duration
	log      *zap.Logger
}

// NewPoller builds a poller that checks every interval and allows each job
// the provider's own time estimate plus buffer.
func NewPoller(client Client, interval, buffer time.Duration, log *zap.Logger) *Poller {
	return &Poller{client: client, interval: interval, buffer: buffer, log: log}
}

// AwaitCompletion polls until the job is done or the wait budget is spent.
// The budget is bounded so a slow provider can never hold a reservation open
// indefinitely; exceeding it returns ErrTimedOut. Transient poll errors are
// logged and retried — the deadline still bounds the total wait.
func (p *Poller) AwaitCompletion(ctx context.Context, h *AsyncHandle) (string, error) {
	maxWait := time.Duration(h.EstimatedSeconds)*time.Second + p.buffer

	deadline := time.NewTimer(maxWait)
	defer deadline.Stop()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()

		case <-deadline.C:
			p.log.Warn("generation poll deadline exceeded",
				zap.String("job", h.JobID),
				zap.Duration("max_wait", maxWait),
			)
			return "", ErrTimedOut

		case <-ticker.C:
			st, err := p.client.PollStatus(ctx, h)
			if err != nil {
				p.log.Warn("poll status failed", zap.String("job", h.JobID), zap.Error(err))
				continue
			}
			if !st.Done {
				continue
			}
			if st.Err != "" {
				return "", fmt.Errorf("provider: job %s failed: %s", h.JobID, st.Err)
			}
			return st.ResultRef, nil
		}
	}
}
