// Package ledger is the append-only usage record: every settled generation
// and every refund leaves exactly one entry. Entries are never updated or
// deleted.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pixelmint/credit-engine/internal/credit"
	"github.com/pixelmint/credit-engine/internal/generation"
)

// Entry kinds.
const (
	KindSettled = "settled"
	KindRefund  = "refund"
)

// Redis key templates.
const (
	entriesKeyFmt  = "usage:ledger:%s"   // %s = user hex address
	consumedKeyFmt = "usage:consumed:%s" // running total of settled credits
	refundsKeyFmt  = "usage:refunds:%s"  // running count of refunds
)

// Entry is one audit record joining a reservation and its outcome.
type Entry struct {
	Kind          string `json:"kind"`
	ReservationID string `json:"reservation_id"`
	JobID         string `json:"job_id,omitempty"`
	User          string `json:"user"`
	Credits       int64  `json:"credits"`
	Source        string `json:"source"`
	ModelUsed     string `json:"model_used,omitempty"`
	ResultRef     string `json:"result_ref,omitempty"`
	RecordedAt    int64  `json:"recorded_at"`
}

type Ledger struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Ledger {
	return &Ledger{rdb: rdb}
}

// RecordSettled appends the settled entry for a completed job and bumps the
// user's consumed-credits counter.
func (l *Ledger) RecordSettled(ctx context.Context, r *credit.Reservation, j *generation.Job) error {
	e := Entry{
		Kind:          KindSettled,
		ReservationID: r.ID,
		JobID:         j.ID,
		User:          r.User,
		Credits:       r.Credits,
		Source:        r.Source.String(),
		ModelUsed:     j.ModelUsed,
		ResultRef:     j.ResultRef,
		RecordedAt:    time.Now().Unix(),
	}
	if err := l.append(ctx, e); err != nil {
		return err
	}
	return l.rdb.IncrBy(ctx, fmt.Sprintf(consumedKeyFmt, r.User), r.Credits).Err()
}

// RecordRefund appends the refund entry for a compensated reservation.
func (l *Ledger) RecordRefund(ctx context.Context, r *credit.Reservation) error {
	e := Entry{
		Kind:          KindRefund,
		ReservationID: r.ID,
		User:          r.User,
		Credits:       r.Credits,
		Source:        r.Source.String(),
		RecordedAt:    time.Now().Unix(),
	}
	if err := l.append(ctx, e); err != nil {
		return err
	}
	return l.rdb.Incr(ctx, fmt.Sprintf(refundsKeyFmt, r.User)).Err()
}

func (l *Ledger) append(ctx context.Context, e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("ledger: marshal entry: %w", err)
	}
	return l.rdb.RPush(ctx, fmt.Sprintf(entriesKeyFmt, e.User), string(raw)).Err()
}

// Entries returns the user's most recent entries, oldest first, capped at
// limit.
func (l *Ledger) Entries(ctx context.Context, user string, limit int64) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	raws, err := l.rdb.LRange(ctx, fmt.Sprintf(entriesKeyFmt, user), -limit, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("ledger: range entries: %w", err)
	}
	out := make([]Entry, 0, len(raws))
	for _, raw := range raws {
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("ledger: unmarshal entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

// ConsumedCredits answers "how many credits has this user consumed" from the
// running counter.
func (l *Ledger) ConsumedCredits(ctx context.Context, user string) (int64, error) {
	n, err := l.rdb.Get(ctx, fmt.Sprintf(consumedKeyFmt, user)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ledger: consumed credits: %w", err)
	}
	return n, nil
}

// RefundCount returns how many refunds the user has received.
func (l *Ledger) RefundCount(ctx context.Context, user string) (int64, error) {
	n, err := l.rdb.Get(ctx, fmt.Sprintf(refundsKeyFmt, user)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ledger: refund count: %w", err)
	}
	return n, nil
}
