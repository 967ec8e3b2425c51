// Package compensate restores credits when a reservation's generation
// attempt does not complete successfully.
package compensate

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pixelmint/credit-engine/internal/chain"
	"github.com/pixelmint/credit-engine/internal/credit"
)

// RefundFailedDLQKey holds reservation ids whose ledger credit-back failed.
// Entries require manual reconciliation; the reservation stays reserved.
const RefundFailedDLQKey = "credit:refund:failed"

// RefundRecorder is satisfied by ledger.Ledger.
type RefundRecorder interface {
	RecordRefund(ctx context.Context, r *credit.Reservation) error
}

// Handler performs the inverse ledger write for failed generations.
type Handler struct {
	rdb    *redis.Client
	chain  chain.Client
	ledger RefundRecorder
	log    *zap.Logger
}

func NewHandler(rdb *redis.Client, chainClient chain.Client, ledger RefundRecorder, log *zap.Logger) *Handler {
	return &Handler{rdb: rdb, chain: chainClient, ledger: ledger, log: log}
}

// Refund credits back exactly the amount the reservation originally debited,
// on the same source. Idempotent by reservation id: the claim transition
// (reserved → refunding) ensures at most one caller performs the chain
// write; calls on settled or already-refunded reservations are no-ops.
//
// If the chain credit itself fails, the claim is released so the reservation
// stays reserved — credits are never marked refunded without the ledger
// reflecting it — and the failure is escalated to the reconciliation DLQ.
func (h *Handler) Refund(ctx context.Context, reservationID string) error {
	res, err := credit.GetReservation(ctx, h.rdb, reservationID)
	if err != nil {
		return fmt.Errorf("compensate: load reservation %s: %w", reservationID, err)
	}
	if res == nil {
		return fmt.Errorf("compensate: unknown reservation %s", reservationID)
	}

	switch res.Status {
	case credit.StatusSettled, credit.StatusRefunded:
		return nil
	}

	claimed, err := credit.TransitionStatus(ctx, h.rdb, reservationID, credit.StatusReserved, credit.StatusRefunding)
	if err != nil {
		return fmt.Errorf("compensate: claim %s: %w", reservationID, err)
	}
	if !claimed {
		// Another caller holds or already finished the refund.
		return nil
	}

	user := common.HexToAddress(res.User)
	if _, err := h.chain.Credit(ctx, user, res.Source, res.Credits); err != nil {
		if _, terr := credit.TransitionStatus(ctx, h.rdb, reservationID, credit.StatusRefunding, credit.StatusReserved); terr != nil {
			h.log.Error("release refund claim", zap.String("reservation", reservationID), zap.Error(terr))
		}
		if derr := h.rdb.RPush(ctx, RefundFailedDLQKey, reservationID).Err(); derr != nil {
			h.log.Error("push refund-failed DLQ", zap.String("reservation", reservationID), zap.Error(derr))
		}
		h.log.Error("REFUND FAILED: ledger credit-back rejected, manual reconciliation required",
			zap.String("reservation", reservationID),
			zap.String("user", res.User),
			zap.Int64("credits", res.Credits),
			zap.Stringer("source", res.Source),
			zap.Error(err),
		)
		return fmt.Errorf("compensate: refund %s: %w", reservationID, err)
	}

	if ok, err := credit.TransitionStatus(ctx, h.rdb, reservationID, credit.StatusRefunding, credit.StatusRefunded); err != nil || !ok {
		h.log.Error("mark refunded", zap.String("reservation", reservationID), zap.Bool("ok", ok), zap.Error(err))
	}
	res.Status = credit.StatusRefunded

	if err := h.ledger.RecordRefund(ctx, res); err != nil {
		h.log.Error("usage ledger refund entry", zap.String("reservation", reservationID), zap.Error(err))
	}

	h.log.Info("reservation refunded",
		zap.String("reservation", reservationID),
		zap.String("user", res.User),
		zap.Int64("credits", res.Credits),
		zap.Stringer("source", res.Source),
	)
	return nil
}
