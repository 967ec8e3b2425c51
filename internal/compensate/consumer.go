package compensate

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pixelmint/credit-engine/internal/credit"
	"github.com/pixelmint/credit-engine/internal/payment"
)

// RunConsumer drains the payment compensation queue: BLPOP → refund. A
// payment.failed webhook for a still-reserved reservation refunds it even
// though the synchronous payment call had returned success. Redelivery is
// safe because Refund is idempotent.
func RunConsumer(ctx context.Context, rdb *redis.Client, h *Handler, log *zap.Logger) {
	log.Info("compensation consumer started", zap.String("queue", payment.CompensationQueueKey))

	for {
		if ctx.Err() != nil {
			log.Info("compensation consumer stopped")
			return
		}

		results, err := rdb.BLPop(ctx, 5*time.Second, payment.CompensationQueueKey).Result()
		if err != nil {
			if err == redis.Nil {
				// Timeout: no items, loop back
				continue
			}
			if ctx.Err() != nil {
				return
			}
			log.Error("compensation consumer: BLPOP", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		// results[0] = key, results[1] = value
		raw := results[1]

		var ev payment.Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			rdb.RPush(ctx, payment.CompensationDLQKey, raw) //nolint:errcheck
			log.Error("compensation consumer: bad event", zap.String("raw", raw), zap.Error(err))
			continue
		}
		if ev.Type != payment.EventPaymentFailed {
			continue
		}
		if ev.Metadata.ReservationID == "" {
			rdb.RPush(ctx, payment.CompensationDLQKey, raw) //nolint:errcheck
			log.Error("compensation consumer: event missing reservation id",
				zap.String("payment", ev.PaymentRef),
			)
			continue
		}

		if err := h.Refund(ctx, ev.Metadata.ReservationID); err != nil {
			// The handler has already escalated RefundFailed to its DLQ; the
			// event is not re-queued to avoid a hot retry loop.
			log.Error("compensation consumer: refund",
				zap.String("reservation", ev.Metadata.ReservationID),
				zap.String("payment", ev.PaymentRef),
				zap.Error(err),
			)
			continue
		}
		log.Info("webhook-triggered refund processed",
			zap.String("reservation", ev.Metadata.ReservationID),
			zap.String("payment", ev.PaymentRef),
		)
	}
}

// RecoverStuckRefunds resets reservations left in the transient refunding
// state by a crash and replays their refunds. Run once on startup, before
// the consumer begins.
func RecoverStuckRefunds(ctx context.Context, rdb *redis.Client, h *Handler, log *zap.Logger) {
	stuck, err := credit.ScanReservations(ctx, rdb, credit.StatusRefunding)
	if err != nil {
		log.Error("recover stuck refunds: scan", zap.Error(err))
		return
	}
	for _, r := range stuck {
		if ok, err := credit.TransitionStatus(ctx, rdb, r.ID, credit.StatusRefunding, credit.StatusReserved); err != nil || !ok {
			log.Error("recover stuck refunds: release claim", zap.String("reservation", r.ID), zap.Error(err))
			continue
		}
		if err := h.Refund(ctx, r.ID); err != nil {
			log.Error("recover stuck refunds: refund", zap.String("reservation", r.ID), zap.Error(err))
			continue
		}
		log.Info("recovered stuck refund", zap.String("reservation", r.ID))
	}
}
