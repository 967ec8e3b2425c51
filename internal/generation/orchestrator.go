package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pixelmint/credit-engine/internal/chain"
	"github.com/pixelmint/credit-engine/internal/credit"
	"github.com/pixelmint/credit-engine/internal/payment"
	"github.com/pixelmint/credit-engine/internal/provider"
	"github.com/pixelmint/credit-engine/internal/tier"
)

// Refunder is satisfied by compensate.Handler.
// Decoupled here so orchestrator tests can use a mock.
type Refunder interface {
	Refund(ctx context.Context, reservationID string) error
}

// SettleRecorder is satisfied by ledger.Ledger.
type SettleRecorder interface {
	RecordSettled(ctx context.Context, r *credit.Reservation, j *Job) error
}

// Request is one generation request, already paid for by its reservation.
type Request struct {
	User        common.Address
	ContentType tier.ContentType
	Prompt      string
}

// Orchestrator drives one settlement + generation attempt end to end. It is
// only ever invoked with a successful reservation in hand and guarantees the
// pairing: every call ends with either a completed job (reservation settled)
// or a refund attempt (reservation refunded, or left reserved with an alert
// if the refund itself failed).
type Orchestrator struct {
	rdb      *redis.Client
	provider provider.Client
	poller   *provider.Poller
	gateway  payment.Gateway
	refunder Refunder
	ledger   SettleRecorder
	log      *zap.Logger
}

func NewOrchestrator(
	rdb *redis.Client,
	providerClient provider.Client,
	poller *provider.Poller,
	gateway payment.Gateway,
	refunder Refunder,
	ledger SettleRecorder,
	log *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		rdb:      rdb,
		provider: providerClient,
		poller:   poller,
		gateway:  gateway,
		refunder: refunder,
		ledger:   ledger,
		log:      log,
	}
}

// Generate runs the fallback model list for the request until one model
// produces content or the list is exhausted. The returned job is terminal.
// A non-nil error means the reservation could not be resolved: the refund
// failed and the reservation was left reserved for manual reconciliation.
func (o *Orchestrator) Generate(ctx context.Context, res *credit.Reservation, req Request) (*Job, error) {
	now := time.Now().Unix()
	job := &Job{
		ID:            uuid.NewString(),
		ReservationID: res.ID,
		Status:        JobPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := SaveJob(ctx, o.rdb, job); err != nil {
		// Nothing attempted yet, but the spend already happened; resolve it.
		job.Status = JobFailed
		return job, o.refundAfterFailure(ctx, job, res, fmt.Errorf("persist job: %w", err))
	}

	models := tier.SelectModels(req.ContentType, accessFor(res.Source))
	if len(models) == 0 {
		o.log.Error("no models for request",
			zap.String("content_type", string(req.ContentType)),
			zap.Stringer("source", res.Source),
		)
		return o.fail(ctx, job, res, JobFailed)
	}

	for _, m := range models {
		paid := false

		if m.VendorCostCents > 0 {
			ref, err := o.gateway.PayVendor(ctx, m.VendorCostCents, payment.Metadata{
				ReservationID: res.ID,
				UserAddress:   res.User,
				ModelID:       m.ID,
			})
			if err != nil {
				o.log.Warn("vendor payment failed",
					zap.String("reservation", res.ID),
					zap.String("model", m.ID),
					zap.Bool("mandatory", m.Mandatory),
					zap.Error(err),
				)
				if m.Mandatory {
					// The tier's default model could not be paid for; there
					// is no cheaper acceptable substitute.
					return o.fail(ctx, job, res, JobFailed)
				}
				continue
			}
			job.PaymentRef = string(ref)
			paid = true
		}

		job.ModelUsed = m.ID
		job.Status = JobRunning
		job.UpdatedAt = time.Now().Unix()
		if err := SaveJob(ctx, o.rdb, job); err != nil {
			o.log.Error("persist running job", zap.String("job", job.ID), zap.Error(err))
		}

		sync, async, err := o.provider.Submit(ctx, req.Prompt, m.ID)
		if err != nil {
			o.log.Warn("provider submit failed",
				zap.String("reservation", res.ID),
				zap.String("model", m.ID),
				zap.Error(err),
			)
			continue
		}

		if sync != nil {
			return o.complete(ctx, job, res, sync.ResultRef)
		}

		resultRef, err := o.poller.AwaitCompletion(ctx, async)
		if err != nil {
			timedOut := errors.Is(err, provider.ErrTimedOut)
			o.log.Warn("async generation did not complete",
				zap.String("reservation", res.ID),
				zap.String("model", m.ID),
				zap.Bool("timed_out", timedOut),
				zap.Bool("vendor_paid", paid),
				zap.Error(err),
			)
			if paid {
				// The vendor payment for this attempt is irreversible;
				// trying another model would pay twice for one request.
				status := JobFailed
				if timedOut {
					status = JobTimedOut
				}
				return o.fail(ctx, job, res, status)
			}
			continue
		}

		return o.complete(ctx, job, res, resultRef)
	}

	return o.fail(ctx, job, res, JobFailed)
}

// complete marks the job done, settles the reservation, and writes the usage
// entry. The settle transition is the single-use gate: if it is lost, a
// webhook-triggered refund already resolved the reservation and the
// discrepancy is logged for reconciliation instead of double-recording.
func (o *Orchestrator) complete(ctx context.Context, job *Job, res *credit.Reservation, resultRef string) (*Job, error) {
	job.Status = JobCompleted
	job.ResultRef = resultRef
	job.UpdatedAt = time.Now().Unix()
	if err := SaveJob(ctx, o.rdb, job); err != nil {
		o.log.Error("persist completed job", zap.String("job", job.ID), zap.Error(err))
	}

	settled, err := credit.TransitionStatus(ctx, o.rdb, res.ID, credit.StatusReserved, credit.StatusSettled)
	if err != nil {
		o.log.Error("settle transition", zap.String("reservation", res.ID), zap.Error(err))
		return job, nil
	}
	if !settled {
		o.log.Error("reservation no longer reserved at settle time, content produced but credits were already restored",
			zap.String("reservation", res.ID),
			zap.String("job", job.ID),
		)
		return job, nil
	}

	res.Status = credit.StatusSettled
	if err := o.ledger.RecordSettled(ctx, res, job); err != nil {
		o.log.Error("usage ledger settle entry", zap.String("reservation", res.ID), zap.Error(err))
	}

	o.log.Info("generation completed",
		zap.String("reservation", res.ID),
		zap.String("job", job.ID),
		zap.String("model", job.ModelUsed),
	)
	return job, nil
}

// fail marks the job terminal and refunds the reservation.
func (o *Orchestrator) fail(ctx context.Context, job *Job, res *credit.Reservation, status string) (*Job, error) {
	job.Status = status
	job.UpdatedAt = time.Now().Unix()
	if err := SaveJob(ctx, o.rdb, job); err != nil {
		o.log.Error("persist failed job", zap.String("job", job.ID), zap.Error(err))
	}
	return job, o.refundAfterFailure(ctx, job, res, nil)
}

func (o *Orchestrator) refundAfterFailure(ctx context.Context, job *Job, res *credit.Reservation, cause error) error {
	if err := o.refunder.Refund(ctx, res.ID); err != nil {
		// The handler has already escalated; surface it so the caller knows
		// credits were NOT restored.
		o.log.Error("refund after failed generation",
			zap.String("reservation", res.ID),
			zap.String("job", job.ID),
			zap.Error(err),
		)
		if cause != nil {
			return fmt.Errorf("generation: %v (and refund failed: %w)", cause, err)
		}
		return fmt.Errorf("generation: refund failed: %w", err)
	}
	if cause != nil {
		o.log.Error("generation aborted, credits refunded",
			zap.String("reservation", res.ID),
			zap.Error(cause),
		)
	}
	return nil
}

// accessFor maps a reservation's source to the model tier it unlocks.
// Package spends inherit the package's tier; fungible spends get standard
// access.
func accessFor(src chain.Source) tier.Tier {
	if src.Kind == chain.KindPackage {
		return tier.AccessFor(src.Package)
	}
	return tier.Standard
}
