package credit

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pixelmint/credit-engine/internal/chain"
)

// Service performs the credit spend that authorizes a generation attempt.
type Service struct {
	resolver *Resolver
	chain    chain.Client
	rdb      *redis.Client
	log      *zap.Logger
}

func NewService(resolver *Resolver, chainClient chain.Client, rdb *redis.Client, log *zap.Logger) *Service {
	return &Service{resolver: resolver, chain: chainClient, rdb: rdb, log: log}
}

// Reserve debits creditsNeeded from a single source and records the
// reservation. Everything before the ledger debit is read-only; everything
// after it must end in settle or refund.
//
// The resolver snapshot only guides source selection — the debit itself is
// the authoritative check and fails if the source lost the balance between
// the read and the write.
func (s *Service) Reserve(ctx context.Context, user common.Address, creditsNeeded int64, preferNFT bool, tag string) (*Reservation, error) {
	if creditsNeeded <= 0 {
		return nil, fmt.Errorf("credit: invalid amount %d", creditsNeeded)
	}

	bals, err := s.resolver.Resolve(ctx, user)
	if err != nil {
		return nil, err
	}
	if bals.Total < creditsNeeded {
		return nil, &InsufficientCreditsError{Required: creditsNeeded, Available: bals.Total}
	}

	src, ok := chooseSource(bals, creditsNeeded, preferNFT)
	if !ok {
		// The aggregate covers it but no single source does. Reservations
		// are never split across sources.
		return nil, &InsufficientCreditsError{Required: creditsNeeded, Available: largestSource(bals)}
	}

	if _, err := s.chain.Debit(ctx, user, src, creditsNeeded, tag); err != nil {
		return nil, fmt.Errorf("credit: ledger debit: %w", err)
	}

	r := &Reservation{
		ID:        uuid.NewString(),
		User:      user.Hex(),
		Credits:   creditsNeeded,
		Source:    src,
		Status:    StatusReserved,
		Tag:       tag,
		CreatedAt: time.Now().Unix(),
	}
	if err := SaveReservation(ctx, s.rdb, r); err != nil {
		// The debit already landed; without a record nothing can settle or
		// refund it later. Credit straight back rather than strand the spend.
		if _, cerr := s.chain.Credit(ctx, user, src, creditsNeeded); cerr != nil {
			s.log.Error("debit landed but reservation persist and credit-back both failed, manual reconciliation required",
				zap.String("user", r.User),
				zap.Int64("credits", creditsNeeded),
				zap.Stringer("source", src),
				zap.NamedError("persist_err", err),
				zap.NamedError("credit_err", cerr),
			)
		}
		return nil, fmt.Errorf("credit: persist reservation: %w", err)
	}

	s.log.Info("credits reserved",
		zap.String("reservation", r.ID),
		zap.String("user", r.User),
		zap.Int64("credits", creditsNeeded),
		zap.Stringer("source", src),
	)
	return r, nil
}

// chooseSource picks the one source a reservation draws from. With preferNFT
// set, package balances are tried in descending id order and the first one
// that alone covers the amount wins; otherwise the fungible balance is used.
func chooseSource(b *Balances, needed int64, preferNFT bool) (chain.Source, bool) {
	if preferNFT {
		ids := make([]int, 0, len(b.Packages))
		for id := range b.Packages {
			ids = append(ids, int(id))
		}
		sort.Sort(sort.Reverse(sort.IntSlice(ids)))
		for _, id := range ids {
			if b.Packages[uint8(id)] >= needed {
				return chain.PackageSource(uint8(id)), true
			}
		}
	}
	if b.Fungible >= needed {
		return chain.Fungible(), true
	}
	return chain.Source{}, false
}

func largestSource(b *Balances) int64 {
	max := b.Fungible
	for _, bal := range b.Packages {
		if bal > max {
			max = bal
		}
	}
	return max
}
