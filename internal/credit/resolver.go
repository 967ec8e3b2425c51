package credit

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/pixelmint/credit-engine/internal/chain"
)

// Balances is a point-in-time snapshot of a user's spendable credits across
// all sources. It may be stale by the time it is used; only the ledger debit
// itself authorizes a spend.
type Balances struct {
	Fungible int64
	Packages map[uint8]int64
	Total    int64
	Warnings []string
}

// Resolver aggregates a user's balances from the chain, one read per source.
type Resolver struct {
	chain      chain.Client
	packageIDs []uint8
	log        *zap.Logger
}

func NewResolver(chainClient chain.Client, packageIDs []uint8, log *zap.Logger) *Resolver {
	return &Resolver{chain: chainClient, packageIDs: packageIDs, log: log}
}

// Resolve reads the fungible balance plus one balance per package id in
// parallel. A failed read counts as zero (fail-safe, never fail-open) and is
// noted in Warnings; ErrBalanceUnavailable is returned only when every read
// failed. No side effects.
func (r *Resolver) Resolve(ctx context.Context, user common.Address) (*Balances, error) {
	sources := make([]chain.Source, 0, len(r.packageIDs)+1)
	sources = append(sources, chain.Fungible())
	for _, id := range r.packageIDs {
		sources = append(sources, chain.PackageSource(id))
	}

	type read struct {
		bal int64
		err error
	}
	results := make([]read, len(sources))

	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src chain.Source) {
			defer wg.Done()
			bal, err := r.chain.ReadBalance(ctx, user, src)
			results[i] = read{bal: bal, err: err}
		}(i, src)
	}
	wg.Wait()

	out := &Balances{Packages: make(map[uint8]int64, len(r.packageIDs))}
	failures := 0
	for i, res := range results {
		src := sources[i]
		bal := res.bal
		if res.err != nil {
			failures++
			bal = 0
			out.Warnings = append(out.Warnings, fmt.Sprintf("%s: %v", src, res.err))
			r.log.Warn("balance read failed, counting as zero",
				zap.String("user", user.Hex()),
				zap.Stringer("source", src),
				zap.Error(res.err),
			)
		}
		switch src.Kind {
		case chain.KindFungible:
			out.Fungible = bal
		case chain.KindPackage:
			out.Packages[src.Package] = bal
		}
		out.Total += bal
	}

	if failures == len(results) {
		return nil, ErrBalanceUnavailable
	}
	return out, nil
}
