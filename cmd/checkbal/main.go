package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pixelmint/credit-engine/internal/chain"
	"github.com/pixelmint/credit-engine/internal/config"
	"github.com/pixelmint/credit-engine/internal/tier"
)

// Operator tool: prints every credit balance the engine would see for an
// address, one line per source.
func main() {
	if len(os.Args) != 2 || !common.IsHexAddress(os.Args[1]) {
		fmt.Fprintln(os.Stderr, "usage: checkbal <hex-address>")
		os.Exit(1)
	}
	user := common.HexToAddress(os.Args[1])

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	c, err := chain.NewLedgerClient(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "chain:", err)
		os.Exit(1)
	}

	ctx := context.Background()
	total := int64(0)

	bal, err := c.ReadBalance(ctx, user, chain.Fungible())
	if err != nil {
		fmt.Printf("fungible:   read failed: %v\n", err)
	} else {
		fmt.Printf("fungible:   %d credits\n", bal)
		total += bal
	}

	for _, id := range tier.PackageIDs() {
		bal, err := c.ReadBalance(ctx, user, chain.PackageSource(id))
		if err != nil {
			fmt.Printf("package:%d:  read failed: %v\n", id, err)
			continue
		}
		fmt.Printf("package:%d:  %d credits (%s)\n", id, bal, tier.AccessFor(id))
		total += bal
	}
	fmt.Printf("total:      %d credits\n", total)
}
