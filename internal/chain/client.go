package chain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// TxReceipt is the confirmation of a mined ledger write.
type TxReceipt struct {
	TxHash  common.Hash
	GasUsed uint64
}

// Client is the read/write boundary to the on-chain credit ledger.
//
// Debit and Credit return only after the transaction is mined; a mined-but-
// reverted transaction is an error, so a nil error means the ledger reflects
// the write. The debit itself is the authoritative balance check: it is
// rejected on-chain if the source lacks the balance at write time, regardless
// of what an earlier ReadBalance snapshot said.
type Client interface {
	ReadBalance(ctx context.Context, user common.Address, src Source) (int64, error)
	Debit(ctx context.Context, user common.Address, src Source, amount int64, tag string) (*TxReceipt, error)
	Credit(ctx context.Context, user common.Address, src Source, amount int64) (*TxReceipt, error)
}
