package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/pixelmint/credit-engine/internal/config"
)

// creditLedgerABI covers the subset of the CreditLedger contract the engine
// touches. Purchase, mint, and transfer stay on the contract side.
// Source encoding: 0 = fungible balance, 1..255 = package ids.
const creditLedgerABI = `[
  {"type":"function","name":"creditBalance","stateMutability":"view","inputs":[{"name":"user","type":"address"},{"name":"source","type":"uint8"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"debitCredits","stateMutability":"nonpayable","inputs":[{"name":"user","type":"address"},{"name":"source","type":"uint8"},{"name":"amount","type":"uint256"},{"name":"tag","type":"string"}],"outputs":[]},
  {"type":"function","name":"refundCredits","stateMutability":"nonpayable","inputs":[{"name":"user","type":"address"},{"name":"source","type":"uint8"},{"name":"amount","type":"uint256"}],"outputs":[]}
]`

// LedgerClient wraps go-ethereum and the CreditLedger contract.
type LedgerClient struct {
	eth          *ethclient.Client
	contract     *bind.BoundContract
	contractAddr common.Address
	chainID      *big.Int
	operatorKey  *ecdsa.PrivateKey
}

func NewLedgerClient(cfg *config.Config) (*LedgerClient, error) {
	eth, err := ethclient.Dial(cfg.Chain.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	privKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.Chain.OperatorKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse operator key: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(creditLedgerABI))
	if err != nil {
		return nil, fmt.Errorf("parse ledger abi: %w", err)
	}

	addr := common.HexToAddress(cfg.Chain.ContractAddress)
	contract := bind.NewBoundContract(addr, parsed, eth, eth, eth)

	return &LedgerClient{
		eth:          eth,
		contract:     contract,
		contractAddr: addr,
		chainID:      big.NewInt(cfg.Chain.ChainID),
		operatorKey:  privKey,
	}, nil
}

// ContractAddress returns the credit ledger contract address.
func (c *LedgerClient) ContractAddress() common.Address { return c.contractAddr }

// ChainID returns the configured chain ID.
func (c *LedgerClient) ChainID() *big.Int { return c.chainID }

// transactOpts builds a *bind.TransactOpts signed by the operator key.
func (c *LedgerClient) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(c.operatorKey, c.chainID)
	if err != nil {
		return nil, err
	}
	auth.Context = ctx
	return auth, nil
}

// ReadBalance returns the user's balance on one source. Balances on the
// contract are plain credit counts, so int64 range is not a concern in
// practice; a value outside it is reported as an error rather than truncated.
func (c *LedgerClient) ReadBalance(ctx context.Context, user common.Address, src Source) (int64, error) {
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx}
	if err := c.contract.Call(opts, &out, "creditBalance", user, src.ContractID()); err != nil {
		return 0, fmt.Errorf("creditBalance %s: %w", src, err)
	}
	bal, ok := out[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("creditBalance %s: unexpected return type %T", src, out[0])
	}
	if !bal.IsInt64() {
		return 0, fmt.Errorf("creditBalance %s: value out of range: %s", src, bal)
	}
	return bal.Int64(), nil
}

// Debit removes amount credits from the chosen source, tagged for audit.
func (c *LedgerClient) Debit(ctx context.Context, user common.Address, src Source, amount int64, tag string) (*TxReceipt, error) {
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return nil, fmt.Errorf("build tx opts: %w", err)
	}
	tx, err := c.contract.Transact(opts, "debitCredits", user, src.ContractID(), big.NewInt(amount), tag)
	if err != nil {
		return nil, fmt.Errorf("debitCredits tx: %w", err)
	}
	receipt, err := bind.WaitMined(ctx, c.eth, tx)
	if err != nil {
		return nil, fmt.Errorf("wait mined: %w", err)
	}
	if receipt.Status == 0 {
		return nil, fmt.Errorf("debitCredits reverted: %s", tx.Hash().Hex())
	}
	return &TxReceipt{TxHash: tx.Hash(), GasUsed: receipt.GasUsed}, nil
}

// Credit restores amount credits to the chosen source (the inverse of Debit).
func (c *LedgerClient) Credit(ctx context.Context, user common.Address, src Source, amount int64) (*TxReceipt, error) {
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return nil, fmt.Errorf("build tx opts: %w", err)
	}
	tx, err := c.contract.Transact(opts, "refundCredits", user, src.ContractID(), big.NewInt(amount))
	if err != nil {
		return nil, fmt.Errorf("refundCredits tx: %w", err)
	}
	receipt, err := bind.WaitMined(ctx, c.eth, tx)
	if err != nil {
		return nil, fmt.Errorf("wait mined: %w", err)
	}
	if receipt.Status == 0 {
		return nil, fmt.Errorf("refundCredits reverted: %s", tx.Hash().Hex())
	}
	return &TxReceipt{TxHash: tx.Hash(), GasUsed: receipt.GasUsed}, nil
}
