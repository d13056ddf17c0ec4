package txmanager

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/greyhatharola/Oracular/internal/chain"
)

// fakeChain is an in-memory chainReader used to exercise nonce, gas, and
// monitor logic without a live RPC endpoint.
type fakeChain struct {
	mu sync.Mutex

	nonce          uint64
	nonceErr       error
	suggestedPrice *big.Int
	baseFee        *big.Int
	blockNumber    uint64
	callErr        error

	sent       []*types.Transaction
	sendErr    error
	receipts   map[common.Hash]*types.Receipt
	pendingTxs map[common.Hash]bool
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		suggestedPrice: big.NewInt(10),
		baseFee:        big.NewInt(5),
		receipts:       make(map[common.Hash]*types.Receipt),
		pendingTxs:     make(map[common.Hash]bool),
	}
}

func (f *fakeChain) PendingNonceAt(ctx context.Context, addr common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce, f.nonceErr
}

func (f *fakeChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.suggestedPrice), nil
}

func (f *fakeChain) BaseFee(ctx context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.baseFee), nil
}

func (f *fakeChain) BlockNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blockNumber, nil
}

func (f *fakeChain) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	return nil, f.callErr
}

func (f *fakeChain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	f.pendingTxs[tx.Hash()] = true
	return nil
}

func (f *fakeChain) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.receipts[hash]
	if !ok {
		return nil, chain.ErrTxNotFound
	}
	return r, nil
}

func (f *fakeChain) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pendingTxs[hash] {
		return nil, true, nil
	}
	return nil, false, nil
}

func (f *fakeChain) setBlock(n uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blockNumber = n
}

func (f *fakeChain) confirmWithStatus(hash common.Hash, blockNumber uint64, status uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receipts[hash] = &types.Receipt{BlockNumber: big.NewInt(int64(blockNumber)), Status: status}
	delete(f.pendingTxs, hash)
}
