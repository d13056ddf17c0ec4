package txmanager

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/greyhatharola/Oracular/internal/chain"
	"github.com/greyhatharola/Oracular/internal/errs"
)

// WaitForTransaction polls until txHash has at least confirmations blocks
// built on top of it, or timeout elapses (spec §4.6 "Confirmation depth").
// A receipt that disappears between polls (a reorg evicting the block) is
// treated as still-pending rather than an error; the wait continues until
// timeout instead of returning a stale confirmation.
func (m *Manager) WaitForTransaction(ctx context.Context, txHash string, timeout time.Duration, confirmations uint64) (*types.Receipt, error) {
	deadline := time.Now().Add(timeout)
	hash := common.HexToHash(txHash)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		receipt, err := m.chain.TransactionReceipt(ctx, hash)
		if err != nil && err != chain.ErrTxNotFound {
			return nil, err
		}

		if err == nil {
			head, headErr := m.chain.BlockNumber(ctx)
			if headErr == nil && receipt.BlockNumber != nil {
				mined := receipt.BlockNumber.Uint64()
				if head >= mined && head-mined+1 >= confirmations {
					return receipt, nil
				}
			}
		}

		if time.Now().After(deadline) {
			return nil, errs.Blockchain("timed out waiting for transaction confirmation", nil)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
