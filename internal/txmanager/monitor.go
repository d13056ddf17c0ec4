package txmanager

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/greyhatharola/Oracular/internal/chain"
	"github.com/greyhatharola/Oracular/internal/domain"
)

// RunMonitor polls every pending transaction once per MonitorInterval,
// confirming, replacing stuck ones, or marking failures — the manager's
// standing background loop (spec §4.6 "Stuck-transaction detection &
// replacement"), grounded in the ticker-driven confirmation worker the
// teacher runs as an `AddTickerWorker` (`confirmationWorkerWithError`).
func (m *Manager) RunMonitor(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkPending(ctx)
		}
	}
}

func (m *Manager) checkPending(ctx context.Context) {
	m.pendingMu.Lock()
	snapshot := make([]*trackedTx, 0, len(m.pending))
	for _, tx := range m.pending {
		snapshot = append(snapshot, tx)
	}
	m.pendingMu.Unlock()

	head, err := m.chain.BlockNumber(ctx)
	if err != nil {
		if m.logger != nil {
			m.logger.Warn(ctx, "monitor: fetch block number failed", map[string]interface{}{"error": err.Error()})
		}
		return
	}

	for _, tx := range snapshot {
		m.checkOne(ctx, tx, head)
	}
}

func (m *Manager) checkOne(ctx context.Context, tx *trackedTx, head uint64) {
	hash := common.HexToHash(tx.TxHash)

	receipt, err := m.chain.TransactionReceipt(ctx, hash)
	switch {
	case err == nil:
		m.confirm(ctx, tx, receipt)
		return
	case err == chain.ErrTxNotFound:
		// fall through to stuck-detection below
	default:
		if m.logger != nil {
			m.logger.Debug(ctx, "monitor: receipt check failed", map[string]interface{}{"tx": tx.TxHash, "error": err.Error()})
		}
		return
	}

	if _, pending, err := m.chain.TransactionByHash(ctx, hash); err != nil || !pending {
		// Neither mined nor in the mempool: the node has dropped it.
		m.failPending(ctx, tx, "transaction dropped from mempool")
		return
	}

	if head > tx.SubmittedBlock && head-tx.SubmittedBlock >= m.cfg.StuckBlockThreshold {
		m.replaceStuck(ctx, tx, head)
	}
}

func (m *Manager) confirm(ctx context.Context, tx *trackedTx, receipt *types.Receipt) {
	m.pendingMu.Lock()
	delete(m.pending, common.HexToHash(tx.TxHash))
	m.pendingMu.Unlock()

	status := domain.TxConfirmed
	if receipt.Status == types.ReceiptStatusFailed {
		status = domain.TxFailed
	}
	tx.Status = status

	if m.metrics != nil {
		m.metrics.RecordTransaction(string(status))
		m.metrics.PendingTransactions.Set(float64(m.pendingCount()))
	}
	if m.logger != nil {
		m.logger.Info(ctx, "transaction mined", map[string]interface{}{
			"tx": tx.TxHash, "status": string(status), "block": receipt.BlockNumber.String(),
		})
	}
}

func (m *Manager) failPending(ctx context.Context, tx *trackedTx, reason string) {
	m.pendingMu.Lock()
	delete(m.pending, common.HexToHash(tx.TxHash))
	m.pendingMu.Unlock()

	tx.Status = domain.TxFailed
	if m.metrics != nil {
		m.metrics.RecordTransaction(string(domain.TxFailed))
		m.metrics.PendingTransactions.Set(float64(m.pendingCount()))
	}
	if m.logger != nil {
		m.logger.Warn(ctx, "transaction failed", map[string]interface{}{"tx": tx.TxHash, "reason": reason})
	}
}

// replaceStuck resubmits tx's payload at the same nonce with a bumped gas
// price (spec §4.6's replacement formula: gas_price * replacement_bump).
func (m *Manager) replaceStuck(ctx context.Context, tx *trackedTx, head uint64) {
	newPrice := m.bumpedGasPrice(tx.GasPriceWei)

	replacement := types.NewTransaction(tx.Nonce, common.HexToAddress(tx.To), tx.ValueWei, 200000, newPrice, tx.Data)
	signed, err := types.SignTx(replacement, types.NewEIP155Signer(m.cfg.ChainID), m.cfg.PrivateKey)
	if err != nil {
		if m.logger != nil {
			m.logger.Warn(ctx, "stuck-tx replacement sign failed", map[string]interface{}{"tx": tx.TxHash, "error": err.Error()})
		}
		return
	}

	if err := m.chain.SendTransaction(ctx, signed); err != nil {
		if m.logger != nil {
			m.logger.Warn(ctx, "stuck-tx replacement submit failed", map[string]interface{}{"tx": tx.TxHash, "error": err.Error()})
		}
		return
	}

	newHash := signed.Hash()

	m.pendingMu.Lock()
	delete(m.pending, common.HexToHash(tx.TxHash))
	m.pending[newHash] = &trackedTx{
		PendingTx: domain.PendingTx{
			TxHash:      newHash.Hex(),
			Nonce:       tx.Nonce,
			GasPriceWei: newPrice,
			SubmittedAt: time.Now(),
			Status:      domain.TxPending,
			ContractID:  tx.ContractID,
			From:        tx.From,
			To:          tx.To,
			Data:        tx.Data,
			ValueWei:    tx.ValueWei,
		},
		SubmittedBlock: head,
	}
	m.pendingMu.Unlock()

	tx.Status = domain.TxStuck
	tx.ReplacedBy = newHash.Hex()

	if m.metrics != nil {
		m.metrics.RecordTransaction(string(domain.TxStuck))
		m.metrics.RecordTransaction("replaced")
	}
	if m.logger != nil {
		m.logger.Info(ctx, "replaced stuck transaction", map[string]interface{}{
			"old_tx": tx.TxHash, "new_tx": newHash.Hex(), "new_gas_price": newPrice.String(),
		})
	}
}
