package txmanager

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greyhatharola/Oracular/internal/domain"
)

func bigOne() *big.Int  { return big.NewInt(1) }
func bigZero() *big.Int { return big.NewInt(0) }

func trackAndReturn(t *testing.T, m *Manager, hash common.Hash, nonce, submittedBlock uint64) *trackedTx {
	t.Helper()
	tx := &trackedTx{
		PendingTx: domain.PendingTx{
			TxHash: hash.Hex(), Nonce: nonce, Status: domain.TxPending,
			GasPriceWei: bigOne(), ValueWei: bigZero(), To: "0x1111111111111111111111111111111111111111",
		},
		SubmittedBlock: submittedBlock,
	}
	m.pendingMu.Lock()
	m.pending[hash] = tx
	m.pendingMu.Unlock()
	return tx
}

func TestCheckOneConfirmsMinedSuccessfulTx(t *testing.T) {
	fc := newFakeChain()
	m := testManager(t, fc, nil)
	hash := common.HexToHash("0xabc")
	tx := trackAndReturn(t, m, hash, 1, 0)
	fc.confirmWithStatus(hash, 5, types.ReceiptStatusSuccessful)

	m.checkOne(context.Background(), tx, 5)

	assert.Equal(t, domain.TxConfirmed, tx.Status)
	assert.Equal(t, 0, m.pendingCount())
}

func TestCheckOneMarksFailedReceipt(t *testing.T) {
	fc := newFakeChain()
	m := testManager(t, fc, nil)
	hash := common.HexToHash("0xdead")
	tx := trackAndReturn(t, m, hash, 1, 0)
	fc.confirmWithStatus(hash, 5, types.ReceiptStatusFailed)

	m.checkOne(context.Background(), tx, 5)

	assert.Equal(t, domain.TxFailed, tx.Status)
}

func TestCheckOneDropsTxNeitherMinedNorPending(t *testing.T) {
	fc := newFakeChain()
	m := testManager(t, fc, nil)
	hash := common.HexToHash("0xbeef")
	tx := trackAndReturn(t, m, hash, 1, 0)
	// no receipt, not in fc.pendingTxs either

	m.checkOne(context.Background(), tx, 100)

	assert.Equal(t, domain.TxFailed, tx.Status)
	assert.Equal(t, 0, m.pendingCount())
}

func TestCheckOneLeavesTxPendingBelowThreshold(t *testing.T) {
	fc := newFakeChain()
	m := testManager(t, fc, func(c *Config) { c.StuckBlockThreshold = 10 })
	hash := common.HexToHash("0xfeed")
	tx := trackAndReturn(t, m, hash, 1, 0)
	fc.pendingTxs[hash] = true // still sitting in the mempool

	// head - submittedBlock == 5 < threshold 10: not yet stuck.
	m.checkOne(context.Background(), tx, 5)
	assert.Equal(t, domain.TxPending, tx.Status)
	assert.Equal(t, 1, m.pendingCount())
}

func TestCheckOneReplacesStuckTxAtThreshold(t *testing.T) {
	fc := newFakeChain()
	m := testManager(t, fc, func(c *Config) { c.StuckBlockThreshold = 10 })
	hash := common.HexToHash("0xfeed2")
	tx := trackAndReturn(t, m, hash, 1, 0)
	fc.pendingTxs[hash] = true

	m.checkOne(context.Background(), tx, 10)

	assert.Equal(t, domain.TxStuck, tx.Status)
	assert.NotEmpty(t, tx.ReplacedBy)
	assert.Len(t, fc.sent, 1, "replacement must be broadcast")
	assert.Equal(t, 1, m.pendingCount(), "original drops out, replacement takes its place")
}

func TestRunMonitorStopsOnContextCancel(t *testing.T) {
	fc := newFakeChain()
	m := testManager(t, fc, func(c *Config) { c.MonitorInterval = time.Millisecond })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.RunMonitor(ctx)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunMonitor did not stop after context cancellation")
	}
}

func TestWaitForTransactionReturnsOnSufficientConfirmations(t *testing.T) {
	fc := newFakeChain()
	m := testManager(t, fc, nil)
	hash := common.HexToHash("0x1")
	fc.confirmWithStatus(hash, 10, types.ReceiptStatusSuccessful)
	fc.setBlock(12)

	receipt, err := m.WaitForTransaction(context.Background(), hash.Hex(), time.Second, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), receipt.BlockNumber.Uint64())
}

func TestWaitForTransactionTimesOutWhenNeverMined(t *testing.T) {
	fc := newFakeChain()
	m := testManager(t, fc, nil)

	_, err := m.WaitForTransaction(context.Background(), common.HexToHash("0xnotmined").Hex(), 20*time.Millisecond, 1)
	require.Error(t, err)
}
