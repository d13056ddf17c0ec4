package txmanager

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager(t *testing.T, fc *fakeChain, mutate func(*Config)) *Manager {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.PrivateKey = key
	cfg.ChainID = big.NewInt(1337)
	cfg.MaxGasPriceWei = big.NewInt(1_000_000_000_000)
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg, fc, nil, nil)
}

func TestNextNonceRefreshesFromChainWhenCacheEmpty(t *testing.T) {
	fc := newFakeChain()
	fc.nonce = 7
	m := testManager(t, fc, nil)

	n, err := m.nextNonce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(7), n)
}

func TestNextNonceIncrementsWithinTTL(t *testing.T) {
	fc := newFakeChain()
	fc.nonce = 7
	m := testManager(t, fc, func(c *Config) { c.NonceCacheTTL = time.Minute })

	first, err := m.nextNonce(context.Background())
	require.NoError(t, err)
	fc.nonce = 999 // chain moved on, but cache should still be used

	second, err := m.nextNonce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first+1, second)
}

func TestNextNonceRefreshesAfterTTLExpires(t *testing.T) {
	fc := newFakeChain()
	fc.nonce = 7
	m := testManager(t, fc, func(c *Config) { c.NonceCacheTTL = time.Nanosecond })

	_, err := m.nextNonce(context.Background())
	require.NoError(t, err)

	time.Sleep(time.Millisecond)
	fc.nonce = 42
	n, err := m.nextNonce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), n)
}

func TestReturnNonceReclaimsOnlyTheMostRecentDraw(t *testing.T) {
	fc := newFakeChain()
	fc.nonce = 10
	m := testManager(t, fc, nil)

	n, err := m.nextNonce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(10), n)

	m.returnNonce(m.from, n)

	again, err := m.nextNonce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(10), again, "a reclaimed nonce must be reused, not skipped")
}

func TestReturnNonceIgnoresStaleReclaim(t *testing.T) {
	fc := newFakeChain()
	fc.nonce = 10
	m := testManager(t, fc, nil)

	n, err := m.nextNonce(context.Background())
	require.NoError(t, err)

	// Reclaiming a nonce that isn't the most recently drawn one must be a
	// no-op — otherwise a late reclaim could rewind the cache and cause a
	// duplicate nonce to be assigned later.
	m.returnNonce(m.from, n-1)

	again, err := m.nextNonce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, n+1, again)
}

func TestOptimalGasPriceUsesFloorWhenSuggestedIsLow(t *testing.T) {
	fc := newFakeChain()
	fc.baseFee = big.NewInt(100)
	fc.suggestedPrice = big.NewInt(5)
	m := testManager(t, fc, nil)

	price, err := m.optimalGasPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(200), price, "price = max(2*base_fee, suggested)")
}

func TestOptimalGasPriceUsesSuggestedWhenHigher(t *testing.T) {
	fc := newFakeChain()
	fc.baseFee = big.NewInt(10)
	fc.suggestedPrice = big.NewInt(500)
	m := testManager(t, fc, nil)

	price, err := m.optimalGasPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(500), price)
}

func TestOptimalGasPriceCappedAtMax(t *testing.T) {
	fc := newFakeChain()
	fc.baseFee = big.NewInt(1_000_000_000_000)
	fc.suggestedPrice = big.NewInt(1_000_000_000_000)
	m := testManager(t, fc, func(c *Config) { c.MaxGasPriceWei = big.NewInt(50) })

	price, err := m.optimalGasPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(50), price)
}

func TestOptimalGasPriceCachedWithinInterval(t *testing.T) {
	fc := newFakeChain()
	fc.baseFee = big.NewInt(100)
	m := testManager(t, fc, func(c *Config) { c.GasPriceUpdateInterval = time.Minute })

	first, err := m.optimalGasPrice(context.Background())
	require.NoError(t, err)

	fc.baseFee = big.NewInt(999_999)
	second, err := m.optimalGasPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second, "gas price must not re-fetch within GasPriceUpdateInterval")
}

func TestBumpedGasPriceAppliesMultiplier(t *testing.T) {
	fc := newFakeChain()
	m := testManager(t, fc, func(c *Config) { c.ReplacementGasBumpX = 1.2 })

	bumped := m.bumpedGasPrice(big.NewInt(100))
	assert.InDelta(t, 120, bumped.Int64(), 1)
}

func TestBumpedGasPriceAlwaysIncreases(t *testing.T) {
	fc := newFakeChain()
	m := testManager(t, fc, func(c *Config) { c.ReplacementGasBumpX = 1.0 })

	price := big.NewInt(100)
	bumped := m.bumpedGasPrice(price)
	assert.Greater(t, bumped.Int64(), price.Int64(), "a no-op multiplier must still move the price by at least 1 wei")
}

func TestSendTransactionAbortsOnSimulationFailureAndReturnsNonce(t *testing.T) {
	fc := newFakeChain()
	fc.nonce = 3
	fc.callErr = assertError("revert")
	m := testManager(t, fc, nil)

	_, err := m.SendTransaction(context.Background(), SendParams{
		ContractID: "feed-eth-usd",
		To:         common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Data:       []byte{0x01},
	})
	require.Error(t, err)

	// The nonce drawn for the aborted send must be reclaimed, not burned.
	n, err := m.nextNonce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)
}

func TestSendTransactionReclaimsNonceOnBroadcastFailure(t *testing.T) {
	fc := newFakeChain()
	fc.nonce = 5
	fc.sendErr = assertError("rpc timeout")
	m := testManager(t, fc, nil)

	_, err := m.SendTransaction(context.Background(), SendParams{
		ContractID: "feed-eth-usd",
		To:         common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Data:       []byte{0x01},
	})
	require.Error(t, err)

	// The broadcast never reached the chain, so the drawn nonce must be
	// reclaimed rather than left stuck in the cache.
	n, err := m.nextNonce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(5), n)
}

func TestSendTransactionHappyPath(t *testing.T) {
	fc := newFakeChain()
	fc.nonce = 1
	m := testManager(t, fc, nil)

	hash, err := m.SendTransaction(context.Background(), SendParams{
		ContractID: "feed-eth-usd",
		To:         common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Data:       []byte{0x01, 0x02},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.Len(t, fc.sent, 1)
	assert.Equal(t, 1, m.pendingCount())
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func assertError(msg string) error { return simpleErr(msg) }
