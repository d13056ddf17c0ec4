// Package txmanager dispatches signed transactions to the configured EVM
// chain, manages nonce assignment and gas pricing, and tracks submissions
// through confirmation, replacement, or failure (spec §4.6).
package txmanager

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/greyhatharola/Oracular/internal/domain"
	"github.com/greyhatharola/Oracular/internal/errs"
	"github.com/greyhatharola/Oracular/internal/logging"
	"github.com/greyhatharola/Oracular/internal/metrics"
)

// Config tunes the manager's nonce cache, gas pricing, and monitor loop
// (spec §4.6, §6 "Network config").
type Config struct {
	PrivateKey            *ecdsa.PrivateKey
	ChainID               *big.Int
	MaxGasPriceWei        *big.Int
	NonceCacheTTL         time.Duration
	GasPriceUpdateInterval time.Duration
	MonitorInterval       time.Duration
	StuckBlockThreshold   uint64
	ReplacementGasBumpX   float64
}

// DefaultConfig returns spec §4.6's stated defaults.
func DefaultConfig() Config {
	return Config{
		NonceCacheTTL:          300 * time.Second,
		GasPriceUpdateInterval: 60 * time.Second,
		MonitorInterval:        60 * time.Second,
		StuckBlockThreshold:    10,
		ReplacementGasBumpX:    1.2,
	}
}

// SendParams describes one transaction to submit.
type SendParams struct {
	ContractID string
	To         common.Address
	ValueWei   *big.Int
	Data       []byte
	GasLimit   uint64
}

// trackedTx augments domain.PendingTx with the fields the monitor loop
// needs but the core data model does not expose (spec §3's PendingTx is
// the externally visible projection; SubmittedBlock is manager-internal).
type trackedTx struct {
	domain.PendingTx
	SubmittedBlock uint64
}

// chainReader is the narrow slice of chain.Client the manager depends on,
// accepted as an interface so nonce/gas/monitor logic can run against a
// fake in tests instead of a live RPC pool.
type chainReader interface {
	PendingNonceAt(ctx context.Context, addr common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	BaseFee(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
}

// Manager is the TransactionManager of spec §4.6.
type Manager struct {
	cfg    Config
	chain  chainReader
	from   common.Address
	metrics *metrics.Metrics
	logger  *logging.Logger

	nonceMu    sync.Mutex
	nonceGates map[common.Address]*sync.Mutex
	nonceCache map[common.Address]nonceEntry

	gasMu        sync.RWMutex
	cachedGas    *big.Int
	gasUpdatedAt time.Time

	pendingMu sync.Mutex
	pending   map[common.Hash]*trackedTx
}

type nonceEntry struct {
	nonce    uint64
	cachedAt time.Time
}

// New builds a Manager for the signing key in cfg. client is typically a
// *chain.Client but any chainReader (e.g. a test fake) works.
func New(cfg Config, client chainReader, met *metrics.Metrics, log *logging.Logger) *Manager {
	from := crypto.PubkeyToAddress(cfg.PrivateKey.PublicKey)
	return &Manager{
		cfg:        cfg,
		chain:      client,
		from:       from,
		metrics:    met,
		logger:     log,
		nonceGates: make(map[common.Address]*sync.Mutex),
		nonceCache: make(map[common.Address]nonceEntry),
		pending:    make(map[common.Hash]*trackedTx),
	}
}

// From returns the wallet address transactions are signed and sent from.
func (m *Manager) From() common.Address { return m.from }

// SendTransaction signs and submits a transaction, recording it as Pending
// (spec §4.6 "Submission & tracking"). Returns the tx hash.
func (m *Manager) SendTransaction(ctx context.Context, params SendParams) (string, error) {
	nonce, err := m.nextNonce(ctx)
	if err != nil {
		return "", err
	}

	gasPrice, err := m.optimalGasPrice(ctx)
	if err != nil {
		return "", err
	}

	if err := m.simulate(ctx, params); err != nil {
		m.returnNonce(m.from, nonce)
		return "", errs.Blockchain("pre-flight simulation failed", err)
	}

	gasLimit := params.GasLimit
	if gasLimit == 0 {
		gasLimit = 200000
	}

	tx := types.NewTransaction(nonce, params.To, valueOrZero(params.ValueWei), gasLimit, gasPrice, params.Data)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(m.cfg.ChainID), m.cfg.PrivateKey)
	if err != nil {
		m.returnNonce(m.from, nonce)
		return "", errs.Wrap(errs.KindAuth, "sign transaction", err)
	}

	if err := m.chain.SendTransaction(ctx, signed); err != nil {
		// Broadcast itself never reached the chain, so the drawn nonce was
		// never consumed on-chain either — reclaim it rather than stalling
		// every later send behind a gap (spec §4.6: nonces increment only
		// after a successful submission).
		m.returnNonce(m.from, nonce)
		return "", err
	}

	block, _ := m.chain.BlockNumber(ctx)

	now := time.Now()
	hash := signed.Hash()
	tracked := &trackedTx{
		PendingTx: domain.PendingTx{
			TxHash:      hash.Hex(),
			Nonce:       nonce,
			GasPriceWei: new(big.Int).Set(gasPrice),
			SubmittedAt: now,
			Status:      domain.TxPending,
			ContractID:  params.ContractID,
			From:        m.from.Hex(),
			To:          params.To.Hex(),
			Data:        params.Data,
			ValueWei:    valueOrZero(params.ValueWei),
		},
		SubmittedBlock: block,
	}

	m.pendingMu.Lock()
	m.pending[hash] = tracked
	m.pendingMu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordTransaction(string(domain.TxPending))
		m.metrics.PendingTransactions.Set(float64(m.pendingCount()))
	}

	return hash.Hex(), nil
}

func (m *Manager) pendingCount() int {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	return len(m.pending)
}

// simulate runs an eth_call with the transaction's calldata against the
// current state; a revert here aborts submission (spec §4.6 "Pre-flight").
func (m *Manager) simulate(ctx context.Context, params SendParams) error {
	_, err := m.chain.CallContract(ctx, ethereum.CallMsg{
		From:  m.from,
		To:    &params.To,
		Value: valueOrZero(params.ValueWei),
		Data:  params.Data,
	})
	return err
}

func valueOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
