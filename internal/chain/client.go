// Package chain wraps the EVM JSON-RPC surface the TransactionManager and
// ContractRegistry depend on: nonce/gas reads, raw transaction submission,
// receipt/header polling, and read-only calls for pre-flight simulation
// (spec §4.6, §6 "Blockchain endpoints").
package chain

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/greyhatharola/Oracular/internal/errs"
)

// Config describes the network this Client talks to (spec §6 "Network config").
type Config struct {
	RPCEndpoints        []string
	ChainID             *big.Int
	IsPoA               bool
	RequiredConfirmations uint64
}

// Client is an RPC-pooled EVM client: every call tries endpoints in
// health/priority order and fails over on error, the same shape as the
// teacher's RPCPool (spec §6's multi-endpoint config).
type Client struct {
	cfg   Config
	pool  *RPCPool
}

// New dials every configured RPC endpoint and returns a Client backed by
// the resulting pool.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if len(cfg.RPCEndpoints) == 0 {
		return nil, errs.Blockchain("no RPC endpoints configured", nil)
	}
	pool, err := NewRPCPool(ctx, cfg.RPCEndpoints)
	if err != nil {
		return nil, err
	}
	return &Client{cfg: cfg, pool: pool}, nil
}

func (c *Client) ChainID() *big.Int { return c.cfg.ChainID }

// PendingNonceAt returns the next nonce to use for addr, reading the
// chain's "pending" transaction count (spec §4.6 "Nonce management").
func (c *Client) PendingNonceAt(ctx context.Context, addr common.Address) (uint64, error) {
	var nonce uint64
	err := c.pool.withClient(ctx, func(ec *ethclient.Client) error {
		n, err := ec.PendingNonceAt(ctx, addr)
		if err != nil {
			return err
		}
		nonce = n
		return nil
	})
	if err != nil {
		return 0, errs.Blockchain("fetch pending nonce", err)
	}
	return nonce, nil
}

// SuggestGasPrice returns the chain's suggested gas price.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var price *big.Int
	err := c.pool.withClient(ctx, func(ec *ethclient.Client) error {
		p, err := ec.SuggestGasPrice(ctx)
		if err != nil {
			return err
		}
		price = p
		return nil
	})
	if err != nil {
		return nil, errs.Blockchain("suggest gas price", err)
	}
	return price, nil
}

// BaseFee returns the latest block's base fee, using a PoA-tolerant header
// fetch when cfg.IsPoA is set (spec §6 "PoA networks require... an
// extra-data-tolerant layer equivalent to Geth PoA").
func (c *Client) BaseFee(ctx context.Context) (*big.Int, error) {
	if c.cfg.IsPoA {
		return c.poaBaseFee(ctx)
	}

	var baseFee *big.Int
	err := c.pool.withClient(ctx, func(ec *ethclient.Client) error {
		head, err := ec.HeaderByNumber(ctx, nil)
		if err != nil {
			return err
		}
		baseFee = head.BaseFee
		return nil
	})
	if err != nil {
		return nil, errs.Blockchain("fetch base fee", err)
	}
	if baseFee == nil {
		return big.NewInt(0), nil
	}
	return baseFee, nil
}

// poaBaseFee fetches the latest block via a loosely-typed raw RPC call and
// reads only `baseFeePerGas`, bypassing go-ethereum's *types.Header decode
// path (which historically rejects Clique/PoA's oversized extraData field).
func (c *Client) poaBaseFee(ctx context.Context) (*big.Int, error) {
	var raw map[string]interface{}
	err := c.pool.withRPC(ctx, func(rc *rpcCaller) error {
		return rc.call(ctx, &raw, "eth_getBlockByNumber", "latest", false)
	})
	if err != nil {
		return nil, errs.Blockchain("fetch PoA block header", err)
	}

	hexFee, ok := raw["baseFeePerGas"].(string)
	if !ok {
		// Pre-EIP-1559 PoA chains simply omit the field.
		return big.NewInt(0), nil
	}
	fee, ok := new(big.Int).SetString(trimHexPrefix(hexFee), 16)
	if !ok {
		return nil, errs.Blockchain("parse baseFeePerGas", nil)
	}
	return fee, nil
}

func trimHexPrefix(s string) string {
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// BlockNumber returns the latest block height.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var n uint64
	err := c.pool.withClient(ctx, func(ec *ethclient.Client) error {
		num, err := ec.BlockNumber(ctx)
		if err != nil {
			return err
		}
		n = num
		return nil
	})
	if err != nil {
		return 0, errs.Blockchain("fetch block number", err)
	}
	return n, nil
}

// CallContract performs a read-only eth_call, used for pre-flight
// transaction simulation (spec §4.6 "Pre-flight").
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	var out []byte
	err := c.pool.withClient(ctx, func(ec *ethclient.Client) error {
		res, err := ec.CallContract(ctx, msg, nil)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return nil, errs.Blockchain("simulate transaction", err)
	}
	return out, nil
}

// SendTransaction broadcasts a signed transaction.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	err := c.pool.withClient(ctx, func(ec *ethclient.Client) error {
		return ec.SendTransaction(ctx, tx)
	})
	if err != nil {
		return errs.Blockchain("send transaction", err)
	}
	return nil
}

var ErrTxNotFound = errors.New("transaction not found")

// TransactionReceipt fetches a transaction's receipt, mapping go-ethereum's
// "not found" sentinel to ErrTxNotFound.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := c.pool.withClient(ctx, func(ec *ethclient.Client) error {
		r, err := ec.TransactionReceipt(ctx, hash)
		if err != nil {
			return err
		}
		receipt = r
		return nil
	})
	if errors.Is(err, ethereum.NotFound) {
		return nil, ErrTxNotFound
	}
	if err != nil {
		return nil, errs.Blockchain("fetch transaction receipt", err)
	}
	return receipt, nil
}

// TransactionByHash fetches a transaction and reports whether it is still pending.
func (c *Client) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	var tx *types.Transaction
	var pending bool
	err := c.pool.withClient(ctx, func(ec *ethclient.Client) error {
		t, isPending, err := ec.TransactionByHash(ctx, hash)
		if err != nil {
			return err
		}
		tx, pending = t, isPending
		return nil
	})
	if errors.Is(err, ethereum.NotFound) {
		return nil, false, ErrTxNotFound
	}
	if err != nil {
		return nil, false, errs.Blockchain("fetch transaction", err)
	}
	return tx, pending, nil
}
