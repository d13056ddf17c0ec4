package txmanager

import (
	"context"
	"math/big"
	"time"
)

// optimalGasPrice returns a gas price for the next submission, refreshing
// from chain state at most once per GasPriceUpdateInterval (spec §4.6 "Gas
// pricing": price = min(max(2 * base_fee, suggested_price), max_gas_price)).
func (m *Manager) optimalGasPrice(ctx context.Context) (*big.Int, error) {
	m.gasMu.RLock()
	stale := m.cachedGas == nil || time.Since(m.gasUpdatedAt) > m.cfg.GasPriceUpdateInterval
	cached := m.cachedGas
	m.gasMu.RUnlock()

	if !stale {
		return cached, nil
	}

	m.gasMu.Lock()
	defer m.gasMu.Unlock()

	// Another goroutine may have refreshed while we waited for the lock.
	if m.cachedGas != nil && time.Since(m.gasUpdatedAt) <= m.cfg.GasPriceUpdateInterval {
		return m.cachedGas, nil
	}

	baseFee, err := m.chain.BaseFee(ctx)
	if err != nil {
		return nil, err
	}
	suggested, err := m.chain.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}

	floor := new(big.Int).Mul(baseFee, big.NewInt(2))
	price := suggested
	if floor.Cmp(price) > 0 {
		price = floor
	}
	if m.cfg.MaxGasPriceWei != nil && price.Cmp(m.cfg.MaxGasPriceWei) > 0 {
		price = m.cfg.MaxGasPriceWei
	}

	m.cachedGas = new(big.Int).Set(price)
	m.gasUpdatedAt = time.Now()
	return m.cachedGas, nil
}

// bumpedGasPrice scales price by the configured replacement multiplier, used
// when resubmitting a stuck transaction at the same nonce (spec §4.6
// "Stuck-transaction detection & replacement").
func (m *Manager) bumpedGasPrice(price *big.Int) *big.Int {
	bumped := new(big.Float).Mul(new(big.Float).SetInt(price), big.NewFloat(m.cfg.ReplacementGasBumpX))
	out, _ := bumped.Int(nil)
	if out.Cmp(price) <= 0 {
		// Guard against a multiplier of 1.0 or less, or truncation, leaving
		// the price unchanged or lower.
		return new(big.Int).Add(price, big.NewInt(1))
	}
	return out
}
