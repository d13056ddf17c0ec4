package txmanager

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// nextNonce returns the next nonce to assign for the manager's signing
// address, refreshing from chain state when the cache is empty or stale
// (spec §4.6 "Nonce management": serialize nonce assignment per address,
// with a bounded-TTL cache between on-chain refreshes).
//
// A per-address gate, not the manager-wide nonceMu, serializes the
// read-increment-store sequence so unrelated addresses never contend.
func (m *Manager) nextNonce(ctx context.Context) (uint64, error) {
	gate := m.addressGate(m.from)
	gate.Lock()
	defer gate.Unlock()

	m.nonceMu.Lock()
	entry, ok := m.nonceCache[m.from]
	m.nonceMu.Unlock()

	if !ok || time.Since(entry.cachedAt) > m.cfg.NonceCacheTTL {
		onChain, err := m.chain.PendingNonceAt(ctx, m.from)
		if err != nil {
			return 0, err
		}
		entry = nonceEntry{nonce: onChain, cachedAt: time.Now()}
	} else {
		entry.nonce++
	}

	m.nonceMu.Lock()
	m.nonceCache[m.from] = entry
	m.nonceMu.Unlock()

	return entry.nonce, nil
}

// addressGate returns the exclusive lock guarding nonce assignment for addr,
// creating it on first use.
func (m *Manager) addressGate(addr common.Address) *sync.Mutex {
	m.nonceMu.Lock()
	defer m.nonceMu.Unlock()
	gate, ok := m.nonceGates[addr]
	if !ok {
		gate = &sync.Mutex{}
		m.nonceGates[addr] = gate
	}
	return gate
}

// resyncNonce drops the cached nonce for addr, forcing the next call to
// nextNonce to re-read the chain.
func (m *Manager) resyncNonce(addr common.Address) {
	m.nonceMu.Lock()
	defer m.nonceMu.Unlock()
	delete(m.nonceCache, addr)
}

// returnNonce reclaims a previously assigned nonce that was never broadcast
// (e.g. simulation failed after the nonce was drawn), so it is reused by the
// next SendTransaction call instead of leaving a gap on chain.
//
// The cache only rolls back if it still reads exactly the nonce that was
// drawn — i.e. no other SendTransaction call has drawn a later nonce for
// this address in the meantime. If the cache has already moved past it,
// rolling back would hand that later nonce out a second time.
func (m *Manager) returnNonce(addr common.Address, nonce uint64) {
	m.nonceMu.Lock()
	defer m.nonceMu.Unlock()
	entry, ok := m.nonceCache[addr]
	if ok && entry.nonce == nonce {
		entry.nonce = nonce - 1
		m.nonceCache[addr] = entry
	}
}
