package chain

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/greyhatharola/Oracular/internal/errs"
)

// endpoint tracks one RPC provider's health, mirroring the teacher's
// RPCPool health/latency bookkeeping (grounded in
// `_teacher/txsubmitter_service.go.ref`'s `rpcPool.GetEndpoints`/`MarkHealthy`).
type endpoint struct {
	url        string
	client     *ethclient.Client
	rpcClient  *rpc.Client
	healthy    bool
	avgLatency time.Duration
	priority   int
}

// RPCPool dials a set of RPC endpoints and fails over between them,
// preferring the healthiest/lowest-latency/highest-priority endpoint.
type RPCPool struct {
	mu        sync.RWMutex
	endpoints []*endpoint
}

// NewRPCPool dials every url; at least one must succeed.
func NewRPCPool(ctx context.Context, urls []string) (*RPCPool, error) {
	pool := &RPCPool{}
	for i, url := range urls {
		rc, err := rpc.DialContext(ctx, url)
		if err != nil {
			continue
		}
		pool.endpoints = append(pool.endpoints, &endpoint{
			url:       url,
			client:    ethclient.NewClient(rc),
			rpcClient: rc,
			healthy:   true,
			priority:  i,
		})
	}
	if len(pool.endpoints) == 0 {
		return nil, errs.Blockchain("no RPC endpoint could be dialed", nil)
	}
	return pool, nil
}

// orderedEndpoints returns endpoints sorted healthy-first, then by
// ascending latency, then by configured priority.
func (p *RPCPool) orderedEndpoints() []*endpoint {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ordered := make([]*endpoint, len(p.endpoints))
	copy(ordered, p.endpoints)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].healthy != ordered[j].healthy {
			return ordered[i].healthy
		}
		if ordered[i].avgLatency != ordered[j].avgLatency {
			return ordered[i].avgLatency < ordered[j].avgLatency
		}
		return ordered[i].priority < ordered[j].priority
	})
	return ordered
}

func (p *RPCPool) markHealthy(url string, latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ep := range p.endpoints {
		if ep.url == url {
			ep.healthy = true
			if ep.avgLatency == 0 {
				ep.avgLatency = latency
			} else {
				ep.avgLatency = (ep.avgLatency + latency) / 2
			}
			return
		}
	}
}

func (p *RPCPool) markUnhealthy(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ep := range p.endpoints {
		if ep.url == url {
			ep.healthy = false
			return
		}
	}
}

// HealthyCount reports how many endpoints are currently marked healthy.
func (p *RPCPool) HealthyCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, ep := range p.endpoints {
		if ep.healthy {
			n++
		}
	}
	return n
}

// withClient runs fn against the best available endpoint, failing over to
// the next on error.
func (p *RPCPool) withClient(ctx context.Context, fn func(*ethclient.Client) error) error {
	ordered := p.orderedEndpoints()
	var lastErr error
	for _, ep := range ordered {
		start := time.Now()
		err := fn(ep.client)
		if err == nil {
			p.markHealthy(ep.url, time.Since(start))
			return nil
		}
		p.markUnhealthy(ep.url)
		lastErr = err
	}
	return lastErr
}

// rpcCaller exposes the raw JSON-RPC call used for PoA-tolerant header
// reads that bypass ethclient's typed decode path.
type rpcCaller struct {
	client *rpc.Client
}

func (r *rpcCaller) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	return r.client.CallContext(ctx, result, method, args...)
}

func (p *RPCPool) withRPC(ctx context.Context, fn func(*rpcCaller) error) error {
	ordered := p.orderedEndpoints()
	var lastErr error
	for _, ep := range ordered {
		start := time.Now()
		err := fn(&rpcCaller{client: ep.rpcClient})
		if err == nil {
			p.markHealthy(ep.url, time.Since(start))
			return nil
		}
		p.markUnhealthy(ep.url)
		lastErr = err
	}
	return lastErr
}
