package adapter

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/greyhatharola/Oracular/internal/domain"
	"github.com/greyhatharola/Oracular/internal/errs"
)

// wsAdapter opens a long-lived stream and spawns a background receiver
// that pushes into a single-slot "latest value" cell (spec §4.1
// "WebSocket", §9 "long-lived tasks push into a single-slot latest cell").
type wsAdapter struct {
	*base

	mu      sync.Mutex
	conn    *websocket.Conn
	latest  *domain.DataPoint
	cancel  context.CancelFunc
	stopped chan struct{}
}

func newWebSocketAdapter(cfg domain.SourceConfig, deps Deps) (SourceAdapter, error) {
	return &wsAdapter{base: newBase(cfg, deps)}, nil
}

func (w *wsAdapter) SourceID() string { return w.cfg.SourceID }

func (w *wsAdapter) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.cfg.Endpoint, nil)
	if err != nil {
		return errs.Network("websocket dial failed", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	w.mu.Lock()
	w.conn = conn
	w.cancel = cancel
	w.stopped = make(chan struct{})
	w.mu.Unlock()

	go w.receiveLoop(runCtx)
	return nil
}

func (w *wsAdapter) Disconnect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
	}
	if w.conn != nil {
		_ = w.conn.Close()
	}
	return nil
}

// Fetch returns the most recently received message, failing with
// DataSourceError/NoDataYet if the receiver hasn't delivered one yet
// (spec §4.1 "fetch returns latest or fails with NoDataYet").
func (w *wsAdapter) Fetch(ctx context.Context) (domain.DataPoint, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.latest == nil {
		return domain.DataPoint{}, errs.DataSource("no data received yet (NoDataYet)", nil)
	}
	return *w.latest, nil
}

func (w *wsAdapter) receiveLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.mu.Lock()
		conn := w.conn
		w.mu.Unlock()
		if conn == nil {
			return
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			start := time.Now()
			w.recordLatency("receive", time.Since(start), errs.KindNetwork)
			w.reconnect(ctx)
			continue
		}

		dp, err := w.parseMessage(msg)
		if err != nil {
			w.recordLatency("parse", 0, errs.Classify(err))
			continue
		}
		if err := applyValidation(w.cfg.Validation, dp); err != nil {
			continue
		}
		applyNormalization(w.cfg.Normalize, &dp)

		w.mu.Lock()
		w.latest = &dp
		w.mu.Unlock()
	}
}

// reconnect closes and redials after a fixed 5s backoff on transport
// error, preserving the last-known latest value (spec §4.1).
func (w *wsAdapter) reconnect(ctx context.Context) {
	w.mu.Lock()
	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}
	w.mu.Unlock()

	select {
	case <-ctx.Done():
		return
	case <-time.After(5 * time.Second):
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.cfg.Endpoint, nil)
	if err != nil {
		return
	}

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()
}

func (w *wsAdapter) parseMessage(msg []byte) (domain.DataPoint, error) {
	dp := domain.DataPoint{
		SourceID:   w.cfg.SourceID,
		SourceType: domain.SourceWS,
		Timestamp:  time.Now(),
		Metadata:   map[string]interface{}{},
	}

	parsed := gjson.ParseBytes(msg)
	result := parsed
	if parsed.IsObject() {
		if v := parsed.Get("value"); v.Exists() {
			result = v
		}
	}

	switch {
	case result.Type == gjson.True || result.Type == gjson.False:
		dp.ValueKind = domain.ValueBoolean
		dp.Boolean = result.Bool()
	case result.Type == gjson.Number:
		dp.ValueKind = domain.ValueNumeric
		dp.Numeric = result.Float()
	case result.Type == gjson.String:
		dp.ValueKind = domain.ValueCategorical
		dp.Categorical = result.String()
	default:
		return domain.DataPoint{}, errs.DataSource("websocket message has unsupported value type", nil)
	}

	return dp, nil
}
