package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greyhatharola/Oracular/internal/domain"
)

func newEchoWSServer(t *testing.T, messages []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, msg := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
		// keep the connection open so the client's receive loop can idle.
		time.Sleep(50 * time.Millisecond)
	}))
	return srv
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestWSAdapterFetchBeforeAnyMessageReturnsNoDataYet(t *testing.T) {
	cfg := domain.SourceConfig{SourceID: "w1", Kind: domain.SourceWS}
	a, err := New(cfg, Deps{})
	require.NoError(t, err)

	_, err = a.Fetch(context.Background())
	assert.Error(t, err)
}

func TestWSAdapterFetchReturnsLatestNumericMessage(t *testing.T) {
	srv := newEchoWSServer(t, []string{`{"value": 100}`, `{"value": 200}`})
	defer srv.Close()

	cfg := domain.SourceConfig{SourceID: "w1", Kind: domain.SourceWS, Endpoint: wsURL(srv.URL)}
	a, err := New(cfg, Deps{})
	require.NoError(t, err)
	require.NoError(t, a.Connect(context.Background()))
	defer a.Disconnect(context.Background())

	require.Eventually(t, func() bool {
		dp, err := a.Fetch(context.Background())
		return err == nil && dp.Numeric == 200
	}, time.Second, 5*time.Millisecond)
}

func TestWSAdapterDisconnectStopsReceiveLoop(t *testing.T) {
	srv := newEchoWSServer(t, []string{`1`})
	defer srv.Close()

	cfg := domain.SourceConfig{SourceID: "w1", Kind: domain.SourceWS, Endpoint: wsURL(srv.URL)}
	a, err := New(cfg, Deps{})
	require.NoError(t, err)
	require.NoError(t, a.Connect(context.Background()))

	assert.NoError(t, a.Disconnect(context.Background()))
}
