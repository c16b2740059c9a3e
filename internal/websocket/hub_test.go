package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzzdr/portfolio-risk-sim/pkg/models"
)

type clientGauge struct {
	n atomic.Int64
}

func (g *clientGauge) SetWebSocketClients(n int) {
	g.n.Store(int64(n))
}

func startHub(t *testing.T) (*Hub, *clientGauge, string) {
	t.Helper()
	gauge := &clientGauge{}
	hub := NewHub(gauge)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, gauge, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHubDeliversRunsToSubscribers(t *testing.T) {
	hub, gauge, url := startHub(t)

	all := dial(t, url)
	core := dial(t, url)

	require.NoError(t, core.WriteJSON(SubscriptionMessage{Type: "subscribe", Portfolios: []string{"core"}, ID: "1"}))
	confirm := readMessage(t, core)
	assert.Equal(t, TypeSubscriptionConfirmed, confirm.Type)
	assert.Equal(t, "1", confirm.ID)

	require.NoError(t, all.WriteJSON(SubscriptionMessage{Type: "ping", ID: "p"}))
	assert.Equal(t, TypePong, readMessage(t, all).Type)
	assert.Eventually(t, func() bool { return gauge.n.Load() == 2 }, time.Second, 10*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, hub.SaveRun(ctx, models.RunRecord{ID: "r1", PortfolioID: "growth", VaR: 9000}))
	require.NoError(t, hub.SaveRun(ctx, models.RunRecord{ID: "r2", PortfolioID: "core", VaR: 9500}))

	first := readMessage(t, all)
	assert.Equal(t, TypeRunCompleted, first.Type)
	assert.Equal(t, "growth", first.PortfolioID)
	assert.Equal(t, "core", readMessage(t, all).PortfolioID)

	got := readMessage(t, core)
	assert.Equal(t, "core", got.PortfolioID)
	data, ok := got.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "r2", data["id"])
}

func TestHubRejectsUnknownMessages(t *testing.T) {
	_, _, url := startHub(t)
	conn := dial(t, url)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	assert.Equal(t, TypeError, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteJSON(SubscriptionMessage{Type: "rebalance"}))
	msg := readMessage(t, conn)
	assert.Equal(t, TypeError, msg.Type)
	assert.Equal(t, "Unknown message type", msg.Error)
}

func TestSaveRunAfterStop(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	// Fill the buffer so the stopped hub is the only ready case
	for i := 0; i < cap(hub.broadcast); i++ {
		hub.broadcast <- broadcastMessage{}
	}
	assert.Error(t, hub.SaveRun(context.Background(), models.RunRecord{ID: "late"}))
}
