package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-token-trader/internal/domain"
)

func TestParseMessage(t *testing.T) {
	ev, ok, err := ParseMessage([]byte(`{"message":"Successfully subscribed to token creation events."}`))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, ev)

	ev, ok, err = ParseMessage([]byte(`{"mint":"M1","txType":"create","symbol":"AAA","name":"Alpha","marketCapSol":31.5,"vTokensInBondingCurve":1000000000,"initialBuy":5}`))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "M1", ev.Mint)
	assert.Equal(t, "AAA", ev.Symbol)

	_, ok, err = ParseMessage([]byte(`{"mint":"M1","txType":"buy"}`))
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = ParseMessage([]byte(`not json`))
	assert.Error(t, err)
}

func TestCurveProgress(t *testing.T) {
	p, ok := CurveProgress(initialVirtualTokens)
	require.True(t, ok)
	assert.Equal(t, 0.0, p)

	p, _ = CurveProgress(initialVirtualTokens - realTokensForSale/2)
	assert.InDelta(t, 50.0, p, 1e-9)

	p, _ = CurveProgress(1)
	assert.Equal(t, 100.0, p)

	_, ok = CurveProgress(0)
	assert.False(t, ok)
}

func TestToCandidate(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	c := ToCandidate(&NewTokenEvent{Mint: "M", Symbol: "S", Name: "N", MarketCapSol: 40}, now)

	assert.Equal(t, domain.SourcePumpPortal, c.Source)
	assert.Equal(t, now, c.DiscoveredAt)
	require.NotNil(t, c.Snapshot.CreatedAt)
	assert.Equal(t, now, *c.Snapshot.CreatedAt)
	require.NotNil(t, c.Snapshot.MarketCapSOL)
	assert.Equal(t, 40.0, *c.Snapshot.MarketCapSOL)
	assert.Nil(t, c.Snapshot.BondingCurveProgress, "unreported reserve stays unset")
	require.NotNil(t, c.Snapshot.TradeCount)
	assert.Equal(t, int64(0), *c.Snapshot.TradeCount)
}

func TestDetector(t *testing.T) {
	d := NewDetector(2)
	assert.True(t, d.First("a"))
	assert.False(t, d.First("a"))
	assert.True(t, d.First("b"))
	assert.True(t, d.First("c")) // evicts a
	assert.True(t, d.First("a"))
	assert.False(t, d.First("c"))
}

// wsServer serves each connection with the messages of the next script entry
// after reading the subscription, then closes it.
func wsServer(t *testing.T, scripts [][]string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var conns atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := int(conns.Add(1)) - 1

		var sub map[string]string
		if err := conn.ReadJSON(&sub); err != nil || sub["method"] != "subscribeNewToken" {
			return
		}
		if n >= len(scripts) {
			// Hold the last connection open until the client leaves.
			_, _, _ = conn.ReadMessage()
			return
		}
		for _, msg := range scripts[n] {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
	}))
	return srv, &conns
}

func TestPumpPortal_StreamsAndReconnects(t *testing.T) {
	srv, conns := wsServer(t, [][]string{
		{
			`{"message":"Successfully subscribed"}`,
			`{"mint":"M1","txType":"create","symbol":"ONE"}`,
			`garbage`,
			`{"mint":"M1","txType":"create","symbol":"ONE"}`,
		},
		{
			`{"mint":"M2","txType":"create","symbol":"TWO"}`,
		},
	})
	defer srv.Close()

	src := NewPumpPortal(Config{
		URL:              "ws" + strings.TrimPrefix(srv.URL, "http"),
		ReconnectInitial: 5 * time.Millisecond,
		ReconnectMax:     10 * time.Millisecond,
		Logger:           zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := src.Candidates(ctx)
	require.NoError(t, err)

	var got []string
	timeout := time.After(5 * time.Second)
	for len(got) < 2 {
		select {
		case c := <-ch:
			got = append(got, c.Mint)
		case <-timeout:
			t.Fatalf("timed out, got %v", got)
		}
	}
	assert.Equal(t, []string{"M1", "M2"}, got)
	assert.GreaterOrEqual(t, conns.Load(), int32(2))

	cancel()
	select {
	case _, open := <-ch:
		for open {
			_, open = <-ch
		}
	case <-time.After(5 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestPumpPortal_InvalidURL(t *testing.T) {
	_, err := NewPumpPortal(Config{URL: "http://example.com"}).Candidates(context.Background())
	assert.Error(t, err)
}
