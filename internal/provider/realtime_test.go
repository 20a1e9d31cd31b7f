package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newWSServer(t *testing.T, handler func(conn *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testFeedConfig(endpoint string) *QuoteFeedConfig {
	return &QuoteFeedConfig{
		Endpoint:          endpoint,
		ReconnectDelay:    10 * time.Millisecond,
		MaxReconnectDelay: 50 * time.Millisecond,
		ReadTimeout:       2 * time.Second,
		WriteTimeout:      2 * time.Second,
	}
}

func waitForPrice(t *testing.T, feed *QuoteFeed, ticker string) float64 {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p, ok := feed.Prices()[ticker]; ok {
			return p
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no tick recorded for %s", ticker)
	return 0
}

func TestQuoteFeed_SubscribesAndRecordsTicks(t *testing.T) {
	subs := make(chan subscribeRequest, 4)
	endpoint := newWSServer(t, func(conn *websocket.Conn) {
		for i := 0; i < 2; i++ {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req subscribeRequest
			if err := json.Unmarshal(msg, &req); err != nil {
				return
			}
			subs <- req
		}
		// Control frames are JSON and must not disturb the price map.
		conn.WriteMessage(websocket.TextMessage, []byte(`{"header":{"tr_id":"PINGPONG"}}`))
		conn.WriteMessage(websocket.TextMessage, []byte("0|H0STCNT0|001|005930^093015^71200"))
		conn.ReadMessage() // hold until the client closes
	})

	feed, err := NewQuoteFeed(context.Background(), "approval-1", []string{"005930", "000660"}, false, testFeedConfig(endpoint))
	if err != nil {
		t.Fatalf("NewQuoteFeed() error = %v", err)
	}

	keys := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case req := <-subs:
			if req.Header.ApprovalKey != "approval-1" {
				t.Errorf("approval_key = %q, want approval-1", req.Header.ApprovalKey)
			}
			if req.Header.TrType != "1" {
				t.Errorf("tr_type = %q, want 1", req.Header.TrType)
			}
			if req.Body.Input.TrID != tradeTickTrID {
				t.Errorf("tr_id = %q, want %s", req.Body.Input.TrID, tradeTickTrID)
			}
			keys[req.Body.Input.TrKey] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for subscribe frame")
		}
	}
	if !keys["005930"] || !keys["000660"] {
		t.Errorf("subscribed tickers = %v, want 005930 and 000660", keys)
	}

	if got := waitForPrice(t, feed, "005930"); got != 71200 {
		t.Errorf("price = %v, want 71200", got)
	}
	if _, ok := feed.Prices()["000660"]; ok {
		t.Error("000660 has a price without a tick")
	}

	if err := feed.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := feed.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestNewQuoteFeed_TruncatesPastRegistrationCap(t *testing.T) {
	count := make(chan int, 1)
	endpoint := newWSServer(t, func(conn *websocket.Conn) {
		n := 0
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				count <- n
				return
			}
			n++
		}
	})

	tickers := make([]string, maxQuoteSubscriptions+10)
	for i := range tickers {
		tickers[i] = fmt.Sprintf("%06d", i)
	}
	feed, err := NewQuoteFeed(context.Background(), "approval-1", tickers, true, testFeedConfig(endpoint))
	if err != nil {
		t.Fatalf("NewQuoteFeed() error = %v", err)
	}
	if len(feed.tickers) != maxQuoteSubscriptions {
		t.Errorf("kept %d tickers, want %d", len(feed.tickers), maxQuoteSubscriptions)
	}
	if err := feed.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	select {
	case n := <-count:
		if n != maxQuoteSubscriptions {
			t.Errorf("server saw %d subscribe frames, want %d", n, maxQuoteSubscriptions)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server frame count")
	}
}

func TestNewQuoteFeed_DialError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if _, err := NewQuoteFeed(ctx, "approval-1", []string{"005930"}, true, testFeedConfig("ws://127.0.0.1:1")); err == nil {
		t.Fatal("NewQuoteFeed() with unreachable endpoint: want error")
	}
}

func TestHandleMessage_FrameParsing(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want map[string]float64
	}{
		{"trade tick", "0|H0STCNT0|001|005930^093015^71200", map[string]float64{"005930": 71200}},
		{"encrypted flag", "1|H0STCNT0|001|000660^093015^183500", map[string]float64{"000660": 183500}},
		{"multi field payload", "0|H0STCNT0|001|005930^093015^71300^5^1.2", map[string]float64{"005930": 71300}},
		{"json control frame", `{"header":{"tr_id":"PINGPONG"}}`, map[string]float64{}},
		{"other tr_id", "0|H0STASP0|001|005930^093015^71200", map[string]float64{}},
		{"short payload", "0|H0STCNT0|001|005930^093015", map[string]float64{}},
		{"zero price", "0|H0STCNT0|001|005930^093015^0", map[string]float64{}},
		{"garbage price", "0|H0STCNT0|001|005930^093015^abc", map[string]float64{}},
		{"empty ticker", "0|H0STCNT0|001|^093015^71200", map[string]float64{}},
		{"truncated frame", "0|H0STCNT0", map[string]float64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feed := &QuoteFeed{prices: make(map[string]float64)}
			feed.handleMessage([]byte(tt.msg))
			got := feed.Prices()
			if len(got) != len(tt.want) {
				t.Fatalf("prices = %v, want %v", got, tt.want)
			}
			for ticker, price := range tt.want {
				if got[ticker] != price {
					t.Errorf("prices[%s] = %v, want %v", ticker, got[ticker], price)
				}
			}
		})
	}
}

func TestHandleMessage_LastTickWins(t *testing.T) {
	feed := &QuoteFeed{prices: make(map[string]float64)}
	feed.handleMessage([]byte("0|H0STCNT0|001|005930^093015^71200"))
	feed.handleMessage([]byte("0|H0STCNT0|001|005930^093016^71350"))
	if got := feed.Prices()["005930"]; got != 71350 {
		t.Errorf("price = %v, want 71350", got)
	}
}
