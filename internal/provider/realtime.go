package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// KIS realtime endpoints and the trade-tick transaction.
const (
	kisLiveWSEndpoint  = "ws://ops.koreainvestment.com:21000"
	kisPaperWSEndpoint = "ws://ops.koreainvestment.com:31000"
	tradeTickTrID      = "H0STCNT0"

	// KIS caps realtime registrations per approval key.
	maxQuoteSubscriptions = 40
)

// QuoteSource is the read side of a realtime price stream.
type QuoteSource interface {
	Prices() map[string]float64
	Close() error
}

// QuoteFeedConfig configures the realtime feed's timing. A non-empty
// Endpoint overrides the KIS endpoint selection.
type QuoteFeedConfig struct {
	Endpoint          string
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
}

// DefaultQuoteFeedConfig returns the production feed configuration.
func DefaultQuoteFeedConfig() QuoteFeedConfig {
	return QuoteFeedConfig{
		ReconnectDelay:    time.Second,
		MaxReconnectDelay: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// QuoteFeed maintains a best-effort latest-price map from the KIS
// realtime trade stream. It is an optional freshness layer between
// scans; the hourly pipeline works without it.
type QuoteFeed struct {
	endpoint    string
	approvalKey string
	tickers     []string
	config      QuoteFeedConfig

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	prices   map[string]float64
	pricesMu sync.RWMutex

	done chan struct{}
	wg   sync.WaitGroup
}

// Compile-time interface check.
var _ QuoteSource = (*QuoteFeed)(nil)

// NewQuoteFeed connects and subscribes the given tickers, truncating
// past the registration cap. approvalKey is the KIS websocket approval
// key issued alongside the REST token.
func NewQuoteFeed(ctx context.Context, approvalKey string, tickers []string, isPaper bool, config *QuoteFeedConfig) (*QuoteFeed, error) {
	cfg := DefaultQuoteFeedConfig()
	if config != nil {
		cfg = *config
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = kisLiveWSEndpoint
		if isPaper {
			endpoint = kisPaperWSEndpoint
		}
	}
	if len(tickers) > maxQuoteSubscriptions {
		tickers = tickers[:maxQuoteSubscriptions]
	}
	f := &QuoteFeed{
		endpoint:    endpoint,
		approvalKey: approvalKey,
		tickers:     tickers,
		config:      cfg,
		prices:      make(map[string]float64),
		done:        make(chan struct{}),
	}
	if err := f.connect(ctx); err != nil {
		return nil, err
	}
	if err := f.subscribeAll(); err != nil {
		f.closeConn()
		return nil, err
	}
	f.wg.Add(1)
	go f.readLoop()
	return f, nil
}

func (f *QuoteFeed) connect(ctx context.Context) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.endpoint, nil)
	if err != nil {
		return fmt.Errorf("quote feed dial: %w", err)
	}
	f.conn = conn
	return nil
}

type subscribeRequest struct {
	Header subscribeHeader `json:"header"`
	Body   subscribeBody   `json:"body"`
}

type subscribeHeader struct {
	ApprovalKey string `json:"approval_key"`
	CustType    string `json:"custtype"`
	TrType      string `json:"tr_type"`
	ContentType string `json:"content-type"`
}

type subscribeBody struct {
	Input subscribeInput `json:"input"`
}

type subscribeInput struct {
	TrID  string `json:"tr_id"`
	TrKey string `json:"tr_key"`
}

func (f *QuoteFeed) subscribeAll() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	for _, ticker := range f.tickers {
		req := subscribeRequest{
			Header: subscribeHeader{
				ApprovalKey: f.approvalKey,
				CustType:    "P",
				TrType:      "1",
				ContentType: "utf-8",
			},
			Body: subscribeBody{Input: subscribeInput{TrID: tradeTickTrID, TrKey: ticker}},
		}
		buf, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("quote feed subscribe: %w", err)
		}
		f.conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
		if err := f.conn.WriteMessage(websocket.TextMessage, buf); err != nil {
			return fmt.Errorf("quote feed subscribe %s: %w", ticker, err)
		}
	}
	return nil
}

// readLoop consumes messages until Close, reconnecting with capped
// exponential backoff on read errors.
func (f *QuoteFeed) readLoop() {
	defer f.wg.Done()
	delay := f.config.ReconnectDelay
	for {
		select {
		case <-f.done:
			return
		default:
		}
		f.connMu.Lock()
		conn := f.conn
		f.connMu.Unlock()
		if conn == nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(f.config.ReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if f.closed.Load() {
				return
			}
			select {
			case <-f.done:
				return
			case <-time.After(delay):
			}
			if delay *= 2; delay > f.config.MaxReconnectDelay {
				delay = f.config.MaxReconnectDelay
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := f.connect(ctx); err == nil {
				_ = f.subscribeAll()
				delay = f.config.ReconnectDelay
			}
			cancel()
			continue
		}
		f.handleMessage(msg)
	}
}

// handleMessage parses one realtime frame. Data frames are pipe
// delimited: encrypted|tr_id|count|payload, with payload fields caret
// delimited (ticker^time^price^...). Control frames are JSON and are
// ignored.
func (f *QuoteFeed) handleMessage(msg []byte) {
	text := string(msg)
	if !strings.HasPrefix(text, "0|") && !strings.HasPrefix(text, "1|") {
		return
	}
	parts := strings.SplitN(text, "|", 4)
	if len(parts) < 4 || parts[1] != tradeTickTrID {
		return
	}
	fields := strings.Split(parts[3], "^")
	if len(fields) < 3 {
		return
	}
	ticker := fields[0]
	price := toFloat(fields[2])
	if ticker == "" || price <= 0 {
		return
	}
	f.pricesMu.Lock()
	f.prices[ticker] = price
	f.pricesMu.Unlock()
}

// Prices returns a snapshot of the latest observed prices.
func (f *QuoteFeed) Prices() map[string]float64 {
	f.pricesMu.RLock()
	defer f.pricesMu.RUnlock()
	out := make(map[string]float64, len(f.prices))
	for k, v := range f.prices {
		out[k] = v
	}
	return out
}

// Close stops the feed and closes the connection.
func (f *QuoteFeed) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(f.done)
	err := f.closeConn()
	f.wg.Wait()
	return err
}

func (f *QuoteFeed) closeConn() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return nil
	}
	err := f.conn.Close()
	f.conn = nil
	return err
}
