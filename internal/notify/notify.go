// Package notify delivers operator status messages. Senders are
// fire-and-forget: delivery failures are logged, never returned into
// the trading path.
package notify

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Notifier sends one operator-facing message.
type Notifier interface {
	Send(ctx context.Context, text string)
}

// Nop discards all messages.
type Nop struct{}

func (Nop) Send(context.Context, string) {}

// Telegram sends messages through the Bot API.
type Telegram struct {
	token  string
	chatID string
	client *http.Client
	logger *log.Logger
}

const telegramMaxLen = 3900

// NewTelegram creates a Telegram notifier. client nil uses a 10s
// timeout default; logger nil uses the standard logger.
func NewTelegram(token, chatID string, client *http.Client, logger *log.Logger) *Telegram {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Telegram{token: token, chatID: chatID, client: client, logger: logger}
}

// Send posts text to the configured chat. Messages over the Bot API
// limit are truncated. Failures are logged and swallowed.
func (t *Telegram) Send(ctx context.Context, text string) {
	if t.token == "" || t.chatID == "" {
		return
	}
	if r := []rune(text); len(r) > telegramMaxLen {
		text = string(r[:telegramMaxLen]) + "…"
	}
	endpoint := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.token)
	form := url.Values{
		"chat_id":                  {t.chatID},
		"text":                     {text},
		"disable_web_page_preview": {"true"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		t.logger.Printf("notify: build request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.Printf("notify: send: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		t.logger.Printf("notify: telegram status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}
