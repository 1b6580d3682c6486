// Package notify delivers approval-channel notifications. Delivery is best
// effort: the confirmation pipeline never fails because a notification did.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Notifier sends a message to the approval channel.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// TelegramNotifier posts messages to a Telegram chat through the bot API.
type TelegramNotifier struct {
	baseURL string
	token   string
	chatID  string
	client  *http.Client
}

// NewTelegramNotifier creates a notifier for the given bot token and chat.
func NewTelegramNotifier(token, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		baseURL: "https://api.telegram.org",
		token:   token,
		chatID:  chatID,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// NewTelegramNotifierWithBase creates a notifier against a custom API base URL.
func NewTelegramNotifierWithBase(baseURL, token, chatID string) *TelegramNotifier {
	n := NewTelegramNotifier(token, chatID)
	n.baseURL = baseURL
	return n
}

// Notify sends an HTML-formatted message.
func (n *TelegramNotifier) Notify(ctx context.Context, text string) error {
	payload := map[string]string{
		"chat_id":    n.chatID,
		"text":       text,
		"parse_mode": "HTML",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}
	return nil
}

// FireAndForget sends a notification in the background and only logs failures.
// The send uses its own timeout so it survives the caller's context.
func FireAndForget(n Notifier, text string) {
	if n == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := n.Notify(ctx, text); err != nil {
			log.Printf("notification failed: %v", err)
		}
	}()
}
