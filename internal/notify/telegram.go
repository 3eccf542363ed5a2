// Package notify delivers profile announcements to a Telegram chat.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"smartbudget/internal/core"
)

// ErrNotificationFailed marks any delivery that did not get a 2xx answer.
var ErrNotificationFailed = errors.New("notification failed")

// DefaultAPIURL is the public Bot API endpoint.
const DefaultAPIURL = "https://api.telegram.org"

// Telegram sends messages through the Bot API sendMessage method.
type Telegram struct {
	apiURL string
	token  string
	chatID string
	client *http.Client
}

// NewTelegram creates a notifier for chatID. An empty apiURL means the
// public Bot API.
func NewTelegram(apiURL, token, chatID string) *Telegram {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &Telegram{
		apiURL: strings.TrimRight(apiURL, "/"),
		token:  token,
		chatID: chatID,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// Send posts text as an HTML-formatted message.
func (t *Telegram) Send(ctx context.Context, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: t.chatID, Text: text, ParseMode: "HTML"})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	endpoint := t.apiURL + "/bot" + t.token + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrNotificationFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// The URL carries the bot token; keep it out of the error.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("%w: %v", ErrNotificationFailed, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrNotificationFailed, resp.StatusCode)
	}
	return nil
}

// NotifyProfile announces a newly registered profile.
func (t *Telegram) NotifyProfile(ctx context.Context, p core.Profile) error {
	return t.Send(ctx, ProfileMessage(p))
}
