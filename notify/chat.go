package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"craiseek/config"
	"craiseek/models"
)

// ChatSender posts alerts to an in-app chat webhook. The webhook side
// resolves the handle to a device; a 404 means the handle is unknown.
type ChatSender struct {
	webhookURL string
	authToken  string
	client     *http.Client
}

func NewChatSender(cfg config.ChatConfig) *ChatSender {
	return &ChatSender{
		webhookURL: cfg.WebhookURL,
		authToken:  cfg.AuthToken,
		client:     &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *ChatSender) Channel() models.Channel {
	return models.ChannelChat
}

type chatPayload struct {
	Handle string `json:"handle"`
	Text   string `json:"text"`
}

func (s *ChatSender) Send(ctx context.Context, address, message string) error {
	if address == "" {
		return &DeliveryError{Kind: KindInvalidAddress}
	}

	body, err := json.Marshal(chatPayload{Handle: address, Text: message})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.authToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	de := classifyStatus(resp.StatusCode)
	if respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 512)); readErr == nil && len(respBody) > 0 {
		de.Cause = fmt.Errorf("chat webhook: %s", strings.TrimSpace(string(respBody)))
	}
	return de
}
