package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"craiseek/config"
	"craiseek/models"
)

const twilioAPIBase = "https://api.twilio.com"

// TwilioSender delivers SMS through the Twilio Messages API.
type TwilioSender struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	client     *http.Client
}

func NewTwilioSender(cfg config.TwilioConfig) *TwilioSender {
	return &TwilioSender{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       cfg.FromNumber,
		baseURL:    twilioAPIBase,
		client:     &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *TwilioSender) Channel() models.Channel {
	return models.ChannelSMS
}

func (s *TwilioSender) Send(ctx context.Context, address, message string) error {
	if address == "" {
		return &DeliveryError{Kind: KindInvalidAddress}
	}

	form := url.Values{}
	form.Set("To", address)
	form.Set("From", s.from)
	form.Set("Body", message)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, s.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(s.accountSID, s.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	de := classifyStatus(resp.StatusCode)
	if body, readErr := io.ReadAll(io.LimitReader(resp.Body, 512)); readErr == nil && len(body) > 0 {
		de.Cause = fmt.Errorf("twilio: %s", strings.TrimSpace(string(body)))
	}
	return de
}
