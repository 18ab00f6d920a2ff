package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hampstead-renovations/voice-agent/pkg/logging"
)

// HTTPSMSSender posts messages to an SMS gateway's REST API.
type HTTPSMSSender struct {
	apiURL     string
	apiKey     string
	from       string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewHTTPSMSSender creates an SMS sender for the configured gateway.
func NewHTTPSMSSender(apiURL, apiKey, from string, logger *logging.Logger) *HTTPSMSSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &HTTPSMSSender{
		apiURL:     apiURL,
		apiKey:     apiKey,
		from:       from,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

type smsRequest struct {
	To   string `json:"to"`
	From string `json:"from"`
	Text string `json:"text"`
}

// SendSMS sends one message. The gateway is expected to accept a JSON
// body and answer 2xx on success.
func (s *HTTPSMSSender) SendSMS(ctx context.Context, to, body string) error {
	if s.apiURL == "" {
		s.logger.Warn("notify: SMS sender not configured")
		return nil
	}

	payload, err := json.Marshal(smsRequest{To: to, From: s.from, Text: body})
	if err != nil {
		return fmt.Errorf("notify: encode sms: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("notify: build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: send sms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notify: sms gateway returned %d: %s", resp.StatusCode, string(raw))
	}

	s.logger.Debug("sms sent", "to", to)
	return nil
}

var _ SMSSender = (*HTTPSMSSender)(nil)
