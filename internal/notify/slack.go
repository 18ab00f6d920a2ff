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

const slackTimeout = 10 * time.Second

// SlackMessage is an incoming-webhook payload with optional attachment
// fields.
type SlackMessage struct {
	Text        string            `json:"text"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

// SlackAttachment colors a block of fields in the ops channel.
type SlackAttachment struct {
	Color  string       `json:"color,omitempty"`
	Title  string       `json:"title,omitempty"`
	Text   string       `json:"text,omitempty"`
	Fields []SlackField `json:"fields,omitempty"`
}

// SlackField is one key/value pair inside an attachment.
type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// SlackClient posts to a Slack incoming webhook.
type SlackClient struct {
	httpClient *http.Client
	webhookURL string
	logger     *logging.Logger
}

// NewSlackClient creates a Slack webhook client. Returns nil when no
// webhook URL is configured, so callers can nil-check instead of branching
// on config.
func NewSlackClient(webhookURL string, logger *logging.Logger) *SlackClient {
	if webhookURL == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SlackClient{
		httpClient: &http.Client{Timeout: slackTimeout},
		webhookURL: webhookURL,
		logger:     logger,
	}
}

// Post sends the message to the webhook.
func (c *SlackClient) Post(ctx context.Context, msg SlackMessage) error {
	if c == nil {
		return nil
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("notify: marshal slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("notify: build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: slack post failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return fmt.Errorf("notify: slack returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
