package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hampstead-renovations/voice-agent/pkg/logging"
)

const (
	defaultBaseURL = "https://waba.360dialog.io"
	defaultTimeout = 30 * time.Second
	maxMediaBytes  = 16 << 20
)

// Client sends and fetches WhatsApp messages through a 360dialog-style
// Business API gateway. It satisfies the conversation worker's
// ReplyMessenger interface.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *logging.Logger
}

// NewClient constructs a WhatsApp gateway client.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *logging.Logger) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		logger:     logger,
	}
}

// SendText delivers a plain text message to the customer.
func (c *Client) SendText(ctx context.Context, phone, text string) error {
	msg := outboundText{
		MessagingProduct: "whatsapp",
		To:               phone,
		Type:             "text",
	}
	msg.Text.Body = text

	if err := c.post(ctx, "/messages", msg); err != nil {
		return fmt.Errorf("whatsapp: send text: %w", err)
	}
	return nil
}

// SendAudio delivers an audio message referencing a hosted file.
func (c *Client) SendAudio(ctx context.Context, phone, audioURL string) error {
	msg := outboundAudio{
		MessagingProduct: "whatsapp",
		To:               phone,
		Type:             "audio",
	}
	msg.Audio.Link = audioURL

	if err := c.post(ctx, "/messages", msg); err != nil {
		return fmt.Errorf("whatsapp: send audio: %w", err)
	}
	return nil
}

// DownloadMedia resolves a media id to its download URL and fetches the
// bytes. Voice notes arrive as OGG/Opus.
func (c *Client) DownloadMedia(ctx context.Context, mediaID string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+mediaID, nil)
	if err != nil {
		return nil, "", fmt.Errorf("whatsapp: build media request: %w", err)
	}
	req.Header.Set("D360-API-KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("whatsapp: resolve media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("whatsapp: media lookup returned %d", resp.StatusCode)
	}

	var meta mediaURLResponse
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, "", fmt.Errorf("whatsapp: decode media lookup: %w", err)
	}
	if meta.URL == "" {
		return nil, "", fmt.Errorf("whatsapp: media %s has no download URL", mediaID)
	}

	dlReq, err := http.NewRequestWithContext(ctx, http.MethodGet, meta.URL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("whatsapp: build download request: %w", err)
	}
	dlReq.Header.Set("D360-API-KEY", c.apiKey)

	dlResp, err := c.httpClient.Do(dlReq)
	if err != nil {
		return nil, "", fmt.Errorf("whatsapp: download media: %w", err)
	}
	defer dlResp.Body.Close()
	if dlResp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("whatsapp: media download returned %d", dlResp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(dlResp.Body, maxMediaBytes))
	if err != nil {
		return nil, "", fmt.Errorf("whatsapp: read media: %w", err)
	}
	return data, meta.MimeType, nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("D360-API-KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		c.logger.Warn("whatsapp API non-2xx response", "status", resp.StatusCode, "path", path, "body", string(respBody))
		return fmt.Errorf("whatsapp API returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
