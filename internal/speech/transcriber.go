package speech

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
	deepgramBaseURL   = "https://api.deepgram.com"
	transcribeTimeout = 60 * time.Second
)

// MediaDownloader fetches provider media bytes by id. The WhatsApp client
// provides this.
type MediaDownloader interface {
	DownloadMedia(ctx context.Context, mediaID string) (data []byte, mimeType string, err error)
}

// Transcriber converts audio to text through a Deepgram-style REST API.
type Transcriber struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	media      MediaDownloader
	logger     *logging.Logger
}

// NewTranscriber constructs a transcriber. media may be nil when only raw
// Transcribe calls are needed.
func NewTranscriber(baseURL, apiKey string, media MediaDownloader, logger *logging.Logger) *Transcriber {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = deepgramBaseURL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Transcriber{
		httpClient: &http.Client{Timeout: transcribeTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		media:      media,
		logger:     logger,
	}
}

type deepgramResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Transcribe sends raw audio to the speech API and returns the best
// transcript.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("speech: empty audio")
	}
	if mimeType == "" {
		mimeType = "audio/ogg"
	}

	url := t.baseURL + "/v1/listen?model=nova-2&smart_format=true&language=en-GB"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("speech: build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+t.apiKey)
	req.Header.Set("Content-Type", mimeType)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("speech: transcription request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("speech: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("speech: transcription API returned %d: %s", resp.StatusCode, truncate(body, 300))
	}

	var parsed deepgramResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("speech: decode response: %w", err)
	}
	for _, ch := range parsed.Results.Channels {
		for _, alt := range ch.Alternatives {
			if strings.TrimSpace(alt.Transcript) != "" {
				return strings.TrimSpace(alt.Transcript), nil
			}
		}
	}
	return "", fmt.Errorf("speech: no transcript in response")
}

// TranscribeMedia fetches a provider media object and transcribes it.
// This is the conversation worker's MediaTranscriber.
func (t *Transcriber) TranscribeMedia(ctx context.Context, mediaID string) (string, error) {
	if t.media == nil {
		return "", fmt.Errorf("speech: no media downloader configured")
	}
	audio, mimeType, err := t.media.DownloadMedia(ctx, mediaID)
	if err != nil {
		return "", fmt.Errorf("speech: fetch media %s: %w", mediaID, err)
	}
	return t.Transcribe(ctx, audio, mimeType)
}

func truncate(b []byte, n int) string {
	s := string(b)
	if len(s) > n {
		return s[:n]
	}
	return s
}
