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
	elevenLabsBaseURL = "https://api.elevenlabs.io"
	synthesizeTimeout = 60 * time.Second
)

// AudioUploader stores synthesized audio and returns a publicly fetchable
// URL. The S3 audio store provides this.
type AudioUploader interface {
	UploadAudio(ctx context.Context, data []byte, contentType string) (string, error)
}

// Synthesizer produces speech audio through an ElevenLabs-style REST API.
type Synthesizer struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	voiceID    string
	uploader   AudioUploader
	logger     *logging.Logger
}

// NewSynthesizer constructs a synthesizer. uploader may be nil when only
// raw Synthesize calls are needed.
func NewSynthesizer(baseURL, apiKey, voiceID string, uploader AudioUploader, logger *logging.Logger) *Synthesizer {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = elevenLabsBaseURL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Synthesizer{
		httpClient: &http.Client{Timeout: synthesizeTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		voiceID:    voiceID,
		uploader:   uploader,
		logger:     logger,
	}
}

type synthesisRequest struct {
	Text          string `json:"text"`
	ModelID       string `json:"model_id"`
	VoiceSettings struct {
		Stability       float64 `json:"stability"`
		SimilarityBoost float64 `json:"similarity_boost"`
	} `json:"voice_settings"`
}

// Synthesize returns MP3 audio for the given text.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("speech: empty synthesis text")
	}

	reqBody := synthesisRequest{Text: text, ModelID: "eleven_turbo_v2_5"}
	reqBody.VoiceSettings.Stability = 0.5
	reqBody.VoiceSettings.SimilarityBoost = 0.75

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("speech: marshal synthesis request: %w", err)
	}

	url := s.baseURL + "/v1/text-to-speech/" + s.voiceID
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("speech: build request: %w", err)
	}
	req.Header.Set("xi-api-key", s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech: synthesis request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		return nil, fmt.Errorf("speech: synthesis API returned %d: %s", resp.StatusCode, string(body))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("speech: read audio: %w", err)
	}
	return audio, nil
}

// SynthesizeToURL produces audio and uploads it, returning the hosted
// URL. This is the conversation worker's VoiceSynthesizer.
func (s *Synthesizer) SynthesizeToURL(ctx context.Context, text string) (string, error) {
	if s.uploader == nil {
		return "", fmt.Errorf("speech: no audio uploader configured")
	}
	audio, err := s.Synthesize(ctx, text)
	if err != nil {
		return "", err
	}
	url, err := s.uploader.UploadAudio(ctx, audio, "audio/mpeg")
	if err != nil {
		return "", fmt.Errorf("speech: upload audio: %w", err)
	}
	return url, nil
}
