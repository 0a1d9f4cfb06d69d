// Package transcribe obtains transcript text for audio artifacts, first
// through a speech-to-text API and then through subtitle fallbacks.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const (
	defaultWhisperURL = "https://api.openai.com/v1/audio/transcriptions"
	whisperModel      = "whisper-1"
)

// WhisperClient calls the OpenAI transcription API over REST.
type WhisperClient struct {
	apiKey   string
	endpoint string
	logger   *log.Logger
	client   *http.Client
}

// NewWhisperClient constructs a client with the given per-call timeout.
func NewWhisperClient(apiKey string, timeout time.Duration, logger *log.Logger) *WhisperClient {
	return &WhisperClient{
		apiKey:   apiKey,
		endpoint: defaultWhisperURL,
		logger:   logger,
		client:   &http.Client{Timeout: timeout},
	}
}

// NewWhisperClientForTests constructs a client pointed at a fake endpoint.
func NewWhisperClientForTests(apiKey, endpoint string, logger *log.Logger) *WhisperClient {
	return &WhisperClient{
		apiKey:   apiKey,
		endpoint: endpoint,
		logger:   logger,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// whisperResponse is the JSON response from the transcription API.
type whisperResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads the audio file and returns the transcript text.
func (c *WhisperClient) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return "", fmt.Errorf("transcription API key is not configured")
	}

	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fw, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return "", fmt.Errorf("copy audio file: %w", err)
	}
	if err := w.WriteField("model", whisperModel); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", w.FormDataContentType())

	c.logger.Info("transcribing audio", "file", audioPath)
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription API status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result whisperResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decode transcription response: %w", err)
	}
	return result.Text, nil
}
