// Package deliver pushes finished artifacts to an external drop point over a
// webhook. Delivery is always best-effort from the caller's perspective.
package deliver

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

	"clipscribe/internal/domain"
)

// Metadata describes the delivered artifact for the receiving end.
type Metadata struct {
	Title    string  `json:"title,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	Source   string  `json:"source,omitempty"`
}

// Webhook sends artifact files to a configured external endpoint.
type Webhook struct {
	url    string
	logger *log.Logger
	client *http.Client
}

// NewWebhook constructs a delivery gateway. An empty URL yields an
// unconfigured gateway whose sends fail with a delivery error.
func NewWebhook(url string, logger *log.Logger) *Webhook {
	return &Webhook{
		url:    strings.TrimSpace(url),
		logger: logger,
		client: &http.Client{Timeout: 2 * time.Minute},
	}
}

// Configured reports whether a destination endpoint is set.
func (w *Webhook) Configured() bool {
	return w.url != ""
}

// Send uploads the file and its metadata as a multipart request and returns
// the endpoint's response body.
func (w *Webhook) Send(ctx context.Context, filePath string, meta Metadata) (string, error) {
	if !w.Configured() {
		return "", domain.E(domain.KindDelivery, "delivery webhook URL not configured", nil)
	}

	f, err := os.Open(filePath)
	if err != nil {
		return "", domain.E(domain.KindDelivery, fmt.Sprintf("open artifact %s", filePath), err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return "", domain.E(domain.KindDelivery, "create form file", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return "", domain.E(domain.KindDelivery, "copy artifact content", err)
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return "", domain.E(domain.KindDelivery, "encode metadata", err)
	}
	if err := mw.WriteField("metadata", string(metaJSON)); err != nil {
		return "", domain.E(domain.KindDelivery, "write metadata field", err)
	}
	if err := mw.Close(); err != nil {
		return "", domain.E(domain.KindDelivery, "close multipart writer", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, &buf)
	if err != nil {
		return "", domain.E(domain.KindDelivery, "create delivery request", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	w.logger.Info("delivering artifact", "file", filePath)
	resp, err := w.client.Do(req)
	if err != nil {
		return "", domain.E(domain.KindDelivery, "delivery request", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", domain.E(domain.KindDelivery,
			fmt.Sprintf("delivery endpoint status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}
	return string(body), nil
}
