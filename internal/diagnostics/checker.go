// Package diagnostics runs startup checks over external tools, the downloads
// directory, and optional integrations.
package diagnostics

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"clipscribe/internal/config"
	"clipscribe/internal/domain"
)

// Checker validates external tools and required filesystem paths.
type Checker struct {
	lookPath   func(string) (string, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// NewCheckerForTests creates a checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		lookPath:   lookPath,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
	}
}

// Run executes all startup checks and returns a combined report. Missing
// tools and an unwritable downloads directory are failures; absent optional
// integrations only warn.
func (c *Checker) Run(cfg *config.Config) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkTool(cfg.YtDlpPath, "yt-dlp"),
		c.checkTool(cfg.FFmpegPath, "ffmpeg"),
		c.checkDownloadsDir(cfg.DownloadsDir),
		c.checkIntegration("openai", "Transcription and chat", cfg.HasOpenAI(),
			"Set OPENAI_API_KEY to enable Whisper transcription and the chat assistant."),
		c.checkIntegration("supabase", "Knowledge base", cfg.HasSupabase(),
			"Set SUPABASE_URL and SUPABASE_SERVICE_KEY to persist processed media."),
		c.checkIntegration("delivery", "Document delivery", cfg.HasDelivery(),
			"Set GOOGLE_DRIVE_WEBHOOK_URL to forward exported documents."),
		c.checkIntegration("billing", "Billing", cfg.HasStripe(),
			"Set STRIPE_SECRET_KEY to enable subscription checkout."),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkTool verifies a required CLI executable is resolvable.
func (c *Checker) checkTool(configured, name string) domain.DiagnosticItem {
	bin := strings.TrimSpace(configured)
	if bin == "" {
		bin = name
	}

	path, err := c.lookPath(bin)
	if err != nil {
		return domain.DiagnosticItem{
			ID:      "tool_" + name,
			Name:    name,
			Status:  domain.DiagnosticStatusFail,
			Message: fmt.Sprintf("Tool not found in PATH: %s", bin),
			Hint:    "Install it and ensure the binary is available on PATH before processing media.",
		}
	}

	return domain.DiagnosticItem{
		ID:      "tool_" + name,
		Name:    name,
		Status:  domain.DiagnosticStatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}
}

// checkDownloadsDir validates artifact directory existence and write access.
func (c *Checker) checkDownloadsDir(dir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "downloads_dir",
		Name: "Downloads directory",
	}

	if strings.TrimSpace(dir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Downloads directory is empty."
		item.Hint = "Set DOWNLOADS_DIR to a writable location for artifacts."
		return item
	}

	if err := c.mkdirAll(dir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create downloads directory: %s", dir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Downloads directory is not writable: %s", dir)
		item.Hint = "Choose a writable directory for artifacts."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dir)
	return item
}

// checkIntegration reports an optional integration as pass or warn.
func (c *Checker) checkIntegration(id, name string, configured bool, hint string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "integration_" + id,
		Name: name,
	}
	if configured {
		item.Status = domain.DiagnosticStatusPass
		item.Message = "Configured."
		return item
	}
	item.Status = domain.DiagnosticStatusWarn
	item.Message = "Not configured; related features are disabled."
	item.Hint = hint
	return item
}
