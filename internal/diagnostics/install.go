package diagnostics

import (
	"context"
	"strings"
	"time"

	execute "github.com/alexellis/go-execute/v2"
	"github.com/charmbracelet/log"
)

// updateTimeout bounds the startup yt-dlp self-update.
const updateTimeout = 2 * time.Minute

// UpdateYTDLP upgrades yt-dlp through pip. Sources change their formats
// often enough that a stale extractor is the most common failure mode, so the
// upgrade runs at startup; failure is logged and never blocks the server.
func UpdateYTDLP(ctx context.Context, logger *log.Logger) {
	ctx, cancel := context.WithTimeout(ctx, updateTimeout)
	defer cancel()

	task := execute.ExecTask{
		Command: "pip",
		Args:    []string{"install", "-U", "yt-dlp"},
	}

	res, err := task.Execute(ctx)
	if err != nil {
		logger.Warn("yt-dlp update failed", "error", err)
		return
	}
	if res.ExitCode != 0 {
		logger.Warn("yt-dlp update failed", "exitCode", res.ExitCode, "stderr", firstLine(res.Stderr))
		return
	}
	logger.Info("yt-dlp is up to date")
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
