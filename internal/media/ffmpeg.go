package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// voiceIsolationFilters extracts the center channel where vocals are usually
// mixed, then normalizes and compresses to bring speech forward.
var voiceIsolationFilters = []string{
	"pan=stereo|c0=c0|c1=c1",
	"stereotools=phasel=1",
	"pan=mono|c0=0.5*c0+0.5*c1",
	"loudnorm=I=-16:TP=-1.5:LRA=11",
	"acompressor=threshold=0.089:ratio=9:attack=200:release=1000",
}

// Processor wraps the ffmpeg CLI for audio filtering, clipping, and remote
// artifact fetches.
type Processor struct {
	binPath string
	timeout time.Duration
	runner  Runner
	logger  *log.Logger
	stat    func(string) (os.FileInfo, error)
	rename  func(oldpath, newpath string) error
	remove  func(string) error
}

// NewProcessor constructs a processor with OS dependencies and a per-call
// timeout.
func NewProcessor(binPath string, timeout time.Duration, logger *log.Logger) *Processor {
	return &Processor{
		binPath: binPath,
		timeout: timeout,
		runner:  NewRunner(),
		logger:  logger,
		stat:    os.Stat,
		rename:  os.Rename,
		remove:  os.Remove,
	}
}

// NewProcessorForTests constructs a processor with injectable dependencies.
func NewProcessorForTests(
	binPath string,
	runner Runner,
	stat func(string) (os.FileInfo, error),
	rename func(oldpath, newpath string) error,
	remove func(string) error,
) *Processor {
	return &Processor{
		binPath: binPath,
		runner:  runner,
		logger:  log.New(io.Discard),
		stat:    stat,
		rename:  rename,
		remove:  remove,
	}
}

// opCtx bounds a single ffmpeg invocation by the configured timeout.
func (p *Processor) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.timeout)
}

// IsolateVoice rewrites the audio file at path with a vocal-isolation
// variant. The filter output goes to a temporary sibling file that replaces
// the original only after ffmpeg succeeds, so a failure never leaves a
// partially-written artifact behind.
func (p *Processor) IsolateVoice(ctx context.Context, path string) error {
	if _, err := p.stat(path); err != nil {
		return fmt.Errorf("original audio file not found: %s: %w", path, err)
	}

	tempPath := processedPath(path)
	args := []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", path,
		"-af", strings.Join(voiceIsolationFilters, ","),
		tempPath,
	}

	ctx, cancel := p.opCtx(ctx)
	defer cancel()

	p.logger.Info("applying voice isolation", "input", path)
	cmdLog, err := p.runner.Run(ctx, p.binPath, args...)
	if err != nil {
		_ = p.remove(tempPath)
		return fmt.Errorf("voice isolation: %w: %s", err, firstStderrLine(cmdLog))
	}

	if err := p.rename(tempPath, path); err != nil {
		_ = p.remove(tempPath)
		return fmt.Errorf("replace original audio: %w", err)
	}
	return nil
}

// Clip produces a new artifact covering exactly [start, end) seconds of the
// input. The source file is never mutated.
func (p *Processor) Clip(ctx context.Context, inPath, outPath string, startSec, endSec float64) error {
	if endSec <= startSec {
		return fmt.Errorf("clip range invalid: end %v <= start %v", endSec, startSec)
	}

	args := []string{
		"-hide_banner", "-nostdin", "-y",
		"-ss", formatSeconds(startSec),
		"-i", inPath,
		"-t", formatSeconds(endSec - startSec),
		outPath,
	}

	ctx, cancel := p.opCtx(ctx)
	defer cancel()

	p.logger.Info("clipping media", "input", inPath, "start", startSec, "end", endSec)
	cmdLog, err := p.runner.Run(ctx, p.binPath, args...)
	if err != nil {
		return fmt.Errorf("clip media: %w: %s", err, firstStderrLine(cmdLog))
	}
	return nil
}

// FetchRemote downloads an external media URL to a local file by remuxing it
// through ffmpeg.
func (p *Processor) FetchRemote(ctx context.Context, sourceURL, outPath string) error {
	args := []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", sourceURL,
		outPath,
	}

	ctx, cancel := p.opCtx(ctx)
	defer cancel()

	p.logger.Info("fetching remote media", "url", sourceURL, "out", outPath)
	cmdLog, err := p.runner.Run(ctx, p.binPath, args...)
	if err != nil {
		return fmt.Errorf("fetch remote media: %w: %s", err, firstStderrLine(cmdLog))
	}
	return nil
}

// processedPath derives the temporary output path for in-place filtering.
func processedPath(path string) string {
	if i := strings.LastIndexByte(path, '.'); i > 0 {
		return path[:i] + "_processed" + path[i:]
	}
	return path + "_processed"
}

// formatSeconds renders a duration in seconds for ffmpeg arguments.
func formatSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}
