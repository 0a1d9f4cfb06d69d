package media

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"clipscribe/internal/domain"
)

// videoFormatSelector prefers combined mp4 video+audio, falling back to the
// best overall rendition the source offers.
const videoFormatSelector = "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"

// Downloader wraps the yt-dlp CLI for metadata, media, and subtitle fetches.
// Every invocation runs under its own timeout budget on top of whatever
// deadline the caller's context carries.
type Downloader struct {
	binPath string
	timeout time.Duration
	runner  Runner
	logger  *log.Logger
	readDir func(string) ([]os.DirEntry, error)
}

// NewDownloader constructs a downloader with OS dependencies and a per-call
// timeout.
func NewDownloader(binPath string, timeout time.Duration, logger *log.Logger) *Downloader {
	return &Downloader{
		binPath: binPath,
		timeout: timeout,
		runner:  NewRunner(),
		logger:  logger,
		readDir: os.ReadDir,
	}
}

// NewDownloaderForTests constructs a downloader with injectable dependencies.
func NewDownloaderForTests(binPath string, runner Runner, readDir func(string) ([]os.DirEntry, error)) *Downloader {
	return &Downloader{
		binPath: binPath,
		runner:  runner,
		logger:  log.New(io.Discard),
		readDir: readDir,
	}
}

// opCtx bounds a single yt-dlp invocation by the configured timeout.
func (d *Downloader) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d.timeout)
}

// mediaInfoJSON mirrors the yt-dlp -J dump fields the service reads.
type mediaInfoJSON struct {
	Title       string  `json:"title"`
	Duration    float64 `json:"duration"`
	Thumbnail   string  `json:"thumbnail"`
	Description string  `json:"description"`
	Uploader    string  `json:"uploader"`
	ViewCount   int64   `json:"view_count"`
	UploadDate  string  `json:"upload_date"`
	Formats     []struct {
		FormatID   string `json:"format_id"`
		Ext        string `json:"ext"`
		Resolution string `json:"resolution"`
		FormatNote string `json:"format_note"`
	} `json:"formats"`
}

// FetchInfo retrieves source metadata without downloading any media.
func (d *Downloader) FetchInfo(ctx context.Context, sourceURL string) (domain.MediaInfo, error) {
	ctx, cancel := d.opCtx(ctx)
	defer cancel()

	cmdLog, err := d.runner.Run(ctx, d.binPath, "-J", "--no-playlist", sourceURL)
	if err != nil {
		return domain.MediaInfo{}, fmt.Errorf("fetch media info: %w: %s", err, firstStderrLine(cmdLog))
	}

	var raw mediaInfoJSON
	if err := json.Unmarshal([]byte(cmdLog.Stdout), &raw); err != nil {
		return domain.MediaInfo{}, fmt.Errorf("parse media info: %w", err)
	}

	info := domain.MediaInfo{
		Title:           raw.Title,
		DurationSeconds: raw.Duration,
		ThumbnailURL:    raw.Thumbnail,
		Description:     raw.Description,
		Uploader:        raw.Uploader,
		ViewCount:       raw.ViewCount,
		UploadDate:      raw.UploadDate,
	}
	for _, f := range raw.Formats {
		info.Formats = append(info.Formats, domain.Format{
			ID:         f.FormatID,
			Ext:        f.Ext,
			Resolution: f.Resolution,
			Note:       f.FormatNote,
		})
	}
	return info, nil
}

// DownloadVideo fetches the source as an mp4 file at outPath.
func (d *Downloader) DownloadVideo(ctx context.Context, sourceURL, outPath string) error {
	args := []string{
		sourceURL,
		"-f", videoFormatSelector,
		"-o", outPath,
	}

	ctx, cancel := d.opCtx(ctx)
	defer cancel()

	d.logger.Info("downloading video", "url", sourceURL, "out", outPath)
	cmdLog, err := d.runner.Run(ctx, d.binPath, args...)
	if err != nil {
		return fmt.Errorf("download video: %w: %s", err, firstStderrLine(cmdLog))
	}
	return nil
}

// DownloadAudio extracts the source's audio track as mp3 at outPath.
func (d *Downloader) DownloadAudio(ctx context.Context, sourceURL, outPath string) error {
	args := []string{
		sourceURL,
		"-x", "--audio-format", "mp3",
		"-o", outPath,
	}

	ctx, cancel := d.opCtx(ctx)
	defer cancel()

	d.logger.Info("downloading audio", "url", sourceURL, "out", outPath)
	cmdLog, err := d.runner.Run(ctx, d.binPath, args...)
	if err != nil {
		return fmt.Errorf("download audio: %w: %s", err, firstStderrLine(cmdLog))
	}
	return nil
}

// DownloadSubtitles requests a subtitle track without downloading media.
// When auto is false only manually-authored tracks are requested; when true,
// auto-generated captions are accepted. It returns the path of the fetched
// .vtt file, or an empty string when the source has none.
func (d *Downloader) DownloadSubtitles(ctx context.Context, sourceURL, outBase string, auto bool) (string, error) {
	subFlag := "--write-sub"
	if auto {
		subFlag = "--write-auto-sub"
	}
	args := []string{
		sourceURL,
		subFlag, "--skip-download",
		"--sub-format", "vtt",
		"-o", outBase,
	}

	ctx, cancel := d.opCtx(ctx)
	defer cancel()

	d.logger.Info("downloading subtitles", "url", sourceURL, "auto", auto)
	if _, err := d.runner.Run(ctx, d.binPath, args...); err != nil {
		return "", fmt.Errorf("download subtitles: %w", err)
	}

	return d.findSubtitleFile(outBase)
}

// findSubtitleFile locates a fetched .vtt file next to outBase. yt-dlp
// appends language suffixes, so any "<base>*.vtt" match counts.
func (d *Downloader) findSubtitleFile(outBase string) (string, error) {
	dir := filepath.Dir(outBase)
	base := filepath.Base(outBase)

	entries, err := d.readDir(dir)
	if err != nil {
		return "", fmt.Errorf("scan subtitle directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, base) && strings.HasSuffix(name, ".vtt") {
			return filepath.Join(dir, name), nil
		}
	}
	return "", nil
}

// firstStderrLine trims command output down to the leading stderr line for
// human-readable error messages.
func firstStderrLine(cmdLog CommandLog) string {
	stderr := strings.TrimSpace(cmdLog.Stderr)
	if stderr == "" {
		return "no error output"
	}
	if i := strings.IndexByte(stderr, '\n'); i > 0 {
		return stderr[:i]
	}
	return stderr
}
