// Package orchestrator drives a media request through acquisition,
// post-processing, transcription, export, and best-effort persistence.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"clipscribe/internal/deliver"
	"clipscribe/internal/domain"
	"clipscribe/internal/store"
	"clipscribe/internal/subtitle"
	"clipscribe/internal/transcribe"
)

// Acquirer fetches source metadata and downloads media and subtitle tracks.
type Acquirer interface {
	FetchInfo(ctx context.Context, sourceURL string) (domain.MediaInfo, error)
	DownloadVideo(ctx context.Context, sourceURL, outPath string) error
	DownloadAudio(ctx context.Context, sourceURL, outPath string) error
	DownloadSubtitles(ctx context.Context, sourceURL, outBase string, auto bool) (string, error)
}

// PostProcessor transforms downloaded media files in place or into new files.
type PostProcessor interface {
	IsolateVoice(ctx context.Context, path string) error
	Clip(ctx context.Context, inPath, outPath string, startSec, endSec float64) error
	FetchRemote(ctx context.Context, sourceURL, outPath string) error
}

// Transcriber converts an audio file to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// DocumentExporter renders a subtitle track into a document file.
type DocumentExporter interface {
	Export(vttPath, docPath, title string) error
}

// Persistence records processed media in the knowledge base. Optional.
type Persistence interface {
	SaveMediaItem(ctx context.Context, item store.MediaItem) (string, error)
	SaveTranscript(ctx context.Context, t store.Transcript) (string, error)
}

// Deliverer forwards finished documents to an external drop point. Optional.
type Deliverer interface {
	Configured() bool
	Send(ctx context.Context, filePath string, meta deliver.Metadata) (string, error)
}

// Deps bundles the collaborators the orchestrator drives. Persistence and
// Delivery may be nil; the corresponding steps are skipped.
type Deps struct {
	Acquirer    Acquirer
	Processor   PostProcessor
	Transcriber Transcriber
	Exporter    DocumentExporter
	Persistence Persistence
	Delivery    Deliverer
	Recorder    *Recorder
	Logger      *log.Logger
}

// Orchestrator owns the per-request processing state machine.
type Orchestrator struct {
	downloadsDir string
	deps         Deps

	readFile     func(string) ([]byte, error)
	writeFile    func(string, []byte, os.FileMode) error
	stat         func(string) (os.FileInfo, error)
	remove       func(string) error
	now          func() time.Time
	newRequestID func() string
}

// New constructs an orchestrator writing artifacts under downloadsDir.
func New(downloadsDir string, deps Deps) *Orchestrator {
	if deps.Recorder == nil {
		deps.Recorder = NewRecorder(0)
	}
	return &Orchestrator{
		downloadsDir: downloadsDir,
		deps:         deps,
		readFile:     os.ReadFile,
		writeFile:    os.WriteFile,
		stat:         os.Stat,
		remove:       os.Remove,
		now:          time.Now,
		newRequestID: func() string { return uuid.New().String() },
	}
}

// NewForTests constructs an orchestrator with injectable filesystem and clock
// behavior.
func NewForTests(downloadsDir string, deps Deps,
	readFile func(string) ([]byte, error),
	writeFile func(string, []byte, os.FileMode) error,
	stat func(string) (os.FileInfo, error),
	remove func(string) error,
	now func() time.Time,
) *Orchestrator {
	o := New(downloadsDir, deps)
	if readFile != nil {
		o.readFile = readFile
	}
	if writeFile != nil {
		o.writeFile = writeFile
	}
	if stat != nil {
		o.stat = stat
	}
	if remove != nil {
		o.remove = remove
	}
	if now != nil {
		o.now = now
	}
	o.newRequestID = func() string { return "test-request" }
	return o
}

// MediaSummary is the metadata echoed back with a successful response.
type MediaSummary struct {
	Title     string `json:"title"`
	Duration  string `json:"duration"`
	Thumbnail string `json:"thumbnail"`
}

// ProcessResult is the successful outcome of a processing request.
type ProcessResult struct {
	Message              string                     `json:"message"`
	FileName             string                     `json:"fileName"`
	Media                MediaSummary               `json:"mediaInfo"`
	Method               domain.TranscriptionMethod `json:"method,omitempty"`
	SavedToKnowledgeBase bool                       `json:"savedToKnowledgeBase"`
	MediaItemID          string                     `json:"mediaItemId,omitempty"`
	TranscriptID         string                     `json:"transcriptId,omitempty"`
	Delivered            bool                       `json:"delivered"`
}

// Info fetches source metadata without starting a processing run.
func (o *Orchestrator) Info(ctx context.Context, sourceURL string) (domain.MediaInfo, error) {
	if strings.TrimSpace(sourceURL) == "" {
		return domain.MediaInfo{}, domain.E(domain.KindInvalidRequest, "url is required", nil)
	}
	info, err := o.deps.Acquirer.FetchInfo(ctx, sourceURL)
	if err != nil {
		return domain.MediaInfo{}, domain.E(domain.KindInfoFetch, "failed to get media info", err)
	}
	return info, nil
}

// ProcessMedia runs one request through the full pipeline and returns the
// artifact to expose. Persistence and delivery failures never fail the
// request; everything before them does.
func (o *Orchestrator) ProcessMedia(ctx context.Context, req domain.MediaRequest) (ProcessResult, error) {
	requestID := o.newRequestID()
	tracker := NewTracker(requestID)
	logger := o.deps.Logger.With("request", requestID)

	fail := func(err error) (ProcessResult, error) {
		o.advance(tracker, StateFailed)
		o.deps.Recorder.Publish(requestID, EventError, StateFailed, err.Error())
		return ProcessResult{}, err
	}

	if strings.TrimSpace(req.SourceURL) == "" {
		return fail(domain.E(domain.KindInvalidRequest, "url is required", nil))
	}
	if !req.Type.Valid() {
		return fail(domain.E(domain.KindInvalidRequest, "type must be video, audio, or text", nil))
	}

	o.advance(tracker, StateFetchingInfo)
	info, err := o.deps.Acquirer.FetchInfo(ctx, req.SourceURL)
	if err != nil {
		return fail(domain.E(domain.KindInfoFetch, "failed to get media info", err))
	}

	base := domain.BaseName(info.Title, req.SourceURL)
	logger.Info("processing media", "type", req.Type, "title", info.Title, "base", base)

	res := ProcessResult{
		Media: MediaSummary{
			Title:     info.Title,
			Duration:  formatDuration(info.DurationSeconds),
			Thumbnail: info.ThumbnailURL,
		},
	}

	var transcriptText string
	switch req.Type {
	case domain.MediaTypeVideo:
		err = o.processVideo(ctx, tracker, req, base, &res)
	case domain.MediaTypeAudio:
		err = o.processAudio(ctx, tracker, logger, req, base, &res)
	case domain.MediaTypeText:
		transcriptText, err = o.processText(ctx, tracker, logger, req, info, base, &res)
	}
	if err != nil {
		return fail(err)
	}

	o.advance(tracker, StatePersisting)
	o.persist(ctx, logger, req, info, transcriptText, &res)
	o.deliverDocument(ctx, logger, req, info, &res)

	o.advance(tracker, StateSucceeded)
	o.deps.Recorder.Publish(requestID, EventResult, StateSucceeded, res.FileName)
	return res, nil
}

func (o *Orchestrator) processVideo(ctx context.Context, tracker *Tracker, req domain.MediaRequest, base string, res *ProcessResult) error {
	o.advance(tracker, StateDownloadingVideo)

	res.FileName = base + ".mp4"
	if err := o.deps.Acquirer.DownloadVideo(ctx, req.SourceURL, filepath.Join(o.downloadsDir, res.FileName)); err != nil {
		return domain.E(domain.KindDownload, "failed to download video", err)
	}
	res.Message = "Video downloaded successfully. Click below to download."
	return nil
}

func (o *Orchestrator) processAudio(ctx context.Context, tracker *Tracker, logger *log.Logger, req domain.MediaRequest, base string, res *ProcessResult) error {
	o.advance(tracker, StateDownloadingAudio)

	res.FileName = base + ".mp3"
	audioPath := filepath.Join(o.downloadsDir, res.FileName)
	if err := o.deps.Acquirer.DownloadAudio(ctx, req.SourceURL, audioPath); err != nil {
		return domain.E(domain.KindDownload, "failed to download audio", err)
	}
	res.Message = "Audio downloaded successfully. Click below to download."

	if req.VoiceIsolation {
		o.advance(tracker, StateIsolating)
		if err := o.deps.Processor.IsolateVoice(ctx, audioPath); err != nil {
			// Isolation degrades to the original audio, never fails the request.
			logger.Warn("voice isolation failed, keeping original audio", "error", err)
			o.deps.Recorder.Publish(tracker.RequestID(), EventError, StateIsolating, err.Error())
			res.Message = "Audio downloaded successfully (voice isolation unavailable). Click below to download."
		} else {
			res.Message = "Audio downloaded with voice isolation. Click below to download."
		}
	}
	return nil
}

// processText resolves a transcript through the ordered strategy chain, writes
// the plain-text artifact, and exports the document. It returns the transcript
// text for persistence.
func (o *Orchestrator) processText(ctx context.Context, tracker *Tracker, logger *log.Logger, req domain.MediaRequest, info domain.MediaInfo, base string, res *ProcessResult) (string, error) {
	o.advance(tracker, StateDownloadingAudio)
	o.advance(tracker, StateTranscribing)

	audioPath := filepath.Join(o.downloadsDir, base+".mp3")
	vttPath := filepath.Join(o.downloadsDir, base+".vtt")
	subBase := filepath.Join(o.downloadsDir, base)

	var strategies []transcribe.Strategy
	if o.deps.Transcriber != nil {
		strategies = append(strategies, transcribe.Strategy{
			Name:   "whisper",
			Method: domain.MethodWhisper,
			Run: func(ctx context.Context) (domain.TranscriptionResult, error) {
				if err := o.deps.Acquirer.DownloadAudio(ctx, req.SourceURL, audioPath); err != nil {
					return domain.TranscriptionResult{}, fmt.Errorf("download audio: %w", err)
				}
				text, err := o.deps.Transcriber.Transcribe(ctx, audioPath)
				if err != nil {
					return domain.TranscriptionResult{}, err
				}
				vtt := subtitle.Synthesize(text, info.DurationSeconds)
				if err := o.writeFile(vttPath, []byte(vtt), 0o644); err != nil {
					return domain.TranscriptionResult{}, fmt.Errorf("write subtitle track: %w", err)
				}
				return domain.TranscriptionResult{Text: text, SourceArtifact: vttPath}, nil
			},
		})
	}
	strategies = append(strategies,
		o.subtitleStrategy("manual subtitles", req.SourceURL, subBase, false),
		o.subtitleStrategy("auto captions", req.SourceURL, subBase, true),
	)

	result, err := transcribe.Resolve(ctx, logger, strategies)
	if err != nil {
		return "", err
	}
	res.Method = result.Method

	textPath := filepath.Join(o.downloadsDir, base+".txt")
	if err := o.writeFile(textPath, []byte(result.Text), 0o644); err != nil {
		return "", domain.E(domain.KindProvider, "write transcript file", err)
	}

	o.advance(tracker, StateExporting)
	res.FileName = base + ".docx"
	if err := o.deps.Exporter.Export(result.SourceArtifact, filepath.Join(o.downloadsDir, res.FileName), info.Title); err != nil {
		return "", err
	}

	if result.Method == domain.MethodWhisper {
		res.Message = "Audio transcribed successfully. Click below to download the document."
	} else {
		res.Message = "Transcript extracted from subtitles. Click below to download the document."
	}
	return result.Text, nil
}

// subtitleStrategy downloads a subtitle track and extracts its caption text.
func (o *Orchestrator) subtitleStrategy(name, sourceURL, outBase string, auto bool) transcribe.Strategy {
	return transcribe.Strategy{
		Name:   name,
		Method: domain.MethodSubtitles,
		Run: func(ctx context.Context) (domain.TranscriptionResult, error) {
			path, err := o.deps.Acquirer.DownloadSubtitles(ctx, sourceURL, outBase, auto)
			if err != nil {
				return domain.TranscriptionResult{}, err
			}
			if path == "" {
				return domain.TranscriptionResult{}, errors.New("no subtitle track found")
			}
			raw, err := o.readFile(path)
			if err != nil {
				return domain.TranscriptionResult{}, fmt.Errorf("read subtitle track: %w", err)
			}
			text := subtitle.ExtractText(string(raw))
			if strings.TrimSpace(text) == "" {
				return domain.TranscriptionResult{}, errors.New("subtitle track was empty")
			}
			return domain.TranscriptionResult{Text: text, SourceArtifact: path}, nil
		},
	}
}

// persist records the artifact in the knowledge base. Failures are logged and
// swallowed.
func (o *Orchestrator) persist(ctx context.Context, logger *log.Logger, req domain.MediaRequest, info domain.MediaInfo, transcriptText string, res *ProcessResult) {
	if o.deps.Persistence == nil || strings.TrimSpace(req.UserID) == "" {
		return
	}

	itemID, err := o.deps.Persistence.SaveMediaItem(ctx, store.MediaItem{
		UserID:          req.UserID,
		Title:           info.Title,
		MediaType:       string(req.Type),
		SourceURL:       req.SourceURL,
		FileURL:         "/downloads/" + res.FileName,
		DurationSeconds: info.DurationSeconds,
		ThumbnailURL:    info.ThumbnailURL,
	})
	if err != nil {
		logger.Warn("save media item failed", "error", err)
		return
	}
	res.MediaItemID = itemID
	res.SavedToKnowledgeBase = true

	if transcriptText == "" {
		return
	}
	transcriptID, err := o.deps.Persistence.SaveTranscript(ctx, store.Transcript{
		MediaItemID: itemID,
		UserID:      req.UserID,
		Content:     transcriptText,
		Method:      string(res.Method),
	})
	if err != nil {
		logger.Warn("save transcript failed", "error", err)
		return
	}
	res.TranscriptID = transcriptID
}

// deliverDocument forwards the exported document to the configured drop
// point. Failures are logged and swallowed.
func (o *Orchestrator) deliverDocument(ctx context.Context, logger *log.Logger, req domain.MediaRequest, info domain.MediaInfo, res *ProcessResult) {
	if req.Type != domain.MediaTypeText || o.deps.Delivery == nil || !o.deps.Delivery.Configured() {
		return
	}

	_, err := o.deps.Delivery.Send(ctx, filepath.Join(o.downloadsDir, res.FileName), deliver.Metadata{
		Title:    info.Title,
		Duration: info.DurationSeconds,
		Source:   req.SourceURL,
	})
	if err != nil {
		logger.Warn("document delivery failed", "error", err)
		return
	}
	res.Delivered = true
}

// ClipRequest asks for a time-bounded cut of an existing or remote file.
type ClipRequest struct {
	MediaURL     string           `json:"mediaUrl"`
	MediaType    domain.MediaType `json:"mediaType"`
	StartSeconds float64          `json:"startTime"`
	EndSeconds   float64          `json:"endTime"`
}

// ClipResult names the produced clip file.
type ClipResult struct {
	Message  string `json:"message"`
	FileName string `json:"fileName"`
}

// Clip validates the request, resolves the source file (fetching remote
// sources first), and cuts the requested range into a new artifact.
func (o *Orchestrator) Clip(ctx context.Context, req ClipRequest) (ClipResult, error) {
	if strings.TrimSpace(req.MediaURL) == "" {
		return ClipResult{}, domain.E(domain.KindInvalidRequest, "mediaUrl is required", nil)
	}
	if req.MediaType != domain.MediaTypeVideo && req.MediaType != domain.MediaTypeAudio {
		return ClipResult{}, domain.E(domain.KindInvalidRequest, "mediaType must be video or audio", nil)
	}
	if req.EndSeconds <= req.StartSeconds {
		return ClipResult{}, domain.E(domain.KindInvalidRequest, "endTime must be greater than startTime", nil)
	}

	ext := ".mp4"
	if req.MediaType == domain.MediaTypeAudio {
		ext = ".mp3"
	}

	src, temporary, err := o.resolveClipSource(ctx, req.MediaURL, ext)
	if err != nil {
		return ClipResult{}, err
	}
	if temporary {
		defer func() {
			if err := o.remove(src); err != nil {
				o.deps.Logger.Warn("remove fetched clip source failed", "path", src, "error", err)
			}
		}()
	}

	outName := fmt.Sprintf("clip_%d%s", o.now().UnixMilli(), ext)
	outPath := filepath.Join(o.downloadsDir, outName)
	if err := o.deps.Processor.Clip(ctx, src, outPath, req.StartSeconds, req.EndSeconds); err != nil {
		return ClipResult{}, domain.E(domain.KindProvider, "clip extraction failed", err)
	}

	o.deps.Recorder.Publish(o.newRequestID(), EventResult, StateSucceeded, outName)
	return ClipResult{Message: "Clip created successfully.", FileName: outName}, nil
}

// resolveClipSource maps a media URL onto a readable local file. URLs that
// point back into the downloads directory are served locally; anything else
// with a scheme is fetched to a temporary file first.
func (o *Orchestrator) resolveClipSource(ctx context.Context, mediaURL, ext string) (string, bool, error) {
	parsed, err := url.Parse(mediaURL)
	urlPath := mediaURL
	if err == nil && parsed.Path != "" {
		urlPath = parsed.Path
	}

	if idx := strings.LastIndex(urlPath, "/downloads/"); idx >= 0 || err != nil || parsed.Scheme == "" {
		local := filepath.Join(o.downloadsDir, filepath.Base(urlPath))
		if _, statErr := o.stat(local); statErr != nil {
			return "", false, domain.E(domain.KindClipSourceNotFound, "clip source file not found", statErr)
		}
		return local, false, nil
	}

	tmp := filepath.Join(o.downloadsDir, fmt.Sprintf("clipsrc_%d%s", o.now().UnixMilli(), ext))
	if err := o.deps.Processor.FetchRemote(ctx, mediaURL, tmp); err != nil {
		return "", false, domain.E(domain.KindClipSourceFetch, "failed to fetch clip source", err)
	}
	return tmp, true, nil
}

// advance moves the tracker and records the step; an illegal edge is a
// programming error and is logged, not surfaced to the caller.
func (o *Orchestrator) advance(tracker *Tracker, to State) {
	if err := tracker.Advance(to); err != nil {
		o.deps.Logger.Error("request state machine violation", "request", tracker.RequestID(), "error", err)
		return
	}
	o.deps.Recorder.Publish(tracker.RequestID(), EventStatus, to, "")
}

// formatDuration renders seconds the way sources report them, without
// trailing zeros.
func formatDuration(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', -1, 64)
}
