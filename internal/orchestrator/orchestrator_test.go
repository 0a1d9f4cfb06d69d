package orchestrator

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"clipscribe/internal/deliver"
	"clipscribe/internal/domain"
	"clipscribe/internal/store"
)

const testVTT = "WEBVTT\n\n1\n00:00:00.000 --> 00:00:05.000\nCaption text.\n"

type fakeAcquirer struct {
	info    domain.MediaInfo
	infoErr error

	videoErr error
	audioErr error

	subPaths map[bool]string
	subErr   error

	infoCalls  int
	videoCalls int
	audioCalls int
	subCalls   []bool

	lastVideoOut string
	lastAudioOut string
}

func (f *fakeAcquirer) FetchInfo(context.Context, string) (domain.MediaInfo, error) {
	f.infoCalls++
	return f.info, f.infoErr
}

func (f *fakeAcquirer) DownloadVideo(_ context.Context, _, outPath string) error {
	f.videoCalls++
	f.lastVideoOut = outPath
	return f.videoErr
}

func (f *fakeAcquirer) DownloadAudio(_ context.Context, _, outPath string) error {
	f.audioCalls++
	f.lastAudioOut = outPath
	return f.audioErr
}

func (f *fakeAcquirer) DownloadSubtitles(_ context.Context, _, _ string, auto bool) (string, error) {
	f.subCalls = append(f.subCalls, auto)
	if f.subErr != nil {
		return "", f.subErr
	}
	return f.subPaths[auto], nil
}

type fakeProcessor struct {
	isolateErr   error
	clipErr      error
	fetchErr     error
	isolateCalls int
	clipCalls    int
	fetchCalls   int
	lastClipIn   string
	lastClipOut  string
	lastFetchOut string
}

func (f *fakeProcessor) IsolateVoice(context.Context, string) error {
	f.isolateCalls++
	return f.isolateErr
}

func (f *fakeProcessor) Clip(_ context.Context, inPath, outPath string, _, _ float64) error {
	f.clipCalls++
	f.lastClipIn = inPath
	f.lastClipOut = outPath
	return f.clipErr
}

func (f *fakeProcessor) FetchRemote(_ context.Context, _, outPath string) error {
	f.fetchCalls++
	f.lastFetchOut = outPath
	return f.fetchErr
}

type fakeTranscriber struct {
	text  string
	err   error
	calls int
}

func (f *fakeTranscriber) Transcribe(context.Context, string) (string, error) {
	f.calls++
	return f.text, f.err
}

type fakeExporter struct {
	err     error
	calls   int
	lastVTT string
	lastDoc string
}

func (f *fakeExporter) Export(vttPath, docPath, _ string) error {
	f.calls++
	f.lastVTT = vttPath
	f.lastDoc = docPath
	return f.err
}

type fakePersistence struct {
	itemErr       error
	transcriptErr error
	items         []store.MediaItem
	transcripts   []store.Transcript
}

func (f *fakePersistence) SaveMediaItem(_ context.Context, item store.MediaItem) (string, error) {
	if f.itemErr != nil {
		return "", f.itemErr
	}
	f.items = append(f.items, item)
	return "item-1", nil
}

func (f *fakePersistence) SaveTranscript(_ context.Context, t store.Transcript) (string, error) {
	if f.transcriptErr != nil {
		return "", f.transcriptErr
	}
	f.transcripts = append(f.transcripts, t)
	return "transcript-1", nil
}

type fakeDelivery struct {
	configured bool
	err        error
	sent       []string
}

func (f *fakeDelivery) Configured() bool { return f.configured }

func (f *fakeDelivery) Send(_ context.Context, filePath string, _ deliver.Metadata) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, filePath)
	return "ok", nil
}

type harness struct {
	acquirer    *fakeAcquirer
	processor   *fakeProcessor
	transcriber *fakeTranscriber
	exporter    *fakeExporter
	persistence *fakePersistence
	delivery    *fakeDelivery
	written     map[string][]byte
	statErr     error
	removed     []string
	orch        *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		acquirer: &fakeAcquirer{
			info:     domain.MediaInfo{Title: "Talk", DurationSeconds: 90, ThumbnailURL: "https://example.com/t.jpg"},
			subPaths: map[bool]string{},
		},
		processor:   &fakeProcessor{},
		transcriber: &fakeTranscriber{text: "spoken words"},
		exporter:    &fakeExporter{},
		persistence: &fakePersistence{},
		delivery:    &fakeDelivery{configured: true},
		written:     map[string][]byte{},
	}

	deps := Deps{
		Acquirer:    h.acquirer,
		Processor:   h.processor,
		Transcriber: h.transcriber,
		Exporter:    h.exporter,
		Persistence: h.persistence,
		Delivery:    h.delivery,
		Recorder:    NewRecorder(32),
		Logger:      log.New(io.Discard),
	}

	h.orch = NewForTests("downloads", deps,
		func(path string) ([]byte, error) {
			if data, ok := h.written[path]; ok {
				return data, nil
			}
			return []byte(testVTT), nil
		},
		func(path string, data []byte, _ os.FileMode) error {
			h.written[path] = data
			return nil
		},
		func(string) (os.FileInfo, error) { return nil, h.statErr },
		func(path string) error {
			h.removed = append(h.removed, path)
			return nil
		},
		func() time.Time { return time.UnixMilli(1700000000000) },
	)
	return h
}

func testBase() string {
	return domain.BaseName("Talk", "https://example.com/v")
}

func videoRequest(mt domain.MediaType) domain.MediaRequest {
	return domain.MediaRequest{SourceURL: "https://example.com/v", Type: mt}
}

func TestProcessMediaValidation(t *testing.T) {
	h := newHarness(t)

	cases := []struct {
		name string
		req  domain.MediaRequest
	}{
		{"missing url", domain.MediaRequest{Type: domain.MediaTypeVideo}},
		{"bad type", domain.MediaRequest{SourceURL: "https://example.com/v", Type: "document"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.orch.ProcessMedia(context.Background(), tc.req)
			if domain.KindOf(err) != domain.KindInvalidRequest {
				t.Errorf("kind = %q, want invalid_request", domain.KindOf(err))
			}
		})
	}
	if h.acquirer.infoCalls != 0 {
		t.Error("metadata must not be fetched for invalid requests")
	}
}

func TestProcessMediaInfoFetchFailure(t *testing.T) {
	h := newHarness(t)
	h.acquirer.infoErr = errors.New("unsupported URL")

	_, err := h.orch.ProcessMedia(context.Background(), videoRequest(domain.MediaTypeVideo))
	if domain.KindOf(err) != domain.KindInfoFetch {
		t.Fatalf("kind = %q, want info_fetch_error", domain.KindOf(err))
	}
	if h.acquirer.videoCalls != 0 || h.acquirer.audioCalls != 0 {
		t.Error("downloads must not start after a metadata failure")
	}
}

func TestProcessMediaVideo(t *testing.T) {
	h := newHarness(t)

	res, err := h.orch.ProcessMedia(context.Background(), videoRequest(domain.MediaTypeVideo))
	if err != nil {
		t.Fatalf("ProcessMedia: %v", err)
	}

	wantFile := testBase() + ".mp4"
	if res.FileName != wantFile {
		t.Errorf("FileName = %q, want %q", res.FileName, wantFile)
	}
	if h.acquirer.lastVideoOut != filepath.Join("downloads", wantFile) {
		t.Errorf("download path = %q", h.acquirer.lastVideoOut)
	}
	if res.Media.Title != "Talk" || res.Media.Duration != "90" {
		t.Errorf("media summary = %+v", res.Media)
	}
}

func TestProcessMediaVideoDownloadFailure(t *testing.T) {
	h := newHarness(t)
	h.acquirer.videoErr = errors.New("network reset")

	_, err := h.orch.ProcessMedia(context.Background(), videoRequest(domain.MediaTypeVideo))
	if domain.KindOf(err) != domain.KindDownload {
		t.Fatalf("kind = %q, want download_error", domain.KindOf(err))
	}
}

func TestProcessMediaAudioWithVoiceIsolation(t *testing.T) {
	h := newHarness(t)

	req := videoRequest(domain.MediaTypeAudio)
	req.VoiceIsolation = true

	res, err := h.orch.ProcessMedia(context.Background(), req)
	if err != nil {
		t.Fatalf("ProcessMedia: %v", err)
	}
	if h.processor.isolateCalls != 1 {
		t.Errorf("isolate calls = %d", h.processor.isolateCalls)
	}
	if !strings.Contains(res.Message, "voice isolation") {
		t.Errorf("message = %q", res.Message)
	}
	if res.FileName != testBase()+".mp3" {
		t.Errorf("FileName = %q", res.FileName)
	}
}

func TestProcessMediaVoiceIsolationDegrades(t *testing.T) {
	h := newHarness(t)
	h.processor.isolateErr = errors.New("filter failed")

	req := videoRequest(domain.MediaTypeAudio)
	req.VoiceIsolation = true

	res, err := h.orch.ProcessMedia(context.Background(), req)
	if err != nil {
		t.Fatalf("isolation failure must not fail the request: %v", err)
	}
	if !strings.Contains(res.Message, "voice isolation unavailable") {
		t.Errorf("message = %q", res.Message)
	}
}

func TestProcessMediaTextViaWhisper(t *testing.T) {
	h := newHarness(t)

	req := videoRequest(domain.MediaTypeText)
	req.UserID = "user-7"

	res, err := h.orch.ProcessMedia(context.Background(), req)
	if err != nil {
		t.Fatalf("ProcessMedia: %v", err)
	}

	base := testBase()
	if res.FileName != base+".docx" {
		t.Errorf("FileName = %q", res.FileName)
	}
	if res.Method != domain.MethodWhisper {
		t.Errorf("Method = %q", res.Method)
	}
	if h.transcriber.calls != 1 {
		t.Errorf("transcriber calls = %d", h.transcriber.calls)
	}
	if len(h.acquirer.subCalls) != 0 {
		t.Errorf("subtitle fallback ran after a transcription success: %v", h.acquirer.subCalls)
	}

	vttPath := filepath.Join("downloads", base+".vtt")
	if !strings.Contains(string(h.written[vttPath]), "spoken words") {
		t.Errorf("synthesized track missing transcript: %q", h.written[vttPath])
	}
	txtPath := filepath.Join("downloads", base+".txt")
	if string(h.written[txtPath]) != "spoken words" {
		t.Errorf("transcript file = %q", h.written[txtPath])
	}
	if h.exporter.lastVTT != vttPath {
		t.Errorf("exporter read %q, want %q", h.exporter.lastVTT, vttPath)
	}

	if !res.SavedToKnowledgeBase || res.MediaItemID != "item-1" || res.TranscriptID != "transcript-1" {
		t.Errorf("persistence result = %+v", res)
	}
	if len(h.persistence.transcripts) != 1 || h.persistence.transcripts[0].Content != "spoken words" {
		t.Errorf("stored transcripts = %+v", h.persistence.transcripts)
	}
	if !res.Delivered || len(h.delivery.sent) != 1 {
		t.Errorf("document was not delivered: %+v", res)
	}
}

func TestProcessMediaTextFallsBackToManualSubtitles(t *testing.T) {
	h := newHarness(t)
	h.transcriber.err = errors.New("api down")
	subPath := filepath.Join("downloads", testBase()+".en.vtt")
	h.acquirer.subPaths[false] = subPath

	res, err := h.orch.ProcessMedia(context.Background(), videoRequest(domain.MediaTypeText))
	if err != nil {
		t.Fatalf("ProcessMedia: %v", err)
	}
	if res.Method != domain.MethodSubtitles {
		t.Errorf("Method = %q", res.Method)
	}
	if len(h.acquirer.subCalls) != 1 || h.acquirer.subCalls[0] {
		t.Errorf("sub calls = %v, want one manual fetch", h.acquirer.subCalls)
	}
	if h.exporter.lastVTT != subPath {
		t.Errorf("exporter read %q, want downloaded track %q", h.exporter.lastVTT, subPath)
	}
}

func TestProcessMediaTextFallsBackToAutoCaptions(t *testing.T) {
	h := newHarness(t)
	h.transcriber.err = errors.New("api down")
	subPath := filepath.Join("downloads", testBase()+".en.vtt")
	h.acquirer.subPaths[true] = subPath

	res, err := h.orch.ProcessMedia(context.Background(), videoRequest(domain.MediaTypeText))
	if err != nil {
		t.Fatalf("ProcessMedia: %v", err)
	}
	if res.Method != domain.MethodSubtitles {
		t.Errorf("Method = %q", res.Method)
	}
	if len(h.acquirer.subCalls) != 2 || h.acquirer.subCalls[0] || !h.acquirer.subCalls[1] {
		t.Errorf("sub calls = %v, want manual then auto", h.acquirer.subCalls)
	}
}

func TestProcessMediaTextNoTranscriptAvailable(t *testing.T) {
	h := newHarness(t)
	h.transcriber.err = errors.New("api down")

	_, err := h.orch.ProcessMedia(context.Background(), videoRequest(domain.MediaTypeText))
	if domain.KindOf(err) != domain.KindNoTranscript {
		t.Fatalf("kind = %q, want no_transcript_available", domain.KindOf(err))
	}
	if h.exporter.calls != 0 {
		t.Error("export must not run without a transcript")
	}
}

func TestProcessMediaTextExportFailureIsTerminal(t *testing.T) {
	h := newHarness(t)
	h.exporter.err = domain.E(domain.KindDocumentExport, "serialize document", nil)

	req := videoRequest(domain.MediaTypeText)
	req.UserID = "user-7"

	_, err := h.orch.ProcessMedia(context.Background(), req)
	if domain.KindOf(err) != domain.KindDocumentExport {
		t.Fatalf("kind = %q, want document_export_error", domain.KindOf(err))
	}
	if len(h.persistence.items) != 0 || len(h.persistence.transcripts) != 0 {
		t.Error("nothing must be persisted after a failed export")
	}
	if len(h.delivery.sent) != 0 {
		t.Error("nothing must be delivered after a failed export")
	}
}

func TestProcessMediaPersistenceFailureIsSwallowed(t *testing.T) {
	h := newHarness(t)
	h.persistence.itemErr = errors.New("db down")

	req := videoRequest(domain.MediaTypeVideo)
	req.UserID = "user-7"

	res, err := h.orch.ProcessMedia(context.Background(), req)
	if err != nil {
		t.Fatalf("persistence failure must not fail the request: %v", err)
	}
	if res.SavedToKnowledgeBase || res.MediaItemID != "" {
		t.Errorf("result claims persistence succeeded: %+v", res)
	}
}

func TestProcessMediaAnonymousSkipsPersistence(t *testing.T) {
	h := newHarness(t)

	res, err := h.orch.ProcessMedia(context.Background(), videoRequest(domain.MediaTypeVideo))
	if err != nil {
		t.Fatalf("ProcessMedia: %v", err)
	}
	if res.SavedToKnowledgeBase || len(h.persistence.items) != 0 {
		t.Error("anonymous requests must not write to the knowledge base")
	}
}

func TestClipValidation(t *testing.T) {
	h := newHarness(t)

	cases := []struct {
		name string
		req  ClipRequest
	}{
		{"missing url", ClipRequest{MediaType: domain.MediaTypeAudio, StartSeconds: 0, EndSeconds: 5}},
		{"text type", ClipRequest{MediaURL: "/downloads/a.mp3", MediaType: domain.MediaTypeText, EndSeconds: 5}},
		{"equal range", ClipRequest{MediaURL: "/downloads/a.mp3", MediaType: domain.MediaTypeAudio, StartSeconds: 5, EndSeconds: 5}},
		{"inverted range", ClipRequest{MediaURL: "/downloads/a.mp3", MediaType: domain.MediaTypeAudio, StartSeconds: 9, EndSeconds: 3}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.orch.Clip(context.Background(), tc.req)
			if domain.KindOf(err) != domain.KindInvalidRequest {
				t.Errorf("kind = %q, want invalid_request", domain.KindOf(err))
			}
		})
	}
	if h.processor.clipCalls != 0 || h.processor.fetchCalls != 0 {
		t.Error("adapters must not run for invalid clip requests")
	}
}

func TestClipLocalSource(t *testing.T) {
	h := newHarness(t)

	res, err := h.orch.Clip(context.Background(), ClipRequest{
		MediaURL:     "http://localhost:3000/downloads/talk.mp3",
		MediaType:    domain.MediaTypeAudio,
		StartSeconds: 2,
		EndSeconds:   8,
	})
	if err != nil {
		t.Fatalf("Clip: %v", err)
	}

	if h.processor.lastClipIn != filepath.Join("downloads", "talk.mp3") {
		t.Errorf("clip input = %q", h.processor.lastClipIn)
	}
	if res.FileName != "clip_1700000000000.mp3" {
		t.Errorf("FileName = %q", res.FileName)
	}
	if h.processor.fetchCalls != 0 {
		t.Error("local sources must not be fetched")
	}
}

func TestClipLocalSourceMissing(t *testing.T) {
	h := newHarness(t)
	h.statErr = os.ErrNotExist

	_, err := h.orch.Clip(context.Background(), ClipRequest{
		MediaURL:     "/downloads/absent.mp3",
		MediaType:    domain.MediaTypeAudio,
		StartSeconds: 0,
		EndSeconds:   5,
	})
	if domain.KindOf(err) != domain.KindClipSourceNotFound {
		t.Fatalf("kind = %q, want clip_source_not_found", domain.KindOf(err))
	}
	if h.processor.clipCalls != 0 {
		t.Error("clip must not run without a source file")
	}
}

func TestClipRemoteSource(t *testing.T) {
	h := newHarness(t)

	res, err := h.orch.Clip(context.Background(), ClipRequest{
		MediaURL:     "https://cdn.example.com/media/x.mp4",
		MediaType:    domain.MediaTypeVideo,
		StartSeconds: 0,
		EndSeconds:   10,
	})
	if err != nil {
		t.Fatalf("Clip: %v", err)
	}

	if h.processor.fetchCalls != 1 {
		t.Fatalf("fetch calls = %d", h.processor.fetchCalls)
	}
	if h.processor.lastClipIn != h.processor.lastFetchOut {
		t.Errorf("clip read %q, fetched %q", h.processor.lastClipIn, h.processor.lastFetchOut)
	}
	if len(h.removed) != 1 || h.removed[0] != h.processor.lastFetchOut {
		t.Errorf("fetched source not cleaned up: %v", h.removed)
	}
	if res.FileName != "clip_1700000000000.mp4" {
		t.Errorf("FileName = %q", res.FileName)
	}
}

func TestClipRemoteFetchFailure(t *testing.T) {
	h := newHarness(t)
	h.processor.fetchErr = errors.New("404")

	_, err := h.orch.Clip(context.Background(), ClipRequest{
		MediaURL:     "https://cdn.example.com/x.mp4",
		MediaType:    domain.MediaTypeVideo,
		StartSeconds: 0,
		EndSeconds:   10,
	})
	if domain.KindOf(err) != domain.KindClipSourceFetch {
		t.Fatalf("kind = %q, want clip_source_fetch_error", domain.KindOf(err))
	}
}

func TestInfo(t *testing.T) {
	h := newHarness(t)

	if _, err := h.orch.Info(context.Background(), ""); domain.KindOf(err) != domain.KindInvalidRequest {
		t.Errorf("empty url kind = %q", domain.KindOf(err))
	}

	info, err := h.orch.Info(context.Background(), "https://example.com/v")
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Title != "Talk" {
		t.Errorf("info = %+v", info)
	}

	h.acquirer.infoErr = errors.New("bad url")
	if _, err := h.orch.Info(context.Background(), "https://example.com/v"); domain.KindOf(err) != domain.KindInfoFetch {
		t.Errorf("kind = %q, want info_fetch_error", domain.KindOf(err))
	}
}
