package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// MediaType selects the artifact a processing request should produce.
type MediaType string

const (
	MediaTypeVideo MediaType = "video"
	MediaTypeAudio MediaType = "audio"
	MediaTypeText  MediaType = "text"
)

// Valid reports whether the value is one of the closed media type set.
func (t MediaType) Valid() bool {
	switch t {
	case MediaTypeVideo, MediaTypeAudio, MediaTypeText:
		return true
	default:
		return false
	}
}

// MediaRequest is one validated processing request. It is immutable after
// validation and discarded once the response is sent.
type MediaRequest struct {
	SourceURL      string    `json:"url"`
	Type           MediaType `json:"type"`
	VoiceIsolation bool      `json:"voiceIsolation"`
	UserID         string    `json:"requestingUserId,omitempty"`
}

// MediaInfo is the metadata fetched once per request from the source.
type MediaInfo struct {
	Title           string   `json:"title"`
	DurationSeconds float64  `json:"duration"`
	ThumbnailURL    string   `json:"thumbnail"`
	Description     string   `json:"description,omitempty"`
	Uploader        string   `json:"uploader,omitempty"`
	ViewCount       int64    `json:"viewCount,omitempty"`
	UploadDate      string   `json:"uploadDate,omitempty"`
	Formats         []Format `json:"formats,omitempty"`
}

// Format is one downloadable rendition advertised by the source.
type Format struct {
	ID         string `json:"format_id"`
	Ext        string `json:"ext"`
	Resolution string `json:"resolution,omitempty"`
	Note       string `json:"format_note,omitempty"`
}

// ArtifactKind classifies files produced while processing a request.
type ArtifactKind string

const (
	ArtifactVideo    ArtifactKind = "video"
	ArtifactAudio    ArtifactKind = "audio"
	ArtifactSubtitle ArtifactKind = "subtitle"
	ArtifactText     ArtifactKind = "text"
	ArtifactDocument ArtifactKind = "document"
)

// Artifact is a file produced during request processing. Ownership is
// exclusive to the request until the response is built.
type Artifact struct {
	Kind      ArtifactKind `json:"kind"`
	Path      string       `json:"path"`
	SourceURL string       `json:"derivedFrom"`
}

// TranscriptionMethod identifies which acquisition strategy produced a
// transcript. At most one method wins per request.
type TranscriptionMethod string

const (
	MethodWhisper   TranscriptionMethod = "whisper"
	MethodSubtitles TranscriptionMethod = "subtitles"
)

// TranscriptionResult is the winning transcript regardless of origin, so
// downstream export code is indifferent to how the text was obtained.
type TranscriptionResult struct {
	Text           string              `json:"text"`
	Method         TranscriptionMethod `json:"method"`
	SourceArtifact string              `json:"sourceArtifact,omitempty"`
}

// SanitizeTitle maps a media title to a filesystem-safe base: every
// non-alphanumeric rune becomes an underscore and the result is lowercased.
func SanitizeTitle(title string) string {
	mapped := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, title)

	mapped = strings.ToLower(mapped)
	if strings.Trim(mapped, "_") == "" {
		return "media"
	}
	return mapped
}

// BaseName derives the artifact base filename for a request. The sanitized
// title carries an 8-hex digest of the source URL so that two sources sharing
// a title cannot overwrite each other's artifacts, while repeated requests
// for the same source stay deterministic.
func BaseName(title, sourceURL string) string {
	sum := sha256.Sum256([]byte(sourceURL))
	return SanitizeTitle(title) + "_" + hex.EncodeToString(sum[:4])
}
