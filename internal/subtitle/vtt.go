// Package subtitle parses WebVTT caption tracks into plain text and
// synthesizes minimal tracks from transcript text.
package subtitle

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// timingLineRe matches cue timing lines such as
// "00:00:01.234 --> 00:00:03.456", with or without trailing cue settings.
var timingLineRe = regexp.MustCompile(`^\d+:\d+:\d+`)

// cueIDRe matches standalone numeric cue identifiers preceding a timing line.
var cueIDRe = regexp.MustCompile(`^\d+$`)

// tagRe matches inline markup (<c>, <i>, voice spans) found in caption text.
var tagRe = regexp.MustCompile(`<[^>]+>`)

// ExtractText strips a WebVTT document down to its caption text: the header,
// timestamp lines, cue identifiers, and blank lines are removed while caption
// ordering is preserved.
func ExtractText(vtt string) string {
	var out []string
	for _, line := range strings.Split(vtt, "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
			continue
		case strings.HasPrefix(trimmed, "WEBVTT"):
			continue
		case strings.HasPrefix(trimmed, "NOTE"):
			continue
		case strings.HasPrefix(trimmed, "Kind:"), strings.HasPrefix(trimmed, "Language:"):
			continue
		case timingLineRe.MatchString(trimmed):
			continue
		case cueIDRe.MatchString(trimmed):
			continue
		}

		out = append(out, tagRe.ReplaceAllString(line, ""))
	}
	return strings.Join(out, "\n")
}

// Synthesize builds a single-cue WebVTT document spanning the whole media
// duration, wrapping the full transcript text as one caption.
func Synthesize(transcript string, durationSeconds float64) string {
	return fmt.Sprintf(
		"WEBVTT\n\n1\n00:00:00.000 --> %s\n%s\n",
		FormatTimestamp(durationSeconds),
		strings.TrimSpace(transcript),
	)
}

// FormatTimestamp renders seconds as a VTT cue timestamp (HH:MM:SS.mmm).
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}

	whole := int(seconds)
	millis := int(math.Round((seconds - float64(whole)) * 1000))
	if millis >= 1000 {
		whole++
		millis -= 1000
	}

	h := whole / 3600
	m := (whole % 3600) / 60
	s := whole % 60
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, millis)
}
