package transcribe

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"

	"clipscribe/internal/domain"
)

// Strategy is one named way of obtaining a transcript. Strategies are tried
// in declaration order; the first success wins and later strategies are
// never invoked.
type Strategy struct {
	Name   string
	Method domain.TranscriptionMethod
	Run    func(ctx context.Context) (domain.TranscriptionResult, error)
}

// Resolve runs the ordered strategy chain until one succeeds. When every
// strategy fails the request has no transcript source left, which is a
// terminal condition for text requests.
func Resolve(ctx context.Context, logger *log.Logger, strategies []Strategy) (domain.TranscriptionResult, error) {
	var failures []string
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return domain.TranscriptionResult{}, err
		}

		result, err := s.Run(ctx)
		if err == nil {
			logger.Info("transcript acquired", "strategy", s.Name)
			result.Method = s.Method
			return result, nil
		}

		logger.Warn("transcript strategy failed", "strategy", s.Name, "error", err)
		failures = append(failures, s.Name+": "+err.Error())
	}

	return domain.TranscriptionResult{}, domain.E(
		domain.KindNoTranscript,
		"transcription failed and no subtitles were found ("+strings.Join(failures, "; ")+")",
		nil,
	)
}
