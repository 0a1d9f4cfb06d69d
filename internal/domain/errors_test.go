package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	plain := E(KindDownload, "failed to download audio", nil)
	if got := plain.Error(); got != "failed to download audio" {
		t.Errorf("Error() = %q", got)
	}

	cause := errors.New("exit status 1")
	wrapped := E(KindDownload, "failed to download audio", cause)
	if got := wrapped.Error(); got != "failed to download audio: exit status 1" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(wrapped, cause) {
		t.Error("wrapped cause not reachable through errors.Is")
	}
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"direct", E(KindAuth, "bad token", nil), KindAuth},
		{"wrapped", fmt.Errorf("handler: %w", E(KindNoTranscript, "nothing found", nil)), KindNoTranscript},
		{"unclassified", errors.New("boom"), KindProvider},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.want {
				t.Errorf("KindOf = %q, want %q", got, tc.want)
			}
		})
	}
}
