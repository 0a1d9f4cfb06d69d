package orchestrator

import (
	"fmt"
	"sync"
)

// State names one step of the per-request processing state machine.
type State string

const (
	StateValidating       State = "validating"
	StateFetchingInfo     State = "fetching_info"
	StateDownloadingVideo State = "downloading_video"
	StateDownloadingAudio State = "downloading_audio"
	StateIsolating        State = "isolating"
	StateTranscribing     State = "transcribing"
	StateExporting        State = "exporting_document"
	StatePersisting       State = "persisting"
	StateSucceeded        State = "responded_success"
	StateFailed           State = "responded_failure"
)

// Tracker enforces legal state transitions for one request. Each request
// owns its tracker; nothing is shared across requests.
type Tracker struct {
	mu        sync.Mutex
	requestID string
	state     State
}

// NewTracker starts a request in the validating state.
func NewTracker(requestID string) *Tracker {
	return &Tracker{requestID: requestID, state: StateValidating}
}

// Advance applies a transition, rejecting edges the state machine does not
// allow.
func (t *Tracker) Advance(to State) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if to == t.state {
		return nil
	}
	if !isValidTransition(t.state, to) {
		return fmt.Errorf("invalid transition: %s -> %s", t.state, to)
	}
	t.state = to
	return nil
}

// State returns the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// RequestID returns the identity the tracker was created for.
func (t *Tracker) RequestID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.requestID
}

// isValidTransition encodes the allowed request state machine edges.
// Persistence is best-effort, so the persisting state can only move to a
// successful response.
func isValidTransition(from, to State) bool {
	if to == StateFailed {
		return from != StateSucceeded && from != StatePersisting
	}

	switch from {
	case StateValidating:
		return to == StateFetchingInfo
	case StateFetchingInfo:
		return to == StateDownloadingVideo || to == StateDownloadingAudio
	case StateDownloadingVideo:
		return to == StatePersisting
	case StateDownloadingAudio:
		return to == StateIsolating || to == StateTranscribing || to == StatePersisting
	case StateIsolating:
		return to == StatePersisting
	case StateTranscribing:
		return to == StateExporting
	case StateExporting:
		return to == StatePersisting
	case StatePersisting:
		return to == StateSucceeded
	default:
		return false
	}
}
