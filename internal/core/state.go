// Package core implements the interaction core: the reducer (C10) and the
// effect runner (C11) described in SPEC_FULL §4.1/§4.2. It generalizes the
// teacher's internal/fsm (transition function) and internal/session
// (actions-channel supervisor) into the full tagged-union state machine.
package core

import (
	"time"

	"github.com/vokey/transcribe/internal/clock"
)

// Kind tags which variant of the State tagged union is populated
// (SPEC_FULL §3.2).
type Kind int

const (
	KindIdle Kind = iota
	KindArming
	KindRecording
	KindStopping
	KindTranscribing
	KindNoSpeech
	KindDone
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindIdle:
		return "idle"
	case KindArming:
		return "arming"
	case KindRecording:
		return "recording"
	case KindStopping:
		return "stopping"
	case KindTranscribing:
		return "transcribing"
	case KindNoSpeech:
		return "noSpeech"
	case KindDone:
		return "done"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// State is the reducer's sole piece of mutable data, modeled as a flat
// struct tagged by Kind rather than a Go tagged-union-by-interface: only the
// fields relevant to the current Kind are meaningful (SPEC_FULL §3.2). The
// reducer is its only writer.
type State struct {
	Kind Kind

	ID        clock.RecordingId
	WavPath   string
	StartedAt time.Time

	PartialText string

	NoSpeechSource  string
	NoSpeechMessage string

	Text string

	ErrMessage   string
	LastGoodText string

	// lastUiSecond / lastPartialEmitAt are reducer-private throttling
	// bookkeeping, not part of the public UI projection (SPEC_FULL §4.1:
	// "EmitUi only when floor((now-started_at)/1s) changed" and the
	// PartialDelta 100ms throttle).
	lastUiSecond      int
	lastPartialEmitAt time.Time
}

// Idle is the zero-value starting state.
func Idle() State {
	return State{Kind: KindIdle}
}

// HasRecordingId reports whether a cycle is in progress, matching the
// invariant "a RecordingId exists iff the state is Arming/Recording/
// Stopping/Transcribing/Done" (SPEC_FULL §3.2). NoSpeech and Error do not
// carry an id once entered, mirroring the table in §4.1 where every
// transition into them is paired with Cleanup.
func (s State) HasRecordingId() bool {
	switch s.Kind {
	case KindArming, KindRecording, KindStopping, KindTranscribing, KindDone:
		return true
	default:
		return false
	}
}
