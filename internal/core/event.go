package core

import (
	"time"

	"github.com/vokey/transcribe/internal/clock"
)

// EventKind tags which variant of Event is populated (SPEC_FULL §3.3).
type EventKind int

const (
	EventHotkeyToggle EventKind = iota
	EventCancel
	EventExit
	EventForceError
	EventTick

	EventAudioStartOk
	EventAudioStartFail
	EventAudioStopOk
	EventAudioStopFail
	EventPartialDelta
	EventTranscribeOk
	EventTranscribeFail
	EventNoSpeechDetected
	EventClipboardOk
	EventClipboardFail
	EventDoneTimeout
	EventAutoStopDeadline
)

// Origin distinguishes how a transcript became authoritative.
type Origin string

const (
	OriginBatch     Origin = "batch"
	OriginStreaming Origin = "streaming"
)

// NoSpeechSource names why a cycle was judged to contain no speech.
type NoSpeechSource string

const (
	NoSpeechDuration NoSpeechSource = "duration"
	NoSpeechVAD      NoSpeechSource = "vad"
	NoSpeechAPI      NoSpeechSource = "api"
)

// Event is everything that can arrive on the reducer's bounded, single-
// consumer inbound queue (SPEC_FULL §3.3). Only the fields relevant to Kind
// are meaningful; completion events carry the RecordingId they pertain to so
// the reducer can apply staleness filtering (SPEC_FULL §4.1).
type Event struct {
	Kind EventKind

	ID  clock.RecordingId
	Now time.Time

	Message string

	WavPath  string
	Duration time.Duration
	Bytes    int64

	Text   string
	Origin Origin

	NoSpeechSource  NoSpeechSource
	NoSpeechMessage string

	Err error
}

// isCompletion reports whether e carries a RecordingId that must match the
// current cycle before the reducer will act on it (SPEC_FULL §4.1
// "Staleness").
func (e Event) isCompletion() bool {
	switch e.Kind {
	case EventAudioStartOk, EventAudioStartFail,
		EventAudioStopOk, EventAudioStopFail,
		EventPartialDelta,
		EventTranscribeOk, EventTranscribeFail,
		EventNoSpeechDetected,
		EventClipboardOk, EventClipboardFail,
		EventDoneTimeout, EventAutoStopDeadline:
		return true
	default:
		return false
	}
}
