// Package ui implements UiEmitter (SPEC_FULL §4.11 / C12): a pure
// projection of core.State onto the wire shape named in SPEC_FULL §6.4,
// plus the independent WaveformUpdate side channel. There is no HUD in the
// reference material this grew from, so it is stdlib-only by necessity —
// see DESIGN.md for the justification — while keeping the small,
// single-purpose adapter style used throughout this codebase.
package ui

import (
	"github.com/vokey/transcribe/internal/core"
	"github.com/vokey/transcribe/internal/waveform"
)

// Snapshot is the tagged outbound projection named in SPEC_FULL §6.4:
// payload is a tagged object whose tag field is one of
// idle|arming|recording|stopping|transcribing|noSpeech|done|error.
type Snapshot struct {
	State string `json:"state"`

	PartialText string `json:"partial_text,omitempty"`
	Text        string `json:"text,omitempty"`

	NoSpeechSource  string `json:"no_speech_source,omitempty"`
	NoSpeechMessage string `json:"no_speech_message,omitempty"`

	ErrMessage   string `json:"error_message,omitempty"`
	LastGoodText string `json:"last_good_text,omitempty"`
}

// Project is the pure State -> Snapshot mapping. Throttling (emit on every
// transition, Tick-only transitions at most once per second) is already
// enforced reducer-side via State's private lastUiSecond bookkeeping, so
// this function has nothing left to decide: it runs once per EffectEmitUi.
func Project(s core.State) Snapshot {
	return Snapshot{
		State:           s.Kind.String(),
		PartialText:     s.PartialText,
		Text:            s.Text,
		NoSpeechSource:  s.NoSpeechSource,
		NoSpeechMessage: s.NoSpeechMessage,
		ErrMessage:      s.ErrMessage,
		LastGoodText:    s.LastGoodText,
	}
}

// WaveformPayload is the outbound shape for the "waveform-update" event
// named in SPEC_FULL §6.4.
type WaveformPayload struct {
	Bars [24]float32 `json:"bars"`
}

// Sink publishes named events to whatever outer transport the process
// wires in (tray IPC, a desktop notification bus, stdout for the CLI
// harness). It mirrors the "state-update" / "waveform-update" split from
// SPEC_FULL §6.4.
type Sink interface {
	Publish(event string, payload any)
}

// Emitter implements core.UiSink by projecting every State transition to
// "state-update" and forwarding waveform.Update values to "waveform-update".
type Emitter struct {
	sink Sink
}

// NewEmitter constructs an Emitter that publishes through sink.
func NewEmitter(sink Sink) *Emitter {
	return &Emitter{sink: sink}
}

// Emit satisfies core.UiSink.
func (e *Emitter) Emit(s core.State) {
	if e.sink == nil {
		return
	}
	e.sink.Publish("state-update", Project(s))
}

// OnWaveform satisfies the audio Service's onWaveform callback shape.
func (e *Emitter) OnWaveform(u waveform.Update) {
	if e.sink == nil {
		return
	}
	e.sink.Publish("waveform-update", WaveformPayload{Bars: u.Bars})
}
