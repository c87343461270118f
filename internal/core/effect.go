package core

import (
	"time"

	"github.com/vokey/transcribe/internal/clock"
)

// EffectKind tags which variant of Effect is populated (SPEC_FULL §3.4).
type EffectKind int

const (
	EffectStartAudio EffectKind = iota
	EffectStopAudio
	EffectStartTranscription
	EffectCopyToClipboard
	EffectStartDoneTimeout
	EffectStartAutoStopDeadline
	EffectCleanup
	EffectEmitUi
)

// Effect is a declarative description of work for the EffectRunner (C11) to
// spawn; the reducer never performs I/O itself (SPEC_FULL §3.4).
type Effect struct {
	Kind EffectKind

	ID      clock.RecordingId
	WavPath string
	Text    string

	Duration time.Duration
	At       time.Time
}
