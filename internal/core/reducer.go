package core

import (
	"time"

	"github.com/vokey/transcribe/internal/clock"
	"github.com/vokey/transcribe/internal/config"
)

const (
	// partialThrottle suppresses EmitUi for PartialDelta if less than this
	// much time has elapsed since the last emit (SPEC_FULL §4.1).
	partialThrottle = 100 * time.Millisecond
	// tickGranularity is the displayed timer's resolution during Recording
	// (SPEC_FULL §4.1 "floor((now-started_at)/1s) changed").
	tickGranularity = 1 * time.Second
)

// Reduce is the pure transition function (SPEC_FULL §4.1 / C10). It performs
// no I/O and consults the clock only through Event.Now. Every (State, Event)
// pair has an explicit clause below; the fallthrough default returns s
// unchanged with no effects, satisfying "total coverage".
func Reduce(s State, e Event, settings config.Snapshot) (State, []Effect) {
	if e.Kind == EventForceError {
		return forceError(s, e)
	}

	if e.isCompletion() && e.ID != s.ID {
		return staleCompletion(s, e)
	}

	switch s.Kind {
	case KindIdle:
		return reduceIdle(s, e)
	case KindArming:
		return reduceArming(s, e)
	case KindRecording:
		return reduceRecording(s, e, settings)
	case KindStopping:
		return reduceStopping(s, e, settings)
	case KindTranscribing:
		return reduceTranscribing(s, e)
	case KindDone:
		return reduceDone(s, e)
	case KindNoSpeech, KindError:
		return reduceTerminal(s, e)
	default:
		return s, nil
	}
}

// forceError replaces any non-Error state with Error{message}, issuing
// Cleanup for the active cycle if one exists (SPEC_FULL §4.1 "Forced error").
func forceError(s State, e Event) (State, []Effect) {
	if s.Kind == KindError {
		return s, nil
	}
	var effects []Effect
	if s.HasRecordingId() {
		effects = append(effects, Effect{Kind: EffectCleanup, ID: s.ID, WavPath: s.WavPath})
	}
	next := State{Kind: KindError, ErrMessage: e.Message}
	effects = append(effects, emitUi())
	return next, effects
}

// staleCompletion drops a completion event whose RecordingId does not match
// the current cycle. EmitUi may still fire if Tick-style granularity changed,
// but completion events never carry that signal, so this is a pure no-op
// other than logging being the runner's responsibility, not the reducer's.
func staleCompletion(s State, e Event) (State, []Effect) {
	return s, nil
}

func reduceIdle(s State, e Event) (State, []Effect) {
	switch e.Kind {
	case EventHotkeyToggle:
		return armNewCycle()
	default:
		return s, nil
	}
}

func reduceArming(s State, e Event) (State, []Effect) {
	switch e.Kind {
	case EventAudioStartOk:
		next := State{
			Kind:      KindRecording,
			ID:        s.ID,
			WavPath:   e.WavPath,
			StartedAt: e.Now,
		}
		return next, []Effect{
			{Kind: EffectStartAutoStopDeadline, ID: s.ID, At: e.Now},
			emitUi(),
		}
	case EventAudioStartFail:
		return State{Kind: KindError, ErrMessage: e.Message}, []Effect{
			{Kind: EffectCleanup, ID: s.ID},
			emitUi(),
		}
	case EventCancel:
		return Idle(), []Effect{
			{Kind: EffectCleanup, ID: s.ID},
			emitUi(),
		}
	default:
		return s, nil
	}
}

func reduceRecording(s State, e Event, settings config.Snapshot) (State, []Effect) {
	switch e.Kind {
	case EventHotkeyToggle, EventAutoStopDeadline, EventCancel:
		next := State{
			Kind:        KindStopping,
			ID:          s.ID,
			WavPath:     s.WavPath,
			PartialText: s.PartialText,
		}
		return next, []Effect{
			{Kind: EffectStopAudio, ID: s.ID},
			emitUi(),
		}
	case EventPartialDelta:
		next := s
		next.PartialText = s.PartialText + e.Text
		if e.Now.Sub(s.lastPartialEmitAt) < partialThrottle {
			return next, nil
		}
		next.lastPartialEmitAt = e.Now
		return next, []Effect{emitUi()}
	case EventTick:
		second := int(e.Now.Sub(s.StartedAt) / tickGranularity)
		if second == s.lastUiSecond {
			return s, nil
		}
		next := s
		next.lastUiSecond = second
		return next, []Effect{emitUi()}
	default:
		return s, nil
	}
}

func reduceStopping(s State, e Event, settings config.Snapshot) (State, []Effect) {
	switch e.Kind {
	case EventAudioStopOk:
		return shortClipGate(s, e, settings)
	case EventAudioStopFail:
		return State{Kind: KindError, ErrMessage: e.Message}, []Effect{
			{Kind: EffectCleanup, ID: s.ID, WavPath: s.WavPath},
			emitUi(),
		}
	default:
		return s, nil
	}
}

// shortClipGate implements SPEC_FULL §4.8, evaluated on AudioStopOk. Only the
// duration check is decidable here since the reducer has no file access; the
// VAD pass (which requires reading WAV samples) is run by the EffectRunner
// while servicing StartTranscription, which reports back either
// NoSpeechDetected{vad} or TranscribeOk/Fail once it has decided — both are
// valid completions from Transcribing (SPEC_FULL §3.6).
func shortClipGate(s State, e Event, settings config.Snapshot) (State, []Effect) {
	if e.Duration < settings.MinTranscribe {
		return noSpeech(s, string(NoSpeechDuration), "clip too short")
	}
	next := State{Kind: KindTranscribing, ID: s.ID, WavPath: s.WavPath, PartialText: s.PartialText}
	return next, []Effect{
		{Kind: EffectStartTranscription, ID: s.ID, WavPath: s.WavPath},
		emitUi(),
	}
}

func noSpeech(s State, source, message string) (State, []Effect) {
	next := State{Kind: KindNoSpeech, NoSpeechSource: source, NoSpeechMessage: message}
	return next, []Effect{
		{Kind: EffectCleanup, ID: s.ID, WavPath: s.WavPath},
		emitUi(),
	}
}

func reduceTranscribing(s State, e Event) (State, []Effect) {
	switch e.Kind {
	case EventTranscribeOk:
		next := State{Kind: KindDone, ID: s.ID, Text: e.Text}
		return next, []Effect{
			{Kind: EffectCleanup, ID: s.ID, WavPath: s.WavPath},
			{Kind: EffectCopyToClipboard, ID: s.ID, Text: e.Text},
			{Kind: EffectStartDoneTimeout, ID: s.ID},
			emitUi(),
		}
	case EventTranscribeFail:
		if len(s.PartialText) >= 1 {
			next := State{Kind: KindDone, ID: s.ID, Text: s.PartialText}
			return next, []Effect{
				{Kind: EffectCleanup, ID: s.ID, WavPath: s.WavPath},
				{Kind: EffectCopyToClipboard, ID: s.ID, Text: s.PartialText},
				{Kind: EffectStartDoneTimeout, ID: s.ID},
				emitUi(),
			}
		}
		return State{Kind: KindError, ErrMessage: e.Message}, []Effect{
			{Kind: EffectCleanup, ID: s.ID, WavPath: s.WavPath},
			emitUi(),
		}
	case EventNoSpeechDetected:
		next := State{Kind: KindNoSpeech, NoSpeechSource: string(e.NoSpeechSource), NoSpeechMessage: e.NoSpeechMessage}
		return next, []Effect{
			{Kind: EffectCleanup, ID: s.ID, WavPath: s.WavPath},
			emitUi(),
		}
	case EventCancel:
		return Idle(), []Effect{
			{Kind: EffectCleanup, ID: s.ID, WavPath: s.WavPath},
			emitUi(),
		}
	default:
		return s, nil
	}
}

func reduceDone(s State, e Event) (State, []Effect) {
	switch e.Kind {
	case EventClipboardFail:
		next := State{Kind: KindError, ErrMessage: e.Message, LastGoodText: s.Text}
		return next, []Effect{emitUi()}
	case EventClipboardOk:
		return s, nil
	case EventDoneTimeout:
		return Idle(), []Effect{
			{Kind: EffectCleanup, ID: s.ID},
			emitUi(),
		}
	case EventHotkeyToggle:
		return armNewCycle()
	default:
		return s, nil
	}
}

func reduceTerminal(s State, e Event) (State, []Effect) {
	switch e.Kind {
	case EventHotkeyToggle:
		return armNewCycle()
	case EventCancel:
		return Idle(), []Effect{emitUi()}
	default:
		return s, nil
	}
}

func armNewCycle() (State, []Effect) {
	next := State{Kind: KindArming, ID: clock.NewRecordingId()}
	return next, []Effect{
		{Kind: EffectStartAudio, ID: next.ID},
		emitUi(),
	}
}

func emitUi() Effect {
	return Effect{Kind: EffectEmitUi}
}
