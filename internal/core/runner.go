package core

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vokey/transcribe/internal/clock"
	"github.com/vokey/transcribe/internal/config"
)

// Emit is how a task spawned by the runner reports its one terminal event
// back onto the reducer's inbound queue (SPEC_FULL §4.2).
type Emit func(Event)

// AudioService is the subset of AudioCapture (C3) the runner drives.
type AudioService interface {
	Start(ctx context.Context, id clock.RecordingId, emit Emit)
	Stop(ctx context.Context, id clock.RecordingId, emit Emit)
}

// Transcriber is the subset of BatchTranscriber (C8) the runner drives when
// servicing StartTranscription; implementations run the VAD gate internally
// before deciding between NoSpeechDetected{vad} and the upload (SPEC_FULL
// §4.8).
type Transcriber interface {
	Transcribe(ctx context.Context, id clock.RecordingId, wavPath string, emit Emit)
}

// ClipboardService is the subset of Clipboard (C9) the runner drives.
type ClipboardService interface {
	Copy(ctx context.Context, id clock.RecordingId, text string, emit Emit)
}

// UiSink receives every EmitUi, bridging the reducer into UiEmitter (C12).
type UiSink interface {
	Emit(State)
}

// MetricsSink receives the Metrics (C13) hook-point calls described in
// SPEC_FULL §4.12. The runner is the natural place to call these: it is the
// only code that sees both the raw completion Event (which carries bytes,
// transcript text, and failure identity) and the reduced State transition
// (which tells it whether a transcription failure was rescued into Done or
// fell through to Error). Degraded/error reasons are passed as plain strings
// so this package never depends on the metrics package's types.
type MetricsSink interface {
	StartCycle(now time.Time)
	RecordingStarted(now time.Time)
	RecordingStopped(bytes int64)
	TranscriptionStarted(now time.Time)
	TranscriptionCompleted(chars, wordCount int)
	CycleCompleted(now time.Time, degradedReason string)
	CycleFailed(now time.Time, errKind string)
}

// retentionCap is the maximum number of WAV files kept in the temp audio
// directory (SPEC_FULL §6.1: "Retention: newest 5").
const retentionCap = 5

// Runner is the EffectRunner (C11): the task supervisor that turns Effects
// into spawned work and funnels exactly one terminal event per effect back
// onto a bounded inbound queue that this same goroutine drains (SPEC_FULL
// §4.2, §5 "the reducer runs on a single task that exclusively owns State").
type Runner struct {
	logger *slog.Logger

	audio      AudioService
	transcribe Transcriber
	clipboard  ClipboardService
	ui         UiSink
	metrics    MetricsSink
	tempDir    string

	events chan Event

	mu              sync.Mutex
	state           State
	settings        config.Snapshot
	pendingSettings *config.Snapshot
	cancels         map[clock.RecordingId][]context.CancelFunc
}

// NewRunner builds a Runner with a bounded inbound queue sized within
// SPEC_FULL §5's "≥256, ≤4096" requirement.
func NewRunner(logger *slog.Logger, audio AudioService, transcribe Transcriber, clipboard ClipboardService, ui UiSink, tempDir string, settings config.Snapshot) *Runner {
	return &Runner{
		logger:     logger,
		audio:      audio,
		transcribe: transcribe,
		clipboard:  clipboard,
		ui:         ui,
		tempDir:    tempDir,
		events:     make(chan Event, 1024),
		state:      Idle(),
		settings:   settings,
		cancels:    make(map[clock.RecordingId][]context.CancelFunc),
	}
}

// SetMetrics attaches a MetricsSink to receive hook-point calls from this
// point on. Optional: a nil metrics sink (the default) makes the hook calls
// no-ops.
func (r *Runner) SetMetrics(m MetricsSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = m
}

// UpdateSettings stages settings to take effect starting at the next cycle
// that enters Arming (SPEC_FULL §3.5: a reload must never retroactively
// change the snapshot a cycle already in flight is using). apply swaps the
// staged snapshot in exactly when a transition lands on KindArming. Safe to
// call from any goroutine.
func (r *Runner) UpdateSettings(settings config.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pendingSettings = &settings
}

// Emit pushes an event onto the bounded inbound queue. It blocks rather than
// drops when the queue is full, per "must not drop completion events"
// (SPEC_FULL §4.2).
func (r *Runner) Emit(e Event) {
	r.events <- e
}

// State returns a snapshot of the current state, safe to call from any
// goroutine (e.g. an IPC status handler).
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Run drains the inbound queue until ctx is cancelled. It must be invoked on
// exactly one goroutine; that goroutine is the sole writer of Runner.state.
func (r *Runner) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-r.events:
			r.apply(e)
		}
	}
}

func (r *Runner) apply(e Event) {
	r.mu.Lock()
	prevKind := r.state.Kind
	next, effects := Reduce(r.state, e, r.settings)
	r.state = next
	if prevKind != KindArming && next.Kind == KindArming && r.pendingSettings != nil {
		r.settings = *r.pendingSettings
		r.pendingSettings = nil
	}
	metrics := r.metrics
	r.mu.Unlock()

	if metrics != nil {
		observeMetrics(metrics, prevKind, e, next, effects)
	}

	for _, eff := range effects {
		r.dispatch(eff, next)
	}
}

// observeMetrics implements the SPEC_FULL §4.12 hook points in terms of the
// (previous kind, event, next state, effects) the runner already has on
// hand for every transition.
func observeMetrics(m MetricsSink, prevKind Kind, e Event, next State, effects []Effect) {
	now := time.Now()

	if prevKind != KindArming && next.Kind == KindArming {
		m.StartCycle(now)
	}

	switch e.Kind {
	case EventAudioStartOk:
		m.RecordingStarted(now)
	case EventAudioStopOk:
		m.RecordingStopped(e.Bytes)
	case EventTranscribeOk:
		m.TranscriptionCompleted(len(e.Text), wordCount(e.Text))
	}

	for _, eff := range effects {
		if eff.Kind == EffectStartTranscription {
			m.TranscriptionStarted(now)
		}
	}

	switch next.Kind {
	case KindDone:
		degraded := ""
		if e.Kind == EventTranscribeFail {
			degraded = "partial_rescue"
		}
		m.CycleCompleted(now, degraded)
	case KindNoSpeech:
		m.CycleCompleted(now, "no_speech")
	case KindError:
		m.CycleFailed(now, errKindFor(e))
	}
}

// errKindFor classifies the event that drove a transition into Error, for
// the Metrics summary's "last error" field (SPEC_FULL §4.12).
func errKindFor(e Event) string {
	switch e.Kind {
	case EventAudioStartFail, EventAudioStopFail:
		return "audio"
	case EventTranscribeFail:
		return "transcribe"
	case EventClipboardFail:
		return "clipboard"
	case EventForceError:
		return "forced"
	default:
		return "unknown"
	}
}

// wordCount counts whitespace-delimited words, used for the Metrics
// transcription_completed hook point (SPEC_FULL §4.12).
func wordCount(s string) int {
	return len(strings.Fields(s))
}

func (r *Runner) dispatch(eff Effect, s State) {
	switch eff.Kind {
	case EffectStartAudio:
		ctx := r.trackedContext(eff.ID)
		go r.audio.Start(ctx, eff.ID, r.Emit)
	case EffectStopAudio:
		go r.audio.Stop(context.Background(), eff.ID, r.Emit)
	case EffectStartTranscription:
		ctx := r.trackedContext(eff.ID)
		go r.transcribe.Transcribe(ctx, eff.ID, eff.WavPath, r.Emit)
	case EffectCopyToClipboard:
		go r.clipboard.Copy(context.Background(), eff.ID, eff.Text, r.Emit)
	case EffectStartDoneTimeout:
		r.after(eff.ID, r.settingsSnapshot().DoneDismiss, func() {
			r.Emit(Event{Kind: EventDoneTimeout, ID: eff.ID})
		})
	case EffectStartAutoStopDeadline:
		remaining := r.settingsSnapshot().AutoStop - time.Since(eff.At)
		r.after(eff.ID, remaining, func() {
			r.Emit(Event{Kind: EventAutoStopDeadline, ID: eff.ID})
		})
	case EffectCleanup:
		r.cleanup(eff.ID, eff.WavPath)
	case EffectEmitUi:
		if r.ui != nil {
			r.ui.Emit(s)
		}
	}
}

// settingsSnapshot reads the current settings under the same mutex
// UpdateSettings writes through, so a hot-reload racing a dispatch never
// produces a torn read.
func (r *Runner) settingsSnapshot() config.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings
}

// trackedContext returns a cancellable context associated with id; Cleanup
// cancels every context registered for that id (SPEC_FULL §4.2
// "Cancellation").
func (r *Runner) trackedContext(id clock.RecordingId) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancels[id] = append(r.cancels[id], cancel)
	r.mu.Unlock()
	return ctx
}

// after fires fn once d has elapsed, unless the id is cleaned up first. The
// resulting event is a completion event, so even a fire that races Cleanup
// is harmlessly dropped by the reducer's staleness check.
func (r *Runner) after(id clock.RecordingId, d time.Duration, fn func()) {
	ctx := r.trackedContext(id)
	go func() {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
		case <-t.C:
			fn()
		}
	}()
}

// cleanup implements Effect{Cleanup}: cancel every task tracked against id,
// best-effort remove wavPath if present, then enforce the retention cap
// across the whole temp directory (SPEC_FULL §4.2, §6.1).
func (r *Runner) cleanup(id clock.RecordingId, wavPath string) {
	r.mu.Lock()
	cancels := r.cancels[id]
	delete(r.cancels, id)
	r.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}

	if wavPath != "" {
		if err := os.Remove(wavPath); err != nil && !os.IsNotExist(err) {
			r.logf("cleanup: remove %s: %v", wavPath, err)
		}
	}

	r.enforceRetention()
}

// enforceRetention keeps only the newest retentionCap WAV files in tempDir.
// File names are "<unix-seconds>_<recording-id>.wav" (SPEC_FULL §6.1), so
// lexicographic order is chronological order.
func (r *Runner) enforceRetention() {
	if r.tempDir == "" {
		return
	}
	entries, err := os.ReadDir(r.tempDir)
	if err != nil {
		return
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".wav" {
			continue
		}
		names = append(names, entry.Name())
	}
	if len(names) <= retentionCap {
		return
	}
	sort.Strings(names)
	stale := names[:len(names)-retentionCap]
	for _, name := range stale {
		path := filepath.Join(r.tempDir, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			r.logf("retention: remove %s: %v", path, err)
		}
	}
}

func (r *Runner) logf(format string, args ...any) {
	if r.logger == nil {
		return
	}
	r.logger.Warn(fmt.Sprintf(format, args...))
}
