package core

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vokey/transcribe/internal/clock"
)

type fakeAudio struct {
	startWavPath string
	startErr     string
	stopDuration time.Duration
	stopBytes    int64
}

func (f *fakeAudio) Start(_ context.Context, id clock.RecordingId, emit Emit) {
	if f.startErr != "" {
		emit(Event{Kind: EventAudioStartFail, ID: id, Message: f.startErr})
		return
	}
	emit(Event{Kind: EventAudioStartOk, ID: id, Now: time.Now(), WavPath: f.startWavPath})
}

func (f *fakeAudio) Stop(_ context.Context, id clock.RecordingId, emit Emit) {
	emit(Event{Kind: EventAudioStopOk, ID: id, Duration: f.stopDuration, Bytes: f.stopBytes})
}

type fakeTranscriber struct {
	text string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, id clock.RecordingId, _ string, emit Emit) {
	emit(Event{Kind: EventTranscribeOk, ID: id, Text: f.text, Origin: OriginBatch})
}

type fakeClipboard struct{}

func (fakeClipboard) Copy(_ context.Context, id clock.RecordingId, _ string, emit Emit) {
	emit(Event{Kind: EventClipboardOk, ID: id})
}

type recordingUi struct {
	mu     sync.Mutex
	states []State
}

func (r *recordingUi) Emit(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recordingUi) last() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return Idle()
	}
	return r.states[len(r.states)-1]
}

func waitForState(t *testing.T, runner *Runner, kind Kind) State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := runner.State(); s.Kind == kind {
			return s
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for kind %v, last state %v", kind, runner.State())
	return State{}
}

func newTestRunner(t *testing.T, tempDir string) (*Runner, *recordingUi) {
	ui := &recordingUi{}
	audio := &fakeAudio{startWavPath: filepath.Join(tempDir, "clip.wav"), stopDuration: 5 * time.Second}
	runner := NewRunner(nil, audio, &fakeTranscriber{text: "hello"}, fakeClipboard{}, ui, tempDir, testSettings())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go runner.Run(ctx)
	return runner, ui
}

func TestRunnerDrivesHappyPathToDone(t *testing.T) {
	tempDir := t.TempDir()
	runner, ui := newTestRunner(t, tempDir)

	runner.Emit(Event{Kind: EventHotkeyToggle})
	waitForState(t, runner, KindRecording)

	runner.Emit(Event{Kind: EventHotkeyToggle, ID: runner.State().ID})
	waitForState(t, runner, KindDone)

	require.Equal(t, "hello", runner.State().Text)
	require.NotEmpty(t, ui.last())
}

func TestRunnerCleanupRemovesWavFile(t *testing.T) {
	tempDir := t.TempDir()
	wavPath := filepath.Join(tempDir, "leftover.wav")
	require.NoError(t, os.WriteFile(wavPath, []byte("x"), 0o600))

	runner := NewRunner(nil, &fakeAudio{}, &fakeTranscriber{}, fakeClipboard{}, &recordingUi{}, tempDir, testSettings())
	id := clock.NewRecordingId()
	runner.cleanup(id, wavPath)

	_, err := os.Stat(wavPath)
	require.True(t, os.IsNotExist(err))
}

func TestRunnerEnforcesRetentionCap(t *testing.T) {
	tempDir := t.TempDir()
	for i := 0; i < retentionCap+3; i++ {
		name := filepath.Join(tempDir, time.Now().Add(time.Duration(i)*time.Second).Format("20060102150405")+".wav")
		require.NoError(t, os.WriteFile(name, []byte("x"), 0o600))
	}

	runner := NewRunner(nil, &fakeAudio{}, &fakeTranscriber{}, fakeClipboard{}, &recordingUi{}, tempDir, testSettings())
	runner.enforceRetention()

	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	require.Len(t, entries, retentionCap)
}

func TestRunnerUpdateSettingsAppliesToNextCycleOnly(t *testing.T) {
	tempDir := t.TempDir()
	audio := &fakeAudio{startWavPath: filepath.Join(tempDir, "clip.wav"), stopDuration: 5 * time.Second}
	runner := NewRunner(nil, audio, &fakeTranscriber{text: "hi"}, fakeClipboard{}, &recordingUi{}, tempDir, testSettings())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go runner.Run(ctx)

	runner.Emit(Event{Kind: EventHotkeyToggle})
	waitForState(t, runner, KindRecording)

	reloaded := testSettings()
	reloaded.MinTranscribe = time.Hour
	runner.UpdateSettings(reloaded)

	// The in-flight cycle was armed before the reload landed, so the old
	// (short) MinTranscribe still governs its short-clip gate: the 5s clip
	// clears the default threshold and the cycle proceeds to Done, not
	// NoSpeech.
	runner.Emit(Event{Kind: EventHotkeyToggle, ID: runner.State().ID})
	waitForState(t, runner, KindDone)
	require.Equal(t, testSettings().MinTranscribe, runner.settingsSnapshot().MinTranscribe)

	// A fresh cycle arms after the reload and picks up the staged settings:
	// the same 5s clip now falls short of the hour-long minimum.
	runner.Emit(Event{Kind: EventHotkeyToggle})
	waitForState(t, runner, KindRecording)
	require.Equal(t, time.Hour, runner.settingsSnapshot().MinTranscribe)

	runner.Emit(Event{Kind: EventHotkeyToggle, ID: runner.State().ID})
	waitForState(t, runner, KindNoSpeech)
}

func TestRunnerAudioStartFailEntersError(t *testing.T) {
	tempDir := t.TempDir()
	ui := &recordingUi{}
	runner := NewRunner(nil, &fakeAudio{startErr: "no device"}, &fakeTranscriber{}, fakeClipboard{}, ui, tempDir, testSettings())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go runner.Run(ctx)

	runner.Emit(Event{Kind: EventHotkeyToggle})
	waitForState(t, runner, KindError)
	require.Equal(t, "no device", runner.State().ErrMessage)
}
