package audio

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/vokey/transcribe/internal/clock"
	"github.com/vokey/transcribe/internal/config"
	"github.com/vokey/transcribe/internal/core"
	"github.com/vokey/transcribe/internal/streaming"
	"github.com/vokey/transcribe/internal/wav"
	"github.com/vokey/transcribe/internal/waveform"
)

// activeRecording tracks the in-flight capture+writer pair for one
// RecordingId so Stop can report accurate duration/bytes once pump drains.
type activeRecording struct {
	capture *Capture
	writer  *wav.Writer
	done    chan struct{}
}

// Service implements core.AudioService by wrapping a Capture stream with the
// three-way non-blocking fan-out SPEC_FULL §4.4 requires: the WAV writer
// (correctness-critical, blocking), the waveform sampler (drop-on-full), and
// the realtime streaming client (drop-on-full). SPEC_FULL §5 calls for a
// dedicated OS thread per capture; jfreymuth/pulse's stream already runs its
// own goroutine fed from the PulseAudio client, so a dedicated long-lived
// goroutine per cycle satisfies the same isolation intent without needing
// runtime.LockOSThread (this package never touches cgo audio bindings).
type Service struct {
	cfg      config.Config
	tempDir  string
	sampler  *waveform.Sampler
	stream   *streaming.Client
	settings config.Snapshot
	logger   *slog.Logger

	onWaveform func(waveform.Update)

	mu         sync.Mutex
	recordings map[clock.RecordingId]*activeRecording
}

// NewService constructs an audio Service. onWaveform, if non-nil, receives
// every waveform bar update for the UiEmitter's side channel.
func NewService(cfg config.Config, tempDir string, settings config.Snapshot, apiKey string, logger *slog.Logger, onWaveform func(waveform.Update)) *Service {
	var client *streaming.Client
	if settings.StreamingEnabled && apiKey != "" && cfg.RealtimeURL != "" {
		client = streaming.NewClient(cfg.RealtimeURL, apiKey, settings.StreamConnect, logger)
	}
	return &Service{
		cfg:        cfg,
		tempDir:    tempDir,
		sampler:    waveform.NewSampler(),
		stream:     client,
		settings:   settings,
		logger:     logger,
		onWaveform: onWaveform,
		recordings: make(map[clock.RecordingId]*activeRecording),
	}
}

// Start satisfies core.AudioService: it selects a capture device, opens the
// WAV writer at the naming convention SPEC_FULL §6.1 specifies, and fans
// out every captured chunk.
func (s *Service) Start(ctx context.Context, id clock.RecordingId, emit core.Emit) {
	selection, err := SelectDevice(ctx, s.cfg.Audio.Input, s.cfg.Audio.Fallback)
	if err != nil {
		emit(core.Event{Kind: core.EventAudioStartFail, ID: id, Message: err.Error(), Err: err})
		return
	}

	capture, err := StartCapture(ctx, selection.Device)
	if err != nil {
		emit(core.Event{Kind: core.EventAudioStartFail, ID: id, Message: err.Error(), Err: err})
		return
	}

	wavPath := filepath.Join(s.tempDir, fmt.Sprintf("%d_%s.wav", time.Now().Unix(), id))
	writer, err := wav.Create(wavPath)
	if err != nil {
		capture.Close()
		emit(core.Event{Kind: core.EventAudioStartFail, ID: id, Message: err.Error(), Err: err})
		return
	}

	rec := &activeRecording{capture: capture, writer: writer, done: make(chan struct{})}
	s.mu.Lock()
	s.recordings[id] = rec
	s.mu.Unlock()

	streamCh := make(chan []byte, 64)
	if s.sampler != nil {
		go s.sampler.Run(ctx, func(u waveform.Update) {
			if s.onWaveform != nil {
				s.onWaveform(u)
			}
		})
	}
	if s.stream != nil {
		go s.stream.Run(ctx, id, streamCh, emit)
	}

	go s.pump(id, rec, streamCh)

	emit(core.Event{Kind: core.EventAudioStartOk, ID: id, WavPath: wavPath})
}

// pump fans out every captured chunk: the WAV writer append is blocking and
// correctness-critical, while waveform/streaming sends are non-blocking and
// may drop under backpressure (SPEC_FULL §4.4, §5). It closes rec.done once
// the capture's channel drains and the WAV has been finalized.
func (s *Service) pump(id clock.RecordingId, rec *activeRecording, streamCh chan<- []byte) {
	defer close(streamCh)
	defer close(rec.done)

	for chunk := range rec.capture.Chunks() {
		if err := rec.writer.Append(chunk); err != nil {
			s.logf("wav append failed for %s: %v", id, err)
		}
		if s.sampler != nil {
			s.sampler.TrySend(chunk)
		}
		select {
		case streamCh <- chunk:
		default:
		}
	}

	if err := rec.writer.Finalize(); err != nil {
		s.logf("wav finalize failed for %s: %v", id, err)
	}
}

// Stop satisfies core.AudioService: it halts the Pulse stream, waits for the
// pump to drain and finalize the WAV, then reports duration/bytes.
func (s *Service) Stop(ctx context.Context, id clock.RecordingId, emit core.Emit) {
	s.mu.Lock()
	rec, ok := s.recordings[id]
	delete(s.recordings, id)
	s.mu.Unlock()

	if !ok {
		emit(core.Event{Kind: core.EventAudioStopFail, ID: id, Message: "no active recording for this id"})
		return
	}

	rec.capture.Close()

	select {
	case <-rec.done:
	case <-ctx.Done():
		emit(core.Event{Kind: core.EventAudioStopFail, ID: id, Message: "stop cancelled before wav finalized"})
		return
	}

	duration := time.Duration(rec.writer.DurationMS()) * time.Millisecond
	emit(core.Event{Kind: core.EventAudioStopOk, ID: id, Duration: duration, Bytes: rec.writer.BytesWritten()})
}

func (s *Service) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Warn(fmt.Sprintf(format, args...))
}
