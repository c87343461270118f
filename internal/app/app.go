package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/vokey/transcribe/internal/audio"
	"github.com/vokey/transcribe/internal/cli"
	"github.com/vokey/transcribe/internal/config"
	"github.com/vokey/transcribe/internal/core"
	"github.com/vokey/transcribe/internal/doctor"
	"github.com/vokey/transcribe/internal/hotkey"
	"github.com/vokey/transcribe/internal/ipc"
	"github.com/vokey/transcribe/internal/logging"
	"github.com/vokey/transcribe/internal/metrics"
	"github.com/vokey/transcribe/internal/output"
	"github.com/vokey/transcribe/internal/transcribe"
	"github.com/vokey/transcribe/internal/ui"
	"github.com/vokey/transcribe/internal/version"
)

// Runner holds process-level dependencies used by command handlers.
type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

// Execute is the package entrypoint used by cmd/vokeytranscribe/main.go.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

// Execute parses CLI arguments, loads config/logging, and dispatches a command.
func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("vokeytranscribe"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("vokeytranscribe"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logRuntime, err := logging.New()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	if parsed.Command == cli.CommandOpenLogs {
		fmt.Fprintln(r.Stdout, logRuntime.Path)
		return 0
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandCancel:
		return r.forwardOrFail(ctx, "cancel")
	case cli.CommandQuit:
		return r.commandQuit(ctx)
	case cli.CommandToggle:
		return r.commandToggle(ctx, cfgLoaded.Config, cfgLoaded.Path, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

// commandDevices prints discovered input devices and key availability metadata.
func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		availability := "yes"
		if !device.Available {
			availability = "no"
		}
		muted := "no"
		if device.Muted {
			muted = "yes"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			availability,
			muted,
		)
	}

	return 0
}

// commandStatus queries the active owner (if any) and prints the current
// cycle's state tag (SPEC_FULL §6.4: idle|arming|recording|stopping|
// transcribing|noSpeech|done|error).
func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, "status")
	if handled {
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		if resp.State == "" {
			resp.State = "idle"
		}
		fmt.Fprintln(r.Stdout, resp.State)
		return 0
	}

	fmt.Fprintln(r.Stdout, "idle")
	return 0
}

// forwardOrFail forwards a command to the active owner and fails when no owner exists.
func (r Runner) forwardOrFail(ctx context.Context, command string) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, command)
	if !handled {
		fmt.Fprintf(r.Stderr, "error: no active vokeytranscribe session\n")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

// commandQuit forwards a quit request to an active owner if one exists. A
// quit with nothing running is not an error: there is no session to end.
func (r Runner) commandQuit(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, "quit")
	if !handled {
		fmt.Fprintln(r.Stdout, "not running")
		return 0
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

// commandToggle starts a new owner process (running the interaction core
// for exactly one cycle, per SPEC_FULL §2/§3.6) or forwards the toggle to an
// existing owner. The owner also serves cancel/status/quit over the IPC
// socket for the duration of its one cycle, and drives a real
// HotkeyWatcher(C2) so the physical binding can stop the very recording this
// invocation started.
func (r Runner) commandToggle(ctx context.Context, cfg config.Config, configPath string, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, "toggle")
	if handled {
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		if resp.Message != "" {
			fmt.Fprintln(r.Stdout, resp.Message)
		}
		return 0
	}

	settings := cfg.Timing.AsSnapshot()

	watcher, err := hotkey.NewWatcher(cfg.Hotkey.Toggle, cfg.Hotkey.Cancel, settings.HotkeyDebounce, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8, nil)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			resp, _, forwardErr := tryForward(ctx, socketPath, "toggle")
			if forwardErr != nil {
				fmt.Fprintf(r.Stderr, "error: %v\n", forwardErr)
				return 1
			}
			if resp.Message != "" {
				fmt.Fprintln(r.Stdout, resp.Message)
			}
			return 0
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	tempDir, err := config.TempAudioDir()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if err := os.MkdirAll(tempDir, 0o700); err != nil {
		fmt.Fprintf(r.Stderr, "error: create temp audio dir: %v\n", err)
		return 1
	}

	apiKey := strings.TrimSpace(os.Getenv(cfg.APIKeyEnv))

	cycleMetrics := metrics.New(func(msg string) { logger.Warn(msg) })

	emitter := ui.NewEmitter(logSink{logger: logger})
	sink := newTerminalSink(emitter)

	audioService := audio.NewService(cfg, tempDir, settings, apiKey, logger, emitter.OnWaveform)
	transcriber := transcribe.New(cfg, apiKey, settings)
	clipboard := output.NewClipboard(cfg, logger)

	coreRunner := core.NewRunner(logger, audioService, transcriber, clipboard, sink, tempDir, settings)
	coreRunner.SetMetrics(metricsAdapter{m: cycleMetrics})

	runnerCtx, runnerCancel := context.WithCancel(ctx)
	defer runnerCancel()
	go coreRunner.Run(runnerCtx)
	go watcher.Run(runnerCtx, coreRunner.Emit)

	if cfgWatcher, err := config.NewWatcher(configPath, config.WatchDelay, logger, func(loaded config.Loaded) {
		coreRunner.UpdateSettings(loaded.Config.Timing.AsSnapshot())
		logger.Info("config reloaded", "config", configPath)
	}); err != nil {
		logger.Warn("config hot-reload disabled", "error", err.Error())
	} else {
		go cfgWatcher.Run(runnerCtx)
	}

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(serverCtx, listener, ipcHandler{runner: coreRunner})
	}()

	coreRunner.Emit(core.Event{Kind: core.EventHotkeyToggle, Now: time.Now()})

	var final core.State
	select {
	case final = <-sink.done:
	case <-ctx.Done():
		final = coreRunner.State()
	}

	runnerCancel()
	serverCancel()
	if serverErr := <-serverErrCh; serverErr != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", serverErr)
		return 1
	}

	logCycleResult(logger, final, cycleMetrics.Summary())

	switch final.Kind {
	case core.KindDone:
		if text := strings.TrimSpace(final.Text); text != "" {
			fmt.Fprintln(r.Stdout, text)
		}
		return 0
	case core.KindNoSpeech:
		fmt.Fprintln(r.Stdout, "no speech detected")
		return 0
	case core.KindError:
		fmt.Fprintf(r.Stderr, "error: %s\n", final.ErrMessage)
		return 1
	default:
		return 0
	}
}

// terminalSink wraps the real UiEmitter and additionally watches for the
// first terminal outcome (Done/NoSpeech/Error, or Idle reached via a `quit`
// cancellation mid-cycle) following an active cycle, so the owning process's
// single invocation of `toggle` knows when to report a result and exit
// (SPEC_FULL §3.6, §6.5).
type terminalSink struct {
	next *ui.Emitter

	mu         sync.Mutex
	seenActive bool
	done       chan core.State
}

func newTerminalSink(next *ui.Emitter) *terminalSink {
	return &terminalSink{next: next, done: make(chan core.State, 1)}
}

func (t *terminalSink) Emit(s core.State) {
	t.next.Emit(s)

	t.mu.Lock()
	defer t.mu.Unlock()
	switch s.Kind {
	case core.KindArming, core.KindRecording, core.KindStopping, core.KindTranscribing:
		t.seenActive = true
	case core.KindDone, core.KindNoSpeech, core.KindError, core.KindIdle:
		if t.seenActive {
			select {
			case t.done <- s:
			default:
			}
		}
	}
}

// logSink adapts ui.Emitter's Sink interface to structured debug logging;
// there is no HUD process to forward state-update/waveform-update events to
// from this CLI-driven owner, so logging is the outer transport.
type logSink struct {
	logger *slog.Logger
}

func (s logSink) Publish(event string, payload any) {
	if s.logger == nil {
		return
	}
	s.logger.Debug(event, "payload", payload)
}

// ipcHandler translates SPEC_FULL §6.5 control-surface commands into
// interaction-core Events and State queries.
type ipcHandler struct {
	runner *core.Runner
}

func (h ipcHandler) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case "status":
		return ipc.Response{OK: true, State: h.runner.State().Kind.String()}
	case "toggle":
		h.runner.Emit(core.Event{Kind: core.EventHotkeyToggle, Now: time.Now()})
		return ipc.Response{OK: true, Message: "toggle handled"}
	case "cancel":
		h.runner.Emit(core.Event{Kind: core.EventCancel, Now: time.Now()})
		return ipc.Response{OK: true, Message: "cancel handled"}
	case "quit":
		h.runner.Emit(core.Event{Kind: core.EventCancel, Now: time.Now()})
		return ipc.Response{OK: true, Message: "quit handled"}
	default:
		return ipc.Response{OK: false, Error: fmt.Sprintf("unsupported command %q", req.Command)}
	}
}

// metricsAdapter satisfies core.MetricsSink over a concrete *metrics.Metrics,
// translating the runner's plain-string degraded/error tags into
// metrics.DegradedReason so the core package never depends on the metrics
// package's types.
type metricsAdapter struct {
	m *metrics.Metrics
}

func (a metricsAdapter) StartCycle(now time.Time)         { a.m.StartCycle(now) }
func (a metricsAdapter) RecordingStarted(now time.Time)   { a.m.RecordingStarted(now) }
func (a metricsAdapter) RecordingStopped(bytes int64)     { a.m.RecordingStopped(bytes) }
func (a metricsAdapter) TranscriptionStarted(now time.Time) {
	a.m.TranscriptionStarted(now)
}
func (a metricsAdapter) TranscriptionCompleted(chars, wordCount int) {
	a.m.TranscriptionCompleted(chars, wordCount)
}
func (a metricsAdapter) CycleCompleted(now time.Time, degradedReason string) {
	a.m.CycleCompleted(now, metrics.DegradedReason(degradedReason))
}
func (a metricsAdapter) CycleFailed(now time.Time, errKind string) {
	a.m.CycleFailed(now, errKind)
}

// logCycleResult writes normalized cycle metrics into the runtime logger.
func logCycleResult(logger *slog.Logger, final core.State, summary metrics.Summary) {
	if logger == nil {
		return
	}
	fields := []any{
		"state", final.Kind.String(),
		"transcript_length", len(final.Text),
		"total_cycles", summary.TotalCycles,
		"success_rate", summary.SuccessRate,
	}

	switch final.Kind {
	case core.KindError:
		logger.Error("cycle failed", append(fields, "error", final.ErrMessage)...)
	case core.KindNoSpeech:
		logger.Info("cycle completed: no speech", append(fields, "source", final.NoSpeechSource)...)
	default:
		logger.Info("cycle completed", fields...)
	}
}

// tryForward attempts to send a command to an existing owner and classifies outcome.
//
// handled=false means there was no active owner to handle the request.
func tryForward(ctx context.Context, socketPath string, command string) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, ipc.Request{Command: command}, 220*time.Millisecond)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}

	if isSocketMissing(err) {
		return ipc.Response{}, false, nil
	}
	if isConnectionRefused(err) {
		return ipc.Response{}, false, nil
	}

	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", command, err)
}

// isSocketMissing reports whether forwarding failed because the owner socket is absent.
func isSocketMissing(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist) ||
		strings.Contains(err.Error(), "no such file or directory")
}

// isConnectionRefused reports whether forwarding failed because no owner is listening.
func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
