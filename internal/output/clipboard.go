// Package output applies the clipboard side effect for a finished cycle.
package output

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/vokey/transcribe/internal/clock"
	"github.com/vokey/transcribe/internal/config"
	"github.com/vokey/transcribe/internal/core"
)

// clipboardTimeout bounds how long the external clipboard command may run
// (SPEC_FULL §4.10 / §5 "Clipboard operation: 2 000 ms").
const clipboardTimeout = 2 * time.Second

// Clipboard implements core.ClipboardService by piping text to the
// configured clipboard command on its own goroutine — some OS clipboard
// tools (wl-copy, xclip) expect single-writer, line-serialized access, so
// calls are never issued concurrently for the same Clipboard value.
type Clipboard struct {
	argv   []string
	logger *slog.Logger
	mu     sync.Mutex // serializes Copy calls
}

// NewClipboard builds a Clipboard bound to the configured command.
func NewClipboard(cfg config.Config, logger *slog.Logger) *Clipboard {
	return &Clipboard{argv: cfg.Clipboard.Argv, logger: logger}
}

// Copy implements core.ClipboardService. It always reports exactly one
// terminal event for this effect, never panics, and honors ctx cancellation.
func (c *Clipboard) Copy(ctx context.Context, id clock.RecordingId, text string, emit core.Emit) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, clipboardTimeout)
	defer cancel()

	if err := runCommandWithInput(cctx, c.argv, text); err != nil {
		if c.logger != nil {
			c.logger.Error("clipboard command failed", "error", err.Error())
		}
		emit(core.Event{Kind: core.EventClipboardFail, ID: id, Message: err.Error(), Err: err})
		return
	}
	emit(core.Event{Kind: core.EventClipboardOk, ID: id})
}

// runCommandWithInput executes argv and writes input to its stdin.
func runCommandWithInput(ctx context.Context, argv []string, input string) error {
	if len(argv) == 0 {
		return fmt.Errorf("clipboard command argv cannot be empty")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open stdin for %s: %w", argv[0], err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("start command %s: %w", argv[0], err)
	}

	if input != "" {
		if _, err := stdin.Write([]byte(input)); err != nil {
			_ = stdin.Close()
			_ = cmd.Wait()
			return fmt.Errorf("write stdin for %s: %w", argv[0], err)
		}
	}
	_ = stdin.Close()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait for %s: %w", argv[0], err)
	}
	return nil
}
