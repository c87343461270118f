package config

import (
	"fmt"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if strings.TrimSpace(cfg.APIKeyEnv) == "" {
		return nil, fmt.Errorf("api_key_env must not be empty")
	}
	if strings.TrimSpace(cfg.RealtimeURL) == "" {
		return nil, fmt.Errorf("realtime_url must not be empty")
	}
	if strings.TrimSpace(cfg.BatchURL) == "" {
		return nil, fmt.Errorf("batch_url must not be empty")
	}
	if len(cfg.Clipboard.Argv) == 0 {
		return nil, fmt.Errorf("clipboard_cmd must not be empty")
	}
	if strings.TrimSpace(cfg.Hotkey.Toggle) == "" {
		return nil, fmt.Errorf("hotkey.toggle must not be empty")
	}

	t := cfg.Timing
	if t.MinTranscribeMS < 0 {
		return nil, fmt.Errorf("timing.min_transcribe_ms must be >= 0")
	}
	if t.VADCheckMaxMS < t.MinTranscribeMS {
		return nil, fmt.Errorf("timing.vad_check_max_ms must be >= timing.min_transcribe_ms")
	}
	if t.VADIgnoreStartMS < 0 {
		return nil, fmt.Errorf("timing.vad_ignore_start_ms must be >= 0")
	}
	if t.AutoStopMS <= 0 {
		return nil, fmt.Errorf("timing.auto_stop_ms must be > 0")
	}
	if t.HotkeyDebounceMS < 0 {
		return nil, fmt.Errorf("timing.hotkey_debounce_ms must be >= 0")
	}
	if t.DoneDismissMS < 0 {
		return nil, fmt.Errorf("timing.done_dismiss_ms must be >= 0")
	}
	if t.ClipboardTimeoutMS <= 0 {
		return nil, fmt.Errorf("timing.clipboard_timeout_ms must be > 0")
	}
	if t.StreamConnectMS <= 0 {
		return nil, fmt.Errorf("timing.stream_connect_ms must be > 0")
	}

	if cfg.RetentionCount <= 0 {
		return nil, fmt.Errorf("retention_count must be > 0")
	}

	if cfg.Version != SettingsVersion {
		warnings = append(warnings, Warning{
			Message: fmt.Sprintf("settings version %d migrated to %d; re-save to persist", cfg.Version, SettingsVersion),
		})
	}

	return warnings, nil
}
