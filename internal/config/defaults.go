package config

// Default returns the canonical runtime configuration used when no settings
// file is present.
func Default() Config {
	clipboard := "wl-copy --trim-newline"

	return Config{
		Version:     SettingsVersion,
		APIKeyEnv:   "VOKEY_OPENAI_API_KEY",
		RealtimeURL: "wss://api.openai.com/v1/realtime?intent=transcription",
		BatchURL:    "https://api.openai.com/v1/audio/transcriptions",
		Audio: AudioConfig{
			Input:    "default",
			Fallback: "default",
		},
		Clipboard: CommandConfig{Raw: clipboard, Argv: mustParseArgv(clipboard)},
		Hotkey: HotkeyConfig{
			Toggle: "ctrl+alt+space",
			Cancel: "escape",
		},
		Timing: TimingConfig{
			MinTranscribeMS:     500,
			VADCheckMaxMS:       1500,
			VADIgnoreStartMS:    80,
			ShortClipVADEnabled: true,
			StreamingEnabled:    true,
			AutoStopMS:          120_000,
			HotkeyDebounceMS:    300,
			DoneDismissMS:       3_000,
			ClipboardTimeoutMS:  2_000,
			StreamConnectMS:     5_000,
		},
		Debug:          DebugConfig{LogLevel: "info"},
		RetentionCount: 5,
	}
}
