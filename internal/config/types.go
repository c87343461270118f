// Package config resolves, parses, validates, and defaults vokeytranscribe
// settings.
package config

import "time"

// SettingsVersion is the current on-disk settings schema version.
const SettingsVersion = 2

// Config is the fully materialized runtime configuration for one process.
type Config struct {
	Version int

	APIKeyEnv   string
	RealtimeURL string
	BatchURL    string

	Audio     AudioConfig
	Clipboard CommandConfig
	Hotkey    HotkeyConfig
	Timing    TimingConfig
	Debug     DebugConfig

	RetentionCount int
}

// AudioConfig controls preferred and fallback capture device selection.
type AudioConfig struct {
	Input    string
	Fallback string
}

// HotkeyConfig names the symbolic key+modifier bindings for toggle/cancel.
type HotkeyConfig struct {
	Toggle string
	Cancel string
}

// TimingConfig carries the timing knobs named in SPEC_FULL §3.5, consumed
// as an immutable snapshot cloned into each cycle at Arming.
type TimingConfig struct {
	MinTranscribeMS     int
	VADCheckMaxMS       int
	VADIgnoreStartMS    int
	ShortClipVADEnabled bool
	StreamingEnabled    bool
	AutoStopMS          int
	HotkeyDebounceMS    int
	DoneDismissMS       int
	ClipboardTimeoutMS  int
	StreamConnectMS     int
}

// Snapshot materializes the duration-typed view of TimingConfig used by the
// interaction core; it is captured once per cycle and never mutated.
type Snapshot struct {
	MinTranscribe       time.Duration
	VADCheckMax         time.Duration
	VADIgnoreStart      time.Duration
	ShortClipVADEnabled bool
	StreamingEnabled    bool
	AutoStop            time.Duration
	HotkeyDebounce      time.Duration
	DoneDismiss         time.Duration
	ClipboardTimeout    time.Duration
	StreamConnect       time.Duration
}

// AsSnapshot converts the millisecond-typed on-disk settings into the
// duration-typed snapshot consumed by the interaction core.
func (t TimingConfig) AsSnapshot() Snapshot {
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	return Snapshot{
		MinTranscribe:       ms(t.MinTranscribeMS),
		VADCheckMax:         ms(t.VADCheckMaxMS),
		VADIgnoreStart:      ms(t.VADIgnoreStartMS),
		ShortClipVADEnabled: t.ShortClipVADEnabled,
		StreamingEnabled:    t.StreamingEnabled,
		AutoStop:            ms(t.AutoStopMS),
		HotkeyDebounce:      ms(t.HotkeyDebounceMS),
		DoneDismiss:         ms(t.DoneDismissMS),
		ClipboardTimeout:    ms(t.ClipboardTimeoutMS),
		StreamConnect:       ms(t.StreamConnectMS),
	}
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	EnableAudioDump bool
	LogLevel        string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
