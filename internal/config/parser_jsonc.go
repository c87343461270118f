package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type jsoncConfig struct {
	Version *int `json:"version"`

	APIKeyEnv   *string `json:"api_key_env"`
	RealtimeURL *string `json:"realtime_url"`
	BatchURL    *string `json:"batch_url"`

	Audio     *jsoncAudio  `json:"audio"`
	Hotkey    *jsoncHotkey `json:"hotkey"`
	Timing    *jsoncTiming `json:"timing"`
	Debug     *jsoncDebug  `json:"debug"`

	ClipboardCmd   *string `json:"clipboard_cmd"`
	RetentionCount *int    `json:"retention_count"`
}

type jsoncAudio struct {
	Input    *string `json:"input"`
	Fallback *string `json:"fallback"`
}

type jsoncHotkey struct {
	Toggle *string `json:"toggle"`
	Cancel *string `json:"cancel"`
}

type jsoncTiming struct {
	MinTranscribeMS     *int  `json:"min_transcribe_ms"`
	VADCheckMaxMS       *int  `json:"vad_check_max_ms"`
	VADIgnoreStartMS    *int  `json:"vad_ignore_start_ms"`
	ShortClipVADEnabled *bool `json:"short_clip_vad_enabled"`
	StreamingEnabled    *bool `json:"streaming_enabled"`
	AutoStopMS          *int  `json:"auto_stop_ms"`
	HotkeyDebounceMS    *int  `json:"hotkey_debounce_ms"`
	DoneDismissMS       *int  `json:"done_dismiss_ms"`
	ClipboardTimeoutMS  *int  `json:"clipboard_timeout_ms"`
	StreamConnectMS     *int  `json:"stream_connect_ms"`
}

type jsoncDebug struct {
	AudioDump *bool   `json:"audio_dump"`
	LogLevel  *string `json:"log_level"`
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	warnings, err := payload.applyTo(&cfg)
	if err != nil {
		return Config{}, nil, err
	}

	validatedWarnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	warnings = append(warnings, validatedWarnings...)
	return cfg, warnings, nil
}

func (payload jsoncConfig) applyTo(cfg *Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if payload.Version == nil {
		warnings = append(warnings, Warning{Message: "settings file has no \"version\" field; treating as v1 and migrating"})
		cfg.Version = 1
	} else {
		cfg.Version = *payload.Version
	}

	if payload.APIKeyEnv != nil {
		cfg.APIKeyEnv = strings.TrimSpace(*payload.APIKeyEnv)
	}
	if payload.RealtimeURL != nil {
		cfg.RealtimeURL = strings.TrimSpace(*payload.RealtimeURL)
	}
	if payload.BatchURL != nil {
		cfg.BatchURL = strings.TrimSpace(*payload.BatchURL)
	}

	if payload.Audio != nil {
		if payload.Audio.Input != nil {
			cfg.Audio.Input = *payload.Audio.Input
		}
		if payload.Audio.Fallback != nil {
			cfg.Audio.Fallback = *payload.Audio.Fallback
		}
	}

	if payload.Hotkey != nil {
		if payload.Hotkey.Toggle != nil {
			cfg.Hotkey.Toggle = strings.ToLower(strings.TrimSpace(*payload.Hotkey.Toggle))
		}
		if payload.Hotkey.Cancel != nil {
			cfg.Hotkey.Cancel = strings.ToLower(strings.TrimSpace(*payload.Hotkey.Cancel))
		}
	}

	if payload.Timing != nil {
		t := payload.Timing
		if t.MinTranscribeMS != nil {
			cfg.Timing.MinTranscribeMS = *t.MinTranscribeMS
		}
		if t.VADCheckMaxMS != nil {
			cfg.Timing.VADCheckMaxMS = *t.VADCheckMaxMS
		}
		if t.VADIgnoreStartMS != nil {
			cfg.Timing.VADIgnoreStartMS = *t.VADIgnoreStartMS
		}
		if t.ShortClipVADEnabled != nil {
			cfg.Timing.ShortClipVADEnabled = *t.ShortClipVADEnabled
		}
		if t.StreamingEnabled != nil {
			cfg.Timing.StreamingEnabled = *t.StreamingEnabled
		}
		if t.AutoStopMS != nil {
			cfg.Timing.AutoStopMS = *t.AutoStopMS
		}
		if t.HotkeyDebounceMS != nil {
			cfg.Timing.HotkeyDebounceMS = *t.HotkeyDebounceMS
		}
		if t.DoneDismissMS != nil {
			cfg.Timing.DoneDismissMS = *t.DoneDismissMS
		}
		if t.ClipboardTimeoutMS != nil {
			cfg.Timing.ClipboardTimeoutMS = *t.ClipboardTimeoutMS
		}
		if t.StreamConnectMS != nil {
			cfg.Timing.StreamConnectMS = *t.StreamConnectMS
		}
	}

	if payload.ClipboardCmd != nil {
		raw := *payload.ClipboardCmd
		argv, err := parseArgv(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid clipboard_cmd: %w", err)
		}
		cfg.Clipboard = CommandConfig{Raw: raw, Argv: argv}
	}

	if payload.RetentionCount != nil {
		cfg.RetentionCount = *payload.RetentionCount
	}

	if payload.Debug != nil {
		if payload.Debug.AudioDump != nil {
			cfg.Debug.EnableAudioDump = *payload.Debug.AudioDump
		}
		if payload.Debug.LogLevel != nil {
			cfg.Debug.LogLevel = strings.TrimSpace(*payload.Debug.LogLevel)
		}
	}

	return warnings, nil
}

func normalizeJSONC(content string) (string, error) {
	withoutComments, err := stripJSONCComments(content)
	if err != nil {
		return "", err
	}
	return stripJSONCTrailingCommas(withoutComments), nil
}

func stripJSONCComments(content string) (string, error) {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false
	lineComment := false
	blockComment := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if lineComment {
			if ch == '\n' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			if ch == '\r' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			out.WriteByte(' ')
			continue
		}

		if blockComment {
			if ch == '*' && i+1 < len(content) && content[i+1] == '/' {
				blockComment = false
				out.WriteString("  ")
				i++
				continue
			}
			if ch == '\n' || ch == '\r' || ch == '\t' {
				out.WriteByte(ch)
			} else {
				out.WriteByte(' ')
			}
			continue
		}

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == '/' && i+1 < len(content) {
			next := content[i+1]
			if next == '/' {
				lineComment = true
				out.WriteString("  ")
				i++
				continue
			}
			if next == '*' {
				blockComment = true
				out.WriteString("  ")
				i++
				continue
			}
		}

		out.WriteByte(ch)
	}

	if blockComment {
		return "", fmt.Errorf("unterminated block comment in JSONC")
	}

	return out.String(), nil
}

func stripJSONCTrailingCommas(content string) string {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == ',' {
			j := i + 1
			for j < len(content) && isJSONWhitespace(content[j]) {
				j++
			}
			if j < len(content) && (content[j] == '}' || content[j] == ']') {
				continue
			}
		}

		out.WriteByte(ch)
	}

	return out.String()
}

func isJSONWhitespace(ch byte) bool {
	switch ch {
	case ' ', '\n', '\r', '\t':
		return true
	default:
		return false
	}
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := int(offset)
	if limit > len(content) {
		limit = len(content)
	}

	line := 1
	col := 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
