// Package doctor runs runtime readiness diagnostics for config, hotkey
// devices, audio, and the transcription API.
package doctor

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/vokey/transcribe/internal/audio"
	"github.com/vokey/transcribe/internal/config"
	"github.com/vokey/transcribe/internal/hotkey"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(cfg config.Loaded) Report {
	checks := []Check{}

	checks = append(checks, Check{
		Name:    "config",
		Pass:    true,
		Message: fmt.Sprintf("loaded %q", cfg.Path),
	})

	checks = append(checks, checkCommand(cfg.Config.Clipboard.Argv, "clipboard_cmd"))
	checks = append(checks, checkHotkeyDevices())
	checks = append(checks, checkAudioSelection(cfg.Config))
	checks = append(checks, checkAPICredential(cfg.Config))
	checks = append(checks, checkAPIReachable(cfg.Config))

	return Report{Checks: checks}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkHotkeyDevices reports whether any readable keyboard input device was
// found, matching SPEC_FULL §4.3's "absence of any keyboard -> a single
// ERROR-class event exposed via status query".
func checkHotkeyDevices() Check {
	devices, err := hotkey.ListKeyboardDevices()
	if err != nil {
		return Check{Name: "hotkey.devices", Pass: false, Message: err.Error()}
	}
	if len(devices) == 0 {
		return Check{Name: "hotkey.devices", Pass: false, Message: "no readable keyboard devices under /dev/input"}
	}
	return Check{Name: "hotkey.devices", Pass: true, Message: fmt.Sprintf("found %d keyboard device(s)", len(devices))}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(cfg config.Config) Check {
	selection, err := audio.SelectDevice(context.Background(), cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkAPICredential confirms the configured environment variable holding
// the transcription API key is set and non-empty.
func checkAPICredential(cfg config.Config) Check {
	name := cfg.APIKeyEnv
	if name == "" {
		return Check{Name: "api.credential", Pass: false, Message: "api_key_env is not configured"}
	}
	if strings.TrimSpace(os.Getenv(name)) == "" {
		return Check{Name: "api.credential", Pass: false, Message: fmt.Sprintf("%s is not set", name)}
	}
	return Check{Name: "api.credential", Pass: true, Message: fmt.Sprintf("%s is set", name)}
}

// checkAPIReachable probes the batch transcription endpoint's host for basic
// network reachability; it does not attempt authenticated requests.
func checkAPIReachable(cfg config.Config) Check {
	if cfg.BatchURL == "" {
		return Check{Name: "api.reachable", Pass: false, Message: "batch_url is empty"}
	}
	client := http.Client{Timeout: 2 * time.Second}
	req, err := http.NewRequest(http.MethodHead, cfg.BatchURL, nil)
	if err != nil {
		return Check{Name: "api.reachable", Pass: false, Message: err.Error()}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Check{Name: "api.reachable", Pass: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()
	return Check{Name: "api.reachable", Pass: true, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, cfg.BatchURL)}
}
