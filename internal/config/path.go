package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

const appDirName = "vokeytranscribe"

// ResolvePath applies CLI/XDG/home fallback rules for settings.json location.
func ResolvePath(explicit string) (string, error) {
	if strings.TrimSpace(explicit) != "" {
		return explicit, nil
	}

	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "settings.json"), nil
}

func configDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, appDirName), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for config fallback")
	}
	return filepath.Join(home, ".config", appDirName), nil
}

// TempAudioDir returns the directory WAV files are written to before
// cleanup, per SPEC_FULL §6.1: "<data-dir>/vokeytranscribe/temp/audio/".
func TempAudioDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdg != "" {
		return filepath.Join(xdg, appDirName, "temp", "audio"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for temp dir fallback")
	}
	return filepath.Join(home, ".local", "share", appDirName, "temp", "audio"), nil
}
