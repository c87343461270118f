package config

import (
	"errors"
	"fmt"
	"os"
)

// Loaded captures resolved config path, parsed values, and non-fatal warnings.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Load resolves, reads, parses, and validates the runtime configuration.
func Load(explicitPath string) (Loaded, error) {
	resolvedPath, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	base := Default()
	warnings := make([]Warning, 0)

	content, err := os.ReadFile(resolvedPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Loaded{}, fmt.Errorf("read settings %q: %w", resolvedPath, err)
		}

		warnings = append(warnings, Warning{
			Message: fmt.Sprintf("settings file %q not found; using defaults", resolvedPath),
		})
		return Loaded{
			Path:     resolvedPath,
			Config:   base,
			Warnings: warnings,
			Exists:   false,
		}, nil
	}

	cfg, parseWarnings, err := Parse(string(content), base)
	if err != nil {
		return Loaded{}, fmt.Errorf("parse settings %q: %w", resolvedPath, err)
	}
	warnings = append(warnings, parseWarnings...)

	return Loaded{
		Path:     resolvedPath,
		Config:   cfg,
		Warnings: warnings,
		Exists:   true,
	}, nil
}
