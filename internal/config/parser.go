// Package config resolves, parses, validates, and defaults vokeytranscribe
// settings.
package config

import "strings"

// Parse reads settings.json content as JSONC (comments and trailing commas
// tolerated). An empty document yields the base config unchanged.
func Parse(content string, base Config) (Config, []Warning, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		validatedWarnings, err := Validate(base)
		if err != nil {
			return Config{}, nil, err
		}
		return base, validatedWarnings, nil
	}

	return parseJSONC(content, base)
}
