package secrets

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNotConfigured is returned when a credential has neither a value nor a file.
var ErrNotConfigured = errors.New("not configured")

// Source names where a credential may come from. File takes precedence over Value.
type Source struct {
	Name  string
	Value string
	File  string
}

// Load resolves src into a trimmed, non-empty credential.
func Load(src Source) (string, error) {
	name := strings.TrimSpace(src.Name)
	if name == "" {
		name = "credential"
	}

	path := strings.TrimSpace(src.File)
	if path == "" {
		if value := strings.TrimSpace(src.Value); value != "" {
			return value, nil
		}
		return "", fmt.Errorf("%s is %w", name, ErrNotConfigured)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s from %s: %w", name, path, err)
	}

	value := strings.TrimSpace(string(data))
	if value == "" {
		return "", fmt.Errorf("%s file %s is empty: %w", name, path, ErrNotConfigured)
	}
	return value, nil
}
