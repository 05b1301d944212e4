// Package secrets resolves provider credentials given either inline or as a
// mounted file.
package secrets

import (
	"fmt"
	"os"
	"strings"
)

// Source describes where a secret may come from. File wins over Value.
type Source struct {
	Name  string
	Value string
	File  string
}

// Load returns the trimmed secret. An error is returned when neither File nor
// Value yields a usable secret.
func Load(src Source) (string, error) {
	name := strings.TrimSpace(src.Name)
	if name == "" {
		name = "secret"
	}

	if file := strings.TrimSpace(src.File); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading %s from file %q: %w", name, file, err)
		}
		secret := strings.TrimSpace(string(data))
		if secret == "" {
			return "", fmt.Errorf("%s file %q is empty", name, file)
		}
		return secret, nil
	}

	secret := strings.TrimSpace(src.Value)
	if secret == "" {
		return "", fmt.Errorf("%s is not configured", name)
	}
	return secret, nil
}

// Configured reports whether src names any source at all.
func Configured(src Source) bool {
	return strings.TrimSpace(src.File) != "" || strings.TrimSpace(src.Value) != ""
}
