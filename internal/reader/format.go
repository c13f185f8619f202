package reader

import (
	"path/filepath"
	"strings"
)

// Format extracts a complete bilingual volume from a single file.
type Format interface {
	Name() string
	Extensions() []string
	Extract(filename string) (*Volume, error)
}

var registry []Format

// Register adds a format reader to the registry.
func Register(f Format) {
	registry = append(registry, f)
}

// FormatFor returns the registered format handling the file's extension.
func FormatFor(filename string) (Format, bool) {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, f := range registry {
		for _, e := range f.Extensions() {
			if ext == e {
				return f, true
			}
		}
	}
	return nil, false
}

// SupportedFormats returns registered format names with their extensions.
func SupportedFormats() []string {
	var out []string
	for _, f := range registry {
		out = append(out, f.Name()+" ("+strings.Join(f.Extensions(), ", ")+")")
	}
	return out
}

// splitBilingual splits "Deutsch | Español" into both sides. Without a
// separator both sides carry the same text.
func splitBilingual(s string) Localized {
	s = strings.TrimSpace(s)
	if de, es, ok := strings.Cut(s, "|"); ok {
		return Localized{De: strings.TrimSpace(de), Es: strings.TrimSpace(es)}
	}
	return Localized{De: s, Es: s}
}
