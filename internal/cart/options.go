package cart

import (
	"regexp"
	"strings"
)

// swatchSuffix matches a trailing hex color code attached to a display name,
// e.g. "Đen|#000000", "Đen (#000)", "Đen - #000000" or "Đen #000".
var swatchSuffix = regexp.MustCompile(`^(.*?)\s*(?:\||\(|-|–)?\s*#[0-9A-Fa-f]{3,8}\s*\)?\s*$`)

var colorKeys = []string{"color", "colour", "màu", "mau"}

// deriveOptions copies a variant's option map, stripping swatch codes from
// color values.
func deriveOptions(options map[string]string) map[string]string {
	if len(options) == 0 {
		return nil
	}
	out := make(map[string]string, len(options))
	for key, value := range options {
		if isColorKey(key) {
			value = stripSwatch(value)
		}
		out[key] = value
	}
	return out
}

func isColorKey(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	for _, candidate := range colorKeys {
		if strings.Contains(k, candidate) {
			return true
		}
	}
	return false
}

func stripSwatch(value string) string {
	m := swatchSuffix.FindStringSubmatch(value)
	if m == nil {
		return strings.TrimSpace(value)
	}
	name := strings.TrimSpace(m[1])
	if name == "" {
		return strings.TrimSpace(value)
	}
	return name
}
