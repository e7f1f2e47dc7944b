package validator

import "strings"

// NormalizeSSID trims an SSID and reports whether it survives: empty
// after trimming, or containing a NUL code point, both reject it.
func NormalizeSSID(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", false
	}
	if strings.ContainsRune(trimmed, '\x00') {
		return "", false
	}
	return trimmed, true
}
