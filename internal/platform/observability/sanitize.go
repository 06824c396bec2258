package observability

import (
	"strings"
	"unicode"
)

const (
	maxRouteLength      = 180
	maxMethodLength     = 10
	maxTerminalIDLength = 32
)

// cleanLabel drops control characters and caps the result at limit runes.
func cleanLabel(value string, limit int) string {
	var b strings.Builder
	n := 0
	for _, r := range value {
		if n == limit {
			break
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

// SanitizeRoute makes a route pattern safe for log fields and span attributes.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return cleanLabel(route, maxRouteLength)
}

// SanitizeMethod normalises an HTTP method for logs.
func SanitizeMethod(method string) string {
	return strings.ToUpper(cleanLabel(method, maxMethodLength))
}

// SanitizeTerminalID accepts register ids made of ASCII letters, digits, '.', '_' and '-'.
// Anything else, including ids longer than 32 bytes, yields "".
func SanitizeTerminalID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > maxTerminalIDLength {
		return ""
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '_', r == '-':
		default:
			return ""
		}
	}
	return id
}
