package logger

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxRefLength bounds git refs and branch names in log output
	MaxRefLength = 255
	// MaxPathLength bounds file and URL paths in log output
	MaxPathLength = 500
	// MaxErrorMessageLength bounds error messages in log output
	MaxErrorMessageLength = 1000
)

// SanitizeRef prepares a branch or ref name for logging. Branch names
// arrive from queue messages and repository content, so control
// characters are stripped to prevent log injection.
func SanitizeRef(ref string) string {
	return SanitizeString(ref, MaxRefLength)
}

// SanitizePath prepares a file or URL path for logging
func SanitizePath(path string) string {
	return SanitizeString(path, MaxPathLength)
}

// SanitizeError prepares an error message for logging
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeString(err.Error(), MaxErrorMessageLength)
}

// SanitizeString strips control characters, repairs invalid UTF-8 and
// truncates to maxLength. Space and tab survive; newlines do not, so a
// crafted value cannot forge additional log lines.
func SanitizeString(s string, maxLength int) string {
	if s == "" {
		return ""
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	var builder strings.Builder
	builder.Grow(len(s))
	for _, r := range s {
		if unicode.IsPrint(r) || r == ' ' || r == '\t' {
			builder.WriteRune(r)
		}
	}
	s = builder.String()
	if maxLength > 0 && len(s) > maxLength {
		s = s[:maxLength] + "..."
	}
	return s
}
