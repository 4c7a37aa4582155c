package logger

import (
	"errors"
	"strings"
	"testing"
)

func TestSanitizeString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     string
		maxLength int
		expected  string
	}{
		{name: "empty", input: "", maxLength: 10, expected: ""},
		{name: "plain text unchanged", input: "feature/login-page", maxLength: 100, expected: "feature/login-page"},
		{name: "newline stripped", input: "main\ninjected=line", maxLength: 100, expected: "maininjected=line"},
		{name: "control characters stripped", input: "bran\x00ch\x1b[31m", maxLength: 100, expected: "branch[31m"},
		{name: "tab and space survive", input: "a b\tc", maxLength: 100, expected: "a b\tc"},
		{name: "truncated with ellipsis", input: strings.Repeat("x", 20), maxLength: 10, expected: strings.Repeat("x", 10) + "..."},
		{name: "invalid utf8 repaired", input: "abc\xff\xfedef", maxLength: 100, expected: "abcdef"},
		{name: "zero max means unbounded", input: strings.Repeat("y", 50), maxLength: 0, expected: strings.Repeat("y", 50)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := SanitizeString(tt.input, tt.maxLength); got != tt.expected {
				t.Errorf("SanitizeString(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSanitizeRef(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("b", MaxRefLength+50)
	if got := SanitizeRef(long); len(got) != MaxRefLength+3 {
		t.Errorf("Expected ref truncated to %d+ellipsis, got length %d", MaxRefLength, len(got))
	}
	if got := SanitizeRef("feature/a\rb"); got != "feature/ab" {
		t.Errorf("Expected carriage return stripped, got %q", got)
	}
}

func TestSanitizeError(t *testing.T) {
	t.Parallel()

	if got := SanitizeError(nil); got != "" {
		t.Errorf("Expected empty string for nil error, got %q", got)
	}
	if got := SanitizeError(errors.New("read failed\nat line 2")); got != "read failedat line 2" {
		t.Errorf("Unexpected sanitized error: %q", got)
	}
}
