// Package textx provides small text utilities used across the project.
package textx

import (
	"strings"
	"unicode"
)

const bom = "\uFEFF"

// StripBOM removes a leading UTF-8 byte order mark if present.
func StripBOM(s string) string {
	return strings.TrimPrefix(s, bom)
}

// NormalizeOutput canonicalises program output for comparison: CRLF
// line endings become LF, trailing whitespace is removed from every
// line, and trailing blank lines are dropped. Leading whitespace and
// interior spacing are preserved as-is.
func NormalizeOutput(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	out := strings.Join(lines, "\n")
	return strings.TrimRight(out, "\n")
}

// OutputsEqual reports whether two program outputs are equal after
// normalisation.
func OutputsEqual(got, want string) bool {
	return NormalizeOutput(got) == NormalizeOutput(want)
}

// SanitizeDiagnostic cleans diagnostic text captured from a child
// process, such as compiler output or a crashing program's stderr,
// before it is reported back to the orchestrator. Control characters
// other than tab, LF and CR are dropped and surrounding whitespace is
// trimmed. Judged stdout never passes through here.
func SanitizeDiagnostic(s string) string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '\t', '\n', '\r':
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(clean)
}
