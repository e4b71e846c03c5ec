package httpserver

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/fairyhunter13/code-eval-worker/internal/domain"
)

// Blob keys come from the orchestrator, but they end up in log lines
// and error envelopes, so they are validated beyond the struct tags.

// ValidateBlobKey rejects keys that could not name a blob: empty,
// oversized, absolute, or containing path traversal.
func ValidateBlobKey(field, key string) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: %s is required", domain.ErrInvalidArgument, field)
	case len(key) > 1024:
		return fmt.Errorf("%w: %s is too long", domain.ErrInvalidArgument, field)
	case !utf8.ValidString(key):
		return fmt.Errorf("%w: %s is not valid UTF-8", domain.ErrInvalidArgument, field)
	case strings.HasPrefix(key, "/"):
		return fmt.Errorf("%w: %s must be container-relative", domain.ErrInvalidArgument, field)
	case strings.Contains(key, ".."):
		return fmt.Errorf("%w: %s must not contain path traversal", domain.ErrInvalidArgument, field)
	case strings.ContainsAny(key, "\x00\r\n"):
		return fmt.Errorf("%w: %s contains control characters", domain.ErrInvalidArgument, field)
	}
	return nil
}

var testCaseIDPattern = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SanitizeTestCaseID strips everything outside [a-zA-Z0-9_-] and caps
// the length. The result may be empty; the handler then assigns a
// positional id.
func SanitizeTestCaseID(id string) string {
	id = testCaseIDPattern.ReplaceAllString(strings.TrimSpace(id), "")
	if len(id) > 100 {
		id = id[:100]
	}
	return id
}
