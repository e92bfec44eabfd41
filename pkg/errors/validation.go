package errors

import (
	"strings"
	"unicode"
)

// ValidateFilename validates a display name used to derive download names.
// It rejects names that could escape the output directory when written by
// the CLI or injected into a Content-Disposition header by the server.
//
// The validation rules are intentionally conservative:
//   - No empty names
//   - No control characters or quotes
//   - No path separators or traversal sequences
//   - Maximum length of 255 characters
func ValidateFilename(name string) error {
	if name == "" {
		return New(ErrCodeInvalidFilename, "file name cannot be empty")
	}

	if len(name) > 255 {
		return New(ErrCodeInvalidFilename, "file name too long (max 255 characters)")
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidFilename, "file name contains invalid control characters")
		}
	}

	dangerousPatterns := []string{
		"..",   // Parent directory
		"/",    // Path separator
		"\\",   // Backslash (Windows path)
		"\"",   // Header quoting
		"\x00", // Null byte
	}

	for _, pattern := range dangerousPatterns {
		if strings.Contains(name, pattern) {
			return New(ErrCodeInvalidFilename, "file name contains invalid characters: %q", pattern)
		}
	}

	return nil
}

// ValidateID validates an opaque session or artifact identifier taken from a URL.
func ValidateID(id string) error {
	if id == "" {
		return New(ErrCodeInvalidInput, "id cannot be empty")
	}

	if len(id) > 64 {
		return New(ErrCodeInvalidInput, "id too long (max 64 characters)")
	}

	for _, r := range id {
		if !(r == '-' || unicode.IsDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')) {
			return New(ErrCodeInvalidInput, "id contains invalid characters")
		}
	}

	return nil
}
