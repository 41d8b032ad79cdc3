package errors

import (
	"regexp"
	"strings"
	"unicode"
)

// generatorIDRegex matches generator ids: lowercase segments separated by
// dashes, dots, underscores or a single namespace slash (e.g. "go/model").
var generatorIDRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9._-]*[a-z0-9])?(/[a-z0-9]([a-z0-9._-]*[a-z0-9])?)?$`)

// ValidateGeneratorID validates a generator id for safety and correctness.
// Ids double as directory names for the manifest loader and as keys in the
// persistent stores, so the rules are conservative:
//   - No empty ids
//   - Maximum length of 128 characters
//   - No control characters or path traversal sequences
//   - Lowercase alphanumerics with '.', '_', '-' and at most one '/'
func ValidateGeneratorID(id string) error {
	if id == "" {
		return New(ErrCodeValidation, "generator id cannot be empty")
	}

	if len(id) > 128 {
		return New(ErrCodeValidation, "generator id too long (max 128 characters)")
	}

	for _, r := range id {
		if unicode.IsControl(r) {
			return New(ErrCodeValidation, "generator id contains invalid control characters")
		}
	}

	if strings.Contains(id, "..") {
		return New(ErrCodeValidation, "generator id contains invalid characters: %q", "..")
	}

	if !generatorIDRegex.MatchString(id) {
		return New(ErrCodeValidation, "invalid generator id: %q", id)
	}

	return nil
}

// ValidateManifestFilename validates a manifest filename for safety.
// It ensures the filename is a simple basename without path components.
func ValidateManifestFilename(filename string) error {
	if filename == "" {
		return New(ErrCodeValidation, "manifest filename cannot be empty")
	}

	if strings.ContainsAny(filename, "/\\") {
		return New(ErrCodeValidation, "manifest filename cannot contain path separators")
	}

	if strings.HasPrefix(filename, ".") {
		return New(ErrCodeValidation, "manifest filename cannot be a hidden file")
	}

	return nil
}

// ValidatePath validates a file path reported by a generator unit.
// Rollback deletes these paths, so they must stay inside the working tree.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 500 characters
//   - No null bytes or control characters
//   - No absolute paths (must be relative)
//   - No path traversal sequences (..)
//   - No backslashes (Windows-style paths)
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}

	const maxPathLength = 500
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid characters")
		}
	}

	if strings.HasPrefix(path, "/") {
		return New(ErrCodeInvalidPath, "path must be relative (cannot start with /)")
	}

	for _, seg := range strings.Split(path, "/") {
		if seg == ".." {
			return New(ErrCodeInvalidPath, "path cannot contain path traversal sequences (..)")
		}
	}

	if strings.Contains(path, "\\") {
		return New(ErrCodeInvalidPath, "path cannot contain backslashes")
	}

	return nil
}
