package validation

import (
	"fmt"
	"strings"

	dErrors "kycflow/pkg/domain-errors"
)

// Evidence limits
const (
	// MaxImageSize is the largest admissible evidence image (10 MiB).
	MaxImageSize = 10 * 1024 * 1024

	// MaxMultipartSize bounds a multipart evidence upload carrying two images.
	MaxMultipartSize = 2*MaxImageSize + 64*1024
)

// HTTP body limits
const (
	// MaxBodySize is the maximum allowed JSON request body size (64 KB).
	MaxBodySize = 64 * 1024
)

// String element length limits
const (
	// MaxSessionIDLength is the maximum length of a session identifier.
	MaxSessionIDLength = 128

	// MaxTokenLength is the maximum length of a session token.
	MaxTokenLength = 4096

	// MaxIDTypeLength is the maximum length of an id type code.
	MaxIDTypeLength = 64
)

// Messages shown to users for inadmissible files.
const (
	MsgImageTooLarge = "File size must be less than 10MB"
	MsgImageType     = "File must be an image (JPEG, PNG, or WebP)"
)

var allowedImageTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/jpg":  {},
	"image/png":  {},
	"image/webp": {},
}

// IsAllowedImageType reports whether contentType is an accepted evidence MIME type.
// Parameters such as "; charset" are ignored.
func IsAllowedImageType(contentType string) bool {
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	_, ok := allowedImageTypes[strings.ToLower(strings.TrimSpace(contentType))]
	return ok
}

// CheckImage validates size and type of an evidence image, returning every
// violation in a fixed order (size, then type).
func CheckImage(size int64, contentType string) []string {
	var out []string
	if size > MaxImageSize {
		out = append(out, MsgImageTooLarge)
	}
	if !IsAllowedImageType(contentType) {
		out = append(out, MsgImageType)
	}
	return out
}

// CheckStringLength validates that a string does not exceed the maximum length.
func CheckStringLength(fieldName, value string, max int) error {
	if len(value) > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
	}
	return nil
}
