package utils

import (
	"fmt"
	"regexp"
)

// MaxIdentifierLength bounds thread and vendor identifiers
const MaxIdentifierLength = 128

var identifierRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:\-]*$`)

// ValidateThreadID validates a caller-supplied thread identifier
func ValidateThreadID(threadID string) error {
	if threadID == "" {
		return fmt.Errorf("thread_id is required")
	}
	return validateIdentifier("thread_id", threadID)
}

// ValidateVendorID validates an optional vendor filter
func ValidateVendorID(vendorID string) error {
	if vendorID == "" {
		return nil
	}
	return validateIdentifier("vendor_id", vendorID)
}

func validateIdentifier(field, value string) error {
	if len(value) > MaxIdentifierLength {
		return fmt.Errorf("%s exceeds %d characters", field, MaxIdentifierLength)
	}
	if !identifierRegex.MatchString(value) {
		return fmt.Errorf("invalid %s format: %s", field, SanitizeString(value))
	}
	return nil
}

// SanitizeString removes control characters before a value is echoed back
func SanitizeString(s string) string {
	return regexp.MustCompile(`[\x00-\x1f\x7f]`).ReplaceAllString(s, "")
}
