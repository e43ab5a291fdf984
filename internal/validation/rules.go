// Package validation provides custom validation rules for the application.
package validation

import (
	"encoding/base64"
	"regexp"
	"strings"

	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/dormkeys/internal/errors"
)

var (
	fingerprintRegex = regexp.MustCompile(`^[0-9a-f]{64}$`)
	slugRegex        = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]*$`)
)

// WrapValidationError wraps validation errors as domain ErrInvalidInput
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// Fingerprint validates a lowercase hex SHA-256 device fingerprint.
var Fingerprint = validation.NewStringRuleWithError(
	fingerprintRegex.MatchString,
	validation.NewError("validation_fingerprint", "must be a 64 character lowercase hex digest"),
)

// Slug validates path-safe identifiers such as data types and data ids.
var Slug = validation.NewStringRuleWithError(
	slugRegex.MatchString,
	validation.NewError("validation_slug", "must start with a letter or digit and contain only letters, digits, '.', '_', ':' or '-'"),
)

// Base64 validates standard padded base64, the encoding of key proofs.
var Base64 = validation.NewStringRuleWithError(
	func(s string) bool {
		_, err := base64.StdEncoding.DecodeString(s)
		return err == nil
	},
	validation.NewError("validation_base64", "must be valid base64-encoded data"),
)

// NoWhitespace validates that string doesn't contain leading/trailing whitespace
var NoWhitespace = validation.NewStringRuleWithError(
	func(s string) bool {
		return s == strings.TrimSpace(s)
	},
	validation.NewError("validation_no_whitespace", "must not contain leading or trailing whitespace"),
)

// NotBlank validates that a string is not empty after trimming whitespace
var NotBlank = validation.NewStringRuleWithError(
	func(s string) bool {
		return strings.TrimSpace(s) != ""
	},
	validation.NewError("validation_not_blank", "must not be blank"),
)
