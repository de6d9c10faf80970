package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Error is a field-level validation failure.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func newError(field, format string, args ...any) *Error {
	return &Error{Field: field, Message: fmt.Sprintf(format, args...)}
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

func NotBlank(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return newError(field, "%s must not be empty", field)
	}
	return nil
}

func MaxLength(field, value string, max int) error {
	if utf8.RuneCountInString(value) > max {
		return newError(field, "%s must be at most %d characters", field, max)
	}
	return nil
}

// Length requires a non-blank value of at most max characters.
func Length(field, value string, max int) error {
	if err := NotBlank(field, value); err != nil {
		return err
	}
	return MaxLength(field, value, max)
}

func IntRange(field string, value, min, max int) error {
	if value < min || value > max {
		return newError(field, "%s must be between %d and %d", field, min, max)
	}
	return nil
}

func ArrayLength(field string, n, min, max int) error {
	if n < min || n > max {
		return newError(field, "%s must contain between %d and %d items", field, min, max)
	}
	return nil
}

// NonEmptyStrings checks every element is non-blank and at most maxEach characters.
func NonEmptyStrings(field string, values []string, maxEach int) error {
	for i, value := range values {
		name := fmt.Sprintf("%s[%d]", field, i)
		if strings.TrimSpace(value) == "" {
			return newError(field, "%s must not be empty", name)
		}
		if utf8.RuneCountInString(value) > maxEach {
			return newError(field, "%s must be at most %d characters", name, maxEach)
		}
	}
	return nil
}

func IsEmail(value string) bool {
	return emailPattern.MatchString(value)
}

func Email(field, value string) error {
	if !IsEmail(value) {
		return newError(field, "%s is not a valid email address", field)
	}
	return nil
}

// Emails requires a non-empty list of valid addresses.
func Emails(field string, values []string) error {
	if len(values) == 0 {
		return newError(field, "%s must contain at least one email address", field)
	}
	for i, value := range values {
		if !IsEmail(value) {
			return newError(field, "%s[%d] is not a valid email address", field, i)
		}
	}
	return nil
}

func IsURL(value string) bool {
	if strings.TrimSpace(value) != value || value == "" {
		return false
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	return parsed.Host != ""
}

func URL(field, value string) error {
	if !IsURL(value) {
		return newError(field, "%s must be a valid http or https URL", field)
	}
	return nil
}
