package sacn

import (
	"errors"
	"fmt"
)

// ErrConfiguration is matched by every ConfigurationError via errors.Is.
var ErrConfiguration = errors.New("invalid configuration")

// ConfigurationError is a fatal setup-time error: bad universe, channel slice
// overflow, bad port or an unknown enum value.
type ConfigurationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s=%v: %s", ErrConfiguration, e.Field, e.Value, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// Configf builds a ConfigurationError.
func Configf(field string, value any, format string, args ...any) error {
	return &ConfigurationError{Field: field, Value: value, Reason: fmt.Sprintf(format, args...)}
}

// ParseError reports a malformed datagram. The receiver drops and counts these.
type ParseError struct {
	Reason string
	Offset int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("sacn: %s (offset %d)", e.Reason, e.Offset)
}

func parseErr(reason string, offset int) *ParseError {
	return &ParseError{Reason: reason, Offset: offset}
}
