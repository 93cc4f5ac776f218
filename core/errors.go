package core

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks an invalid or unstable parameter value. The store
	// keeps the last valid value when it is returned.
	ErrConfiguration = errors.New("configuration error")

	// ErrResource marks a target, program or context failure. It ends the
	// current run.
	ErrResource = errors.New("resource error")

	// ErrTransientInput marks a malformed input event that was dropped.
	ErrTransientInput = errors.New("transient input error")
)

// ConfigurationError describes a rejected parameter assignment.
type ConfigurationError struct {
	Name   string
	Value  float64
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s=%g: %s", e.Name, e.Value, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// ResourceErrorf wraps a backend failure as a resource error.
func ResourceErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrResource, fmt.Sprintf(format, args...))
}

// transientInputf wraps a dropped input event.
func transientInputf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTransientInput, fmt.Sprintf(format, args...))
}
