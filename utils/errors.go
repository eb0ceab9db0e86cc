package utils

import (
	"errors"
	"fmt"
)

// Error classes for surface setup. A failure in any of them aborts the setup
// of the affected surface.
var (
	ErrGeometry             = errors.New("geometry error")
	ErrNumericalInstability = errors.New("numerical instability")
	ErrConfiguration        = errors.New("configuration error")
)

// SetupError carries the error class, the offending panel (or -1) and a
// description. errors.Is matches it against its class sentinel.
type SetupError struct {
	Kind  error
	Panel int
	Msg   string
}

func (e *SetupError) Error() string {
	if e.Panel >= 0 {
		return fmt.Sprintf("%v: panel %d: %s", e.Kind, e.Panel, e.Msg)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Msg)
}

func (e *SetupError) Is(target error) bool {
	return target == e.Kind
}

// GeometryErrorf reports a malformed or degenerate panel
func GeometryErrorf(panel int, format string, args ...interface{}) error {
	return &SetupError{Kind: ErrGeometry, Panel: panel, Msg: fmt.Sprintf(format, args...)}
}

// InstabilityErrorf reports a non-finite result or a vanishing denominator
func InstabilityErrorf(panel int, format string, args ...interface{}) error {
	return &SetupError{Kind: ErrNumericalInstability, Panel: panel, Msg: fmt.Sprintf(format, args...)}
}

// ConfigErrorf reports an unsupported option value
func ConfigErrorf(format string, args ...interface{}) error {
	return &SetupError{Kind: ErrConfiguration, Panel: -1, Msg: fmt.Sprintf(format, args...)}
}
