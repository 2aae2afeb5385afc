package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrNotFound           = errors.New("not found")
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrQueryTooBroad is returned when the requested page exceeds the page
	// ceiling. It matches ErrNotFound under errors.Is.
	ErrQueryTooBroad = fmt.Errorf("%w: query too broad, narrow the search", ErrNotFound)
)

func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// BackendUnavailable wraps a transport or storage failure. The cause stays
// reachable through errors.Is / errors.As.
func BackendUnavailable(backend string, cause error) error {
	if cause == nil {
		return nil
	}
	if errors.Is(cause, ErrBackendUnavailable) {
		return cause
	}
	return fmt.Errorf("%w: %s: %w", ErrBackendUnavailable, backend, cause)
}
