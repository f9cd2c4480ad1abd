package config

import (
	"errors"
	"strings"
)

// Error reports configuration or credential problems. Every problem found is
// listed so operators can fix them in one pass.
type Error struct {
	Problems []string
	Err      error
}

func (e *Error) Error() string {
	switch len(e.Problems) {
	case 0:
		return "invalid configuration"
	case 1:
		return "invalid configuration: " + e.Problems[0]
	}
	return "invalid configuration:\n  - " + strings.Join(e.Problems, "\n  - ")
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsError reports whether err is, or wraps, a configuration error.
func IsError(err error) bool {
	var cfgErr *Error
	return errors.As(err, &cfgErr)
}

func problemsOf(err error) []string {
	var cfgErr *Error
	if errors.As(err, &cfgErr) {
		return cfgErr.Problems
	}
	return []string{err.Error()}
}
