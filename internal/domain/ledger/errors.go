package ledger

import (
	"errors"
	"fmt"
)

// Rejection kinds. Every error returned by the processor wraps exactly one of them.
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrInvalidInput      = errors.New("invalid input")
)

var kinds = []error{ErrNotFound, ErrAlreadyExists, ErrUnauthorized, ErrInvalidTransition, ErrInvalidInput}

func reject(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// KindOf returns the rejection kind wrapped by err, or nil for infrastructure failures.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// IsRejection reports whether err is a typed rejection rather than a storage failure.
func IsRejection(err error) bool {
	return KindOf(err) != nil
}
