package state

import (
	"errors"
	"fmt"
)

// ErrInvalidAction is the sentinel matched by every rejected action.
var ErrInvalidAction = errors.New("invalid action")

// InvalidActionError describes why an action was rejected.
type InvalidActionError struct {
	// Kind is the rejected action's kind ("" for a nil action).
	Kind Kind

	// Reason is a human-readable description.
	Reason string
}

// Error implements the error interface.
func (e *InvalidActionError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("invalid action: %s", e.Reason)
	}
	return fmt.Sprintf("invalid action %s: %s", e.Kind, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidAction) match.
func (e *InvalidActionError) Is(target error) bool {
	return target == ErrInvalidAction
}

func invalid(kind Kind, format string, args ...any) error {
	return &InvalidActionError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// IsInvalidAction reports whether err is (or wraps) an action rejection.
func IsInvalidAction(err error) bool {
	return errors.Is(err, ErrInvalidAction)
}
