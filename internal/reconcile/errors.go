package reconcile

import (
	"errors"
	"fmt"

	"github.com/bissquit/notify-agent/internal/push"
)

// Engine errors.
var (
	ErrValidation        = errors.New("invalid toggle")
	ErrRowLocked         = errors.New("subscription has a save in progress")
	ErrPushUnsupported   = push.ErrUnsupported
	ErrPermissionDenied  = errors.New("notification permission denied")
	ErrEngineClosed      = errors.New("engine closed")
	ErrNotBrowserAccount = errors.New("destination is not a browser push account")
)

// ValidationError is a toggle rejected before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// PermissionError aborts a browser push enable when the platform permission
// is not granted. No destination is changed.
type PermissionError struct {
	Permission push.Permission
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("notification permission is %s", e.Permission)
}

// Is matches ErrPermissionDenied.
func (e *PermissionError) Is(target error) bool {
	return target == ErrPermissionDenied
}
