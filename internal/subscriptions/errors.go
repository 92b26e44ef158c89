package subscriptions

import (
	"errors"
	"fmt"
)

// Store errors.
var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrMutationFailed       = errors.New("subscription mutation failed")
)

// Mutation operations.
const (
	OpUpdate = "update"
	OpRemove = "remove"
)

// MutationError is a failed update or delete. Message is safe to show to
// the user.
type MutationError struct {
	Op      string
	ID      int64
	Message string
	Err     error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s subscription %d: %v", e.Op, e.ID, e.Err)
}

func (e *MutationError) Unwrap() error {
	return e.Err
}

// Is matches ErrMutationFailed.
func (e *MutationError) Is(target error) bool {
	return target == ErrMutationFailed
}
