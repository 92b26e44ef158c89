package notifications

import "errors"

// Feed errors.
var (
	ErrInvalidNotificationID = errors.New("invalid notification id")
	ErrNotificationNotFound  = errors.New("notification not found")
)
