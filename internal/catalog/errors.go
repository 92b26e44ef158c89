package catalog

import "errors"

// Catalog errors.
var (
	ErrBrowserDestinationNotFound = errors.New("browser push destination not found")
	ErrFeedNotFound               = errors.New("feed not found")
	ErrInvalidFeedName            = errors.New("invalid feed name")
)
