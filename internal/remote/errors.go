package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// Client errors.
var (
	ErrTokenExpired = errors.New("access token expired")
	ErrRateLimited  = errors.New("request rate limit wait aborted")
)

// StatusError is a non-2xx response from the notifications server.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("notifications server: status %d", e.Code)
	}
	return fmt.Sprintf("notifications server: status %d: %s", e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// ServerMessage returns the server-provided message carried by err, if any.
func ServerMessage(err error) (string, bool) {
	var se *StatusError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message, true
	}
	return "", false
}

// UpstreamStatus returns the server's HTTP status code.
func (e *StatusError) UpstreamStatus() int {
	return e.Code
}
