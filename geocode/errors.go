package geocode

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the service answered but had no match for the query.
	ErrNotFound = errors.New("geocode: no results found")
	// ErrInvalidPostcode means the postcode service rejected the postcode (HTTP 404).
	ErrInvalidPostcode = errors.New("geocode: invalid postcode")
	// ErrLookupFailed covers unexpected statuses and malformed or empty bodies.
	ErrLookupFailed = errors.New("geocode: lookup failed")
	// ErrNetwork wraps transport failures: DNS, refused connections, timeouts.
	ErrNetwork = errors.New("geocode: network error")
)

// StatusError records an unexpected HTTP status. It matches ErrLookupFailed
// under errors.Is.
type StatusError struct {
	Service string
	Code    int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("geocode: %s returned status %d", e.Service, e.Code)
}

func (e *StatusError) Unwrap() error { return ErrLookupFailed }

// retryable reports whether another attempt could succeed.
func retryable(err error) bool {
	if errors.Is(err, ErrNetwork) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == 429 || se.Code >= 500
	}
	return false
}
