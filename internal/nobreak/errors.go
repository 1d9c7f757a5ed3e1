package nobreak

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout matches any TimeoutError via errors.Is.
	ErrTimeout = errors.New("nobreak: request timed out")

	// ErrInvalidTestDuration is returned for self-test durations the device rejects.
	ErrInvalidTestDuration = errors.New("nobreak: invalid test duration")
)

// TransportError reports a request that never produced an HTTP response:
// connection refused, DNS failure, TLS handshake failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("nobreak: %s: transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HTTPStatusError reports a non-2xx response from the device server.
type HTTPStatusError struct {
	Op         string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("nobreak: %s: unexpected HTTP status %s: %s", e.Op, e.Status, e.Body)
	}
	return fmt.Sprintf("nobreak: %s: unexpected HTTP status %s", e.Op, e.Status)
}

// TimeoutError reports a request abandoned because its deadline expired.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("nobreak: %s: timed out: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrTimeout) match.
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }
