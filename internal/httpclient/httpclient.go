// Package httpclient builds the outbound HTTP clients used for remote API
// and integration calls, and bounds how much of a response body gets read.
package httpclient

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// New returns a client with the given total request timeout. A zero or
// negative timeout falls back to 30s.
func New(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// BodyTooLargeError reports a response body longer than the read bound.
type BodyTooLargeError struct {
	Max int64
}

func (e BodyTooLargeError) Error() string {
	return fmt.Sprintf("response body larger than %d bytes", e.Max)
}

// IsBodyTooLarge reports whether err came from an exceeded read bound.
func IsBodyTooLarge(err error) bool {
	var tooLarge BodyTooLargeError
	return errors.As(err, &tooLarge)
}

// ReadBounded drains r up to max bytes. A longer body yields
// BodyTooLargeError; max <= 0 reads without bound.
func ReadBounded(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		return io.ReadAll(r)
	}
	limited := io.LimitedReader{R: r, N: max + 1}
	data, err := io.ReadAll(&limited)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, BodyTooLargeError{Max: max}
	}
	return data, nil
}
