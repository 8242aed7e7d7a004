// Package errs provides the error types the web handlers pass through
// the middleware chain.
package errs

import "errors"

// Response is the body returned to the client when a request fails.
type Response struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Trusted carries an error whose message is safe to return to the
// client, together with the HTTP status to respond with.
type Trusted struct {
	Err    error
	Status int
}

// NewTrusted wraps the error with an HTTP status code. Handlers use this
// for expected failures like bad input or unknown resources.
func NewTrusted(err error, status int) error {
	return &Trusted{Err: err, Status: status}
}

// Error implements the error interface using the wrapped error's
// message.
func (t *Trusted) Error() string {
	return t.Err.Error()
}

// IsTrusted reports whether any error in the chain is a Trusted error.
func IsTrusted(err error) bool {
	var t *Trusted
	return errors.As(err, &t)
}

// GetTrusted extracts the Trusted error from the chain, or nil.
func GetTrusted(err error) *Trusted {
	var t *Trusted
	if !errors.As(err, &t) {
		return nil
	}
	return t
}
