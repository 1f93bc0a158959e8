// Package provider holds the error type shared by the external enrichment
// clients (search, authority, contacts).
package provider

import (
	"errors"
	"fmt"
)

// ErrMalformed marks a response that could not be decoded or lacked a field
// the pipeline needs.
var ErrMalformed = errors.New("malformed response")

// Error is returned when an enrichment collaborator fails or answers with
// error-shaped data. It is fatal for the run and never retried locally.
type Error struct {
	Provider   string
	Operation  string
	Target     string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s", e.Provider, e.Operation)
	if e.Target != "" {
		msg += fmt.Sprintf(" %q", e.Target)
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Malformed builds an Error wrapping ErrMalformed.
func Malformed(providerName, operation, target, detail string) *Error {
	return &Error{
		Provider:  providerName,
		Operation: operation,
		Target:    target,
		Err:       fmt.Errorf("%w: %s", ErrMalformed, detail),
	}
}
