package auth

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/samber/oops"
)

// Messages shown to the form layer.
const (
	MsgInvalidForm    = "Invalid form submission"
	MsgIncorrectLogin = "Incorrect login"
	MsgDuplicateEmail = "User already exists with that email"
	MsgCreateFailed   = "Something went wrong trying to create a new user."
	MsgInternal       = "Something went wrong"
)

var (
	ErrDuplicateEmail = errors.New("user already exists with that email")
	// ErrInvalidCredentials is returned for an unknown email and for a wrong
	// password alike.
	ErrInvalidCredentials = errors.New("incorrect login")
	// ErrPersistence marks a store failure. Match it with errors.Is.
	ErrPersistence = errors.New("persistence failure")
)

// ValidationError collects every field that failed validation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Redirect is returned when the caller must send the client elsewhere, with
// an optional cookie to set on the way.
type Redirect struct {
	Location string
	Cookie   *http.Cookie
	// Cause is set when the redirect was forced by a failure.
	Cause error
}

func (r *Redirect) Error() string {
	if r.Cause != nil {
		return fmt.Sprintf("redirect to %s: %v", r.Location, r.Cause)
	}
	return "redirect to " + r.Location
}

func (r *Redirect) Unwrap() error { return r.Cause }

func persistenceError(code, operation string, err error) error {
	return oops.Code(code).
		With("operation", operation).
		Wrap(fmt.Errorf("%w: %w", ErrPersistence, err))
}
