package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNetwork                = errors.New("network error")
	ErrAuthenticationFailed   = errors.New("authentication failed")
	ErrRegistrationFailed     = errors.New("registration failed")
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrValidation             = errors.New("validation failed")
	ErrMalformedData          = errors.New("malformed data")
	ErrServer                 = errors.New("server error")

	// ErrLoginRequired is returned by guarded operations invoked without a
	// session. It is a redirect signal; no request has been made.
	ErrLoginRequired = errors.New("login required")

	ErrSubmitInProgress = errors.New("review submission already in progress")
)

// RemoteError is a failed exchange with the data service or the provider.
// errors.Is matches it against its Kind.
type RemoteError struct {
	Kind    error
	Status  int
	Message string
	// SessionCleared is set when the failure forced a logout (401 on an
	// authenticated request). Callers must not retry with the old token.
	SessionCleared bool
	Err            error
}

func (e *RemoteError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *RemoteError) Is(target error) bool { return target == e.Kind }
func (e *RemoteError) Unwrap() error        { return e.Err }

// ServerStatusError classifies a non-success status from an endpoint that
// has no dedicated error kind.
func ServerStatusError(status int, msg string) *RemoteError {
	return &RemoteError{Kind: ErrServer, Status: status, Message: msg}
}

// ValidationError lists client-side problems with a form, keyed by field.
// No request is issued when it is returned.
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

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
