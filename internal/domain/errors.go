package domain

import (
	"errors"
	"fmt"
)

// ErrUnknownCity means a city is not in the configured registry. This is a
// configuration error: it is fatal for the call and never retried.
var ErrUnknownCity = errors.New("city not in registry")

// FetchError wraps a transient source failure that survived the retry
// budget. It is fatal for the (source, city) pair only; the rest of the
// run proceeds.
type FetchError struct {
	Source   Source
	City     string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s for %s failed after %d attempts: %v", e.Source, e.City, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// AuthError means the source rejected the supplied credentials. It is
// never retried.
type AuthError struct {
	Source Source
	Err    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s source rejected credentials: %v", e.Source, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// SchemaError means a payload record carried neither of the two acceptable
// date fields. It is fatal for the (source, city) pair and never retried.
type SchemaError struct {
	Source Source
	City   string
	Detail string
}

func (e *SchemaError) Error() string {
	if e.City == "" {
		return fmt.Sprintf("%s payload: %s", e.Source, e.Detail)
	}
	return fmt.Sprintf("%s payload for %s: %s", e.Source, e.City, e.Detail)
}
