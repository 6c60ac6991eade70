package crestron

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValueOutOfRange = errors.New("value out of range 0..65535")
)

// AuthError is returned when a session cannot be established or the hub keeps rejecting it.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("crestron auth error (%s): %v", e.Op, e.Err)
	}
	return fmt.Sprintf("crestron auth error (%s)", e.Op)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// TransportError covers connection failures, timeouts and unexpected HTTP statuses.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("crestron transport error (%s): %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError means the hub answered with a body that does not have the expected shape.
type ProtocolError struct {
	Op     string
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("crestron protocol error (%s): %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("crestron protocol error (%s): %s", e.Op, e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// CatalogError wraps the first failure of a catalog fetch. No partial catalog is returned with it.
type CatalogError struct {
	Resource string
	Err      error
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("crestron catalog error (%s): %v", e.Resource, e.Err)
}

func (e *CatalogError) Unwrap() error {
	return e.Err
}

type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

func isUnauthorized(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized
}
