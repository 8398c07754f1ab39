// Package repository holds the persistence adapters of the checkout
// service: the session-scoped hold store and the payment attempt log.
// Sentinel errors defined here let handlers and services tell failure
// scenarios apart without inspecting driver errors.
package repository

import "errors"

// ErrNotFound is returned when a session or record does not exist.
// Handlers should translate this into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrInvalidValue is returned when a stored value cannot be decoded into
// the type its key promises (a malformed expiry or paymentData blob).
var ErrInvalidValue = errors.New("invalid stored value")
