// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

package registry

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors returned (wrapped) by every registry call.
var (
	// ErrNotFound is a 404 from the registry.
	ErrNotFound = errors.New("registry: not found")

	// ErrConflict is a 409, or a 400 reporting that the client integration
	// id already exists.
	ErrConflict = errors.New("registry: conflict")

	// ErrUnexpectedStatus is any other non-2xx response.
	ErrUnexpectedStatus = errors.New("registry: unexpected status")

	// ErrTransport means no usable response was received: network failure,
	// an undecodable body, or an open circuit breaker.
	ErrTransport = errors.New("registry: transport failure")
)

// StatusError carries a non-2xx registry response.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Unwrap maps the status onto ErrNotFound, ErrConflict or ErrUnexpectedStatus.
func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case e.StatusCode == http.StatusConflict:
		return ErrConflict
	case e.StatusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(e.Body), "already exists"):
		return ErrConflict
	default:
		return ErrUnexpectedStatus
	}
}

// IsTransport reports whether err is a failure the caller cannot recover
// from locally: a transport error or an unexpected status.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrUnexpectedStatus)
}
