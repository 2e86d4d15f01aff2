package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"syscall"
)

var (
	// ErrConnectivity matches every failure where no HTTP response arrived.
	ErrConnectivity = errors.New("backend unreachable")
	// ErrRejected matches every error status returned by the backend.
	ErrRejected = errors.New("backend rejected request")
)

// ConnectivityError is a request that never got an HTTP response
type ConnectivityError struct {
	Method string
	Path   string
	Err    error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s %s: backend unreachable: %v", e.Method, e.Path, e.Err)
}

func (e *ConnectivityError) Unwrap() []error {
	return []error{ErrConnectivity, e.Err}
}

// RejectedError is an error status returned by the backend
type RejectedError struct {
	Method string
	Path   string
	Status int
	Body   []byte
}

func (e *RejectedError) Error() string {
	body := string(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("%s %s: HTTP %d, response: %s", e.Method, e.Path, e.Status, body)
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}

// Message extracts the backend's human readable reason, if any.
func (e *RejectedError) Message() string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(e.Body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return fmt.Sprintf("HTTP %d", e.Status)
}

// FailureKind is the outcome of ClassifyFailure
type FailureKind int

const (
	FailureNone FailureKind = iota
	// FailureConnectivity: no HTTP status was received. Offline fallback applies.
	FailureConnectivity
	// FailureRejected: the backend answered with an error status. Never masked.
	FailureRejected
	// FailureLocal: the request never left the process (encoding, caller cancellation).
	FailureLocal
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureConnectivity:
		return "connectivity"
	case FailureRejected:
		return "rejected"
	default:
		return "local"
	}
}

// ClassifyFailure decides whether err means the backend is unreachable.
//
// A received HTTP status is always FailureRejected. No status plus a transport
// error, timeout, DNS failure or dropped connection is FailureConnectivity.
// Caller cancellation and errors raised before sending are FailureLocal.
func ClassifyFailure(err error) FailureKind {
	if err == nil {
		return FailureNone
	}

	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return FailureRejected
	}
	var unreachable *ConnectivityError
	if errors.As(err, &unreachable) {
		return FailureConnectivity
	}

	switch {
	case errors.Is(err, context.Canceled):
		return FailureLocal
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH):
		return FailureConnectivity
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return FailureConnectivity
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return FailureConnectivity
	}
	return FailureLocal
}
