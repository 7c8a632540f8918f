package lifecycle

import (
	"errors"
	"fmt"
)

// Contract violations: front ends should never trigger these
var (
	ErrSessionActive = errors.New("a send session is already active")
	ErrNoSession     = errors.New("no active send session")
	ErrNotSending    = errors.New("send session has not started sending")
)

// Connection failure categories, matched with errors.Is
var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrConnectFailed        = errors.New("connection failed")
	ErrCanceled             = errors.New("canceled")
)

// ErrPolicyTimeout is returned by a PolicyResolver when DNS timed out
var ErrPolicyTimeout = errors.New("policy lookup timed out")

// ValidationError is a failed precheck step
type ValidationError struct {
	Step    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("precheck %s failed", e.Step)
	}
	return fmt.Sprintf("precheck %s failed: %s", e.Step, e.Message)
}

// ConnectionError is a failed tunnel or primary transport connection
type ConnectionError struct {
	Target  Target
	Outcome Outcome
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Target, e.Outcome)
}

func (e *ConnectionError) Unwrap() error {
	switch e.Outcome {
	case AuthFailed:
		return ErrAuthenticationFailed
	case Canceled:
		return ErrCanceled
	default:
		return ErrConnectFailed
	}
}

// PolicyError is a non-timeout policy resolution failure
type PolicyError struct {
	Err error
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("policy error: %v", e.Err)
}

func (e *PolicyError) Unwrap() error {
	return e.Err
}

// TransportUnreachable is a failed web reachability check
type TransportUnreachable struct {
	URL    string
	Status string
	Err    error
}

func (e *TransportUnreachable) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s unreachable: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("%s unreachable: HTTP status %s", e.URL, e.Status)
}

func (e *TransportUnreachable) Unwrap() error {
	return e.Err
}
