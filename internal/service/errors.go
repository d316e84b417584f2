package service

import (
	"fmt"
	"time"
)

// DispatchError is one command that could not be launched or signalled on
// one host. It never stops the run.
type DispatchError struct {
	Host     string
	Workload string
	Role     string
	Phase    string
	Err      error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s %s %s on %s: %v", e.Workload, e.Role, e.Phase, e.Host, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// ClientTimeoutError means a client was still running after the post-deadline grace window.
type ClientTimeoutError struct {
	Host     string
	Workload string
	Timeout  time.Duration
}

func (e *ClientTimeoutError) Error() string {
	return fmt.Sprintf("%s client on %s did not finish within %v after the deadline", e.Workload, e.Host, e.Timeout)
}

// ClientExitError is a client that finished with a failure status.
type ClientExitError struct {
	Host     string
	Workload string
	Err      error
}

func (e *ClientExitError) Error() string {
	return fmt.Sprintf("%s client on %s exited: %v", e.Workload, e.Host, e.Err)
}

func (e *ClientExitError) Unwrap() error { return e.Err }

// EmptyLogError is a required result log that is missing or has no samples.
type EmptyLogError struct {
	Host string
	Path string
	Err  error
}

func (e *EmptyLogError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("result log %s for %s: %v", e.Path, e.Host, e.Err)
	}
	return fmt.Sprintf("result log %s for %s has no samples", e.Path, e.Host)
}

func (e *EmptyLogError) Unwrap() error { return e.Err }

// MalformedLogError discards the whole log of one host.
type MalformedLogError struct {
	Host   string
	Path   string
	Line   int
	Reason string
}

func (e *MalformedLogError) Error() string {
	return fmt.Sprintf("result log %s for %s, line %d: %s", e.Path, e.Host, e.Line, e.Reason)
}
