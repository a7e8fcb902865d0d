// Package errs defines the error kinds shared by provisioning, loading and
// prediction so the HTTP boundary can map failures to responses without
// inspecting message text.
package errs

import (
	"errors"
	"fmt"
)

// Kind 错误类别
type Kind int

const (
	Unknown Kind = iota
	Configuration
	Network
	Storage
	ArtifactLoad
	ServiceUnavailable
	BadRequest
	Internal
)

func (k Kind) String() string {
	switch k {
	case Configuration:
		return "configuration_error"
	case Network:
		return "network_error"
	case Storage:
		return "storage_error"
	case ArtifactLoad:
		return "artifact_load_error"
	case ServiceUnavailable:
		return "service_unavailable"
	case BadRequest:
		return "bad_request"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error carries a Kind, the operation that failed and an optional cause.
// Msg is what a caller may be shown; Err is kept for logs and errors.Is.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds an *Error. msg may be empty, err may be nil.
func E(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Message returns the caller-facing message of the outermost *Error, or the
// full error text when none is set.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
