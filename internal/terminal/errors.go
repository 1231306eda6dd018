package terminal

import (
	"errors"
	"fmt"
)

// ErrorKind classifies command failures.
type ErrorKind int

const (
	// UsageError is a missing or malformed argument, found before any remote call.
	UsageError ErrorKind = iota
	// RemoteFailure is an action the backend answered with success=false.
	RemoteFailure
	// TransportFailure is a request that never produced an envelope.
	TransportFailure
	// CoercionFailure is a response whose data had an unexpected shape.
	CoercionFailure
	// PartialFailure is a multi-step command where a later step failed.
	PartialFailure
	// InternalFailure is a panic caught at the dispatch boundary.
	InternalFailure
)

func (k ErrorKind) String() string {
	switch k {
	case UsageError:
		return "usage"
	case RemoteFailure:
		return "remote"
	case TransportFailure:
		return "transport"
	case CoercionFailure:
		return "coercion"
	case PartialFailure:
		return "partial"
	case InternalFailure:
		return "internal"
	}
	return "unknown"
}

// CommandError is returned by command handlers. Msg is shown to the user as is.
type CommandError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *CommandError) Error() string {
	return e.Msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func usageErr(msg string) error {
	return &CommandError{Kind: UsageError, Msg: msg}
}

func remoteErr(msg string) error {
	return &CommandError{Kind: RemoteFailure, Msg: msg}
}

func coercionErr(msg string, err error) error {
	return &CommandError{Kind: CoercionFailure, Msg: msg, Err: err}
}

func transportErr(err error) error {
	msg := "Error"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return &CommandError{Kind: TransportFailure, Msg: msg, Err: err}
}

func partialErr(msg string, err error) error {
	return &CommandError{Kind: PartialFailure, Msg: msg, Err: err}
}

// KindOf returns the kind of err, treating unknown errors as transport failures.
func KindOf(err error) ErrorKind {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return TransportFailure
}

func panicErr(v any) error {
	return &CommandError{Kind: InternalFailure, Msg: fmt.Sprint(v)}
}
