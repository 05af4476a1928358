package exchange

import (
	"errors"
	"fmt"
)

// Kind classifies failures surfaced by the client.
type Kind int

const (
	KindSigning Kind = iota + 1
	KindTransport
	KindAPI
	KindTimeout
	KindDurability
	KindAborted
)

func (k Kind) String() string {
	switch k {
	case KindSigning:
		return "signing"
	case KindTransport:
		return "transport"
	case KindAPI:
		return "api"
	case KindTimeout:
		return "timeout"
	case KindDurability:
		return "durability"
	case KindAborted:
		return "aborted"
	}
	return "unknown"
}

// Transport sub-codes. They are negative so they never collide with the
// positive codes returned by the exchange.
const (
	CodeConnectionRefused = -1
	CodeTransferFailed    = -2
	CodeNoResponse        = -3
	CodeResolveFailure    = -4
)

// CodeAPIMessage is used for every upstream error body carrying "message".
const CodeAPIMessage = 1

// CodePositionNotFound mirrors the upstream "position does not exist" code.
const CodePositionNotFound = 40410000

var (
	ErrSigning    = errors.New("signing error")
	ErrTransport  = errors.New("transport error")
	ErrAPI        = errors.New("api error")
	ErrTimeout    = errors.New("timeout")
	ErrDurability = errors.New("durability warning")
	ErrAborted    = errors.New("aborted")
)

// Error is the single error type returned across the client boundary.
type Error struct {
	Kind    Kind
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != 0 {
		return fmt.Sprintf("gdax %s error (code %d): %s", e.Kind, e.Code, msg)
	}
	return fmt.Sprintf("gdax %s error: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the package sentinels by kind.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	switch target {
	case ErrSigning:
		return e.Kind == KindSigning
	case ErrTransport:
		return e.Kind == KindTransport
	case ErrAPI:
		return e.Kind == KindAPI
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrDurability:
		return e.Kind == KindDurability
	case ErrAborted:
		return e.Kind == KindAborted
	}
	return false
}

func SigningError(err error) *Error {
	return &Error{Kind: KindSigning, Message: "failed to sign request", Err: err}
}

func TransportError(code int, err error) *Error {
	return &Error{Kind: KindTransport, Code: code, Message: transportMessage(code), Err: err}
}

func APIError(code int, message string) *Error {
	return &Error{Kind: KindAPI, Code: code, Message: message}
}

func TimeoutError(message string) *Error {
	return &Error{Kind: KindTimeout, Message: message}
}

func DurabilityWarning(err error) *Error {
	return &Error{Kind: KindDurability, Message: "order id log not persisted", Err: err}
}

func AbortedError(message string) *Error {
	return &Error{Kind: KindAborted, Message: message}
}

func transportMessage(code int) string {
	switch code {
	case CodeConnectionRefused:
		return "connection refused"
	case CodeNoResponse:
		return "no response from server"
	case CodeResolveFailure:
		return "could not resolve host"
	}
	return "transfer failed"
}

// AsError extracts an *Error from err, wrapping foreign errors as API errors.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindAPI, Code: CodeAPIMessage, Message: err.Error(), Err: err}
}
