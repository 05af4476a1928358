package exchange

// Result carries either a decoded value or an *Error. Exactly one is set.
type Result[T any] struct {
	value T
	err   *Error
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Fail wraps an error. A nil err becomes a generic API error.
func Fail[T any](err *Error) Result[T] {
	if err == nil {
		err = APIError(CodeAPIMessage, "unknown failure")
	}
	return Result[T]{err: err}
}

// OK reports success.
func (r Result[T]) OK() bool { return r.err == nil }

// Value returns the decoded value; it is the zero value on failure.
func (r Result[T]) Value() T { return r.value }

// Err returns the failure, or nil.
func (r Result[T]) Err() *Error { return r.err }

// Code is 0 on success.
func (r Result[T]) Code() int {
	if r.err == nil {
		return 0
	}
	return r.err.Code
}

// Message is empty on success.
func (r Result[T]) Message() string {
	if r.err == nil {
		return ""
	}
	return r.err.Message
}

// Unwrap converts to the (value, error) form used by client methods.
func (r Result[T]) Unwrap() (T, error) {
	if r.err != nil {
		var zero T
		return zero, r.err
	}
	return r.value, nil
}
