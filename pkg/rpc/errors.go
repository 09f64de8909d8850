package rpc

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// Kind 调用失败类别
type Kind int

const (
	KindTimeout Kind = iota + 1
	KindConnectionLost
	KindRemote
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnectionLost:
		return "connection_lost"
	case KindRemote:
		return "remote_error"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is; every *Error matches the sentinel of its Kind.
var (
	ErrTimeout        = errors.New("rpc: call timed out")
	ErrConnectionLost = errors.New("rpc: connection lost")
	ErrRemote         = errors.New("rpc: remote error")
	ErrMalformed      = errors.New("rpc: malformed response")
)

// Error is the failed result of a call.
type Error struct {
	Kind    Kind
	Method  string
	Code    int             // only for KindRemote
	Message string          // remote message or local detail
	Data    json.RawMessage // remote error data, if any
	Err     error           // underlying cause, may be nil
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindRemote:
		return fmt.Sprintf("rpc %s: remote error %d: %s", e.Method, e.Code, e.Message)
	default:
		msg := fmt.Sprintf("rpc %s: %s", e.Method, e.Kind)
		if e.Message != "" {
			msg += ": " + e.Message
		}
		if e.Err != nil {
			msg += ": " + e.Err.Error()
		}
		return msg
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the Kind sentinel.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrConnectionLost:
		return e.Kind == KindConnectionLost
	case ErrRemote:
		return e.Kind == KindRemote
	case ErrMalformed:
		return e.Kind == KindMalformed
	}
	return false
}

// KindOf returns the Kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Malformed builds a KindMalformed error for a result that could not be decoded.
func Malformed(method string, err error) error {
	return &Error{Kind: KindMalformed, Method: method, Err: err}
}
