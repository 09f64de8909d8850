package link

import (
	"errors"
	"fmt"
)

var (
	// ErrKeyRejected is returned when the login call answers false.
	ErrKeyRejected = errors.New("api key rejected")
	// ErrStaleHandle marks a call made through a handle from an earlier connection.
	ErrStaleHandle = errors.New("stale link handle")
	// ErrNotAuthenticated is the abort cause when the session lost its login.
	ErrNotAuthenticated = errors.New("session no longer authenticated")
)

// TransportError 连接/握手阶段失败
type TransportError struct {
	URL    string
	Status int // HTTP status of a failed upgrade, 0 if none
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("dial %s: status %d: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("dial %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthError 认证失败（密钥被拒绝或服务端会话状态异常）
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return "authenticate: " + e.Err.Error() }

func (e *AuthError) Unwrap() error { return e.Err }
