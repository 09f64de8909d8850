package link

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/truenas-collector/pkg/rpc"
)

const methodLoginWithAPIKey = "auth.login_with_api_key"

// Authenticator performs the credential exchange on a fresh engine.
type Authenticator interface {
	Authenticate(ctx context.Context, c rpc.Caller) error
}

// APIKeyAuthenticator logs in with an API key.
type APIKeyAuthenticator struct {
	Key     string
	Timeout time.Duration
}

func (a APIKeyAuthenticator) Authenticate(ctx context.Context, c rpc.Caller) error {
	raw, err := c.Call(ctx, methodLoginWithAPIKey, []string{strings.TrimSpace(a.Key)}, a.Timeout)
	if err != nil {
		return &AuthError{Err: err}
	}
	var ok bool
	if err := json.Unmarshal(raw, &ok); err != nil {
		return &AuthError{Err: rpc.Malformed(methodLoginWithAPIKey, err)}
	}
	if !ok {
		return &AuthError{Err: ErrKeyRejected}
	}
	return nil
}

// isNotAuthenticated reports a remote error saying the session lost its login.
func isNotAuthenticated(err error) bool {
	var rerr *rpc.Error
	if !errors.As(err, &rerr) || rerr.Kind != rpc.KindRemote {
		return false
	}
	if strings.Contains(rerr.Message, "ENOTAUTHENTICATED") || strings.EqualFold(rerr.Message, "not authenticated") {
		return true
	}
	return bytes.Contains(rerr.Data, []byte("ENOTAUTHENTICATED"))
}
