package truenas

import (
	"bytes"
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/truenas-collector/pkg/rpc"
)

// Get calls method and decodes its result into T.
func Get[T any](ctx context.Context, c rpc.Caller, method string, params any, timeout time.Duration) (T, error) {
	var out T
	raw, err := c.Call(ctx, method, params, timeout)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, rpc.Malformed(method, err)
	}
	return out, nil
}

// Query calls method and decodes the result as a list of T. A single object
// result is accepted as a one element list, null as an empty one.
func Query[T any](ctx context.Context, c rpc.Caller, method string, params any, timeout time.Duration) ([]T, error) {
	raw, err := c.Call(ctx, method, params, timeout)
	if err != nil {
		return nil, err
	}
	out, err := DecodeList[T](raw)
	if err != nil {
		return nil, rpc.Malformed(method, err)
	}
	return out, nil
}

// DecodeList decodes raw as []T, accepting a bare object or null.
func DecodeList[T any](raw json.RawMessage) ([]T, error) {
	trimmed := bytes.TrimSpace(raw)
	switch {
	case len(trimmed) == 0, bytes.Equal(trimmed, []byte("null")):
		return nil, nil
	case trimmed[0] == '{':
		var one T
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return nil, err
		}
		return []T{one}, nil
	default:
		var many []T
		if err := json.Unmarshal(trimmed, &many); err != nil {
			return nil, err
		}
		return many, nil
	}
}
