package link

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/truenas-collector/pkg/rpc"
)

// Handle pairs an engine with the generation it was handed out for. Calls
// through a handle from an earlier Ready period are rejected.
type Handle struct {
	generation uint64
	engine     *rpc.Engine
	sup        *Supervisor
}

// Generation of the Ready period this handle belongs to.
func (h Handle) Generation() uint64 { return h.generation }

// Valid reports whether the handle still refers to the active engine.
func (h Handle) Valid() bool {
	if h.sup == nil || h.engine == nil {
		return false
	}
	h.sup.mu.RLock()
	defer h.sup.mu.RUnlock()
	return h.sup.engine == h.engine && h.sup.generation == h.generation
}

// Call implements rpc.Caller.
func (h Handle) Call(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	if !h.Valid() {
		return nil, &rpc.Error{Kind: rpc.KindConnectionLost, Method: method, Err: ErrStaleHandle}
	}
	raw, err := h.engine.Call(ctx, method, params, timeout)
	if err != nil && isNotAuthenticated(err) {
		// 会话失效需要重新认证，直接丢弃当前连接
		h.sup.invalidate(h.generation, ErrNotAuthenticated)
	}
	return raw, err
}
