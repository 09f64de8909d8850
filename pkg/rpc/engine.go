package rpc

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// TextMessage mirrors websocket.TextMessage so the package does not import the transport.
const TextMessage = 1

// Conn is the message stream an Engine owns. *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// writeDeadliner is implemented by connections that can bound a single write.
type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Caller issues one RPC and waits for its outcome.
type Caller interface {
	Call(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error)
}

// ErrEngineClosed is the cause attached to calls abandoned by Close.
var ErrEngineClosed = errors.New("engine closed")

// 单帧写入至少允许的时长，避免极短的调用超时误杀连接
const minWriteTimeout = time.Second

// 进程内唯一的请求 ID
var nextID atomic.Uint64

type result struct {
	raw json.RawMessage
	err error
}

// outFrame 交给写协程的一帧，deadline 为该调用的超时时刻
type outFrame struct {
	data     []byte
	deadline time.Time
}

type pendingCall struct {
	method   string
	issuedAt time.Time
	done     chan result // cap 1, written exactly once
}

// Engine multiplexes concurrent calls over one Conn. It is single use: once
// the connection fails or Close is called every pending call resolves with
// KindConnectionLost and later calls fail immediately.
type Engine struct {
	conn Conn
	log  *zap.Logger

	// 唯一的写协程从 outbox 取帧
	outbox chan outFrame

	mu      sync.Mutex
	pending map[uint64]*pendingCall
	closed  bool
	cause   error

	done      chan struct{}
	closeOnce sync.Once
}

// NewEngine takes ownership of conn and starts the reader loop.
func NewEngine(conn Conn, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		conn:    conn,
		log:     log,
		outbox:  make(chan outFrame),
		pending: make(map[uint64]*pendingCall),
		done:    make(chan struct{}),
	}
	go e.readLoop()
	go e.writeLoop()
	return e
}

// Done is closed once the engine is unusable.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Err returns why the engine stopped, nil while it is running.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cause
}

// Pending returns the number of calls waiting for a response.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Close abandons the connection. Pending calls fail with KindConnectionLost.
func (e *Engine) Close() error {
	e.fail(ErrEngineClosed)
	return nil
}

// Abort is Close with a caller supplied cause, reported by Err.
func (e *Engine) Abort(cause error) {
	e.fail(cause)
}

// Call sends method with params and waits up to timeout for the response.
func (e *Engine) Call(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	id := nextID.Add(1)
	payload, err := encodeRequest(id, method, params)
	if err != nil {
		return nil, &Error{Kind: KindMalformed, Method: method, Message: "encode request", Err: err}
	}

	pc := &pendingCall{method: method, issuedAt: time.Now(), done: make(chan result, 1)}

	e.mu.Lock()
	if e.closed {
		cause := e.cause
		e.mu.Unlock()
		return nil, &Error{Kind: KindConnectionLost, Method: method, Err: cause}
	}
	e.pending[id] = pc
	e.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	// 写协程阻塞时调用同样受 timeout 和 ctx 约束
	select {
	case e.outbox <- outFrame{data: payload, deadline: pc.issuedAt.Add(timeout)}:
	case r := <-pc.done:
		return r.raw, r.err
	case <-timer.C:
		return e.timedOut(id, pc, timeout)
	case <-ctx.Done():
		return e.cancelled(ctx, id, pc)
	}

	select {
	case r := <-pc.done:
		return r.raw, r.err
	case <-timer.C:
		return e.timedOut(id, pc, timeout)
	case <-ctx.Done():
		return e.cancelled(ctx, id, pc)
	}
}

func (e *Engine) timedOut(id uint64, pc *pendingCall, timeout time.Duration) (json.RawMessage, error) {
	if !e.remove(id) {
		r := <-pc.done
		return r.raw, r.err
	}
	e.log.Debug("rpc call timed out",
		zap.String("method", pc.method),
		zap.Uint64("id", id),
		zap.Duration("elapsed", time.Since(pc.issuedAt)))
	return nil, &Error{Kind: KindTimeout, Method: pc.method, Message: timeout.String()}
}

func (e *Engine) cancelled(ctx context.Context, id uint64, pc *pendingCall) (json.RawMessage, error) {
	if !e.remove(id) {
		r := <-pc.done
		return r.raw, r.err
	}
	kind := KindConnectionLost
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return nil, &Error{Kind: kind, Method: pc.method, Err: ctx.Err()}
}

// remove drops id from the table; false means someone else already resolved it.
func (e *Engine) remove(id uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.pending[id]; !ok {
		return false
	}
	delete(e.pending, id)
	return true
}

func (e *Engine) readLoop() {
	for {
		mt, data, err := e.conn.ReadMessage()
		if err != nil {
			e.fail(err)
			return
		}
		if mt != TextMessage {
			e.log.Debug("non-text frame dropped", zap.Int("type", mt), zap.Int("bytes", len(data)))
			continue
		}
		e.dispatch(data)
	}
}

// writeLoop is the only writer of conn. A failed or expired write kills the engine.
func (e *Engine) writeLoop() {
	wd, canDeadline := e.conn.(writeDeadliner)
	for {
		select {
		case <-e.done:
			return
		case f := <-e.outbox:
			if canDeadline {
				deadline := f.deadline
				if floor := time.Now().Add(minWriteTimeout); deadline.Before(floor) {
					deadline = floor
				}
				_ = wd.SetWriteDeadline(deadline)
			}
			if err := e.conn.WriteMessage(TextMessage, f.data); err != nil {
				e.fail(err)
				return
			}
		}
	}
}

func (e *Engine) dispatch(data []byte) {
	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		e.log.Warn("malformed frame dropped", zap.Error(err), zap.Int("bytes", len(data)))
		return
	}

	id, ok, err := parseID(resp.ID)
	if err != nil {
		e.log.Warn("frame with unreadable id dropped", zap.ByteString("id", resp.ID), zap.Error(err))
		return
	}
	if !ok {
		e.log.Debug("notification dropped", zap.String("method", resp.Method))
		return
	}

	e.mu.Lock()
	pc, found := e.pending[id]
	if found {
		delete(e.pending, id)
	}
	e.mu.Unlock()

	if !found {
		e.log.Debug("unmatched response dropped", zap.Uint64("id", id))
		return
	}

	if resp.Error != nil {
		pc.done <- result{err: &Error{
			Kind:    KindRemote,
			Method:  pc.method,
			Code:    resp.Error.Code,
			Message: resp.Error.Message,
			Data:    resp.Error.Data,
		}}
		return
	}
	raw := resp.Result
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	pc.done <- result{raw: raw}
}

// fail marks the engine dead and resolves every pending call with ConnectionLost.
func (e *Engine) fail(cause error) {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.cause = cause
		abandoned := e.pending
		e.pending = make(map[uint64]*pendingCall)
		e.mu.Unlock()

		for _, pc := range abandoned {
			pc.done <- result{err: &Error{Kind: KindConnectionLost, Method: pc.method, Err: cause}}
		}
		if !errors.Is(cause, ErrEngineClosed) {
			e.log.Warn("connection lost", zap.Error(cause), zap.Int("abandoned_calls", len(abandoned)))
		}
		_ = e.conn.Close()
		close(e.done)
	})
}
