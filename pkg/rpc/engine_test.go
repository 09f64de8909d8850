package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var errPipeClosed = errors.New("pipe closed")

// pipeConn 内存连接：in 为服务端发给 engine 的帧，out 为 engine 写出的帧
type pipeConn struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newPipeConn() *pipeConn {
	return &pipeConn{
		in:     make(chan []byte, 128),
		out:    make(chan []byte, 128),
		closed: make(chan struct{}),
	}
}

func (p *pipeConn) ReadMessage() (int, []byte, error) {
	select {
	case b := <-p.in:
		return TextMessage, b, nil
	case <-p.closed:
		return 0, nil, errPipeClosed
	}
}

func (p *pipeConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-p.closed:
		return errPipeClosed
	default:
	}
	select {
	case p.out <- data:
		return nil
	case <-p.closed:
		return errPipeClosed
	}
}

func (p *pipeConn) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *pipeConn) nextRequest(t *testing.T) request {
	t.Helper()
	select {
	case b := <-p.out:
		var raw struct {
			JSONRPC string          `json:"jsonrpc"`
			ID      uint64          `json:"id"`
			Method  string          `json:"method"`
			Params  json.RawMessage `json:"params"`
		}
		require.NoError(t, json.Unmarshal(b, &raw))
		return request{JSONRPC: raw.JSONRPC, ID: raw.ID, Method: raw.Method, Params: raw.Params}
	case <-time.After(2 * time.Second):
		t.Fatal("no request written")
		return request{}
	}
}

func (p *pipeConn) reply(id uint64, result string) {
	p.in <- []byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":%s}`, id, result))
}

func TestCallReturnsResult(t *testing.T) {
	conn := newPipeConn()
	e := NewEngine(conn, zaptest.NewLogger(t))
	defer e.Close()

	go func() {
		req := conn.nextRequest(t)
		conn.reply(req.ID, `{"name":"tank","healthy":true}`)
	}()

	raw, err := e.Call(context.Background(), "pool.query", nil, time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"tank","healthy":true}`, string(raw))
	assert.Equal(t, 0, e.Pending())
}

func TestRequestEnvelope(t *testing.T) {
	conn := newPipeConn()
	e := NewEngine(conn, zaptest.NewLogger(t))
	defer e.Close()

	go func() {
		_, _ = e.Call(context.Background(), "auth.login_with_api_key", []string{"k"}, 200*time.Millisecond)
	}()

	req := conn.nextRequest(t)
	assert.Equal(t, "2.0", req.JSONRPC)
	assert.Equal(t, "auth.login_with_api_key", req.Method)
	assert.JSONEq(t, `["k"]`, string(req.Params.(json.RawMessage)))
	assert.NotZero(t, req.ID)
}

func TestConcurrentCallsOutOfOrder(t *testing.T) {
	conn := newPipeConn()
	e := NewEngine(conn, zaptest.NewLogger(t))
	defer e.Close()

	const n = 50
	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			raw, err := e.Call(context.Background(), fmt.Sprintf("m.%d", i), nil, 5*time.Second)
			errs[i] = err
			results[i] = string(raw)
		}(i)
	}

	reqs := make([]request, 0, n)
	seen := make(map[uint64]bool)
	for i := 0; i < n; i++ {
		req := conn.nextRequest(t)
		require.False(t, seen[req.ID], "duplicate id %d", req.ID)
		seen[req.ID] = true
		reqs = append(reqs, req)
	}
	for i := len(reqs) - 1; i >= 0; i-- {
		conn.reply(reqs[i].ID, fmt.Sprintf("%q", reqs[i].Method))
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, fmt.Sprintf("%q", fmt.Sprintf("m.%d", i)), results[i])
	}
	assert.Equal(t, 0, e.Pending())
}

func TestRemoteError(t *testing.T) {
	conn := newPipeConn()
	e := NewEngine(conn, zaptest.NewLogger(t))
	defer e.Close()

	go func() {
		req := conn.nextRequest(t)
		conn.in <- []byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"error":{"code":16,"message":"unexpected authenticator run state"}}`, req.ID))
	}()

	_, err := e.Call(context.Background(), "auth.login_with_api_key", []string{"k"}, time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRemote)

	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 16, rerr.Code)
	assert.Equal(t, "unexpected authenticator run state", rerr.Message)
	assert.Equal(t, KindRemote, KindOf(err))
}

func TestTimeoutDiscardsLateResponse(t *testing.T) {
	conn := newPipeConn()
	e := NewEngine(conn, zaptest.NewLogger(t))
	defer e.Close()

	_, err := e.Call(context.Background(), "smart.test.results", nil, 30*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 0, e.Pending())

	late := conn.nextRequest(t)
	conn.reply(late.ID, `"too late"`)

	go func() {
		req := conn.nextRequest(t)
		conn.reply(req.ID, `"pong"`)
	}()
	raw, err := e.Call(context.Background(), "core.ping", nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, `"pong"`, string(raw))
}

func TestDisconnectAbandonsAllPending(t *testing.T) {
	conn := newPipeConn()
	e := NewEngine(conn, zaptest.NewLogger(t))

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Call(context.Background(), "disk.query", nil, time.Minute)
			errs <- err
		}()
	}
	require.Eventually(t, func() bool { return e.Pending() == n }, 2*time.Second, time.Millisecond)

	_ = conn.Close()
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.ErrorIs(t, err, ErrConnectionLost)
	}
	assert.Equal(t, 0, e.Pending())

	select {
	case <-e.Done():
	case <-time.After(time.Second):
		t.Fatal("engine not done after disconnect")
	}
	assert.ErrorIs(t, e.Err(), errPipeClosed)

	_, err := e.Call(context.Background(), "disk.query", nil, time.Second)
	assert.ErrorIs(t, err, ErrConnectionLost)
}

func TestCloseAbandonsPending(t *testing.T) {
	conn := newPipeConn()
	e := NewEngine(conn, zaptest.NewLogger(t))

	errc := make(chan error, 1)
	go func() {
		_, err := e.Call(context.Background(), "alert.list", nil, time.Minute)
		errc <- err
	}()
	require.Eventually(t, func() bool { return e.Pending() == 1 }, 2*time.Second, time.Millisecond)

	require.NoError(t, e.Close())
	err := <-errc
	assert.ErrorIs(t, err, ErrConnectionLost)
	assert.ErrorIs(t, err, ErrEngineClosed)
}

func TestContextCancelAbandonsCall(t *testing.T) {
	conn := newPipeConn()
	e := NewEngine(conn, zaptest.NewLogger(t))
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := e.Call(ctx, "pool.query", nil, time.Minute)
		errc <- err
	}()
	require.Eventually(t, func() bool { return e.Pending() == 1 }, 2*time.Second, time.Millisecond)
	cancel()

	err := <-errc
	assert.ErrorIs(t, err, ErrConnectionLost)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, e.Pending())
}

func TestGarbageFramesDoNotStopReader(t *testing.T) {
	conn := newPipeConn()
	e := NewEngine(conn, zaptest.NewLogger(t))
	defer e.Close()

	go func() {
		req := conn.nextRequest(t)
		conn.in <- []byte(`{not json`)
		conn.in <- []byte(`{"jsonrpc":"2.0","method":"collection_update","params":{}}`)
		conn.in <- []byte(`{"jsonrpc":"2.0","id":"abc","result":1}`)
		conn.reply(req.ID+1_000_000, `1`)
		conn.in <- []byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":"%d","result":42}`, req.ID))
	}()

	raw, err := e.Call(context.Background(), "system.info", nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "42", string(raw))
}

func TestNullResult(t *testing.T) {
	conn := newPipeConn()
	e := NewEngine(conn, zaptest.NewLogger(t))
	defer e.Close()

	go func() {
		req := conn.nextRequest(t)
		conn.in <- []byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d}`, req.ID))
	}()

	raw, err := e.Call(context.Background(), "core.ping", nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "null", string(raw))
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "rpc pool.query: remote error 5: boom",
		(&Error{Kind: KindRemote, Method: "pool.query", Code: 5, Message: "boom"}).Error())
	assert.Equal(t, "rpc pool.query: timeout: 1s",
		(&Error{Kind: KindTimeout, Method: "pool.query", Message: "1s"}).Error())
	assert.Equal(t, Kind(0), KindOf(errors.New("plain")))
	assert.ErrorIs(t, Malformed("x", errors.New("bad")), ErrMalformed)
}

// stalledConn 模拟不再读取的对端：WriteMessage 一直阻塞到 Close
type stalledConn struct {
	closed chan struct{}
	once   sync.Once

	mu        sync.Mutex
	deadlines []time.Time
}

func newStalledConn() *stalledConn {
	return &stalledConn{closed: make(chan struct{})}
}

func (s *stalledConn) ReadMessage() (int, []byte, error) {
	<-s.closed
	return 0, nil, errPipeClosed
}

func (s *stalledConn) WriteMessage(int, []byte) error {
	<-s.closed
	return errPipeClosed
}

func (s *stalledConn) SetWriteDeadline(t time.Time) error {
	s.mu.Lock()
	s.deadlines = append(s.deadlines, t)
	s.mu.Unlock()
	return nil
}

func (s *stalledConn) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func TestStalledWriteDoesNotBlockCalls(t *testing.T) {
	conn := newStalledConn()
	e := NewEngine(conn, zaptest.NewLogger(t))
	defer e.Close()

	// 第一个调用占住写协程
	first := make(chan error, 1)
	go func() {
		_, err := e.Call(context.Background(), "pool.query", nil, 50*time.Millisecond)
		first <- err
	}()
	select {
	case err := <-first:
		assert.ErrorIs(t, err, ErrTimeout)
	case <-time.After(2 * time.Second):
		t.Fatal("call with 50ms timeout still blocked")
	}

	// 写协程仍阻塞时，后续调用按 ctx 截止时间返回
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	second := make(chan error, 1)
	go func() {
		_, err := e.Call(ctx, "disk.query", nil, time.Minute)
		second <- err
	}()
	select {
	case err := <-second:
		assert.ErrorIs(t, err, ErrTimeout)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("call with 50ms ctx deadline still blocked")
	}
	assert.Equal(t, 0, e.Pending())

	conn.mu.Lock()
	assert.Len(t, conn.deadlines, 1)
	conn.mu.Unlock()

	// Close 解除阻塞的写入，engine 结束
	require.NoError(t, e.Close())
	select {
	case <-e.Done():
	case <-time.After(time.Second):
		t.Fatal("engine not done after close")
	}
}
