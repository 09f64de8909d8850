package link

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/truenas-collector/pkg/backoff"
	"github.com/truenas-collector/pkg/rpc"
)

// ---------- fake appliance ----------

type remoteErr struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// handlerFunc returns a result, an error, or drop=true to never answer.
type handlerFunc func(params json.RawMessage) (result any, rerr *remoteErr, drop bool)

type fakeAppliance struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	handlers map[string]handlerFunc
	conns    []*websocket.Conn
	accepted atomic.Int32
}

func newFakeAppliance(t *testing.T) *fakeAppliance {
	t.Helper()
	f := &fakeAppliance{handlers: make(map[string]handlerFunc)}
	f.handle(methodLoginWithAPIKey, func(json.RawMessage) (any, *remoteErr, bool) { return true, nil, false })
	f.handle(methodPing, func(json.RawMessage) (any, *remoteErr, bool) { return "pong", nil, false })
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(func() {
		f.dropAll()
		f.srv.Close()
	})
	return f
}

func (f *fakeAppliance) handle(method string, h handlerFunc) {
	f.mu.Lock()
	f.handlers[method] = h
	f.mu.Unlock()
}

func (f *fakeAppliance) dialConfig() DialConfig {
	return DialConfig{
		Host:             strings.TrimPrefix(f.srv.URL, "http://"),
		Path:             "/api/current",
		HandshakeTimeout: time.Second,
	}
}

func (f *fakeAppliance) dropAll() {
	f.mu.Lock()
	conns := f.conns
	f.conns = nil
	f.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}

func (f *fakeAppliance) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/current" {
		http.NotFound(w, r)
		return
	}
	c, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	f.accepted.Add(1)
	f.mu.Lock()
	f.conns = append(f.conns, c)
	f.mu.Unlock()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if json.Unmarshal(data, &req) != nil {
			continue
		}
		f.mu.Lock()
		h, ok := f.handlers[req.Method]
		f.mu.Unlock()

		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if !ok {
			resp["error"] = remoteErr{Code: -32601, Message: "Method not found"}
		} else {
			result, rerr, drop := h(req.Params)
			if drop {
				continue
			}
			if rerr != nil {
				resp["error"] = rerr
			} else {
				resp["result"] = result
			}
		}
		b, _ := json.Marshal(resp)
		if c.WriteMessage(websocket.TextMessage, b) != nil {
			return
		}
	}
}

// ---------- helpers ----------

func fastOptions() Options {
	return Options{
		Backoff:           backoff.Policy{Min: 5 * time.Millisecond, Max: 20 * time.Millisecond, Multiplier: 2},
		SharedAuthBackoff: true,
		KeepaliveTimeout:  time.Second,
	}
}

func startSupervisor(t *testing.T, s *Supervisor) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, s.Run(ctx))
	}()
	return func() {
		stop()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("supervisor did not stop")
		}
	}
}

func waitState(t *testing.T, s *Supervisor, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return s.CurrentLink() == want }, 5*time.Second, time.Millisecond,
		"state %s never reached, at %s", want, s.CurrentLink())
}

// ---------- tests ----------

func TestSupervisorReachesReadyAndDrains(t *testing.T) {
	app := newFakeAppliance(t)
	app.handle("pool.query", func(json.RawMessage) (any, *remoteErr, bool) {
		return map[string]any{"name": "tank", "healthy": true}, nil, false
	})

	s := New(NewWebsocketDialer(app.dialConfig()), APIKeyAuthenticator{Key: " secret \n", Timeout: time.Second}, fastOptions(), zap.NewNop())
	events := s.Subscribe(32)
	assert.Equal(t, Disconnected, s.CurrentLink())

	stop := startSupervisor(t, s)
	waitState(t, s, Ready)

	h, ok := s.ActiveEngine()
	require.True(t, ok)
	assert.Equal(t, uint64(1), h.Generation())
	assert.Equal(t, 0, s.Failures())

	raw, err := h.Call(context.Background(), "pool.query", nil, time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"tank","healthy":true}`, string(raw))

	stop()
	assert.Equal(t, Disconnected, s.CurrentLink())
	_, ok = s.ActiveEngine()
	assert.False(t, ok)
	assert.False(t, h.Valid())

	var seen []State
	for len(events) > 0 {
		seen = append(seen, (<-events).To)
	}
	assert.Equal(t, []State{Connecting, Authenticating, Ready, Draining, Disconnected}, seen)
}

func TestAuthErrorIncrementsFailures(t *testing.T) {
	app := newFakeAppliance(t)
	app.handle(methodLoginWithAPIKey, func(json.RawMessage) (any, *remoteErr, bool) {
		return nil, &remoteErr{Code: 16, Message: "unexpected authenticator run state"}, false
	})

	opts := fastOptions()
	opts.Backoff = backoff.Policy{Min: time.Hour, Max: time.Hour, Multiplier: 2}
	s := New(NewWebsocketDialer(app.dialConfig()), APIKeyAuthenticator{Key: "k", Timeout: time.Second}, opts, zap.NewNop())

	var mu sync.Mutex
	var seen []Transition
	s.OnTransition(func(tr Transition) {
		mu.Lock()
		seen = append(seen, tr)
		mu.Unlock()
		if tr.To == Ready {
			t.Error("link must not become ready")
		}
	})

	stop := startSupervisor(t, s)
	defer stop()

	require.Eventually(t, func() bool { return s.Failures() == 1 }, 5*time.Second, time.Millisecond)
	waitState(t, s, Disconnected)
	_, ok := s.ActiveEngine()
	assert.False(t, ok)
	_, ok = s.ActiveCaller()
	assert.False(t, ok)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 3)
	assert.Equal(t, Transition{From: Authenticating, To: Disconnected}, Transition{From: seen[2].From, To: seen[2].To})
}

func TestAuthFailuresCanUseSeparateCounter(t *testing.T) {
	app := newFakeAppliance(t)
	app.handle(methodLoginWithAPIKey, func(json.RawMessage) (any, *remoteErr, bool) { return false, nil, false })

	opts := fastOptions()
	opts.SharedAuthBackoff = false
	opts.Backoff = backoff.Policy{Min: time.Hour, Max: time.Hour, Multiplier: 2}
	s := New(NewWebsocketDialer(app.dialConfig()), APIKeyAuthenticator{Key: "k", Timeout: time.Second}, opts, zap.NewNop())

	stop := startSupervisor(t, s)
	defer stop()

	require.Eventually(t, func() bool { return s.AuthFailures() == 1 }, 5*time.Second, time.Millisecond)
	assert.Equal(t, 0, s.Failures())
}

func TestFailureCounterMonotonicUntilReady(t *testing.T) {
	app := newFakeAppliance(t)
	wsDialer := NewWebsocketDialer(app.dialConfig())

	var s *Supervisor
	var mu sync.Mutex
	var observed []int
	var attempts atomic.Int32
	dial := DialFunc(func(ctx context.Context) (rpc.Conn, error) {
		mu.Lock()
		observed = append(observed, s.Failures())
		mu.Unlock()
		if attempts.Add(1) <= 4 {
			return nil, &TransportError{URL: "ws://fake", Err: errors.New("connection refused")}
		}
		return wsDialer.Dial(ctx)
	})
	s = New(dial, APIKeyAuthenticator{Key: "k", Timeout: time.Second}, fastOptions(), zap.NewNop())

	stop := startSupervisor(t, s)
	defer stop()

	waitState(t, s, Ready)
	assert.Equal(t, 0, s.Failures())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, observed)
}

func TestReconnectAfterDropRejectsStaleHandle(t *testing.T) {
	app := newFakeAppliance(t)
	app.handle("disk.query", func(json.RawMessage) (any, *remoteErr, bool) { return []any{}, nil, false })

	s := New(NewWebsocketDialer(app.dialConfig()), APIKeyAuthenticator{Key: "k", Timeout: time.Second}, fastOptions(), zap.NewNop())
	stop := startSupervisor(t, s)
	defer stop()

	waitState(t, s, Ready)
	old, ok := s.ActiveEngine()
	require.True(t, ok)

	app.dropAll()

	require.Eventually(t, func() bool { return s.Generation() == 2 && s.CurrentLink() == Ready }, 5*time.Second, time.Millisecond)

	_, err := old.Call(context.Background(), "disk.query", nil, time.Second)
	assert.ErrorIs(t, err, rpc.ErrConnectionLost)
	assert.ErrorIs(t, err, ErrStaleHandle)

	cur, ok := s.ActiveEngine()
	require.True(t, ok)
	_, err = cur.Call(context.Background(), "disk.query", nil, time.Second)
	assert.NoError(t, err)
	assert.Equal(t, int32(2), app.accepted.Load())
}

func TestMissedKeepaliveReconnects(t *testing.T) {
	app := newFakeAppliance(t)
	var pings atomic.Int32
	app.handle(methodPing, func(json.RawMessage) (any, *remoteErr, bool) {
		// 第一次心跳不应答
		if pings.Add(1) == 1 {
			return nil, nil, true
		}
		return "pong", nil, false
	})

	opts := fastOptions()
	opts.KeepaliveInterval = 20 * time.Millisecond
	opts.KeepaliveTimeout = 20 * time.Millisecond
	s := New(NewWebsocketDialer(app.dialConfig()), APIKeyAuthenticator{Key: "k", Timeout: time.Second}, opts, zap.NewNop())

	stop := startSupervisor(t, s)
	defer stop()

	require.Eventually(t, func() bool { return s.Generation() >= 2 && s.CurrentLink() == Ready }, 5*time.Second, time.Millisecond)
}

func TestNotAuthenticatedForcesReconnect(t *testing.T) {
	app := newFakeAppliance(t)
	var calls atomic.Int32
	app.handle("pool.query", func(json.RawMessage) (any, *remoteErr, bool) {
		if calls.Add(1) == 1 {
			return nil, &remoteErr{Code: 13, Message: "[ENOTAUTHENTICATED] Not authenticated"}, false
		}
		return []any{}, nil, false
	})

	s := New(NewWebsocketDialer(app.dialConfig()), APIKeyAuthenticator{Key: "k", Timeout: time.Second}, fastOptions(), zap.NewNop())
	stop := startSupervisor(t, s)
	defer stop()

	waitState(t, s, Ready)
	h, _ := s.ActiveEngine()
	_, err := h.Call(context.Background(), "pool.query", nil, time.Second)
	assert.ErrorIs(t, err, rpc.ErrRemote)

	require.Eventually(t, func() bool { return s.Generation() == 2 && s.CurrentLink() == Ready }, 5*time.Second, time.Millisecond)
}

func TestSlowListenerDoesNotBlock(t *testing.T) {
	app := newFakeAppliance(t)
	s := New(NewWebsocketDialer(app.dialConfig()), APIKeyAuthenticator{Key: "k", Timeout: time.Second}, fastOptions(), zap.NewNop())
	_ = s.Subscribe(0)
	_ = s.Subscribe(1)

	stop := startSupervisor(t, s)
	defer stop()
	waitState(t, s, Ready)
}

func TestDialConfigURL(t *testing.T) {
	assert.Equal(t, "ws://nas.local/api/current", DialConfig{Host: "nas.local", Path: "/api/current"}.URL())
	assert.Equal(t, "wss://10.0.0.2:8443/api/current", DialConfig{Host: "10.0.0.2:8443", Path: "/api/current", UseTLS: true}.URL())
}

func TestStateNames(t *testing.T) {
	for _, st := range States() {
		assert.Equal(t, st, parseState(st.String()))
	}
	assert.Equal(t, "unknown", State(42).String())
}
