package link

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/truenas-collector/pkg/backoff"
	"github.com/truenas-collector/pkg/rpc"
)

const methodPing = "core.ping"

// Options tune reconnect pacing and liveness checks.
type Options struct {
	Backoff backoff.Policy
	// SharedAuthBackoff paces auth failures with the transport failure counter.
	SharedAuthBackoff bool
	// KeepaliveInterval 为 0 时关闭心跳
	KeepaliveInterval time.Duration
	KeepaliveTimeout  time.Duration
}

// Supervisor owns the connection to the appliance. It connects,
// authenticates, serves and reconnects on its own; callers only observe
// the state and borrow the active engine through a Handle.
type Supervisor struct {
	dialer Dialer
	auth   Authenticator
	opts   Options
	log    *zap.Logger

	machine *fsm.FSM
	state   atomic.Int32

	failures     atomic.Int64
	authFailures atomic.Int64

	mu         sync.RWMutex
	engine     *rpc.Engine
	generation uint64

	listenersMu sync.Mutex
	listeners   []chan Transition
	observers   []func(Transition)
}

func New(dialer Dialer, auth Authenticator, opts Options, log *zap.Logger) *Supervisor {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Supervisor{
		dialer: dialer,
		auth:   auth,
		opts:   opts,
		log:    log,
	}
	s.machine = newMachine(s.entered)
	return s
}

// ---------- observation ----------

// CurrentLink returns the current state.
func (s *Supervisor) CurrentLink() State {
	return State(s.state.Load())
}

// Failures is the consecutive failure count used for backoff.
func (s *Supervisor) Failures() int { return int(s.failures.Load()) }

// AuthFailures is the separate auth counter, only used when auth backoff is not shared.
func (s *Supervisor) AuthFailures() int { return int(s.authFailures.Load()) }

// Generation counts how many times the link became Ready.
func (s *Supervisor) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// ActiveEngine returns a handle on the engine of the current Ready period.
func (s *Supervisor) ActiveEngine() (Handle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.engine == nil || s.CurrentLink() != Ready {
		return Handle{}, false
	}
	return Handle{generation: s.generation, engine: s.engine, sup: s}, true
}

// ActiveCaller is ActiveEngine for callers that only need rpc.Caller.
func (s *Supervisor) ActiveCaller() (rpc.Caller, bool) {
	h, ok := s.ActiveEngine()
	if !ok {
		return nil, false
	}
	return h, true
}

// Subscribe returns a channel receiving transitions. Sends never block: when
// the buffer is full the transition is dropped for that listener.
func (s *Supervisor) Subscribe(buffer int) <-chan Transition {
	ch := make(chan Transition, buffer)
	s.listenersMu.Lock()
	s.listeners = append(s.listeners, ch)
	s.listenersMu.Unlock()
	return ch
}

// OnTransition registers fn to run on every transition; fn must not block.
func (s *Supervisor) OnTransition(fn func(Transition)) {
	s.listenersMu.Lock()
	s.observers = append(s.observers, fn)
	s.listenersMu.Unlock()
}

func (s *Supervisor) entered(from, to State) {
	s.state.Store(int32(to))

	s.mu.RLock()
	tr := Transition{From: from, To: to, Generation: s.generation, At: time.Now()}
	s.mu.RUnlock()

	s.listenersMu.Lock()
	observers := s.observers
	listeners := s.listeners
	s.listenersMu.Unlock()

	for _, fn := range observers {
		fn(tr)
	}
	for _, ch := range listeners {
		select {
		case ch <- tr:
		default:
		}
	}
	s.log.Info("link state changed", zap.Stringer("from", from), zap.Stringer("to", to))
}

func (s *Supervisor) fire(event string) {
	if err := s.machine.Event(context.Background(), event); err != nil {
		s.log.Debug("link event ignored", zap.String("event", event), zap.Error(err))
	}
}

// ---------- lifecycle ----------

// Run drives the link until ctx is cancelled, then drains and returns.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			s.shutdown(nil)
			return nil
		}

		s.fire(evDial)
		log := s.log.With(zap.String("session", uuid.NewString()))

		conn, err := s.dialer.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.shutdown(nil)
				return nil
			}
			s.fire(evFail)
			n := s.failures.Add(1)
			log.Warn("transport failure", zap.Error(err), zap.Int64("failures", n))
			if !s.wait(ctx, n) {
				s.shutdown(nil)
				return nil
			}
			continue
		}

		s.fire(evHandshake)
		engine := rpc.NewEngine(conn, log)
		if err := s.auth.Authenticate(ctx, engine); err != nil {
			if ctx.Err() != nil {
				s.shutdown(engine)
				return nil
			}
			_ = engine.Close()
			s.fire(evFail)
			n := s.authFailed()
			log.Warn("authentication failed", zap.Error(err), zap.Int64("failures", n))
			if !s.wait(ctx, n) {
				s.shutdown(nil)
				return nil
			}
			continue
		}

		gen := s.promote(engine)
		log.Info("link ready", zap.Uint64("generation", gen))

		cause := s.serve(ctx, engine)
		if ctx.Err() != nil {
			s.shutdown(engine)
			return nil
		}
		s.demote()
		_ = engine.Close()
		s.fire(evFail)
		n := s.failures.Add(1)
		log.Warn("link lost", zap.Error(cause), zap.Uint64("generation", gen))
		if !s.wait(ctx, n) {
			s.shutdown(nil)
			return nil
		}
	}
}

func (s *Supervisor) authFailed() int64 {
	if s.opts.SharedAuthBackoff {
		return s.failures.Add(1)
	}
	return s.authFailures.Add(1)
}

func (s *Supervisor) promote(engine *rpc.Engine) uint64 {
	s.failures.Store(0)
	s.authFailures.Store(0)

	s.mu.Lock()
	s.generation++
	s.engine = engine
	gen := s.generation
	s.mu.Unlock()

	s.fire(evAuthenticated)
	return gen
}

func (s *Supervisor) demote() {
	s.mu.Lock()
	s.engine = nil
	s.mu.Unlock()
}

// shutdown: -> Draining, abandon the engine, -> Disconnected.
func (s *Supervisor) shutdown(engine *rpc.Engine) {
	s.fire(evDrain)
	s.demote()
	if engine != nil {
		_ = engine.Close()
	}
	s.fire(evDrained)
	s.log.Info("link drained")
}

// serve blocks while the link is healthy and returns why it stopped.
func (s *Supervisor) serve(ctx context.Context, engine *rpc.Engine) error {
	var tick <-chan time.Time
	if s.opts.KeepaliveInterval > 0 {
		t := time.NewTicker(s.opts.KeepaliveInterval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-engine.Done():
			return engine.Err()
		case <-tick:
			raw, err := engine.Call(ctx, methodPing, nil, s.opts.KeepaliveTimeout)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("keepalive missed: %w", err)
			}
			var pong string
			if json.Unmarshal(raw, &pong) == nil && pong != "pong" {
				s.log.Debug("unexpected keepalive answer", zap.ByteString("result", raw))
			}
		}
	}
}

// wait sleeps for the backoff of the given failure count; false if ctx ended first.
func (s *Supervisor) wait(ctx context.Context, failures int64) bool {
	d := s.opts.Backoff.Delay(int(failures))
	if d <= 0 {
		return ctx.Err() == nil
	}
	s.log.Debug("reconnect scheduled", zap.Duration("delay", d), zap.Int64("failures", failures))

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// invalidate aborts the engine of generation gen if it is still the active one.
func (s *Supervisor) invalidate(gen uint64, cause error) {
	s.mu.RLock()
	engine := s.engine
	current := s.generation
	s.mu.RUnlock()

	if engine == nil || current != gen {
		return
	}
	s.log.Warn("aborting link", zap.Uint64("generation", gen), zap.Error(cause))
	engine.Abort(cause)
}
