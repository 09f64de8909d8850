package link

import (
	"context"
	"time"

	"github.com/looplab/fsm"
)

// State 连接生命周期状态
type State int

const (
	Disconnected State = iota
	Connecting
	Authenticating
	Ready
	Draining
)

var stateNames = [...]string{"disconnected", "connecting", "authenticating", "ready", "draining"}

// States lists every State in declaration order.
func States() []State {
	return []State{Disconnected, Connecting, Authenticating, Ready, Draining}
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

func parseState(name string) State {
	for i, n := range stateNames {
		if n == name {
			return State(i)
		}
	}
	return Disconnected
}

// Transition is published to listeners on every state change.
type Transition struct {
	From       State
	To         State
	Generation uint64 // generation current when the transition happened
	At         time.Time
}

// ---------- fsm events ----------

const (
	evDial          = "dial"
	evHandshake     = "handshake"
	evAuthenticated = "authenticated"
	evFail          = "fail"
	evDrain         = "drain"
	evDrained       = "drained"
)

func newMachine(onEnter func(from, to State)) *fsm.FSM {
	return fsm.NewFSM(
		Disconnected.String(),
		fsm.Events{
			{Name: evDial, Src: []string{Disconnected.String()}, Dst: Connecting.String()},
			{Name: evHandshake, Src: []string{Connecting.String()}, Dst: Authenticating.String()},
			{Name: evAuthenticated, Src: []string{Authenticating.String()}, Dst: Ready.String()},
			{Name: evFail, Src: []string{Connecting.String(), Authenticating.String(), Ready.String()}, Dst: Disconnected.String()},
			{Name: evDrain, Src: []string{Disconnected.String(), Connecting.String(), Authenticating.String(), Ready.String()}, Dst: Draining.String()},
			{Name: evDrained, Src: []string{Draining.String()}, Dst: Disconnected.String()},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				onEnter(parseState(e.Src), parseState(e.Dst))
			},
		},
	)
}
