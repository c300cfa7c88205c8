package relay

import (
	"errors"
	"sync"

	"github.com/qmuntal/stateless"
)

// ErrBusy is returned when a connection asks to send a message while a
// previous exchange is still streaming.
var ErrBusy = errors.New("exchange already in progress")

// Connection states
type connFSMState stateless.State

var (
	stateIdle             connFSMState = "Idle"
	stateAwaitingResponse connFSMState = "AwaitingResponse"
)

// Connection triggers
type connFSMTrigger stateless.Trigger

var (
	triggerSend      connFSMTrigger = "Send"
	triggerCompleted connFSMTrigger = "Completed"
	triggerFailed    connFSMTrigger = "Failed"
)

// connState serializes exchanges on a single WebSocket connection. A
// connection holds at most one in-flight exchange; further sends are
// rejected with ErrBusy until the current one completes or fails.
type connState struct {
	mu  sync.Mutex
	fsm *stateless.StateMachine
}

func newConnState() *connState {
	fsm := stateless.NewStateMachine(stateIdle)

	fsm.Configure(stateIdle).
		Permit(triggerSend, stateAwaitingResponse)

	fsm.Configure(stateAwaitingResponse).
		Permit(triggerCompleted, stateIdle).
		Permit(triggerFailed, stateIdle)

	return &connState{fsm: fsm}
}

// BeginExchange transitions Idle -> AwaitingResponse, or reports ErrBusy
// if an exchange is already running.
func (s *connState) BeginExchange() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fsm.Fire(triggerSend); err != nil {
		return ErrBusy
	}
	return nil
}

// EndExchange returns the connection to Idle.
func (s *connState) EndExchange(failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	trigger := triggerCompleted
	if failed {
		trigger = triggerFailed
	}
	_ = s.fsm.Fire(trigger)
}

// Awaiting reports whether an exchange is in flight.
func (s *connState) Awaiting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fsm.MustState() == stateAwaitingResponse
}
