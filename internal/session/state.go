package session

import (
	"fmt"
	"time"
)

// State is the client's view of its connection to the engine.
type State int

const (
	// StateDisconnected means there is no usable engine connection.
	StateDisconnected State = iota
	// StateReconnecting means an engine answered and the session is
	// deciding whether a binary must be replayed.
	StateReconnecting
	// StateReloading means the last loaded binary is being replayed.
	StateReloading
	// StateConnected means the engine is reachable and holds the session's binary.
	StateConnected
	// StateFailed means reconnection was exhausted. Only Reset leaves it.
	StateFailed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateReconnecting:
		return "reconnecting"
	case StateReloading:
		return "reloading"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event drives a state transition.
type Event int

const (
	// EventCallFailed is a transport failure, failed health check or engine exit.
	EventCallFailed Event = iota
	// EventConnected is the first successful connect and ping.
	EventConnected
	// EventReconnected is a successful connect and ping after a failure.
	EventReconnected
	// EventExhausted means every reconnect attempt failed.
	EventExhausted
	// EventReplayNeeded means a binary must be reloaded into the new engine.
	EventReplayNeeded
	// EventNothingToReplay means no binary was loaded before the failure.
	EventNothingToReplay
	// EventReplaySucceeded means the binary was reloaded.
	EventReplaySucceeded
	// EventReplayFailed means the engine rejected or lost the replayed binary.
	EventReplayFailed
	// EventInterrupted means recovery was cancelled part way.
	EventInterrupted
	// EventReset is a user request to leave Failed and try again.
	EventReset
)

// String returns a human-readable representation of the event.
func (e Event) String() string {
	switch e {
	case EventCallFailed:
		return "call_failed"
	case EventConnected:
		return "connected"
	case EventReconnected:
		return "reconnected"
	case EventExhausted:
		return "exhausted"
	case EventReplayNeeded:
		return "replay_needed"
	case EventNothingToReplay:
		return "nothing_to_replay"
	case EventReplaySucceeded:
		return "replay_succeeded"
	case EventReplayFailed:
		return "replay_failed"
	case EventInterrupted:
		return "interrupted"
	case EventReset:
		return "reset"
	default:
		return "unknown"
	}
}

type transitionKey struct {
	from  State
	event Event
}

// transitions is the complete set of legal state changes.
var transitions = map[transitionKey]State{
	{StateConnected, EventCallFailed}:         StateDisconnected,
	{StateDisconnected, EventConnected}:       StateReconnecting,
	{StateDisconnected, EventReconnected}:     StateReconnecting,
	{StateDisconnected, EventExhausted}:       StateFailed,
	{StateReconnecting, EventReplayNeeded}:    StateReloading,
	{StateReconnecting, EventNothingToReplay}: StateConnected,
	{StateReconnecting, EventInterrupted}:     StateDisconnected,
	{StateReloading, EventReplaySucceeded}:    StateConnected,
	{StateReloading, EventReplayFailed}:       StateFailed,
	{StateReloading, EventInterrupted}:        StateDisconnected,
	{StateFailed, EventReset}:                 StateDisconnected,
}

// Next returns the state event leads to from s.
func Next(s State, event Event) (State, error) {
	to, ok := transitions[transitionKey{from: s, event: event}]
	if !ok {
		return s, fmt.Errorf("invalid transition: %s on %s", s, event)
	}
	return to, nil
}

// StateChange is published to subscribers on every transition.
type StateChange struct {
	From  State
	To    State
	Event Event
	// Err is the failure that caused the transition, if any.
	Err error
	At  time.Time
}
