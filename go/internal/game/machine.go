package game

import (
	"errors"
	"sync"

	"github.com/mcdev12/flamingo/go/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Listener is notified after every committed transition with the new state
type Listener func(State)

// MachineOption configures a Machine
type MachineOption func(*Machine)

// WithStrict makes invariant violations panic instead of being logged and rejected
func WithStrict(strict bool) MachineOption {
	return func(m *Machine) {
		m.strict = strict
	}
}

// WithInitialState seeds the machine, e.g. from a restored snapshot
func WithInitialState(state State) MachineOption {
	return func(m *Machine) {
		m.state = state.Clone()
	}
}

// Machine owns the canonical State. Apply is the only way inbound messages change it.
type Machine struct {
	mu          sync.RWMutex
	state       State
	strict      bool
	canvasReset func()
	nextID      int
	listeners   []listenerEntry
}

type listenerEntry struct {
	id int
	fn Listener
}

// NewMachine creates a machine in the empty lobby state
func NewMachine(opts ...MachineOption) *Machine {
	m := &Machine{state: NewState()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns a copy of the current state
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Clone()
}

// RegisterCanvasReset installs the hook invoked once per new turn. Passing nil removes it.
func (m *Machine) RegisterCanvasReset(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.canvasReset = fn
}

// Subscribe registers a listener and returns a function that removes it
func (m *Machine) Subscribe(fn Listener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.listeners = append(m.listeners, listenerEntry{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, l := range m.listeners {
				if l.id == id {
					m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Apply reduces msg into the current state and commits the result.
// A rejected message leaves the state untouched and notifies no one.
func (m *Machine) Apply(msg protocol.Inbound) (Effects, error) {
	m.mu.Lock()
	next, effects, err := Reduce(m.state, msg)
	if err != nil {
		m.mu.Unlock()
		if errors.Is(err, ErrInvariantViolation) {
			if m.strict {
				panic(err)
			}
			log.Error().Err(err).Str("type", string(msg.Type())).Msg("rejected inbound message")
		} else {
			log.Warn().Err(err).Str("type", string(msg.Type())).Msg("discarded inbound message")
		}
		return Effects{}, err
	}

	m.state = next
	reset := m.canvasReset
	listeners := m.snapshotListeners()
	m.mu.Unlock()

	log.Debug().
		Str("type", string(msg.Type())).
		Str("phase", string(next.Phase)).
		Msg("applied inbound message")

	if effects.ResetCanvas && reset != nil {
		reset()
	}
	m.notify(listeners, next)
	return effects, nil
}

// Reset returns to the empty state after a disconnect
func (m *Machine) Reset() {
	m.replace(NewState(), "reset game state")
}

// Restore replaces the state wholesale, e.g. from a persisted snapshot.
// The local identity stays unlocked so the next roster snapshot may set it.
func (m *Machine) Restore(state State) {
	restored := state.Clone()
	restored.identityLocked = false
	m.replace(restored, "restored game state")
}

// BeginEpoch starts a new connection epoch; the next roster snapshot may assign a new identity
func (m *Machine) BeginEpoch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.identityLocked = false
}

func (m *Machine) replace(state State, msg string) {
	m.mu.Lock()
	m.state = state
	listeners := m.snapshotListeners()
	m.mu.Unlock()

	log.Debug().Str("phase", string(state.Phase)).Msg(msg)
	m.notify(listeners, state)
}

func (m *Machine) snapshotListeners() []Listener {
	out := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		out = append(out, l.fn)
	}
	return out
}

func (m *Machine) notify(listeners []Listener, state State) {
	for _, fn := range listeners {
		fn(state.Clone())
	}
}
