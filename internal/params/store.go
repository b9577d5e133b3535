// Package params provides the thread-safe control-parameter store shared
// between the transport layer and the simulation loop.
//
// Updates arrive at arbitrary wall-clock moments and are last-value-wins
// per parameter; the loop reads all three parameters together as one
// consistent snapshot at each tick boundary. Synchronization lives
// entirely inside [Store] so neither side carries locking code.
package params

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
)

// Parameter names as used by the transport layer and CLI.
const (
	FabOutflow  = "fab_outflow"
	ActiveTanks = "active_tanks"
	PumpStatus  = "pump_status"
)

var (
	// ErrUnknownParameter indicates a name outside the three control parameters.
	ErrUnknownParameter = errors.New("params: unknown parameter")

	// ErrOutOfRange indicates a value outside the parameter's domain.
	ErrOutOfRange = errors.New("params: value out of range")

	// ErrBadPayload indicates a payload that does not parse as a decimal number.
	ErrBadPayload = errors.New("params: non-numeric payload")
)

// Snapshot is a consistent read of all control parameters.
type Snapshot struct {
	Outflow     float64
	ActiveTanks int
	PumpOn      bool
}

// Store holds the current control parameters. A rejected update leaves
// the prior value untouched.
type Store struct {
	mu          sync.RWMutex
	outflow     float64
	activeTanks int
	pumpOn      bool
}

func NewStore(outflow float64, activeTanks int, pumpOn bool) (*Store, error) {
	if outflow < 0 {
		return nil, fmt.Errorf("%w: %s=%f", ErrOutOfRange, FabOutflow, outflow)
	}
	if activeTanks != 1 && activeTanks != 2 {
		return nil, fmt.Errorf("%w: %s=%d", ErrOutOfRange, ActiveTanks, activeTanks)
	}
	return &Store{outflow: outflow, activeTanks: activeTanks, pumpOn: pumpOn}, nil
}

// Set validates and stores a single parameter. The write is atomic:
// a concurrent Snapshot sees either the old or the new value, never a
// torn field.
func (s *Store) Set(name string, value float64) error {
	switch name {
	case FabOutflow:
		if value < 0 {
			return fmt.Errorf("%w: %s=%f", ErrOutOfRange, name, value)
		}
		s.mu.Lock()
		s.outflow = value
		s.mu.Unlock()
	case ActiveTanks:
		if value != 1 && value != 2 {
			return fmt.Errorf("%w: %s=%f (want 1 or 2)", ErrOutOfRange, name, value)
		}
		s.mu.Lock()
		s.activeTanks = int(value)
		s.mu.Unlock()
	case PumpStatus:
		if value != 0 && value != 1 {
			return fmt.Errorf("%w: %s=%f (want 0 or 1)", ErrOutOfRange, name, value)
		}
		s.mu.Lock()
		s.pumpOn = value == 1
		s.mu.Unlock()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownParameter, name)
	}
	return nil
}

// SetRaw parses a decimal string payload as delivered by the transport
// layer, then stores it via Set.
func (s *Store) SetRaw(name, payload string) error {
	value, err := strconv.ParseFloat(payload, 64)
	if err != nil {
		return fmt.Errorf("%w: %s=%q", ErrBadPayload, name, payload)
	}
	return s.Set(name, value)
}

// Snapshot returns all three parameters read under one lock, so a tick
// never observes a torn combination.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Outflow:     s.outflow,
		ActiveTanks: s.activeTanks,
		PumpOn:      s.pumpOn,
	}
}
