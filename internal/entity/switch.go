package entity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jamesprial/nobreak-mcp/internal/coordinator"
	"github.com/jamesprial/nobreak-mcp/internal/nobreak"
)

// Switch unique IDs.
const (
	SwitchBeep = "beep"
	SwitchTest = "test"
)

var _ Entity = (*Switch)(nil)

// Switch is a two-state control whose state is read back from the snapshot.
// Turning it on or off issues exactly one device request; the new state is
// picked up by the next poll.
type Switch struct {
	id       string
	name     string
	icon     string
	stateKey string
	turnOn   func(ctx context.Context) error
	turnOff  func(ctx context.Context) error

	mu        sync.RWMutex
	on        bool
	available bool
	updatedAt time.Time
}

// NewBeepSwitch controls the audible alarm.
func NewBeepSwitch(c nobreak.Client) *Switch {
	return &Switch{
		id:       SwitchBeep,
		name:     "Beep",
		icon:     "mdi:volume-high",
		stateKey: nobreak.KeyBeepOn,
		turnOn:   func(ctx context.Context) error { return c.SetBeep(ctx, true) },
		turnOff:  func(ctx context.Context) error { return c.SetBeep(ctx, false) },
	}
}

// NewTestSwitch starts and stops the battery self-test.
func NewTestSwitch(c nobreak.Client) *Switch {
	return &Switch{
		id:       SwitchTest,
		name:     "Testing",
		icon:     "mdi:test-tube",
		stateKey: nobreak.KeyTestExecuting,
		turnOn:   c.StartTest,
		turnOff:  c.StopTest,
	}
}

func (s *Switch) UniqueID() string { return s.id }
func (s *Switch) Name() string     { return s.name }
func (s *Switch) Kind() Kind       { return KindSwitch }

// TurnOn issues the switch's "on" request.
func (s *Switch) TurnOn(ctx context.Context) error {
	if err := s.turnOn(ctx); err != nil {
		return fmt.Errorf("switch %s: turn on: %w", s.id, err)
	}
	return nil
}

// TurnOff issues the switch's "off" request.
func (s *Switch) TurnOff(ctx context.Context) error {
	if err := s.turnOff(ctx); err != nil {
		return fmt.Errorf("switch %s: turn off: %w", s.id, err)
	}
	return nil
}

// Set turns the switch on or off.
func (s *Switch) Set(ctx context.Context, on bool) error {
	if on {
		return s.TurnOn(ctx)
	}
	return s.TurnOff(ctx)
}

// IsOn reports the state from the last successful poll.
func (s *Switch) IsOn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.on
}

// OnUpdate implements coordinator.Observer.
func (s *Switch) OnUpdate(u coordinator.Update) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !u.OK() {
		s.available = false
		return
	}
	v, _ := u.Status.Value(s.stateKey)
	on, ok := v.(bool)
	s.available = ok
	if ok {
		s.on = on
		s.updatedAt = u.At
	}
}

// State implements Entity.
func (s *Switch) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		UniqueID:  s.id,
		Name:      s.name,
		Kind:      KindSwitch,
		Value:     s.on,
		Icon:      s.icon,
		Available: s.available,
		UpdatedAt: s.updatedAt,
	}
}
