package entity

import (
	"sync"
	"time"

	"github.com/jamesprial/nobreak-mcp/internal/coordinator"
)

var _ Entity = (*Sensor)(nil)

// Sensor exposes one snapshot reading. A failed poll marks it unavailable
// but keeps the last known value.
type Sensor struct {
	desc Description

	mu        sync.RWMutex
	value     any
	available bool
	updatedAt time.Time
}

// NewSensor returns a sensor with no value yet.
func NewSensor(desc Description) *Sensor {
	return &Sensor{desc: desc}
}

func (s *Sensor) UniqueID() string { return Domain + "_" + s.desc.Key }
func (s *Sensor) Name() string     { return s.desc.Name }
func (s *Sensor) Kind() Kind       { return KindSensor }

// Key returns the snapshot field this sensor projects.
func (s *Sensor) Key() string { return s.desc.Key }

// OnUpdate implements coordinator.Observer.
func (s *Sensor) OnUpdate(u coordinator.Update) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !u.OK() {
		s.available = false
		return
	}
	v, ok := u.Status.Value(s.desc.Key)
	if !ok {
		s.available = false
		return
	}
	s.value = v
	s.available = true
	s.updatedAt = u.At
}

// State implements Entity.
func (s *Sensor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		UniqueID:    s.UniqueID(),
		Name:        s.desc.Name,
		Kind:        KindSensor,
		Value:       s.value,
		Unit:        s.desc.Unit,
		DeviceClass: s.desc.DeviceClass,
		Icon:        s.desc.Icon,
		Available:   s.available,
		UpdatedAt:   s.updatedAt,
	}
}
