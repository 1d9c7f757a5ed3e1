// Package entity projects nobreak snapshots onto host-platform entities:
// read-only sensors and controllable switches.
package entity

import (
	"errors"
	"time"

	"github.com/jamesprial/nobreak-mcp/internal/coordinator"
	"github.com/jamesprial/nobreak-mcp/internal/nobreak"
)

// Domain prefixes sensor unique IDs.
const Domain = "nobreak"

// Kind distinguishes entity platforms.
type Kind string

const (
	KindSensor Kind = "sensor"
	KindSwitch Kind = "switch"
)

// ErrDuplicateEntity is returned when an entity's unique ID is already registered.
var ErrDuplicateEntity = errors.New("entity: duplicate unique id")

// State is the externally visible view of an entity.
type State struct {
	UniqueID    string    `json:"unique_id"`
	Name        string    `json:"name"`
	Kind        Kind      `json:"kind"`
	Value       any       `json:"value"`
	Unit        string    `json:"unit,omitempty"`
	DeviceClass string    `json:"device_class,omitempty"`
	Icon        string    `json:"icon,omitempty"`
	Available   bool      `json:"available"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
}

// Entity is anything the host can register. Every entity observes the
// coordinator to keep its state current.
type Entity interface {
	coordinator.Observer
	UniqueID() string
	Name() string
	Kind() Kind
	State() State
}

// Registry is the host side of entity registration.
type Registry interface {
	Add(entities ...Entity) error
	Remove(uniqueIDs ...string)
	Get(uniqueID string) (Entity, bool)
	// States lists entities of kind in registration order; "" matches all.
	States(kind Kind) []State
}

// Description is the static metadata for one sensor.
type Description struct {
	Key         string
	Name        string
	DeviceClass string
	Unit        string
	Icon        string
}

// SensorDescriptions lists every sensor exposed for the device.
var SensorDescriptions = []Description{
	{Key: nobreak.KeyVoltageIn, Name: "Voltage in", DeviceClass: "voltage", Unit: "V"},
	{Key: nobreak.KeyVoltageOut, Name: "Voltage out", DeviceClass: "voltage", Unit: "V"},
	{Key: nobreak.KeyBatteryVoltage, Name: "Battery voltage", DeviceClass: "voltage", Unit: "V", Icon: "mdi:battery-charging-100"},
	{Key: nobreak.KeyLoadPercentage, Name: "Output load", Unit: "%", Icon: "mdi:lightning-bolt"},
	{Key: nobreak.KeyFrequencyHz, Name: "Frequency", DeviceClass: "frequency", Unit: "Hz"},
	{Key: nobreak.KeyTemperatureC, Name: "Temperature", DeviceClass: "temperature", Unit: "°C"},
	{Key: nobreak.KeyBatteryHealthy, Name: "Battery healthy", Icon: "mdi:battery-heart-variant"},
	{Key: nobreak.KeyPowerSource, Name: "Power source", Icon: "mdi:transmission-tower"},
	{Key: nobreak.KeyBatteryPercentage, Name: "Battery percentage", DeviceClass: "battery", Unit: "%"},
}
