// Package nobreak provides a REST client for the nobreak (UPS) device server
// and the status snapshot it reports.
package nobreak

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Snapshot field keys, exactly as they appear in the device's JSON payload.
const (
	KeyVoltageIn         = "voltageIn"
	KeyVoltageOut        = "voltageOut"
	KeyBatteryVoltage    = "batteryVoltage"
	KeyLoadPercentage    = "loadPercentage"
	KeyFrequencyHz       = "frequencyHz"
	KeyTemperatureC      = "temperatureC"
	KeyBatteryHealthy    = "batteryHealthy"
	KeyPowerSource       = "powerSource"
	KeyBatteryPercentage = "batteryPercentage"
	KeyBeepOn            = "beepOn"
	KeyTestExecuting     = "testExecuting"
)

// PowerSource labels where the load is currently being fed from.
type PowerSource string

const (
	PowerSourceGrid    PowerSource = "Grid"
	PowerSourceBattery PowerSource = "Battery"
)

// Status is one point-in-time snapshot of the device readings. A Status
// decoded from JSON remembers which keys the payload carried; readings the
// device did not send are reported as absent rather than as zero values. A
// Status built as a literal has every reading present.
type Status struct {
	VoltageIn         float64     `json:"voltageIn"`
	VoltageOut        float64     `json:"voltageOut"`
	BatteryVoltage    float64     `json:"batteryVoltage"`
	LoadPercentage    float64     `json:"loadPercentage"`
	FrequencyHz       float64     `json:"frequencyHz"`
	TemperatureC      float64     `json:"temperatureC"`
	BatteryHealthy    bool        `json:"batteryHealthy"`
	PowerSource       PowerSource `json:"powerSource"`
	BatteryPercentage float64     `json:"batteryPercentage"`
	BeepOn            bool        `json:"beepOn"`
	TestExecuting     bool        `json:"testExecuting"`

	// missing has bit i set when Keys[i] was absent (or null) in the payload.
	missing uint16
}

// UnmarshalJSON decodes the payload and records which keys were present.
// Keys are matched exactly.
func (s *Status) UnmarshalJSON(data []byte) error {
	type plain Status
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*s = Status(p)
	s.missing = 0
	for i, k := range Keys {
		if v, ok := raw[k]; !ok || string(v) == "null" {
			s.missing |= 1 << i
		}
	}
	return nil
}

// MarshalJSON encodes only the readings that are present.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Fields())
}

// Has reports whether the reading under key is present.
func (s Status) Has(key string) bool {
	i := keyIndex(key)
	return i >= 0 && s.missing&(1<<i) == 0
}

// OnBattery reports whether the device is running from its battery.
func (s Status) OnBattery() bool {
	return strings.EqualFold(string(s.PowerSource), string(PowerSourceBattery))
}

// Value returns the reading stored under the given JSON key. ok is false for
// unknown keys and for readings absent from the payload.
func (s Status) Value(key string) (any, bool) {
	if !s.Has(key) {
		return nil, false
	}
	switch key {
	case KeyVoltageIn:
		return s.VoltageIn, true
	case KeyVoltageOut:
		return s.VoltageOut, true
	case KeyBatteryVoltage:
		return s.BatteryVoltage, true
	case KeyLoadPercentage:
		return s.LoadPercentage, true
	case KeyFrequencyHz:
		return s.FrequencyHz, true
	case KeyTemperatureC:
		return s.TemperatureC, true
	case KeyBatteryHealthy:
		return s.BatteryHealthy, true
	case KeyPowerSource:
		return string(s.PowerSource), true
	case KeyBatteryPercentage:
		return s.BatteryPercentage, true
	case KeyBeepOn:
		return s.BeepOn, true
	case KeyTestExecuting:
		return s.TestExecuting, true
	}
	return nil, false
}

// Fields returns every present reading keyed by its JSON name.
func (s Status) Fields() map[string]any {
	out := make(map[string]any, len(Keys))
	for _, k := range Keys {
		if v, ok := s.Value(k); ok {
			out[k] = v
		}
	}
	return out
}

func keyIndex(key string) int {
	for i, k := range Keys {
		if k == key {
			return i
		}
	}
	return -1
}

// Keys lists every snapshot field in display order.
var Keys = []string{
	KeyVoltageIn,
	KeyVoltageOut,
	KeyBatteryVoltage,
	KeyLoadPercentage,
	KeyFrequencyHz,
	KeyTemperatureC,
	KeyBatteryHealthy,
	KeyPowerSource,
	KeyBatteryPercentage,
	KeyBeepOn,
	KeyTestExecuting,
}

// Endpoint is the immutable connection target for the device server.
type Endpoint struct {
	BaseURL           string
	SkipSSLValidation bool
}

// TestDuration selects how long a battery self-test runs. The zero value is
// invalid; use TestQuick, TestUntilFlat or TestMinutes.
type TestDuration string

const (
	TestQuick     TestDuration = "Quick"
	TestUntilFlat TestDuration = "UntilFlat"
)

// TestMinutes returns a timed test duration. The device accepts 1 to 99 minutes.
func TestMinutes(minutes int) (TestDuration, error) {
	if minutes < 1 || minutes > 99 {
		return "", fmt.Errorf("%w: %d minutes (want 1-99)", ErrInvalidTestDuration, minutes)
	}
	return TestDuration(strconv.Itoa(minutes)), nil
}

// ParseTestDuration accepts "quick", "untilflat" (case-insensitive) or a
// minute count between 1 and 99. An empty string means TestUntilFlat.
func ParseTestDuration(s string) (TestDuration, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "", strings.EqualFold(s, string(TestUntilFlat)):
		return TestUntilFlat, nil
	case strings.EqualFold(s, string(TestQuick)):
		return TestQuick, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q (want quick, untilflat or 1-99)", ErrInvalidTestDuration, s)
	}
	return TestMinutes(n)
}

func (d TestDuration) validate() error {
	if d == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTestDuration)
	}
	_, err := ParseTestDuration(string(d))
	return err
}

// Client defines the operations the device server exposes.
type Client interface {
	FetchStatus(ctx context.Context) (Status, error)
	StartTest(ctx context.Context) error
	StartTestFor(ctx context.Context, d TestDuration) error
	StopTest(ctx context.Context) error
	SetBeep(ctx context.Context, enabled bool) error
}
