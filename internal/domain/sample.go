package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SensorType identifies the source a reading came from. The set is closed;
// CanonicalPriority lists every member.
type SensorType uint8

const (
	// SensorOnboard is the sensor attached to the kiosk itself. It is the
	// canonical source for trend reporting.
	SensorOnboard SensorType = iota
	// SensorCoolingUnit is telemetry polled from the building cooling unit API.
	SensorCoolingUnit
)

// CanonicalPriority orders sensor sources from most to least preferred.
var CanonicalPriority = []SensorType{SensorOnboard, SensorCoolingUnit}

// PrimarySensor is the only source shown in the recent-window view.
const PrimarySensor = SensorOnboard

func (t SensorType) String() string {
	switch t {
	case SensorOnboard:
		return "onboard"
	case SensorCoolingUnit:
		return "cooling_unit"
	default:
		return fmt.Sprintf("SensorType(%d)", uint8(t))
	}
}

// Valid reports whether t is a member of the closed set.
func (t SensorType) Valid() bool {
	switch t {
	case SensorOnboard, SensorCoolingUnit:
		return true
	}
	return false
}

// ParseSensorType accepts the canonical names, the legacy vendor aliases and
// the numeric codes.
func ParseSensorType(raw string) (SensorType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "onboard", "adafruit", "primary":
		return SensorOnboard, nil
	case "cooling_unit", "coolingunit", "vertiv", "external":
		return SensorCoolingUnit, nil
	}
	n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 8)
	if err == nil && SensorType(n).Valid() {
		return SensorType(n), nil
	}
	return 0, &ValidationError{Field: "sensorType", Reason: fmt.Sprintf("unrecognized sensor type %q", raw)}
}

// MarshalText implements encoding.TextMarshaler so JSON output carries names.
func (t SensorType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid sensor type %d", uint8(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *SensorType) UnmarshalText(b []byte) error {
	v, err := ParseSensorType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Reading is an inbound, not yet validated environmental reading. Metrics are
// plain ints so that out-of-range input survives until validation.
type Reading struct {
	KioskID     string
	Temperature int
	Humidity    int
	SensorType  SensorType
}

// MinutelySample is one persisted reading. Samples are immutable and unique on
// (KioskID, Timestamp, SensorType).
type MinutelySample struct {
	KioskID     string     `json:"kioskId"`
	Timestamp   time.Time  `json:"timestamp"`
	Temperature uint8      `json:"temperature"`
	Humidity    uint8      `json:"humidity"`
	SensorType  SensorType `json:"sensorType"`
}

// DataPoint is the public projection of a sample used by the recent-window view.
type DataPoint struct {
	Timestamp   time.Time `json:"timestamp"`
	Temperature uint8     `json:"temperature"`
	Humidity    uint8     `json:"humidity"`
}

func (s MinutelySample) DataPoint() DataPoint {
	return DataPoint{Timestamp: s.Timestamp, Temperature: s.Temperature, Humidity: s.Humidity}
}
