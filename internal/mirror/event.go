package mirror

import (
	"fmt"
	"time"
)

// EventType identifies a monitoring event. Values follow the device's
// event identifiers.
type EventType int

const (
	EventLocked              EventType = 1
	EventUnlocked            EventType = 2
	EventTransmissionError   EventType = 3
	EventConnectionLost      EventType = 4
	EventConnectionRecovered EventType = 5
	EventMonitoringStarted   EventType = 6
	EventMonitoringStopped   EventType = 7
)

var eventNames = map[EventType]string{
	EventLocked:              "locked",
	EventUnlocked:            "unlocked",
	EventTransmissionError:   "transmissionError",
	EventConnectionLost:      "connectionLost",
	EventConnectionRecovered: "connectionRecovered",
	EventMonitoringStarted:   "monitoringStarted",
	EventMonitoringStopped:   "monitoringStopped",
}

func (t EventType) String() string {
	if name, ok := eventNames[t]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", int(t))
}

// Snapshot is the monitoring state at a point in time.
type Snapshot struct {
	Enabled                bool      `json:"enabled"`
	Locked                 bool      `json:"locked"`
	Connected              bool      `json:"connected"`
	MirrorTemperature      float64   `json:"mirrorTemperature"`
	PowerSupplyTemperature float64   `json:"powerSupplyTemperature"`
	PositiveCoilsCurrent   float64   `json:"positiveCoilsCurrent"`
	NegativeCoilsCurrent   float64   `json:"negativeCoilsCurrent"`
	SampledAt              time.Time `json:"sampledAt"`
}

// Event is delivered to the session observer on every monitoring edge.
type Event struct {
	Type     EventType `json:"type"`
	Snapshot Snapshot  `json:"snapshot"`
	// Err carries the transmission fault for EventTransmissionError.
	Err error `json:"-"`
}

// LockThresholds are the limits above which the device enters protection.
// Temperatures in degrees Celsius, currents in Amperes.
type LockThresholds struct {
	MirrorTemperature      float64 `json:"mirrorTemperature"`
	PowerSupplyTemperature float64 `json:"powerSupplyTemperature"`
	PositiveCoilsCurrent   float64 `json:"positiveCoilsCurrent"`
	NegativeCoilsCurrent   float64 `json:"negativeCoilsCurrent"`
}

// MarshalText encodes the event type by name.
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}
