package link

import (
	"context"

	"github.com/mirror-control/mcc/internal/mirror"
)

// DeviceInfo describes the device reported at connect time.
type DeviceInfo struct {
	Model         string                `json:"model"`
	SerialNumber  string                `json:"serialNumber,omitempty"`
	StockCapacity int                   `json:"stockCapacity"`
	Thresholds    mirror.LockThresholds `json:"lockThresholds"`
}

// Telemetry is one poll of the device health registers.
type Telemetry struct {
	MirrorTemperature      float64 `json:"mirrorTemperature"`
	PowerSupplyTemperature float64 `json:"powerSupplyTemperature"`
	PositiveCoilsCurrent   float64 `json:"positiveCoilsCurrent"`
	NegativeCoilsCurrent   float64 `json:"negativeCoilsCurrent"`
	Locked                 bool    `json:"locked"`
	Connected              bool    `json:"connected"`
}

// DeviceLink is the southbound contract to one mirror device. Callers
// serialize transactions; implementations need not be safe for concurrent
// transactions but must tolerate Disconnect after a failed call.
type DeviceLink interface {
	// Connect activates the link and reports the device characteristics.
	Connect(ctx context.Context) (*DeviceInfo, error)

	// Disconnect releases the link.
	Disconnect(ctx context.Context) error

	// SendCommand delivers a validated command. In ModeSmooth the link ramps
	// from the previous command through intermediate transactions of its own
	// choosing. With trig set a synchronization pulse follows the last
	// transaction.
	SendCommand(ctx context.Context, c mirror.Command, mode mirror.Mode, trig bool) error

	// PollTelemetry reads temperatures, coil currents and link status.
	PollTelemetry(ctx context.Context) (*Telemetry, error)
}
