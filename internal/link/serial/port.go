package serial

import (
	"fmt"
	"io"
	"time"

	tarm "github.com/tarm/serial"
)

// Config describes the USB serial port of the mirror.
type Config struct {
	Device      string
	Baud        int
	ReadTimeout time.Duration
	// SmoothSteps is the number of transactions of a smooth ramp.
	SmoothSteps int
	// StepInterval separates ramp transactions.
	StepInterval time.Duration
}

// Dialer opens the byte stream to the device.
type Dialer func(cfg Config) (io.ReadWriteCloser, error)

// OpenPort opens the native serial port described by cfg.
func OpenPort(cfg Config) (io.ReadWriteCloser, error) {
	if cfg.Device == "" {
		return nil, fmt.Errorf("serial port name is empty")
	}

	port, err := tarm.OpenPort(&tarm.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}
	return port, nil
}
