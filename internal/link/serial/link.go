// Package serial implements DeviceLink over the mirror's USB serial port
// using a framed request/response protocol with CRC16 integrity checks.
package serial

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/mirror-control/mcc/internal/link"
	"github.com/mirror-control/mcc/internal/mirror"
)

const (
	defaultSmoothSteps = 10

	flagTrig      = 0x01
	flagLocked    = 0x01
	flagConnected = 0x02

	connectFixedSize   = 1 + 2 + 4*8
	telemetryFixedSize = 1 + 1 + 4*8
)

type deadliner interface {
	SetDeadline(t time.Time) error
}

// Link drives one mirror over a serial byte stream.
type Link struct {
	cfg  Config
	dial Dialer

	mu      sync.Mutex
	port    io.ReadWriteCloser
	seq     byte
	current mirror.Command
}

var _ link.DeviceLink = (*Link)(nil)

// New creates a link that opens cfg.Device with tarm/serial.
func New(cfg Config) *Link {
	return NewWithDialer(cfg, OpenPort)
}

// NewWithDialer creates a link over the stream returned by dial.
func NewWithDialer(cfg Config, dial Dialer) *Link {
	if cfg.SmoothSteps <= 0 {
		cfg.SmoothSteps = defaultSmoothSteps
	}
	return &Link{cfg: cfg, dial: dial}
}

// Connect opens the port and performs the connect handshake.
func (l *Link) Connect(ctx context.Context) (*link.DeviceInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, link.Normalize(err, nil)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.port != nil {
		return nil, link.FromStatus(mirror.StatusDeviceAlreadyOpened, "port already open")
	}
	port, err := l.dial(l.cfg)
	if err != nil {
		return nil, link.Normalize(err, l.cfg.Device)
	}
	l.port = port

	resp, err := l.transact(ctx, opConnect, nil)
	if err == nil && len(resp) < connectFixedSize {
		err = fmt.Errorf("%w: connect response of %d bytes", mirror.ErrDeviceIO, len(resp))
	}
	if err != nil {
		l.closePort()
		return nil, err
	}

	th := getFloats(resp[3:], 4)
	info := &link.DeviceInfo{
		StockCapacity: int(binary.LittleEndian.Uint16(resp[1:3])),
		Thresholds: mirror.LockThresholds{
			MirrorTemperature:      th[0],
			PowerSupplyTemperature: th[1],
			PositiveCoilsCurrent:   th[2],
			NegativeCoilsCurrent:   th[3],
		},
		Model: string(resp[connectFixedSize:]),
	}
	l.current = mirror.Zero()
	return info, nil
}

// Disconnect sends the disconnect request and closes the port. Closing an
// already released link is a no-op.
func (l *Link) Disconnect(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.port == nil {
		return nil
	}
	_, err := l.transact(ctx, opDisconnect, nil)
	if cerr := l.closePort(); err == nil {
		err = cerr
	}
	return err
}

// SendCommand writes c, as a ramp of SmoothSteps frames in smooth mode.
func (l *Link) SendCommand(ctx context.Context, c mirror.Command, mode mirror.Mode, trig bool) error {
	if err := mirror.Validate(c); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.port == nil {
		return link.FromStatus(mirror.StatusUSBDeviceNotOpened, "send on closed port")
	}

	steps := 1
	if mode == mirror.ModeSmooth {
		steps = l.cfg.SmoothSteps
	}
	from := l.current
	for i := 1; i <= steps; i++ {
		step := c
		if i < steps {
			step = from.Lerp(c, float64(i)/float64(steps))
		}
		if err := l.apply(ctx, step, trig && i == steps); err != nil {
			return err
		}
		if i < steps && l.cfg.StepInterval > 0 {
			select {
			case <-time.After(l.cfg.StepInterval):
			case <-ctx.Done():
				return link.Normalize(ctx.Err(), nil)
			}
		}
	}
	return nil
}

func (l *Link) apply(ctx context.Context, c mirror.Command, trig bool) error {
	payload := make([]byte, 1+mirror.NumActuators*8)
	if trig {
		payload[0] = flagTrig
	}
	putCommand(payload[1:], c)
	if _, err := l.transact(ctx, opApply, payload); err != nil {
		return err
	}
	l.current = c
	return nil
}

// PollTelemetry reads the health registers.
func (l *Link) PollTelemetry(ctx context.Context) (*link.Telemetry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.port == nil {
		return nil, link.FromStatus(mirror.StatusUSBDeviceNotOpened, "poll on closed port")
	}
	resp, err := l.transact(ctx, opTelemetry, nil)
	if err != nil {
		return nil, err
	}
	if len(resp) < telemetryFixedSize {
		return nil, &link.DeviceError{
			Code:     mirror.ErrDeviceIO,
			Original: fmt.Errorf("telemetry response of %d bytes", len(resp)),
		}
	}
	v := getFloats(resp[2:], 4)
	return &link.Telemetry{
		Locked:                 resp[1]&flagLocked != 0,
		Connected:              resp[1]&flagConnected != 0,
		MirrorTemperature:      v[0],
		PowerSupplyTemperature: v[1],
		PositiveCoilsCurrent:   v[2],
		NegativeCoilsCurrent:   v[3],
	}, nil
}

// transact sends one request and returns the response payload, status byte
// included. Caller holds l.mu.
func (l *Link) transact(ctx context.Context, op byte, payload []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, link.Normalize(err, nil)
	}
	if d, ok := l.port.(deadliner); ok {
		if deadline, ok := ctx.Deadline(); ok {
			_ = d.SetDeadline(deadline)
			defer d.SetDeadline(time.Time{})
		}
	}

	l.seq++
	req := frame{seq: l.seq, op: op, payload: payload}
	if _, err := l.port.Write(req.marshal()); err != nil {
		return nil, link.Normalize(err, op)
	}

	resp, err := readFrame(l.port)
	if err != nil {
		return nil, link.Normalize(err, op)
	}
	if resp.seq != req.seq || resp.op != op|responseBit {
		return nil, &link.DeviceError{
			Code:     mirror.ErrDeviceIO,
			Original: fmt.Errorf("sequence mismatch: sent %d/%#x, got %d/%#x", req.seq, op, resp.seq, resp.op),
		}
	}
	if len(resp.payload) == 0 {
		return nil, &link.DeviceError{Code: mirror.ErrDeviceIO, Original: fmt.Errorf("empty response to op %#x", op)}
	}
	if err := link.FromStatus(mirror.Status(resp.payload[0]), op); err != nil {
		return nil, err
	}
	return resp.payload, nil
}

func (l *Link) closePort() error {
	err := l.port.Close()
	l.port = nil
	return link.Normalize(err, nil)
}
