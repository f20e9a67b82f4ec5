// Package fake provides a simulated mirror behind the DeviceLink port, used
// by tests and by the service when no hardware is attached.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mirror-control/mcc/internal/link"
	"github.com/mirror-control/mcc/internal/mirror"
)

// Op names a DeviceLink operation for fault injection.
type Op string

const (
	OpConnect    Op = "connect"
	OpDisconnect Op = "disconnect"
	OpSend       Op = "send"
	OpPoll       Op = "poll"
)

// Transaction is one hardware write recorded by the fake.
type Transaction struct {
	Command mirror.Command
	Trig    bool
}

// Sent is one SendCommand call with the transactions it produced.
type Sent struct {
	Command mirror.Command
	Mode    mirror.Mode
	Trig    bool
	Steps   int
}

// gate parks callers until released so tests can hold a transaction in flight.
type gate struct {
	entered chan struct{}
	release chan struct{}
}

// Link is an in-memory mirror. The zero value is not usable; call New.
type Link struct {
	mu sync.Mutex

	info        link.DeviceInfo
	smoothSteps int
	stepDelay   time.Duration

	open      bool
	connected bool
	forceLock bool
	telemetry link.Telemetry
	current   mirror.Command

	sent         []Sent
	transactions []Transaction
	polls        int

	faults map[Op]error

	sendGate *gate
	pollGate *gate
}

// Option configures a Link.
type Option func(*Link)

// WithStockCapacity sets the capacity reported at connect.
func WithStockCapacity(n int) Option {
	return func(l *Link) { l.info.StockCapacity = n }
}

// WithSmoothSteps sets the number of transactions of a smooth ramp.
func WithSmoothSteps(n int) Option {
	return func(l *Link) {
		if n > 0 {
			l.smoothSteps = n
		}
	}
}

// WithStepDelay sleeps between ramp transactions.
func WithStepDelay(d time.Duration) Option {
	return func(l *Link) { l.stepDelay = d }
}

// WithThresholds sets the lock thresholds reported at connect.
func WithThresholds(th mirror.LockThresholds) Option {
	return func(l *Link) { l.info.Thresholds = th }
}

// DefaultThresholds are the protection limits of the simulated mirror.
var DefaultThresholds = mirror.LockThresholds{
	MirrorTemperature:      45,
	PowerSupplyTemperature: 60,
	PositiveCoilsCurrent:   4.5,
	NegativeCoilsCurrent:   4.5,
}

// New creates a simulated mirror in nominal condition.
func New(opts ...Option) *Link {
	l := &Link{
		info: link.DeviceInfo{
			Model:         "mirao 52-e (simulated)",
			SerialNumber:  "SIM-0001",
			StockCapacity: 100,
			Thresholds:    DefaultThresholds,
		},
		smoothSteps: 8,
		connected:   true,
		telemetry: link.Telemetry{
			MirrorTemperature:      24.5,
			PowerSupplyTemperature: 31.0,
			PositiveCoilsCurrent:   0.8,
			NegativeCoilsCurrent:   0.8,
		},
		faults: make(map[Op]error),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var _ link.DeviceLink = (*Link)(nil)

// Connect opens the simulated device.
func (l *Link) Connect(ctx context.Context) (*link.DeviceInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, link.Normalize(err, nil)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.faults[OpConnect]; err != nil {
		return nil, err
	}
	l.open = true
	l.current = mirror.Zero()
	info := l.info
	return &info, nil
}

// Disconnect closes the simulated device.
func (l *Link) Disconnect(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.faults[OpDisconnect]; err != nil {
		return err
	}
	l.open = false
	return nil
}

// SendCommand applies c, ramping through smoothSteps transactions in smooth mode.
func (l *Link) SendCommand(ctx context.Context, c mirror.Command, mode mirror.Mode, trig bool) error {
	if err := l.wait(ctx, l.gateFor(OpSend)); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkReady(OpSend); err != nil {
		return err
	}
	if err := mirror.Validate(c); err != nil {
		return err
	}
	// Only the zero command is accepted while protected.
	if (l.forceLock || l.overLimit()) && !c.IsZero() {
		return link.FromStatus(mirror.StatusDeviceLocked, nil)
	}

	steps := 1
	if mode == mirror.ModeSmooth {
		steps = l.smoothSteps
	}
	from := l.current
	for i := 1; i <= steps; i++ {
		step := from.Lerp(c, float64(i)/float64(steps))
		if i == steps {
			step = c
		}
		l.transactions = append(l.transactions, Transaction{Command: step, Trig: trig && i == steps})
		if l.stepDelay > 0 && i < steps {
			l.mu.Unlock()
			time.Sleep(l.stepDelay)
			l.mu.Lock()
		}
	}
	l.current = c
	l.sent = append(l.sent, Sent{Command: c, Mode: mode, Trig: trig, Steps: steps})
	return nil
}

// PollTelemetry returns the simulated health registers. The device reports
// itself locked when any reading exceeds its threshold or a lock is forced.
func (l *Link) PollTelemetry(ctx context.Context) (*link.Telemetry, error) {
	if err := l.wait(ctx, l.gateFor(OpPoll)); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.polls++
	if !l.open {
		return nil, link.FromStatus(mirror.StatusUSBDeviceNotOpened, "poll on closed link")
	}
	if err := l.faults[OpPoll]; err != nil {
		return nil, err
	}
	t := l.telemetry
	t.Connected = l.connected
	t.Locked = l.forceLock || l.overLimit()
	return &t, nil
}

func (l *Link) overLimit() bool {
	th := l.info.Thresholds
	t := l.telemetry
	return t.MirrorTemperature > th.MirrorTemperature ||
		t.PowerSupplyTemperature > th.PowerSupplyTemperature ||
		t.PositiveCoilsCurrent > th.PositiveCoilsCurrent ||
		t.NegativeCoilsCurrent > th.NegativeCoilsCurrent
}

func (l *Link) checkReady(op Op) error {
	if !l.open {
		return link.FromStatus(mirror.StatusUSBDeviceNotOpened, fmt.Sprintf("%s on closed link", op))
	}
	if err := l.faults[op]; err != nil {
		return err
	}
	if !l.connected {
		return link.FromStatus(mirror.StatusDeviceDisconnected, nil)
	}
	return nil
}

func (l *Link) gateFor(op Op) *gate {
	l.mu.Lock()
	defer l.mu.Unlock()
	if op == OpSend {
		return l.sendGate
	}
	return l.pollGate
}

func (l *Link) wait(ctx context.Context, g *gate) error {
	if g == nil {
		return nil
	}
	select {
	case g.entered <- struct{}{}:
	default:
	}
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return link.Normalize(ctx.Err(), nil)
	}
}
