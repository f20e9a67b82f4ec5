package fake

import (
	"github.com/mirror-control/mcc/internal/link"
	"github.com/mirror-control/mcc/internal/mirror"
)

// SetErrorSimulation makes every call of op fail with err until cleared.
// A nil err clears the fault for op.
func (l *Link) SetErrorSimulation(op Op, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.faults, op)
		return
	}
	l.faults[op] = err
}

// DisableErrorSimulation clears every injected fault.
func (l *Link) DisableErrorSimulation() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.faults = make(map[Op]error)
}

// SetTelemetry replaces the simulated readings. Locked and Connected are
// derived and ignored here.
func (l *Link) SetTelemetry(t link.Telemetry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.telemetry = t
}

// SetMirrorTemperature changes the simulated mirror temperature; raising it
// above the threshold puts the device in protection.
func (l *Link) SetMirrorTemperature(celsius float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.telemetry.MirrorTemperature = celsius
}

// SetForcedLock holds the device in protection regardless of readings.
func (l *Link) SetForcedLock(locked bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.forceLock = locked
}

// SetConnected simulates a cable fault or its recovery.
func (l *Link) SetConnected(connected bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected = connected
}

// HoldSends parks every SendCommand until release is called. entered
// receives once a send is parked.
func (l *Link) HoldSends() (entered <-chan struct{}, release func()) {
	return l.hold(&l.sendGate)
}

// HoldPolls parks every PollTelemetry until release is called.
func (l *Link) HoldPolls() (entered <-chan struct{}, release func()) {
	return l.hold(&l.pollGate)
}

func (l *Link) hold(slot **gate) (<-chan struct{}, func()) {
	g := &gate{entered: make(chan struct{}, 1), release: make(chan struct{})}
	l.mu.Lock()
	*slot = g
	l.mu.Unlock()
	return g.entered, func() {
		l.mu.Lock()
		if *slot == g {
			*slot = nil
		}
		l.mu.Unlock()
		close(g.release)
	}
}

// Current returns the command the simulated mirror holds.
func (l *Link) Current() mirror.Command {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// SentCommands returns every SendCommand call in order.
func (l *Link) SentCommands() []Sent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Sent(nil), l.sent...)
}

// Transactions returns every hardware write in order, ramp steps included.
func (l *Link) Transactions() []Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Transaction(nil), l.transactions...)
}

// Polls returns the number of PollTelemetry calls.
func (l *Link) Polls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.polls
}

// IsOpen reports whether Connect succeeded and Disconnect has not run since.
func (l *Link) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open
}
