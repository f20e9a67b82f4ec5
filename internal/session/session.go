package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mirror-control/mcc/internal/config"
	"github.com/mirror-control/mcc/internal/link"
	"github.com/mirror-control/mcc/internal/mirror"
	"github.com/mirror-control/mcc/internal/stock"
)

// State is the lifecycle state of the session.
type State int

const (
	StateClosed State = iota
	StateOpened
	StateLocked
	StateDisconnected
)

var stateNames = map[State]string{
	StateClosed:       "closed",
	StateOpened:       "opened",
	StateLocked:       "locked",
	StateDisconnected: "disconnected",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a point-in-time summary of the session for status endpoints.
type Status struct {
	State             State            `json:"state"`
	MonitoringEnabled bool             `json:"monitoringEnabled"`
	LastAppliedAt     *time.Time       `json:"lastAppliedAt,omitempty"`
	StockSize         int              `json:"stockSize"`
	StockCapacity     int              `json:"stockCapacity"`
	Device            *link.DeviceInfo `json:"device,omitempty"`
}

// Session owns one DeviceLink and everything layered on it.
type Session struct {
	link    link.DeviceLink
	timing  *config.TimingConfig
	audit   AuditLogger
	metrics MetricsRecorder
	flat    string
	now     func() time.Time

	// hw serializes device transactions.
	hw sync.Mutex

	// loopMu serializes monitoring start/stop and Close.
	loopMu     sync.Mutex
	loopCancel context.CancelFunc
	loopDone   chan struct{}

	mu            sync.RWMutex
	opened        bool
	info          *link.DeviceInfo
	lastApplied   mirror.Command
	lastAppliedAt time.Time
	stock         *stock.Stock
	monitor       monitorState

	obsMu    sync.Mutex
	observer Observer
}

// monitorState is the loop's view of the device, guarded by Session.mu.
type monitorState struct {
	enabled   bool
	locked    bool
	connected bool
	snapshot  mirror.Snapshot
}

// Option configures a Session.
type Option func(*Session)

// WithAuditLogger records every operation through a.
func WithAuditLogger(a AuditLogger) Option {
	return func(s *Session) { s.audit = a }
}

// WithMetrics reports transactions and telemetry to m.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Session) { s.metrics = m }
}

// WithFlatFile sets the .mro file applied by ApplyFlat.
func WithFlatFile(path string) Option {
	return func(s *Session) { s.flat = path }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// New creates a closed session over l.
func New(l link.DeviceLink, timing *config.TimingConfig, opts ...Option) *Session {
	if timing == nil {
		timing = config.LoadBaseline()
	}
	s := &Session{
		link:   l,
		timing: timing,
		now:    time.Now,
		stock:  stock.New(0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects the device, asserts the zero command and creates the stock
// with the capacity the device reports.
func (s *Session) Open(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { s.record(ctx, "open", nil, err, start) }()

	if s.isOpened() {
		return mirror.ErrDeviceAlreadyOpen
	}
	if !s.hw.TryLock() {
		return mirror.ErrOperationOngoing
	}
	defer s.hw.Unlock()
	if s.isOpened() {
		return mirror.ErrDeviceAlreadyOpen
	}

	cctx, cancel := context.WithTimeout(ctx, s.timing.CommandTimeoutConnect)
	defer cancel()
	info, err := s.link.Connect(cctx)
	if err != nil {
		return link.Normalize(err, "connect")
	}
	if err := s.link.SendCommand(cctx, mirror.Zero(), mirror.ModeImmediate, false); err != nil {
		if derr := s.link.Disconnect(ctx); derr != nil {
			log.Printf("session: release after failed open: %v", derr)
		}
		return link.Normalize(err, "initial zero command")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = true
	s.info = info
	s.stock = stock.New(info.StockCapacity)
	s.lastApplied = mirror.Zero()
	s.lastAppliedAt = s.stamp()
	s.monitor = monitorState{connected: true}
	log.Printf("session: opened %s (stock capacity %d)", info.Model, info.StockCapacity)
	return nil
}

// Close stops monitoring, waits for any in-flight transaction, relaxes the
// mirror and releases the device. The session ends Closed even when the
// release fails; that error is returned.
func (s *Session) Close(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { s.record(ctx, "close", nil, err, start) }()

	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if !s.isOpened() {
		return mirror.ErrDeviceNotOpen
	}
	s.stopLoop()

	// Close is not fail-fast: it waits out an in-flight transaction so the
	// session always ends Closed.
	s.hw.Lock()
	defer s.hw.Unlock()
	if !s.isOpened() {
		return mirror.ErrDeviceNotOpen
	}

	cctx, cancel := context.WithTimeout(ctx, s.timing.CommandTimeoutClose)
	defer cancel()
	if zerr := s.link.SendCommand(cctx, mirror.Zero(), mirror.ModeImmediate, false); zerr != nil {
		log.Printf("session: zero command on close: %v", zerr)
	}
	if derr := s.link.Disconnect(cctx); derr != nil {
		err = link.Normalize(derr, "disconnect")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = false
	s.info = nil
	s.stock.Reset()
	s.monitor = monitorState{}
	log.Printf("session: closed")
	return err
}

// State reports the lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	switch {
	case !s.opened:
		return StateClosed
	case s.monitor.enabled && s.monitor.locked:
		return StateLocked
	case s.monitor.enabled && !s.monitor.connected:
		return StateDisconnected
	default:
		return StateOpened
	}
}

// Status summarizes the session.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		State:             s.stateLocked(),
		MonitoringEnabled: s.monitor.enabled,
		StockSize:         s.stock.Size(),
		StockCapacity:     s.stock.Capacity(),
	}
	if s.opened {
		at := s.lastAppliedAt
		st.LastAppliedAt = &at
		info := *s.info
		st.Device = &info
	}
	return st
}

// DeviceInfo returns what the device reported at open.
func (s *Session) DeviceInfo() (link.DeviceInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.opened {
		return link.DeviceInfo{}, mirror.ErrDeviceNotOpen
	}
	return *s.info, nil
}

// RegisterObserver installs o as the event observer, replacing any other.
func (s *Session) RegisterObserver(o Observer) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.observer = o
}

// UnregisterObserver removes the observer.
func (s *Session) UnregisterObserver() {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.observer = nil
}

func (s *Session) dispatch(ev mirror.Event) {
	s.obsMu.Lock()
	o := s.observer
	s.obsMu.Unlock()
	if o != nil {
		o.HandleEvent(ev)
	}
}

func (s *Session) isOpened() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opened
}

// stamp returns the current time at the one-second resolution of
// last-applied timestamps.
func (s *Session) stamp() time.Time {
	return s.now().Truncate(time.Second)
}

func (s *Session) record(ctx context.Context, action string, params map[string]interface{}, err error, start time.Time) {
	latency := time.Since(start)
	if s.audit != nil {
		s.audit.LogAction(ctx, action, params, err, latency)
	}
	if s.metrics != nil {
		s.metrics.ObserveTransaction(action, err, latency)
	}
}
