package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mirror-control/mcc/internal/config"
	"github.com/mirror-control/mcc/internal/link/fake"
	"github.com/mirror-control/mcc/internal/mirror"
)

func testTiming() *config.TimingConfig {
	timing := config.LoadBaseline()
	timing.MonitorPollInterval = 5 * time.Millisecond
	return timing
}

func newSession(t *testing.T, l *fake.Link, opts ...Option) *Session {
	t.Helper()
	s := New(l, testTiming(), opts...)
	t.Cleanup(func() {
		if s.State() != StateClosed {
			_ = s.Close(context.Background())
		}
	})
	return s
}

func openSession(t *testing.T, opts ...fake.Option) (*Session, *fake.Link) {
	t.Helper()
	l := fake.New(opts...)
	s := newSession(t, l)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return s, l
}

func uniform(v float64) mirror.Command {
	var c mirror.Command
	for i := range c {
		c[i] = v
	}
	return c
}

// recordingAudit captures audit records.
type recordingAudit struct {
	mu      sync.Mutex
	actions []string
	errs    []error
}

func (a *recordingAudit) LogAction(_ context.Context, action string, _ map[string]interface{}, err error, _ time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action)
	a.errs = append(a.errs, err)
}

func TestOpenClose(t *testing.T) {
	l := fake.New()
	s := newSession(t, l)
	ctx := context.Background()

	if got := s.State(); got != StateClosed {
		t.Fatalf("initial State() = %v, want closed", got)
	}
	if err := s.Open(ctx); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if got := s.State(); got != StateOpened {
		t.Errorf("State() = %v, want opened", got)
	}

	sent := l.SentCommands()
	if len(sent) != 1 || !sent[0].Command.IsZero() || sent[0].Mode != mirror.ModeImmediate || sent[0].Trig {
		t.Errorf("open should send one immediate zero command without trigger, got %+v", sent)
	}
	last, err := s.LastAppliedCommand()
	if err != nil || !last.IsZero() {
		t.Errorf("LastAppliedCommand() = %v, %v; want zero", last, err)
	}
	if size, _ := s.StockSize(); size != 0 {
		t.Errorf("StockSize() = %d, want 0", size)
	}
	if capacity, _ := s.StockCapacity(); capacity != 100 {
		t.Errorf("StockCapacity() = %d, want 100", capacity)
	}
	if s.IsMonitoringEnabled() {
		t.Error("monitoring should be disabled after open")
	}

	if err := s.Open(ctx); !errors.Is(err, mirror.ErrDeviceAlreadyOpen) {
		t.Errorf("second Open() error = %v, want ErrDeviceAlreadyOpen", err)
	}

	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := s.State(); got != StateClosed {
		t.Errorf("State() after close = %v", got)
	}
	if l.IsOpen() {
		t.Error("link should be released after close")
	}
	if err := s.Close(ctx); !errors.Is(err, mirror.ErrDeviceNotOpen) {
		t.Errorf("second Close() error = %v, want ErrDeviceNotOpen", err)
	}
}

func TestOpenFailureStaysClosed(t *testing.T) {
	tests := []struct {
		name string
		op   fake.Op
		err  error
	}{
		{"connect defective", fake.OpConnect, mirror.ErrDefectiveDevice},
		{"connect usb", fake.OpConnect, mirror.ErrUSBDeviceNotFound},
		{"initial zero fails", fake.OpSend, mirror.ErrDeviceIO},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := fake.New()
			l.SetErrorSimulation(tt.op, tt.err)
			s := newSession(t, l)

			err := s.Open(context.Background())
			if !errors.Is(err, tt.err) {
				t.Fatalf("Open() error = %v, want %v", err, tt.err)
			}
			if s.State() != StateClosed {
				t.Errorf("State() = %v, want closed", s.State())
			}
			if l.IsOpen() {
				t.Error("link left open after failed open")
			}
		})
	}
}

func TestOperationsRequireOpen(t *testing.T) {
	s, _ := openSession(t)
	ctx := context.Background()
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	checks := map[string]error{
		"Apply":                 s.Apply(ctx, mirror.Zero(), mirror.ModeImmediate, false),
		"ApplyFlat":             s.ApplyFlat(ctx, false),
		"ApplyStockCommand":     s.ApplyStockCommand(ctx, 0, mirror.ModeImmediate, false),
		"SetStockCommand":       s.SetStockCommand(ctx, 0, mirror.Zero()),
		"RemoveStockCommand":    s.RemoveStockCommand(ctx, 0),
		"ResetStock":            s.ResetStock(ctx),
		"SetMonitoringEnabled":  s.SetMonitoringEnabled(ctx, true),
		"SetMonitoringDisabled": s.SetMonitoringEnabled(ctx, false),
	}
	_, checks["LastAppliedCommand"] = s.LastAppliedCommand()
	_, checks["LastAppliedAt"] = s.LastAppliedAt()
	_, checks["StockCommand"] = s.StockCommand(0)
	_, checks["IsStockCommandDefined"] = s.IsStockCommandDefined(0)
	_, checks["StockSize"] = s.StockSize()
	_, checks["StockCapacity"] = s.StockCapacity()
	_, checks["StockIndices"] = s.StockIndices()
	_, checks["Snapshot"] = s.Snapshot()
	_, checks["LockThresholds"] = s.LockThresholds()
	_, checks["DeviceInfo"] = s.DeviceInfo()

	for name, err := range checks {
		if !errors.Is(err, mirror.ErrDeviceNotOpen) {
			t.Errorf("%s on closed session: error = %v, want ErrDeviceNotOpen", name, err)
		}
	}
}

func TestApplyUpdatesLastApplied(t *testing.T) {
	now := time.Date(2026, 3, 4, 10, 20, 30, 987654321, time.UTC)
	l := fake.New()
	s := newSession(t, l, WithClock(func() time.Time { return now }))
	ctx := context.Background()
	if err := s.Open(ctx); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	cmd := uniform(0.25)
	if err := s.ApplyCommand(ctx, cmd, true); err != nil {
		t.Fatalf("ApplyCommand() error = %v", err)
	}
	last, _ := s.LastAppliedCommand()
	if last != cmd {
		t.Errorf("LastAppliedCommand() = %v, want %v", last, cmd)
	}
	at, _ := s.LastAppliedAt()
	if want := now.Truncate(time.Second); !at.Equal(want) {
		t.Errorf("LastAppliedAt() = %v, want %v", at, want)
	}
	if l.Current() != cmd {
		t.Error("device did not receive the command")
	}
	tx := l.Transactions()
	if !tx[len(tx)-1].Trig {
		t.Error("trigger not forwarded")
	}
}

func TestApplyFailuresLeaveState(t *testing.T) {
	s, l := openSession(t)
	ctx := context.Background()
	base := uniform(0.1)
	if err := s.ApplyCommand(ctx, base, false); err != nil {
		t.Fatalf("ApplyCommand() error = %v", err)
	}
	sends := len(l.SentCommands())

	over := uniform(0.5)
	if err := s.ApplyCommand(ctx, over, false); !errors.Is(err, mirror.ErrInvalidCommand) {
		t.Errorf("over-budget command error = %v, want ErrInvalidCommand", err)
	}
	if len(l.SentCommands()) != sends {
		t.Error("invalid command reached the device")
	}

	l.SetErrorSimulation(fake.OpSend, mirror.ErrDeviceIO)
	if err := s.ApplyCommand(ctx, uniform(0.2), false); !errors.Is(err, mirror.ErrDeviceIO) {
		t.Errorf("failed send error = %v, want ErrDeviceIO", err)
	}

	last, _ := s.LastAppliedCommand()
	if last != base {
		t.Errorf("LastAppliedCommand() changed to %v after failures", last)
	}
	if s.State() != StateOpened {
		t.Errorf("State() = %v, want opened", s.State())
	}
}

func TestApplySmoothRamps(t *testing.T) {
	s, l := openSession(t, fake.WithSmoothSteps(5))
	ctx := context.Background()
	target := uniform(0.4)

	before := len(l.Transactions())
	if err := s.ApplySmoothCommand(ctx, target, true); err != nil {
		t.Fatalf("ApplySmoothCommand() error = %v", err)
	}
	tx := l.Transactions()[before:]
	if len(tx) != 5 {
		t.Fatalf("ramp used %d transactions, want 5", len(tx))
	}
	for i, step := range tx[:len(tx)-1] {
		if step.Trig {
			t.Errorf("intermediate step %d carries the trigger", i)
		}
	}
	if last := tx[len(tx)-1]; last.Command != target || !last.Trig {
		t.Errorf("final step = %+v, want target with trigger", last)
	}
}

func TestConcurrentApplyIsRejected(t *testing.T) {
	s, l := openSession(t)
	ctx := context.Background()

	entered, release := l.HoldSends()
	first := make(chan error, 1)
	go func() { first <- s.ApplyCommand(ctx, uniform(0.1), false) }()
	<-entered

	if err := s.ApplyCommand(ctx, uniform(0.2), false); !errors.Is(err, mirror.ErrOperationOngoing) {
		t.Errorf("concurrent apply error = %v, want ErrOperationOngoing", err)
	}
	if err := s.SetMonitoringEnabled(ctx, true); !errors.Is(err, mirror.ErrOperationOngoing) {
		t.Errorf("enable during apply error = %v, want ErrOperationOngoing", err)
	}

	release()
	if err := <-first; err != nil {
		t.Fatalf("held apply error = %v", err)
	}
	last, _ := s.LastAppliedCommand()
	if last != uniform(0.1) {
		t.Errorf("LastAppliedCommand() = %v, want the held command", last)
	}
}

func TestCloseWaitsForInFlightApply(t *testing.T) {
	s, l := openSession(t)
	ctx := context.Background()

	entered, release := l.HoldSends()
	applied := make(chan error, 1)
	go func() { applied <- s.ApplyCommand(ctx, uniform(0.1), false) }()
	<-entered

	closed := make(chan error, 1)
	go func() { closed <- s.Close(ctx) }()
	select {
	case <-closed:
		t.Fatal("Close returned while a transaction was in flight")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	if err := <-applied; err != nil {
		t.Errorf("apply error = %v", err)
	}
	if err := <-closed; err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if !l.Current().IsZero() {
		t.Error("close should leave the mirror at zero")
	}
}

func TestCloseReturnsDisconnectError(t *testing.T) {
	s, l := openSession(t)
	l.SetErrorSimulation(fake.OpDisconnect, mirror.ErrUSBIO)

	err := s.Close(context.Background())
	if !errors.Is(err, mirror.ErrUSBIO) {
		t.Errorf("Close() error = %v, want ErrUSBIO", err)
	}
	if s.State() != StateClosed {
		t.Errorf("State() = %v, want closed regardless of release failure", s.State())
	}
}

func TestDeviceInfoAndThresholds(t *testing.T) {
	th := mirror.LockThresholds{MirrorTemperature: 40, PowerSupplyTemperature: 55, PositiveCoilsCurrent: 3, NegativeCoilsCurrent: 3.5}
	s, _ := openSession(t, fake.WithThresholds(th), fake.WithStockCapacity(12))

	info, err := s.DeviceInfo()
	if err != nil {
		t.Fatalf("DeviceInfo() error = %v", err)
	}
	if info.StockCapacity != 12 {
		t.Errorf("StockCapacity = %d, want 12", info.StockCapacity)
	}
	got, err := s.LockThresholds()
	if err != nil || got != th {
		t.Errorf("LockThresholds() = %+v, %v; want %+v", got, err, th)
	}

	st := s.Status()
	if st.State != StateOpened || st.StockCapacity != 12 || st.Device == nil || st.LastAppliedAt == nil {
		t.Errorf("Status() = %+v", st)
	}
}

func TestAuditRecordsOperations(t *testing.T) {
	a := &recordingAudit{}
	s := newSession(t, fake.New(), WithAuditLogger(a))
	ctx := context.Background()

	_ = s.Open(ctx)
	_ = s.ApplyCommand(ctx, uniform(2), false)
	_ = s.Close(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()
	want := []string{"open", "apply", "close"}
	if len(a.actions) != len(want) {
		t.Fatalf("audited %v, want %v", a.actions, want)
	}
	for i := range want {
		if a.actions[i] != want[i] {
			t.Errorf("action[%d] = %q, want %q", i, a.actions[i], want[i])
		}
	}
	if !errors.Is(a.errs[1], mirror.ErrInvalidCommand) {
		t.Errorf("apply audit error = %v, want ErrInvalidCommand", a.errs[1])
	}
}

func TestStateString(t *testing.T) {
	for state, want := range map[State]string{
		StateClosed:       "closed",
		StateOpened:       "opened",
		StateLocked:       "locked",
		StateDisconnected: "disconnected",
		State(9):          "State(9)",
	} {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(state), got, want)
		}
	}
}
