package session

import (
	"context"
	"time"

	"github.com/mirror-control/mcc/internal/mirror"
)

// Observer receives monitoring events.
type Observer interface {
	HandleEvent(ev mirror.Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev mirror.Event)

// HandleEvent calls f(ev).
func (f ObserverFunc) HandleEvent(ev mirror.Event) { f(ev) }

// AuditLogger interface for writing audit records.
type AuditLogger interface {
	LogAction(ctx context.Context, action string, params map[string]interface{}, err error, latency time.Duration)
}

// MetricsRecorder receives transaction and telemetry measurements.
type MetricsRecorder interface {
	ObserveTransaction(action string, err error, latency time.Duration)
	ObserveTelemetry(s mirror.Snapshot)
	PollSkipped()
}

// SessionPort is what the HTTP layer needs from a Session.
type SessionPort interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
	Status() Status

	Apply(ctx context.Context, c mirror.Command, mode mirror.Mode, trig bool) error
	ApplyFlat(ctx context.Context, trig bool) error
	LastAppliedCommand() (mirror.Command, error)
	LastAppliedAt() (time.Time, error)

	SetStockCommand(ctx context.Context, index int, c mirror.Command) error
	StockCommand(index int) (mirror.Command, error)
	RemoveStockCommand(ctx context.Context, index int) error
	IsStockCommandDefined(index int) (bool, error)
	ApplyStockCommand(ctx context.Context, index int, mode mirror.Mode, trig bool) error
	ResetStock(ctx context.Context) error
	StockIndices() ([]int, error)

	SetMonitoringEnabled(ctx context.Context, enabled bool) error
	Snapshot() (mirror.Snapshot, error)
	LockThresholds() (mirror.LockThresholds, error)

	SaveCommandFile(ctx context.Context, c mirror.Command, path string, overwrite bool) error
	LoadCommandFile(ctx context.Context, path string) (mirror.Command, error)
}

var _ SessionPort = (*Session)(nil)
