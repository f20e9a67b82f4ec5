package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mirror-control/mcc/internal/config"
	"github.com/mirror-control/mcc/internal/mirror"
)

// FileName is the active audit file inside the audit directory.
const FileName = "audit.jsonl"

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	Timestamp time.Time              `json:"ts"`
	User      string                 `json:"user"`
	Action    string                 `json:"action"`
	Params    map[string]interface{} `json:"params,omitempty"`
	Outcome   string                 `json:"outcome"`
	Code      string                 `json:"code"`
	Status    int                    `json:"status"`
	LatencyMs float64                `json:"latencyMs"`
}

// Logger appends audit entries to a rotating JSONL file.
type Logger struct {
	mu       sync.Mutex
	filePath string
	out      *lumberjack.Logger
	now      func() time.Time
}

type userKey struct{}

// WithUser returns a context carrying the acting user.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext returns the acting user or "system".
func UserFromContext(ctx context.Context) string {
	if user, ok := ctx.Value(userKey{}).(string); ok && user != "" {
		return user
	}
	return "system"
}

// NewLogger creates the audit directory and opens the rotating log.
func NewLogger(cfg config.AuditConfig) (*Logger, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	filePath := filepath.Join(cfg.Dir, FileName)
	out := &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	// Touch the file so a missing permission surfaces at startup.
	if _, err := out.Write(nil); err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}

	return &Logger{filePath: filePath, out: out, now: time.Now}, nil
}

// LogAction records a hardware action and its outcome.
func (l *Logger) LogAction(ctx context.Context, action string, params map[string]interface{}, err error, latency time.Duration) {
	outcome, code := "SUCCESS", "SUCCESS"
	status := mirror.StatusOf(err)
	if err != nil {
		outcome = "ERROR"
		code = mirror.ErrorForStatus(status).Error()
	}

	l.writeEntry(AuditEntry{
		Timestamp: l.now().UTC(),
		User:      UserFromContext(ctx),
		Action:    action,
		Params:    params,
		Outcome:   outcome,
		Code:      code,
		Status:    int(status),
		LatencyMs: float64(latency.Microseconds()) / 1000,
	})
}

// LogEvent records a monitoring event.
func (l *Logger) LogEvent(ev mirror.Event) {
	params := map[string]interface{}{
		"locked":                 ev.Snapshot.Locked,
		"connected":              ev.Snapshot.Connected,
		"mirrorTemperature":      ev.Snapshot.MirrorTemperature,
		"powerSupplyTemperature": ev.Snapshot.PowerSupplyTemperature,
	}
	code := "SUCCESS"
	if ev.Err != nil {
		params["error"] = ev.Err.Error()
		code = mirror.ErrorForStatus(mirror.StatusOf(ev.Err)).Error()
	}

	l.writeEntry(AuditEntry{
		Timestamp: l.now().UTC(),
		User:      "monitor",
		Action:    "event." + ev.Type.String(),
		Params:    params,
		Outcome:   "EVENT",
		Code:      code,
		Status:    int(mirror.StatusOf(ev.Err)),
	})
}

func (l *Logger) writeEntry(entry AuditEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to marshal audit entry: %v\n", err)
		return
	}
	if _, err := l.out.Write(append(data, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write audit entry: %v\n", err)
	}
}

// Rotate closes the active file and starts a new one. The old file is kept
// as a timestamped backup.
func (l *Logger) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.Rotate()
}

// Close closes the active file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.Close()
}

// GetFilePath returns the path to the active audit log file.
func (l *Logger) GetFilePath() string {
	return l.filePath
}

var _ io.Closer = (*Logger)(nil)
