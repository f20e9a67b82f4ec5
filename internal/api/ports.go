package api

import (
	"context"
	"net/http"

	"github.com/mirror-control/mcc/internal/session"
	"github.com/mirror-control/mcc/internal/telemetry"
)

// SessionPort is the mirror session the API drives.
type SessionPort = session.SessionPort

// TelemetryPort defines the minimal interface the API needs from the telemetry hub.
type TelemetryPort interface {
	Subscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) error
}

var _ TelemetryPort = (*telemetry.Hub)(nil)
