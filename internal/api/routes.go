package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mirror-control/mcc/internal/auth"
	"github.com/mirror-control/mcc/internal/mirror"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

const (
	apiV1     = "/api/v1"
	stockPath = apiV1 + "/mirror/stock/"
)

// RegisterRoutes registers all v1 endpoints.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	// Health endpoint (no auth required)
	mux.HandleFunc(apiV1+"/health", s.handleHealth)

	mux.HandleFunc(apiV1+"/mirror", s.guard(s.handleStatus))
	mux.HandleFunc(apiV1+"/mirror/open", s.guard(s.handleOpen))
	mux.HandleFunc(apiV1+"/mirror/close", s.guard(s.handleClose))
	mux.HandleFunc(apiV1+"/mirror/command", s.guard(s.handleCommand))
	mux.HandleFunc(apiV1+"/mirror/flat", s.guard(s.handleFlat))
	mux.HandleFunc(apiV1+"/mirror/stock", s.guard(s.handleStock))
	mux.HandleFunc(stockPath, s.guard(s.handleStockEntry))
	mux.HandleFunc(apiV1+"/mirror/monitoring", s.guard(s.handleMonitoring))
	mux.HandleFunc(apiV1+"/mirror/telemetry", s.guard(s.handleMirrorTelemetry))
	mux.HandleFunc(apiV1+"/mirror/files/save", s.guard(s.handleSaveFile))
	mux.HandleFunc(apiV1+"/mirror/files/load", s.guard(s.handleLoadFile))

	// Telemetry stream (telemetry scope)
	telemetryHandler := s.handleTelemetry
	if s.authMiddleware != nil {
		telemetryHandler = s.authMiddleware.RequireAuth(s.authMiddleware.RequireScope(auth.ScopeTelemetry)(s.handleTelemetry))
	}
	mux.HandleFunc(apiV1+"/telemetry", telemetryHandler)

	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
}

// guard authenticates the request and requires the read scope for GET and
// the control scope for everything else.
func (s *Server) guard(next http.HandlerFunc) http.HandlerFunc {
	if s.authMiddleware == nil {
		return next
	}
	read := s.authMiddleware.RequireAuth(s.authMiddleware.RequireScope(auth.ScopeRead)(next))
	control := s.authMiddleware.RequireAuth(s.authMiddleware.RequireScope(auth.ScopeControl)(next))
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			read(w, r)
			return
		}
		control(w, r)
	}
}

// commandRequest is the body of POST /mirror/command.
type commandRequest struct {
	Values []float64 `json:"values"`
	Mode   string    `json:"mode,omitempty"`
	Trig   bool      `json:"trig,omitempty"`
}

// applyRequest selects how a stored or flat command is applied.
type applyRequest struct {
	Mode string `json:"mode,omitempty"`
	Trig bool   `json:"trig,omitempty"`
}

type stockRequest struct {
	Values []float64 `json:"values"`
}

type monitoringRequest struct {
	Enabled *bool `json:"enabled"`
}

// saveRequest stores Values, or the last applied command when Values is
// empty.
type saveRequest struct {
	Path      string    `json:"path"`
	Values    []float64 `json:"values,omitempty"`
	Overwrite bool      `json:"overwrite,omitempty"`
}

type loadRequest struct {
	Path string `json:"path"`
}

// commandView is how a command is returned.
type commandView struct {
	Values    []float64  `json:"values"`
	AppliedAt *time.Time `json:"appliedAt,omitempty"`
}

// handleStatus handles GET /mirror
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	WriteSuccess(w, s.session.Status())
}

// handleOpen handles POST /mirror/open
func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	if err := s.session.Open(r.Context()); err != nil {
		WriteSessionError(w, err)
		return
	}
	WriteSuccess(w, s.session.Status())
}

// handleClose handles POST /mirror/close
func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	if err := s.session.Close(r.Context()); err != nil {
		WriteSessionError(w, err)
		return
	}
	WriteSuccess(w, s.session.Status())
}

// handleCommand handles GET/POST /mirror/command
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		c, err := s.session.LastAppliedCommand()
		if err != nil {
			WriteSessionError(w, err)
			return
		}
		at, err := s.session.LastAppliedAt()
		if err != nil {
			WriteSessionError(w, err)
			return
		}
		WriteSuccess(w, commandView{Values: c.Slice(), AppliedAt: &at})
	case http.MethodPost:
		var req commandRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		c, err := mirror.FromSlice(req.Values)
		if err != nil {
			WriteSessionError(w, err)
			return
		}
		mode, err := mirror.ParseMode(req.Mode)
		if err != nil {
			WriteSessionError(w, err)
			return
		}
		if err := s.session.Apply(r.Context(), c, mode, req.Trig); err != nil {
			WriteSessionError(w, err)
			return
		}
		s.writeLastApplied(w)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

// handleFlat handles POST /mirror/flat
func (s *Server) handleFlat(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	var req applyRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	if err := s.session.ApplyFlat(r.Context(), req.Trig); err != nil {
		WriteSessionError(w, err)
		return
	}
	s.writeLastApplied(w)
}

// handleStock handles GET/DELETE /mirror/stock
func (s *Server) handleStock(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		indices, err := s.session.StockIndices()
		if err != nil {
			WriteSessionError(w, err)
			return
		}
		st := s.session.Status()
		WriteSuccess(w, map[string]interface{}{
			"indices":  indices,
			"size":     st.StockSize,
			"capacity": st.StockCapacity,
		})
	case http.MethodDelete:
		if err := s.session.ResetStock(r.Context()); err != nil {
			WriteSessionError(w, err)
			return
		}
		WriteSuccess(w, map[string]interface{}{"indices": []int{}, "size": 0})
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodDelete)
	}
}

// handleStockEntry handles /mirror/stock/{index} and
// /mirror/stock/{index}/apply.
func (s *Server) handleStockEntry(w http.ResponseWriter, r *http.Request) {
	index, action, ok := parseStockPath(r.URL.Path)
	if !ok {
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "Stock index must be an integer", nil)
		return
	}

	switch action {
	case "":
		s.handleStockSlot(w, r, index)
	case "apply":
		if !allowMethods(w, r, http.MethodPost) {
			return
		}
		var req applyRequest
		if !decodeOptionalJSON(w, r, &req) {
			return
		}
		mode, err := mirror.ParseMode(req.Mode)
		if err != nil {
			WriteSessionError(w, err)
			return
		}
		if err := s.session.ApplyStockCommand(r.Context(), index, mode, req.Trig); err != nil {
			WriteSessionError(w, err)
			return
		}
		s.writeLastApplied(w)
	default:
		WriteStandardError(w, ErrNotFound)
	}
}

func (s *Server) handleStockSlot(w http.ResponseWriter, r *http.Request, index int) {
	switch r.Method {
	case http.MethodGet:
		c, err := s.session.StockCommand(index)
		if err != nil {
			WriteSessionError(w, err)
			return
		}
		WriteSuccess(w, map[string]interface{}{"index": index, "values": c.Slice()})
	case http.MethodPut:
		var req stockRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		c, err := mirror.FromSlice(req.Values)
		if err != nil {
			WriteSessionError(w, err)
			return
		}
		if err := s.session.SetStockCommand(r.Context(), index, c); err != nil {
			WriteSessionError(w, err)
			return
		}
		WriteSuccess(w, map[string]interface{}{"index": index, "values": c.Slice()})
	case http.MethodDelete:
		if err := s.session.RemoveStockCommand(r.Context(), index); err != nil {
			WriteSessionError(w, err)
			return
		}
		WriteSuccess(w, map[string]interface{}{"index": index, "defined": false})
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

// handleMonitoring handles GET/POST /mirror/monitoring
func (s *Server) handleMonitoring(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		WriteSuccess(w, map[string]bool{"enabled": s.session.Status().MonitoringEnabled})
	case http.MethodPost:
		var req monitoringRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Enabled == nil {
			WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "enabled must be provided", nil)
			return
		}
		if err := s.session.SetMonitoringEnabled(r.Context(), *req.Enabled); err != nil {
			WriteSessionError(w, err)
			return
		}
		WriteSuccess(w, map[string]bool{"enabled": *req.Enabled})
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

// handleMirrorTelemetry handles GET /mirror/telemetry
func (s *Server) handleMirrorTelemetry(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	thresholds, err := s.session.LockThresholds()
	if err != nil {
		WriteSessionError(w, err)
		return
	}
	snap, err := s.session.Snapshot()
	if err != nil {
		WriteSessionError(w, err)
		return
	}
	WriteSuccess(w, map[string]interface{}{
		"snapshot":       snap,
		"lockThresholds": thresholds,
	})
}

// handleSaveFile handles POST /mirror/files/save
func (s *Server) handleSaveFile(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	var req saveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	path, err := s.resolvePath(req.Path)
	if err != nil {
		WriteSessionError(w, err)
		return
	}

	var c mirror.Command
	if len(req.Values) == 0 {
		c, err = s.session.LastAppliedCommand()
	} else {
		c, err = mirror.FromSlice(req.Values)
	}
	if err != nil {
		WriteSessionError(w, err)
		return
	}
	if err := s.session.SaveCommandFile(r.Context(), c, path, req.Overwrite); err != nil {
		WriteSessionError(w, err)
		return
	}
	WriteSuccess(w, map[string]interface{}{"path": req.Path, "values": c.Slice()})
}

// handleLoadFile handles POST /mirror/files/load
func (s *Server) handleLoadFile(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	var req loadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	path, err := s.resolvePath(req.Path)
	if err != nil {
		WriteSessionError(w, err)
		return
	}
	c, err := s.session.LoadCommandFile(r.Context(), path)
	if err != nil {
		WriteSessionError(w, err)
		return
	}
	WriteSuccess(w, map[string]interface{}{"path": req.Path, "values": c.Slice()})
}

// handleTelemetry handles GET /telemetry (SSE)
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	if s.telemetryHub == nil {
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE",
			"Telemetry service not available", nil)
		return
	}
	if err := s.telemetryHub.Subscribe(r.Context(), w, r); err != nil {
		WriteError(w, http.StatusInternalServerError, "INTERNAL",
			"Failed to subscribe to telemetry stream", nil)
	}
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}

	uptime := 0.0
	if !s.startTime.IsZero() {
		uptime = time.Since(s.startTime).Seconds()
	}

	subsystems := map[string]bool{
		"session":   s.session != nil,
		"telemetry": s.telemetryHub != nil,
		"auth":      true,
	}
	health := map[string]interface{}{
		"status":     "ok",
		"uptimeSec":  uptime,
		"version":    Version,
		"subsystems": subsystems,
	}
	if !subsystems["session"] || !subsystems["telemetry"] {
		health["status"] = "degraded"
		WriteError(w, http.StatusServiceUnavailable, "SERVICE_DEGRADED",
			"One or more subsystems are unavailable", health)
		return
	}
	health["mirror"] = s.session.Status().State
	WriteSuccess(w, health)
}

func (s *Server) writeLastApplied(w http.ResponseWriter) {
	c, err := s.session.LastAppliedCommand()
	if err != nil {
		WriteSessionError(w, err)
		return
	}
	view := commandView{Values: c.Slice()}
	if at, err := s.session.LastAppliedAt(); err == nil {
		view.AppliedAt = &at
	}
	WriteSuccess(w, view)
}

// resolvePath confines p to the files directory when one is configured.
func (s *Server) resolvePath(p string) (string, error) {
	if p == "" {
		return "", NewAPIError("BAD_REQUEST", "path must be provided", http.StatusBadRequest, nil)
	}
	if s.filesDir == "" {
		return p, nil
	}
	if !filepath.IsLocal(p) {
		return "", NewAPIError("BAD_REQUEST", "path must stay inside the files directory", http.StatusBadRequest, nil)
	}
	return filepath.Join(s.filesDir, p), nil
}

// parseStockPath splits /api/v1/mirror/stock/{index}[/{action}].
func parseStockPath(path string) (index int, action string, ok bool) {
	rest := strings.TrimPrefix(path, stockPath)
	parts := strings.Split(rest, "/")
	if len(parts) > 2 {
		return 0, "", false
	}
	index, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, "", false
	}
	if len(parts) == 2 {
		action = parts[1]
	}
	return index, action, true
}

// decodeJSON parses the body strictly: unknown fields and trailing data are
// rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "Malformed JSON or unknown fields", nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "Trailing data after JSON object", nil)
		return false
	}
	return true
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be empty.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "Malformed JSON or unknown fields", nil)
		return false
	}
	return true
}

func allowMethods(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	methodNotAllowed(w, methods...)
	return false
}

func methodNotAllowed(w http.ResponseWriter, methods ...string) {
	w.Header().Set("Allow", strings.Join(methods, ", "))
	WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
		"Only "+strings.Join(methods, ", ")+" allowed", nil)
}
