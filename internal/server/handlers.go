package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/koustreak/piiscan/internal/cloud"
	"github.com/koustreak/piiscan/internal/database"
	"github.com/koustreak/piiscan/internal/errs"
	"github.com/koustreak/piiscan/internal/scanner"
)

// maxBodyBytes bounds request bodies; scan requests are small.
const maxBodyBytes = 1 << 20

// ScanRequest is the body of POST /v1/scans and POST /v1/plans.
type ScanRequest struct {
	Connection ConnectionRequest `json:"connection"`
	Options    OptionsRequest    `json:"options"`
}

type ConnectionRequest struct {
	Engine   string `json:"engine"`
	DSN      string `json:"dsn,omitempty"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Database string `json:"database,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	SSLMode  string `json:"sslMode,omitempty"`
	Schema   string `json:"schema,omitempty"`
}

type OptionsRequest struct {
	Mode                string  `json:"mode,omitempty"`
	MaxTables           int     `json:"maxTables,omitempty"`
	TableTimeoutSeconds int     `json:"tableTimeoutSeconds,omitempty"`
	QueriesPerSecond    float64 `json:"queriesPerSecond,omitempty"`
}

func (c ConnectionRequest) config() *database.Config {
	cfg := database.DefaultConfig(database.Engine(c.Engine))
	cfg.DSN = c.DSN
	cfg.Host = c.Host
	cfg.Port = c.Port
	cfg.Database = c.Database
	cfg.User = c.User
	cfg.Password = c.Password
	cfg.SSLMode = c.SSLMode
	cfg.Schema = c.Schema
	return cfg
}

func (o OptionsRequest) options() scanner.Options {
	return scanner.Options{
		Mode:             o.Mode,
		MaxTables:        o.MaxTables,
		TableTimeout:     time.Duration(o.TableTimeoutSeconds) * time.Second,
		QueriesPerSecond: o.QueriesPerSecond,
	}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEngines(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"engines": database.Engines()})
}

func (s *Server) handleCloud(w http.ResponseWriter, r *http.Request) {
	host := r.URL.Query().Get("host")
	if host == "" {
		s.writeError(w, r, errs.New(errs.ErrKindInvalidInput, "query parameter host is required"))
		return
	}
	writeJSON(w, http.StatusOK, cloud.ClassifyHost(host))
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	plan, err := s.runner.Plan(r.Context(), req.Connection.config(), req.Options.options())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}

	release, ok := s.acquire()
	if !ok {
		w.Header().Set("Retry-After", "30")
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: errorDetail{
			Kind:    "busy",
			Message: "too many scans in progress",
		}})
		return
	}
	defer release()

	ctx := r.Context()
	if s.cfg.ScanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ScanTimeout)
		defer cancel()
	}

	res, err := s.runner.Scan(ctx, req.Connection.config(), req.Options.options())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request) (*ScanRequest, bool) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	var req ScanRequest
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, r, errs.Wrap(errs.ErrKindInvalidInput, "invalid request body", err))
		return nil, false
	}
	return &req, true
}

// statusFor maps an error kind to the HTTP status of the response.
func statusFor(kind errs.ErrKind) int {
	switch kind {
	case errs.ErrKindInvalidInput:
		return http.StatusBadRequest
	case errs.ErrKindUnsupported:
		return http.StatusUnprocessableEntity
	case errs.ErrKindPermissionDenied:
		return http.StatusForbidden
	case errs.ErrKindNotFound:
		return http.StatusNotFound
	case errs.ErrKindConnectionFailed, errs.ErrKindQueryFailed:
		return http.StatusBadGateway
	case errs.ErrKindTimeout:
		return http.StatusGatewayTimeout
	case errs.ErrKindCancelled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := errs.KindOf(err)
	status := statusFor(kind)
	if status >= 500 {
		s.log.ErrorWith("request failed", err, map[string]interface{}{"path": r.URL.Path, "kind": kind.String()})
	}

	msg := err.Error()
	var e *errs.Error
	if errors.As(err, &e) {
		// Driver causes can echo connection strings; keep them in logs only.
		msg = e.Message
	}
	writeJSON(w, status, errorBody{Error: errorDetail{Kind: kind.String(), Message: msg}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
