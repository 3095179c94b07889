// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	service "github.com/okian/botpulse/internal/app"
	"github.com/okian/botpulse/internal/domain/model"
	"github.com/okian/botpulse/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	Departments(ctx context.Context) []model.Department
	Dashboard(ctx context.Context, dept string, date time.Time) (model.Dashboard, error)
	Snapshot(ctx context.Context, dept string, date time.Time) (model.Section, error)
	Series(ctx context.Context, dept, section string, from, to time.Time) (model.Section, error)
	Table(ctx context.Context, dept, section string) (model.Section, error)
	SourceURL(dept string) (string, error)

	// RequestRefresh queues a refresh of one department.
	RequestRefresh(ctx context.Context, dept, reason string) (service.RefreshResult, error)

	// Location decides how query dates are read.
	Location() *time.Location
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	departmentHandler *DepartmentHandler
	refreshHandler    *RefreshHandler
	dashboardHandler  *dashboardHandler
	live              http.Handler
	logger            logger.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLive mounts the websocket hub at /ws.
func WithLive(h http.Handler) ServerOption {
	return func(s *Server) {
		s.live = h
	}
}

// WithLogger sets the logger used for failed requests.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...ServerOption) *Server {
	s := &Server{logger: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(statsProvider)
	s.departmentHandler = NewDepartmentHandler(deps, s.logger)
	s.refreshHandler = NewRefreshHandler(deps, s.logger)
	s.dashboardHandler = newDashboardHandler()
	return s
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(_ context.Context, r *mux.Router) {
	if r == nil {
		panic("router is nil")
	}
	r.Use(RequestIDMiddleware)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", ErrNotFound)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
	})

	r.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz")).Methods(http.MethodGet)
	r.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats")).Methods(http.MethodGet)
	r.HandleFunc("/dashboard", s.dashboardHandler.HandleDashboard).Methods(http.MethodGet)
	if s.live != nil {
		r.Handle("/ws", s.live).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	d := s.departmentHandler
	api.HandleFunc("/departments", MetricsMiddleware(d.HandleList, "departments")).Methods(http.MethodGet)
	api.HandleFunc("/departments/{dept}/dashboard", MetricsMiddleware(d.HandleDashboard, "dashboard")).Methods(http.MethodGet)
	api.HandleFunc("/departments/{dept}/snapshot", MetricsMiddleware(d.HandleSnapshot, "snapshot")).Methods(http.MethodGet)
	api.HandleFunc("/departments/{dept}/series/{section}", MetricsMiddleware(d.HandleSeries, "series")).Methods(http.MethodGet)
	api.HandleFunc("/departments/{dept}/tables/{section}", MetricsMiddleware(d.HandleTable, "table")).Methods(http.MethodGet)
	api.HandleFunc("/departments/{dept}/export.xlsx", MetricsMiddleware(d.HandleExport, "export")).Methods(http.MethodGet)
	api.HandleFunc("/departments/{dept}/source", MetricsMiddleware(d.HandleSource, "source")).Methods(http.MethodGet)
	api.HandleFunc("/departments/{dept}/refresh", MetricsMiddleware(s.refreshHandler.HandleRefresh, "refresh")).Methods(http.MethodPost)
}

// NewRouter returns a router with every route registered.
func (s *Server) NewRouter(ctx context.Context) *mux.Router {
	r := mux.NewRouter()
	s.Register(ctx, r)
	return r
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = clientMessage(err)
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// fail classifies err, logs server-side failures and writes the envelope.
func fail(ctx context.Context, l logger.Logger, w http.ResponseWriter, err error) {
	status, code, msg := classify(err)
	if status >= http.StatusInternalServerError {
		l.Warn(ctx, "request failed",
			logger.String("request_id", RequestID(ctx)),
			logger.Int("status", status),
			logger.Error(err))
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
