package api

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/okian/botpulse/internal/adapters/export"
	"github.com/okian/botpulse/pkg/logger"
)

// DepartmentHandler serves the read side of the dashboard API.
type DepartmentHandler struct {
	deps   Dependencies
	logger logger.Logger
}

// NewDepartmentHandler creates a department handler.
func NewDepartmentHandler(deps Dependencies, l logger.Logger) *DepartmentHandler {
	return &DepartmentHandler{deps: deps, logger: l}
}

// HandleList handles GET /api/departments.
func (h *DepartmentHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Departments(r.Context()))
}

// HandleDashboard handles GET /api/departments/{dept}/dashboard?date=.
// Sections that could not be loaded are reported inside a 200 response.
func (h *DepartmentHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.dashboard"
	date, err := queryDate(r, "date", h.deps.Location())
	if err != nil {
		fail(r.Context(), h.logger, w, WrapKind(op, ErrBadRequest, err))
		return
	}
	d, err := h.deps.Dashboard(r.Context(), mux.Vars(r)["dept"], date)
	if err != nil {
		fail(r.Context(), h.logger, w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// HandleSnapshot handles GET /api/departments/{dept}/snapshot?date=.
func (h *DepartmentHandler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	const op = "api.snapshot"
	date, err := queryDate(r, "date", h.deps.Location())
	if err != nil {
		fail(r.Context(), h.logger, w, WrapKind(op, ErrBadRequest, err))
		return
	}
	s, err := h.deps.Snapshot(r.Context(), mux.Vars(r)["dept"], date)
	if err != nil {
		fail(r.Context(), h.logger, w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// HandleSeries handles GET /api/departments/{dept}/series/{section}?from=&to=.
func (h *DepartmentHandler) HandleSeries(w http.ResponseWriter, r *http.Request) {
	const op = "api.series"
	loc := h.deps.Location()
	from, err := queryDate(r, "from", loc)
	if err != nil {
		fail(r.Context(), h.logger, w, WrapKind(op, ErrBadRequest, err))
		return
	}
	to, err := queryDate(r, "to", loc)
	if err != nil {
		fail(r.Context(), h.logger, w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		fail(r.Context(), h.logger, w, NewKind(op, ErrBadRequest))
		return
	}
	vars := mux.Vars(r)
	s, err := h.deps.Series(r.Context(), vars["dept"], vars["section"], from, to)
	if err != nil {
		fail(r.Context(), h.logger, w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// HandleTable handles GET /api/departments/{dept}/tables/{section}.
func (h *DepartmentHandler) HandleTable(w http.ResponseWriter, r *http.Request) {
	const op = "api.table"
	vars := mux.Vars(r)
	s, err := h.deps.Table(r.Context(), vars["dept"], vars["section"])
	if err != nil {
		fail(r.Context(), h.logger, w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// HandleExport handles GET /api/departments/{dept}/export.xlsx?date=.
func (h *DepartmentHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	const op = "api.export"
	date, err := queryDate(r, "date", h.deps.Location())
	if err != nil {
		fail(r.Context(), h.logger, w, WrapKind(op, ErrBadRequest, err))
		return
	}
	d, err := h.deps.Dashboard(r.Context(), mux.Vars(r)["dept"], date)
	if err != nil {
		fail(r.Context(), h.logger, w, Wrap(op, err))
		return
	}
	var buf bytes.Buffer
	if err := export.Write(&buf, d); err != nil {
		fail(r.Context(), h.logger, w, Wrap(op, err))
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+d.Department+"-"+d.Date+`.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// HandleSource handles GET /api/departments/{dept}/source by redirecting to
// the spreadsheet.
func (h *DepartmentHandler) HandleSource(w http.ResponseWriter, r *http.Request) {
	const op = "api.source"
	u, err := h.deps.SourceURL(mux.Vars(r)["dept"])
	if err != nil {
		fail(r.Context(), h.logger, w, Wrap(op, err))
		return
	}
	http.Redirect(w, r, u, http.StatusFound)
}
