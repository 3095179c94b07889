package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	service "github.com/okian/botpulse/internal/app"
	"github.com/okian/botpulse/pkg/logger"
)

// RefreshDependencies queues department refreshes.
type RefreshDependencies interface {
	RequestRefresh(ctx context.Context, dept, reason string) (service.RefreshResult, error)
}

// RefreshHandler handles refresh requests.
type RefreshHandler struct {
	deps   RefreshDependencies
	logger logger.Logger
}

// NewRefreshHandler creates a new refresh handler.
func NewRefreshHandler(deps RefreshDependencies, l logger.Logger) *RefreshHandler {
	return &RefreshHandler{deps: deps, logger: l}
}

// HandleRefresh handles POST /api/departments/{dept}/refresh. The refresh runs
// in the background; subscribers on /ws hear when it is done.
func (h *RefreshHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	const op = "api.refresh"
	res, err := h.deps.RequestRefresh(r.Context(), mux.Vars(r)["dept"], "api")
	if err != nil {
		fail(r.Context(), h.logger, w, Wrap(op, err))
		return
	}
	switch res {
	case service.RefreshDuplicate:
		writeJSON(w, http.StatusOK, ackResponse{Status: string(res), Duplicate: true})
	case service.RefreshBackpressure:
		fail(r.Context(), h.logger, w, NewKind(op, ErrBackpressure))
	default:
		writeJSON(w, http.StatusAccepted, ackResponse{Status: string(res)})
	}
}
