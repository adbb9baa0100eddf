package api

import (
	"net/http"
	"strconv"

	"github.com/yourusername/scopefence/metrics"
	"github.com/yourusername/scopefence/pkg/scopefence"
)

// SnapshotSource is anything that can report a metrics snapshot.
type SnapshotSource interface {
	GetSnapshot() *metrics.Snapshot
}

// MetricsHandler serves the decision snapshot as JSON.
//
// Query parameters:
//
//	scope  keep only that scope in rejected_by_scope (global, consumer, provider, provider-consumer)
//	top    return at most that many top consumers
type MetricsHandler struct {
	source SnapshotSource
}

func NewMetricsHandler(source SnapshotSource) *MetricsHandler {
	return &MetricsHandler{source: source}
}

func (h *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{
			Error:   "method_not_allowed",
			Message: "Only GET requests are allowed",
		})
		return
	}

	snap := h.source.GetSnapshot()
	q := r.URL.Query()

	if raw := q.Get("scope"); raw != "" {
		if !scopefence.Scope(raw).Known() {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_scope",
				Message: "unknown scope " + strconv.Quote(raw),
			})
			return
		}
		snap.RejectedByScope = map[string]int64{raw: snap.RejectedByScope[raw]}
	}

	if raw := q.Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_top",
				Message: "top must be a non-negative integer",
			})
			return
		}
		if n < len(snap.TopConsumers) {
			snap.TopConsumers = snap.TopConsumers[:n]
		}
	}

	w.Header().Set("Access-Control-Allow-Origin", "*")
	writeJSON(w, http.StatusOK, snap)
}
