// Package httpapi serves the local HTTP surface: health, the latest snapshot,
// a websocket update stream, Prometheus metrics and the MCP endpoint.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/jamesprial/nobreak-mcp/internal/auth"
	"github.com/jamesprial/nobreak-mcp/internal/coordinator"
	"github.com/jamesprial/nobreak-mcp/internal/nobreak"
)

// Source is the read side of the coordinator.
type Source interface {
	Latest() (nobreak.Status, bool)
	LastUpdate() (coordinator.Update, bool)
	Stats() coordinator.Stats
}

// Options configures NewRouter. Nil handlers leave their route unregistered.
type Options struct {
	Source    Source
	Stream    *Stream
	Metrics   http.Handler
	MCP       http.Handler
	AuthToken string
}

// Health is the /healthz body.
type Health struct {
	OK         bool              `json:"ok"`
	LastPollAt time.Time         `json:"last_poll_at,omitzero"`
	LastError  string            `json:"last_error,omitempty"`
	Stats      coordinator.Stats `json:"stats"`
}

// NewRouter builds the mux router. Only /mcp requires the bearer token.
func NewRouter(opts Options) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", healthHandler(opts.Source)).Methods(http.MethodGet)
	r.HandleFunc("/api/snapshot", snapshotHandler(opts.Source)).Methods(http.MethodGet)
	if opts.Stream != nil {
		r.Handle("/api/stream", opts.Stream).Methods(http.MethodGet)
	}
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics).Methods(http.MethodGet)
	}
	if opts.MCP != nil {
		mcpRoute := r.PathPrefix("/mcp").Subrouter()
		mcpRoute.Use(auth.NewAuthMiddleware(opts.AuthToken))
		mcpRoute.NewRoute().Handler(opts.MCP)
	}
	return r
}

func healthHandler(src Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := Health{Stats: src.Stats()}
		if u, ok := src.LastUpdate(); ok {
			h.OK = u.OK()
			h.LastPollAt = u.At
			if u.Err != nil {
				h.LastError = u.Err.Error()
			}
		}
		status := http.StatusOK
		if !h.OK {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, h)
	}
}

func snapshotHandler(src Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, ok := src.Latest()
		if !ok {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no snapshot yet"})
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
