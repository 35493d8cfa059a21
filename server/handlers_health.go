package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// HandleHealthz responds to liveness probe requests by checking database connectivity.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.DB.PingContext(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probe requests with per-dependency checks:
// Postgres, Redis, and the classifier ensemble.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"database", func() error { return h.deps.DB.PingContext(r.Context()) }},
		{"redis", func() error {
			if h.deps.KV == nil {
				return fmt.Errorf("redis not configured")
			}
			return h.deps.KV.Ping(r.Context())
		}},
		{"detector", func() error {
			if h.deps.Detector == nil || !h.deps.Detector.HealthCheck() {
				return fmt.Errorf("no language classifiers available")
			}
			return nil
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// HandleStatus reports a snapshot of the routing table and emote cache.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{
		"commands": h.deps.Registry.GetStats(),
	}
	if emoteStats, err := h.deps.Emotes.GetStats(r.Context()); err == nil {
		out["emotes"] = emoteStats
	} else {
		out["emotes_error"] = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(out)
}
