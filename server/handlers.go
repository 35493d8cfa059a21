package server

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/onnwee/chatcore/emotes"
	"github.com/onnwee/chatcore/kvcache"
	"github.com/onnwee/chatcore/language"
	"github.com/onnwee/chatcore/registry"
)

// Deps carries the services the HTTP layer fronts.
type Deps struct {
	DB       *sql.DB
	KV       *kvcache.Manager
	Registry *registry.Registry
	Emotes   *emotes.Service
	Detector *language.Detector

	// DetectMinLength overrides the detector's default minimum length when a
	// request doesn't specify one. 0 keeps the package default.
	DetectMinLength int
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	deps Deps
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{deps: deps}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// scopeFromQuery reads an optional community_id query parameter; absence means
// the global scope.
func scopeFromQuery(r *http.Request) (registry.Scope, error) {
	v := r.URL.Query().Get("community_id")
	if v == "" {
		return registry.GlobalScope(), nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return registry.Scope{}, err
	}
	return registry.CommunityScope(id), nil
}
