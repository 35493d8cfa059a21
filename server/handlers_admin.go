package server

import (
	"encoding/json"
	"net/http"

	"github.com/onnwee/chatcore/registry"
)

// commandRequest is the admin wire form of a routing-table mutation. A nil
// community_id targets the global scope.
type commandRequest struct {
	Command         string `json:"command"`
	ModuleName      string `json:"module_name"`
	ModuleURL       string `json:"module_url"`
	Description     string `json:"description"`
	Usage           string `json:"usage"`
	Category        string `json:"category"`
	PermissionLevel string `json:"permission_level"`
	IsEnabled       *bool  `json:"is_enabled"`
	CooldownSeconds int    `json:"cooldown_seconds"`
	CommunityID     *int64 `json:"community_id"`
}

func (req *commandRequest) scope() registry.Scope {
	if req.CommunityID != nil {
		return registry.CommunityScope(*req.CommunityID)
	}
	return registry.GlobalScope()
}

func decodeCommandRequest(w http.ResponseWriter, r *http.Request) (*commandRequest, bool) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return nil, false
	}
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	if req.Command == "" {
		writeError(w, http.StatusBadRequest, "command required")
		return nil, false
	}
	return &req, true
}

// HandleAdminCommandRegister upserts a command into its scope.
func (h *Handlers) HandleAdminCommandRegister(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCommandRequest(w, r)
	if !ok {
		return
	}
	enabled := true
	if req.IsEnabled != nil {
		enabled = *req.IsEnabled
	}
	info := registry.CommandInfo{
		Command:         req.Command,
		ModuleName:      req.ModuleName,
		ModuleURL:       req.ModuleURL,
		Description:     req.Description,
		Usage:           req.Usage,
		Category:        req.Category,
		PermissionLevel: registry.PermissionLevel(req.PermissionLevel),
		IsEnabled:       enabled,
		CooldownSeconds: req.CooldownSeconds,
		Scope:           req.scope(),
	}
	if !h.deps.Registry.RegisterCommand(r.Context(), info) {
		writeError(w, http.StatusBadRequest, "registration rejected")
		return
	}
	stored, _ := h.deps.Registry.GetCommand(req.Command, req.scope())
	writeJSON(w, http.StatusOK, stored)
}

func (h *Handlers) handleCommandFlag(w http.ResponseWriter, r *http.Request,
	apply func(r *http.Request, command string, scope registry.Scope) bool) {
	req, ok := decodeCommandRequest(w, r)
	if !ok {
		return
	}
	if !apply(r, req.Command, req.scope()) {
		writeError(w, http.StatusNotFound, "no matching command in scope")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "command": req.Command})
}

// HandleAdminCommandEnable flips is_enabled on.
func (h *Handlers) HandleAdminCommandEnable(w http.ResponseWriter, r *http.Request) {
	h.handleCommandFlag(w, r, func(r *http.Request, command string, scope registry.Scope) bool {
		return h.deps.Registry.EnableCommand(r.Context(), command, scope)
	})
}

// HandleAdminCommandDisable flips is_enabled off; the command stays resolvable.
func (h *Handlers) HandleAdminCommandDisable(w http.ResponseWriter, r *http.Request) {
	h.handleCommandFlag(w, r, func(r *http.Request, command string, scope registry.Scope) bool {
		return h.deps.Registry.DisableCommand(r.Context(), command, scope)
	})
}

// HandleAdminCommandUnregister soft-deletes a command from its scope.
func (h *Handlers) HandleAdminCommandUnregister(w http.ResponseWriter, r *http.Request) {
	h.handleCommandFlag(w, r, func(r *http.Request, command string, scope registry.Scope) bool {
		return h.deps.Registry.UnregisterCommand(r.Context(), command, scope)
	})
}

// HandleAdminCommandsReload re-reads the routing table from the store.
func (h *Handlers) HandleAdminCommandsReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := h.deps.Registry.ReloadCommands(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Registry.GetStats())
}

type emoteRefreshRequest struct {
	Platform  string   `json:"platform"`
	ChannelID string   `json:"channel_id"`
	Sources   []string `json:"sources"`
	Global    bool     `json:"global"`
}

// HandleAdminEmotesRefresh refreshes one channel's emotes, or runs the full
// global refresh when "global" is set.
func (h *Handlers) HandleAdminEmotesRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req emoteRefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Global {
		writeJSON(w, http.StatusOK, map[string]any{"refreshed": h.deps.Emotes.RefreshGlobalEmotesCron(r.Context())})
		return
	}
	if req.Platform == "" {
		writeError(w, http.StatusBadRequest, "platform required")
		return
	}
	codes := h.deps.Emotes.RefreshEmotes(r.Context(), req.Platform, req.ChannelID, req.Sources)
	writeJSON(w, http.StatusOK, map[string]any{"count": len(codes)})
}

// HandleAdminEmotesInvalidate drops a platform's cache tiers; the store is untouched.
func (h *Handlers) HandleAdminEmotesInvalidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		Platform string `json:"platform"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Platform == "" {
		writeError(w, http.StatusBadRequest, "platform required")
		return
	}
	h.deps.Emotes.InvalidateCache(r.Context(), req.Platform)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleAdminStats reports registry and emote cache statistics.
func (h *Handlers) HandleAdminStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	out := map[string]any{"commands": h.deps.Registry.GetStats()}
	if emoteStats, err := h.deps.Emotes.GetStats(r.Context()); err == nil {
		out["emotes"] = emoteStats
	}
	writeJSON(w, http.StatusOK, out)
}
