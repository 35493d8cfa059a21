package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/onnwee/chatcore/language"
	"github.com/onnwee/chatcore/registry"
)

// HandleCommandsList serves the commands visible in a scope. Query parameters:
// community_id (optional, global scope when absent), category, include_disabled.
func (h *Handlers) HandleCommandsList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	scope, err := scopeFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid community_id")
		return
	}
	opts := registry.ListOptions{
		Category:        r.URL.Query().Get("category"),
		IncludeDisabled: r.URL.Query().Get("include_disabled") == "1" || r.URL.Query().Get("include_disabled") == "true",
	}
	commands := h.deps.Registry.ListCommands(scope, opts)
	writeJSON(w, http.StatusOK, map[string]any{"commands": commands, "count": len(commands)})
}

// HandleCommandGet resolves one command by name in a scope, community entries
// shadowing global ones. Disabled commands resolve too; the caller inspects
// is_enabled.
func (h *Handlers) HandleCommandGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/commands/")
	if name == "" || strings.Contains(name, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	scope, err := scopeFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid community_id")
		return
	}
	info, ok := h.deps.Registry.GetCommand(name, scope)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown command")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type detectRequest struct {
	Text      string `json:"text"`
	MinLength int    `json:"min_length,omitempty"`
}

// HandleDetect runs the classifier ensemble over a chat message.
func (h *Handlers) HandleDetect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req detectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	minLength := req.MinLength
	if minLength <= 0 {
		minLength = h.deps.DetectMinLength
	}
	result, err := h.deps.Detector.DetectLanguageWith(req.Text, language.DetectOptions{MinLength: minLength})
	switch {
	case errors.Is(err, language.ErrTextTooShort):
		writeError(w, http.StatusUnprocessableEntity, "text too short for reliable detection")
	case errors.Is(err, language.ErrDetectionFailed):
		writeError(w, http.StatusUnprocessableEntity, "no classifier produced a prediction")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

// HandleEmotesList serves the emote codes visible in a platform/channel scope.
func (h *Handlers) HandleEmotesList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	platform := r.URL.Query().Get("platform")
	if platform == "" {
		writeError(w, http.StatusBadRequest, "platform required")
		return
	}
	channelID := r.URL.Query().Get("channel_id")
	codes := h.deps.Emotes.GetEmotes(r.Context(), platform, channelID, nil)
	writeJSON(w, http.StatusOK, map[string]any{"emotes": codes.Sorted(), "count": len(codes)})
}

// HandleEmoteCheck reports whether a single code is a known emote.
func (h *Handlers) HandleEmoteCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	platform := r.URL.Query().Get("platform")
	code := r.URL.Query().Get("code")
	if platform == "" || code == "" {
		writeError(w, http.StatusBadRequest, "platform and code required")
		return
	}
	channelID := r.URL.Query().Get("channel_id")
	writeJSON(w, http.StatusOK, map[string]any{
		"code":     code,
		"is_emote": h.deps.Emotes.IsEmote(r.Context(), code, platform, channelID),
	})
}
