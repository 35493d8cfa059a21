package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// MockHelixServer creates a test server that mocks Twitch Helix API responses.
type MockHelixServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockHelixServer creates a new mock Helix API server.
func NewMockHelixServer(t *testing.T) *MockHelixServer {
	t.Helper()
	m := &MockHelixServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
}

// MockUserResponse adds a handler for the /users endpoint.
func (m *MockHelixServer) MockUserResponse(userID, login string) {
	m.Handlers["/users"] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"data": []map[string]string{{"id": userID, "login": login}},
		})
	}
}

// MockGlobalEmotes adds a handler for the /chat/emotes/global endpoint.
func (m *MockHelixServer) MockGlobalEmotes(emotes []map[string]any) {
	m.Handlers["/chat/emotes/global"] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"data": emotes})
	}
}

// MockChannelEmotes adds a handler for the /chat/emotes endpoint, asserting the
// broadcaster_id query parameter.
func (m *MockHelixServer) MockChannelEmotes(broadcasterID string, emotes []map[string]any) {
	m.Handlers["/chat/emotes"] = func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("broadcaster_id") != broadcasterID {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]any{"data": emotes})
	}
}

// MockStatus makes a path return a bare status code.
func (m *MockHelixServer) MockStatus(path string, status int) {
	m.Handlers[path] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}
}

// MockEmoteProviderServer mocks the BTTV/FFZ/7TV cached REST APIs behind one
// server; callers point the provider's base URLs at it.
type MockEmoteProviderServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
	// Calls counts requests per path, letting tests assert a path was never hit.
	Calls map[string]int
}

// NewMockEmoteProviderServer creates a mock third-party emote API server.
func NewMockEmoteProviderServer(t *testing.T) *MockEmoteProviderServer {
	t.Helper()
	m := &MockEmoteProviderServer{
		Handlers: make(map[string]http.HandlerFunc),
		Calls:    make(map[string]int),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Calls[r.URL.Path]++
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockBTTVGlobal serves a BTTV global emote list.
func (m *MockEmoteProviderServer) MockBTTVGlobal(codes ...string) {
	m.Handlers["/3/cached/emotes/global"] = func(w http.ResponseWriter, r *http.Request) {
		out := make([]map[string]string, 0, len(codes))
		for i, c := range codes {
			out = append(out, map[string]string{"id": string(rune('a' + i)), "code": c})
		}
		writeJSON(w, out)
	}
}

// MockBTTVChannel serves a BTTV channel payload with channel and shared emotes.
func (m *MockEmoteProviderServer) MockBTTVChannel(channelID string, channelCodes, sharedCodes []string) {
	toEmotes := func(codes []string) []map[string]string {
		out := make([]map[string]string, 0, len(codes))
		for i, c := range codes {
			out = append(out, map[string]string{"id": string(rune('a' + i)), "code": c})
		}
		return out
	}
	m.Handlers["/3/cached/users/twitch/"+channelID] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"channelEmotes": toEmotes(channelCodes),
			"sharedEmotes":  toEmotes(sharedCodes),
		})
	}
}

// MockFFZGlobal serves an FFZ global set payload.
func (m *MockEmoteProviderServer) MockFFZGlobal(codes ...string) {
	m.Handlers["/v1/set/global"] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, ffzPayload(codes))
	}
}

// MockFFZRoom serves an FFZ room payload for a twitch channel id.
func (m *MockEmoteProviderServer) MockFFZRoom(channelID string, codes ...string) {
	m.Handlers["/v1/room/id/"+channelID] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, ffzPayload(codes))
	}
}

func ffzPayload(codes []string) map[string]any {
	emoticons := make([]map[string]any, 0, len(codes))
	for i, c := range codes {
		emoticons = append(emoticons, map[string]any{
			"id":   i + 1,
			"name": c,
			"urls": map[string]string{"1": "https://cdn.frankerfacez.com/emote/x/1"},
		})
	}
	return map[string]any{
		"sets": map[string]any{"3": map[string]any{"emoticons": emoticons}},
	}
}

// MockSevenTVGlobal serves the 7TV global emote set.
func (m *MockEmoteProviderServer) MockSevenTVGlobal(codes ...string) {
	m.Handlers["/v3/emote-sets/global"] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"emotes": sevenTVEmotes(codes)})
	}
}

// MockSevenTVUser serves a 7TV user connection payload for a twitch channel id.
func (m *MockEmoteProviderServer) MockSevenTVUser(channelID string, codes ...string) {
	m.Handlers["/v3/users/twitch/"+channelID] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"emote_set": map[string]any{"emotes": sevenTVEmotes(codes)}})
	}
}

func sevenTVEmotes(codes []string) []map[string]any {
	out := make([]map[string]any, 0, len(codes))
	for i, c := range codes {
		out = append(out, map[string]any{"id": string(rune('a' + i)), "name": c})
	}
	return out
}
