package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/onnwee/chatcore/emotes"
	"github.com/onnwee/chatcore/language"
	"github.com/onnwee/chatcore/registry"
	"github.com/onnwee/chatcore/server"
	"github.com/onnwee/chatcore/testutil"
)

func newTestMux(t *testing.T) http.Handler {
	t.Helper()
	database := testutil.SetupTestDB(t)
	for _, table := range []string{"commands", "emote_cache"} {
		if _, err := database.Exec("DELETE FROM " + table); err != nil {
			t.Fatalf("failed to clean %s: %v", table, err)
		}
	}
	t.Cleanup(func() {
		_, _ = database.Exec("DELETE FROM commands")
		_, _ = database.Exec("DELETE FROM emote_cache")
	})
	kv, _ := testutil.SetupTestRedis(t)

	reg := registry.New(database)
	if !reg.RegisterCommand(context.Background(), registry.CommandInfo{
		Command:    "help",
		ModuleName: "core",
		Category:   "info",
		IsEnabled:  true,
		Scope:      registry.GlobalScope(),
	}) {
		t.Fatal("failed to seed help command")
	}

	deps := server.Deps{
		DB:       database,
		KV:       kv,
		Registry: reg,
		Emotes:   emotes.NewService(database, kv),
		Detector: language.NewDetector(),
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return server.NewMux(ctx, deps)
}

func doJSON(t *testing.T, mux http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	out := make(map[string]any)
	if rec.Body.Len() > 0 && strings.Contains(rec.Header().Get("Content-Type"), "json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("response is not valid JSON: %v\n%s", err, rec.Body.String())
		}
	}
	return rec, out
}

func TestHealthzAndReadyz(t *testing.T) {
	mux := newTestMux(t)

	rec, _ := doJSON(t, mux, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Errorf("healthz: expected 200, got %d", rec.Code)
	}

	rec, body := doJSON(t, mux, http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusOK {
		t.Errorf("readyz: expected 200, got %d (%v)", rec.Code, body)
	}
	if body["status"] != "ready" {
		t.Errorf("readyz: expected ready, got %v", body)
	}
}

func TestCorrelationIDHeader(t *testing.T) {
	mux := newTestMux(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Header().Get("X-Correlation-ID") == "" {
		t.Error("expected generated correlation id header")
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Correlation-ID", "corr-123")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Correlation-ID"); got != "corr-123" {
		t.Errorf("expected provided correlation id echoed, got %q", got)
	}
}

func TestCommandsListAndGet(t *testing.T) {
	mux := newTestMux(t)

	rec, body := doJSON(t, mux, http.MethodGet, "/commands", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("commands list: expected 200, got %d", rec.Code)
	}
	if body["count"].(float64) != 1 {
		t.Errorf("expected 1 seeded command, got %v", body["count"])
	}

	rec, body = doJSON(t, mux, http.MethodGet, "/commands/help", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("command get: expected 200, got %d", rec.Code)
	}
	if body["module_url"] != "http://core:8000" {
		t.Errorf("expected defaulted module url, got %v", body["module_url"])
	}

	rec, _ = doJSON(t, mux, http.MethodGet, "/commands/nosuch", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown command: expected 404, got %d", rec.Code)
	}
}

func TestAdminCommandLifecycleOverHTTP(t *testing.T) {
	mux := newTestMux(t)

	rec, _ := doJSON(t, mux, http.MethodPost, "/admin/commands",
		`{"command":"quote","module_name":"fun","category":"fun"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("register: expected 200, got %d", rec.Code)
	}

	rec, _ = doJSON(t, mux, http.MethodPost, "/admin/commands/disable", `{"command":"quote"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("disable: expected 200, got %d", rec.Code)
	}

	// Disabled commands stay resolvable by name but drop out of listings.
	rec, body := doJSON(t, mux, http.MethodGet, "/commands/quote", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get disabled: expected 200, got %d", rec.Code)
	}
	if body["is_enabled"] != false {
		t.Errorf("expected disabled command metadata, got %v", body)
	}
	_, body = doJSON(t, mux, http.MethodGet, "/commands", "")
	if body["count"].(float64) != 1 {
		t.Errorf("disabled command should not be listed, got %v", body["count"])
	}

	rec, _ = doJSON(t, mux, http.MethodPost, "/admin/commands/unregister", `{"command":"quote"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unregister: expected 200, got %d", rec.Code)
	}
	rec, _ = doJSON(t, mux, http.MethodGet, "/commands/quote", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unregistered command should 404, got %d", rec.Code)
	}

	rec, _ = doJSON(t, mux, http.MethodPost, "/admin/commands/enable", `{"command":"nosuch"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("enable of unknown command should 404, got %d", rec.Code)
	}
}

func TestAdminAuthGuardsAdminRoutes(t *testing.T) {
	t.Setenv("ADMIN_TOKEN", "sekrit")
	mux := newTestMux(t)

	rec, _ := doJSON(t, mux, http.MethodGet, "/admin/stats", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("admin route without token should 401, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	req.Header.Set("X-Admin-Token", "sekrit")
	rec2 := httptest.NewRecorder()
	mux.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusOK {
		t.Errorf("admin route with token should pass, got %d", rec2.Code)
	}

	// Public routes stay open.
	rec, _ = doJSON(t, mux, http.MethodGet, "/commands", "")
	if rec.Code != http.StatusOK {
		t.Errorf("public route should not require auth, got %d", rec.Code)
	}
}

func TestDetectEndpoint(t *testing.T) {
	mux := newTestMux(t)

	rec, body := doJSON(t, mux, http.MethodPost, "/detect",
		`{"text":"the quick brown fox jumps over the lazy dog near the river bank"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("detect: expected 200, got %d (%v)", rec.Code, body)
	}
	if body["language"] != "en" {
		t.Errorf("expected english detection, got %v", body)
	}

	rec, _ = doJSON(t, mux, http.MethodPost, "/detect", `{"text":"hi"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("short text should 422, got %d", rec.Code)
	}

	rec, _ = doJSON(t, mux, http.MethodPost, "/detect", `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad body should 400, got %d", rec.Code)
	}
}

func TestEmoteEndpoints(t *testing.T) {
	mux := newTestMux(t)
	database := testutil.SetupTestDB(t)
	if _, err := database.Exec(
		`INSERT INTO emote_cache (platform, channel_id, emote_source, emote_code, emote_id, emote_url, expires_at)
		 VALUES ('twitch', NULL, 'bttv', 'catJAM', 'x', 'https://example.test/x', NOW() + interval '1 hour')`); err != nil {
		t.Fatalf("failed to seed emote: %v", err)
	}

	rec, body := doJSON(t, mux, http.MethodGet, "/emotes?platform=twitch", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("emotes list: expected 200, got %d", rec.Code)
	}
	if body["count"].(float64) != 1 {
		t.Errorf("expected 1 emote, got %v", body)
	}

	rec, body = doJSON(t, mux, http.MethodGet, "/emotes/check?platform=twitch&code=catJAM", "")
	if rec.Code != http.StatusOK || body["is_emote"] != true {
		t.Errorf("expected catJAM recognized, got %d %v", rec.Code, body)
	}

	rec, _ = doJSON(t, mux, http.MethodGet, "/emotes", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing platform should 400, got %d", rec.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	mux := newTestMux(t)

	rec, body := doJSON(t, mux, http.MethodGet, "/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d", rec.Code)
	}
	if _, ok := body["commands"]; !ok {
		t.Errorf("expected commands section in status, got %v", body)
	}
}
