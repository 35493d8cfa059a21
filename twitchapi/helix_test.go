package twitchapi

import (
	"context"
	"testing"

	"golang.org/x/oauth2"

	"github.com/onnwee/chatcore/testutil"
)

func staticToken() oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token"})
}

func TestGetGlobalEmotes(t *testing.T) {
	m := testutil.NewMockHelixServer(t)
	m.MockGlobalEmotes([]map[string]any{
		{"id": "25", "name": "Kappa", "images": map[string]string{"url_1x": "https://cdn/kappa/1x"}},
		{"id": "88", "name": "PogChamp", "images": map[string]string{"url_1x": "https://cdn/pog/1x"}},
	})

	hc := &HelixClient{ClientID: "cid", TokenSource: staticToken(), BaseURL: m.URL}
	emotes, err := hc.GetGlobalEmotes(context.Background())
	if err != nil {
		t.Fatalf("GetGlobalEmotes: %v", err)
	}
	if len(emotes) != 2 {
		t.Fatalf("len = %d, want 2", len(emotes))
	}
	if emotes[0].Name != "Kappa" || emotes[0].ID != "25" {
		t.Errorf("unexpected first emote: %+v", emotes[0])
	}
	if emotes[0].Images.URL1x != "https://cdn/kappa/1x" {
		t.Errorf("unexpected image url: %q", emotes[0].Images.URL1x)
	}
}

func TestGetChannelEmotes(t *testing.T) {
	m := testutil.NewMockHelixServer(t)
	m.MockChannelEmotes("123", []map[string]any{
		{"id": "9000", "name": "customHype", "images": map[string]string{"url_1x": "https://cdn/hype/1x"}},
	})

	hc := &HelixClient{ClientID: "cid", TokenSource: staticToken(), BaseURL: m.URL}
	emotes, err := hc.GetChannelEmotes(context.Background(), "123")
	if err != nil {
		t.Fatalf("GetChannelEmotes: %v", err)
	}
	if len(emotes) != 1 || emotes[0].Name != "customHype" {
		t.Errorf("unexpected emotes: %+v", emotes)
	}

	if _, err := hc.GetChannelEmotes(context.Background(), ""); err == nil {
		t.Errorf("expected error for empty broadcaster id")
	}
}

func TestGetUserID(t *testing.T) {
	m := testutil.NewMockHelixServer(t)
	m.MockUserResponse("456", "somestreamer")

	hc := &HelixClient{ClientID: "cid", TokenSource: staticToken(), BaseURL: m.URL}
	id, err := hc.GetUserID(context.Background(), "somestreamer")
	if err != nil {
		t.Fatalf("GetUserID: %v", err)
	}
	if id != "456" {
		t.Errorf("id = %q, want 456", id)
	}
}

func TestHelixErrorStatus(t *testing.T) {
	m := testutil.NewMockHelixServer(t)
	m.MockStatus("/chat/emotes/global", 429)

	hc := &HelixClient{ClientID: "cid", TokenSource: staticToken(), BaseURL: m.URL}
	if _, err := hc.GetGlobalEmotes(context.Background()); err == nil {
		t.Errorf("expected error on 429 response")
	}
}
