package emotes_test

import (
	"context"
	"testing"

	"golang.org/x/oauth2"

	"github.com/onnwee/chatcore/emotes"
	"github.com/onnwee/chatcore/testutil"
	"github.com/onnwee/chatcore/twitchapi"
)

func newTestProvider(t *testing.T) (*emotes.TwitchProvider, *testutil.MockEmoteProviderServer) {
	t.Helper()
	upstream := testutil.NewMockEmoteProviderServer(t)
	return &emotes.TwitchProvider{
		BTTVBaseURL:    upstream.URL,
		FFZBaseURL:     upstream.URL,
		SevenTVBaseURL: upstream.URL,
	}, upstream
}

func codesBySource(fetched []emotes.Emote) map[string][]string {
	out := make(map[string][]string)
	for _, e := range fetched {
		out[e.Source] = append(out[e.Source], e.Code)
	}
	return out
}

func TestFetchEmotesChannelAllOverlaySources(t *testing.T) {
	provider, upstream := newTestProvider(t)
	upstream.MockBTTVChannel("123", []string{"localEmote"}, []string{"sharedEmote"})
	upstream.MockFFZRoom("123", "ZreknarF")
	upstream.MockSevenTVUser("123", "PETTHEMODS")

	fetched, err := provider.FetchEmotes(context.Background(), "123", []string{"bttv", "ffz", "7tv"})
	if err != nil {
		t.Fatalf("FetchEmotes failed: %v", err)
	}
	got := codesBySource(fetched)
	if len(got["bttv"]) != 2 {
		t.Errorf("expected channel+shared bttv emotes, got %v", got["bttv"])
	}
	if len(got["ffz"]) != 1 || got["ffz"][0] != "ZreknarF" {
		t.Errorf("unexpected ffz emotes: %v", got["ffz"])
	}
	if len(got["7tv"]) != 1 || got["7tv"][0] != "PETTHEMODS" {
		t.Errorf("unexpected 7tv emotes: %v", got["7tv"])
	}
}

func TestFetchEmotesGlobalSources(t *testing.T) {
	provider, upstream := newTestProvider(t)
	upstream.MockBTTVGlobal("catJAM")
	upstream.MockFFZGlobal("ZreknarF")
	upstream.MockSevenTVGlobal("PETTHEMODS")

	fetched, err := provider.FetchEmotes(context.Background(), "", []string{"bttv", "ffz", "7tv"})
	if err != nil {
		t.Fatalf("FetchEmotes failed: %v", err)
	}
	if len(fetched) != 3 {
		t.Errorf("expected 3 global emotes, got %d: %v", len(fetched), codesBySource(fetched))
	}
}

func TestFetchEmotesNativeViaHelix(t *testing.T) {
	helixSrv := testutil.NewMockHelixServer(t)
	helixSrv.MockGlobalEmotes([]map[string]any{
		{"id": "25", "name": "Kappa", "images": map[string]string{"url_1x": "https://example.test/kappa"}},
	})
	provider := &emotes.TwitchProvider{
		Helix: &twitchapi.HelixClient{
			ClientID:    "cid",
			TokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok"}),
			BaseURL:     helixSrv.URL,
		},
	}

	fetched, err := provider.FetchEmotes(context.Background(), "", []string{"twitch"})
	if err != nil {
		t.Fatalf("FetchEmotes failed: %v", err)
	}
	if len(fetched) != 1 || fetched[0].Code != "Kappa" || fetched[0].Source != "twitch" {
		t.Errorf("unexpected native emotes: %+v", fetched)
	}
}

func TestFetchEmotesPartialFailureStillCollects(t *testing.T) {
	provider, upstream := newTestProvider(t)
	// Only BTTV answers; FFZ and 7TV 404.
	upstream.MockBTTVChannel("123", []string{"localEmote"}, nil)

	fetched, err := provider.FetchEmotes(context.Background(), "123", []string{"bttv", "ffz", "7tv"})
	if err != nil {
		t.Fatalf("expected partial failure to be tolerated, got %v", err)
	}
	if len(fetched) != 1 || fetched[0].Code != "localEmote" {
		t.Errorf("unexpected emotes after partial failure: %+v", fetched)
	}
}

func TestFetchEmotesAllSourcesFailing(t *testing.T) {
	provider, _ := newTestProvider(t)

	if _, err := provider.FetchEmotes(context.Background(), "123", []string{"bttv", "ffz"}); err == nil {
		t.Error("expected error when every source fails")
	}
}

func TestFetchEmotesUnknownSourceSkipped(t *testing.T) {
	provider, upstream := newTestProvider(t)
	upstream.MockBTTVGlobal("catJAM")

	fetched, err := provider.FetchEmotes(context.Background(), "", []string{"bttv", "discord"})
	if err != nil {
		t.Fatalf("FetchEmotes failed: %v", err)
	}
	if len(fetched) != 1 {
		t.Errorf("unknown source should be skipped, got %v", codesBySource(fetched))
	}
}
