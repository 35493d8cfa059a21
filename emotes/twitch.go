package emotes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/onnwee/chatcore/twitchapi"
)

// Default base URLs for the third-party emote APIs; overridable for tests.
const (
	DefaultBTTVBaseURL    = "https://api.betterttv.net"
	DefaultFFZBaseURL     = "https://api.frankerfacez.com"
	DefaultSevenTVBaseURL = "https://7tv.io"
)

// twitchDefaultSources is what a fetch without an explicit source list covers.
var twitchDefaultSources = []string{"twitch", "bttv", "ffz", "7tv"}

// TwitchProvider fetches emotes for the twitch platform: native emotes via
// Helix plus the BTTV/FFZ/7TV overlays most channels rely on. channelID is the
// numeric broadcaster id, which all four APIs key on.
type TwitchProvider struct {
	Helix      *twitchapi.HelixClient
	HTTPClient *http.Client

	BTTVBaseURL    string
	FFZBaseURL     string
	SevenTVBaseURL string
}

func (p *TwitchProvider) Platform() string { return "twitch" }

func (p *TwitchProvider) http() *http.Client {
	if p.HTTPClient != nil {
		return p.HTTPClient
	}
	return http.DefaultClient
}

func (p *TwitchProvider) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := p.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// FetchEmotes fetches from every requested source. A single source failing is
// logged and skipped; an error is returned only when every source failed and
// nothing was collected.
func (p *TwitchProvider) FetchEmotes(ctx context.Context, channelID string, sources []string) ([]Emote, error) {
	if len(sources) == 0 {
		sources = twitchDefaultSources
	}
	var out []Emote
	var failures int
	for _, source := range sources {
		var emotes []Emote
		var err error
		switch source {
		case "twitch", "global":
			emotes, err = p.fetchNative(ctx, channelID)
		case "bttv":
			emotes, err = p.fetchBTTV(ctx, channelID)
		case "ffz":
			emotes, err = p.fetchFFZ(ctx, channelID)
		case "7tv":
			emotes, err = p.fetchSevenTV(ctx, channelID)
		default:
			slog.Warn("unknown emote source requested", slog.String("source", source), slog.String("component", "emotes"))
			continue
		}
		if err != nil {
			failures++
			slog.Warn("emote source fetch failed",
				slog.String("source", source),
				slog.String("channel_id", channelID),
				slog.Any("err", err),
				slog.String("component", "emotes"))
			continue
		}
		out = append(out, emotes...)
	}
	if len(out) == 0 && failures > 0 {
		return nil, fmt.Errorf("all %d emote sources failed for twitch channel %q", failures, channelID)
	}
	return out, nil
}

func (p *TwitchProvider) fetchNative(ctx context.Context, channelID string) ([]Emote, error) {
	if p.Helix == nil {
		return nil, fmt.Errorf("helix client not configured")
	}
	var chatEmotes []twitchapi.ChatEmote
	var err error
	if channelID == "" {
		chatEmotes, err = p.Helix.GetGlobalEmotes(ctx)
	} else {
		chatEmotes, err = p.Helix.GetChannelEmotes(ctx, channelID)
	}
	if err != nil {
		return nil, err
	}
	out := make([]Emote, 0, len(chatEmotes))
	for _, e := range chatEmotes {
		out = append(out, Emote{Source: "twitch", Code: e.Name, ID: e.ID, URL: e.Images.URL1x})
	}
	return out, nil
}

type bttvEmote struct {
	ID   string `json:"id"`
	Code string `json:"code"`
}

func (e bttvEmote) toEmote() Emote {
	return Emote{Source: "bttv", Code: e.Code, ID: e.ID, URL: fmt.Sprintf("https://cdn.betterttv.net/emote/%s/1x", e.ID)}
}

func (p *TwitchProvider) bttvBase() string {
	if p.BTTVBaseURL != "" {
		return p.BTTVBaseURL
	}
	return DefaultBTTVBaseURL
}

func (p *TwitchProvider) fetchBTTV(ctx context.Context, channelID string) ([]Emote, error) {
	if channelID == "" {
		var body []bttvEmote
		if err := p.getJSON(ctx, p.bttvBase()+"/3/cached/emotes/global", &body); err != nil {
			return nil, err
		}
		out := make([]Emote, 0, len(body))
		for _, e := range body {
			out = append(out, e.toEmote())
		}
		return out, nil
	}
	var body struct {
		ChannelEmotes []bttvEmote `json:"channelEmotes"`
		SharedEmotes  []bttvEmote `json:"sharedEmotes"`
	}
	if err := p.getJSON(ctx, p.bttvBase()+"/3/cached/users/twitch/"+channelID, &body); err != nil {
		return nil, err
	}
	out := make([]Emote, 0, len(body.ChannelEmotes)+len(body.SharedEmotes))
	for _, e := range body.ChannelEmotes {
		out = append(out, e.toEmote())
	}
	for _, e := range body.SharedEmotes {
		out = append(out, e.toEmote())
	}
	return out, nil
}

func (p *TwitchProvider) ffzBase() string {
	if p.FFZBaseURL != "" {
		return p.FFZBaseURL
	}
	return DefaultFFZBaseURL
}

func (p *TwitchProvider) fetchFFZ(ctx context.Context, channelID string) ([]Emote, error) {
	url := p.ffzBase() + "/v1/set/global"
	if channelID != "" {
		url = p.ffzBase() + "/v1/room/id/" + channelID
	}
	var body struct {
		Sets map[string]struct {
			Emoticons []struct {
				ID   int               `json:"id"`
				Name string            `json:"name"`
				URLs map[string]string `json:"urls"`
			} `json:"emoticons"`
		} `json:"sets"`
	}
	if err := p.getJSON(ctx, url, &body); err != nil {
		return nil, err
	}
	var out []Emote
	for _, set := range body.Sets {
		for _, e := range set.Emoticons {
			out = append(out, Emote{Source: "ffz", Code: e.Name, ID: fmt.Sprintf("%d", e.ID), URL: e.URLs["1"]})
		}
	}
	return out, nil
}

func (p *TwitchProvider) sevenTVBase() string {
	if p.SevenTVBaseURL != "" {
		return p.SevenTVBaseURL
	}
	return DefaultSevenTVBaseURL
}

func (p *TwitchProvider) fetchSevenTV(ctx context.Context, channelID string) ([]Emote, error) {
	type sevenTVEmote struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	toEmotes := func(in []sevenTVEmote) []Emote {
		out := make([]Emote, 0, len(in))
		for _, e := range in {
			out = append(out, Emote{Source: "7tv", Code: e.Name, ID: e.ID, URL: fmt.Sprintf("https://cdn.7tv.app/emote/%s/1x.webp", e.ID)})
		}
		return out
	}
	if channelID == "" {
		var body struct {
			Emotes []sevenTVEmote `json:"emotes"`
		}
		if err := p.getJSON(ctx, p.sevenTVBase()+"/v3/emote-sets/global", &body); err != nil {
			return nil, err
		}
		return toEmotes(body.Emotes), nil
	}
	var body struct {
		EmoteSet struct {
			Emotes []sevenTVEmote `json:"emotes"`
		} `json:"emote_set"`
	}
	if err := p.getJSON(ctx, p.sevenTVBase()+"/v3/users/twitch/"+channelID, &body); err != nil {
		return nil, err
	}
	return toEmotes(body.EmoteSet.Emotes), nil
}
