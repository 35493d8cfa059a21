// Package twitchapi contains minimal helpers to interact with Twitch Helix APIs
// for user id resolution and chat emote listing, using an app access token.
package twitchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// DefaultBaseURL is the production Helix endpoint; overridable for tests.
const DefaultBaseURL = "https://api.twitch.tv/helix"

// NewAppTokenSource returns an oauth2 token source using the client-credentials
// flow against id.twitch.tv. The returned source caches and refreshes tokens.
func NewAppTokenSource(ctx context.Context, clientID, clientSecret string) oauth2.TokenSource {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     "https://id.twitch.tv/oauth2/token",
	}
	return cfg.TokenSource(ctx)
}

// HelixClient provides the emote and user endpoints the emote cache needs.
type HelixClient struct {
	ClientID    string
	TokenSource oauth2.TokenSource
	BaseURL     string
	HTTPClient  *http.Client
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) base() string {
	if hc.BaseURL != "" {
		return hc.BaseURL
	}
	return DefaultBaseURL
}

func (hc *HelixClient) get(ctx context.Context, path string, query map[string]string, out any) error {
	tok, err := hc.TokenSource.Token()
	if err != nil {
		return fmt.Errorf("app token: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hc.base()+path, nil)
	if err != nil {
		return err
	}
	q := req.URL.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	resp, err := hc.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("helix %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetUserID resolves a login name to its user ID.
func (hc *HelixClient) GetUserID(ctx context.Context, login string) (string, error) {
	if login == "" {
		return "", fmt.Errorf("login empty")
	}
	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := hc.get(ctx, "/users", map[string]string{"login": login}, &body); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", fmt.Errorf("user not found: %s", login)
	}
	return body.Data[0].ID, nil
}

// ChatEmote is one emote row from the Helix chat emote endpoints.
type ChatEmote struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Images struct {
		URL1x string `json:"url_1x"`
		URL2x string `json:"url_2x"`
		URL4x string `json:"url_4x"`
	} `json:"images"`
}

type emoteResponse struct {
	Data []ChatEmote `json:"data"`
}

// GetGlobalEmotes lists Twitch's platform-wide emote set.
func (hc *HelixClient) GetGlobalEmotes(ctx context.Context) ([]ChatEmote, error) {
	var body emoteResponse
	if err := hc.get(ctx, "/chat/emotes/global", nil, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// GetChannelEmotes lists a broadcaster's custom emotes (subscriber/follower/bits).
func (hc *HelixClient) GetChannelEmotes(ctx context.Context, broadcasterID string) ([]ChatEmote, error) {
	if broadcasterID == "" {
		return nil, fmt.Errorf("broadcaster id empty")
	}
	var body emoteResponse
	if err := hc.get(ctx, "/chat/emotes", map[string]string{"broadcaster_id": broadcasterID}, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}
