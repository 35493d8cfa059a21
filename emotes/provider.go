package emotes

import (
	"context"
	"sort"
)

// Emote is one recognized textual trigger fetched from an upstream provider.
type Emote struct {
	Source string // twitch | bttv | ffz | 7tv | discord | slack
	Code   string // the literal text a user types
	ID     string
	URL    string
}

// Provider fetches emotes for one platform. channelID "" means the platform's
// global scope. A nil/empty sources slice means the provider's default set.
type Provider interface {
	Platform() string
	FetchEmotes(ctx context.Context, channelID string, sources []string) ([]Emote, error)
}

// Set is a set of emote codes.
type Set map[string]struct{}

// Contains reports whether code is in the set.
func (s Set) Contains(code string) bool {
	_, ok := s[code]
	return ok
}

// Sorted returns the codes in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for code := range s {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

func setFromCodes(codes []string) Set {
	s := make(Set, len(codes))
	for _, c := range codes {
		s[c] = struct{}{}
	}
	return s
}
