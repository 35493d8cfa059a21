package language

import (
	"regexp"
	"strings"

	"github.com/forPelevin/gomoji"
)

var (
	mentionPattern = regexp.MustCompile(`@\w+`)
	urlPattern     = regexp.MustCompile(`https?://\S+|www\.\S+`)
	commandPattern = regexp.MustCompile(`(^|\s)![\w-]+`)
)

// commonChatEmotes are widespread chat emote codes that carry no language
// signal and show up in every channel regardless of a channel's own emote set.
// Channel-specific codes are stripped by the emote cache, not here.
var commonChatEmotes = map[string]struct{}{
	"Kappa": {}, "PogChamp": {}, "Pog": {}, "PogU": {}, "Poggers": {},
	"LUL": {}, "KEKW": {}, "OMEGALUL": {}, "LULW": {},
	"PepeHands": {}, "Pepega": {}, "peepoHappy": {}, "widepeepoHappy": {},
	"monkaS": {}, "monkaW": {}, "Sadge": {}, "Copium": {},
	"FeelsBadMan": {}, "FeelsGoodMan": {}, "BibleThump": {},
	"ResidentSleeper": {}, "4Head": {}, "DansGame": {}, "EZ": {},
	"Jebaited": {}, "NotLikeThis": {}, "SeemsGood": {}, "TriHard": {},
	"catJAM": {}, "HeyGuys": {}, "VoHiYo": {}, "GivePLZ": {},
}

// PreprocessText strips the chat noise that confuses language models:
// @mentions, URLs, !commands, common chat emote codes, and emoji. Whitespace is
// collapsed. Pure function, no I/O.
func PreprocessText(text string) string {
	text = mentionPattern.ReplaceAllString(text, " ")
	text = urlPattern.ReplaceAllString(text, " ")
	text = commandPattern.ReplaceAllString(text, " ")
	text = gomoji.RemoveEmojis(text)

	fields := strings.Fields(text)
	kept := fields[:0]
	for _, f := range fields {
		if _, ok := commonChatEmotes[f]; ok {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}
