package language

import "testing"

func TestPreprocessText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"mentions", "hey @streamer how are you", "hey how are you"},
		{"urls", "check https://clips.twitch.tv/abc and www.example.com out", "check and out"},
		{"commands", "!songrequest never gonna give you up", "never gonna give you up"},
		{"chat emotes", "that was insane Kappa KEKW", "that was insane"},
		{"emoji", "good game 👍🔥 well played", "good game well played"},
		{"whitespace collapse", "  so   much    space  ", "so much space"},
		{"mixed", "@mod !clip LUL that https://t.co/x was 😂 funny", "that was funny"},
		{"all noise", "@a @b !cmd Kappa 🎉", ""},
		{"plain text untouched", "una frase en español", "una frase en español"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := PreprocessText(tc.in); got != tc.want {
				t.Errorf("PreprocessText(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
