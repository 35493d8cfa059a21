// Command chattap joins one or more Twitch channels anonymously and runs every
// incoming chat line through the classification pipeline: command resolution
// against the routing table, emote-aware preprocessing, and ensemble language
// detection. Results are logged, making it a live smoke test of the whole
// stack against real chat traffic.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	twitch "github.com/gempir/go-twitch-irc/v4"
	"github.com/joho/godotenv"

	"github.com/onnwee/chatcore/db"
	"github.com/onnwee/chatcore/emotes"
	"github.com/onnwee/chatcore/kvcache"
	"github.com/onnwee/chatcore/language"
	"github.com/onnwee/chatcore/registry"
	"github.com/onnwee/chatcore/telemetry"
)

func main() {
	_ = godotenv.Load(".env")
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))
	telemetry.Init()

	channels := strings.Split(os.Getenv("TWITCH_CHANNELS"), ",")
	var joined []string
	for _, ch := range channels {
		if ch = strings.TrimSpace(ch); ch != "" {
			joined = append(joined, ch)
		}
	}
	if len(joined) == 0 {
		slog.Error("TWITCH_CHANNELS not set")
		os.Exit(1)
	}

	database, err := db.Connect()
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := kvcache.Connect(ctx)
	if err != nil {
		slog.Error("failed to connect redis", slog.Any("err", err))
		os.Exit(1)
	}
	defer rdb.Close()

	reg := registry.New(database)
	if err := reg.Initialize(ctx); err != nil {
		slog.Error("failed to load command registry", slog.Any("err", err))
		os.Exit(1)
	}
	emoteSvc := emotes.NewService(database, kvcache.New(rdb), &emotes.TwitchProvider{})
	detector := language.NewDetector()

	// Anonymous connection: read-only, no oauth needed.
	client := twitch.NewAnonymousClient()
	client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		handleMessage(ctx, msg, reg, emoteSvc, detector)
	})

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		_ = client.Disconnect()
		close(done)
	}()

	client.Join(joined...)
	slog.Info("tapping chat", slog.Any("channels", joined))
	if err := client.Connect(); err != nil {
		slog.Error("twitch chat connect error", slog.Any("err", err))
	}
	<-done
}

func handleMessage(ctx context.Context, msg twitch.PrivateMessage,
	reg *registry.Registry, emoteSvc *emotes.Service, detector *language.Detector) {
	log := slog.With(
		slog.String("channel", msg.Channel),
		slog.String("user", msg.User.Name))

	// Commands route, they don't classify.
	if strings.HasPrefix(msg.Message, "!") {
		name := strings.TrimPrefix(strings.Fields(msg.Message)[0], "!")
		if info, ok := reg.GetCommand(name, registry.GlobalScope()); ok {
			log.Info("command resolved",
				slog.String("command", info.Command),
				slog.String("module", info.ModuleName),
				slog.Bool("enabled", info.IsEnabled))
		} else {
			log.Info("unknown command", slog.String("command", name))
		}
		return
	}

	known := 0
	for _, word := range strings.Fields(msg.Message) {
		if emoteSvc.IsEmote(ctx, word, "twitch", msg.RoomID) {
			known++
		}
	}

	result, err := detector.DetectLanguage(msg.Message)
	if err != nil {
		log.Debug("detection skipped", slog.Any("err", err), slog.Int("emotes", known))
		return
	}
	log.Info("message classified",
		slog.String("language", result.Language),
		slog.Float64("confidence", result.Confidence),
		slog.Int("emotes", known))
}
