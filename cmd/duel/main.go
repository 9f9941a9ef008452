// Command duel runs one replica of a hamster duel. Local mode puts both
// players on one keyboard; host and guest modes pair two replicas through
// the relay.
package main

import (
	"context"
	"errors"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"hamster-duel/internal/api"
	"hamster-duel/internal/audio"
	"hamster-duel/internal/config"
	"hamster-duel/internal/game"
	"hamster-duel/internal/logging"
	"hamster-duel/internal/netplay"
	"hamster-duel/internal/peer"
	"hamster-duel/internal/render"
)

func main() {
	fs := pflag.NewFlagSet("duel", pflag.ExitOnError)
	config.RegisterFlags(fs)
	modeFlag := fs.String("mode", "local", "local, host or guest")
	roomFlag := fs.String("room", "", "room code or invite link to join as guest")
	_ = fs.Parse(os.Args[1:])

	appConfig, err := config.Load(fs)
	logger := logging.Setup(appConfig.Log)
	if err != nil {
		logger.Fatal().Err(err).Msg("❌ Invalid configuration")
	}

	mode, err := peer.ParseMode(*modeFlag)
	if err != nil {
		logger.Fatal().Err(err).Msg("❌ Invalid mode")
	}
	room := roomFromArg(*roomFlag)
	if room != "" && mode == peer.ModeLocal {
		mode = peer.ModeGuest
	}

	if err := run(appConfig, mode, room, logger); err != nil {
		logger.Error().Err(err).Msg("❌ Duel ended with error")
		os.Exit(1)
	}
}

func run(appConfig config.AppConfig, mode peer.Mode, room string, logger zerolog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	api.StartDebugServer(api.ObservabilityConfig{
		Enabled:       appConfig.Debug.Enabled,
		ListenAddr:    appConfig.Debug.Addr,
		AllowExternal: appConfig.Debug.AllowExternal,
		BasicAuthUser: appConfig.Debug.User,
		BasicAuthPass: appConfig.Debug.Password,
	}, logging.Component(logger, "debug"))

	renderer := render.New(render.Options{Scale: appConfig.Render.Scale})

	music := audio.NewPlayer(audio.Config{
		Enabled:    appConfig.Audio.Enabled,
		Track:      appConfig.Audio.Track,
		Volume:     appConfig.Audio.Volume,
		SampleRate: appConfig.Audio.SampleRate,
	}, audio.WithLogger(logging.Component(logger, "audio")))
	defer music.Close()

	opts := []peer.Option{
		peer.WithRenderer(renderer),
		peer.WithAudio(music),
		peer.WithMetrics(api.PeerMetrics{}),
		peer.WithLogger(logging.Component(logger, "peer")),
	}

	if appConfig.Journal.Path != "" {
		journal := game.NewJournal()
		if err := journal.Start(appConfig.Journal.Path); err != nil {
			logger.Warn().Err(err).Msg("⚠️ Match journal disabled")
		} else {
			logger.Info().Str("path", appConfig.Journal.Path).Msg("📝 Match journal")
			defer journal.Stop()
			opts = append(opts, peer.WithJournal(journal))
		}
	}

	if mode.Networked() {
		manager := netplay.NewManager(netplay.Config{
			RelayURL:    appConfig.Relay.URL,
			DialTimeout: appConfig.Relay.DialTimeout,
		}, netplay.WithLogger(logging.Component(logger, "netplay")))
		opts = append(opts, peer.WithSession(manager))
	}

	con := newConsole(nil, renderer, os.Stdout, appConfig.Render.Dir)
	opts = append(opts, peer.WithUI(consoleUI{c: con, menu: func(string) { cancel() }}))

	runner := peer.New(peer.Config{
		Mode:          mode,
		Room:          room,
		FrameRate:     appConfig.Sim.FrameRate,
		MaxFrameDelta: appConfig.Sim.MaxFrameDelta,
		InviteBase:    appConfig.Relay.InviteBase,
	}, opts...)
	con.keys = runner

	if err := runner.Start(ctx); err != nil {
		return err
	}
	con.printf("%s\n", consoleHelp)

	go func() {
		if err := con.run(ctx, os.Stdin); err != nil && !errors.Is(err, peer.ErrStopped) {
			logger.Warn().Err(err).Msg("console input closed")
		}
		cancel()
	}()

	return runner.Run(ctx)
}

// roomFromArg accepts a bare room code or an invite link carrying ?room=.
func roomFromArg(arg string) string {
	u, err := url.Parse(arg)
	if err != nil || u.Scheme == "" {
		return arg
	}
	if code := u.Query().Get("room"); code != "" {
		return code
	}
	return arg
}
