// Command relay runs the room broker that pairs a host and a guest and
// forwards their frames.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"hamster-duel/internal/api"
	"hamster-duel/internal/config"
	"hamster-duel/internal/logging"
	"hamster-duel/internal/relay"
)

func main() {
	fs := pflag.NewFlagSet("relay", pflag.ExitOnError)
	config.RegisterFlags(fs)
	_ = fs.Parse(os.Args[1:])

	appConfig, err := config.Load(fs)
	logger := logging.Setup(appConfig.Log)
	if err != nil {
		logger.Fatal().Err(err).Msg("❌ Invalid configuration")
	}
	serverCfg := appConfig.Server

	logger.Info().Msg("🐹 ================================")
	logger.Info().Msg("🐹  HAMSTER DUEL - ROOM RELAY")
	logger.Info().Msg("🐹 ================================")

	api.StartDebugServer(api.ObservabilityConfig{
		Enabled:       appConfig.Debug.Enabled,
		ListenAddr:    appConfig.Debug.Addr,
		AllowExternal: appConfig.Debug.AllowExternal,
		BasicAuthUser: appConfig.Debug.User,
		BasicAuthPass: appConfig.Debug.Password,
	}, logging.Component(logger, "debug"))

	brokerCfg := relay.DefaultConfig()
	brokerCfg.MaxRooms = serverCfg.MaxRooms
	brokerCfg.FrameRate = serverCfg.FrameRate
	brokerCfg.FrameBurst = serverCfg.FrameBurst

	broker := relay.NewBroker(brokerCfg,
		relay.WithObserver(api.MetricsObserver{}),
		relay.WithLogger(logging.Component(logger, "broker")),
	)
	logger.Info().
		Int("max_rooms", serverCfg.MaxRooms).
		Int("max_peers", serverCfg.MaxPeers).
		Int("max_peers_per_ip", serverCfg.MaxPeersPerIP).
		Float64("frame_rate", serverCfg.FrameRate).
		Msg("🛡️ Resource limits")

	server := api.NewServer(broker, api.ServerOptions{
		RateLimit: api.RateLimitConfig{
			RequestsPerSecond: serverCfg.RateLimit,
			Burst:             serverCfg.RateBurst,
		},
		CORSOrigins: serverCfg.CORSOrigins,
		PeerLimits: api.PeerLimits{
			MaxTotal: serverCfg.MaxPeers,
			MaxPerIP: serverCfg.MaxPeersPerIP,
		},
		Logger: logging.Component(logger, "http"),
	})

	go func() {
		if err := server.Start(serverCfg.Addr); err != nil {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	logger.Info().Str("addr", serverCfg.Addr).Msg("✅ Relay ready! Press Ctrl+C to stop.")
	<-quit

	logger.Info().Msg("🛑 Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}
	broker.Shutdown()
	logger.Info().Msg("👋 Goodbye!")
}
