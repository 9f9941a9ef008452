// Package config provides centralized configuration management for the
// relay broker and the duel peer.
//
// Sources, lowest to highest precedence: defaults, an optional duel.yaml
// (or --config file), .env plus DUEL_* environment variables, then flags.
//
// Gameplay tuning is NOT here. Both replicas of a match must run identical
// logic, so arena size, speeds and timings are constants in internal/game.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override (DUEL_LOG_LEVEL).
const EnvPrefix = "DUEL"

// =============================================================================
// SIMULATION LOOP
// =============================================================================

// SimConfig holds display loop settings. The fixed simulation step is not
// configurable; these only control how often the clock is polled.
type SimConfig struct {
	FrameRate     int           // Display frames per second
	MaxFrameDelta time.Duration // Longest elapsed time fed to the clock in one frame
}

// DefaultSim returns the default loop configuration.
func DefaultSim() SimConfig {
	return SimConfig{
		FrameRate:     60,
		MaxFrameDelta: 50 * time.Millisecond,
	}
}

// =============================================================================
// RELAY CLIENT
// =============================================================================

// RelayConfig tells a peer where the room broker lives.
type RelayConfig struct {
	URL         string        // ws:// or wss:// base of the broker
	InviteBase  string        // Base URL for shareable invite links
	DialTimeout time.Duration // Handshake timeout when creating or joining a room
}

// DefaultRelay returns the default relay client configuration.
func DefaultRelay() RelayConfig {
	return RelayConfig{
		URL:         "ws://127.0.0.1:3000",
		InviteBase:  "http://127.0.0.1:3000/",
		DialTimeout: 10 * time.Second,
	}
}

// =============================================================================
// BROKER SERVER
// =============================================================================

// ServerConfig holds broker HTTP settings.
type ServerConfig struct {
	Addr          string
	CORSOrigins   []string
	RateLimit     float64 // HTTP requests per second per IP
	RateBurst     int
	MaxRooms      int
	MaxPeers      int     // Concurrent peer sockets, all IPs
	MaxPeersPerIP int     // Concurrent peer sockets per IP
	FrameRate     float64 // Relayed frames per second per peer
	FrameBurst    int
}

// DefaultServer returns the default broker configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Addr:          ":3000",
		CORSOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		RateLimit:     5,
		RateBurst:     10,
		MaxRooms:      1000,
		MaxPeers:      2000,
		MaxPeersPerIP: 8,
		FrameRate:     120,
		FrameBurst:    60,
	}
}

// =============================================================================
// OBSERVABILITY
// =============================================================================

// DebugConfig configures the pprof + prometheus server.
type DebugConfig struct {
	Enabled       bool
	Addr          string // MUST stay on loopback unless AllowExternal
	AllowExternal bool
	User          string // Optional basic auth
	Password      string
}

// DefaultDebug returns safe observability defaults.
func DefaultDebug() DebugConfig {
	return DebugConfig{
		Enabled: true,
		Addr:    "127.0.0.1:6060",
	}
}

// LogConfig selects log verbosity and encoding.
type LogConfig struct {
	Level  string // trace, debug, info, warn, error
	Format string // console or json
}

// DefaultLog returns the default logging configuration.
func DefaultLog() LogConfig {
	return LogConfig{Level: "info", Format: "console"}
}

// JournalConfig controls the match journal. An empty Path disables it.
type JournalConfig struct {
	Path string
}

// DefaultJournal returns the default journal configuration.
func DefaultJournal() JournalConfig {
	return JournalConfig{}
}

// =============================================================================
// COLLABORATORS
// =============================================================================

// AudioConfig holds background music settings.
type AudioConfig struct {
	Enabled    bool
	Track      string  // .ogg or .wav file
	Volume     float64 // 0.0 to 1.0
	SampleRate int     // Speaker sample rate in Hz
}

// DefaultAudio returns the default audio configuration.
func DefaultAudio() AudioConfig {
	return AudioConfig{
		Enabled:    true,
		Track:      "assets/music/duel-bgm.ogg",
		Volume:     0.42,
		SampleRate: 44100,
	}
}

// RenderConfig holds snapshot rendering settings.
type RenderConfig struct {
	Dir   string  // Where `snap` writes PNG frames
	Scale float64 // Output scale relative to the arena size
}

// DefaultRender returns the default render configuration.
func DefaultRender() RenderConfig {
	return RenderConfig{Dir: ".", Scale: 1}
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Sim     SimConfig
	Relay   RelayConfig
	Server  ServerConfig
	Debug   DebugConfig
	Log     LogConfig
	Journal JournalConfig
	Audio   AudioConfig
	Render  RenderConfig
}

// Default returns every section at its default.
func Default() AppConfig {
	return AppConfig{
		Sim:     DefaultSim(),
		Relay:   DefaultRelay(),
		Server:  DefaultServer(),
		Debug:   DefaultDebug(),
		Log:     DefaultLog(),
		Journal: DefaultJournal(),
		Audio:   DefaultAudio(),
		Render:  DefaultRender(),
	}
}

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"log-level":    "log.level",
	"log-format":   "log.format",
	"relay":        "relay.url",
	"invite-base":  "relay.invite_base",
	"addr":         "server.addr",
	"debug":        "debug.enabled",
	"debug-addr":   "debug.addr",
	"journal":      "journal.path",
	"audio":        "audio.enabled",
	"music":        "audio.track",
	"music-volume": "audio.volume",
	"render-dir":   "render.dir",
}

// RegisterFlags adds the shared flags to fs. Binaries add their own flags
// alongside these before parsing.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", "", "config file (default ./duel.yaml if present)")
	fs.String("log-level", d.Log.Level, "log level: trace, debug, info, warn, error")
	fs.String("log-format", d.Log.Format, "log format: console or json")
	fs.String("relay", d.Relay.URL, "room broker WebSocket URL")
	fs.String("invite-base", d.Relay.InviteBase, "base URL for invite links")
	fs.String("addr", d.Server.Addr, "broker listen address")
	fs.Bool("debug", d.Debug.Enabled, "serve pprof and /metrics")
	fs.String("debug-addr", d.Debug.Addr, "debug server address")
	fs.String("journal", d.Journal.Path, "match journal path (JSONL, empty disables)")
	fs.Bool("audio", d.Audio.Enabled, "play background music")
	fs.String("music", d.Audio.Track, "background music track")
	fs.Float64("music-volume", d.Audio.Volume, "music volume 0.0-1.0")
	fs.String("render-dir", d.Render.Dir, "directory for PNG snapshots")
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("sim.frame_rate", d.Sim.FrameRate)
	v.SetDefault("sim.max_frame_delta", d.Sim.MaxFrameDelta)

	v.SetDefault("relay.url", d.Relay.URL)
	v.SetDefault("relay.invite_base", d.Relay.InviteBase)
	v.SetDefault("relay.dial_timeout", d.Relay.DialTimeout)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	v.SetDefault("server.rate_limit", d.Server.RateLimit)
	v.SetDefault("server.rate_burst", d.Server.RateBurst)
	v.SetDefault("server.max_rooms", d.Server.MaxRooms)
	v.SetDefault("server.max_peers", d.Server.MaxPeers)
	v.SetDefault("server.max_peers_per_ip", d.Server.MaxPeersPerIP)
	v.SetDefault("server.frame_rate", d.Server.FrameRate)
	v.SetDefault("server.frame_burst", d.Server.FrameBurst)

	v.SetDefault("debug.enabled", d.Debug.Enabled)
	v.SetDefault("debug.addr", d.Debug.Addr)
	v.SetDefault("debug.allow_external", d.Debug.AllowExternal)
	v.SetDefault("debug.user", d.Debug.User)
	v.SetDefault("debug.password", d.Debug.Password)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("journal.path", d.Journal.Path)

	v.SetDefault("audio.enabled", d.Audio.Enabled)
	v.SetDefault("audio.track", d.Audio.Track)
	v.SetDefault("audio.volume", d.Audio.Volume)
	v.SetDefault("audio.sample_rate", d.Audio.SampleRate)

	v.SetDefault("render.dir", d.Render.Dir)
	v.SetDefault("render.scale", d.Render.Scale)
}

// Load resolves the configuration. fs may be nil; when given it must
// already be parsed.
func Load(fs *pflag.FlagSet) (AppConfig, error) {
	// .env is optional; real environment variables win over it
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return AppConfig{}, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configFile := ""
	if fs != nil {
		configFile, _ = fs.GetString("config")
	}
	if err := readConfigFile(v, configFile); err != nil {
		return AppConfig{}, err
	}

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return AppConfig{}, fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func readConfigFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %s: %w", path, err)
		}
		return nil
	}

	v.SetConfigName("duel")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	return nil
}

func fromViper(v *viper.Viper) AppConfig {
	return AppConfig{
		Sim: SimConfig{
			FrameRate:     v.GetInt("sim.frame_rate"),
			MaxFrameDelta: v.GetDuration("sim.max_frame_delta"),
		},
		Relay: RelayConfig{
			URL:         v.GetString("relay.url"),
			InviteBase:  v.GetString("relay.invite_base"),
			DialTimeout: v.GetDuration("relay.dial_timeout"),
		},
		Server: ServerConfig{
			Addr:          v.GetString("server.addr"),
			CORSOrigins:   v.GetStringSlice("server.cors_origins"),
			RateLimit:     v.GetFloat64("server.rate_limit"),
			RateBurst:     v.GetInt("server.rate_burst"),
			MaxRooms:      v.GetInt("server.max_rooms"),
			MaxPeers:      v.GetInt("server.max_peers"),
			MaxPeersPerIP: v.GetInt("server.max_peers_per_ip"),
			FrameRate:     v.GetFloat64("server.frame_rate"),
			FrameBurst:    v.GetInt("server.frame_burst"),
		},
		Debug: DebugConfig{
			Enabled:       v.GetBool("debug.enabled"),
			Addr:          v.GetString("debug.addr"),
			AllowExternal: v.GetBool("debug.allow_external"),
			User:          v.GetString("debug.user"),
			Password:      v.GetString("debug.password"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Journal: JournalConfig{
			Path: v.GetString("journal.path"),
		},
		Audio: AudioConfig{
			Enabled:    v.GetBool("audio.enabled"),
			Track:      v.GetString("audio.track"),
			Volume:     v.GetFloat64("audio.volume"),
			SampleRate: v.GetInt("audio.sample_rate"),
		},
		Render: RenderConfig{
			Dir:   v.GetString("render.dir"),
			Scale: v.GetFloat64("render.scale"),
		},
	}
}

// Validate rejects values no component can run with.
func (c AppConfig) Validate() error {
	var errs []error
	if c.Sim.FrameRate <= 0 {
		errs = append(errs, fmt.Errorf("sim.frame_rate must be positive, got %d", c.Sim.FrameRate))
	}
	if c.Audio.Volume < 0 || c.Audio.Volume > 1 {
		errs = append(errs, fmt.Errorf("audio.volume must be within [0,1], got %g", c.Audio.Volume))
	}
	if c.Render.Scale <= 0 {
		errs = append(errs, fmt.Errorf("render.scale must be positive, got %g", c.Render.Scale))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be console or json, got %q", c.Log.Format))
	}
	if !strings.HasPrefix(c.Relay.URL, "ws://") && !strings.HasPrefix(c.Relay.URL, "wss://") {
		errs = append(errs, fmt.Errorf("relay.url must be a ws:// or wss:// URL, got %q", c.Relay.URL))
	}
	return errors.Join(errs...)
}
