// Package audio plays the looping background track with gopxl/beep.
package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/vorbis"
	"github.com/gopxl/beep/wav"
	"github.com/rs/zerolog"
)

// ErrUnsupportedFormat is returned for tracks that are neither Ogg Vorbis
// nor WAV.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Config configures the music player.
type Config struct {
	Enabled    bool
	Track      string  // .ogg or .wav file
	Volume     float64 // linear gain in [0, 1]
	SampleRate int     // output rate; tracks at other rates are resampled
	Buffer     time.Duration
}

// DefaultConfig returns the standard music settings.
func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		Track:      "assets/music/duel-bgm.ogg",
		Volume:     0.42,
		SampleRate: 44100,
		Buffer:     100 * time.Millisecond,
	}
}

// Output is the device the mixed stream is played on.
type Output interface {
	Init(rate beep.SampleRate, bufferSize int) error
	Play(s ...beep.Streamer)
	Close()
}

// Player loops one track forever once started. A failed Start leaves the
// player unstarted so the caller can try again later.
type Player struct {
	cfg    Config
	out    Output
	logger zerolog.Logger

	mu       sync.Mutex
	started  bool
	outReady bool
	stream   beep.StreamSeekCloser
	ctrl     *beep.Ctrl
}

// Option configures a Player.
type Option func(*Player)

// WithOutput replaces the system speaker.
func WithOutput(o Output) Option {
	return func(p *Player) { p.out = o }
}

// WithLogger sets the player logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Player) { p.logger = l }
}

// NewPlayer creates a player. Nothing is opened until Start.
func NewPlayer(cfg Config, opts ...Option) *Player {
	d := DefaultConfig()
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = d.SampleRate
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = d.Buffer
	}
	cfg.Volume = min(max(cfg.Volume, 0), 1)

	p := &Player{
		cfg:    cfg,
		out:    speakerOutput{},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start opens the track and begins looping it. It returns nil when the
// player is disabled or already playing.
func (p *Player) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.cfg.Enabled || p.started {
		return nil
	}

	stream, format, err := open(p.cfg.Track)
	if err != nil {
		return err
	}

	rate := beep.SampleRate(p.cfg.SampleRate)
	if !p.outReady {
		if err := p.out.Init(rate, rate.N(p.cfg.Buffer)); err != nil {
			stream.Close()
			return fmt.Errorf("init audio output: %w", err)
		}
		p.outReady = true
	}

	var s beep.Streamer = beep.Loop(-1, stream)
	if format.SampleRate != rate {
		s = beep.Resample(4, format.SampleRate, rate, s)
	}
	// Gain scales by 1+Gain
	s = &effects.Gain{Streamer: s, Gain: p.cfg.Volume - 1}

	p.stream = stream
	p.ctrl = &beep.Ctrl{Streamer: s}
	p.out.Play(p.ctrl)
	p.started = true

	p.logger.Info().
		Str("track", p.cfg.Track).
		Int("rate", int(format.SampleRate)).
		Float64("volume", p.cfg.Volume).
		Msg("🎵 background music started")
	return nil
}

// Playing reports whether the track is looping.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// Close stops playback and releases the track and output.
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctrl != nil {
		p.ctrl.Paused = true
		p.ctrl = nil
	}
	if p.stream != nil {
		p.stream.Close()
		p.stream = nil
	}
	if p.outReady {
		p.out.Close()
		p.outReady = false
	}
	p.started = false
}

func open(path string) (beep.StreamSeekCloser, beep.Format, error) {
	var decode func(f *os.File) (beep.StreamSeekCloser, beep.Format, error)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ogg", ".oga":
		decode = func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return vorbis.Decode(f) }
	case ".wav":
		decode = func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return wav.Decode(f) }
	default:
		return nil, beep.Format{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("open track: %w", err)
	}
	stream, format, err := decode(f)
	if err != nil {
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return stream, format, nil
}
