package api

import (
	"net/http"
	"net/http/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics with bounded cardinality (no per-room labels to prevent DoS)
var (
	// Relay metrics
	roomsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_rooms_open",
		Help: "Rooms currently registered (waiting or paired)",
	})

	roomsPaired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_rooms_paired_total",
		Help: "Rooms that reached the paired state",
	})

	peersConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_peers_connected",
		Help: "Currently connected peer sockets",
	})

	framesRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_frames_relayed_total",
		Help: "Frames forwarded to the counterpart peer",
	})

	framesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_frames_dropped_total",
		Help: "Frames dropped by the relay",
	}, []string{"reason"}) // Bounded: "rate_limit", "binary", "control", "stalled", "unpaired"

	// Peer simulation metrics
	frameDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "duel_frame_duration_seconds",
		Help:    "Time spent stepping the simulation for one display frame",
		Buckets: []float64{0.0005, 0.001, 0.002, 0.004, 0.008, 0.016},
	})

	stepsPerFrame = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "duel_steps_per_frame",
		Help:    "Fixed simulation steps run per display frame",
		Buckets: []float64{0, 1, 2, 3, 4, 6, 8},
	})

	renderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "duel_render_duration_seconds",
		Help:    "Time spent rendering a frame",
		Buckets: []float64{0.001, 0.005, 0.01, 0.02, 0.033, 0.05},
	})

	shotsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "duel_shots_in_flight",
		Help: "Projectiles currently alive",
	})

	roundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duel_rounds_total",
		Help: "Rounds ended",
	}, []string{"cause"}) // Bounded: "hit", "overcharge"

	// Journal metrics
	journalTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "duel_journal_events",
		Help: "Events accepted by the journal",
	})

	journalDropped = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "duel_journal_dropped",
		Help: "Events dropped due to rate limiting or buffer full",
	})

	// DoS detection metrics - use ONLY bounded label values
	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Connections rejected by rate limiter, origin check or room state",
	}, []string{"reason"}) // Bounded: "rate_limit", "origin", "invalid", "room", "ws_ip_limit", "ws_total_limit"

	// HTTP metrics with bounded labels
	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"}) // endpoint is route pattern, not full URL

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})
)

// MetricsObserver exports relay broker events to Prometheus.
type MetricsObserver struct{}

func (MetricsObserver) RoomsChanged(open int)      { roomsOpen.Set(float64(open)) }
func (MetricsObserver) PeersChanged(connected int) { peersConnected.Set(float64(connected)) }
func (MetricsObserver) RoomPaired()                { roomsPaired.Inc() }
func (MetricsObserver) FrameRelayed()              { framesRelayed.Inc() }
func (MetricsObserver) FrameDropped(reason string) { framesDropped.WithLabelValues(reason).Inc() }

// PeerMetrics exports the peer loop's frame timings to Prometheus.
type PeerMetrics struct{}

// RecordFrame records one display frame of simulation work.
func (PeerMetrics) RecordFrame(d time.Duration, steps, shots int) {
	frameDuration.Observe(d.Seconds())
	stepsPerFrame.Observe(float64(steps))
	shotsInFlight.Set(float64(shots))
}

// RecordRender records render timing.
func (PeerMetrics) RecordRender(d time.Duration) {
	renderDuration.Observe(d.Seconds())
}

// RecordRound counts an ended round by cause ("hit" or "overcharge").
func (PeerMetrics) RecordRound(cause string) {
	roundsTotal.WithLabelValues(cause).Inc()
}

// UpdateJournal mirrors journal counters.
func (PeerMetrics) UpdateJournal(total, dropped uint64) {
	journalTotal.Set(float64(total))
	journalDropped.Set(float64(dropped))
}

// ObservabilityConfig configures the debug server
type ObservabilityConfig struct {
	Enabled       bool
	ListenAddr    string // MUST be "127.0.0.1:6060" in production
	AllowExternal bool   // permit a non-loopback ListenAddr
	BasicAuthUser string // Optional basic auth
	BasicAuthPass string
}

// DefaultObservabilityConfig returns safe defaults
func DefaultObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060", // Localhost only - NEVER expose externally
	}
}

// DebugHandler builds the pprof + /metrics mux served by StartDebugServer.
func DebugHandler(cfg ObservabilityConfig) http.Handler {
	mux := http.NewServeMux()

	// pprof endpoints for profiling
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if cfg.BasicAuthUser != "" {
		return basicAuthMiddleware(cfg.BasicAuthUser, cfg.BasicAuthPass, mux)
	}
	return mux
}

// StartDebugServer starts the internal observability server
// CRITICAL: This MUST bind to localhost only to prevent pprof-based DoS
func StartDebugServer(cfg ObservabilityConfig, logger zerolog.Logger) {
	if !cfg.Enabled {
		logger.Info().Msg("📊 Debug server disabled")
		return
	}

	if !isLoopback(cfg.ListenAddr) && !cfg.AllowExternal {
		logger.Warn().Str("requested", cfg.ListenAddr).Msg("⚠️ Debug server forced to localhost for security")
		cfg.ListenAddr = DefaultObservabilityConfig().ListenAddr
	}

	handler := DebugHandler(cfg)

	go func() {
		logger.Info().
			Str("pprof", "http://"+cfg.ListenAddr+"/debug/pprof/").
			Str("metrics", "http://"+cfg.ListenAddr+"/metrics").
			Msg("📊 Debug server starting")

		if err := http.ListenAndServe(cfg.ListenAddr, handler); err != nil {
			logger.Error().Err(err).Msg("⚠️ Debug server error")
		}
	}()
}

func isLoopback(addr string) bool {
	return strings.HasPrefix(addr, "127.0.0.1:") || strings.HasPrefix(addr, "localhost:")
}

// basicAuthMiddleware adds basic authentication to the handler
func basicAuthMiddleware(user, pass string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="debug"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// metricsMiddleware records latency and status per chi route pattern.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				endpoint = p
			}
		}
		RecordRequest(r.Method, endpoint, ww.Status(), time.Since(start))
	})
}

// RecordConnectionRejected increments the rejection counter
// reason must be one of the bounded values listed on connectionRejected
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, endpoint string, status int, duration time.Duration) {
	requestLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	requestTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
}
