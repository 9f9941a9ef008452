package api

import (
	"hamster-duel/internal/relay"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// BrokerInterface defines the room broker methods used by the API.
// *relay.Broker implements it; tests may substitute their own.
type BrokerInterface interface {
	// Reserve claims a host or guest slot before the WebSocket upgrade
	Reserve(code string, role relay.Role) (*relay.Room, error)
	// Release frees a slot whose upgrade failed
	Release(room *relay.Room, role relay.Role)
	// Serve pipes frames for an upgraded connection until the room closes
	Serve(ws *websocket.Conn, room *relay.Room, role relay.Role, ip string)
	// Lookup returns the public view of a room
	Lookup(code string) (relay.RoomInfo, bool)
	// Stats returns broker counters for /api/rooms
	Stats() relay.Stats
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
//
// Example usage in tests:
//
//	cfg := api.RouterConfig{
//	    Broker: relay.NewBroker(relay.DefaultConfig()),
//	    RateLimitConfig: &api.RateLimitConfig{
//	        RequestsPerSecond: 1000, // High limit for tests
//	        Burst:             1000,
//	    },
//	    DisableLogging: true,
//	}
//	ts := httptest.NewServer(api.NewRouter(cfg))
type RouterConfig struct {
	// Broker pairs peers into rooms (required)
	Broker BrokerInterface

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one will be created using RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is optional configuration for the rate limiter.
	// Only used if RateLimiter is nil. If both are nil, uses DefaultRateLimitConfig.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins is an optional list of allowed CORS origins. It also
	// gates browser WebSocket upgrades; clients that send no Origin header
	// are always allowed.
	CORSOrigins []string

	// PeerLimits caps concurrent peer connections. Zero values use defaults.
	PeerLimits PeerLimits

	// Logger receives connection lifecycle logs.
	Logger zerolog.Logger

	// DisableLogging disables the request logger middleware (useful for tests).
	DisableLogging bool
}

// DefaultCORSOrigins are used when RouterConfig.CORSOrigins is nil.
var DefaultCORSOrigins = []string{
	"http://localhost:*",
	"http://127.0.0.1:*",
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// No network listeners are opened, so it is safe to use in tests with
// httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware - Order matters!
	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	// Rate limiting (BEFORE CORS to reject early and save CPU)
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = DefaultCORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	h := &routerHandlers{broker: cfg.Broker}
	peers := newPeerHandler(cfg.Broker, cfg.PeerLimits, corsOrigins, cfg.Logger)

	r.Get("/health", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/rooms", h.handleRoomStats)
		r.Get("/rooms/{code}", h.handleGetRoom)
	})

	// Peer channel: GET /peer/{code}?role=host|guest upgrades to WebSocket
	r.Get("/peer/{code}", peers.ServeHTTP)

	return r
}
