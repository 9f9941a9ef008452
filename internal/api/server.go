package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Server is the relay's HTTP front: room lookups plus the /peer upgrade.
type Server struct {
	broker      BrokerInterface
	router      *chi.Mux
	rateLimiter *IPRateLimiter
	httpServer  *http.Server
	logger      zerolog.Logger
}

// ServerOptions tunes NewServer. The zero value uses production defaults.
type ServerOptions struct {
	RateLimit   RateLimitConfig
	CORSOrigins []string
	PeerLimits  PeerLimits
	Logger      zerolog.Logger
}

// NewServer creates the API server.
//
// IMPORTANT: no goroutines start and no listener opens until Start() is
// called, so tests can construct the server and use Router() directly.
func NewServer(broker BrokerInterface, opts ServerOptions) *Server {
	rl := opts.RateLimit
	if rl.RequestsPerSecond <= 0 {
		rl = DefaultRateLimitConfig
	}

	s := &Server{
		broker:      broker,
		rateLimiter: NewIPRateLimiter(rl),
		logger:      opts.Logger,
	}
	s.router = NewRouter(RouterConfig{
		Broker:         broker,
		RateLimiter:    s.rateLimiter,
		CORSOrigins:    opts.CORSOrigins,
		PeerLimits:     opts.PeerLimits,
		Logger:         opts.Logger,
		DisableLogging: true,
	})
	return s
}

// Start listens on addr and blocks until the server stops. It returns nil
// after a graceful Shutdown.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("🌐 Relay server starting")

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Router returns the HTTP handler for use with httptest.
//
//	server := api.NewServer(broker, api.ServerOptions{})
//	ts := httptest.NewServer(server.Router())
//	defer ts.Close()
func (s *Server) Router() http.Handler {
	return s.router
}

// Shutdown stops accepting connections and the rate limiter cleanup.
// Hijacked peer sockets are not tracked by http.Server; the broker closes
// those.
func (s *Server) Shutdown(ctx context.Context) error {
	s.rateLimiter.Stop()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
