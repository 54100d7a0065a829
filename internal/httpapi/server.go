// Package httpapi exposes the gateway over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/giantswarm/mcp-authgate/internal/flow"
	"github.com/giantswarm/mcp-authgate/internal/gateway"
	"github.com/giantswarm/mcp-authgate/internal/identity"
	"github.com/giantswarm/mcp-authgate/internal/logging"
	"github.com/giantswarm/mcp-authgate/internal/metrics"
)

// maxBodyBytes bounds JSON request bodies
const maxBodyBytes = 1 << 20

// Authenticator turns request headers into an authenticated user
type Authenticator interface {
	Authenticate(ctx context.Context, h http.Header) (*identity.AuthUser, error)
}

// Options configures a Server
type Options struct {
	Auth    Authenticator
	Factory *gateway.Factory
	Graph   *flow.Graph
	Logger  *logging.Logger
	Version string

	RateLimitRPS   float64
	RateLimitBurst int
	// RequestTimeout bounds downstream work per request; zero means none
	RequestTimeout time.Duration

	// TrustForwardedFor makes the rate limiter key clients by the address
	// the fronting proxy appended to X-Forwarded-For
	TrustForwardedFor bool
}

// Server is the HTTP layer
type Server struct {
	mux     *http.ServeMux
	auth    Authenticator
	factory *gateway.Factory
	graph   *flow.Graph
	logger  *logging.Logger
	version string
	timeout time.Duration
	rps     float64
	burst   int

	trustForwardedFor bool
}

// New registers all routes
func New(opts Options) *Server {
	s := &Server{
		mux:     http.NewServeMux(),
		auth:    opts.Auth,
		factory: opts.Factory,
		graph:   opts.Graph,
		logger:  opts.Logger,
		version: opts.Version,
		timeout: opts.RequestTimeout,
		rps:     opts.RateLimitRPS,
		burst:   opts.RateLimitBurst,

		trustForwardedFor: opts.TrustForwardedFor,
	}
	if s.graph == nil {
		s.graph = flow.NewGraph(opts.Logger)
	}

	s.mux.HandleFunc("GET /healthz", s.healthz)
	s.mux.Handle("GET /metrics", metrics.Handler())

	s.mux.Handle("GET /v1/whoami", s.withAuth(s.whoami))
	s.mux.Handle("GET /v1/services", s.withAuth(s.listServices))
	s.mux.Handle("GET /v1/services/{service}/tools", s.withAuth(s.listTools))
	s.mux.Handle("POST /v1/services/{service}/tools/{tool}", s.withAuth(s.callTool))
	s.mux.Handle("POST /v1/runs", s.withAuth(s.createRun))

	return s
}

// Handler returns the mux wrapped in the middleware chain
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = RateLimit(h, s.rps, s.burst, s.trustForwardedFor)
	h = metrics.Instrument(h)
	h = Logging(s.logger, h)
	return RequestID(h)
}

// Serve runs the HTTP server on addr until ctx is cancelled
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP API listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("Shutting down HTTP API...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with the error body shared by every failure
func writeError(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]any{
		"detail":      detail,
		"status_code": code,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
}
