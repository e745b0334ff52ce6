package api

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"code-interpreter/internal/admission"
	"code-interpreter/internal/config"
	"code-interpreter/internal/monitor"
)

// HealthChecker reports database connectivity. *storage.DB satisfies it.
type HealthChecker interface {
	Healthy(ctx context.Context) bool
}

// Deps are the collaborators the server routes requests to. Installs and
// DB may be nil when no database is configured.
type Deps struct {
	Executor  Executor
	Charts    ChartRenderer
	Installs  InstallLister
	DB        HealthChecker
	Admission *admission.Controller
	Metrics   *monitor.Metrics
}

// Server is the main HTTP server for the interpreter API.
type Server struct {
	httpServer *http.Server
	handlers   *Handlers
	deps       Deps
	cfg        *config.Config
	startTime  time.Time
}

// NewServer creates and configures the HTTP server with all routes and middleware.
func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		handlers:  NewHandlers(deps.Executor, deps.Charts, deps.Installs, deps.Metrics),
		deps:      deps,
		cfg:       cfg,
		startTime: time.Now(),
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      s.routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) routes() http.Handler {
	cfg := s.cfg

	// Budgeted endpoints. Unknown paths land here too and are counted.
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("POST /execute", s.handlers.HandleExecute)
	apiMux.HandleFunc("POST /generate_chart", s.handlers.HandleGenerateChart)
	apiMux.HandleFunc("GET /installs", s.handlers.HandleListInstalls)

	var budgeted http.Handler = apiMux
	budgeted = ThrottleMiddleware(cfg.Throttle.RPS, cfg.Throttle.Burst, s.deps.Metrics)(budgeted)
	budgeted = AdmissionMiddleware(s.deps.Admission, s.deps.Metrics)(budgeted)

	// Top-level mux: health/metrics bypass admission, everything else is budgeted
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, promhttp.HandlerFor(s.deps.Metrics.Registry, promhttp.HandlerOpts{}))
	}
	mux.Handle("/", budgeted)

	// Apply middleware chain (outermost first)
	var handler http.Handler = mux
	handler = MetricsMiddleware(s.deps.Metrics)(handler)
	handler = MaxBodyMiddleware(cfg.Server.MaxRequestBody)(handler)
	handler = SecurityHeadersMiddleware(handler)
	handler = CORSMiddleware(cfg.CORS.AllowedOrigins)(handler)
	handler = LoggingMiddleware(handler)
	handler = RequestIDMiddleware(handler)
	handler = RecoveryMiddleware(handler)
	return handler
}

// Start begins listening for requests. Uses TLS if configured.
func (s *Server) Start() error {
	if s.cfg.TLS.Enabled {
		log.Info().
			Str("addr", s.httpServer.Addr).
			Str("cert", s.cfg.TLS.CertFile).
			Msg("starting HTTPS server with TLS")

		s.httpServer.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
		return s.httpServer.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
	}

	log.Info().
		Str("addr", s.httpServer.Addr).
		Msg("starting HTTP server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := s.deps.DB == nil || s.deps.DB.Healthy(r.Context())

	resp := HealthResponse{
		Status:           "ok",
		Database:         dbOK,
		Languages:        s.deps.Executor.Languages(),
		AdmissionClients: s.deps.Admission.Clients(),
		Uptime:           time.Since(s.startTime).Round(time.Second).String(),
	}

	status := http.StatusOK
	if !dbOK {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, resp)
}
