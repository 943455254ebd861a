package portal

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/AlterMundi/sai-cam-agent/internal/health"
)

// Server is the operator-facing HTTP API and SSE stream.
type Server struct {
	cfg          Config
	router       *chi.Mux
	httpServer   *http.Server
	healthClient *health.Client
	logger       Logger
}

// NewServer builds a portal server from cfg. Routes are registered
// immediately; Start binds the listener.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 2 * time.Second
	}

	s := &Server{
		cfg:          cfg,
		router:       chi.NewRouter(),
		healthClient: health.NewClient(cfg.HealthSocketPath, cfg.HealthTimeout),
		logger:       cfg.Logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s.router.Get("/api/status", s.handleStatus)
	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/logs", s.handleLogs)
	s.router.Get("/api/log_level", s.handleGetLogLevel)
	s.router.Post("/api/log_level", s.handleSetLogLevel)
	s.router.Get("/api/events", s.handleEvents)
	s.router.Get("/api/images/{cam}/latest", s.handleLatestImage)
	s.router.Post("/api/cameras/{cam}/capture", s.handleCameraCapture)
	s.router.Post("/api/cameras/{cam}/restart", s.handleCameraRestart)
	s.router.Post("/api/cameras/{cam}/position", s.handleCameraPosition)
	s.router.Post("/api/wifi_ap/enable", s.handleWifiAPEnable)
	s.router.Post("/api/wifi_ap/disable", s.handleWifiAPDisable)
	s.router.Get("/api/update/status", s.handleUpdateStatus)
	s.router.Post("/api/update/check", s.handleUpdateCheck)

	if s.cfg.FleetToken != "" {
		s.router.Route("/api/fleet", func(r chi.Router) {
			r.Use(s.fleetAuthMiddleware)
			r.Get("/status", s.handleStatus)
			r.Get("/health", s.handleHealth)
		})
	}
}

// Start binds the listener and serves until Stop is called. It blocks, like
// http.Server.ListenAndServe, so callers run it in its own goroutine.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.BindAddr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE connections are long-lived
		IdleTimeout:  60 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Router exposes the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) fleetAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token := strings.TrimPrefix(auth, "Bearer ")
		if token == "" || token == auth || token != s.cfg.FleetToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
