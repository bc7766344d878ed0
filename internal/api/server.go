// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wallet-cards/internal/assets"
	"github.com/wallet-cards/internal/logging"
	"github.com/wallet-cards/internal/profile"
	"github.com/wallet-cards/internal/types"
)

// Service interfaces for dependency injection and testing

// StatsService defines the stats query operations the API depends on.
type StatsService interface {
	FetchWalletStats(ctx context.Context, wallet string) (*types.PlayerStats, error)
	FetchGlobalStats(ctx context.Context, limit int) (*types.GlobalStats, []types.LeaderboardEntry, error)
}

// ProfileService defines the profile directory operations.
type ProfileService interface {
	Search(ctx context.Context, query string) ([]types.SearchUser, error)
	FetchAvatar(ctx context.Context, rawURL string) (*profile.Avatar, error)
}

// EstimatorService defines the weekly pool projection operation.
type EstimatorService interface {
	EstimateCurrentWeek(ctx context.Context, wallet string) (*types.WeeklyPoolProjection, error)
}

// AssetService defines the asset bundle operations.
type AssetService interface {
	Resolve(ctx context.Context) (*assets.Bundle, error)
	ListDecorGifs(ctx context.Context) ([]string, error)
}

// CardService defines the card rendering operation.
type CardService interface {
	Render(ctx context.Context, req *types.CardRequest, avatar image.Image, decor image.Image) ([]byte, error)
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	stats      StatsService
	profiles   ProfileService
	estimator  EstimatorService
	assets     AssetService
	cards      CardService
	config     *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// allowedMethods maps each route to the single method it accepts; the
// method-not-allowed handler consults it to populate the Allow header.
var allowedMethods = map[string]string{
	"/health":                http.MethodGet,
	"/api/avatar":            http.MethodGet,
	"/api/decor-gifs":        http.MethodGet,
	"/api/global-stats":      http.MethodGet,
	"/api/player-card-image": http.MethodPost,
	"/api/player-stats":      http.MethodPost,
	"/api/search":            http.MethodGet,
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	stats StatsService,
	profiles ProfileService,
	estimator EstimatorService,
	assetResolver AssetService,
	cards CardService,
) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		stats:     stats,
		profiles:  profiles,
		estimator: estimator,
		assets:    assetResolver,
		cards:     cards,
		config:    config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(CompressionMiddleware)

	s.router.MethodNotAllowedHandler = http.HandlerFunc(s.handleMethodNotAllowed)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/avatar", s.handleAvatar).Methods("GET")
	api.HandleFunc("/decor-gifs", s.handleDecorGifs).Methods("GET")
	api.HandleFunc("/global-stats", s.handleGlobalStats).Methods("GET")
	api.HandleFunc("/player-card-image", s.handlePlayerCardImage).Methods("POST")
	api.HandleFunc("/player-stats", s.handlePlayerStats).Methods("POST")
	api.HandleFunc("/search", s.handleSearch).Methods("GET")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "wallet-cards",
	})
}

// handleMethodNotAllowed answers a matched path hit with the wrong method,
// advertising the allowed one.
func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	// Router middleware is skipped on method mismatch, so preflight
	// requests land here and get their CORS answer directly.
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if allowed, ok := allowedMethods[r.URL.Path]; ok {
		w.Header().Set("Allow", allowed)
	}
	respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.GetGlobalLogger().WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.GetGlobalLogger().Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the configured router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
