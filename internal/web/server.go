package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/elys-network/autorewarder/internal/logger"
	"github.com/elys-network/autorewarder/internal/metrics"
	"github.com/elys-network/autorewarder/internal/rewarder"
	"github.com/elys-network/autorewarder/internal/state"
	"github.com/elys-network/autorewarder/internal/types"
)

//go:embed static/*
var staticFiles embed.FS

//go:embed static/index.html
var dashboardHTML []byte

// Store is the persistence the API reads from and checkpoints to.
// Implemented by state.PostgresStore and state.MemoryStore.
type Store interface {
	SaveState(ctx context.Context, st types.RewarderState) error
	SaveParameters(ctx context.Context, params types.RewardParameters, updatedBy string) (int64, error)
	RecentCycles(ctx context.Context, limit int) ([]types.CycleSnapshot, error)
	CycleByID(ctx context.Context, id int64) (*types.CycleSnapshot, error)
	Summary(ctx context.Context) (*state.DistributionSummary, error)
	Ping(ctx context.Context) error
}

// Config holds the dependencies of the web server.
type Config struct {
	Port     string
	Rewarder *rewarder.Rewarder
	Store    Store
	Clock    clockwork.Clock

	// APIToken guards every mutating endpoint as a bearer token. Empty disables them.
	APIToken string
	// BatchSize is the default slice size for simulations.
	BatchSize int
}

// WebServer serves the dashboard, the read API and the operator actions.
type WebServer struct {
	router   *mux.Router
	server   *http.Server
	port     string
	rewarder *rewarder.Rewarder
	store    Store
	clock    clockwork.Clock
	apiToken string
	batch    int
	logger   zerolog.Logger
}

// NewWebServer creates a new web server instance
func NewWebServer(cfg Config) (*WebServer, error) {
	if cfg.Rewarder == nil {
		return nil, errors.New("rewarder cannot be nil")
	}
	if cfg.Store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}

	ws := &WebServer{
		router:   mux.NewRouter(),
		port:     cfg.Port,
		rewarder: cfg.Rewarder,
		store:    cfg.Store,
		clock:    cfg.Clock,
		apiToken: cfg.APIToken,
		batch:    cfg.BatchSize,
		logger:   logger.GetForComponent("web_server"),
	}

	ws.setupRoutes()
	return ws, nil
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Static files
	staticHandler := http.FileServer(http.FS(staticFiles))
	ws.router.PathPrefix("/static/").Handler(staticHandler)

	// Dashboard routes
	ws.router.HandleFunc("/", ws.handleDashboard).Methods("GET")
	ws.router.HandleFunc("/dashboard", ws.handleDashboard).Methods("GET")

	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	ws.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Read API
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/state", ws.handleGetState).Methods("GET")
	api.HandleFunc("/vaults", ws.handleGetVaults).Methods("GET")
	api.HandleFunc("/vaults/{vault}", ws.handleGetVault).Methods("GET")
	api.HandleFunc("/parameters", ws.handleGetParameters).Methods("GET")
	api.HandleFunc("/simulate", ws.handleSimulate).Methods("GET")
	api.HandleFunc("/cycles", ws.handleGetCycles).Methods("GET")
	api.HandleFunc("/cycles/latest", ws.handleGetLatestCycle).Methods("GET")
	api.HandleFunc("/cycles/{id:[0-9]+}", ws.handleGetCycle).Methods("GET")
	api.HandleFunc("/summary", ws.handleGetSummary).Methods("GET")

	// Operator actions
	actions := api.NewRoute().Subrouter()
	actions.Use(ws.authMiddleware)
	actions.HandleFunc("/vaults", ws.handleRegisterVault).Methods("POST")
	actions.HandleFunc("/parameters", ws.handleUpdateParameters).Methods("PUT")
	actions.HandleFunc("/collect", ws.handleCollect).Methods("POST")
	actions.HandleFunc("/distribute", ws.handleDistribute).Methods("POST")
	actions.HandleFunc("/cycle/abandon", ws.handleAbandonCycle).Methods("POST")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Handler exposes the router, mainly for tests.
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// Start starts the web server and blocks until it stops.
func (ws *WebServer) Start() error {
	ws.logger.Info().Str("port", ws.port).Msg("Starting web server")

	ws.server = &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	err := ws.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops a started server.
func (ws *WebServer) Shutdown(ctx context.Context) error {
	if ws.server == nil {
		return nil
	}
	return ws.server.Shutdown(ctx)
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		ws.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// authMiddleware requires "Authorization: Bearer <APIToken>" on operator actions.
func (ws *WebServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ws.apiToken == "" {
			ws.writeErrorResponse(w, http.StatusForbidden, "Operator actions are disabled: no API token configured")
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(ws.apiToken)) != 1 {
			ws.writeErrorResponse(w, http.StatusUnauthorized, "Invalid or missing API token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests and records the request metrics.
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)
		route := routeTemplate(r)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapper.statusCode)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(duration.Seconds())

		ws.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
			Msg("HTTP request")
	})
}

// routeTemplate keeps metric labels bounded: vault addresses and cycle IDs collapse into their pattern.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
