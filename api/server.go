// Package api exposes the desk over HTTP and streams engine events to
// websocket clients.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rustyeddy/tradedesk/risk"
	"github.com/rustyeddy/tradedesk/sim"
	"go.uber.org/zap"
)

// Server handles REST requests and websocket connections.
type Server struct {
	engine  *sim.Engine
	hub     *Hub
	router  *mux.Router
	origins []string
	log     *zap.Logger
}

// NewServer routes requests to engine. When hub is nil one is created on
// the engine's event bus. An empty origins list allows any origin.
func NewServer(engine *sim.Engine, hub *Hub, origins []string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if hub == nil {
		hub = NewHub(engine.Bus(), log)
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s := &Server{
		engine:  engine,
		hub:     hub,
		router:  mux.NewRouter(),
		origins: origins,
		log:     log.Named("api"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Orders
	api.HandleFunc("/orders", s.handlePlaceOrder).Methods(http.MethodPost)
	api.HandleFunc("/orders", s.handleListOrders).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}", s.handleCancelOrder).Methods(http.MethodDelete)

	// Positions and portfolio
	api.HandleFunc("/positions", s.handlePositions).Methods(http.MethodGet)
	api.HandleFunc("/positions/{symbol}", s.handlePosition).Methods(http.MethodGet)
	api.HandleFunc("/portfolio", s.handlePortfolio).Methods(http.MethodGet)

	// Risk
	api.HandleFunc("/risk/metrics", s.handleRiskMetrics).Methods(http.MethodGet)
	api.HandleFunc("/risk/daily", s.handleDailyState).Methods(http.MethodGet)
	api.HandleFunc("/risk/settings", s.handleGetSettings).Methods(http.MethodGet)
	api.HandleFunc("/risk/settings", s.handleUpdateSettings).Methods(http.MethodPatch)
	api.HandleFunc("/risk/emergency-stop", s.handleEmergencyStop).Methods(http.MethodPost)
	api.HandleFunc("/risk/resume", s.handleResume).Methods(http.MethodPost)

	// Market data pushed by external feeds
	api.HandleFunc("/ticks", s.handleTicks).Methods(http.MethodPost)

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
}

// Handler returns the router wrapped in the CORS middleware.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(s.router)
}

func (s *Server) Hub() *Hub { return s.hub }

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server starting", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		s.log.Info("server stopping")
		return srv.Shutdown(shutdownCtx)
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, err, message string) {
	respondJSON(w, status, ErrorResponse{Error: err, Message: message})
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	var (
		verr  *risk.ValidationError
		cerr  *risk.ConfigurationError
		state *sim.InvalidStateError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &cerr):
		return http.StatusBadRequest
	case errors.Is(err, sim.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.As(err, &state):
		return http.StatusConflict
	case errors.Is(err, sim.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
