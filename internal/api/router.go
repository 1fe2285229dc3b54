package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"forge/internal/engine"
)

// Server holds the HTTP server dependencies.
type Server struct {
	session *engine.Session
	nc      *nats.Conn
}

// NewServer creates a new API server. nc may be nil when NATS is not
// configured; it is only used for health reporting.
func NewServer(session *engine.Session, nc *nats.Conn) *Server {
	return &Server{session: session, nc: nc}
}

// Router returns the configured chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	// Health check
	r.Get("/health", s.handleHealth)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Read-only snapshots (GET)
		r.Get("/market", s.handleMarket)
		r.Get("/market/{symbol}", s.handleTicker)
		r.Get("/account", s.handleAccount)
		r.Get("/positions", s.handleListPositions)
		r.Get("/orders", s.handleListOrders)
		r.Get("/orders/pending", s.handlePendingOrders)
		r.Get("/status", s.handleStatus)

		// Order entry
		r.Post("/orders", s.handlePlaceOrder)
		r.Delete("/orders/{orderId}", s.handleCancelOrder)

		// Administrative actions
		r.Post("/account/reset", s.handleResetAccount)
		r.Post("/killswitch/reset", s.handleKillswitchReset)
		r.Post("/wallet", s.handleWallet)
		r.Post("/mode", s.handleTradingMode)
		r.Post("/ticks/replay", s.handleReplayTicks)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
