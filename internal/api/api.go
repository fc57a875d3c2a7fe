// Package api exposes the HTTP surface: auth, guesses, scores, the latest
// price and the WebSocket upgrade endpoint.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/btcguess/guess-engine/internal/auth"
	"github.com/btcguess/guess-engine/internal/guess"
	"github.com/btcguess/guess-engine/internal/metrics"
	"github.com/btcguess/guess-engine/internal/oracle"
	"github.com/btcguess/guess-engine/internal/score"
	"github.com/btcguess/guess-engine/internal/ws"
)

// Server bundles the services behind the HTTP handlers.
type Server struct {
	guesses *guess.Service
	ledger  *score.Ledger
	auth    *auth.Service
	hub     *ws.Hub
	prices  oracle.SnapshotOracle
}

// NewServer creates the API server. hub may be nil when WebSocket push is
// not needed (tests).
func NewServer(guesses *guess.Service, ledger *score.Ledger, authSvc *auth.Service, hub *ws.Hub, prices oracle.SnapshotOracle) *Server {
	return &Server{
		guesses: guesses,
		ledger:  ledger,
		auth:    authSvc,
		hub:     hub,
		prices:  prices,
	}
}

// Router builds the chi router with the full middleware stack.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"guess-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", s.Register)
		r.Post("/auth/login", s.Login)
		r.Post("/auth/refresh", s.Refresh)

		r.Get("/price", s.GetPrice)
		if s.hub != nil {
			r.Get("/ws", s.hub.HandleWS)
		}

		// Everything below requires an authenticated user.
		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware)

			r.Post("/auth/logout", s.Logout)

			r.Post("/guesses", s.CreateGuess)
			r.Get("/guesses/me", s.ListMyGuesses)
			r.Get("/guesses/pending", s.ListPendingGuesses)
			r.Get("/guesses/{guessID}", s.GetGuess)
			r.Post("/guesses/{guessID}/validate", s.ValidateGuess)
			r.Delete("/guesses/{guessID}", s.DeleteGuess)

			r.Get("/scores", s.ListScores)
			r.Get("/scores/user/{userID}", s.GetScore)
			r.Put("/scores/user/{userID}", s.UpdateScore)
			r.Delete("/scores/user/{userID}", s.DeleteScore)
		})
	})

	return r
}
