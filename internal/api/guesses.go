package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/btcguess/guess-engine/internal/auth"
	"github.com/btcguess/guess-engine/internal/model"
)

// CreateGuessRequest is the JSON body for POST /api/v1/guesses.
type CreateGuessRequest struct {
	Direction model.Direction `json:"direction"`
}

// CreateGuess handles POST /api/v1/guesses
func (s *Server) CreateGuess(w http.ResponseWriter, r *http.Request) {
	var req CreateGuessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !req.Direction.Valid() {
		writeError(w, "direction must be UP or DOWN", http.StatusBadRequest)
		return
	}

	g, err := s.guesses.Create(r.Context(), auth.UserID(r.Context()), req.Direction)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

// ListMyGuesses handles GET /api/v1/guesses/me
func (s *Server) ListMyGuesses(w http.ResponseWriter, r *http.Request) {
	guesses, err := s.guesses.ListByUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, guesses)
}

// ListPendingGuesses handles GET /api/v1/guesses/pending
func (s *Server) ListPendingGuesses(w http.ResponseWriter, r *http.Request) {
	guesses, err := s.guesses.ListPending(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, guesses)
}

// GetGuess handles GET /api/v1/guesses/{guessID}
func (s *Server) GetGuess(w http.ResponseWriter, r *http.Request) {
	g, err := s.guesses.Get(r.Context(), chi.URLParam(r, "guessID"), auth.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// ValidateGuess handles POST /api/v1/guesses/{guessID}/validate — a manual
// settlement ahead of the scheduler's sweep. Idempotent on settled guesses.
func (s *Server) ValidateGuess(w http.ResponseWriter, r *http.Request) {
	g, err := s.guesses.Validate(r.Context(), chi.URLParam(r, "guessID"), auth.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// DeleteGuess handles DELETE /api/v1/guesses/{guessID}
func (s *Server) DeleteGuess(w http.ResponseWriter, r *http.Request) {
	if err := s.guesses.Delete(r.Context(), chi.URLParam(r, "guessID")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetPrice handles GET /api/v1/price. The poller's cached frame is served
// when present; otherwise a live fetch.
func (s *Server) GetPrice(w http.ResponseWriter, r *http.Request) {
	if s.hub != nil {
		if cached := s.hub.LastPrice(); cached != nil {
			w.Header().Set("Content-Type", "application/json")
			w.Write(cached)
			return
		}
	}

	snap, err := s.prices.LatestSnapshot(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
