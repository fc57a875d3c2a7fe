package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/btcguess/guess-engine/internal/store"
)

// UpdateScoreRequest is the JSON body for PUT /api/v1/scores/user/{userID}.
// Omitted fields are left unchanged.
type UpdateScoreRequest struct {
	Points *int64 `json:"points"`
	Wins   *int64 `json:"wins"`
	Losses *int64 `json:"losses"`
}

// ListScores handles GET /api/v1/scores — the leaderboard, points descending.
func (s *Server) ListScores(w http.ResponseWriter, r *http.Request) {
	scores, err := s.ledger.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scores)
}

// GetScore handles GET /api/v1/scores/user/{userID}. A user without a score
// gets a zeroed one created on first read.
func (s *Server) GetScore(w http.ResponseWriter, r *http.Request) {
	sc, err := s.ledger.GetOrCreate(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

// UpdateScore handles PUT /api/v1/scores/user/{userID}
func (s *Server) UpdateScore(w http.ResponseWriter, r *http.Request) {
	var req UpdateScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Wins != nil && *req.Wins < 0 || req.Losses != nil && *req.Losses < 0 {
		writeError(w, "wins and losses must be non-negative", http.StatusBadRequest)
		return
	}

	sc, err := s.ledger.Update(r.Context(), chi.URLParam(r, "userID"), store.ScorePatch{
		Points: req.Points,
		Wins:   req.Wins,
		Losses: req.Losses,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

// DeleteScore handles DELETE /api/v1/scores/user/{userID}
func (s *Server) DeleteScore(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.Delete(r.Context(), chi.URLParam(r, "userID")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
