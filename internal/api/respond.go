package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/btcguess/guess-engine/internal/auth"
	"github.com/btcguess/guess-engine/internal/guess"
	"github.com/btcguess/guess-engine/internal/oracle"
	"github.com/btcguess/guess-engine/internal/store"
)

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps a service error onto the HTTP taxonomy.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, "not found", http.StatusNotFound)
	case errors.Is(err, store.ErrPendingExists):
		writeError(w, "you can only have one pending guess at a time", http.StatusConflict)
	case errors.Is(err, store.ErrScoreExists), errors.Is(err, store.ErrEmailExists):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, guess.ErrForbidden):
		writeError(w, "you are not authorized to access this guess", http.StatusForbidden)
	case errors.Is(err, guess.ErrInvalidDirection):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		writeError(w, "invalid credentials", http.StatusUnauthorized)
	case errors.Is(err, oracle.ErrUnavailable):
		writeError(w, "price feed unavailable, try again", http.StatusBadGateway)
	default:
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}
