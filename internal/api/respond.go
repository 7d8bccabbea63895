package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// JSONResponse sends a JSON response with status 200.
func JSONResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn().Err(err).Msg("api: failed to encode response")
	}
}

// JSONError sends a JSON error response.
func JSONError(w http.ResponseWriter, kind, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message, "kind": kind})
}
