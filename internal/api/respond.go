package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/memophor/scedge/internal/apperr"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode response body")
	}
}

// writeError maps an error to its status code and {"error": ...} body.
// Internal causes are logged but never echoed to the client.
func writeError(w http.ResponseWriter, err error) {
	appErr := apperr.As(err)
	if appErr.Kind == apperr.KindInternal {
		log.Error().Err(appErr).Msg("Request failed")
	}
	writeJSON(w, apperr.HTTPStatus(appErr), errorBody{Error: appErr.PublicMessage()})
}
