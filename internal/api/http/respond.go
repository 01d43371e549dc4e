package http

import (
	"encoding/json"
	"net/http"

	"github.com/mind-engage/mindengage-mastery/internal/apperr"
	"github.com/mind-engage/mindengage-mastery/internal/logger"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps an error onto a status code. Internal errors are logged and
// never echoed to the client.
func writeError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	status := apperr.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg, Code: apperr.KindOf(err).String()})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.InvalidArgument("bad json: %v", err)
	}
	return nil
}
