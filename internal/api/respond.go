package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/jcai27/Chessica/internal/apperr"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// writeError maps the error's kind to its stable status code. Internal
// details never leak: unclassified errors get a generic message.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	message := err.Error()
	if kind == apperr.Internal || kind == apperr.Persistence {
		logger.Error("request failed", "error", err)
		message = "internal error"
	}
	writeJSON(w, status, errorBody{Error: errorDetail{Code: kind.String(), Message: message}})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		return true
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if err.Error() == "EOF" {
			return true
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{
			Code: "bad_request", Message: "malformed JSON body",
		}})
		return false
	}
	return true
}
