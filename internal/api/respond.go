package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/eunmann/shopsight/pkg/logging"
	"github.com/eunmann/shopsight/pkg/model"
	"github.com/goccy/go-json"
)

type errorBody struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.L().Error().Err(err).Msg("marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorBody{Error: apiError{Code: code, Message: message}})
}

// respondLookupError maps query errors to status codes.
func respondLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, model.ErrNotFound) {
		respondError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, "internal", "internal error")
}

// intParam reads an integer query parameter, returning def when absent.
func intParam(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.New(key + " must be an integer")
	}
	return n, nil
}
